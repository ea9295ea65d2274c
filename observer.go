package amd

import (
	"context"
	"fmt"
	"sort"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Observer is notified of module state transitions. Events use the
// CloudEvents specification.
type Observer interface {
	// OnEvent is called on the scheduler thread. Observers must not block
	// and must not call back into the loader synchronously.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer.
	ObserverID() string
}

// ObserverInfo describes a registered observer.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Event types emitted by the loader, in reverse domain notation.
const (
	EventTypeModuleDefined   = "com.amd.module.defined"
	EventTypeModuleLoading   = "com.amd.module.loading"
	EventTypeModuleImporting = "com.amd.module.importing"
	EventTypeModuleExported  = "com.amd.module.exported"
	EventTypeModuleFailed    = "com.amd.module.failed"

	EventTypeContextCreated  = "com.amd.context.created"
	EventTypeContextAdopted  = "com.amd.context.adopted"
	EventTypeErrorUnhandled  = "com.amd.error.unhandled"
	EventTypeLoaderBootstrap = "com.amd.loader.bootstrap"
)

// ModuleEvent is the data payload of module events.
type ModuleEvent struct {
	Context string `json:"context"`
	ID      string `json:"id,omitempty"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
}

// FunctionalObserver adapts a function to the Observer interface.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer calling handler for each event.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{id: id, handler: handler}
}

// OnEvent implements Observer.
func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

// ObserverID implements Observer.
func (f *FunctionalObserver) ObserverID() string {
	return f.id
}

type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// RegisterObserver adds an observer. With no eventTypes it receives every
// event.
func (l *Loader) RegisterObserver(observer Observer, eventTypes ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	types := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = true
	}
	l.observers[observer.ObserverID()] = &observerRegistration{
		observer:     observer,
		eventTypes:   types,
		registeredAt: time.Now(),
	}
	l.logger.Debug("Observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver removes an observer. Unknown observers are ignored.
func (l *Loader) UnregisterObserver(observer Observer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.observers, observer.ObserverID())
	return nil
}

// GetObservers lists the registered observers, sorted by id.
func (l *Loader) GetObservers() []ObserverInfo {
	l.mu.Lock()
	defer l.mu.Unlock()

	info := make([]ObserverInfo, 0, len(l.observers))
	for _, reg := range l.observers {
		types := make([]string, 0, len(reg.eventTypes))
		for t := range reg.eventTypes {
			types = append(types, t)
		}
		sort.Strings(types)
		info = append(info, ObserverInfo{
			ID:           reg.observer.ObserverID(),
			EventTypes:   types,
			RegisteredAt: reg.registeredAt,
		})
	}
	sort.Slice(info, func(i, j int) bool { return info[i].ID < info[j].ID })
	return info
}

// NotifyObservers delivers event to every interested observer, in
// observer id order. Observer errors and panics are logged.
func (l *Loader) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event %s: %w", event.Type(), err)
	}

	l.mu.Lock()
	regs := make([]*observerRegistration, 0, len(l.observers))
	for _, reg := range l.observers {
		if len(reg.eventTypes) > 0 && !reg.eventTypes[event.Type()] {
			continue
		}
		regs = append(regs, reg)
	}
	l.mu.Unlock()
	sort.Slice(regs, func(i, j int) bool {
		return regs[i].observer.ObserverID() < regs[j].observer.ObserverID()
	})

	for _, reg := range regs {
		l.deliver(ctx, reg.observer, event)
	}
	return nil
}

func (l *Loader) deliver(ctx context.Context, o Observer, event cloudevents.Event) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Observer panicked", "observerID", o.ObserverID(), "event", event.Type(), "panic", r)
		}
	}()
	if err := o.OnEvent(ctx, event); err != nil {
		l.logger.Error("Observer error", "observerID", o.ObserverID(), "event", event.Type(), "error", err)
	}
}

func (l *Loader) hasObservers() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.observers) > 0
}

// emit notifies observers of a module transition in c.
func (l *Loader) emit(eventType string, c *Context, id, url string, err error) {
	if !l.hasObservers() {
		return
	}
	data := ModuleEvent{ID: id, URL: url}
	if c != nil {
		data.Context = c.name
	}
	if err != nil {
		data.Error = err.Error()
	}
	event := NewCloudEvent(eventType, "amd/"+data.Context, data, nil)
	if id != "" {
		event.SetSubject(id)
	}
	if nerr := l.NotifyObservers(context.Background(), event); nerr != nil {
		l.logger.Error("Failed to notify observers", "event", eventType, "error", nerr)
	}
}

// NewCloudEvent creates a CloudEvent with a UUIDv7 id and JSON data.
func NewCloudEvent(eventType, source string, data any, metadata map[string]any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(newEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	for key, value := range metadata {
		event.SetExtension(key, value)
	}
	return event
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}
