package amd

import (
	"context"
	"errors"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloudEvent(t *testing.T) {
	t.Parallel()
	metadata := map[string]interface{}{"key": "value"}
	event := NewCloudEvent(
		EventTypeModuleExported,
		"amd/default",
		ModuleEvent{Context: "default", ID: "app"},
		metadata,
	)

	if event.Type() != EventTypeModuleExported {
		t.Errorf("Expected Type to be %q, got %s", EventTypeModuleExported, event.Type())
	}
	if event.Source() != "amd/default" {
		t.Errorf("Expected Source to be 'amd/default', got %s", event.Source())
	}
	if err := event.Validate(); err != nil {
		t.Errorf("Expected a valid event, got %v", err)
	}

	var data ModuleEvent
	if err := event.DataAs(&data); err != nil {
		t.Errorf("Failed to extract data: %v", err)
	}
	if data.ID != "app" {
		t.Errorf("Expected data ID to be 'app', got %v", data.ID)
	}

	if val, ok := event.Extensions()["key"]; !ok || val != "value" {
		t.Errorf("Expected Extension['key'] to be 'value', got %v", val)
	}
}

func TestFunctionalObserver(t *testing.T) {
	t.Parallel()
	called := false
	var receivedEvent cloudevents.Event

	observer := NewFunctionalObserver("test-observer", func(ctx context.Context, event cloudevents.Event) error {
		called = true
		receivedEvent = event
		return nil
	})

	if observer.ObserverID() != "test-observer" {
		t.Errorf("Expected ObserverID to be 'test-observer', got %s", observer.ObserverID())
	}

	event := NewCloudEvent(EventTypeModuleLoading, "amd/default", nil, nil)
	if err := observer.OnEvent(context.Background(), event); err != nil {
		t.Errorf("OnEvent should not return error, got: %v", err)
	}
	if !called {
		t.Error("Expected handler to be called")
	}
	if receivedEvent.Type() != EventTypeModuleLoading {
		t.Errorf("Expected event type %q, got %s", EventTypeModuleLoading, receivedEvent.Type())
	}
}

// eventLog collects the type and subject of every event it sees.
type eventLog struct {
	id     string
	events []cloudevents.Event
}

func (e *eventLog) OnEvent(_ context.Context, event cloudevents.Event) error {
	e.events = append(e.events, event)
	return nil
}

func (e *eventLog) ObserverID() string { return e.id }

func (e *eventLog) lines() []string {
	out := make([]string, 0, len(e.events))
	for _, event := range e.events {
		out = append(out, event.Type()+" "+event.Subject())
	}
	return out
}

func TestModuleEventOrder(t *testing.T) {
	log := &eventLog{id: "log"}
	h := newHarness(t, WithObserver(log))
	h.module("a", []string{"b"}, func(b string) string { return b })
	h.value("b", "B")

	_, err := h.load(h.loader.Context(), "a")
	require.NoError(t, err)

	assert.Equal(t, []string{
		EventTypeModuleLoading + " a",
		EventTypeModuleDefined + " ",
		EventTypeModuleImporting + " a",
		EventTypeModuleLoading + " b",
		EventTypeModuleDefined + " ",
		EventTypeModuleImporting + " b",
		EventTypeModuleExported + " b",
		EventTypeModuleExported + " a",
	}, log.lines())

	var data ModuleEvent
	require.NoError(t, log.events[0].DataAs(&data))
	assert.Equal(t, ModuleEvent{Context: "default", ID: "a", URL: "a.js"}, data)
	assert.Equal(t, "amd/default", log.events[0].Source())
}

func TestFailureEvents(t *testing.T) {
	failures := &eventLog{id: "failures"}
	h := newHarness(t, WithObserver(failures, EventTypeModuleFailed, EventTypeErrorUnhandled),
		WithErrorHook(func(error) {}))

	require.NoError(t, h.loader.Context().Require().Load([]string{"missing"}, func(...any) {}, nil))
	h.sched.Drain()

	require.Len(t, failures.events, 2)
	assert.Equal(t, EventTypeModuleFailed, failures.events[0].Type())
	assert.Equal(t, EventTypeErrorUnhandled, failures.events[1].Type())

	var data ModuleEvent
	require.NoError(t, failures.events[0].DataAs(&data))
	assert.Equal(t, "missing", data.ID)
	assert.Contains(t, data.Error, "script not found")
}

func TestObserverRegistration(t *testing.T) {
	h := newHarness(t)
	first := &eventLog{id: "b-first"}
	second := &eventLog{id: "a-second"}

	require.NoError(t, h.loader.RegisterObserver(first))
	require.NoError(t, h.loader.RegisterObserver(second, EventTypeContextCreated))

	infos := h.loader.GetObservers()
	require.Len(t, infos, 2)
	assert.Equal(t, "a-second", infos[0].ID)
	assert.Equal(t, []string{EventTypeContextCreated}, infos[0].EventTypes)
	assert.Empty(t, infos[1].EventTypes)

	c := h.loader.NewContext(DefaultConfig())
	require.Len(t, second.events, 1)
	assert.Equal(t, "amd/"+c.Name(), second.events[0].Source())

	require.NoError(t, h.loader.UnregisterObserver(first))
	require.NoError(t, h.loader.UnregisterObserver(first))
	h.loader.NewContext(DefaultConfig())
	assert.Len(t, first.events, 1)
	assert.Len(t, second.events, 2)
}

func TestObserverFailuresAreContained(t *testing.T) {
	logs := &recordingLogger{}
	h := newHarness(t, WithLogger(logs))
	after := &eventLog{id: "z-after"}

	require.NoError(t, h.loader.RegisterObserver(NewFunctionalObserver("a-panics", func(context.Context, cloudevents.Event) error {
		panic("observer bug")
	})))
	require.NoError(t, h.loader.RegisterObserver(NewFunctionalObserver("b-errors", func(context.Context, cloudevents.Event) error {
		return errors.New("observer error")
	})))
	require.NoError(t, h.loader.RegisterObserver(after))

	assert.NotPanics(t, func() { h.loader.NewContext(DefaultConfig()) })
	assert.Len(t, after.events, 1)
	assert.Contains(t, logs.messages("error"), "Observer panicked")
	assert.Contains(t, logs.messages("error"), "Observer error")
}

func TestNotifyObserversRejectsInvalidEvents(t *testing.T) {
	h := newHarness(t)
	err := h.loader.NotifyObservers(context.Background(), cloudevents.NewEvent())
	assert.Error(t, err)
}
