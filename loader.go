package amd

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// Features are the capability flags published as define.amd.
type Features struct {
	Plugins       bool `json:"plugins" yaml:"plugins"`
	PluginDynamic bool `json:"pluginDynamic" yaml:"pluginDynamic"`
	Multiversion  bool `json:"multiversion" yaml:"multiversion"`
	DefaultDeps   bool `json:"defaultDeps" yaml:"defaultDeps"`
	JQuery        bool `json:"jQuery" yaml:"jQuery"`
}

// Loader owns the scheduler, the fetcher, the import queue and the default
// context. Contexts created by NewContext share all of them.
//
// Except where noted, Loader, Context and Require methods must be called
// on the scheduler thread: from a scheduler task, a factory, a callback,
// or the goroutine driving a StepScheduler. Use Do or Import from other
// goroutines.
type Loader struct {
	sched      Scheduler
	ownedLoop  *EventLoop
	fetcher    Fetcher
	queue      *importQueue
	logger     Logger
	defaultCtx *Context
	contexts   int

	mu        sync.Mutex
	hooks     []func(error)
	observers map[string]*observerRegistration
}

// Option configures a Loader.
type Option func(*Loader)

// WithScheduler sets the scheduler. The default is a started EventLoop
// owned by the loader.
func WithScheduler(s Scheduler) Option {
	return func(l *Loader) {
		l.sched = s
	}
}

// WithFetcher sets the fetch collaborator. The default fails every fetch
// with ErrScriptNotFound.
func WithFetcher(f Fetcher) Option {
	return func(l *Loader) {
		l.fetcher = f
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithConfig sets the configuration of the default context.
func WithConfig(cfg Config) Option {
	return func(l *Loader) {
		l.defaultCtx.config = cfg.Snapshot()
	}
}

// WithDequeueOrder sets how finished loads are paired with registrations.
func WithDequeueOrder(order DequeueOrder) Option {
	return func(l *Loader) {
		l.queue.order = order
	}
}

// WithObserver registers an observer at construction.
func WithObserver(o Observer, eventTypes ...string) Option {
	return func(l *Loader) {
		_ = l.RegisterObserver(o, eventTypes...)
	}
}

// WithErrorHook registers an error hook at construction.
func WithErrorHook(fn func(error)) Option {
	return func(l *Loader) {
		l.OnError(fn)
	}
}

// NewLoader creates a loader with its default context.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		fetcher:   FetcherChain{},
		queue:     newImportQueue(FIFO),
		logger:    NopLogger(),
		observers: make(map[string]*observerRegistration),
	}
	l.defaultCtx = &Context{
		loader:   l,
		name:     "default",
		registry: NewRegistry(),
		config:   DefaultConfig(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.sched == nil {
		loop := NewEventLoop()
		loop.Start()
		l.sched = loop
		l.ownedLoop = loop
	}
	return l
}

// Context returns the default context.
func (l *Loader) Context() *Context {
	return l.defaultCtx
}

// NewContext creates an isolated context with its own registry and
// configuration. It is safe to call from any goroutine.
func (l *Loader) NewContext(cfg Config) *Context {
	l.mu.Lock()
	l.contexts++
	name := "context-" + strconv.Itoa(l.contexts)
	l.mu.Unlock()

	c := &Context{
		loader:   l,
		name:     name,
		registry: NewRegistry(),
		config:   cfg.Snapshot(),
	}
	l.logger.Debug("Context created", "context", name, "baseUrl", cfg.BaseURL)
	l.emit(EventTypeContextCreated, c, "", "", nil)
	return c
}

// Define defines a module into the default context. Together with Defer
// it makes the loader the ScriptHost fetched scripts run against.
func (l *Loader) Define(def Definition) error {
	return l.defaultCtx.Define(def)
}

// DefineAll defines several modules into the default context, all or
// none.
func (l *Loader) DefineAll(defs []Definition) error {
	return l.defaultCtx.DefineAll(defs)
}

// Defer runs fn on the scheduler thread. Safe from any goroutine.
func (l *Loader) Defer(fn func()) {
	l.sched.Defer(fn)
}

// Scheduler returns the loader's scheduler.
func (l *Loader) Scheduler() Scheduler {
	return l.sched
}

// Logger returns the loader's logger.
func (l *Loader) Logger() Logger {
	return l.logger
}

// Features returns the capability flags of this loader.
func (l *Loader) Features() Features {
	return Features{Multiversion: true}
}

// OnError registers a hook receiving module errors nothing else handled.
// Safe from any goroutine.
func (l *Loader) OnError(fn func(error)) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, fn)
}

func (l *Loader) errorHooks() []func(error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	hooks := make([]func(error), len(l.hooks))
	copy(hooks, l.hooks)
	return hooks
}

// escalate hands an error no waiter handled to the error hooks. Without
// hooks it panics on the scheduler thread.
func (l *Loader) escalate(err error) {
	l.logger.Error("Unhandled module error", "error", err)
	l.emit(EventTypeErrorUnhandled, nil, "", "", err)
	hooks := l.errorHooks()
	if len(hooks) == 0 {
		panic(err)
	}
	for _, hook := range hooks {
		hook(err)
	}
}

// report passes a definition error to the hooks, if any. The error is
// also returned to the caller, so nothing panics here.
func (l *Loader) report(err error) {
	l.logger.Warn("Definition rejected", "error", err)
	for _, hook := range l.errorHooks() {
		hook(err)
	}
}

// Do runs fn on the scheduler thread and waits for it. It must not be
// called from the scheduler thread.
func (l *Loader) Do(ctx context.Context, fn func()) error {
	if l.closed() {
		return ErrLoaderClosed
	}
	done := make(chan struct{})
	l.sched.Defer(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Import requires ids in c, or the default context when c is nil, and
// waits for their values. It must not be called from the scheduler thread.
func (l *Loader) Import(ctx context.Context, c *Context, ids ...string) ([]any, error) {
	if c == nil {
		c = l.defaultCtx
	}
	if l.closed() {
		return nil, ErrLoaderClosed
	}

	type result struct {
		values []any
		err    error
	}
	ch := make(chan result, 1)
	send := func(r result) {
		select {
		case ch <- r:
		default:
		}
	}

	l.sched.Defer(func() {
		err := c.Require().Load(ids, func(args ...any) {
			send(result{values: args})
		}, func(err error) {
			send(result{err: err})
		})
		if err != nil {
			send(result{err: err})
		}
	})

	select {
	case r := <-ch:
		return r.values, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("import %v: %w", ids, ctx.Err())
	}
}

func (l *Loader) closed() bool {
	if loop, ok := l.sched.(*EventLoop); ok {
		return loop.Closed()
	}
	return false
}

// Close stops the event loop the loader created for itself. Loaders given
// a scheduler leave it to their caller.
func (l *Loader) Close() {
	if l.ownedLoop != nil {
		l.ownedLoop.Close()
	}
}
