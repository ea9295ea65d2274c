package amd

import (
	"context"
	"sync"
)

var (
	defaultMu     sync.Mutex
	defaultLoader *Loader
)

// Default returns the process-wide loader, creating it on first use with
// its own event loop.
func Default() *Loader {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLoader == nil {
		defaultLoader = NewLoader()
	}
	return defaultLoader
}

// SetDefault replaces the process-wide loader and returns the previous
// one, which may be nil.
func SetDefault(l *Loader) *Loader {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultLoader
	defaultLoader = l
	return prev
}

// Define defines a module into the default context of the process-wide
// loader and waits until the definition is registered. It must not be
// called from the scheduler thread; scripts use their ScriptHost instead.
func Define(def Definition) error {
	l := Default()
	var err error
	if doErr := l.Do(context.Background(), func() {
		err = l.Define(def)
	}); doErr != nil {
		return doErr
	}
	return err
}

// NewContext creates a context on the process-wide loader.
func NewContext(cfg Config) *Context {
	return Default().NewContext(cfg)
}

// OnError registers an error hook on the process-wide loader.
func OnError(fn func(error)) {
	Default().OnError(fn)
}
