package amd

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ScriptHost is what a fetched script executes against: the loader's
// global define and its scheduler thread.
type ScriptHost interface {
	// Define defines a module into the loader's default context.
	Define(def Definition) error

	// Defer runs fn on the loader's scheduler thread.
	Defer(fn func())
}

// Fetcher loads and executes the script at a URL. Exactly one of
// onComplete and onError must be called, on the host's scheduler thread,
// after the script has executed. The loader enforces timeout itself as
// well; fetchers may use it to abandon work early.
type Fetcher interface {
	Fetch(host ScriptHost, url string, timeout time.Duration, onComplete func(url string), onError func(err error))
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(host ScriptHost, url string, timeout time.Duration, onComplete func(url string), onError func(err error))

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(host ScriptHost, url string, timeout time.Duration, onComplete func(url string), onError func(err error)) {
	f(host, url, timeout, onComplete, onError)
}

// Script is an in-memory script. Executing it usually calls host.Define.
// A returned error is reported as a failed load.
type Script func(host ScriptHost) error

// ScriptTable is a Fetcher serving in-memory scripts by URL. Scripts run
// on the scheduler thread one task after the fetch starts, so loads are
// asynchronous like real ones.
type ScriptTable struct {
	mu      sync.RWMutex
	scripts map[string]Script
	fetched map[string]int
}

// NewScriptTable creates an empty table.
func NewScriptTable() *ScriptTable {
	return &ScriptTable{
		scripts: make(map[string]Script),
		fetched: make(map[string]int),
	}
}

// Add registers the script served at url, replacing any previous one.
func (t *ScriptTable) Add(url string, script Script) *ScriptTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scripts[url] = script
	return t
}

// AddDefinition registers a script that defines def.
func (t *ScriptTable) AddDefinition(url string, def Definition) *ScriptTable {
	return t.Add(url, func(host ScriptHost) error {
		return host.Define(def)
	})
}

// Fetched returns how many times url has been fetched.
func (t *ScriptTable) Fetched(url string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fetched[url]
}

// Fetch implements Fetcher.
func (t *ScriptTable) Fetch(host ScriptHost, url string, _ time.Duration, onComplete func(string), onError func(error)) {
	t.mu.Lock()
	script, ok := t.scripts[url]
	t.fetched[url]++
	t.mu.Unlock()

	host.Defer(func() {
		if !ok {
			onError(fmt.Errorf("%w: %w: %s", ErrFetchFailed, ErrScriptNotFound, url))
			return
		}
		if err := script(host); err != nil {
			onError(fmt.Errorf("%w: %s: %w", ErrFetchFailed, url, err))
			return
		}
		onComplete(url)
	})
}

// FetcherChain tries each fetcher in turn, moving to the next when one
// reports ErrScriptNotFound.
type FetcherChain []Fetcher

// Fetch implements Fetcher.
func (c FetcherChain) Fetch(host ScriptHost, url string, timeout time.Duration, onComplete func(string), onError func(error)) {
	c.fetch(0, host, url, timeout, onComplete, onError)
}

func (c FetcherChain) fetch(i int, host ScriptHost, url string, timeout time.Duration, onComplete func(string), onError func(error)) {
	if i >= len(c) {
		host.Defer(func() {
			onError(fmt.Errorf("%w: %w: %s", ErrFetchFailed, ErrScriptNotFound, url))
		})
		return
	}
	c[i].Fetch(host, url, timeout, onComplete, func(err error) {
		if isNotFound(err) && i+1 < len(c) {
			c.fetch(i+1, host, url, timeout, onComplete, onError)
			return
		}
		onError(err)
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrScriptNotFound)
}
