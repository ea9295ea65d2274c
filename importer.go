package amd

import "fmt"

// importer drives one registration from Importing to Exported or Failed.
type importer struct {
	reg        *registration
	ctx        *Context
	id         string
	url        string
	onComplete func(any)
	onError    func(error)

	args      []any
	received  []bool
	remaining int
	done      bool
	record    *ImportRecord
}

func (imp *importer) start() {
	r, reg, l := imp.reg, imp.ctx.registry, imp.ctx.loader

	if err := imp.checkDuplicate(); err != nil {
		imp.fail(err)
		return
	}

	imp.args = make([]any, r.deps.Len())
	imp.received = make([]bool, r.deps.Len())
	r.deps.ForEach(func(i int, dep string) {
		switch dep {
		case DepRequire:
			var main *ModuleInfo
			if imp.id != "" {
				main = &ModuleInfo{ID: imp.id, URI: imp.url}
			}
			imp.args[i] = newRequire(imp.ctx, imp.id, main, imp.requireFailed)
		case DepExports:
			imp.args[i] = r.exports
		case DepModule:
			imp.args[i] = &ModuleInfo{ID: imp.id, URI: imp.url}
		case DepConfig:
			imp.args[i] = imp.ctx.Config()
		default:
			return
		}
		r.deps.Remove(i)
	})
	imp.remaining = r.deps.Count()

	imp.record = r.record
	if imp.record == nil {
		imp.record = &ImportRecord{ID: imp.id, Signal: r.signal, Deps: r.deps, Exports: r.exports}
	} else {
		imp.record.ID = imp.id
	}
	if imp.id != "" {
		reg.SetImporting(imp.id, imp.record)
	}
	if r.id != "" && r.id != imp.id {
		reg.SetImporting(r.id, imp.record)
		reg.Alias(imp.id, r.id)
	}

	l.logger.Debug("Module importing", "context", imp.ctx.name, "id", imp.id, "deps", r.deps.IDs())
	l.emit(EventTypeModuleImporting, imp.ctx, imp.id, imp.url, nil)

	if imp.remaining == 0 {
		imp.finish()
		return
	}
	r.deps.ForEach(func(i int, dep string) {
		if imp.done {
			return
		}
		l.loadModule(imp.ctx, dep, imp.id, func(v any) {
			imp.complete(i, v)
		}, imp.fail)
	})
}

// checkDuplicate rejects a registration whose identifiers are already
// exported or tracked by another import record.
func (imp *importer) checkDuplicate() error {
	reg := imp.ctx.registry
	for _, id := range []string{imp.id, imp.reg.id} {
		if id == "" {
			continue
		}
		if reg.ContainsExports(id) {
			return fmt.Errorf("%w: %s is already exported", ErrDuplicateDefinition, id)
		}
		if rec, ok := reg.Importing(id); ok && rec != imp.reg.record {
			return fmt.Errorf("%w: %s is already importing", ErrDuplicateDefinition, id)
		}
	}
	return nil
}

func (imp *importer) complete(index int, v any) {
	if imp.done || imp.received[index] {
		return
	}
	imp.received[index] = true
	imp.args[index] = v
	imp.remaining--
	if imp.remaining == 0 {
		imp.finish()
	}
}

func (imp *importer) finish() {
	r, reg, l := imp.reg, imp.ctx.registry, imp.ctx.loader

	value, err := r.factory.call(imp.id, imp.args)
	if err != nil {
		imp.fail(err)
		return
	}
	if r.exports != nil {
		value = r.exports
	}

	imp.done = true
	imp.untrack()
	if imp.id != "" {
		reg.SaveExports(imp.id, value)
	}
	if r.id != "" && !reg.SameModule(imp.id, r.id) {
		reg.SaveExports(r.id, value)
	}

	l.logger.Debug("Module exported", "context", imp.ctx.name, "id", imp.id)
	l.emit(EventTypeModuleExported, imp.ctx, imp.id, imp.url, nil)

	if imp.onComplete != nil {
		imp.onComplete(value)
	}
	r.signal.Resolve(value)
}

func (imp *importer) fail(err error) {
	if imp.done {
		return
	}
	imp.done = true
	imp.untrack()

	l := imp.ctx.loader
	l.logger.Debug("Module failed", "context", imp.ctx.name, "id", imp.id, "error", err)
	l.emit(EventTypeModuleFailed, imp.ctx, imp.id, imp.url, err)

	handled := imp.onError != nil || imp.reg.signal.HasErrorWaiters()
	if imp.onError != nil {
		imp.onError(err)
	}
	imp.reg.signal.Fail(err)
	if !handled {
		l.escalate(err)
	}
}

// requireFailed handles a failed Load made through the module's require
// without its own error callback. It fails the module until it has
// settled; later failures have no waiter and escalate.
func (imp *importer) requireFailed(err error) {
	if imp.done {
		imp.ctx.loader.escalate(err)
		return
	}
	imp.fail(err)
}

func (imp *importer) untrack() {
	reg := imp.ctx.registry
	rec := imp.record
	if rec == nil {
		rec = imp.reg.record
	}
	if rec == nil {
		return
	}
	for _, id := range []string{imp.id, imp.reg.id} {
		if id != "" {
			reg.RemoveImporting(id, rec)
		}
	}
}

// loadModule delivers the value of id, requested by the module relativeTo,
// to onComplete, fetching its script when nothing in c knows it yet.
func (l *Loader) loadModule(c *Context, id, relativeTo string, onComplete func(any), onError func(error)) {
	reg := c.registry
	resolved := Resolve(id, relativeTo)

	if v, ok := reg.Exports(resolved); ok {
		onComplete(v)
		return
	}

	if rec, ok := reg.Importing(resolved); ok {
		if isCircular(reg, resolved, relativeTo) {
			l.logger.Debug("Circular dependency", "context", c.name, "id", resolved, "requiredBy", relativeTo)
			var partial any
			if rec.Exports != nil {
				partial = rec.Exports
			}
			onComplete(partial)
			return
		}
		rec.Signal.OnResolved(onComplete)
		rec.Signal.OnError(onError)
		return
	}

	url := ToURL(id, relativeTo, c.config, "")
	if sig, ok := reg.Loading(url); ok {
		sig.OnResolved(onComplete)
		sig.OnError(onError)
		return
	}

	sig := NewSignal()
	reg.SetLoading(url, sig)
	l.logger.Debug("Module loading", "context", c.name, "id", resolved, "url", url)
	l.emit(EventTypeModuleLoading, c, resolved, url, nil)
	l.fetch(c, resolved, url, sig, onComplete, onError)
}

// fetch runs one script load. Exactly one of the fetcher's completion, its
// error and the timeout settles the load.
func (l *Loader) fetch(c *Context, id, url string, sig *Signal, onComplete func(any), onError func(error)) {
	timeout := c.config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	settled := false
	var stop func() bool
	settle := func() bool {
		if settled {
			return false
		}
		settled = true
		if stop != nil {
			stop()
		}
		c.registry.RemoveLoading(url)
		return true
	}
	failed := func(err error) {
		l.logger.Debug("Module fetch failed", "context", c.name, "id", id, "url", url, "error", err)
		l.emit(EventTypeModuleFailed, c, id, url, err)
		onError(err)
		sig.Fail(err)
	}

	stop = l.sched.After(timeout, func() {
		if settle() {
			failed(fmt.Errorf("%w: %w: %s after %s", ErrFetchFailed, ErrFetchTimeout, url, timeout))
		}
	})

	l.fetcher.Fetch(l, url, timeout, func(string) {
		if !settle() {
			return
		}
		r := l.queue.Dequeue()
		if r == nil {
			failed(fmt.Errorf("%w: %s", ErrNoDefinition, url))
			return
		}
		r.run(c, id, url, func(v any) {
			onComplete(v)
			sig.Resolve(v)
		}, func(err error) {
			onError(err)
			sig.Fail(err)
		})
	}, func(err error) {
		if settle() {
			failed(err)
		}
	})
}

// isCircular reports whether loading dep from current would wait on a
// module that is itself waiting on current.
func isCircular(reg *Registry, dep, current string) bool {
	if reg.SameModule(dep, current) {
		return true
	}

	visited := make(map[*ImportRecord]bool)
	var reaches func(id string) bool
	reaches = func(id string) bool {
		rec, ok := reg.Importing(id)
		if !ok || visited[rec] || rec.Signal.IsTerminal() {
			return false
		}
		visited[rec] = true

		found := false
		rec.Deps.ForEach(func(_ int, d string) {
			if found {
				return
			}
			next := Resolve(d, rec.ID)
			if reg.SameModule(next, current) || reaches(next) {
				found = true
			}
		})
		return found
	}
	return reaches(dep)
}
