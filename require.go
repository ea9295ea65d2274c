package amd

import "fmt"

// Require loads and looks up modules relative to the module it was handed
// to. A Require from Context.Require resolves against the context root.
type Require struct {
	ctx     *Context
	base    string
	onError func(error)

	// Main describes the module this require belongs to, or nil for a
	// context-level require.
	Main *ModuleInfo
}

func newRequire(c *Context, base string, main *ModuleInfo, onError func(error)) *Require {
	return &Require{ctx: c, base: base, onError: onError, Main: main}
}

// Context returns the context the require operates on.
func (r *Require) Context() *Context {
	return r.ctx
}

// Get returns the value of an exported module. "require" yields a fresh
// Require bound to the same module and "config" a configuration snapshot.
// A module that is still importing yields its CommonJS exports when it
// declared some.
func (r *Require) Get(id string) (any, error) {
	switch id {
	case DepRequire:
		return newRequire(r.ctx, r.base, r.Main, r.onError), nil
	case DepConfig:
		return r.ctx.Config(), nil
	case DepModule:
		if r.Main == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotExported, id)
		}
		return r.Main, nil
	}

	resolved := Resolve(id, r.base)
	if v, ok := r.ctx.registry.Exports(resolved); ok {
		return v, nil
	}
	if rec, ok := r.ctx.registry.Importing(resolved); ok && rec.Exports != nil {
		return rec.Exports, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotExported, id)
}

// Load requires ids and calls onLoad with their values in order once all
// are available. The first failure goes to onError, or to the require's
// owning module, or to the loader's error hooks; later results are
// ignored. An empty ids list calls onLoad immediately.
func (r *Require) Load(ids []string, onLoad func(args ...any), onError func(error)) error {
	if onLoad == nil {
		return fmt.Errorf("%w: expected a callback", ErrInvalidFactory)
	}
	if onError == nil {
		onError = r.onError
	}
	if onError == nil {
		onError = r.ctx.loader.escalate
	}

	values := make([]any, len(ids))
	received := make([]bool, len(ids))
	remaining := len(ids)
	failed := false

	if remaining == 0 {
		onLoad()
		return nil
	}

	complete := func(i int, v any) {
		if failed || received[i] {
			return
		}
		received[i] = true
		values[i] = v
		remaining--
		if remaining == 0 {
			onLoad(values...)
		}
	}
	fail := func(err error) {
		if failed {
			return
		}
		failed = true
		onError(err)
	}

	for i, id := range ids {
		i, id := i, id
		if failed {
			break
		}
		if IsPseudoDependency(id) {
			if id == DepExports {
				complete(i, nil)
				continue
			}
			v, err := r.Get(id)
			if err != nil {
				fail(err)
				break
			}
			complete(i, v)
			continue
		}
		r.ctx.loader.loadModule(r.ctx, id, r.base, func(v any) {
			complete(i, v)
		}, fail)
	}
	return nil
}

// ToURL maps a resource path with an extension to its URL, relative to
// the require's module.
func (r *Require) ToURL(resource string) (string, error) {
	return ResourceURL(resource, r.base, r.ctx.config)
}
