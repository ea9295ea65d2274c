package amd

import "fmt"

// registration is one Define call waiting to be paired with a script load
// or drained as an inline definition.
type registration struct {
	ctx     *Context
	id      string
	deps    *DependencySet
	factory *factory
	signal  *Signal
	exports Exports
	record  *ImportRecord
}

func (c *Context) newRegistration(def Definition) (*registration, error) {
	if def.ID != "" && !IsValidExplicitIdentifier(def.ID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, def.ID)
	}

	deps := def.Deps
	if deps == nil {
		inferred, err := inferDependencies(def)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", displayID(def.ID), err)
		}
		deps = inferred
	}

	f, err := newFactory(def)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", displayID(def.ID), err)
	}

	r := &registration{
		ctx:     c,
		id:      def.ID,
		deps:    NewDependencySet(deps),
		factory: f,
		signal:  NewSignal(),
	}
	if r.deps.Contains(DepExports) {
		r.exports = Exports{}
	}

	// Only in-flight records are checked here. Registrations through the
	// default context may be adopted by another context, so exports are
	// checked when the registration runs in the context that owns it.
	if def.ID != "" {
		if _, ok := c.registry.Importing(def.ID); ok {
			return nil, fmt.Errorf("%w: %s is already importing", ErrDuplicateDefinition, def.ID)
		}
		r.record = &ImportRecord{ID: def.ID, Signal: r.signal, Deps: r.deps, Exports: r.exports}
		if !c.registry.ContainsExports(def.ID) {
			c.registry.SetImporting(def.ID, r.record)
		}
	}
	return r, nil
}

// withdraw drops the record of a registration that was never queued.
func (r *registration) withdraw() {
	if r.record != nil {
		r.ctx.registry.RemoveImporting(r.id, r.record)
	}
}

// adopt moves a registration made through the default context into the
// context whose fetch dequeued it.
func (r *registration) adopt(target *Context) {
	from := r.ctx
	r.ctx = target
	if r.record == nil {
		return
	}
	from.registry.RemoveImporting(r.id, r.record)
	if _, taken := target.registry.Importing(r.id); !taken && !target.registry.ContainsExports(r.id) {
		target.registry.SetImporting(r.id, r.record)
	}
	target.loader.logger.Debug("Definition adopted", "id", r.id, "from", from.name, "to", target.name)
	target.loader.emit(EventTypeContextAdopted, target, r.id, "", nil)
}

// run moves the registration into Importing under workingID, which is the
// identifier it was requested as, or empty for inline definitions.
func (r *registration) run(parent *Context, workingID, url string, onComplete func(any), onError func(error)) {
	l := parent.loader
	if r.ctx != parent && r.ctx == l.defaultCtx {
		r.adopt(parent)
	}

	id := workingID
	if id == "" {
		id = r.id
	}
	imp := &importer{
		reg:        r,
		ctx:        r.ctx,
		id:         id,
		url:        url,
		onComplete: onComplete,
		onError:    onError,
	}
	imp.start()
}
