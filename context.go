package amd

// Context is an isolated module namespace: its own registry, alias table
// and configuration, sharing the loader's scheduler, fetcher and import
// queue.
type Context struct {
	loader   *Loader
	name     string
	registry *Registry
	config   Config
}

// Name identifies the context in logs and events.
func (c *Context) Name() string {
	return c.name
}

// Loader returns the owning loader.
func (c *Context) Loader() *Loader {
	return c.loader
}

// Registry returns the context's module state.
func (c *Context) Registry() *Registry {
	return c.registry
}

// Config returns a snapshot of the context's configuration.
func (c *Context) Config() Config {
	return c.config.Snapshot()
}

// Configure replaces the context's configuration. Modules already loaded
// keep the URLs they were loaded from.
func (c *Context) Configure(cfg Config) {
	c.config = cfg.Snapshot()
}

// Require returns a require bound to no module: relative identifiers
// resolve against the context root.
func (c *Context) Require() *Require {
	return newRequire(c, "", nil, nil)
}

// Define registers a module definition. The registration is queued until
// a finished script load claims it, or until the next scheduler turn, when
// it runs as an inline definition of this context.
func (c *Context) Define(def Definition) error {
	r, err := c.newRegistration(def)
	if err != nil {
		c.loader.report(err)
		return err
	}
	c.enqueue(r)
	return nil
}

// DefineAll registers defs as one unit. When any definition is rejected
// none of them is queued.
func (c *Context) DefineAll(defs []Definition) error {
	regs := make([]*registration, 0, len(defs))
	for _, def := range defs {
		r, err := c.newRegistration(def)
		if err != nil {
			for _, prev := range regs {
				prev.withdraw()
			}
			c.loader.report(err)
			return err
		}
		regs = append(regs, r)
	}
	for _, r := range regs {
		c.enqueue(r)
	}
	return nil
}

func (c *Context) enqueue(r *registration) {
	l := c.loader
	l.queue.Enqueue(r)
	l.logger.Debug("Module defined", "context", c.name, "id", r.id, "deps", r.deps.IDs())
	l.emit(EventTypeModuleDefined, c, r.id, "", nil)

	l.sched.Defer(func() {
		if l.queue.Remove(r) {
			r.run(c, "", "", nil, nil)
		}
	})
}
