package amd

import "sort"

// Exports is a CommonJS exports object. Factories that declare the
// "exports" dependency populate it in place.
type Exports map[string]any

// ModuleInfo is handed to factories that declare the "module" dependency.
type ModuleInfo struct {
	ID  string `json:"id" yaml:"id"`
	URI string `json:"uri" yaml:"uri"`
}

// ImportRecord tracks a module whose factory is registered but whose
// dependencies are still loading.
type ImportRecord struct {
	// ID is the identifier the module is importing under.
	ID string

	// Signal completes when the module is exported or fails.
	Signal *Signal

	// Deps are the module's remaining real dependencies.
	Deps *DependencySet

	// Exports is the CommonJS exports object, if the module declared one.
	Exports Exports
}

// Registry holds the per-context module state: exported values, import
// records, in-flight script loads and the alias table. Every lookup goes
// through the alias table first.
type Registry struct {
	exports   map[string]any
	aliases   map[string]string
	importing map[string]*ImportRecord
	loading   map[string]*Signal
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		exports:   make(map[string]any),
		aliases:   make(map[string]string),
		importing: make(map[string]*ImportRecord),
		loading:   make(map[string]*Signal),
	}
}

func (r *Registry) key(id string) string {
	if alias, ok := r.aliases[id]; ok {
		return alias
	}
	return id
}

// SaveExports stores the exported value of a module.
func (r *Registry) SaveExports(id string, value any) {
	r.exports[r.key(id)] = value
}

// Exports returns the exported value of a module.
func (r *Registry) Exports(id string) (any, bool) {
	v, ok := r.exports[r.key(id)]
	return v, ok
}

// ContainsExports reports whether a module has been exported.
func (r *Registry) ContainsExports(id string) bool {
	_, ok := r.exports[r.key(id)]
	return ok
}

// RemoveExports deletes an exported value.
func (r *Registry) RemoveExports(id string) {
	delete(r.exports, r.key(id))
}

// Alias makes every lookup of id resolve under alias. Exports already
// saved under id move to alias.
func (r *Registry) Alias(id, alias string) {
	if id == alias || id == "" || alias == "" {
		return
	}
	if v, ok := r.exports[id]; ok {
		if _, taken := r.exports[alias]; !taken {
			r.exports[alias] = v
		}
		delete(r.exports, id)
	}
	r.aliases[id] = alias
}

// AliasOf returns the alias bound to id, if any.
func (r *Registry) AliasOf(id string) (string, bool) {
	alias, ok := r.aliases[id]
	return alias, ok
}

// Importing returns the import record tracked under id or its alias.
func (r *Registry) Importing(id string) (*ImportRecord, bool) {
	if rec, ok := r.importing[id]; ok {
		return rec, true
	}
	rec, ok := r.importing[r.key(id)]
	return rec, ok
}

// SetImporting tracks rec under id.
func (r *Registry) SetImporting(id string, rec *ImportRecord) {
	r.importing[id] = rec
}

// RemoveImporting stops tracking rec under id. Another record tracked
// under the same id is left alone.
func (r *Registry) RemoveImporting(id string, rec *ImportRecord) {
	if cur, ok := r.importing[id]; ok && cur == rec {
		delete(r.importing, id)
	}
}

// SameModule reports whether a and b name the same module once aliases
// are applied.
func (r *Registry) SameModule(a, b string) bool {
	return a == b || r.key(a) == r.key(b)
}

// Loading returns the signal of an in-flight script load.
func (r *Registry) Loading(url string) (*Signal, bool) {
	s, ok := r.loading[url]
	return s, ok
}

// SetLoading tracks an in-flight script load.
func (r *Registry) SetLoading(url string, s *Signal) {
	r.loading[url] = s
}

// RemoveLoading stops tracking a script load.
func (r *Registry) RemoveLoading(url string) {
	delete(r.loading, url)
}

// RegistrySnapshot lists the keys of every table, sorted.
type RegistrySnapshot struct {
	Exported  []string          `json:"exported" yaml:"exported"`
	Importing []string          `json:"importing" yaml:"importing"`
	Loading   []string          `json:"loading" yaml:"loading"`
	Aliases   map[string]string `json:"aliases" yaml:"aliases"`
}

// Snapshot describes the registry state.
func (r *Registry) Snapshot() RegistrySnapshot {
	snap := RegistrySnapshot{
		Exported:  sortedKeys(r.exports),
		Importing: sortedKeys(r.importing),
		Loading:   sortedKeys(r.loading),
		Aliases:   make(map[string]string, len(r.aliases)),
	}
	for k, v := range r.aliases {
		snap.Aliases[k] = v
	}
	return snap
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
