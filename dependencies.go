package amd

// Pseudo-dependencies injected by the loader instead of being fetched.
const (
	DepRequire = "require"
	DepExports = "exports"
	DepModule  = "module"
	DepConfig  = "config"
)

// IsPseudoDependency reports whether id names a dependency the loader
// provides itself.
func IsPseudoDependency(id string) bool {
	switch id {
	case DepRequire, DepExports, DepModule, DepConfig:
		return true
	}
	return false
}

// DependencySet is the ordered list of dependency identifiers declared by
// one module. Entries are keyed by their original position; removing an
// entry leaves a gap that ForEach and Contains skip.
type DependencySet struct {
	ids     []string
	removed []bool
	count   int
}

// NewDependencySet copies ids into a new set.
func NewDependencySet(ids []string) *DependencySet {
	d := &DependencySet{
		ids:     append([]string(nil), ids...),
		removed: make([]bool, len(ids)),
		count:   len(ids),
	}
	return d
}

// Count returns the number of live entries.
func (d *DependencySet) Count() int {
	return d.count
}

// Len returns the number of positions, removed ones included.
func (d *DependencySet) Len() int {
	return len(d.ids)
}

// ForEach calls fn for every live entry in position order. fn may remove
// the entry it is given.
func (d *DependencySet) ForEach(fn func(index int, id string)) {
	for i, id := range d.ids {
		if d.removed[i] {
			continue
		}
		fn(i, id)
	}
}

// Remove deletes the entry at index. Removing a missing or already removed
// entry is a no-op.
func (d *DependencySet) Remove(index int) {
	if index < 0 || index >= len(d.ids) || d.removed[index] {
		return
	}
	d.removed[index] = true
	d.count--
}

// Contains reports whether id is a live entry.
func (d *DependencySet) Contains(id string) bool {
	for i, dep := range d.ids {
		if !d.removed[i] && dep == id {
			return true
		}
	}
	return false
}

// IDs returns the live entries in position order.
func (d *DependencySet) IDs() []string {
	out := make([]string, 0, d.count)
	d.ForEach(func(_ int, id string) {
		out = append(out, id)
	})
	return out
}
