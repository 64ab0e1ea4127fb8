package registry

import "fmt"

// Type is anything registrable by a stable id and an optional human name.
type Type interface {
	TypeID() string
	TypeName() string
}

// NotFoundError indicates a lookup miss.
type NotFoundError struct {
	Key string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("type %s not registered", e.Key)
}

// Registry indexes types by id and by name. It is populated once at startup
// and read-only afterwards; no locking is provided.
type Registry struct {
	byID   map[string]Type
	byName map[string]Type
	order  []string
}

func New() *Registry {
	return &Registry{
		byID:   map[string]Type{},
		byName: map[string]Type{},
	}
}

// Register indexes t under its id and name. Without force the first
// registration wins, so built-in defaults can only be overridden by
// configuration order, never by an accidental double registration.
func (r *Registry) Register(t Type, force bool) {
	id := t.TypeID()
	name := t.TypeName()
	if name == "" {
		name = id
	}
	if !force {
		if _, ok := r.byID[id]; ok {
			return
		}
		if _, ok := r.byName[name]; ok {
			return
		}
	}
	prev, replacing := r.byID[id]
	if !replacing {
		r.order = append(r.order, id)
	} else {
		// Drop the superseded descriptor's name entry so a stale name
		// never resolves past a forced replacement.
		prevName := prev.TypeName()
		if prevName == "" {
			prevName = prev.TypeID()
		}
		if r.byName[prevName] == prev {
			delete(r.byName, prevName)
		}
	}
	r.byID[id] = t
	r.byName[name] = t
}

// Lookup returns the type registered under id. With quiet it returns def on
// a miss instead of an error.
func (r *Registry) Lookup(id string, quiet bool, def Type) (Type, error) {
	if t, ok := r.byID[id]; ok {
		return t, nil
	}
	if quiet {
		return def, nil
	}
	return nil, NotFoundError{Key: id}
}

// LookupByName is Lookup indirected through the name index.
func (r *Registry) LookupByName(name string, quiet bool, def Type) (Type, error) {
	if t, ok := r.byName[name]; ok {
		return t, nil
	}
	if quiet {
		return def, nil
	}
	return nil, NotFoundError{Key: name}
}

// All yields registered types in registration order.
func (r *Registry) All() []Type {
	out := make([]Type, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}
