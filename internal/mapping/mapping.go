// Package mapping holds the entity and association metadata shared by every
// shard. Shards hold the same schema; only their rows differ.
package mapping

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnknownEntity is returned when an entity name is not registered.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrUnknownAssociation is returned when an entity has no association
	// with the requested name.
	ErrUnknownAssociation = errors.New("unknown association")
)

// Entity maps a logical entity to its table.
type Entity struct {
	Name         string
	Table        string
	ID           string // Primary key column, "id" when empty
	Associations map[string]Association
}

// IDColumn returns the primary key column.
func (e Entity) IDColumn() string {
	if e.ID == "" {
		return "id"
	}
	return e.ID
}

// Association is a traversable relation from one entity to another.
//
// LocalKey is a column of the owning entity, ForeignKey a column of Target:
//
//	JOIN <Target.Table> ON <owner>.<LocalKey> = <target>.<ForeignKey>
type Association struct {
	Name       string
	Target     string
	LocalKey   string
	ForeignKey string
}

// Registry is an immutable-after-build set of entities.
// Lookups are safe for concurrent use once registration is finished.
type Registry struct {
	entities map[string]Entity
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]Entity)}
}

// Register adds an entity. Names and tables are required and names must be unique.
func (r *Registry) Register(e Entity) error {
	if e.Name == "" {
		return fmt.Errorf("entity name is required")
	}
	if e.Table == "" {
		return fmt.Errorf("entity %q: table is required", e.Name)
	}
	if _, exists := r.entities[e.Name]; exists {
		return fmt.Errorf("entity %q registered twice", e.Name)
	}
	for name, a := range e.Associations {
		if a.Name == "" {
			a.Name = name
			e.Associations[name] = a
		}
		if a.Name != name {
			return fmt.Errorf("entity %q: association key %q does not match name %q", e.Name, name, a.Name)
		}
		if a.Target == "" || a.LocalKey == "" || a.ForeignKey == "" {
			return fmt.Errorf("entity %q: association %q needs target, local_key and foreign_key", e.Name, name)
		}
	}
	r.entities[e.Name] = e
	return nil
}

// Entity looks up an entity by name.
func (r *Registry) Entity(name string) (Entity, error) {
	e, ok := r.entities[name]
	if !ok {
		return Entity{}, fmt.Errorf("%w %q", ErrUnknownEntity, name)
	}
	return e, nil
}

// Association resolves an association of entity to its target entity.
func (r *Registry) Association(entity, name string) (Association, Entity, error) {
	owner, err := r.Entity(entity)
	if err != nil {
		return Association{}, Entity{}, err
	}
	a, ok := owner.Associations[name]
	if !ok {
		return Association{}, Entity{}, fmt.Errorf("%w %q on entity %q", ErrUnknownAssociation, name, entity)
	}
	target, err := r.Entity(a.Target)
	if err != nil {
		return Association{}, Entity{}, fmt.Errorf("association %q on entity %q: %w", name, entity, err)
	}
	return a, target, nil
}

// Validate checks that every association targets a registered entity.
func (r *Registry) Validate() error {
	var errs []error
	for _, name := range r.Names() {
		e := r.entities[name]
		assocs := make([]string, 0, len(e.Associations))
		for a := range e.Associations {
			assocs = append(assocs, a)
		}
		sort.Strings(assocs)
		for _, a := range assocs {
			target := e.Associations[a].Target
			if _, ok := r.entities[target]; !ok {
				errs = append(errs, fmt.Errorf("entity %q association %q: %w %q", name, a, ErrUnknownEntity, target))
			}
		}
	}
	return errors.Join(errs...)
}

// Names returns registered entity names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
