// Package compiler turns a CUE configuration into the entity registry, the
// shard list and the named queries the coordinator runs.
//
// A configuration declares three top-level fields:
//
//	shards: [{id: "eu", path: "eu.db"}, {id: "us", path: "us.db"}]
//
//	entity: customers: {
//		table: "customers"
//		associations: orders: {target: "orders", local_key: "id", foreign_key: "customer_id"}
//	}
//
//	query: big_spenders: {
//		entity: "customers"
//		alias:  "c"
//		subcriteria: [{association: "orders", alias: "o", restrictions: ["o.total > 100"]}]
//	}
//
// Compilation uses the CUE SDK's Go API directly, never the cue binary.
package compiler

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue"

	"github.com/ruilorenzetti/hibernate-shards/internal/mapping"
)

// Config is a compiled configuration.
type Config struct {
	Registry *mapping.Registry
	Shards   []ShardConfig
	Queries  map[string]*Query
}

// ShardConfig is one physical shard. Path is the SQLite file as written in
// the configuration; callers resolve relative paths.
type ShardConfig struct {
	ID   string
	Path string
}

// QueryNames returns the query names, sorted.
func (c *Config) QueryNames() []string {
	names := make([]string, 0, len(c.Queries))
	for name := range c.Queries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Query returns a named query.
func (c *Config) Query(name string) (*Query, error) {
	q, ok := c.Queries[name]
	if !ok {
		return nil, fmt.Errorf("unknown query %q (have %v)", name, c.QueryNames())
	}
	return q, nil
}

// CompileConfig parses a CUE value into a Config.
//
// The value should be the whole configuration, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(src)
//	cfg, err := CompileConfig(v)
//
// Compilation stops at the first error. Associations named by queries are
// resolved against the entities declared in the same value.
func CompileConfig(v cue.Value) (*Config, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError("config", err)
	}

	registry, err := compileEntities(v)
	if err != nil {
		return nil, err
	}

	shards, err := compileShards(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{Registry: registry, Shards: shards, Queries: map[string]*Query{}}

	queryVal := v.LookupPath(cue.ParsePath("query"))
	if !queryVal.Exists() {
		return cfg, nil // Queries are optional; scenarios and plans can stand alone
	}
	iter, err := queryVal.Fields()
	if err != nil {
		return nil, formatCUEError("query", err)
	}
	for iter.Next() {
		q, err := compileQuery(registry, iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		cfg.Queries[q.Name] = q
	}
	return cfg, nil
}

// compileEntities builds the registry from the entity struct.
func compileEntities(v cue.Value) (*mapping.Registry, error) {
	entityVal := v.LookupPath(cue.ParsePath("entity"))
	if !entityVal.Exists() {
		return nil, &CompileError{Field: "entity", Message: "at least one entity is required", Pos: v.Pos()}
	}
	iter, err := entityVal.Fields()
	if err != nil {
		return nil, formatCUEError("entity", err)
	}

	registry := mapping.NewRegistry()
	for iter.Next() {
		name := iter.Label()
		ev := iter.Value()
		field := "entity." + name

		e := mapping.Entity{Name: name, Associations: map[string]mapping.Association{}}
		if e.Table, err = requiredString(ev, field, "table"); err != nil {
			return nil, err
		}
		if e.ID, err = optionalString(ev, field, "id"); err != nil {
			return nil, err
		}

		assocVal := ev.LookupPath(cue.ParsePath("associations"))
		if assocVal.Exists() {
			ai, err := assocVal.Fields()
			if err != nil {
				return nil, formatCUEError(field+".associations", err)
			}
			for ai.Next() {
				aname := ai.Label()
				av := ai.Value()
				afield := field + ".associations." + aname
				a := mapping.Association{Name: aname}
				if a.Target, err = requiredString(av, afield, "target"); err != nil {
					return nil, err
				}
				if a.LocalKey, err = requiredString(av, afield, "local_key"); err != nil {
					return nil, err
				}
				if a.ForeignKey, err = requiredString(av, afield, "foreign_key"); err != nil {
					return nil, err
				}
				e.Associations[aname] = a
			}
		}

		if err := registry.Register(e); err != nil {
			return nil, &CompileError{Field: field, Message: err.Error(), Pos: ev.Pos()}
		}
	}

	if err := registry.Validate(); err != nil {
		return nil, &CompileError{Field: "entity", Message: err.Error(), Pos: entityVal.Pos()}
	}
	return registry, nil
}

// compileShards reads the shard list. Order is kept: it is the build and
// output order of every fan-out.
func compileShards(v cue.Value) ([]ShardConfig, error) {
	shardsVal := v.LookupPath(cue.ParsePath("shards"))
	if !shardsVal.Exists() {
		return nil, &CompileError{Field: "shards", Message: "at least one shard is required", Pos: v.Pos()}
	}
	iter, err := shardsVal.List()
	if err != nil {
		return nil, formatCUEError("shards", err)
	}

	var shards []ShardConfig
	seen := map[string]bool{}
	for i := 0; iter.Next(); i++ {
		sv := iter.Value()
		field := fmt.Sprintf("shards[%d]", i)
		id, err := requiredString(sv, field, "id")
		if err != nil {
			return nil, err
		}
		if seen[id] {
			return nil, &CompileError{Field: field + ".id", Message: fmt.Sprintf("duplicate shard id %q", id), Pos: sv.Pos()}
		}
		seen[id] = true
		path, err := optionalString(sv, field, "path")
		if err != nil {
			return nil, err
		}
		shards = append(shards, ShardConfig{ID: id, Path: path})
	}
	if len(shards) == 0 {
		return nil, &CompileError{Field: "shards", Message: "at least one shard is required", Pos: shardsVal.Pos()}
	}
	return shards, nil
}

func requiredString(v cue.Value, field, name string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", &CompileError{Field: field + "." + name, Message: name + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(field+"."+name, err)
	}
	if s == "" {
		return "", &CompileError{Field: field + "." + name, Message: name + " must not be empty", Pos: fv.Pos()}
	}
	return s, nil
}

func optionalString(v cue.Value, field, name string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(field+"."+name, err)
	}
	return s, nil
}
