package queryir

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/ruilorenzetti/hibernate-shards/internal/ir"
)

// Predicate type tags used on the wire.
const (
	TagCompare = "compare"
	TagLike    = "like"
	TagIn      = "in"
	TagIsNull  = "is_null"
	TagAnd     = "and"
	TagOr      = "or"
	TagNot     = "not"
	TagSQL     = "sql"
)

// predicateJSON is the wire form of every predicate type.
type predicateJSON struct {
	Type       string            `json:"type"`
	Field      string            `json:"field,omitempty"`
	Op         CompareOp         `json:"op,omitempty"`
	Value      json.RawMessage   `json:"value,omitempty"`
	Pattern    string            `json:"pattern,omitempty"`
	Values     json.RawMessage   `json:"values,omitempty"`
	Negated    bool              `json:"negated,omitempty"`
	Predicates []json.RawMessage `json:"predicates,omitempty"`
	Predicate  json.RawMessage   `json:"predicate,omitempty"`
	SQL        string            `json:"sql,omitempty"`
	Args       json.RawMessage   `json:"args,omitempty"`
}

// MarshalPredicate encodes p as tagged JSON.
func MarshalPredicate(p Predicate) ([]byte, error) {
	w, err := toWire(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func toWire(p Predicate) (*predicateJSON, error) {
	switch pred := p.(type) {
	case Compare:
		v, err := ir.MarshalValue(pred.Value)
		if err != nil {
			return nil, fmt.Errorf("compare %s: %w", pred.Field, err)
		}
		return &predicateJSON{Type: TagCompare, Field: pred.Field, Op: pred.Op, Value: v}, nil
	case *Compare:
		return toWire(*pred)
	case Like:
		return &predicateJSON{Type: TagLike, Field: pred.Field, Pattern: pred.Pattern}, nil
	case *Like:
		return toWire(*pred)
	case In:
		vals, err := pred.Values.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("in %s: %w", pred.Field, err)
		}
		return &predicateJSON{Type: TagIn, Field: pred.Field, Values: vals}, nil
	case *In:
		return toWire(*pred)
	case IsNull:
		return &predicateJSON{Type: TagIsNull, Field: pred.Field, Negated: pred.Negated}, nil
	case *IsNull:
		return toWire(*pred)
	case And:
		children, err := marshalAll(pred.Predicates)
		if err != nil {
			return nil, err
		}
		return &predicateJSON{Type: TagAnd, Predicates: children}, nil
	case *And:
		return toWire(*pred)
	case Or:
		children, err := marshalAll(pred.Predicates)
		if err != nil {
			return nil, err
		}
		return &predicateJSON{Type: TagOr, Predicates: children}, nil
	case *Or:
		return toWire(*pred)
	case Not:
		inner, err := MarshalPredicate(pred.Predicate)
		if err != nil {
			return nil, err
		}
		return &predicateJSON{Type: TagNot, Predicate: inner}, nil
	case *Not:
		return toWire(*pred)
	case SQLRestriction:
		w := &predicateJSON{Type: TagSQL, SQL: pred.SQL}
		if len(pred.Args) > 0 {
			args, err := ir.List(pred.Args).MarshalJSON()
			if err != nil {
				return nil, fmt.Errorf("sql args: %w", err)
			}
			w.Args = args
		}
		return w, nil
	case *SQLRestriction:
		return toWire(*pred)
	default:
		return nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func marshalAll(preds []Predicate) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(preds))
	for i, p := range preds {
		b, err := MarshalPredicate(p)
		if err != nil {
			return nil, fmt.Errorf("predicates[%d]: %w", i, err)
		}
		out[i] = b
	}
	return out, nil
}

// UnmarshalPredicate decodes tagged JSON produced by MarshalPredicate.
// The type tag is read first and selects which fields are consulted.
func UnmarshalPredicate(data []byte) (Predicate, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid predicate JSON")
	}
	doc := gjson.ParseBytes(data)
	return fromResult(doc)
}

func fromResult(doc gjson.Result) (Predicate, error) {
	tag := doc.Get("type")
	if !tag.Exists() {
		return nil, fmt.Errorf("predicate missing type tag")
	}

	switch tag.String() {
	case TagCompare:
		op := CompareOp(doc.Get("op").String())
		if !op.Valid() {
			return nil, fmt.Errorf("compare: unknown operator %q", op)
		}
		v, err := valueOf(doc.Get("value"))
		if err != nil {
			return nil, fmt.Errorf("compare: %w", err)
		}
		return Compare{Field: doc.Get("field").String(), Op: op, Value: v}, nil
	case TagLike:
		return Like{Field: doc.Get("field").String(), Pattern: doc.Get("pattern").String()}, nil
	case TagIn:
		vals, err := listOf(doc.Get("values"))
		if err != nil {
			return nil, fmt.Errorf("in: %w", err)
		}
		return In{Field: doc.Get("field").String(), Values: vals}, nil
	case TagIsNull:
		return IsNull{Field: doc.Get("field").String(), Negated: doc.Get("negated").Bool()}, nil
	case TagAnd:
		children, err := childrenOf(doc.Get("predicates"))
		if err != nil {
			return nil, fmt.Errorf("and: %w", err)
		}
		return And{Predicates: children}, nil
	case TagOr:
		children, err := childrenOf(doc.Get("predicates"))
		if err != nil {
			return nil, fmt.Errorf("or: %w", err)
		}
		return Or{Predicates: children}, nil
	case TagNot:
		inner := doc.Get("predicate")
		if !inner.Exists() {
			return nil, fmt.Errorf("not: missing predicate")
		}
		p, err := fromResult(inner)
		if err != nil {
			return nil, fmt.Errorf("not: %w", err)
		}
		return Not{Predicate: p}, nil
	case TagSQL:
		args, err := listOf(doc.Get("args"))
		if err != nil {
			return nil, fmt.Errorf("sql: %w", err)
		}
		r := SQLRestriction{SQL: doc.Get("sql").String()}
		if len(args) > 0 {
			r.Args = args
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown predicate type %q", tag.String())
	}
}

func valueOf(r gjson.Result) (ir.Value, error) {
	if !r.Exists() {
		return ir.Null{}, nil
	}
	return ir.UnmarshalValue([]byte(r.Raw))
}

func listOf(r gjson.Result) (ir.List, error) {
	if !r.Exists() {
		return nil, nil
	}
	if !r.IsArray() {
		return nil, fmt.Errorf("expected array, got %s", r.Type)
	}
	var out ir.List
	for i, elem := range r.Array() {
		v, err := ir.UnmarshalValue([]byte(elem.Raw))
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out = append(out, v)
	}
	if out == nil {
		out = ir.List{}
	}
	return out, nil
}

func childrenOf(r gjson.Result) ([]Predicate, error) {
	var out []Predicate
	for i, elem := range r.Array() {
		p, err := fromResult(elem)
		if err != nil {
			return nil, fmt.Errorf("predicates[%d]: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}
