package subcriteria

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/ruilorenzetti/hibernate-shards/internal/queryir"
)

// Event is a recorded mutation replayed against a shard-local criteria.
// Apply must not modify the event itself; one event value is applied once
// per shard, possibly concurrently.
type Event interface {
	Apply(c Criteria) error
	Kind() string
}

// Event kinds.
const (
	KindAdd            = "add"
	KindAddOrder       = "add_order"
	KindSetProjection  = "set_projection"
	KindSetMaxResults  = "set_max_results"
	KindSetFirstResult = "set_first_result"
	KindSetComment     = "set_comment"
)

// AddEvent adds a restriction.
type AddEvent struct {
	Predicate queryir.Predicate
}

func (e AddEvent) Apply(c Criteria) error { return c.Add(e.Predicate) }
func (AddEvent) Kind() string             { return KindAdd }

// AddOrderEvent adds an ORDER BY term.
type AddOrderEvent struct {
	Order queryir.Order
}

func (e AddOrderEvent) Apply(c Criteria) error { return c.AddOrder(e.Order) }
func (AddOrderEvent) Kind() string             { return KindAddOrder }

// SetProjectionEvent replaces the projection.
type SetProjectionEvent struct {
	Projection queryir.Projection
}

func (e SetProjectionEvent) Apply(c Criteria) error { return c.SetProjection(e.Projection) }
func (SetProjectionEvent) Kind() string             { return KindSetProjection }

// SetMaxResultsEvent limits the row count.
type SetMaxResultsEvent struct {
	Max int
}

func (e SetMaxResultsEvent) Apply(c Criteria) error { return c.SetMaxResults(e.Max) }
func (SetMaxResultsEvent) Kind() string             { return KindSetMaxResults }

// SetFirstResultEvent skips leading rows.
type SetFirstResultEvent struct {
	First int
}

func (e SetFirstResultEvent) Apply(c Criteria) error { return c.SetFirstResult(e.First) }
func (SetFirstResultEvent) Kind() string             { return KindSetFirstResult }

// SetCommentEvent attaches a SQL comment.
type SetCommentEvent struct {
	Comment string
}

func (e SetCommentEvent) Apply(c Criteria) error { return c.SetComment(e.Comment) }
func (SetCommentEvent) Kind() string             { return KindSetComment }

// Add returns an AddEvent.
func Add(p queryir.Predicate) Event { return AddEvent{Predicate: p} }

// AddOrder returns an AddOrderEvent.
func AddOrder(o queryir.Order) Event { return AddOrderEvent{Order: o} }

// SetProjection returns a SetProjectionEvent.
func SetProjection(p queryir.Projection) Event { return SetProjectionEvent{Projection: p} }

// SetMaxResults returns a SetMaxResultsEvent.
func SetMaxResults(n int) Event { return SetMaxResultsEvent{Max: n} }

// SetFirstResult returns a SetFirstResultEvent.
func SetFirstResult(n int) Event { return SetFirstResultEvent{First: n} }

// SetComment returns a SetCommentEvent.
func SetComment(comment string) Event { return SetCommentEvent{Comment: comment} }

// eventJSON is the wire form of the built-in events.
type eventJSON struct {
	Kind       string              `json:"kind"`
	Predicate  json.RawMessage     `json:"predicate,omitempty"`
	Order      *queryir.Order      `json:"order,omitempty"`
	Projection *queryir.Projection `json:"projection,omitempty"`
	Value      *int                `json:"value,omitempty"`
	Comment    *string             `json:"comment,omitempty"`
}

// MarshalEvent encodes a built-in event. Other Event implementations cannot
// be persisted.
func MarshalEvent(e Event) ([]byte, error) {
	var w eventJSON
	switch ev := e.(type) {
	case AddEvent:
		p, err := queryir.MarshalPredicate(ev.Predicate)
		if err != nil {
			return nil, fmt.Errorf("add: %w", err)
		}
		w = eventJSON{Kind: KindAdd, Predicate: p}
	case AddOrderEvent:
		w = eventJSON{Kind: KindAddOrder, Order: &ev.Order}
	case SetProjectionEvent:
		w = eventJSON{Kind: KindSetProjection, Projection: &ev.Projection}
	case SetMaxResultsEvent:
		w = eventJSON{Kind: KindSetMaxResults, Value: &ev.Max}
	case SetFirstResultEvent:
		w = eventJSON{Kind: KindSetFirstResult, Value: &ev.First}
	case SetCommentEvent:
		w = eventJSON{Kind: KindSetComment, Comment: &ev.Comment}
	default:
		return nil, fmt.Errorf("event %T cannot be encoded", e)
	}
	return json.Marshal(w)
}

// UnmarshalEvent decodes JSON produced by MarshalEvent.
func UnmarshalEvent(data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid event JSON")
	}
	doc := gjson.ParseBytes(data)
	kind := doc.Get("kind").String()

	switch kind {
	case KindAdd:
		raw := doc.Get("predicate")
		if !raw.Exists() {
			return nil, fmt.Errorf("add: missing predicate")
		}
		p, err := queryir.UnmarshalPredicate([]byte(raw.Raw))
		if err != nil {
			return nil, fmt.Errorf("add: %w", err)
		}
		return AddEvent{Predicate: p}, nil
	case KindAddOrder:
		var o queryir.Order
		if err := json.Unmarshal([]byte(doc.Get("order").Raw), &o); err != nil {
			return nil, fmt.Errorf("add_order: %w", err)
		}
		return AddOrderEvent{Order: o}, nil
	case KindSetProjection:
		var p queryir.Projection
		if err := json.Unmarshal([]byte(doc.Get("projection").Raw), &p); err != nil {
			return nil, fmt.Errorf("set_projection: %w", err)
		}
		return SetProjectionEvent{Projection: p}, nil
	case KindSetMaxResults, KindSetFirstResult:
		v := doc.Get("value")
		if v.Type != gjson.Number {
			return nil, fmt.Errorf("%s: missing integer value", kind)
		}
		if kind == KindSetMaxResults {
			return SetMaxResultsEvent{Max: int(v.Int())}, nil
		}
		return SetFirstResultEvent{First: int(v.Int())}, nil
	case KindSetComment:
		return SetCommentEvent{Comment: doc.Get("comment").String()}, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
}
