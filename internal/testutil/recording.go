package testutil

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ruilorenzetti/hibernate-shards/internal/ir"
	"github.com/ruilorenzetti/hibernate-shards/internal/queryir"
	"github.com/ruilorenzetti/hibernate-shards/internal/subcriteria"
)

// Call is one recorded criteria call.
type Call struct {
	Seq    int64    `json:"seq"`
	Shard  string   `json:"shard"`
	Target string   `json:"target"` // "root", or the path of the sub-criteria
	Method string   `json:"method"`
	Args   []string `json:"args"`
	Failed bool     `json:"failed,omitempty"`
}

// String renders the call as "Method(arg, arg)".
func (c Call) String() string {
	return c.Method + "(" + strings.Join(c.Args, ", ") + ")"
}

// CallLog collects calls from every RecordingCriteria sharing it, across
// shards. Seq values are global to the log.
//
// Thread-safety: safe for concurrent use; shards record in parallel.
type CallLog struct {
	mu    sync.Mutex
	seq   int64
	calls []Call
}

// NewCallLog creates an empty log.
func NewCallLog() *CallLog {
	return &CallLog{}
}

func (l *CallLog) record(c Call) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	c.Seq = l.seq
	l.calls = append(l.calls, c)
}

// Calls returns every call in recording order.
func (l *CallLog) Calls() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Call(nil), l.calls...)
}

// ForShard returns the calls recorded on one shard, in order.
// Seq values stay global, so they are increasing but not contiguous.
func (l *CallLog) ForShard(shard string) []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Call
	for _, c := range l.calls {
		if c.Shard == shard {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears the log. The next call recorded gets seq 1.
func (l *CallLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = nil
	l.seq = 0
}

// recordingTree is shared by a root RecordingCriteria and its sub-criteria.
type recordingTree struct {
	mu       sync.Mutex
	failures map[string]error
	labels   map[string]int
}

// RecordingCriteria is a subcriteria.Criteria that records every call into a
// CallLog and performs nothing else. Failures can be injected per method.
type RecordingCriteria struct {
	log    *CallLog
	tree   *recordingTree
	shard  string
	target string
}

var _ subcriteria.Criteria = (*RecordingCriteria)(nil)

// NewRecordingCriteria creates a root criteria for shard.
func NewRecordingCriteria(log *CallLog, shard string) *RecordingCriteria {
	return &RecordingCriteria{
		log:    log,
		tree:   &recordingTree{failures: map[string]error{}, labels: map[string]int{}},
		shard:  shard,
		target: "root",
	}
}

// ShardID implements subcriteria.ShardIdentifier.
func (r *RecordingCriteria) ShardID() string { return r.shard }

// Target returns the criteria path, e.g. "root/orders(o)".
func (r *RecordingCriteria) Target() string { return r.target }

// FailOn makes method fail with err. target restricts the failure to one
// criteria path; "" fails the method on every criteria of this tree.
func (r *RecordingCriteria) FailOn(target, method string, err error) {
	r.tree.mu.Lock()
	defer r.tree.mu.Unlock()
	r.tree.failures[target+"|"+method] = err
}

func (r *RecordingCriteria) call(method string, args ...string) error {
	r.tree.mu.Lock()
	err, ok := r.tree.failures[r.target+"|"+method]
	if !ok {
		err = r.tree.failures["|"+method]
	}
	r.tree.mu.Unlock()

	r.log.record(Call{Shard: r.shard, Target: r.target, Method: method, Args: args, Failed: err != nil})
	return err
}

func (r *RecordingCriteria) child(method, association, alias string, args ...string) (subcriteria.Criteria, error) {
	if err := r.call(method, args...); err != nil {
		return nil, err
	}
	label := association
	if alias != "" {
		label += "(" + alias + ")"
	}

	r.tree.mu.Lock()
	path := r.target + "/" + label
	r.tree.labels[path]++
	if n := r.tree.labels[path]; n > 1 {
		path += "#" + strconv.Itoa(n)
	}
	r.tree.mu.Unlock()

	return &RecordingCriteria{log: r.log, tree: r.tree, shard: r.shard, target: path}, nil
}

func (r *RecordingCriteria) CreateCriteria(association string) (subcriteria.Criteria, error) {
	return r.child("CreateCriteria", association, "", association)
}

func (r *RecordingCriteria) CreateCriteriaWithJoin(association string, jt ir.JoinType) (subcriteria.Criteria, error) {
	return r.child("CreateCriteriaWithJoin", association, "", association, jt.String())
}

func (r *RecordingCriteria) CreateCriteriaWithAlias(association, alias string) (subcriteria.Criteria, error) {
	return r.child("CreateCriteriaWithAlias", association, alias, association, alias)
}

func (r *RecordingCriteria) CreateCriteriaWithAliasAndJoin(association, alias string, jt ir.JoinType) (subcriteria.Criteria, error) {
	return r.child("CreateCriteriaWithAliasAndJoin", association, alias, association, alias, jt.String())
}

func (r *RecordingCriteria) CreateCriteriaWithAliasJoinAndFilter(association, alias string, jt ir.JoinType, with queryir.Predicate) (subcriteria.Criteria, error) {
	return r.child("CreateCriteriaWithAliasJoinAndFilter", association, alias, association, alias, jt.String(), FormatPredicate(with))
}

func (r *RecordingCriteria) Add(p queryir.Predicate) error {
	return r.call("Add", FormatPredicate(p))
}

func (r *RecordingCriteria) AddOrder(o queryir.Order) error {
	dir := "ASC"
	if o.Descending {
		dir = "DESC"
	}
	return r.call("AddOrder", o.Property+" "+dir)
}

func (r *RecordingCriteria) SetProjection(p queryir.Projection) error {
	args := append([]string(nil), p.Properties...)
	if p.RowCount {
		args = append(args, "rowCount()")
	}
	return r.call("SetProjection", args...)
}

func (r *RecordingCriteria) SetMaxResults(n int) error {
	return r.call("SetMaxResults", strconv.Itoa(n))
}

func (r *RecordingCriteria) SetFirstResult(n int) error {
	return r.call("SetFirstResult", strconv.Itoa(n))
}

func (r *RecordingCriteria) SetComment(comment string) error {
	return r.call("SetComment", comment)
}

// FormatPredicate renders a raw SQL restriction as its SQL text and any
// other predicate as its JSON encoding.
func FormatPredicate(p queryir.Predicate) string {
	switch pred := p.(type) {
	case nil:
		return "<nil>"
	case queryir.SQLRestriction:
		if len(pred.Args) == 0 {
			return pred.SQL
		}
	}
	b, err := queryir.MarshalPredicate(p)
	if err != nil {
		return fmt.Sprintf("<%T>", p)
	}
	return string(b)
}
