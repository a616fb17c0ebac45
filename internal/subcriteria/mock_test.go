package subcriteria

import (
	"github.com/stretchr/testify/mock"

	"github.com/ruilorenzetti/hibernate-shards/internal/ir"
	"github.com/ruilorenzetti/hibernate-shards/internal/queryir"
)

// mockCriteria records every call through testify/mock.
type mockCriteria struct {
	mock.Mock
	shard string
}

func (m *mockCriteria) ShardID() string { return m.shard }

func criteriaResult(args mock.Arguments) (Criteria, error) {
	c, _ := args.Get(0).(Criteria)
	return c, args.Error(1)
}

func (m *mockCriteria) CreateCriteria(association string) (Criteria, error) {
	return criteriaResult(m.Called(association))
}

func (m *mockCriteria) CreateCriteriaWithJoin(association string, jt ir.JoinType) (Criteria, error) {
	return criteriaResult(m.Called(association, jt))
}

func (m *mockCriteria) CreateCriteriaWithAlias(association, alias string) (Criteria, error) {
	return criteriaResult(m.Called(association, alias))
}

func (m *mockCriteria) CreateCriteriaWithAliasAndJoin(association, alias string, jt ir.JoinType) (Criteria, error) {
	return criteriaResult(m.Called(association, alias, jt))
}

func (m *mockCriteria) CreateCriteriaWithAliasJoinAndFilter(association, alias string, jt ir.JoinType, with queryir.Predicate) (Criteria, error) {
	return criteriaResult(m.Called(association, alias, jt, with))
}

func (m *mockCriteria) Add(p queryir.Predicate) error {
	return m.Called(p).Error(0)
}

func (m *mockCriteria) AddOrder(o queryir.Order) error {
	return m.Called(o).Error(0)
}

func (m *mockCriteria) SetProjection(p queryir.Projection) error {
	return m.Called(p).Error(0)
}

func (m *mockCriteria) SetMaxResults(n int) error {
	return m.Called(n).Error(0)
}

func (m *mockCriteria) SetFirstResult(n int) error {
	return m.Called(n).Error(0)
}

func (m *mockCriteria) SetComment(c string) error {
	return m.Called(c).Error(0)
}

// logEvent appends its name to a shared log when applied.
type logEvent struct {
	name string
	log  *[]string
	err  error
}

func (e logEvent) Apply(Criteria) error {
	*e.log = append(*e.log, e.name)
	return e.err
}

func (e logEvent) Kind() string { return "log:" + e.name }
