package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruilorenzetti/hibernate-shards/internal/ir"
)

func TestQueryRows_SQLite(t *testing.T) {
	s, err := OpenShard(filepath.Join(t.TempDir(), "shard.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Exec(ctx, `CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT, score REAL, email TEXT)`))
	require.NoError(t, s.Exec(ctx, `INSERT INTO customers VALUES (2, 'bob', 1.5, NULL), (1, 'ada', 3, 'ada@example.com')`))

	rows, err := s.QueryRows(ctx, `SELECT c.* FROM customers AS c WHERE c.id > ? ORDER BY c.id COLLATE BINARY ASC`, int64(0))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, ir.Object{
		"id": ir.Int(1), "name": ir.String("ada"), "score": ir.String("3"), "email": ir.String("ada@example.com"),
	}, rows[0])
	assert.Equal(t, ir.Null{}, rows[1]["email"])
	assert.Equal(t, ir.String("1.5"), rows[1]["score"])

	none, err := s.QueryRows(ctx, `SELECT * FROM customers WHERE id < 0`)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestQueryRows_Mock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT o.total").
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"total", "paid"}).AddRow(int64(150), true))

	rows, err := New(db).QueryRows(context.Background(), "SELECT o.total, o.paid FROM orders AS o WHERE o.total > ?", int64(100))
	require.NoError(t, err)
	assert.Equal(t, []ir.Object{{"total": ir.Int(150), "paid": ir.Bool(true)}}, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRows_Errors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("no such table: orders"))
	_, err = New(db).QueryRows(context.Background(), "SELECT * FROM orders")
	assert.ErrorContains(t, err, "no such table")

	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).RowError(0, errors.New("shard went away")))
	_, err = New(db).QueryRows(context.Background(), "SELECT id FROM orders")
	assert.ErrorContains(t, err, "shard went away")

	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"name", "name"}).AddRow("ada", "paid"))
	_, err = New(db).QueryRows(context.Background(), "SELECT c.name, o.name FROM customers AS c, orders AS o")
	assert.ErrorContains(t, err, `duplicate column "name"`)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRows_QualifiedProjectionLabels(t *testing.T) {
	s, err := OpenShard(filepath.Join(t.TempDir(), "shard.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Exec(ctx, `CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT)`))
	require.NoError(t, s.Exec(ctx, `CREATE TABLE orders (id INTEGER PRIMARY KEY, customer_id INTEGER, name TEXT)`))
	require.NoError(t, s.Exec(ctx, `INSERT INTO customers VALUES (1, 'ada')`))
	require.NoError(t, s.Exec(ctx, `INSERT INTO orders VALUES (10, 1, 'first')`))

	rows, err := s.QueryRows(ctx, `SELECT c.name AS "c.name", o.name AS "o.name" FROM customers AS c`+
		` INNER JOIN orders AS o ON c.id = o.customer_id ORDER BY c.id COLLATE BINARY ASC`)
	require.NoError(t, err)
	assert.Equal(t, []ir.Object{{"c.name": ir.String("ada"), "o.name": ir.String("first")}}, rows)
}
