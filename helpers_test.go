package oasql_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/oasql"
	"github.com/bjaus/oasql/contract"
	"github.com/bjaus/oasql/pool"
	"github.com/bjaus/oasql/query"
)

func loadContract(t *testing.T) *contract.Contract {
	t.Helper()
	c, err := contract.Load("testdata/users.yaml")
	require.NoError(t, err)
	return c
}

func newRouter(t *testing.T, opts ...oasql.RouterOption) *oasql.Router {
	t.Helper()
	opts = append([]oasql.RouterOption{oasql.WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	return oasql.New(loadContract(t), opts...)
}

type backend struct {
	router *oasql.Router
	pool   *pool.Pool
	mock   sqlmock.Sqlmock
}

// newBackend serves the users contract with the query templates in
// query/testdata against a mocked database.
func newBackend(t *testing.T, size int, timeout time.Duration, opts ...oasql.RouterOption) *backend {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	p := pool.New(pool.FromDB(db), pool.Options{MaxSize: size, AcquireTimeout: timeout})
	t.Cleanup(func() {
		_ = p.Close()
		_ = db.Close()
	})

	set, err := query.LoadFile("query/testdata/queries.yaml")
	require.NoError(t, err)

	r := newRouter(t, opts...)
	require.NoError(t, r.HandleQueries(query.NewExecutor(p), set))
	return &backend{router: r, pool: p, mock: mock}
}
