package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bjaus/oasql/contract"
	"github.com/bjaus/oasql/pool"
)

// Acquirer leases pooled connections. *pool.Pool implements it.
type Acquirer interface {
	Acquire(ctx context.Context) (*pool.Lease, error)
}

// Executor runs templates on leased connections.
type Executor struct {
	pool Acquirer
}

// NewExecutor returns an Executor that leases connections from p.
func NewExecutor(p Acquirer) *Executor {
	return &Executor{pool: p}
}

// Execute binds values to t, runs it on a leased connection and maps the
// result to schema. For ModeMany the schema is the array schema of the
// response.
//
// Waiting for a connection honors ctx. The statement itself runs to
// completion even when ctx is cancelled; its lease is released either way.
func (e *Executor) Execute(ctx context.Context, t *Template, values map[string]any, schema *contract.Schema) (any, error) {
	args, err := t.Bind(values)
	if err != nil {
		return nil, &QueryError{Query: t.Name, Err: err}
	}

	lease, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lease.Release() }()

	ctx = context.WithoutCancel(ctx)

	if t.Mode == ModeExec {
		res, err := lease.Conn().ExecContext(ctx, t.SQL, args...)
		if err != nil {
			return nil, fail(lease, t, err)
		}
		return execResult(res), nil
	}

	cols, recs, err := e.query(ctx, lease, t, args)
	if err != nil {
		return nil, err
	}

	m := mapper{query: t.Name}
	if t.Mode == ModeOne {
		if len(recs) == 0 {
			return nil, ErrNoRows
		}
		return m.row(cols, recs[0], schema, "")
	}

	var item *contract.Schema
	if schema != nil {
		if schema.Type != "" && schema.Type != contract.TypeArray {
			return nil, m.fail("", "%d rows for a %s response", len(recs), schema.Type)
		}
		item = schema.Items
	}
	out := make([]any, len(recs))
	for i, rec := range recs {
		v, err := m.row(cols, rec, item, fmt.Sprintf("[%d]", i))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *Executor) query(ctx context.Context, lease *pool.Lease, t *Template, args []any) ([]string, []map[string]any, error) {
	rows, err := lease.Conn().QueryContext(ctx, t.SQL, args...)
	if err != nil {
		return nil, nil, fail(lease, t, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, fail(lease, t, err)
	}

	var recs []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fail(lease, t, err)
		}
		rec := make(map[string]any, len(cols))
		for i, c := range cols {
			rec[c] = vals[i]
		}
		recs = append(recs, rec)
		if t.Mode == ModeOne {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fail(lease, t, err)
	}
	return cols, recs, nil
}

func fail(lease *pool.Lease, t *Template, err error) error {
	fatal := IsFatal(err)
	if fatal {
		lease.MarkUnhealthy()
	}
	return &QueryError{Query: t.Name, Fatal: fatal, Err: err}
}

func execResult(res sql.Result) map[string]any {
	out := map[string]any{}
	if n, err := res.RowsAffected(); err == nil {
		out["rowsAffected"] = n
	}
	if id, err := res.LastInsertId(); err == nil {
		out["lastInsertId"] = id
	}
	return out
}
