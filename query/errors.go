package query

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"
)

// ErrNoRows is returned by a ModeOne template that matched no row.
var ErrNoRows = errors.New("query: no rows")

// QueryError is a failure reported by the database driver or raised while
// binding placeholder values.
type QueryError struct {
	Query string
	Fatal bool // the connection is broken and was discarded
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s: %v", e.Query, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// MappingError reports a result row that does not fit the response schema.
type MappingError struct {
	Query  string
	Field  string
	Reason string
}

func (e *MappingError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("query %s: map result: %s", e.Query, e.Reason)
	}
	return fmt.Sprintf("query %s: map %s: %s", e.Query, e.Field, e.Reason)
}

// IsFatal reports whether err means the connection it came from can no
// longer be used.
func IsFatal(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
