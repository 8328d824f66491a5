// internal/repository/errors.go
package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	stderrors "errors"

	"jobboard-notifier/internal/common/errors"
)

// queryError classifies a failed statement so callers can tell a slow or
// lost database apart from a bad query.
func queryError(op string, err error) error {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.NewQueryTimeoutError(op)
	case stderrors.Is(err, driver.ErrBadConn), stderrors.Is(err, sql.ErrConnDone):
		return errors.NewDatabaseConnectionFailedError(err)
	default:
		return errors.NewQueryExecutionFailedError(op, err)
	}
}
