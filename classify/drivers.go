package classify

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// Parse extracts the structured discriminating fields from a driver
// error into a RawFailure for the given backend. Unrecognized error
// types keep only backend, message and cause, and will classify as
// KindUnclassified.
func Parse(backend string, err error) RawFailure {
	f := RawFailure{
		Backend: backend,
		Message: err.Error(),
		Cause:   err,
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		f.SQLState = string(pqErr.Code)
		return f
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		f.Code = int64(myErr.Number)
		if state := strings.Trim(string(myErr.SQLState[:]), "\x00"); state != "" {
			f.SQLState = state
		}
		return f
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		f.Code = int64(liteErr.Code)
		return f
	}

	// modernc.org/sqlite exposes the result code through a method
	// rather than a field.
	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		f.Code = int64(coded.Code())
		return f
	}

	return f
}
