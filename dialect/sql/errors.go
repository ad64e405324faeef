package sql

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// sqlStateError is implemented by pq and pgx errors.
type sqlStateError interface {
	SQLState() string
}

const pgForeignKeyViolation = "23503"

// MySQL error numbers for foreign-key violations.
const (
	mysqlForeignKeyParent = 1451
	mysqlForeignKeyChild  = 1452
)

// IsForeignKeyConstraintError reports whether err resulted from a
// foreign-key violation, e.g. a relationship whose end node does not exist.
func IsForeignKeyConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := asError[sqlStateError](err); ok && e.SQLState() == pgForeignKeyViolation {
		return true
	}
	if e, ok := asError[*mysql.MySQLError](err); ok {
		if e.Number == mysqlForeignKeyParent || e.Number == mysqlForeignKeyChild {
			return true
		}
	}
	return containsAny(err.Error(),
		"Error 1451",
		"Error 1452",
		"violates foreign key constraint",
		"FOREIGN KEY constraint failed",
	)
}

// asError extracts an error implementing T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
