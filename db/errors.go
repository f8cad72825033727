package db

import (
	"database/sql"
	"strings"

	"github.com/teranos/prism/errors"
)

// ErrDatabaseClosed marks work attempted after the pool was closed, usually a
// worker still draining during GRACE shutdown.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed reports whether err comes from a closed pool or connection.
// database/sql reports a closed pool only as text, hence the string match.
func IsDatabaseClosed(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrDatabaseClosed), errors.Is(err, sql.ErrConnDone):
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}
