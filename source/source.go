// Package source reads the relational source of truth and writes back the
// derived artifacts this core owns (attribute visibility flags, last_in_log).
//
// Every loader returns records with their dependencies attached. Dangling
// references load as nil and are left to the visibility rules; only a
// missing primary record is an error (errors.ErrNotFound).
package source

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/teranos/prism/db"
	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/logger"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Reader loads source records. Its writes are limited to derived columns.
type Reader struct {
	db    *sql.DB
	style int
	log   *zap.SugaredLogger
}

// New wraps an open source database. driver selects the placeholder style.
func New(conn *sql.DB, driver string, log *zap.SugaredLogger) *Reader {
	style := db.PlaceholderQuestion
	if driver == DriverPostgres {
		style = db.PlaceholderDollar
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Reader{db: conn, style: style, log: log.Named("source")}
}

// Open connects to the source database.
func Open(ctx context.Context, driver, dsn string, log *zap.SugaredLogger) (*Reader, error) {
	var (
		conn *sql.DB
		err  error
	)
	switch driver {
	case DriverSQLite:
		conn, err = db.Open(dsn, log)
	case DriverPostgres:
		conn, err = sql.Open(DriverPostgres, dsn)
	default:
		return nil, errors.NewInvalidRequestError("unsupported source driver %q", driver)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s source", driver)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, errors.WithHint(errors.Wrap(err, "failed to reach source database"), "check source.dsn")
	}
	if log != nil {
		log.Infow("Source database connected", "driver", driver, logger.FieldSymbol, logger.SymDB)
	}
	return New(conn, driver, log), nil
}

// DB exposes the underlying pool.
func (r *Reader) DB() *sql.DB { return r.db }

// Close closes the pool.
func (r *Reader) Close() error { return r.db.Close() }

func (r *Reader) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return r.db.QueryContext(ctx, db.Rebind(r.style, q), args...)
}

func (r *Reader) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return r.db.QueryRowContext(ctx, db.Rebind(r.style, q), args...)
}

// ids runs a single-column id query.
func (r *Reader) ids(ctx context.Context, q string, args ...any) ([]int64, error) {
	rows, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	seen := map[int64]bool{}
	for rows.Next() {
		var id sql.NullInt64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if id.Valid && !seen[id.Int64] {
			seen[id.Int64] = true
			out = append(out, id.Int64)
		}
	}
	return out, rows.Err()
}
