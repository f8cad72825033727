package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/logger"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

//go:embed sqlite/source/*.sql
var sourceMigrations embed.FS

// migrationSet is one embedded directory with its own tracking table
type migrationSet struct {
	fs    embed.FS
	dir   string
	table string
}

var (
	queueSet  = migrationSet{fs: migrations, dir: "sqlite/migrations", table: "schema_migrations"}
	sourceSet = migrationSet{fs: sourceMigrations, dir: "sqlite/source", table: "source_schema_migrations"}
)

// Migrate runs all pending job-queue and marker migrations.
// If logger is provided, logs migration progress; otherwise operates silently.
func Migrate(db *sql.DB, log *zap.SugaredLogger) error {
	return queueSet.apply(db, log)
}

// MigrateSource creates the reference relational schema in a sqlite source database.
// Used for local runs and tests; production sources own their schema.
func MigrateSource(db *sql.DB, log *zap.SugaredLogger) error {
	return sourceSet.apply(db, log)
}

func (s migrationSet) apply(db *sql.DB, log *zap.SugaredLogger) error {
	entries, err := s.fs.ReadDir(s.dir)
	if err != nil {
		return errors.Wrap(err, "read migrations")
	}

	// 000_* creates the tracking table, so it sorts and runs first
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	applied := 0
	for _, filename := range files {
		version := strings.Split(filename, "_")[0]

		var exists bool
		err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM "+s.table+" WHERE version = ?)", version).Scan(&exists)
		if err != nil {
			if IsDatabaseClosed(err) {
				return errors.Wrap(err, "check migration state")
			}
			// Tracking table missing - only legal before 000 has run
			if version != "000" {
				return errors.Newf("%s table missing, but migration is not 000: %s", s.table, filename)
			}
		} else if exists {
			if log != nil {
				log.Debugw("Skipping migration (already applied)", "migration", filename)
			}
			continue
		}

		sqlBytes, err := s.fs.ReadFile(path.Join(s.dir, filename))
		if err != nil {
			return errors.Wrapf(err, "read %s", filename)
		}

		if log != nil {
			log.Infow("Applying migration", "migration", filename, "version", version)
		}

		tx, err := db.Begin()
		if err != nil {
			return errors.Wrapf(err, "begin tx for %s", filename)
		}
		if _, err := tx.Exec(string(sqlBytes)); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "execute %s", filename)
		}
		if _, err := tx.Exec("INSERT INTO "+s.table+" (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "record %s", filename)
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit %s", filename)
		}
		applied++
	}

	if log != nil {
		log.Infow("Migrations complete",
			logger.FieldSymbol, logger.SymDB,
			"set", s.table,
			"applied", applied,
			"total_migrations", len(files),
		)
	}

	return nil
}
