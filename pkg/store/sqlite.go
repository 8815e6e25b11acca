package store

import (
	"context"
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"hit-tracker/pkg/errors"
	"hit-tracker/pkg/logger"
	"hit-tracker/pkg/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore keeps visits in a single hits(visited_at, ip) table.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
	closed atomic.Bool
}

// OpenSQLite opens (creating if needed) the database at path with WAL
// enabled and applies pending migrations.
func OpenSQLite(dsn string, log *zap.SugaredLogger) (*SQLiteStore, error) {
	if log == nil {
		log = logger.ComponentLogger("store")
	}
	log.Debugw("Opening database", logger.FieldDriver, DriverSQLite, logger.FieldFile, dsn)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if dsn == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	// WAL lets readers (hits stats) run while the server is writing.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable WAL mode")
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to set busy timeout")
	}

	if err := Migrate(db, log); err != nil {
		db.Close()
		return nil, err
	}

	log.Infow("Database opened",
		logger.FieldDriver, DriverSQLite,
		logger.FieldFile, dsn,
		"wal_mode", true)

	return NewSQLiteStore(db, log), nil
}

// NewSQLiteStore wraps an already migrated handle.
func NewSQLiteStore(db *sql.DB, log *zap.SugaredLogger) *SQLiteStore {
	if log == nil {
		log = logger.ComponentLogger("store")
	}
	return &SQLiteStore{db: db, logger: log}
}

// bootstrapVersion creates schema_migrations itself.
const bootstrapVersion = "000"

type migration struct {
	version string
	file    string
}

// Migrate brings the hits schema up to date. Each pending migration runs in
// its own transaction together with its schema_migrations row.
func Migrate(db *sql.DB, log *zap.SugaredLogger) error {
	all, err := embeddedMigrations()
	if err != nil {
		return err
	}

	applied, err := appliedVersions(db)
	if err != nil {
		return err
	}

	var ran, skipped int
	for _, m := range all {
		if applied[m.version] {
			skipped++
			continue
		}
		if len(applied) == 0 && ran == 0 && m.version != bootstrapVersion {
			return errors.Newf("schema_migrations is missing and %s is not the bootstrap migration", m.file)
		}

		log.Debugw("Applying migration", logger.FieldDriver, DriverSQLite, logger.FieldFile, m.file)
		if err := applyMigration(db, m); err != nil {
			return err
		}
		ran++
	}

	log.Infow("Schema up to date",
		logger.FieldDriver, DriverSQLite,
		"applied", ran,
		"skipped", skipped,
		"version", all[len(all)-1].version)
	return nil
}

// embeddedMigrations lists migrations/NNN_name.sql ordered by version.
func embeddedMigrations() ([]migration, error) {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return nil, errors.Wrap(err, "read embedded migrations")
	}

	var out []migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		version, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, errors.Newf("migration %s has no version prefix", name)
		}
		out = append(out, migration{version: version, file: name})
	}
	if len(out) == 0 {
		return nil, errors.New("no embedded migrations")
	}

	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// appliedVersions is empty when schema_migrations does not exist yet.
func appliedVersions(db *sql.DB) (map[string]bool, error) {
	applied := make(map[string]bool)

	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'`).Scan(&n)
	if err != nil {
		return nil, errors.Wrap(err, "look up schema_migrations")
	}
	if n == 0 {
		return applied, nil
	}

	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, errors.Wrap(err, "read schema_migrations")
	}
	defer rows.Close()

	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "scan schema_migrations")
		}
		applied[v] = true
	}
	return applied, errors.Wrap(rows.Err(), "read schema_migrations")
}

func applyMigration(db *sql.DB, m migration) error {
	body, err := migrations.ReadFile(path.Join("migrations", m.file))
	if err != nil {
		return errors.Wrapf(err, "read %s", m.file)
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin %s", m.file)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(body)); err != nil {
		return errors.Wrapf(err, "execute %s", m.file)
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.version); err != nil {
		return errors.Wrapf(err, "record %s", m.file)
	}
	return errors.Wrapf(tx.Commit(), "commit %s", m.file)
}

// AppendVisits inserts rows in one transaction. The context is checked once
// more before commit so a write past its deadline is rolled back.
func (s *SQLiteStore) AppendVisits(ctx context.Context, rows []models.VisitRow) error {
	if len(rows) == 0 {
		return nil
	}
	if s.closed.Load() {
		return errors.ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin append")
	}

	for _, row := range rows {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO hits (visited_at, ip) VALUES (?, ?)",
			row.VisitedAt.UnixNano(), row.ID); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "insert visit for %s", row.ID)
		}
	}

	if err := ctx.Err(); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "append cancelled before commit")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit append")
	}

	return nil
}

func (s *SQLiteStore) ReadAllCounts(ctx context.Context) ([]models.CountEntry, error) {
	if s.closed.Load() {
		return nil, errors.ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT ip, COUNT(*) AS hits FROM hits GROUP BY ip ORDER BY hits DESC, ip ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "query counts")
	}
	defer rows.Close()

	var counts []models.CountEntry
	for rows.Next() {
		var c models.CountEntry
		if err := rows.Scan(&c.ID, &c.Count); err != nil {
			return nil, errors.Wrap(err, "scan count")
		}
		counts = append(counts, c)
	}

	return counts, errors.Wrap(rows.Err(), "iterate counts")
}

func (s *SQLiteStore) ReadRecentRows(ctx context.Context, since time.Time) ([]models.VisitRow, error) {
	if s.closed.Load() {
		return nil, errors.ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT ip, visited_at FROM hits WHERE visited_at >= ? ORDER BY visited_at ASC`,
		since.UnixNano())
	if err != nil {
		return nil, errors.Wrap(err, "query recent rows")
	}
	defer rows.Close()

	var out []models.VisitRow
	for rows.Next() {
		var (
			id string
			ns int64
		)
		if err := rows.Scan(&id, &ns); err != nil {
			return nil, errors.Wrap(err, "scan recent row")
		}
		out = append(out, models.VisitRow{ID: id, VisitedAt: fromUnixNano(ns)})
	}

	return out, errors.Wrap(rows.Err(), "iterate recent rows")
}

func (s *SQLiteStore) ReadLastN(ctx context.Context, n int) ([]string, error) {
	if s.closed.Load() {
		return nil, errors.ErrStoreClosed
	}
	if n <= 0 {
		return []string{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT ip FROM hits GROUP BY ip ORDER BY MAX(visited_at) DESC, ip ASC LIMIT ?`, n)
	if err != nil {
		return nil, errors.Wrap(err, "query last visitors")
	}
	defer rows.Close()

	var newestFirst []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan last visitor")
		}
		newestFirst = append(newestFirst, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate last visitors")
	}

	return reversed(newestFirst), nil
}

func (s *SQLiteStore) LatestVisit(ctx context.Context) (time.Time, error) {
	if s.closed.Load() {
		return time.Time{}, errors.ErrStoreClosed
	}

	var ns sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(visited_at) FROM hits`).Scan(&ns); err != nil {
		return time.Time{}, errors.Wrap(err, "query latest visit")
	}
	if !ns.Valid {
		return time.Time{}, nil
	}
	return fromUnixNano(ns.Int64), nil
}

func (s *SQLiteStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

func reversed(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}
