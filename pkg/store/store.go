// Package store is the durable, append-only visit log behind the in-memory ledger.
package store

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"hit-tracker/pkg/errors"
	"hit-tracker/pkg/logger"
	"hit-tracker/pkg/models"
)

const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
)

// Store persists one row per visit. AppendVisits is atomic and must not
// commit once ctx is done.
type Store interface {
	AppendVisits(ctx context.Context, rows []models.VisitRow) error

	// ReadAllCounts returns per-identifier visit totals, highest first.
	ReadAllCounts(ctx context.Context) ([]models.CountEntry, error)

	// ReadRecentRows returns rows visited at or after since, oldest first.
	ReadRecentRows(ctx context.Context, since time.Time) ([]models.VisitRow, error)

	// ReadLastN returns the n most recently seen distinct identifiers,
	// oldest to newest so they can be replayed into a recency queue.
	ReadLastN(ctx context.Context, n int) ([]string, error)

	// LatestVisit returns the newest stored visit time, zero if empty.
	LatestVisit(ctx context.Context) (time.Time, error)

	Close() error
}

type Config struct {
	Driver string
	Path   string
}

// Open opens the store backend named by cfg.Driver.
func Open(cfg Config, log *zap.SugaredLogger) (Store, error) {
	if log == nil {
		log = logger.ComponentLogger("store")
	}

	switch strings.ToLower(cfg.Driver) {
	case DriverSQLite, "sqlite3":
		return OpenSQLite(cfg.Path, log)
	case DriverBolt, "boltdb":
		return OpenBolt(cfg.Path, log)
	default:
		err := errors.Wrapf(errors.ErrUnknownDriver, "open store %q", cfg.Driver)
		return nil, errors.WithHintf(err, "set store.driver to %q or %q", DriverSQLite, DriverBolt)
	}
}

func fromUnixNano(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}
