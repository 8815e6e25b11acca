package store

import (
	"context"
	"encoding/binary"
	"sort"
	"sync/atomic"
	"time"

	"github.com/boltdb/bolt"
	"go.uber.org/zap"

	"hit-tracker/pkg/errors"
	"hit-tracker/pkg/logger"
	"hit-tracker/pkg/models"
)

var (
	// hits: 8-byte visit time + 8-byte sequence -> ip
	bucketHits = []byte("hits")
	// counts: ip -> 8-byte total
	bucketCounts = []byte("counts")
	// lastSeen: ip -> 8-byte newest visit time
	bucketLastSeen = []byte("last_seen")
)

// BoltStore keeps the visit log in a single bolt file. Totals and last-seen
// times are maintained in the same transaction as the log, so reads never
// scan every hit.
type BoltStore struct {
	db     *bolt.DB
	logger *zap.SugaredLogger
	closed atomic.Bool
}

// boltLockTimeout bounds the wait for another process's file lock.
const boltLockTimeout = 5 * time.Second

func OpenBolt(path string, log *zap.SugaredLogger) (*BoltStore, error) {
	return openBolt(path, boltLockTimeout, log)
}

func openBolt(path string, lockTimeout time.Duration, log *zap.SugaredLogger) (*BoltStore, error) {
	if log == nil {
		log = logger.ComponentLogger("store")
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: lockTimeout})
	if err != nil {
		err = errors.Wrapf(err, "failed to open bolt file %s", path)
		if errors.Is(err, bolt.ErrTimeout) {
			// Bolt allows one process per file; a running `hits serve` holds it.
			return nil, errors.WithHintf(err,
				"%s is locked by another process, stop `hits serve` or use store.driver=sqlite to read while serving", path)
		}
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketHits, bucketCounts, bucketLastSeen} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return errors.Wrapf(err, "create bucket %s", name)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Infow("Database opened", logger.FieldDriver, DriverBolt, logger.FieldFile, path)

	return &BoltStore{db: db, logger: log}, nil
}

// AppendVisits writes rows in one bolt transaction. Returning an error from
// the update function rolls everything back, including when ctx ended.
func (s *BoltStore) AppendVisits(ctx context.Context, rows []models.VisitRow) error {
	if len(rows) == 0 {
		return nil
	}
	if s.closed.Load() {
		return errors.ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "append cancelled")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		hits := tx.Bucket(bucketHits)
		counts := tx.Bucket(bucketCounts)
		lastSeen := tx.Bucket(bucketLastSeen)

		for _, row := range rows {
			id := []byte(row.ID)
			ns := row.VisitedAt.UnixNano()

			seq, err := hits.NextSequence()
			if err != nil {
				return errors.Wrap(err, "next hit sequence")
			}
			if err := hits.Put(hitKey(ns, seq), id); err != nil {
				return errors.Wrapf(err, "put visit for %s", row.ID)
			}

			total := decodeUint64(counts.Get(id)) + 1
			if err := counts.Put(id, encodeUint64(total)); err != nil {
				return errors.Wrapf(err, "put count for %s", row.ID)
			}

			if prev := lastSeen.Get(id); prev == nil || int64(decodeUint64(prev)) < ns {
				if err := lastSeen.Put(id, encodeUint64(uint64(ns))); err != nil {
					return errors.Wrapf(err, "put last seen for %s", row.ID)
				}
			}
		}

		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "append cancelled before commit")
		}
		return nil
	})
}

func (s *BoltStore) ReadAllCounts(ctx context.Context) ([]models.CountEntry, error) {
	if err := s.readable(ctx); err != nil {
		return nil, err
	}

	var out []models.CountEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCounts).ForEach(func(k, v []byte) error {
			out = append(out, models.CountEntry{ID: string(k), Count: decodeUint64(v)})
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "read counts")
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *BoltStore) ReadRecentRows(ctx context.Context, since time.Time) ([]models.VisitRow, error) {
	if err := s.readable(ctx); err != nil {
		return nil, err
	}

	var out []models.VisitRow
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketHits).Cursor()
		for k, v := c.Seek(timePrefix(since.UnixNano())); k != nil; k, v = c.Next() {
			out = append(out, models.VisitRow{
				ID:        string(v),
				VisitedAt: fromUnixNano(int64(binary.BigEndian.Uint64(k[:8]))),
			})
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "read recent rows")
	}
	return out, nil
}

func (s *BoltStore) ReadLastN(ctx context.Context, n int) ([]string, error) {
	if err := s.readable(ctx); err != nil {
		return nil, err
	}
	if n <= 0 {
		return []string{}, nil
	}

	type seen struct {
		id string
		ns uint64
	}
	var all []seen
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLastSeen).ForEach(func(k, v []byte) error {
			all = append(all, seen{id: string(k), ns: decodeUint64(v)})
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "read last seen")
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].ns != all[j].ns {
			return all[i].ns > all[j].ns
		}
		return all[i].id < all[j].id
	})
	if len(all) > n {
		all = all[:n]
	}

	ids := make([]string, len(all))
	for i, e := range all {
		ids[len(all)-1-i] = e.id
	}
	return ids, nil
}

func (s *BoltStore) LatestVisit(ctx context.Context) (time.Time, error) {
	if err := s.readable(ctx); err != nil {
		return time.Time{}, err
	}

	var latest time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		k, _ := tx.Bucket(bucketHits).Cursor().Last()
		if k != nil {
			latest = fromUnixNano(int64(binary.BigEndian.Uint64(k[:8])))
		}
		return nil
	})
	if err != nil {
		return time.Time{}, errors.Wrap(err, "read latest visit")
	}
	return latest, nil
}

func (s *BoltStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

func (s *BoltStore) readable(ctx context.Context) error {
	if s.closed.Load() {
		return errors.ErrStoreClosed
	}
	return ctx.Err()
}

// hitKey sorts by visit time, then by insertion order for equal times.
func hitKey(ns int64, seq uint64) []byte {
	return append(timePrefix(ns), encodeUint64(seq)...)
}

func timePrefix(ns int64) []byte {
	if ns < 0 {
		ns = 0
	}
	return encodeUint64(uint64(ns))
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
