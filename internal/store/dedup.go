package store

import (
	"database/sql"
	"errors"
	"time"
)

// toSeconds converts a time to the REAL unix-seconds representation used
// by the dedup and memory tables.
func toSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*1e9))
}

// PurgeDedupBefore deletes dedup rows seen before cutoff.
func (s *Store) PurgeDedupBefore(cutoff time.Time) error {
	_, err := s.db.Exec(`DELETE FROM dedup WHERE seen_at < ?`, toSeconds(cutoff))
	return err
}

// InsertDedup attempts to insert a new dedup key. Returns true if the key
// was inserted (first sighting), false if a row already exists.
func (s *Store) InsertDedup(key string, at time.Time) (bool, error) {
	res, err := s.db.Exec(`INSERT OR IGNORE INTO dedup(key, seen_at) VALUES(?, ?)`, key, toSeconds(at))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DedupSeenAt returns the timestamp of an existing dedup key.
// The second return is false when the key is absent.
func (s *Store) DedupSeenAt(key string) (time.Time, bool, error) {
	var seen float64
	err := s.db.QueryRow(`SELECT seen_at FROM dedup WHERE key = ?`, key).Scan(&seen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return fromSeconds(seen), true, nil
}

// TouchDedup overwrites the timestamp of a dedup key (used when an expired
// key is re-seen).
func (s *Store) TouchDedup(key string, at time.Time) error {
	_, err := s.db.Exec(`REPLACE INTO dedup(key, seen_at) VALUES(?, ?)`, key, toSeconds(at))
	return err
}
