package store

import "time"

// Turn is one conversation turn in the append-only memory log.
type Turn struct {
	Role string // "user" or "assistant"
	Text string
}

// AddTurn appends a conversation turn for a user. Turns are never deleted;
// retrieval is bounded by RecentTurns instead.
func (s *Store) AddTurn(userID, role, text string, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO memory(user_id, role, text, seen_at) VALUES(?, ?, ?, ?)`,
		userID, role, text, toSeconds(at),
	)
	return err
}

// RecentTurns returns up to limit most recent turns for a user, ordered
// oldest to newest.
func (s *Store) RecentTurns(userID string, limit int) ([]Turn, error) {
	rows, err := s.db.Query(
		`SELECT role, text FROM memory WHERE user_id = ? ORDER BY seen_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Role, &t.Text); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returns newest first; callers want chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}
