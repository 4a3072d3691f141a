// Package storage - HD key index issuance.
package storage

import "database/sql"

// NextKeyIndex reserves the next HD index for a wallet. Issuance is
// monotonic and persisted, so a restart can never reissue an index;
// an index burned by a failed swap insert is simply skipped.
func (s *Storage) NextKeyIndex(symbol string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var index uint32
	err = tx.QueryRow("SELECT next_index FROM key_indices WHERE symbol = ?", symbol).Scan(&index)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.Exec("INSERT INTO key_indices (symbol, next_index) VALUES (?, 1)", symbol); err != nil {
			return 0, err
		}
		index = 0
	case err != nil:
		return 0, err
	default:
		if _, err := tx.Exec("UPDATE key_indices SET next_index = next_index + 1 WHERE symbol = ?", symbol); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return index, nil
}
