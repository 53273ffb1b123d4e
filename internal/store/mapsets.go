package store

import (
	"fmt"
	"strings"

	"github.com/franz/bgdb/internal/util"
)

// sqlite's default host parameter limit is generous, but IN lists are kept
// well below it
const maxInParams = 500

// MapsetIDs returns the set ids of every processed archive
func (s *Store) MapsetIDs() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT id FROM mapsets")
	if err != nil {
		return nil, fmt.Errorf("failed to query mapset ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[int]bool)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan mapset id: %w", err)
		}
		ids[id] = true
	}

	return ids, rows.Err()
}

// ContainsMapset reports whether a metadata row exists for the set id
func (s *Store) ContainsMapset(id int) (bool, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM mapsets WHERE id = ?", id).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to look up mapset %d: %w", id, err)
	}
	return n > 0, nil
}

// InsertMapsetBatch inserts rows in one transaction. Rows whose id already
// exists are left untouched. Returns the number of rows actually inserted.
func (s *Store) InsertMapsetBatch(rows []*Mapset) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %v", util.ErrStoreWrite, err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO mapsets (id, artist, title, creator, mode)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("%w: prepare: %v", util.ErrStoreWrite, err)
	}
	defer stmt.Close()

	inserted := 0
	for _, m := range rows {
		res, err := stmt.Exec(m.ID, m.Artist, m.Title, m.Creator, m.Mode)
		if err != nil {
			return 0, fmt.Errorf("%w: mapset %d: %v", util.ErrStoreWrite, m.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", util.ErrStoreWrite, err)
	}

	return inserted, nil
}

// GetMapsetsByIDs returns the metadata rows for the given ids, keyed by id.
// Ids without a row are absent from the result.
func (s *Store) GetMapsetsByIDs(ids []int) (map[int]*Mapset, error) {
	out := make(map[int]*Mapset, len(ids))

	for start := 0; start < len(ids); start += maxInParams {
		end := min(start+maxInParams, len(ids))
		chunk := ids[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		rows, err := s.db.Query(`
			SELECT id, artist, title, creator, mode
			FROM mapsets WHERE id IN (`+placeholders+`)
		`, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query mapsets: %w", err)
		}

		for rows.Next() {
			m := &Mapset{}
			if err := rows.Scan(&m.ID, &m.Artist, &m.Title, &m.Creator, &m.Mode); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan mapset: %w", err)
			}
			out[m.ID] = m
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}

	return out, nil
}

// CountMapsets returns the number of metadata rows
func (s *Store) CountMapsets() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM mapsets").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count mapsets: %w", err)
	}
	return count, nil
}

// CountMapsetsByMode returns the number of mapsets per mode value
func (s *Store) CountMapsetsByMode() (map[int]int, error) {
	rows, err := s.db.Query("SELECT mode, COUNT(*) FROM mapsets GROUP BY mode")
	if err != nil {
		return nil, fmt.Errorf("failed to count mapsets by mode: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var mode, n int
		if err := rows.Scan(&mode, &n); err != nil {
			return nil, fmt.Errorf("failed to scan mode count: %w", err)
		}
		counts[mode] = n
	}
	return counts, rows.Err()
}
