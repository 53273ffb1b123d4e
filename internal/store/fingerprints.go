package store

import (
	"fmt"
	"strings"

	"github.com/franz/bgdb/internal/util"
)

// FingerprintIdentities returns every identity that already has a fingerprint
func (s *Store) FingerprintIdentities() (map[string]bool, error) {
	rows, err := s.db.Query("SELECT file_name FROM img_hashes")
	if err != nil {
		return nil, fmt.Errorf("failed to query fingerprint identities: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		ids[name] = true
	}

	return ids, rows.Err()
}

// maxInsertRows keeps one INSERT's parameter count (two per row) far below
// sqlite's host parameter limit
const maxInsertRows = 500

// InsertFingerprintBatch writes the batch in one transaction, as multi-row
// INSERTs of at most maxInsertRows rows. Identities that already exist are
// ignored. Returns rows inserted.
func (s *Store) InsertFingerprintBatch(rows []*Fingerprint) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %v", util.ErrStoreWrite, err)
	}
	defer tx.Rollback()

	inserted := 0
	for start := 0; start < len(rows); start += maxInsertRows {
		chunk := rows[start:min(start+maxInsertRows, len(rows))]

		var sb strings.Builder
		sb.WriteString("INSERT OR IGNORE INTO img_hashes (file_name, hash) VALUES ")
		args := make([]any, 0, len(chunk)*2)
		for i, fp := range chunk {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(?, ?)")
			args = append(args, fp.Identity, fp.Hash)
		}

		res, err := tx.Exec(sb.String(), args...)
		if err != nil {
			return 0, fmt.Errorf("%w: %d fingerprints: %v", util.ErrStoreWrite, len(rows), err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		} else {
			inserted += len(chunk)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", util.ErrStoreWrite, err)
	}
	return inserted, nil
}

// AllFingerprints loads the whole fingerprint table in insertion order
func (s *Store) AllFingerprints() ([]*Fingerprint, error) {
	rows, err := s.db.Query("SELECT file_name, hash FROM img_hashes ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query fingerprints: %w", err)
	}
	defer rows.Close()

	var out []*Fingerprint
	for rows.Next() {
		fp := &Fingerprint{}
		if err := rows.Scan(&fp.Identity, &fp.Hash); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		out = append(out, fp)
	}

	return out, rows.Err()
}

// CountFingerprints returns the number of stored fingerprints
func (s *Store) CountFingerprints() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM img_hashes").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count fingerprints: %w", err)
	}
	return count, nil
}

// OrphanFingerprints lists identities whose set id has no metadata row.
// These should not exist; search drops them and the report lists them.
func (s *Store) OrphanFingerprints(limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT file_name FROM img_hashes
		WHERE CAST(substr(file_name, 1, instr(file_name, '_') - 1) AS INTEGER)
		      NOT IN (SELECT id FROM mapsets)
		ORDER BY id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query orphan fingerprints: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		out = append(out, name)
	}

	return out, rows.Err()
}
