package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/franz/bgdb/internal/util"
)

// SettingHashConfig holds the fingerprint configuration the store was built with
const SettingHashConfig = "hash_config"

// GetSetting returns the stored value and whether it exists
func (s *Store) GetSetting(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, true, nil
}

// PutSetting creates or replaces a setting
func (s *Store) PutSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// EnsureHashConfig records name as the store's fingerprint configuration on
// first use and rejects any later run configured differently.
func (s *Store) EnsureHashConfig(name string) error {
	stored, ok, err := s.GetSetting(SettingHashConfig)
	if err != nil {
		return err
	}
	if !ok {
		return s.PutSetting(SettingHashConfig, name)
	}
	if stored != name {
		return fmt.Errorf("%w: store uses %q, configured %q", util.ErrHashConfigMismatch, stored, name)
	}
	return nil
}

// CheckHashConfig is the read-only variant of EnsureHashConfig: a store that
// has no configuration yet is accepted.
func (s *Store) CheckHashConfig(name string) error {
	stored, ok, err := s.GetSetting(SettingHashConfig)
	if err != nil {
		return err
	}
	if ok && stored != name {
		return fmt.Errorf("%w: store uses %q, configured %q", util.ErrHashConfigMismatch, stored, name)
	}
	return nil
}
