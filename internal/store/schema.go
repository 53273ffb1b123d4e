package store

// Schema v1 - mapset metadata, image fingerprints, settings
const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- One row per fully processed archive, keyed by beatmap set id
CREATE TABLE IF NOT EXISTS mapsets (
  id INTEGER PRIMARY KEY,
  artist TEXT NOT NULL,
  title TEXT NOT NULL,
  creator TEXT NOT NULL,
  mode INTEGER NOT NULL DEFAULT 0
);

-- One row per decodable stored image; file_name is the content store identity
CREATE TABLE IF NOT EXISTS img_hashes (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  file_name TEXT UNIQUE NOT NULL,
  hash BLOB NOT NULL
);

-- Run-independent configuration, e.g. the fingerprint algorithm
CREATE TABLE IF NOT EXISTS settings (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL
);
`
