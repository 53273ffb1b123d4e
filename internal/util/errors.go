package util

import "errors"

// Sentinel errors for the ingestion and search failure modes.
// Per-unit errors (one archive, one image, one batch) are wrapped around these
// and reported in run statistics; they never abort a batch on their own.
var (
	// ErrContainerOpen indicates an archive is corrupt or not a zip container
	ErrContainerOpen = errors.New("container open failed")

	// ErrParse indicates a difficulty file could not be parsed
	ErrParse = errors.New("parse error")

	// ErrNoUsableDifficulty indicates no difficulty in an archive yielded
	// both a background reference and a metadata block
	ErrNoUsableDifficulty = errors.New("no usable difficulty")

	// ErrDecode indicates bytes could not be decoded (text encoding or image)
	ErrDecode = errors.New("decode error")

	// ErrStoreWrite indicates a batch insert failed
	ErrStoreWrite = errors.New("store write failed")

	// ErrQueryDecode indicates a search query image could not be decoded
	ErrQueryDecode = errors.New("query image could not be decoded")

	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrHashConfigMismatch indicates the configured fingerprint algorithm
	// differs from the one the store was built with
	ErrHashConfigMismatch = errors.New("fingerprint configuration mismatch")

	// ErrHashLengthMismatch indicates two fingerprints of different length were compared
	ErrHashLengthMismatch = errors.New("fingerprint length mismatch")
)
