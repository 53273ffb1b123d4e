// Package content stores extracted background images under flat identities
// of the form "<setID>_<path without separators>".
package content

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/franz/bgdb/internal/util"
)

// Store is a write-once blob namespace keyed by identity
type Store interface {
	// List returns every stored identity
	List(ctx context.Context) ([]string, error)
	// Exists reports whether identity is stored
	Exists(ctx context.Context, identity string) (bool, error)
	// Write stores data unless identity already exists; it reports whether
	// anything was written
	Write(ctx context.Context, identity string, data []byte) (bool, error)
	// Read returns the stored bytes or an error wrapping util.ErrNotFound
	Read(ctx context.Context, identity string) ([]byte, error)
}

// Config selects and configures a backend
type Config struct {
	Backend string // "fs" (default) or "s3"
	Dir     string
	S3      S3Config
}

// Open returns the configured backend
func Open(ctx context.Context, cfg *Config) (Store, error) {
	switch cfg.Backend {
	case "", "fs":
		return NewFS(cfg.Dir)
	case "s3":
		return NewS3(ctx, &cfg.S3)
	default:
		return nil, fmt.Errorf("%w: unknown content backend %q", util.ErrInvalidConfig, cfg.Backend)
	}
}

// Identity builds the flat identity of an archive entry
func Identity(setID int, entryPath string) string {
	flat := strings.NewReplacer("/", "", "\\", "").Replace(entryPath)
	return strconv.Itoa(setID) + "_" + flat
}

// SetID returns the numeric prefix of an identity
func SetID(identity string) (int, bool) {
	prefix, _, ok := strings.Cut(identity, "_")
	if !ok || prefix == "" {
		return 0, false
	}
	id, err := strconv.Atoi(prefix)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// ImageName returns the identity without its set prefix
func ImageName(identity string) string {
	_, name, _ := strings.Cut(identity, "_")
	return name
}

// ValidIdentity reports whether identity is a flat name with a set prefix
func ValidIdentity(identity string) bool {
	if strings.ContainsAny(identity, "/\\\x00") {
		return false
	}
	if _, ok := SetID(identity); !ok {
		return false
	}
	return ImageName(identity) != ""
}
