package content

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/franz/bgdb/internal/util"
)

// FSStore keeps one file per identity in a single directory
type FSStore struct {
	dir   string
	retry *util.RetryConfig
}

// NewFS creates dir if needed
func NewFS(dir string) (*FSStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: content directory is empty", util.ErrInvalidConfig)
	}

	cfg := util.DefaultRetryConfig()
	if err := util.RetryableMkdirAll(dir, 0755, cfg); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}
	return &FSStore{dir: dir, retry: cfg}, nil
}

// Dir returns the backing directory
func (f *FSStore) Dir() string {
	return f.dir
}

func (f *FSStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list content directory: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !ValidIdentity(e.Name()) {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *FSStore) Exists(ctx context.Context, identity string) (bool, error) {
	if !ValidIdentity(identity) {
		return false, nil
	}
	_, err := os.Stat(filepath.Join(f.dir, identity))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Write stages data in a temp file and hard-links it into place, so a reader
// never sees a partial image and a concurrent writer of the same identity loses.
func (f *FSStore) Write(ctx context.Context, identity string, data []byte) (bool, error) {
	if !ValidIdentity(identity) {
		return false, fmt.Errorf("%w: invalid identity %q", util.ErrStoreWrite, identity)
	}
	dst := filepath.Join(f.dir, identity)

	return util.RetryWithBackoff(f.retry, func() (bool, error) {
		if _, err := os.Stat(dst); err == nil {
			return false, nil
		}

		tmp, err := os.CreateTemp(f.dir, ".tmp-*")
		if err != nil {
			return false, err
		}
		defer os.Remove(tmp.Name())

		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			return false, err
		}
		if err := tmp.Close(); err != nil {
			return false, err
		}

		if err := os.Link(tmp.Name(), dst); err != nil {
			if errors.Is(err, fs.ErrExist) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	}, "write("+identity+")")
}

func (f *FSStore) Read(ctx context.Context, identity string) ([]byte, error) {
	if !ValidIdentity(identity) {
		return nil, fmt.Errorf("%w: %s", util.ErrNotFound, identity)
	}
	data, err := util.RetryableReadFile(filepath.Join(f.dir, identity), f.retry)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", util.ErrNotFound, identity)
	}
	return data, err
}
