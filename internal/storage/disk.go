package storage

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"time"
)

// DiskStore writes uploads into a directory served under a URL prefix.
type DiskStore struct {
	dir       string
	urlPrefix string
	maxSize   int64
	now       func() time.Time
}

// NewDiskStore creates the directory when needed. maxSize of 0 disables
// the size check.
func NewDiskStore(dir, urlPrefix string, maxSize int64) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskStore{dir: dir, urlPrefix: urlPrefix, maxSize: maxSize, now: time.Now}, nil
}

// Save writes data to a fresh file and returns its public URL.
func (s *DiskStore) Save(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return "", ErrTooLarge
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	objectName := ObjectName(s.now(), name)
	target := filepath.Join(s.dir, objectName)
	tmp := target + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return path.Join(s.urlPrefix, objectName), nil
}
