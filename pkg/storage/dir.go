package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirBucket is a Bucket rooted at a local directory. Keys map to file paths
// below the root.
type DirBucket struct {
	root     string
	pageSize int
}

// NewDir returns a DirBucket rooted at root. The directory is created on the
// first Put if it does not exist.
func NewDir(root string, pageSize int) *DirBucket {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &DirBucket{root: root, pageSize: pageSize}
}

// List walks the tree, sorts the keys and returns the page that starts after
// cursor. The cursor is the last key of the previous page.
func (b *DirBucket) List(ctx context.Context, prefix, cursor string) (Page, error) {
	var keys []string
	err := filepath.WalkDir(b.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) && key > cursor {
			keys = append(keys, key)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return Page{}, nil
	}
	if err != nil {
		return Page{}, fmt.Errorf("storage: list %s: %w", b.root, err)
	}

	sort.Strings(keys)
	if len(keys) <= b.pageSize {
		return Page{Keys: keys}, nil
	}
	keys = keys[:b.pageSize]
	return Page{Keys: keys, Next: keys[len(keys)-1]}, nil
}

// Get reads the file for key.
func (b *DirBucket) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get %s: %w", key, err)
	}
	return data, nil
}

// Put writes body atomically via a temp file and rename.
func (b *DirBucket) Put(_ context.Context, key string, body []byte, _ string) error {
	dst := b.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("storage: put %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return fmt.Errorf("storage: put %s: %w", key, err)
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("storage: put %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("storage: put %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("storage: put %s: %w", key, err)
	}
	return nil
}

// Delete removes the files backing keys. Emptied directories are left behind.
func (b *DirBucket) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		if err := os.Remove(b.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("storage: delete %s: %w", key, err)
		}
	}
	return nil
}

func (b *DirBucket) path(key string) string {
	return filepath.Join(b.root, filepath.FromSlash(key))
}

var _ Bucket = (*DirBucket)(nil)
