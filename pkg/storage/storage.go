package storage

import (
	"context"
	"errors"
	"fmt"
)

// DefaultPageSize is the listing page size used when Config.PageSize is unset.
const DefaultPageSize = 1000

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("storage: object not found")

// Page is one page of a listing.
type Page struct {
	// Keys found on this page, relative to the bucket prefix.
	Keys []string

	// Next is the cursor for the following page. Empty when the listing is
	// exhausted.
	Next string
}

// Bucket is a hierarchical object store.
type Bucket interface {
	// List returns one page of keys starting with prefix. Pass the previous
	// page's Next as cursor; an empty cursor starts from the beginning.
	List(ctx context.Context, prefix, cursor string) (Page, error)

	// Get reads the whole object at key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes body to key, replacing any existing object.
	Put(ctx context.Context, key string, body []byte, contentType string) error

	// Delete removes keys. Keys that do not exist are not an error.
	Delete(ctx context.Context, keys ...string) error
}

// Config selects and configures a Bucket backend.
type Config struct {
	// Backend is one of: s3 | dir.
	Backend string `yaml:"backend"`

	// Bucket is the S3 bucket name (s3 backend).
	Bucket string `yaml:"bucket"`

	// Prefix is prepended to every key (s3 backend). Optional.
	Prefix string `yaml:"prefix"`

	// Region is the AWS region (s3 backend). Falls back to the SDK default chain.
	Region string `yaml:"region"`

	// Endpoint overrides the S3 endpoint, e.g. for MinIO. Enables path-style
	// addressing.
	Endpoint string `yaml:"endpoint"`

	// Dir is the root directory (dir backend).
	Dir string `yaml:"dir"`

	// PageSize bounds the number of keys returned per List call.
	PageSize int `yaml:"page_size"`
}

// Validate checks that the fields required by the selected backend are set.
func (c Config) Validate() error {
	switch c.Backend {
	case "s3":
		if c.Bucket == "" {
			return fmt.Errorf("bucket is required for backend s3")
		}
	case "dir":
		if c.Dir == "" {
			return fmt.Errorf("dir is required for backend dir")
		}
	case "":
		return fmt.Errorf("backend is required")
	default:
		return fmt.Errorf("unknown backend %q: want s3|dir", c.Backend)
	}
	if c.PageSize < 0 {
		return fmt.Errorf("page_size must not be negative")
	}
	return nil
}

// Open builds the Bucket described by cfg.
func Open(ctx context.Context, cfg Config) (Bucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	pageSize := cfg.PageSize
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	switch cfg.Backend {
	case "s3":
		return NewS3(ctx, cfg.Bucket, cfg.Prefix, cfg.Region, cfg.Endpoint, pageSize)
	default:
		return NewDir(cfg.Dir, pageSize), nil
	}
}

// ListAll follows the listing cursor until it is exhausted and returns every
// key under prefix accepted by keep (nil keeps all).
//
// A bucket that hands back the same cursor twice would otherwise loop
// forever; ListAll treats that as an error.
func ListAll(ctx context.Context, b Bucket, prefix string, keep func(key string) bool) ([]string, error) {
	var (
		keys   []string
		cursor string
		seen   = make(map[string]struct{})
	)
	for {
		page, err := b.List(ctx, prefix, cursor)
		if err != nil {
			return nil, err
		}
		for _, k := range page.Keys {
			if keep == nil || keep(k) {
				keys = append(keys, k)
			}
		}
		if page.Next == "" {
			return keys, nil
		}
		if _, dup := seen[page.Next]; dup {
			return nil, fmt.Errorf("storage: listing cursor %q repeated", page.Next)
		}
		seen[page.Next] = struct{}{}
		cursor = page.Next
	}
}
