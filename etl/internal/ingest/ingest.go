package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/vizor/fleethealth/pkg/storage"
)

// File is one telemetry object read from the source bucket.
type File struct {
	Key     string
	Content []byte
}

// IOError reports a failure to list or read the source bucket.
type IOError struct {
	Op  string
	Key string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("ingest: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Options controls discovery and reads.
type Options struct {
	// Prefix is the listing root inside the bucket.
	Prefix string

	// Suffix filters discovered keys. Empty keeps every key.
	Suffix string

	// Workers is the number of concurrent readers. Values < 1 mean 1.
	Workers int

	SkipOnReadError bool
}

// Stats summarises one Stream call.
type Stats struct {
	Read    int64
	Skipped int64
}

// Source reads telemetry from a storage bucket.
type Source struct {
	bucket storage.Bucket
	opts   Options
}

// New returns a Source reading from b.
func New(b storage.Bucket, opts Options) *Source {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Source{bucket: b, opts: opts}
}

// Discover lists every telemetry key under the configured prefix.
func (s *Source) Discover(ctx context.Context) ([]string, error) {
	keys, err := storage.ListAll(ctx, s.bucket, s.opts.Prefix, s.keep)
	if err != nil {
		return nil, &IOError{Op: "list", Key: s.opts.Prefix, Err: err}
	}
	slog.Info("ingest: discovered telemetry files", "prefix", s.opts.Prefix, "files", len(keys))
	return keys, nil
}

func (s *Source) keep(key string) bool {
	return s.opts.Suffix == "" || strings.HasSuffix(key, s.opts.Suffix)
}

// Stream reads every key and hands it to fn on one of the worker goroutines.
// fn is never called concurrently with the same worker index. The first
// error returned by fn, or the first read error when skipping is disabled,
// cancels the remaining work and is returned.
func (s *Source) Stream(ctx context.Context, keys []string, fn func(worker int, f File) error) (Stats, error) {
	var read, skipped atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	queue := make(chan string)

	g.Go(func() error {
		defer close(queue)
		for _, k := range keys {
			select {
			case queue <- k:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < s.opts.Workers; i++ {
		worker := i
		g.Go(func() error {
			for key := range queue {
				if err := ctx.Err(); err != nil {
					return err
				}
				data, err := s.bucket.Get(ctx, key)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					if s.opts.SkipOnReadError {
						skipped.Add(1)
						slog.Warn("ingest: skipping unreadable file", "key", key, "err", err)
						continue
					}
					return &IOError{Op: "read", Key: key, Err: err}
				}
				read.Add(1)
				if err := fn(worker, File{Key: key, Content: data}); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err := g.Wait()
	return Stats{Read: read.Load(), Skipped: skipped.Load()}, err
}

// Workers returns the effective worker count.
func (s *Source) Workers() int { return s.opts.Workers }
