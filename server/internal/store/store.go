package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vizor/fleethealth/pkg/storage"
	"github.com/vizor/fleethealth/pkg/types"
)

// Entry is a snapshot together with the time it was loaded.
type Entry struct {
	Snapshot  types.Snapshot
	LoadedAt  time.Time
	Documents int
}

// Store is a thread-safe holder of the latest report snapshot.
type Store struct {
	mu        sync.RWMutex
	bucket    storage.Bucket
	current   *Entry
	listeners []func(*Entry)
	now       func() time.Time // injectable for deterministic tests
}

// New creates a Store that reloads from b.
func New(b storage.Bucket) *Store {
	return &Store{bucket: b, now: time.Now}
}

// Put replaces the current snapshot and notifies listeners.
// Callers must not modify snap after calling Put.
func (s *Store) Put(snap types.Snapshot, documents int) *Entry {
	e := &Entry{Snapshot: snap, LoadedAt: s.now(), Documents: documents}

	s.mu.Lock()
	s.current = e
	listeners := append(([]func(*Entry))(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(e)
	}
	return e
}

// Get returns the current entry, or false if nothing has been loaded yet.
func (s *Store) Get() (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.current != nil
}

// Company returns the named company's report from the current snapshot.
func (s *Store) Company(name string) (types.CompanyReport, bool) {
	e, ok := s.Get()
	if !ok {
		return types.CompanyReport{}, false
	}
	c, ok := e.Snapshot.Company(name)
	if !ok {
		return types.CompanyReport{}, false
	}
	return *c, true
}

// OnUpdate registers fn to be called after every Put or successful Reload.
func (s *Store) OnUpdate(fn func(*Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Reload reads the bucket and replaces the snapshot. On error the previous
// snapshot is kept.
func (s *Store) Reload(ctx context.Context) (*Entry, error) {
	snap, n, err := Load(ctx, s.bucket)
	if err != nil {
		return nil, err
	}
	return s.Put(snap, n), nil
}

// Run reloads immediately and then every interval until ctx is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	s.reload(ctx)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.reload(ctx)
		}
	}
}

func (s *Store) reload(ctx context.Context) {
	e, err := s.Reload(ctx)
	if err != nil {
		slog.Warn("store: reload failed, keeping previous snapshot", "err", err)
		return
	}
	slog.Debug("store: reloaded",
		"documents", e.Documents,
		"companies", len(e.Snapshot.Companies),
	)
}
