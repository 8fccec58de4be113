package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vizor/fleethealth/pkg/storage"
)

func seed(t *testing.T, pageSize int, keys ...string) *storage.Memory {
	t.Helper()
	m := storage.NewMemory(pageSize)
	for _, k := range keys {
		m.PutString(k, "content of "+k)
	}
	return m
}

func TestDiscover_RecursiveAndFiltered(t *testing.T) {
	m := seed(t, 2,
		"raw/acme/m1/2024-05-01/a.csv",
		"raw/acme/m1/2024-05-02/b.csv",
		"raw/beta/m7/c.csv",
		"raw/beta/m7/notes.txt",
		"raw/d.csv",
		"other/e.csv",
	)
	src := New(m, Options{Prefix: "raw/", Suffix: ".csv", Workers: 2})

	keys, err := src.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"raw/acme/m1/2024-05-01/a.csv",
		"raw/acme/m1/2024-05-02/b.csv",
		"raw/beta/m7/c.csv",
		"raw/d.csv",
	}, keys)
	assert.Greater(t, m.ListCalls(), 1, "listing should have paginated")
}

func TestDiscover_EmptyPrefix(t *testing.T) {
	src := New(storage.NewMemory(10), Options{Suffix: ".csv"})
	keys, err := src.Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStream_DeliversEveryFile(t *testing.T) {
	var keys []string
	for i := 0; i < 25; i++ {
		keys = append(keys, fmt.Sprintf("f%02d.csv", i))
	}
	m := seed(t, 0, keys...)
	src := New(m, Options{Workers: 4})

	var mu sync.Mutex
	var got []string
	workers := map[int]bool{}
	stats, err := src.Stream(context.Background(), keys, func(w int, f File) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, f.Key)
		workers[w] = true
		assert.Equal(t, "content of "+f.Key, string(f.Content))
		return nil
	})
	require.NoError(t, err)
	sort.Strings(got)
	assert.Equal(t, keys, got)
	assert.Equal(t, int64(25), stats.Read)
	assert.Zero(t, stats.Skipped)
	for w := range workers {
		assert.True(t, w >= 0 && w < 4, "worker index %d out of range", w)
	}
}

func TestStream_ReadErrorAborts(t *testing.T) {
	m := seed(t, 0, "a.csv", "b.csv")
	boom := errors.New("access denied")
	m.FailGet("b.csv", boom)
	src := New(m, Options{Workers: 1})

	_, err := src.Stream(context.Background(), []string{"a.csv", "b.csv"}, func(int, File) error { return nil })
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "b.csv", ioErr.Key)
	assert.ErrorIs(t, err, boom)
}

func TestStream_ReadErrorSkipped(t *testing.T) {
	m := seed(t, 0, "a.csv", "b.csv", "c.csv")
	m.FailGet("b.csv", errors.New("access denied"))
	src := New(m, Options{Workers: 2, SkipOnReadError: true})

	var mu sync.Mutex
	var got []string
	stats, err := src.Stream(context.Background(), []string{"a.csv", "b.csv", "c.csv"}, func(_ int, f File) error {
		mu.Lock()
		got = append(got, f.Key)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	sort.Strings(got)
	assert.Equal(t, []string{"a.csv", "c.csv"}, got)
	assert.Equal(t, int64(2), stats.Read)
	assert.Equal(t, int64(1), stats.Skipped)
}

func TestStream_CallbackErrorCancels(t *testing.T) {
	var keys []string
	for i := 0; i < 50; i++ {
		keys = append(keys, fmt.Sprintf("f%02d.csv", i))
	}
	src := New(seed(t, 0, keys...), Options{Workers: 3})

	stop := errors.New("unknown device")
	var mu sync.Mutex
	calls := 0
	_, err := src.Stream(context.Background(), keys, func(int, File) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Less(t, calls, len(keys))
}

func TestStream_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := New(seed(t, 0, "a.csv"), Options{Workers: 1})
	_, err := src.Stream(ctx, []string{"a.csv"}, func(int, File) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
