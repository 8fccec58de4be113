package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Task is a named unit of work run by RunIsolated.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// RunIsolated runs every task concurrently and waits for all of them.
// A task's error or panic is recorded under its name and never affects the
// other tasks. The returned map holds only failed tasks.
func RunIsolated(ctx context.Context, tasks ...Task) map[string]error {
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		errs = make(map[string]error)
	)
	for _, t := range tasks {
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			if err := runTask(ctx, t); err != nil {
				slog.Error("pipeline: task failed", "task", t.Name, "err", err)
				mu.Lock()
				errs[t.Name] = err
				mu.Unlock()
				return
			}
			slog.Info("pipeline: task finished", "task", t.Name)
		}(t)
	}
	wg.Wait()
	return errs
}

func runTask(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline: task panicked", "task", t.Name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("pipeline: task %s panicked: %v", t.Name, r)
		}
	}()
	return t.Run(ctx)
}
