package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vizor/fleethealth/pkg/storage"
	"github.com/vizor/fleethealth/pkg/types"
)

// ContentType is set on every published document.
const ContentType = "application/json"

// Layout selects how documents are arranged in the sink.
type Layout string

const (
	PerCompany   Layout = "per_company"
	Consolidated Layout = "consolidated"
)

// Document is one object to publish.
type Document struct {
	Key  string
	Body any
}

// WriteError reports a failed publish. Writes are never skipped.
type WriteError struct {
	Key string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("report: write %q: %v", e.Key, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Documents lays snap out as a list of documents. The global dashboard
// comes first, then companies in snapshot order.
func Documents(snap types.Snapshot, layout Layout) []Document {
	docs := []Document{{Key: types.GlobalDashboardKey, Body: snap.Global}}
	for _, c := range snap.Companies {
		if layout == Consolidated {
			docs = append(docs, Document{Key: types.ConsolidatedKey(c.Company), Body: c})
			continue
		}
		docs = append(docs, Document{Key: types.DashboardKey(c.Company), Body: c.Dashboard})
		for _, b := range c.Batches {
			docs = append(docs, Document{Key: types.BatchKey(c.Company, b.BatchID), Body: b})
		}
	}
	return docs
}

// Encode renders v as two-space indented JSON followed by a newline.
func Encode(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Writer publishes snapshots to a bucket.
type Writer struct {
	bucket storage.Bucket
	layout Layout
}

// NewWriter returns a Writer. An unknown layout is treated as PerCompany.
func NewWriter(b storage.Bucket, layout Layout) *Writer {
	if layout != Consolidated {
		layout = PerCompany
	}
	return &Writer{bucket: b, layout: layout}
}

// Write publishes every document of snap, then deletes report documents
// left over from earlier runs that snap no longer produces. It returns how
// many documents were written. The first failure stops the write and is
// returned as a *WriteError; nothing is pruned unless every write succeeded.
func (w *Writer) Write(ctx context.Context, snap types.Snapshot) (int, error) {
	docs := Documents(snap, w.layout)
	written := make(map[string]bool, len(docs))
	for i, d := range docs {
		data, err := Encode(d.Body)
		if err != nil {
			return i, &WriteError{Key: d.Key, Err: err}
		}
		if err := w.bucket.Put(ctx, d.Key, data, ContentType); err != nil {
			return i, &WriteError{Key: d.Key, Err: err}
		}
		written[d.Key] = true
		slog.Debug("report: written", "key", d.Key, "bytes", len(data))
	}

	pruned, err := w.prune(ctx, written)
	if err != nil {
		return len(docs), err
	}
	slog.Info("report: published", "layout", string(w.layout), "documents", len(docs),
		"companies", len(snap.Companies), "pruned", pruned)
	return len(docs), nil
}

// prune deletes every report key in the bucket that is not in keep.
func (w *Writer) prune(ctx context.Context, keep map[string]bool) (int, error) {
	stale, err := storage.ListAll(ctx, w.bucket, "", func(k string) bool {
		return types.IsReportKey(k) && !keep[k]
	})
	if err != nil {
		return 0, &WriteError{Key: "(listing)", Err: err}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := w.bucket.Delete(ctx, stale...); err != nil {
		return 0, &WriteError{Key: stale[0], Err: err}
	}
	slog.Debug("report: pruned", "keys", stale)
	return len(stale), nil
}
