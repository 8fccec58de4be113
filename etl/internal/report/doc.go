// Package report publishes a rollup snapshot to the client bucket.
//
// Two layouts are supported:
//   - per_company: {company}/dashboard.json, {company}/{batch}/lote.json
//   - consolidated: {company}/report.json holding {dashboard, batches}
//
// Both layouts also write the global dashboard.json at the sink root.
// Documents are indented JSON with a trailing newline and are emitted in a
// fixed order, so identical snapshots produce identical objects.
//
// After every document is written, report-shaped keys the snapshot no longer
// produces are deleted, so moved batches and layout switches leave nothing
// stale behind. Other keys are never touched.
package report
