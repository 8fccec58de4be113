// Package pipeline runs the batch health job end to end:
//
//	load registry ┐
//	              ├─> read files on N workers ─> merge ─> score ─> rollup ─> write
//	discover keys ┘
//
// Each worker folds into its own compute.Aggregator; they are merged only
// after every file has been read, so no aggregation state is shared. The
// first fatal error cancels the run and nothing is published.
//
// RunIsolated executes several jobs side by side so that a failure or panic
// in one never stops the others.
package pipeline
