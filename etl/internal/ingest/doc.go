// Package ingest discovers telemetry files under the trusted-bucket prefix
// and streams their contents to a pool of workers.
//
// Discovery is a flat, fully paginated listing: every key under the prefix
// at any depth whose name ends in the configured suffix. Continuation
// cursors are followed until exhausted.
//
// Stream fans keys out to N workers. Each worker calls the supplied function
// with its own index so callers can keep per-worker state without locking.
// A read failure either aborts the run with an *IOError or, when
// SkipOnReadError is set, is logged and counted and the key is skipped.
package ingest
