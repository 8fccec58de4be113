// Package storage abstracts the hierarchical object stores the system reads
// telemetry from and publishes reports to.
//
// Bucket is the minimal surface the jobs need: cursor-paginated listing,
// whole-object reads and writes, and deletes for pruning stale reports. Keys are always slash-separated and relative
// to the bucket's configured prefix.
//
// Backends:
//   - s3    : Amazon S3 or any S3-compatible endpoint (aws-sdk-go-v2).
//     List is a flat ListObjectsV2 scan driven by ContinuationToken, so
//     nested "directories" are covered without recursion.
//   - dir   : a local directory tree, used for development and
//     integration tests. List pages over the sorted key space with a
//     start-after cursor.
//   - Memory: an in-process bucket for unit tests (not selectable by
//     config).
//
// Open(ctx, Config) builds a Bucket from a config block.
package storage
