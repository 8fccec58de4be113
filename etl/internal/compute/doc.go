// Package compute turns telemetry rows into scored batch reports and
// company rollups.
//
// sample.go parses telemetry files in one of two CSV layouts (v1: header
// line then 11-column rows, v2: headerless rows with status at column 10).
// Numeric fields that do not parse become NaN; every comparison against NaN
// is false, so a malformed metric never counts as a failure unless the
// strict policy is selected.
//
// aggregate.go provides the Aggregator, a fold of samples into one
// BatchAccumulator per batch. Device membership is tracked with DeviceSet
// (deduplicated); component failure counters are per row (not deduplicated).
// An Aggregator is not safe for concurrent use: give each worker its own and
// combine them with Merge, which is associative and commutative.
//
// score.go maps an accumulator to a BatchReport: score = round(100 - problem%),
// Critical <50, Alert 50-69, OK >=70.
//
// rollup.go computes Median, Dashboard and the per-company Rollup.
package compute
