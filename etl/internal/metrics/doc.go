// Package metrics records per-run counters of the ETL job on a private
// Prometheus registry and exports them after each run, either as a
// node-exporter textfile (expfmt text format) or by pushing to a Pushgateway.
package metrics
