// Package config loads and watches the ETL job configuration.
//
// Top-level types:
//   - Config{ETL}: full config tree parsed from YAML
//   - ETLConfig: interval, database, source, sink, ingest, aggregate,
//     output, metrics
//   - DatabaseConfig: host, port, user, name, password_env; Password()
//     resolves from the environment
//   - IngestConfig: suffix, workers, skip_on_read_error
//   - AggregateConfig: csv_schema_version (v1|v2), unknown_device_policy
//     (skip|failFast), malformed_metric_policy (permissive|strict)
//
// Load(path) reads the YAML file (optional), applies defaults, overlays the
// deployment environment (DB_HOST, DB_PORT, DB_USER, DB_PASS, DB_NAME,
// TRUSTED_BUCKET, CLIENT_BUCKET, AWS_REGION, CSV_SCHEMA_VERSION,
// UNKNOWN_DEVICE_POLICY, SKIP_ON_READ_ERROR, MALFORMED_METRIC_POLICY,
// OUTPUT_LAYOUT), then validates. The schema version, the unknown-device
// policy and skip_on_read_error have no defaults: each deployment must pick
// them. Every failure is a *config.Error.
//
// LoadDotEnv(files...) pre-loads .env files via godotenv.
//
// Watch(ctx, path, onChange) re-runs Load whenever the file is saved. Bursts
// of events are coalesced; an interval change is only logged, since the run
// ticker is fixed at startup.
package config
