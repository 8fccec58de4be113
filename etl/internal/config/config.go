package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vizor/fleethealth/pkg/storage"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultDBPort          = 3306
	DefaultDBPasswordEnv   = "DB_PASS"
	DefaultDBMaxOpenConns  = 4
	DefaultDBTimeout       = 30 * time.Second
	DefaultTelemetrySuffix = ".csv"
	DefaultIngestWorkers   = 8
	DefaultMalformedPolicy = "permissive"
	DefaultOutputLayout    = "per_company"
	DefaultMetricsJob      = "fleethealth_batch"
)

// Config is the top-level configuration of the ETL job.
type Config struct {
	ETL ETLConfig `yaml:"etl"`
}

// ETLConfig holds all settings of the batch health job.
type ETLConfig struct {
	// Interval between runs. Zero runs once and exits.
	Interval time.Duration `yaml:"interval"`

	Database  DatabaseConfig  `yaml:"database"`
	Source    storage.Config  `yaml:"source"`
	Sink      storage.Config  `yaml:"sink"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Aggregate AggregateConfig `yaml:"aggregate"`
	Output    OutputConfig    `yaml:"output"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// DatabaseConfig locates the MySQL device registry.
type DatabaseConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	User string `yaml:"user"`
	Name string `yaml:"name"`

	// PasswordEnv is the name of the environment variable holding the password.
	PasswordEnv string `yaml:"password_env"`

	MaxOpenConns int `yaml:"max_open_conns"`

	// Timeout bounds connecting and running the registry query.
	Timeout time.Duration `yaml:"timeout"`
}

// Password returns the database password resolved from the environment.
func (d DatabaseConfig) Password() string {
	if d.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(d.PasswordEnv)
}

// IngestConfig controls telemetry discovery and reads.
type IngestConfig struct {
	// Suffix filters discovered keys, e.g. ".csv".
	Suffix string `yaml:"suffix"`

	// Workers is the number of concurrent file readers.
	Workers int `yaml:"workers"`

	// SkipOnReadError logs unreadable files and continues when true; aborts
	// the run when false. Required.
	SkipOnReadError *bool `yaml:"skip_on_read_error"`
}

// AggregateConfig selects the telemetry layout and the data policies.
type AggregateConfig struct {
	// CSVSchemaVersion is one of: v1 (header + 11-column rows) | v2 (headerless).
	// Required.
	CSVSchemaVersion string `yaml:"csv_schema_version"`

	// UnknownDevicePolicy is one of: skip | failFast. Required.
	UnknownDevicePolicy string `yaml:"unknown_device_policy"`

	// MalformedMetricPolicy is one of: permissive | strict.
	MalformedMetricPolicy string `yaml:"malformed_metric_policy"`
}

// OutputConfig controls how reports are laid out in the sink.
type OutputConfig struct {
	// Layout is one of: per_company | consolidated.
	Layout string `yaml:"layout"`
}

// MetricsConfig controls run metrics export. Both targets are optional.
type MetricsConfig struct {
	// Textfile is a path for the node-exporter textfile collector.
	Textfile string `yaml:"textfile"`

	// Pushgateway is the base URL of a Prometheus Pushgateway.
	Pushgateway string `yaml:"pushgateway"`

	// Job is the Pushgateway job label.
	Job string `yaml:"job"`
}

// Error reports a missing or invalid setting. Nothing has run when a
// config.Error is returned.
type Error struct {
	Field string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("config")
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Load reads the YAML config file at path, applies defaults and environment
// overrides, and validates the result. An empty path configures the job from
// the environment alone.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

// LoadDotEnv loads KEY=VALUE pairs from the given .env files into the process
// environment. Variables that are already set win. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return &Error{Field: f, Msg: "load env file", Err: err}
		}
	}
	return nil
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &Error{Msg: "read file", Err: err}
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &Error{Msg: "parse yaml", Err: err}
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		ETL: ETLConfig{
			Database: DatabaseConfig{
				Port:         DefaultDBPort,
				PasswordEnv:  DefaultDBPasswordEnv,
				MaxOpenConns: DefaultDBMaxOpenConns,
				Timeout:      DefaultDBTimeout,
			},
			Ingest: IngestConfig{
				Suffix:  DefaultTelemetrySuffix,
				Workers: DefaultIngestWorkers,
			},
			Aggregate: AggregateConfig{
				MalformedMetricPolicy: DefaultMalformedPolicy,
			},
			Output:  OutputConfig{Layout: DefaultOutputLayout},
			Metrics: MetricsConfig{Job: DefaultMetricsJob},
		},
	}
}

// applyEnv overlays the documented environment variables on cfg.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	e := &cfg.ETL
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("DB_HOST", &e.Database.Host)
	str("DB_USER", &e.Database.User)
	str("DB_NAME", &e.Database.Name)
	if v, ok := lookup("DB_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return &Error{Field: "DB_PORT", Msg: fmt.Sprintf("not a number: %q", v)}
		}
		e.Database.Port = port
	}

	if v, ok := lookup("TRUSTED_BUCKET"); ok && v != "" {
		e.Source.Bucket = v
		if e.Source.Backend == "" {
			e.Source.Backend = "s3"
		}
	}
	if v, ok := lookup("CLIENT_BUCKET"); ok && v != "" {
		e.Sink.Bucket = v
		if e.Sink.Backend == "" {
			e.Sink.Backend = "s3"
		}
	}
	if v, ok := lookup("AWS_REGION"); ok && v != "" {
		if e.Source.Region == "" {
			e.Source.Region = v
		}
		if e.Sink.Region == "" {
			e.Sink.Region = v
		}
	}

	str("CSV_SCHEMA_VERSION", &e.Aggregate.CSVSchemaVersion)
	str("UNKNOWN_DEVICE_POLICY", &e.Aggregate.UnknownDevicePolicy)
	str("MALFORMED_METRIC_POLICY", &e.Aggregate.MalformedMetricPolicy)
	str("OUTPUT_LAYOUT", &e.Output.Layout)

	if v, ok := lookup("SKIP_ON_READ_ERROR"); ok && v != "" {
		skip, err := strconv.ParseBool(v)
		if err != nil {
			return &Error{Field: "SKIP_ON_READ_ERROR", Msg: fmt.Sprintf("not a boolean: %q", v)}
		}
		e.Ingest.SkipOnReadError = &skip
	}
	return nil
}

// validate checks required fields and enums.
func validate(cfg *Config) error {
	e := cfg.ETL
	if e.Interval < 0 {
		return &Error{Field: "etl.interval", Msg: "must not be negative"}
	}

	if e.Database.Host == "" {
		return &Error{Field: "etl.database.host", Msg: "is required"}
	}
	if e.Database.User == "" {
		return &Error{Field: "etl.database.user", Msg: "is required"}
	}
	if e.Database.Name == "" {
		return &Error{Field: "etl.database.name", Msg: "is required"}
	}
	if e.Database.Port <= 0 || e.Database.Port > 65535 {
		return &Error{Field: "etl.database.port", Msg: fmt.Sprintf("%d is out of range [1, 65535]", e.Database.Port)}
	}
	if e.Database.Timeout <= 0 {
		return &Error{Field: "etl.database.timeout", Msg: "must be positive"}
	}

	if err := e.Source.Validate(); err != nil {
		return &Error{Field: "etl.source", Err: err}
	}
	if err := e.Sink.Validate(); err != nil {
		return &Error{Field: "etl.sink", Err: err}
	}

	if e.Ingest.Suffix == "" {
		return &Error{Field: "etl.ingest.suffix", Msg: "is required"}
	}
	if e.Ingest.Workers <= 0 {
		return &Error{Field: "etl.ingest.workers", Msg: "must be positive"}
	}
	if e.Ingest.SkipOnReadError == nil {
		return &Error{Field: "etl.ingest.skip_on_read_error", Msg: "must be set explicitly (true|false)"}
	}

	switch e.Aggregate.CSVSchemaVersion {
	case "v1", "v2":
	case "":
		return &Error{Field: "etl.aggregate.csv_schema_version", Msg: "must be set explicitly (v1|v2)"}
	default:
		return &Error{Field: "etl.aggregate.csv_schema_version", Msg: fmt.Sprintf("unknown version %q: want v1|v2", e.Aggregate.CSVSchemaVersion)}
	}
	switch e.Aggregate.UnknownDevicePolicy {
	case "skip", "failFast":
	case "":
		return &Error{Field: "etl.aggregate.unknown_device_policy", Msg: "must be set explicitly (skip|failFast)"}
	default:
		return &Error{Field: "etl.aggregate.unknown_device_policy", Msg: fmt.Sprintf("unknown policy %q: want skip|failFast", e.Aggregate.UnknownDevicePolicy)}
	}
	switch e.Aggregate.MalformedMetricPolicy {
	case "permissive", "strict":
	default:
		return &Error{Field: "etl.aggregate.malformed_metric_policy", Msg: fmt.Sprintf("unknown policy %q: want permissive|strict", e.Aggregate.MalformedMetricPolicy)}
	}

	switch e.Output.Layout {
	case "per_company", "consolidated":
	default:
		return &Error{Field: "etl.output.layout", Msg: fmt.Sprintf("unknown layout %q: want per_company|consolidated", e.Output.Layout)}
	}
	return nil
}
