package registry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/vizor/fleethealth/etl/internal/config"
)

// deviceQuery resolves device -> batch -> company/model. LEFT JOINs keep
// devices whose batch, company or model is missing.
const deviceQuery = `
	SELECT mc.codigo AS codigo,
	       l.id      AS lote,
	       e.nome    AS empresa,
	       m.nome    AS modelo
	FROM miniComputador mc
	LEFT JOIN lote l    ON mc.fkLote = l.id
	LEFT JOIN empresa e ON l.fkEmpresa = e.id
	LEFT JOIN modelo m  ON l.fkModelo = m.id`

// DeviceRecord is one device code and the batch attributes it resolves to.
// Missing attributes are empty strings.
type DeviceRecord struct {
	Code    string
	BatchID string
	Company string
	Model   string
}

// Registry is an immutable lookup from device code to DeviceRecord.
type Registry struct {
	devices map[string]DeviceRecord
}

// New builds a Registry from records. Later records replace earlier ones
// with the same code.
func New(records ...DeviceRecord) Registry {
	r := Registry{devices: make(map[string]DeviceRecord, len(records))}
	for _, rec := range records {
		r.devices[rec.Code] = rec
	}
	return r
}

// Lookup returns the record for code.
func (r Registry) Lookup(code string) (DeviceRecord, bool) {
	rec, ok := r.devices[code]
	return rec, ok
}

// Len returns the number of distinct device codes.
func (r Registry) Len() int { return len(r.devices) }

// ConnectionError reports that the registry database could not be reached or
// queried.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("registry: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Loader reads the registry from an open database handle.
type Loader struct {
	db *sql.DB
}

// NewLoader returns a Loader that queries db.
func NewLoader(db *sql.DB) *Loader {
	return &Loader{db: db}
}

// Load runs the registry query and returns the resulting Registry.
func (l *Loader) Load(ctx context.Context) (Registry, error) {
	rows, err := l.db.QueryContext(ctx, deviceQuery)
	if err != nil {
		return Registry{}, &ConnectionError{Op: "query devices", Err: err}
	}
	defer rows.Close()

	var records []DeviceRecord
	for rows.Next() {
		var code, batch, company, model sql.NullString
		if err := rows.Scan(&code, &batch, &company, &model); err != nil {
			return Registry{}, &ConnectionError{Op: "scan device row", Err: err}
		}
		records = append(records, DeviceRecord{
			Code:    code.String,
			BatchID: batch.String,
			Company: company.String,
			Model:   model.String,
		})
	}
	if err := rows.Err(); err != nil {
		return Registry{}, &ConnectionError{Op: "read device rows", Err: err}
	}

	reg := New(records...)
	slog.Info("registry: loaded", "rows", len(records), "devices", reg.Len())
	return reg, nil
}

// DSN renders cfg as a go-sql-driver/mysql data source name.
func DSN(cfg config.DatabaseConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password()
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mc.DBName = cfg.Name
	mc.Timeout = cfg.Timeout
	mc.ReadTimeout = cfg.Timeout
	return mc.FormatDSN()
}

// Connect opens a connection pool to the registry database and pings it
// until it answers or cfg.Timeout elapses.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", DSN(cfg))
	if err != nil {
		return nil, &ConnectionError{Op: "open", Err: err}
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := ping(ctx, db, cfg.Timeout); err != nil {
		db.Close()
		return nil, &ConnectionError{Op: "ping " + cfg.Host, Err: err}
	}
	return db, nil
}

// ping retries with exponential backoff, capped at 5s between attempts.
func ping(ctx context.Context, db *sql.DB, maxWait time.Duration) error {
	deadline := time.Now().Add(maxWait)
	wait := 250 * time.Millisecond
	for {
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := db.PingContext(pctx)
		cancel()
		if err == nil {
			return nil
		}
		if time.Now().Add(wait).After(deadline) {
			return err
		}
		slog.Warn("registry: database not ready, retrying", "in", wait, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > 5*time.Second {
			wait = 5 * time.Second
		}
	}
}
