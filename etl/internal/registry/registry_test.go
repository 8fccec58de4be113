package registry

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vizor/fleethealth/etl/internal/config"
)

var columns = []string{"codigo", "lote", "empresa", "modelo"}

func newMock(t *testing.T) (*Loader, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewLoader(db), mock
}

func TestLoad_JoinsBatchAttributes(t *testing.T) {
	l, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM miniComputador mc")).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("D1", int64(10), "Acme", "X1").
			AddRow("D2", int64(11), "Beta", "Y2"))

	reg, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	d1, ok := reg.Lookup("D1")
	require.True(t, ok)
	assert.Equal(t, DeviceRecord{Code: "D1", BatchID: "10", Company: "Acme", Model: "X1"}, d1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoad_NullAttributesBecomeEmpty(t *testing.T) {
	l, mock := newMock(t)
	mock.ExpectQuery("SELECT mc.codigo").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("D9", nil, nil, nil))

	reg, err := l.Load(context.Background())
	require.NoError(t, err)

	d9, ok := reg.Lookup("D9")
	require.True(t, ok)
	assert.Equal(t, "", d9.BatchID)
	assert.Equal(t, "", d9.Company)
	assert.Equal(t, "", d9.Model)
}

func TestLoad_DuplicateCodeLastWins(t *testing.T) {
	l, mock := newMock(t)
	mock.ExpectQuery("SELECT mc.codigo").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("D1", "10", "Acme", "X1").
			AddRow("D1", "20", "Beta", "Y2"))

	reg, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())
	d1, _ := reg.Lookup("D1")
	assert.Equal(t, "20", d1.BatchID)
	assert.Equal(t, "Beta", d1.Company)
}

func TestLoad_QueryErrorIsConnectionError(t *testing.T) {
	l, mock := newMock(t)
	boom := errors.New("connection refused")
	mock.ExpectQuery("SELECT mc.codigo").WillReturnError(boom)

	_, err := l.Load(context.Background())
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "query devices", connErr.Op)
	assert.ErrorIs(t, err, boom)
}

func TestLoad_RowErrorIsConnectionError(t *testing.T) {
	l, mock := newMock(t)
	mock.ExpectQuery("SELECT mc.codigo").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("D1", "10", "Acme", "X1").
			RowError(0, errors.New("lost connection")))

	_, err := l.Load(context.Background())
	var connErr *ConnectionError
	assert.ErrorAs(t, err, &connErr)
}

func TestLookup_Unknown(t *testing.T) {
	reg := New(DeviceRecord{Code: "A"})
	_, ok := reg.Lookup("B")
	assert.False(t, ok)
	_, ok = Registry{}.Lookup("A")
	assert.False(t, ok)
}

func TestDSN(t *testing.T) {
	t.Setenv("TEST_REGISTRY_PASS", "pw")
	dsn := DSN(config.DatabaseConfig{
		Host:        "db.internal",
		Port:        3307,
		User:        "etl",
		Name:        "vizor",
		PasswordEnv: "TEST_REGISTRY_PASS",
		Timeout:     5 * time.Second,
	})
	assert.True(t, strings.HasPrefix(dsn, "etl:pw@tcp(db.internal:3307)/vizor"), dsn)
	assert.Contains(t, dsn, "timeout=5s")
}
