package usecase

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	coreconfig "github.com/AzielCF/az-crm/core/config"
	"github.com/AzielCF/az-crm/domains/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error {
	return f.err
}

func newHealthDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func TestHealthCheckDatabase(t *testing.T) {
	db := newHealthDB(t)
	service := NewHealthService(db, nil, nil, coreconfig.ChannelsConfig{})

	record, err := service.CheckDatabase(context.Background())
	require.NoError(t, err)
	assert.Equal(t, health.StatusOk, record.Status)
	assert.NotNil(t, record.LastSuccess)

	stored, err := service.GetEntityStatus(context.Background(), health.EntityDatabase, "primary")
	require.NoError(t, err)
	assert.Equal(t, health.StatusOk, stored.Status)
	assert.NotEmpty(t, stored.ID)
}

func TestHealthCheckValkeyDisabled(t *testing.T) {
	db := newHealthDB(t)
	service := NewHealthService(db, nil, nil, coreconfig.ChannelsConfig{})

	record, err := service.CheckValkey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, health.StatusUnknown, record.Status)
	assert.Nil(t, record.LastSuccess)
}

// El sello last_success sobrevive a los fallos posteriores: es la marca de
// "desde cuándo" está caída la dependencia.
func TestHealthLLMProxyLastSuccessSurvivesFailures(t *testing.T) {
	db := newHealthDB(t)
	pinger := &fakePinger{err: errors.New("connection refused")}
	service := NewHealthService(db, nil, pinger, coreconfig.ChannelsConfig{})

	record, err := service.CheckLLMProxy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, health.StatusError, record.Status)
	assert.Nil(t, record.LastSuccess)

	pinger.err = nil
	record, err = service.CheckLLMProxy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, health.StatusOk, record.Status)
	require.NotNil(t, record.LastSuccess)
	goodAt := *record.LastSuccess

	pinger.err = errors.New("connection refused")
	record, err = service.CheckLLMProxy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, health.StatusError, record.Status)
	require.NotNil(t, record.LastSuccess)
	assert.Equal(t, goodAt.Unix(), record.LastSuccess.Unix())
}

func TestHealthCheckChannelUnconfigured(t *testing.T) {
	db := newHealthDB(t)
	service := NewHealthService(db, nil, nil, coreconfig.ChannelsConfig{})

	record, err := service.CheckChannel(context.Background(), "email")
	require.NoError(t, err)
	assert.Equal(t, health.StatusUnknown, record.Status)
	assert.Equal(t, "Gateway not configured", record.LastMessage)
}

func TestHealthCheckChannelProbe(t *testing.T) {
	db := newHealthDB(t)

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()

	service := NewHealthService(db, nil, nil, coreconfig.ChannelsConfig{
		WhatsAppBaseURL: up.URL,
		TelegramBaseURL: down.URL,
	})

	record, err := service.CheckChannel(context.Background(), "whatsapp")
	require.NoError(t, err)
	assert.Equal(t, health.StatusOk, record.Status)

	record, err = service.CheckChannel(context.Background(), "telegram")
	require.NoError(t, err)
	assert.Equal(t, health.StatusError, record.Status)
	assert.Contains(t, record.LastMessage, "HTTP 500")
}

func TestHealthCheckAllAndStatus(t *testing.T) {
	db := newHealthDB(t)
	service := NewHealthService(db, nil, &fakePinger{}, coreconfig.ChannelsConfig{})

	records, err := service.CheckAll(context.Background())
	require.NoError(t, err)
	// database, valkey, llm_proxy y los tres canales sin configurar.
	assert.Len(t, records, 6)

	stored, err := service.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 6)
}

func TestHealthReportFailure(t *testing.T) {
	db := newHealthDB(t)
	service := NewHealthService(db, nil, nil, coreconfig.ChannelsConfig{})

	service.ReportFailure(context.Background(), health.EntityChannel, "whatsapp", "dispatch timed out")

	record, err := service.GetEntityStatus(context.Background(), health.EntityChannel, "whatsapp")
	require.NoError(t, err)
	assert.Equal(t, health.StatusError, record.Status)
	assert.Equal(t, "dispatch timed out", record.LastMessage)

	service.ReportSuccess(context.Background(), health.EntityChannel, "whatsapp")
	record, err = service.GetEntityStatus(context.Background(), health.EntityChannel, "whatsapp")
	require.NoError(t, err)
	assert.Equal(t, health.StatusOk, record.Status)
}

func TestHealthUnknownEntityDefaults(t *testing.T) {
	db := newHealthDB(t)
	service := NewHealthService(db, nil, nil, coreconfig.ChannelsConfig{})

	record, err := service.GetEntityStatus(context.Background(), health.EntityMCP, "tools-1")
	require.NoError(t, err)
	assert.Equal(t, health.StatusUnknown, record.Status)
	assert.Empty(t, record.ID)
}
