package usecase

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	coreconfig "github.com/AzielCF/az-crm/core/config"
	"github.com/AzielCF/az-crm/domains/health"
	"github.com/AzielCF/az-crm/infrastructure/valkey"
	"github.com/AzielCF/az-crm/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// llmPinger es lo mínimo que el monitor necesita del proxy LLM.
type llmPinger interface {
	Ping(ctx context.Context) error
}

type healthService struct {
	records    health.IHealthRepository
	db         *gorm.DB
	vk         *valkey.Client
	llm        llmPinger
	channels   coreconfig.ChannelsConfig
	httpClient *http.Client
}

// NewHealthService vigila las dependencias externas: base de datos, Valkey,
// proxy LLM y gateways de canal. Inicializa su propia tabla de estados.
func NewHealthService(db *gorm.DB, vk *valkey.Client, llm llmPinger, channels coreconfig.ChannelsConfig) health.IHealthUsecase {
	records := repository.NewHealthGormRepository(db)
	if err := records.InitSchema(context.Background()); err != nil {
		logrus.WithError(err).Error("[Health] failed to initialize storage")
	}
	return &healthService{
		records:    records,
		db:         db,
		vk:         vk,
		llm:        llm,
		channels:   channels,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *healthService) CheckDatabase(ctx context.Context) (health.HealthRecord, error) {
	record := health.HealthRecord{
		EntityType:  health.EntityDatabase,
		EntityID:    "primary",
		Status:      health.StatusOk,
		LastMessage: "Connection successful",
	}

	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		record.Status = health.StatusError
		record.LastMessage = err.Error()
	}

	return record, s.records.Upsert(ctx, &record)
}

func (s *healthService) CheckValkey(ctx context.Context) (health.HealthRecord, error) {
	record := health.HealthRecord{
		EntityType:  health.EntityValkey,
		EntityID:    "primary",
		Status:      health.StatusOk,
		LastMessage: "Connection successful",
	}

	if s.vk == nil {
		record.Status = health.StatusUnknown
		record.LastMessage = "Valkey disabled, using in-memory stores"
	} else if err := s.vk.Ping(ctx); err != nil {
		record.Status = health.StatusError
		record.LastMessage = err.Error()
	}

	return record, s.records.Upsert(ctx, &record)
}

func (s *healthService) CheckLLMProxy(ctx context.Context) (health.HealthRecord, error) {
	record := health.HealthRecord{
		EntityType:  health.EntityLLMProxy,
		EntityID:    "proxy",
		Status:      health.StatusOk,
		LastMessage: "Connection successful",
	}

	if s.llm == nil {
		record.Status = health.StatusUnknown
		record.LastMessage = "LLM proxy not configured"
	} else if err := s.llm.Ping(ctx); err != nil {
		record.Status = health.StatusError
		record.LastMessage = err.Error()
	}

	return record, s.records.Upsert(ctx, &record)
}

// CheckChannel verifica que el gateway del canal responda HTTP. Es una
// prueba de alcance, no de sesión: el gateway decide por sí mismo si su
// conexión al canal está viva.
func (s *healthService) CheckChannel(ctx context.Context, channel string) (health.HealthRecord, error) {
	record := health.HealthRecord{
		EntityType: health.EntityChannel,
		EntityID:   channel,
		Status:     health.StatusOk,
	}

	url := ""
	switch channel {
	case "whatsapp":
		url = s.channels.WhatsAppBaseURL
	case "telegram":
		url = s.channels.TelegramBaseURL
	case "email":
		url = s.channels.EmailWebhookURL
	}

	if url == "" {
		record.Status = health.StatusUnknown
		record.LastMessage = "Gateway not configured"
		return record, s.records.Upsert(ctx, &record)
	}

	if err := s.probeGateway(ctx, url); err != nil {
		record.Status = health.StatusError
		record.LastMessage = err.Error()
	} else {
		record.LastMessage = "Gateway reachable"
	}

	return record, s.records.Upsert(ctx, &record)
}

func (s *healthService) CheckAll(ctx context.Context) ([]health.HealthRecord, error) {
	var results []health.HealthRecord

	if r, err := s.CheckDatabase(ctx); err == nil {
		results = append(results, r)
	}
	if r, err := s.CheckValkey(ctx); err == nil {
		results = append(results, r)
	}
	if r, err := s.CheckLLMProxy(ctx); err == nil {
		results = append(results, r)
	}
	for _, channel := range []string{"whatsapp", "telegram", "email"} {
		if r, err := s.CheckChannel(ctx, channel); err == nil {
			results = append(results, r)
		}
	}

	return results, nil
}

func (s *healthService) GetStatus(ctx context.Context) ([]health.HealthRecord, error) {
	return s.records.List(ctx)
}

func (s *healthService) GetEntityStatus(ctx context.Context, entityType health.EntityType, entityID string) (health.HealthRecord, error) {
	record, err := s.records.Get(ctx, entityType, entityID)
	if err != nil {
		return health.HealthRecord{}, err
	}
	if record == nil {
		return health.HealthRecord{
			EntityType: entityType,
			EntityID:   entityID,
			Status:     health.StatusUnknown,
		}, nil
	}
	return *record, nil
}

// ReportFailure deja constancia de un fallo observado por otro componente,
// sin esperar a la siguiente ronda de verificación.
func (s *healthService) ReportFailure(ctx context.Context, entityType health.EntityType, entityID string, message string) {
	record := health.HealthRecord{
		EntityType:  entityType,
		EntityID:    entityID,
		Status:      health.StatusError,
		LastMessage: message,
	}
	if err := s.records.Upsert(ctx, &record); err != nil {
		logrus.Warnf("[Health] Could not record failure for %s/%s: %v", entityType, entityID, err)
	}
}

func (s *healthService) ReportSuccess(ctx context.Context, entityType health.EntityType, entityID string) {
	record := health.HealthRecord{
		EntityType:  entityType,
		EntityID:    entityID,
		Status:      health.StatusOk,
		LastMessage: "Reported healthy",
	}
	if err := s.records.Upsert(ctx, &record); err != nil {
		logrus.Warnf("[Health] Could not record success for %s/%s: %v", entityType, entityID, err)
	}
}

func (s *healthService) StartPeriodicChecks(ctx context.Context) {
	logrus.Info("[Health] starting periodic health checks loop (interval: 30m)")
	ticker := time.NewTicker(30 * time.Minute)

	// Run once at start
	go func() {
		logrus.Info("[Health] performing initial health check")
		s.CheckAll(ctx)
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logrus.Info("[Health] performing scheduled health check")
				s.CheckAll(ctx)
			}
		}
	}()
}

func (s *healthService) probeGateway(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 512))

	// Un 4xx sigue siendo un gateway vivo; solo un 5xx o un fallo de red
	// cuentan como caída.
	if resp.StatusCode >= 500 {
		return fmt.Errorf("gateway returned HTTP %d", resp.StatusCode)
	}
	return nil
}
