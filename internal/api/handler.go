package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaiso/sdtmflow/internal/domain"
	"github.com/shaiso/sdtmflow/internal/engine"
	"github.com/shaiso/sdtmflow/internal/repo"
	"github.com/shaiso/sdtmflow/internal/table"
)

// StatusSource — состояние выполняемого flow.
// Методы вызываются из горутин HTTP-сервера.
type StatusSource interface {
	LastRun() *domain.Run
	Result(id string) (*table.Dataset, bool)
	Failure(id string) (*engine.Failure, bool)
	CacheInfo() engine.CacheInfo
}

// RunStore — хранилище сводок runs.
type RunStore interface {
	List(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	status   StatusSource
	runs     RunStore
	gatherer prometheus.Gatherer
	metrics  *httpMetrics
	logger   *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	// Status — источник состояния flow (обязателен).
	Status StatusSource

	// Runs — хранилище runs. Nil — маршруты /runs не регистрируются.
	Runs RunStore

	// Gatherer — реестр метрик для /metrics. Nil — prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Registerer — реестр для метрик самого API. Nil — без метрик.
	Registerer prometheus.Registerer

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		status:   cfg.Status,
		runs:     cfg.Runs,
		gatherer: gatherer,
		logger:   logger,
	}
	if cfg.Registerer != nil {
		h.metrics = newHTTPMetrics(cfg.Registerer)
	}
	return h
}
