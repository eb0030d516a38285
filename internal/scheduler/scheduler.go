package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/sdtmflow/internal/domain"
)

// RunFunc выполняет flow один раз и возвращает сводку run.
type RunFunc func(ctx context.Context) *domain.Run

// Config — конфигурация Scheduler.
type Config struct {
	Schedule     *domain.Schedule
	Run          RunFunc
	Logger       *slog.Logger
	TickInterval time.Duration // период проверки расписания (default: 1s)
	MaxRuns      int           // 0 — без ограничения
}

// Scheduler перезапускает flow по расписанию (режим watch).
//
// Первый запуск происходит сразу: у нового расписания NextDueAt не задан.
// Запуски не перекрываются: следующий тик ждёт завершения текущего run.
type Scheduler struct {
	sched   *domain.Schedule
	run     RunFunc
	logger  *slog.Logger
	tick    time.Duration
	maxRuns int
	now     func() time.Time
}

// New создаёт новый Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Schedule == nil {
		return nil, ErrInvalidSchedule
	}
	if err := Validate(cfg.Schedule); err != nil {
		return nil, err
	}
	if cfg.Run == nil {
		return nil, errors.New("scheduler: run func is required")
	}

	tick := cfg.TickInterval
	if tick <= 0 {
		tick = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		sched:   cfg.Schedule,
		run:     cfg.Run,
		logger:  logger,
		tick:    tick,
		maxRuns: cfg.MaxRuns,
		now:     time.Now,
	}, nil
}

// Schedule возвращает текущее состояние расписания.
func (s *Scheduler) Schedule() domain.Schedule {
	return *s.sched
}

// Tick запускает flow, если подошло время.
// Возвращает true, если запуск состоялся.
func (s *Scheduler) Tick(ctx context.Context) (bool, error) {
	now := s.now()
	if !s.sched.IsDue(now) {
		return false, nil
	}

	run := s.run(ctx)

	next, err := CalculateNextDue(s.sched, now)
	if err != nil {
		return true, fmt.Errorf("calculate next due: %w", err)
	}
	s.sched.RecordRun(now, next)

	attrs := []any{"runs", s.sched.Runs, "next_due_at", next.Format(time.RFC3339)}
	if run != nil {
		attrs = append(attrs,
			"run_id", run.ID,
			"status", run.Status,
			"failed_nodes", len(run.Failed()),
		)
	}
	s.logger.Info("scheduled run completed", attrs...)

	return true, nil
}

// Run выполняет цикл планировщика до отмены ctx или достижения MaxRuns.
func (s *Scheduler) Run(ctx context.Context) error {
	tk := time.NewTicker(s.tick)
	defer tk.Stop()

	for {
		if _, err := s.Tick(ctx); err != nil {
			return err
		}
		if s.maxRuns > 0 && s.sched.Runs >= s.maxRuns {
			s.logger.Info("scheduler reached max runs", "runs", s.sched.Runs)
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-tk.C:
		}
	}
}
