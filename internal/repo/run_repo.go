package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/sdtmflow/internal/domain"
)

// RunRepo — репозиторий для сводок выполнения flow.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// Create сохраняет завершённый run вместе с результатами узлов.
func (r *RunRepo) Create(ctx context.Context, run *domain.Run) error {
	nodesJSON, err := json.Marshal(run.Nodes)
	if err != nil {
		return fmt.Errorf("marshal nodes: %w", err)
	}

	query := `
		INSERT INTO runs (id, flow_name, flow_version, status, nodes, started_at, finished_at, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.FlowName,
		run.FlowVersion,
		string(run.Status),
		nodesJSON,
		run.StartedAt,
		run.FinishedAt,
		nullString(run.Error),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("run %s: %w", run.ID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `
		SELECT id, flow_name, flow_version, status, nodes, started_at, finished_at, error
		FROM runs
		WHERE id = $1
	`
	return scanRun(r.pool.QueryRow(ctx, query, id))
}

// RunFilter — параметры фильтрации runs.
type RunFilter struct {
	FlowName string
	Status   domain.RunStatus
	Limit    int
}

// List возвращает runs, новые первыми.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	query := `
		SELECT id, flow_name, flow_version, status, nodes, started_at, finished_at, error
		FROM runs
		WHERE ($1::text IS NULL OR flow_name = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY started_at DESC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(filter.FlowName),
		nullString(string(filter.Status)),
		filter.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// scanRun сканирует одну строку в Run.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	var status string
	var nodesJSON []byte
	var runError *string

	err := row.Scan(
		&run.ID,
		&run.FlowName,
		&run.FlowVersion,
		&status,
		&nodesJSON,
		&run.StartedAt,
		&run.FinishedAt,
		&runError,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	run.Status = domain.ParseRunStatus(status)
	if nodesJSON != nil {
		if err := json.Unmarshal(nodesJSON, &run.Nodes); err != nil {
			return nil, fmt.Errorf("unmarshal nodes: %w", err)
		}
	}
	if runError != nil {
		run.Error = *runError
	}

	return &run, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
