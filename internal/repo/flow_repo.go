package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/sdtmflow/internal/domain"
)

// FlowRepo — репозиторий для работы с flows и flow_versions.
type FlowRepo struct {
	pool *pgxpool.Pool
}

// NewFlowRepo создаёт новый FlowRepo.
func NewFlowRepo(pool *pgxpool.Pool) *FlowRepo {
	return &FlowRepo{pool: pool}
}

// --- Flow ---

// Create создаёт новый flow.
// Возвращает ErrAlreadyExists, если flow с таким именем уже есть.
func (r *FlowRepo) Create(ctx context.Context, flow *domain.Flow) error {
	query := `
		INSERT INTO flows (id, name, created_at)
		VALUES ($1, $2, $3)
	`
	_, err := r.pool.Exec(ctx, query, flow.ID, flow.Name, flow.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("flow %q: %w", flow.Name, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert flow: %w", err)
	}
	return nil
}

// GetByName возвращает flow по имени.
func (r *FlowRepo) GetByName(ctx context.Context, name string) (*domain.Flow, error) {
	query := `
		SELECT id, name, created_at
		FROM flows
		WHERE name = $1
	`
	var flow domain.Flow
	err := r.pool.QueryRow(ctx, query, name).Scan(
		&flow.ID,
		&flow.Name,
		&flow.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get flow by name: %w", err)
	}
	return &flow, nil
}

// GetOrCreate возвращает flow по имени, создавая его при отсутствии.
func (r *FlowRepo) GetOrCreate(ctx context.Context, name string) (*domain.Flow, error) {
	flow, err := r.GetByName(ctx, name)
	if err == nil {
		return flow, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	flow = &domain.Flow{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: time.Now(),
	}
	err = r.Create(ctx, flow)
	if errors.Is(err, ErrAlreadyExists) {
		// Создан параллельно другим процессом
		return r.GetByName(ctx, name)
	}
	if err != nil {
		return nil, err
	}
	return flow, nil
}

// List возвращает список всех flows.
func (r *FlowRepo) List(ctx context.Context) ([]domain.Flow, error) {
	query := `
		SELECT id, name, created_at
		FROM flows
		ORDER BY name
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	defer rows.Close()

	var flows []domain.Flow
	for rows.Next() {
		var flow domain.Flow
		if err := rows.Scan(&flow.ID, &flow.Name, &flow.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan flow: %w", err)
		}
		flows = append(flows, flow)
	}
	return flows, rows.Err()
}

// Delete удаляет flow (каскадно удалит versions).
func (r *FlowRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM flows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete flow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- FlowVersion ---

// CreateVersion создаёт новую версию flow.
// Номер версии вычисляется и вставляется в одной транзакции.
func (r *FlowRepo) CreateVersion(ctx context.Context, flowID uuid.UUID, spec domain.FlowSpec) (*domain.FlowVersion, error) {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("marshal spec: %w", err)
	}

	version := &domain.FlowVersion{FlowID: flowID, Spec: spec}

	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		// Блокируем строку flow, чтобы параллельные push не получили один номер
		var id uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM flows WHERE id = $1 FOR UPDATE`, flowID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock flow: %w", err)
		}

		err = tx.QueryRow(ctx, `
			SELECT COALESCE(MAX(version), 0) + 1
			FROM flow_versions
			WHERE flow_id = $1
		`, flowID).Scan(&version.Version)
		if err != nil {
			return fmt.Errorf("get next version: %w", err)
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO flow_versions (flow_id, version, spec, created_at)
			VALUES ($1, $2, $3, NOW())
			RETURNING created_at
		`, flowID, version.Version, specJSON).Scan(&version.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert flow version: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

// GetVersion возвращает конкретную версию flow.
func (r *FlowRepo) GetVersion(ctx context.Context, flowID uuid.UUID, version int) (*domain.FlowVersion, error) {
	query := `
		SELECT flow_id, version, spec, created_at
		FROM flow_versions
		WHERE flow_id = $1 AND version = $2
	`
	return scanVersion(r.pool.QueryRow(ctx, query, flowID, version))
}

// GetLatestVersion возвращает последнюю версию flow.
func (r *FlowRepo) GetLatestVersion(ctx context.Context, flowID uuid.UUID) (*domain.FlowVersion, error) {
	query := `
		SELECT flow_id, version, spec, created_at
		FROM flow_versions
		WHERE flow_id = $1
		ORDER BY version DESC
		LIMIT 1
	`
	return scanVersion(r.pool.QueryRow(ctx, query, flowID))
}

// ListVersions возвращает все версии flow, новые первыми.
func (r *FlowRepo) ListVersions(ctx context.Context, flowID uuid.UUID) ([]domain.FlowVersion, error) {
	query := `
		SELECT flow_id, version, spec, created_at
		FROM flow_versions
		WHERE flow_id = $1
		ORDER BY version DESC
	`
	rows, err := r.pool.Query(ctx, query, flowID)
	if err != nil {
		return nil, fmt.Errorf("list flow versions: %w", err)
	}
	defer rows.Close()

	var versions []domain.FlowVersion
	for rows.Next() {
		fv, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *fv)
	}
	return versions, rows.Err()
}

// scanVersion сканирует строку flow_versions.
// pgx.Rows тоже реализует pgx.Row, поэтому функция общая для QueryRow и Query.
func scanVersion(row pgx.Row) (*domain.FlowVersion, error) {
	var fv domain.FlowVersion
	var specJSON []byte

	err := row.Scan(
		&fv.FlowID,
		&fv.Version,
		&specJSON,
		&fv.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan flow version: %w", err)
	}

	if err := json.Unmarshal(specJSON, &fv.Spec); err != nil {
		return nil, fmt.Errorf("unmarshal spec: %w", err)
	}
	return &fv, nil
}
