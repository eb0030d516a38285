package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/sdtmflow/internal/mq"
	"github.com/shaiso/sdtmflow/internal/repo"
)

// Options — глобальные флаги CLI.
type Options struct {
	// DBURL — строка подключения к PostgreSQL (иначе DB_URL).
	DBURL string

	// AMQPURL — адрес RabbitMQ (иначе AMQP_URL).
	AMQPURL string

	// JSON — вывод в формате JSON.
	JSON bool
}

// Env — окружение команды: вывод, логгер и лениво открываемые
// подключения к PostgreSQL и RabbitMQ. Команды, которым база или брокер
// не нужны, не подключаются к ним.
type Env struct {
	opts   *Options
	logger *slog.Logger
	out    *Output

	pool *pgxpool.Pool
	amqp *mq.Connection
}

// NewEnv создаёт Env.
func NewEnv(opts *Options, logger *slog.Logger) *Env {
	return &Env{
		opts:   opts,
		logger: logger,
		out:    NewOutput(opts.JSON),
	}
}

// Logger возвращает логгер.
func (e *Env) Logger() *slog.Logger {
	return e.logger
}

// Output возвращает форматтер вывода.
func (e *Env) Output() *Output {
	return e.out
}

// Pool подключается к PostgreSQL и применяет схему при первом вызове.
func (e *Env) Pool(ctx context.Context) (*pgxpool.Pool, error) {
	if e.pool != nil {
		return e.pool, nil
	}

	pool, err := repo.NewPool(ctx, repo.DSN(e.opts.DBURL))
	if err != nil {
		return nil, err
	}
	if err := repo.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	e.logger.Debug("database connected")
	e.pool = pool
	return pool, nil
}

// Flows возвращает репозиторий flows.
func (e *Env) Flows(ctx context.Context) (*repo.FlowRepo, error) {
	pool, err := e.Pool(ctx)
	if err != nil {
		return nil, err
	}
	return repo.NewFlowRepo(pool), nil
}

// Runs возвращает репозиторий runs.
func (e *Env) Runs(ctx context.Context) (*repo.RunRepo, error) {
	pool, err := e.Pool(ctx)
	if err != nil {
		return nil, err
	}
	return repo.NewRunRepo(pool), nil
}

// AMQP подключается к RabbitMQ и объявляет топологию при первом вызове.
func (e *Env) AMQP() (*mq.Connection, error) {
	if e.amqp != nil {
		return e.amqp, nil
	}

	conn, err := mq.Dial(e.opts.AMQPURL, e.logger)
	if err != nil {
		return nil, err
	}
	if err := mq.SetupTopology(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setup topology: %w", err)
	}

	e.amqp = conn
	return conn, nil
}

// Publisher возвращает publisher событий run.
func (e *Env) Publisher() (*mq.Publisher, error) {
	conn, err := e.AMQP()
	if err != nil {
		return nil, err
	}
	return mq.NewPublisher(conn, e.logger), nil
}

// Close закрывает открытые подключения.
func (e *Env) Close() {
	if e.amqp != nil {
		if err := e.amqp.Close(); err != nil {
			e.logger.Warn("close amqp", "error", err)
		}
		e.amqp = nil
	}
	if e.pool != nil {
		e.pool.Close()
		e.pool = nil
	}
}
