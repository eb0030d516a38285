package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shaiso/sdtmflow/internal/domain"
	"github.com/shaiso/sdtmflow/internal/steps"
	"github.com/shaiso/sdtmflow/internal/table"
	"github.com/shaiso/sdtmflow/internal/telemetry"
)

// Config — конфигурация Engine.
type Config struct {
	// Registry — реализации узлов. По умолчанию steps.DefaultRegistry().
	Registry *steps.Registry

	// Logger — structured логгер. По умолчанию slog.Default().
	Logger *slog.Logger

	// LogFunc получает человекочитаемый ход выполнения и ошибки.
	// Nil — ничего не выводится.
	LogFunc func(string)

	// Metrics — Prometheus метрики. Nil — метрики не публикуются.
	Metrics *telemetry.Metrics

	// BaseDir — каталог для относительных путей узлов source.
	BaseDir string
}

// Engine выполняет граф и хранит результаты узлов.
//
// Результат узла считается актуальным, пока не изменились его Generation
// и результаты всех подключённых источников. Актуальный результат не
// пересчитывается: за одно поколение кэша узел выполняется не более
// одного раза.
//
// Выполнение последовательное, в вызывающей горутине. Методы чтения
// (Result, Status, LastError, CacheInfo, LastRun) можно вызывать
// из других горутин.
type Engine struct {
	registry *steps.Registry
	logger   *slog.Logger
	logFunc  func(string)
	metrics  *telemetry.Metrics
	baseDir  string

	cache *cache

	mu      sync.RWMutex
	lastRun *domain.Run
}

// New создаёт новый Engine.
func New(cfg Config) *Engine {
	if cfg.Registry == nil {
		cfg.Registry = steps.DefaultRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Engine{
		registry: cfg.Registry,
		logger:   cfg.Logger,
		logFunc:  cfg.LogFunc,
		metrics:  cfg.Metrics,
		baseDir:  cfg.BaseDir,
		cache:    newCache(),
	}
}

// Attach подписывает движок на изменения графа: любое изменение узла
// или соединения сбрасывает результаты этого узла и всех узлов ниже.
func (e *Engine) Attach(g *Graph) {
	g.Subscribe(func(g *Graph, c Change) {
		if c.Type == ChangeNodeAdded {
			return
		}
		n := e.InvalidateDownstream(g, c.NodeID)
		e.logger.Debug("graph changed",
			"change", c.Type.String(),
			"node_id", c.NodeID,
			"invalidated", n,
		)
	})
}

// ExecuteFlow выполняет все узлы графа в топологическом порядке.
//
// Узел выполняется после того, как были обработаны все его источники.
// Ошибка узла не останавливает выполнение независимых веток.
// Возвращает true, если ни один узел не завершился ошибкой.
// Частичные результаты остаются доступны через Result.
func (e *Engine) ExecuteFlow(ctx context.Context, g *Graph) bool {
	run := domain.NewRun(g.Name)
	logger := telemetry.WithRunID(e.logger, run.ID.String())
	if g.Name != "" {
		logger = logger.With("flow", g.Name)
	}

	defer func() {
		run.Finish()
		e.setLastRun(run)
		e.metrics.ObserveRun(string(run.Status), run.Duration())
		e.metrics.SetCachedOutputs(e.cache.len())

		logger.Info("flow finished",
			"status", run.Status,
			"nodes", len(run.Nodes),
			"failed", len(run.Failed()),
			"duration", run.Duration(),
		)
	}()

	if g.Len() == 0 {
		run.Error = ErrEmptyGraph.Error()
		logger.Warn("flow has no nodes")
		e.narrate("Flow is empty: nothing to execute")
		return false
	}

	order, err := TopologicalSort(g)
	if err != nil {
		run.Error = err.Error()
		logger.Error("failed to order nodes", "error", err)
		e.narrate("Cannot execute flow: %v", err)
		return false
	}

	logger.Info("executing flow", "nodes", len(order))
	e.narrate("Executing %d node(s)", len(order))

	for _, node := range order {
		if err := ctx.Err(); err != nil {
			if run.Status != domain.RunStatusCancelled {
				run.MarkCancelled(err.Error())
				logger.Warn("flow cancelled", "error", err)
			}
			// Отменённые узлы не трогают кэш: прежние результаты остаются
			run.Nodes = append(run.Nodes, domain.NodeResult{
				NodeID:   node.ID,
				Title:    node.Title,
				Kind:     node.Kind,
				Status:   domain.NodeStatusFailed,
				Category: string(CategoryInternal),
				Error:    fmt.Sprintf("execution cancelled: %v", err),
			})
			continue
		}

		run.Nodes = append(run.Nodes, e.executeNode(ctx, g, node))
	}

	failed := run.Failed()
	if len(failed) > 0 {
		e.narrate("Flow finished with %d failed node(s)", len(failed))
		return false
	}
	e.narrate("Flow finished successfully")
	return true
}

// ExecuteNode выполняет один узел. Входы узла должны быть уже вычислены.
// Возвращает true при успехе (в том числе при попадании в кэш).
func (e *Engine) ExecuteNode(ctx context.Context, g *Graph, id string) bool {
	node, ok := g.Node(id)
	if !ok {
		e.logger.Warn("node not found", "node_id", id)
		e.narrate("Node %s not found", id)
		return false
	}
	return e.executeNode(ctx, g, node).Status == domain.NodeStatusSucceeded
}

// executeNode выполняет узел и возвращает итог для сводки run.
func (e *Engine) executeNode(ctx context.Context, g *Graph, node *Node) domain.NodeResult {
	logger := telemetry.WithNodeID(e.logger, node.ID, string(node.Kind))

	if ent, ok := e.fresh(g, node); ok {
		e.cache.record(true)
		e.metrics.ObserveCache(true)
		logger.Debug("node result is up to date")
		return domain.NodeResult{
			NodeID:  node.ID,
			Title:   node.Title,
			Kind:    node.Kind,
			Status:  domain.NodeStatusSucceeded,
			Cached:  true,
			Rows:    ent.data.NumRows(),
			Columns: ent.data.NumColumns(),
		}
	}
	e.cache.record(false)
	e.metrics.ObserveCache(false)

	start := time.Now()

	inputs, seqs, err := e.gatherInputs(g, node)
	if err != nil {
		return e.storeFailure(node, err, time.Since(start))
	}

	step, err := e.registry.Get(string(node.Kind))
	if err != nil {
		return e.storeFailure(node, err, time.Since(start))
	}

	req := &steps.Request{
		NodeID:  node.ID,
		Config:  node.Config,
		Inputs:  inputs,
		Data:    node.Data,
		BaseDir: e.baseDir,
	}

	resp, err := e.runStep(ctx, step, req)
	if err == nil && (resp == nil || resp.Output == nil) {
		err = ErrNoOutput
	}
	duration := time.Since(start)
	if err != nil {
		return e.storeFailure(node, err, duration)
	}

	e.cache.put(node.ID, &entry{
		data:       resp.Output,
		notes:      resp.Notes,
		generation: node.Generation,
		inputs:     seqs,
	})
	e.metrics.ObserveNode(string(node.Kind), string(domain.NodeStatusSucceeded), duration)

	logger.Info("node executed",
		"rows", resp.Output.NumRows(),
		"columns", resp.Output.NumColumns(),
		"duration", duration,
	)
	e.narrate("%s (%s): %d rows x %d columns", node.Label(), node.Kind, resp.Output.NumRows(), resp.Output.NumColumns())
	for _, note := range resp.Notes {
		logger.Warn("node note", "note", note)
		e.narrate("  %s: %s", node.Label(), note)
	}

	return domain.NodeResult{
		NodeID:   node.ID,
		Title:    node.Title,
		Kind:     node.Kind,
		Status:   domain.NodeStatusSucceeded,
		Rows:     resp.Output.NumRows(),
		Columns:  resp.Output.NumColumns(),
		Duration: duration,
	}
}

// storeFailure сохраняет ошибку узла и возвращает итог для сводки run.
func (e *Engine) storeFailure(node *Node, err error, duration time.Duration) domain.NodeResult {
	failure := newFailure(err)

	e.cache.put(node.ID, &entry{
		failure:    failure,
		generation: node.Generation,
	})
	e.metrics.ObserveNode(string(node.Kind), string(domain.NodeStatusFailed), duration)

	telemetry.WithNodeID(e.logger, node.ID, string(node.Kind)).Warn("node failed",
		"category", failure.Category,
		"error", err,
	)
	e.narrate("%s (%s) failed [%s]: %s", node.Label(), node.Kind, failure.Category, failure.Message)

	return domain.NodeResult{
		NodeID:   node.ID,
		Title:    node.Title,
		Kind:     node.Kind,
		Status:   domain.NodeStatusFailed,
		Category: string(failure.Category),
		Error:    failure.Message,
		Duration: duration,
	}
}

// runStep выполняет шаг, превращая панику в ошибку.
func (e *Engine) runStep(ctx context.Context, step steps.Step, req *steps.Request) (resp *steps.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = fmt.Errorf("%w: %v", ErrStepPanic, r)
		}
	}()
	return step.Execute(ctx, req)
}

// fresh возвращает актуальный успешный результат узла.
func (e *Engine) fresh(g *Graph, node *Node) (*entry, bool) {
	ent, ok := e.cache.get(node.ID)
	if !ok || !ent.succeeded() || ent.generation != node.Generation {
		return nil, false
	}

	ports := node.InputPorts()
	if len(ent.inputs) != ports {
		return nil, false
	}
	for port := 0; port < ports; port++ {
		edge, ok := g.InputEdge(node.ID, port)
		if !ok {
			return nil, false
		}
		up, ok := e.cache.get(edge.From)
		if !ok || !up.succeeded() || up.seq != ent.inputs[port] {
			return nil, false
		}
	}
	return ent, true
}

// gatherInputs собирает входные dataset'ы по портам.
func (e *Engine) gatherInputs(g *Graph, node *Node) ([]*table.Dataset, []uint64, error) {
	ports := node.InputPorts()
	inputs := make([]*table.Dataset, ports)
	seqs := make([]uint64, ports)

	for port := 0; port < ports; port++ {
		ent, err := e.inputEntry(g, node, port)
		if err != nil {
			return nil, nil, err
		}
		inputs[port] = ent.data
		seqs[port] = ent.seq
	}
	return inputs, seqs, nil
}

// inputEntry возвращает успешную запись источника для порта.
func (e *Engine) inputEntry(g *Graph, node *Node, port int) (*entry, error) {
	portName := node.Kind.PortName(port)

	edge, ok := g.InputEdge(node.ID, port)
	if !ok {
		return nil, fmt.Errorf("%w: %s port is not connected", ErrMissingInput, portName)
	}

	ent, ok := e.cache.get(edge.From)
	if !ok || !ent.succeeded() {
		label := edge.From
		if up, ok := g.Node(edge.From); ok {
			label = up.Label()
		}
		return nil, fmt.Errorf("%w: %s (connected to %s port)", ErrUpstreamNotReady, label, portName)
	}
	return ent, nil
}

// NodeInputData возвращает dataset, поступающий на входной порт узла.
//
// Ошибки: ErrMissingInput — порт не подключён; ErrUpstreamNotReady —
// источник ещё не выполнен или завершился ошибкой.
func (e *Engine) NodeInputData(g *Graph, id string, port int) (*table.Dataset, error) {
	node, ok := g.Node(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if port < 0 || port >= node.InputPorts() {
		return nil, fmt.Errorf("%w: %s node has %d input port(s)", ErrPortOutOfRange, node.Kind, node.InputPorts())
	}

	ent, err := e.inputEntry(g, node, port)
	if err != nil {
		return nil, err
	}
	return ent.data, nil
}

// InvalidateDownstream удаляет результаты узла и всех узлов, достижимых
// из него по соединениям. Возвращает количество удалённых записей.
func (e *Engine) InvalidateDownstream(g *Graph, id string) int {
	ids := g.Downstream(id)
	if len(ids) == 0 {
		// Узла уже нет в графе: чистим только его запись
		ids = []string{id}
	}
	n := e.cache.remove(ids...)
	e.metrics.SetCachedOutputs(e.cache.len())
	return n
}

// ExecutionOrder возвращает порядок выполнения узлов.
func (e *Engine) ExecutionOrder(g *Graph) ([]*Node, error) {
	return TopologicalSort(g)
}

// Result возвращает успешный результат узла.
func (e *Engine) Result(id string) (*table.Dataset, bool) {
	ent, ok := e.cache.get(id)
	if !ok || !ent.succeeded() {
		return nil, false
	}
	return ent.data, true
}

// Notes возвращает предупреждения последнего успешного выполнения узла.
func (e *Engine) Notes(id string) []string {
	ent, ok := e.cache.get(id)
	if !ok {
		return nil
	}
	return ent.notes
}

// LastError возвращает ошибку последнего выполнения узла.
func (e *Engine) LastError(id string) (string, bool) {
	ent, ok := e.cache.get(id)
	if !ok || ent.failure == nil {
		return "", false
	}
	return ent.failure.Message, true
}

// Failure возвращает запись об ошибке узла с категорией.
func (e *Engine) Failure(id string) (*Failure, bool) {
	ent, ok := e.cache.get(id)
	if !ok || ent.failure == nil {
		return nil, false
	}
	return ent.failure, true
}

// Status возвращает статус узла по последнему выполнению.
func (e *Engine) Status(id string) domain.NodeStatus {
	ent, ok := e.cache.get(id)
	switch {
	case !ok:
		return domain.NodeStatusNotRun
	case ent.succeeded():
		return domain.NodeStatusSucceeded
	default:
		return domain.NodeStatusFailed
	}
}

// CacheInfo возвращает сводку по кэшу результатов.
func (e *Engine) CacheInfo() CacheInfo {
	return e.cache.info()
}

// ClearOutputs удаляет все результаты и ошибки.
func (e *Engine) ClearOutputs() {
	e.cache.clear()
	e.metrics.SetCachedOutputs(0)
	e.logger.Debug("outputs cleared")
}

// LastRun возвращает сводку последнего ExecuteFlow или nil.
func (e *Engine) LastRun() *domain.Run {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastRun
}

func (e *Engine) setLastRun(run *domain.Run) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastRun = run
}

// narrate передаёт сообщение в LogFunc.
func (e *Engine) narrate(format string, args ...any) {
	if e.logFunc == nil {
		return
	}
	e.logFunc(strings.TrimRight(fmt.Sprintf(format, args...), "\n"))
}
