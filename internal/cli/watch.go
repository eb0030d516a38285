package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/shaiso/sdtmflow/internal/api"
	"github.com/shaiso/sdtmflow/internal/domain"
	"github.com/shaiso/sdtmflow/internal/engine"
	"github.com/shaiso/sdtmflow/internal/scheduler"
	"github.com/shaiso/sdtmflow/internal/steps"
	"github.com/shaiso/sdtmflow/internal/table"
	"github.com/shaiso/sdtmflow/internal/telemetry"
)

// NewWatchCmd создаёт команду периодического выполнения flow.
func NewWatchCmd(envFn func() *Env) *cobra.Command {
	var src flowSource
	var opts runOptions
	var sched domain.Schedule
	var maxRuns int
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch [FLOW.json]",
		Short: "Re-run a flow on a schedule",
		Long: `Execute the flow on a cron or interval schedule, keeping node results
between runs. Only nodes affected by a change are recomputed: an edited
flow file reloads the graph, a modified source file invalidates the
source node and everything downstream of it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			if sched.CronExpr == "" && sched.Interval <= 0 {
				return errors.New("specify --cron or --every")
			}

			env := envFn()
			ctx := cmd.Context()
			logger := env.Logger()

			lf, err := src.load(ctx, env, args)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			metrics := telemetry.NewMetrics(reg)

			w, err := newFlowWatcher(lf, newEngine(env, lf, opts.quiet, metrics), logger)
			if err != nil {
				return err
			}

			if metricsAddr != "" {
				reg.MustRegister(
					collectors.NewGoCollector(),
					collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
				)
				cfg := api.Config{Status: w, Gatherer: reg, Registerer: reg, Logger: logger}
				if opts.save {
					runs, err := env.Runs(ctx)
					if err != nil {
						return err
					}
					cfg.Runs = runs
				}
				stop := serveStatus(metricsAddr, api.NewHandler(cfg), logger)
				defer stop()
			}

			s, err := scheduler.New(scheduler.Config{
				Schedule: &sched,
				Logger:   logger,
				MaxRuns:  maxRuns,
				Run: func(ctx context.Context) *domain.Run {
					run := w.execute(ctx)
					if !opts.quiet {
						printRun(env.Output(), run)
					}
					if err := finishRun(ctx, env, w.eng, w.g, run, &opts); err != nil {
						logger.Error("failed to finish run", "run_id", run.ID, "error", err)
					}
					return run
				},
			})
			if err != nil {
				return err
			}

			logger.Info("watching flow", "flow", lf.Name, "cron", sched.CronExpr, "every", sched.Interval)
			return s.Run(ctx)
		},
	}

	src.bind(cmd)
	opts.bind(cmd)
	cmd.Flags().StringVar(&sched.CronExpr, "cron", "", "Cron expression, e.g. \"*/5 * * * *\"")
	cmd.Flags().DurationVar(&sched.Interval, "every", 0, "Interval between runs, e.g. 30s")
	cmd.Flags().StringVar(&sched.Timezone, "timezone", "UTC", "Timezone for the cron expression")
	cmd.Flags().IntVar(&maxRuns, "max-runs", 0, "Stop after this many runs (0 for no limit)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve metrics and the status API on this address, e.g. :9090")
	cmd.MarkFlagsMutuallyExclusive("cron", "every")

	return cmd
}

// serveStatus запускает HTTP-сервер со статусом flow и метриками.
// Возвращает функцию остановки.
func serveStatus(addr string, handler *api.Handler, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("status server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("status server shutdown", "error", err)
		}
	}
}

// flowWatcher держит граф и движок между запусками и следит за файлами.
//
// Изменённый файл flow перестраивает граф и сбрасывает все результаты.
// Изменённый файл источника сбрасывает результаты узла-источника и
// узлов ниже него: остальные результаты берутся из кэша.
type flowWatcher struct {
	lf     *loadedFlow
	eng    *engine.Engine
	logger *slog.Logger

	g       *engine.Graph
	flowMod time.Time
	srcMod  map[string]time.Time // ID узла source → mtime файла

	mu   sync.RWMutex
	last *domain.Run
}

var _ api.StatusSource = (*flowWatcher)(nil)

func newFlowWatcher(lf *loadedFlow, eng *engine.Engine, logger *slog.Logger) (*flowWatcher, error) {
	w := &flowWatcher{
		lf:     lf,
		eng:    eng,
		logger: logger,
	}
	if err := w.rebuild(); err != nil {
		return nil, err
	}
	if lf.Path != "" {
		w.flowMod = modTime(lf.Path)
	}
	return w, nil
}

// rebuild строит граф из текущего flow и подписывает на него движок.
func (w *flowWatcher) rebuild() error {
	g, err := w.lf.graph()
	if err != nil {
		return err
	}
	w.eng.ClearOutputs()
	w.eng.Attach(g)

	w.g = g
	w.srcMod = make(map[string]time.Time)
	for _, node := range g.Nodes() {
		if path := w.sourcePath(node); path != "" {
			w.srcMod[node.ID] = modTime(path)
		}
	}
	return nil
}

// refresh проверяет изменения файлов перед очередным запуском.
func (w *flowWatcher) refresh() error {
	if w.lf.Path != "" {
		if mod := modTime(w.lf.Path); mod.After(w.flowMod) {
			spec, err := engine.LoadFlowFile(w.lf.Path)
			if err != nil {
				return fmt.Errorf("reload flow: %w", err)
			}
			w.flowMod = mod
			w.lf.Spec = spec
			if err := w.rebuild(); err != nil {
				return fmt.Errorf("reload flow: %w", err)
			}
			w.logger.Info("flow file changed, graph rebuilt", "path", w.lf.Path, "nodes", w.g.Len())
			return nil
		}
	}

	for id, prev := range w.srcMod {
		node, ok := w.g.Node(id)
		if !ok {
			continue
		}
		mod := modTime(w.sourcePath(node))
		if !mod.After(prev) {
			continue
		}
		w.srcMod[id] = mod
		// Та же конфигурация с новым поколением: узел и всё ниже пересчитываются
		if err := w.g.SetConfig(id, node.Config); err != nil {
			return err
		}
		w.logger.Info("source file changed", "node_id", id, "title", node.Title)
	}
	return nil
}

// execute обновляет граф и выполняет flow.
func (w *flowWatcher) execute(ctx context.Context) *domain.Run {
	if err := w.refresh(); err != nil {
		// Граф остаётся прежним: выполняем последнюю корректную версию
		w.logger.Error("failed to refresh flow", "error", err)
	}

	w.eng.ExecuteFlow(ctx, w.g)

	// Копия: сводку движка читают другие горутины
	run := *w.eng.LastRun()
	run.FlowVersion = w.lf.Version

	w.mu.Lock()
	w.last = &run
	w.mu.Unlock()

	return &run
}

// LastRun возвращает сводку последнего запуска или nil.
func (w *flowWatcher) LastRun() *domain.Run {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.last
}

// Result возвращает результат узла из кэша движка.
func (w *flowWatcher) Result(id string) (*table.Dataset, bool) {
	return w.eng.Result(id)
}

// Failure возвращает ошибку узла из кэша движка.
func (w *flowWatcher) Failure(id string) (*engine.Failure, bool) {
	return w.eng.Failure(id)
}

// CacheInfo возвращает сводку кэша движка.
func (w *flowWatcher) CacheInfo() engine.CacheInfo {
	return w.eng.CacheInfo()
}

// sourcePath возвращает путь к файлу узла source или пустую строку.
func (w *flowWatcher) sourcePath(node *engine.Node) string {
	if node.Kind != domain.KindSource || node.Data != nil {
		return ""
	}
	path := steps.GetConfigStringAny(node.Config, "path", "filename", "file_path")
	if path == "" {
		return ""
	}
	if !filepath.IsAbs(path) && w.lf.BaseDir != "" {
		path = filepath.Join(w.lf.BaseDir, path)
	}
	return path
}

// modTime возвращает время изменения файла или нулевое время.
func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
