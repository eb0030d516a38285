package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/sdtmflow/internal/domain"
	"github.com/shaiso/sdtmflow/internal/engine"
	"github.com/shaiso/sdtmflow/internal/telemetry"
)

// ErrRunFailed — хотя бы один узел завершился ошибкой.
var ErrRunFailed = errors.New("flow run failed")

// runOptions — флаги сохранения и публикации результатов run.
type runOptions struct {
	outDir  string
	format  string
	all     bool
	save    bool
	publish bool
	quiet   bool
}

func (o *runOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.outDir, "out", "", "Write node outputs to this directory")
	cmd.Flags().StringVar(&o.format, "format", "csv", "Output file format: csv or json")
	cmd.Flags().BoolVar(&o.all, "all", false, "Write outputs of all nodes, not only sinks")
	cmd.Flags().BoolVar(&o.save, "save", false, "Store the run summary in the database")
	cmd.Flags().BoolVar(&o.publish, "publish", false, "Publish a run.finished event to RabbitMQ")
	cmd.Flags().BoolVarP(&o.quiet, "quiet", "q", false, "Do not print execution progress")
}

func (o *runOptions) validate() error {
	switch o.format {
	case "csv", "json":
		return nil
	default:
		return fmt.Errorf("invalid --format %q: expected csv or json", o.format)
	}
}

// NewRunCmd создаёт команду выполнения flow.
func NewRunCmd(envFn func() *Env) *cobra.Command {
	var src flowSource
	var opts runOptions
	var show string
	var limit int

	cmd := &cobra.Command{
		Use:   "run [FLOW.json]",
		Short: "Execute a flow once",
		Long: `Execute every node of the flow in dependency order.

A failing node does not stop independent branches. The command exits
with an error if any node failed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}

			env := envFn()
			out := env.Output()
			ctx := cmd.Context()

			lf, err := src.load(ctx, env, args)
			if err != nil {
				return err
			}
			g, err := lf.graph()
			if err != nil {
				return err
			}

			eng := newEngine(env, lf, opts.quiet, nil)
			ok := eng.ExecuteFlow(ctx, g)

			run := eng.LastRun()
			run.FlowVersion = lf.Version

			if show != "" {
				data, found := eng.Result(show)
				if !found {
					return fmt.Errorf("node %q has no result", show)
				}
				out.Dataset(data, limit)
			} else {
				printRun(out, run)
			}

			if err := finishRun(ctx, env, eng, g, run, &opts); err != nil {
				return err
			}
			if !ok {
				return ErrRunFailed
			}
			return nil
		},
	}

	src.bind(cmd)
	opts.bind(cmd)
	cmd.Flags().StringVar(&show, "show", "", "Print the result of this node instead of the run summary")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows printed with --show (0 for all)")

	return cmd
}

// newEngine создаёт движок для команды.
func newEngine(env *Env, lf *loadedFlow, quiet bool, metrics *telemetry.Metrics) *engine.Engine {
	cfg := engine.Config{
		Logger:  env.Logger(),
		Metrics: metrics,
		BaseDir: lf.BaseDir,
	}
	if !quiet {
		cfg.LogFunc = env.Output().Info
	}
	return engine.New(cfg)
}

// finishRun записывает результаты, сохраняет и публикует run согласно флагам.
func finishRun(ctx context.Context, env *Env, eng *engine.Engine, g *engine.Graph, run *domain.Run, opts *runOptions) error {
	if opts.outDir != "" {
		files, err := writeOutputs(eng, g, opts.outDir, opts.format, opts.all)
		if err != nil {
			return err
		}
		env.Output().Success(fmt.Sprintf("Wrote %d file(s) to %s", len(files), opts.outDir))
	}

	if opts.save {
		runs, err := env.Runs(ctx)
		if err != nil {
			return err
		}
		if err := runs.Create(ctx, run); err != nil {
			return fmt.Errorf("save run: %w", err)
		}
		env.Logger().Info("run saved", "run_id", run.ID)
	}

	if opts.publish {
		pub, err := env.Publisher()
		if err != nil {
			return err
		}
		if err := pub.PublishRunFinished(ctx, run); err != nil {
			return err
		}
		env.Logger().Info("run event published", "run_id", run.ID, "status", run.Status)
	}

	return nil
}

// writeOutputs записывает результаты узлов в dir.
// По умолчанию пишутся только конечные узлы; узлы без результата пропускаются.
func writeOutputs(eng *engine.Engine, g *engine.Graph, dir, format string, all bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	nodes := engine.Sinks(g)
	if all {
		nodes = g.Nodes()
	}

	used := make(map[string]bool)
	var files []string
	for _, node := range nodes {
		data, ok := eng.Result(node.ID)
		if !ok {
			continue
		}

		name := outputName(node, used)
		path := filepath.Join(dir, name+"."+format)

		var err error
		if format == "json" {
			err = data.WriteJSONFile(path)
		} else {
			err = data.WriteCSVFile(path)
		}
		if err != nil {
			return files, fmt.Errorf("write %s: %w", path, err)
		}
		files = append(files, path)
	}
	return files, nil
}

// outputName возвращает имя файла для узла: заголовок, а при совпадении
// или отсутствии заголовка — с ID узла.
func outputName(node *engine.Node, used map[string]bool) string {
	name := sanitizeFileName(node.Title)
	if name == "" || used[name] {
		name = strings.TrimPrefix(name+"_"+sanitizeFileName(node.ID), "_")
	}
	used[name] = true
	return name
}

// sanitizeFileName заменяет символы, недопустимые в имени файла.
func sanitizeFileName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, strings.TrimSpace(s))
}

// printRun выводит результаты узлов run.
func printRun(out *Output, run *domain.Run) {
	headers := []string{"NODE", "TITLE", "KIND", "STATUS", "ROWS", "COLUMNS", "CACHED", "ERROR"}
	rows := make([][]string, len(run.Nodes))
	for i, n := range run.Nodes {
		rows[i] = []string{
			n.NodeID,
			n.Title,
			string(n.Kind),
			string(n.Status),
			strconv.Itoa(n.Rows),
			strconv.Itoa(n.Columns),
			strconv.FormatBool(n.Cached),
			n.Error,
		}
	}
	out.Print(headers, rows, run)
}
