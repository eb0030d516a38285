package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/sdtmflow/internal/domain"
	"github.com/shaiso/sdtmflow/internal/engine"
)

// errNoFlow — не указан ни файл flow, ни --flow.
var errNoFlow = errors.New("specify FLOW.json or --flow NAME")

// flowSource — откуда загружается flow: файл или хранилище.
type flowSource struct {
	name    string
	version int
	baseDir string
}

// bind регистрирует флаги источника flow.
func (s *flowSource) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.name, "flow", "", "Load flow from the database by name instead of a file")
	cmd.Flags().IntVar(&s.version, "version", 0, "Flow version to load with --flow (default: latest)")
	cmd.Flags().StringVar(&s.baseDir, "base-dir", "", "Directory for relative source paths (default: flow file directory)")
}

// loadedFlow — загруженный flow и его происхождение.
type loadedFlow struct {
	Spec    *domain.FlowSpec
	Name    string
	Version int    // 0 для flow из файла
	Path    string // пусто для flow из базы
	BaseDir string
}

// load загружает flow из файла (args[0]) или из базы (--flow).
func (s *flowSource) load(ctx context.Context, env *Env, args []string) (*loadedFlow, error) {
	switch {
	case len(args) > 0 && s.name != "":
		return nil, errors.New("FLOW.json and --flow are mutually exclusive")
	case len(args) > 0:
		return s.loadFile(args[0])
	case s.name != "":
		return s.loadStored(ctx, env)
	default:
		return nil, errNoFlow
	}
}

func (s *flowSource) loadFile(path string) (*loadedFlow, error) {
	spec, err := engine.LoadFlowFile(path)
	if err != nil {
		return nil, err
	}

	lf := &loadedFlow{
		Spec:    spec,
		Name:    spec.Name,
		Path:    path,
		BaseDir: s.baseDir,
	}
	if lf.Name == "" {
		lf.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if lf.BaseDir == "" {
		lf.BaseDir = filepath.Dir(path)
	}
	return lf, nil
}

func (s *flowSource) loadStored(ctx context.Context, env *Env) (*loadedFlow, error) {
	flows, err := env.Flows(ctx)
	if err != nil {
		return nil, err
	}

	flow, err := flows.GetByName(ctx, s.name)
	if err != nil {
		return nil, fmt.Errorf("flow %q: %w", s.name, err)
	}

	var version *domain.FlowVersion
	if s.version > 0 {
		version, err = flows.GetVersion(ctx, flow.ID, s.version)
	} else {
		version, err = flows.GetLatestVersion(ctx, flow.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("flow %q version: %w", s.name, err)
	}

	baseDir := s.baseDir
	if baseDir == "" {
		baseDir = "."
	}
	return &loadedFlow{
		Spec:    &version.Spec,
		Name:    flow.Name,
		Version: version.Version,
		BaseDir: baseDir,
	}, nil
}

// graph строит граф из загруженного flow.
func (lf *loadedFlow) graph() (*engine.Graph, error) {
	g, err := engine.BuildGraph(lf.Spec)
	if err != nil {
		return nil, err
	}
	if g.Name == "" {
		g.Name = lf.Name
	}
	return g, nil
}
