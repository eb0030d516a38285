package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/sdtmflow/internal/engine"
)

// NewFlowCmd создаёт группу команд для хранения flows в базе.
func NewFlowCmd(envFn func() *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Store and version flows in the database",
	}

	cmd.AddCommand(
		newFlowListCmd(envFn),
		newFlowPushCmd(envFn),
		newFlowPullCmd(envFn),
		newFlowVersionsCmd(envFn),
		newFlowDeleteCmd(envFn),
	)

	return cmd
}

func newFlowListCmd(envFn func() *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored flows",
		RunE: func(cmd *cobra.Command, args []string) error {
			env := envFn()
			flows, err := env.Flows(cmd.Context())
			if err != nil {
				return err
			}

			list, err := flows.List(cmd.Context())
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "CREATED"}
			rows := make([][]string, len(list))
			for i, f := range list {
				rows[i] = []string{f.ID.String(), f.Name, f.CreatedAt.Format(time.RFC3339)}
			}

			env.Output().Print(headers, rows, list)
			return nil
		},
	}
}

func newFlowPushCmd(envFn func() *Env) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "push FLOW.json",
		Short: "Validate a flow file and store it as a new version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := envFn()
			ctx := cmd.Context()

			var src flowSource
			lf, err := src.loadFile(args[0])
			if err != nil {
				return err
			}
			if err := engine.Validate(lf.Spec); err != nil {
				return err
			}
			if name == "" {
				name = lf.Name
			}

			flows, err := env.Flows(ctx)
			if err != nil {
				return err
			}
			flow, err := flows.GetOrCreate(ctx, name)
			if err != nil {
				return err
			}

			spec := *lf.Spec
			spec.Name = name
			version, err := flows.CreateVersion(ctx, flow.ID, spec)
			if err != nil {
				return err
			}

			env.Output().Success(fmt.Sprintf("Flow %q version %d stored", name, version.Version))
			env.Output().Print(
				[]string{"FLOW_ID", "NAME", "VERSION", "CREATED"},
				[][]string{{flow.ID.String(), name, strconv.Itoa(version.Version), version.CreatedAt.Format(time.RFC3339)}},
				version,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Flow name (default: name from the file or the file name)")

	return cmd
}

func newFlowPullCmd(envFn func() *Env) *cobra.Command {
	var version int
	var outFile string

	cmd := &cobra.Command{
		Use:   "pull NAME",
		Short: "Print or save a stored flow version as flow JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := envFn()

			src := flowSource{name: args[0], version: version}
			lf, err := src.loadStored(cmd.Context(), env)
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(lf.Spec, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal flow: %w", err)
			}
			data = append(data, '\n')

			if outFile == "" {
				_, err := os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(outFile, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", outFile, err)
			}
			env.Output().Success(fmt.Sprintf("Flow %q version %d written to %s", lf.Name, lf.Version, outFile))
			return nil
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "Version to pull (default: latest)")
	cmd.Flags().StringVarP(&outFile, "output", "o", "", "Write to file instead of stdout")

	return cmd
}

func newFlowVersionsCmd(envFn func() *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "versions NAME",
		Short: "List versions of a stored flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := envFn()
			ctx := cmd.Context()

			flows, err := env.Flows(ctx)
			if err != nil {
				return err
			}
			flow, err := flows.GetByName(ctx, args[0])
			if err != nil {
				return fmt.Errorf("flow %q: %w", args[0], err)
			}
			versions, err := flows.ListVersions(ctx, flow.ID)
			if err != nil {
				return err
			}

			headers := []string{"VERSION", "NODES", "CONNECTIONS", "CREATED"}
			rows := make([][]string, len(versions))
			for i, v := range versions {
				rows[i] = []string{
					strconv.Itoa(v.Version),
					strconv.Itoa(len(v.Spec.Nodes)),
					strconv.Itoa(len(v.Spec.Connections)),
					v.CreatedAt.Format(time.RFC3339),
				}
			}

			env.Output().Print(headers, rows, versions)
			return nil
		},
	}
}

func newFlowDeleteCmd(envFn func() *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a stored flow with all its versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := envFn()
			ctx := cmd.Context()

			flows, err := env.Flows(ctx)
			if err != nil {
				return err
			}
			flow, err := flows.GetByName(ctx, args[0])
			if err != nil {
				return fmt.Errorf("flow %q: %w", args[0], err)
			}
			if err := flows.Delete(ctx, flow.ID); err != nil {
				return err
			}

			env.Output().Success(fmt.Sprintf("Flow deleted: %s", args[0]))
			return nil
		},
	}
}
