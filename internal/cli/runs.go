package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/sdtmflow/internal/domain"
	"github.com/shaiso/sdtmflow/internal/repo"
)

// NewRunsCmd создаёт команду просмотра сохранённых runs.
func NewRunsCmd(envFn func() *Env) *cobra.Command {
	var flowName string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored run summaries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := envFn()
			ctx := cmd.Context()

			runs, err := env.Runs(ctx)
			if err != nil {
				return err
			}

			filter := repo.RunFilter{FlowName: flowName, Limit: limit}
			if status != "" {
				filter.Status = domain.ParseRunStatus(status)
			}

			list, err := runs.List(ctx, filter)
			if err != nil {
				return err
			}

			headers := []string{"ID", "FLOW", "VERSION", "STATUS", "NODES", "FAILED", "STARTED", "DURATION"}
			rows := make([][]string, len(list))
			for i, r := range list {
				rows[i] = []string{
					r.ID.String(),
					r.FlowName,
					strconv.Itoa(r.FlowVersion),
					string(r.Status),
					strconv.Itoa(len(r.Nodes)),
					strconv.Itoa(len(r.Failed())),
					r.StartedAt.Format(time.RFC3339),
					r.Duration().Round(time.Millisecond).String(),
				}
			}

			env.Output().Print(headers, rows, list)
			return nil
		},
	}

	cmd.Flags().StringVar(&flowName, "flow", "", "Filter by flow name")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (RUNNING, SUCCEEDED, FAILED, CANCELLED)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of results")

	cmd.AddCommand(newRunsShowCmd(envFn))

	return cmd
}

func newRunsShowCmd(envFn func() *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show node results of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run ID %q: %w", args[0], err)
			}

			env := envFn()
			runs, err := env.Runs(cmd.Context())
			if err != nil {
				return err
			}
			run, err := runs.GetByID(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("run %s: %w", id, err)
			}

			printRun(env.Output(), run)
			return nil
		},
	}
}
