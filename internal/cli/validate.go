package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/sdtmflow/internal/engine"
)

// NewValidateCmd создаёт команду проверки flow без выполнения.
func NewValidateCmd(envFn func() *Env) *cobra.Command {
	var src flowSource

	cmd := &cobra.Command{
		Use:   "validate [FLOW.json]",
		Short: "Check a flow without executing it",
		Long: `Build the graph from the flow file and print the execution order.

Reports unknown node kinds, invalid connections and cycles.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env := envFn()
			out := env.Output()

			lf, err := src.load(cmd.Context(), env, args)
			if err != nil {
				return err
			}
			g, err := lf.graph()
			if err != nil {
				return err
			}
			order, err := engine.TopologicalSort(g)
			if err != nil {
				return err
			}

			headers := []string{"#", "NODE", "TITLE", "KIND", "INPUTS"}
			rows := make([][]string, len(order))
			for i, n := range order {
				rows[i] = []string{
					strconv.Itoa(i + 1),
					n.ID,
					n.Title,
					string(n.Kind),
					fmt.Sprintf("%d/%d", len(g.Incoming(n.ID)), n.InputPorts()),
				}
			}

			out.Print(headers, rows, engine.SpecFromGraph(g))
			out.Success(fmt.Sprintf("Flow %q is valid: %d node(s), %d connection(s)", g.Name, g.Len(), len(g.Edges())))
			return nil
		},
	}

	src.bind(cmd)
	return cmd
}
