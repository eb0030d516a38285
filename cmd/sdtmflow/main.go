// sdtmflow — выполнение flow преобразований SDTM.
//
// Использование:
//
//	sdtmflow [--db URL] [--amqp URL] [--json] <command> [flags]
//
// Команды:
//
//	run       Выполнить flow
//	validate  Проверить flow
//	watch     Выполнять flow по расписанию
//	flow      Хранение и версии flows
//	runs      Сохранённые runs
//	events    События run из RabbitMQ
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/sdtmflow/internal/cli"
	"github.com/shaiso/sdtmflow/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var opts cli.Options
	var verbose bool

	rootCmd := &cobra.Command{
		Use:           "sdtmflow",
		Short:         "sdtmflow — flow execution engine for SDTM transformations",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.DBURL, "db", "", "PostgreSQL URL (default: $DB_URL)")
	rootCmd.PersistentFlags().StringVar(&opts.AMQPURL, "amqp", "", "RabbitMQ URL (default: $AMQP_URL)")
	rootCmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging (overrides LOG_LEVEL)")

	var env *cli.Env
	envFn := func() *cli.Env {
		if env == nil {
			logger := telemetry.SetupLogger()
			if verbose {
				logger = telemetry.NewLogger(os.Stderr, slog.LevelDebug, os.Getenv("LOG_FORMAT"))
			}
			env = cli.NewEnv(&opts, logger)
		}
		return env
	}
	defer func() {
		if env != nil {
			env.Close()
		}
	}()

	rootCmd.AddCommand(
		cli.NewRunCmd(envFn),
		cli.NewValidateCmd(envFn),
		cli.NewWatchCmd(envFn),
		cli.NewFlowCmd(envFn),
		cli.NewRunsCmd(envFn),
		cli.NewEventsCmd(envFn),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if env != nil {
			env.Close()
		}
		os.Exit(1)
	}
}
