package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/sdtmflow/internal/mq"
)

// errUnknownMessage — сообщение неизвестного типа.
var errUnknownMessage = errors.New("unknown message type")

// NewEventsCmd создаёт команду чтения событий run из RabbitMQ.
func NewEventsCmd(envFn func() *Env) *cobra.Command {
	var queue string
	var prefetch int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print run events published with --publish",
		Long: `Consume run.finished events and print one line per run.

Messages that cannot be decoded are moved to the dead letter queue.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := envFn()

			conn, err := env.AMQP()
			if err != nil {
				return err
			}

			consumer := mq.NewConsumer(conn, env.Logger(), mq.ConsumerConfig{
				Queue:    mq.Queue(queue),
				Prefetch: prefetch,
				Handler:  eventPrinter(env.Output()),
			})

			err = consumer.Run(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&queue, "queue", string(mq.QueueRunEvents), "Queue to consume")
	cmd.Flags().IntVar(&prefetch, "prefetch", 10, "Unacknowledged messages per consumer")

	return cmd
}

// eventPrinter возвращает обработчик, печатающий сводку run.
func eventPrinter(out *Output) mq.Handler {
	return func(_ context.Context, msg *mq.Message) error {
		if msg.Type != mq.MessageTypeRunFinished {
			return fmt.Errorf("%w: %q", errUnknownMessage, msg.Type)
		}

		p, err := mq.ParsePayload[mq.RunFinishedPayload](msg)
		if err != nil {
			return err
		}

		if out.JSONMode() {
			out.JSON(p)
			return nil
		}

		out.Table(
			[]string{"RUN", "FLOW", "STATUS", "NODES", "FAILED", "DURATION"},
			[][]string{{
				p.RunID.String(),
				p.FlowName,
				string(p.Status),
				fmt.Sprint(p.Nodes),
				fmt.Sprint(len(p.Failed)),
				(time.Duration(p.DurationMS) * time.Millisecond).String(),
			}},
		)
		for _, f := range p.Failed {
			out.Info(fmt.Sprintf("  %s [%s]: %s", f.NodeID, f.Category, f.Error))
		}
		return nil
	}
}
