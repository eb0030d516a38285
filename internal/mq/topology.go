package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/sdtmflow/internal/domain"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeRuns Exchange = "sdtmflow.runs"
	ExchangeDLQ  Exchange = "sdtmflow.dlq"
)

// Queues — имена очередей.
const (
	QueueRunEvents Queue = "sdtmflow.run-events"
	QueueDLQ       Queue = "sdtmflow.dlq.run-events"
)

// Routing keys. События run публикуются с ключом run.<status>.
const (
	RoutingKeyRunSucceeded RoutingKey = "run.succeeded"
	RoutingKeyRunFailed    RoutingKey = "run.failed"
	RoutingKeyRunCancelled RoutingKey = "run.cancelled"

	// RoutingKeyAllRuns — шаблон для привязки ко всем событиям run.
	RoutingKeyAllRuns RoutingKey = "run.#"

	RoutingKeyDLQ RoutingKey = "run-events"
)

// RoutingKeyFor возвращает ключ маршрутизации для статуса run.
func RoutingKeyFor(status domain.RunStatus) RoutingKey {
	switch status {
	case domain.RunStatusSucceeded:
		return RoutingKeyRunSucceeded
	case domain.RunStatusCancelled:
		return RoutingKeyRunCancelled
	default:
		return RoutingKeyRunFailed
	}
}

// SetupTopology объявляет обменники, очереди и привязки.
// Операции идемпотентны.
//
//	sdtmflow.runs (topic)
//	└── sdtmflow.run-events [run.#]  → DLQ: sdtmflow.dlq.run-events
//	sdtmflow.dlq (direct)
//	└── sdtmflow.dlq.run-events [run-events]
func SetupTopology(conn *Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeRuns, amqp.ExchangeTopic},
		{ExchangeDLQ, amqp.ExchangeDirect},
	}
	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// Сообщения, которые не удалось обработать, уходят в DLQ без повторов
		{QueueRunEvents, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQ),
		}},
		{QueueDLQ, nil},
	}
	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueRunEvents, RoutingKeyAllRuns, ExchangeRuns},
		{QueueDLQ, RoutingKeyDLQ, ExchangeDLQ},
	}
	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}
