package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/sdtmflow/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeRunFinished MessageType = "run.finished"
)

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload json.RawMessage `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage создаёт сообщение с сериализованным payload.
func NewMessage(msgType MessageType, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// RunFinishedPayload — сводка завершённого run для внешних потребителей.
type RunFinishedPayload struct {
	RunID       uuid.UUID        `json:"run_id"`
	FlowName    string           `json:"flow_name,omitempty"`
	FlowVersion int              `json:"flow_version,omitempty"`
	Status      domain.RunStatus `json:"status"`
	Nodes       int              `json:"nodes"`
	Failed      []FailedNode     `json:"failed,omitempty"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	DurationMS  int64            `json:"duration_ms"`
}

// FailedNode — узел, завершившийся ошибкой.
type FailedNode struct {
	NodeID   string `json:"node_id"`
	Title    string `json:"title,omitempty"`
	Category string `json:"category"`
	Error    string `json:"error"`
}

// NewRunFinishedPayload строит payload по сводке run.
func NewRunFinishedPayload(run *domain.Run) RunFinishedPayload {
	p := RunFinishedPayload{
		RunID:       run.ID,
		FlowName:    run.FlowName,
		FlowVersion: run.FlowVersion,
		Status:      run.Status,
		Nodes:       len(run.Nodes),
		Error:       run.Error,
		StartedAt:   run.StartedAt,
		DurationMS:  run.Duration().Milliseconds(),
	}
	for _, n := range run.Failed() {
		p.Failed = append(p.Failed, FailedNode{
			NodeID:   n.NodeID,
			Title:    n.Title,
			Category: n.Category,
			Error:    n.Error,
		})
	}
	return p
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(
		ctx,
		string(exchange),   // exchange
		string(routingKey), // routing key
		false,              // mandatory
		false,              // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Type:         string(msg.Type),
			Timestamp:    msg.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
	}

	p.logger.Debug("published message",
		"exchange", exchange,
		"routing_key", routingKey,
		"message_id", msg.ID,
		"type", msg.Type,
	)
	return nil
}

// PublishRunFinished публикует сводку завершённого run.
// Ключ маршрутизации зависит от статуса: run.succeeded, run.failed, run.cancelled.
func (p *Publisher) PublishRunFinished(ctx context.Context, run *domain.Run) error {
	msg, err := NewMessage(MessageTypeRunFinished, NewRunFinishedPayload(run))
	if err != nil {
		return err
	}
	return p.Publish(ctx, ExchangeRuns, RoutingKeyFor(run.Status), msg)
}
