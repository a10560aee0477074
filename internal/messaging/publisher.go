// Package messaging публикует события завершения генерации иллюстраций
// в RabbitMQ. Брокер опционален: при пустом URL используется no-op издатель.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"illustrator-server/internal/models"
)

// GenerationEvent — событие о терминальном состоянии запроса генерации.
type GenerationEvent struct {
	RequestID string               `json:"request_id"`
	UserID    uuid.UUID            `json:"user_id"`
	SceneID   uuid.UUID            `json:"scene_id"`
	Success   bool                 `json:"success"`
	ImageURL  string               `json:"image_url,omitempty"`
	Model     string               `json:"model,omitempty"`
	Stage     models.PipelineStage `json:"stage,omitempty"`
	Details   string               `json:"details,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// EventPublisher — контракт публикации событий генерации.
type EventPublisher interface {
	PublishGenerationEvent(ctx context.Context, event GenerationEvent) error
	Close() error
}

// RabbitMQPublisher публикует события в durable-очередь.
type RabbitMQPublisher struct {
	conn      *amqp091.Connection
	ch        *amqp091.Channel
	queueName string
	logger    *zap.Logger
}

// NewRabbitMQPublisher подключается к брокеру и объявляет очередь.
func NewRabbitMQPublisher(url, queueName string, logger *zap.Logger) (*RabbitMQPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	// Очередь durable, чтобы пережить перезапуск брокера
	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // auto-delete
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue '%s': %w", queueName, err)
	}
	logger.Info("Generation events queue declared", zap.String("queue", queueName))
	return &RabbitMQPublisher{conn: conn, ch: ch, queueName: queueName, logger: logger.Named("messaging")}, nil
}

// PublishGenerationEvent публикует событие в очередь.
func (p *RabbitMQPublisher) PublishGenerationEvent(ctx context.Context, event GenerationEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal generation event: %w", err)
	}
	err = p.ch.PublishWithContext(ctx,
		"",          // exchange (default)
		p.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    event.RequestID,
			Timestamp:    event.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		p.logger.Error("Failed to publish generation event",
			zap.String("request_id", event.RequestID), zap.Error(err))
		return fmt.Errorf("failed to publish generation event: %w", err)
	}
	p.logger.Debug("Generation event published",
		zap.String("request_id", event.RequestID), zap.Bool("success", event.Success))
	return nil
}

// Close закрывает канал и соединение.
func (p *RabbitMQPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// NopPublisher used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishGenerationEvent(context.Context, GenerationEvent) error { return nil }
func (NopPublisher) Close() error                                                  { return nil }
