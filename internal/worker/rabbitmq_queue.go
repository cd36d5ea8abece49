package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"docchat/internal/platform/rabbitmq"
)

type JSONPublisher interface {
	PublishJSON(ctx context.Context, messageID string, v any) error
}

// RabbitMQQueue publishes processing jobs for a ProcessingConsumer, possibly
// in another process.
type RabbitMQQueue struct {
	publisher JSONPublisher
}

func NewRabbitMQQueue(publisher JSONPublisher) *RabbitMQQueue {
	return &RabbitMQQueue{publisher: publisher}
}

func (q *RabbitMQQueue) Enqueue(ctx context.Context, documentID uint) error {
	job := NewProcessJob(documentID)
	if err := q.publisher.PublishJSON(ctx, job.JobID, job); err != nil {
		return fmt.Errorf("enqueue document %d failed: %w", documentID, err)
	}
	return nil
}

// ProcessingConsumer consumes ProcessJob messages and runs the processor.
type ProcessingConsumer struct {
	conn      *amqp.Connection
	processor DocumentProcessor
	queueName string
	prefetch  int
	timeout   time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewProcessingConsumer(conn *amqp.Connection, processor DocumentProcessor, queueName string, prefetch int, timeout time.Duration) *ProcessingConsumer {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &ProcessingConsumer{
		conn:      conn,
		processor: processor,
		queueName: queueName,
		prefetch:  prefetch,
		timeout:   timeout,
	}
}

func (w *ProcessingConsumer) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(w.prefetch, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker prefetch failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := w.handle(workerCtx, d.Body); err != nil {
					log.Error().Err(err).Str("message_id", d.MessageId).Msg("drop undecodable process job")
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	log.Info().Str("queue", w.queueName).Int("prefetch", w.prefetch).Msg("processing consumer started")
	return nil
}

// handle returns an error only for messages that can never succeed. A failed
// processing run is recorded on the document and the message is acked.
func (w *ProcessingConsumer) handle(ctx context.Context, body []byte) error {
	job, err := DecodeProcessJob(body)
	if err != nil {
		return err
	}
	logger := log.With().Str("job_id", job.JobID).Uint("document_id", job.DocumentID).Logger()
	result, err := runJob(ctx, w.processor, job.DocumentID, w.timeout)
	if err != nil {
		logger.Warn().Err(err).Msg("process job finished with error")
		return nil
	}
	logger.Info().Int("chunk_count", result.Chunks).Bool("superseded", result.Superseded).Msg("process job done")
	return nil
}

func (w *ProcessingConsumer) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
