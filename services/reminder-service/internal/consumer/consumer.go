package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/thatsmartsite/schedule/libs/kafkax"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Consumer reads the schedule domain topics in one consumer group and runs
// the handler once per message. Dedupe of redeliveries belongs to the
// handler, which records the inbox marker in its own transaction.
type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	handler Handler
}

type Config struct {
	Brokers string
	GroupID string
	Topics  []string
}

func New(logger *slog.Logger, cfg Config, handler Handler) *Consumer {
	brokers := kafkax.SplitBrokers(cfg.Brokers)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &Consumer{
		reader:  reader,
		logger:  logger,
		handler: handler,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
		ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)

		if err := c.handler(ctxSpan, msg); err != nil {
			c.logger.Error("handler error", "err", err, "event_id", kafkax.ExtractEventMeta(msg).EventID)
			span.RecordError(err)
		}
		span.End()
	}
}
