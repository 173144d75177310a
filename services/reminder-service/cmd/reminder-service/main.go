package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/thatsmartsite/schedule/libs/config"
	"github.com/thatsmartsite/schedule/libs/db"
	"github.com/thatsmartsite/schedule/libs/httpx"
	"github.com/thatsmartsite/schedule/libs/kafkax"
	otelx "github.com/thatsmartsite/schedule/libs/otel"
	"github.com/thatsmartsite/schedule/libs/runtime"
	"github.com/thatsmartsite/schedule/services/reminder-service/internal/consumer"
	"github.com/thatsmartsite/schedule/services/reminder-service/internal/inbox"
	"github.com/thatsmartsite/schedule/services/reminder-service/internal/jobs"
	"github.com/thatsmartsite/schedule/services/reminder-service/internal/outbox"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultTopics = "schedule.appointment.created.v1,schedule.appointment.updated.v1,schedule.appointment.status_changed.v1,schedule.appointment.deleted.v1"

func main() {
	service := config.String("SERVICE_NAME", "reminder-service")
	port, err := config.Port("PORT", "8087")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	inboxRepo := inbox.NewRepository()
	jobRepo := jobs.NewRepository()
	outboxRepo := outbox.NewRepository(pool)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	backoffSeconds, err := strconv.Atoi(config.String("REMINDER_BACKOFF_SECONDS", "60"))
	if err != nil || backoffSeconds <= 0 {
		backoffSeconds = 60
	}
	jobWorker := jobs.NewWorker(pool, jobRepo, outboxRepo, logger, jobs.WorkerConfig{
		Interval:  2 * time.Second,
		BatchSize: 50,
		Backoff:   time.Duration(backoffSeconds) * time.Second,
	})
	go jobWorker.Run(ctx)

	leadMinutes, err := strconv.Atoi(config.String("REMINDER_LEAD_MINUTES", "60"))
	if err != nil || leadMinutes <= 0 {
		leadMinutes = 60
	}
	lead := time.Duration(leadMinutes) * time.Minute

	consumerCfg := consumer.Config{
		Brokers: config.String("KAFKA_BROKERS", ""),
		GroupID: config.String("KAFKA_GROUP_ID", "reminder-service"),
		Topics:  parseList(config.String("KAFKA_CONSUME_TOPICS", defaultTopics)),
	}

	eventConsumer := consumer.New(logger, consumerCfg, func(ctx context.Context, msg kafka.Message) error {
		meta := kafkax.ExtractEventMeta(msg)
		eventType := meta.EventType

		var evt jobs.AppointmentEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Error("invalid appointment event", "err", err, "event_type", eventType)
			return nil
		}
		if evt.AppointmentID == "" {
			logger.Error("appointment event missing id", "event_type", eventType)
			return nil
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		// The inbox marker shares the transaction with the planning writes:
		// a mid-handler failure rolls the marker back too, so the redelivery
		// is processed instead of skipped as a duplicate.
		fresh, err := inboxRepo.Record(ctx, tx, meta.EventID, eventType)
		if err != nil {
			return err
		}
		if !fresh {
			logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", eventType)
			return nil
		}

		switch eventType {
		case "schedule.appointment.created.v1", "schedule.appointment.updated.v1":
			// A create or update supersedes earlier reminders and re-plans
			// from the fresh state.
			if err := jobRepo.CancelPending(ctx, tx, evt.AppointmentID); err != nil {
				return err
			}
			if job, ok := jobs.Plan(evt, lead, time.Now()); ok {
				if err := jobRepo.Insert(ctx, tx, job); err != nil {
					return err
				}
			}
		case "schedule.appointment.status_changed.v1":
			if evt.Status == "cancelled" || evt.Status == "no_show" {
				if err := jobRepo.CancelPending(ctx, tx, evt.AppointmentID); err != nil {
					return err
				}
			}
		case "schedule.appointment.deleted.v1":
			if err := jobRepo.CancelPending(ctx, tx, evt.AppointmentID); err != nil {
				return err
			}
		default:
			logger.Info("ignoring event", "event_type", eventType)
		}

		return tx.Commit(ctx)
	})
	go eventConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "reminder")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func parseList(raw string) []string {
	var out []string
	for _, v := range strings.Split(raw, ",") {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
