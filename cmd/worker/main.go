package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/slotbook/slotbook-api/internal/config"
	"github.com/slotbook/slotbook-api/internal/domain/booking"
	"github.com/slotbook/slotbook-api/internal/domain/catalog"
	"github.com/slotbook/slotbook-api/internal/domain/events"
	"github.com/slotbook/slotbook-api/internal/domain/realtime"
	"github.com/slotbook/slotbook-api/internal/domain/schedule"
	"github.com/slotbook/slotbook-api/internal/pkg/database"
	"github.com/slotbook/slotbook-api/internal/pkg/kafka"
	"github.com/slotbook/slotbook-api/internal/pkg/logger"
)

// The worker completes confirmed bookings whose day has passed. It needs the
// shared Postgres store; the memory driver would only see its own empty state.
func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env}); err != nil {
		log.Fatal().Err(err).Msg("Failed to init logger")
	}

	db, err := database.NewPostgres(database.PostgresConfig{URL: cfg.DatabaseURL, MaxOpenConns: 5})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	// ---------- Event feed ----------
	bus := events.NewBus()
	defer bus.Close()

	var sinks []eventSink
	// Completed bookings reach websocket clients through the API instances'
	// Redis subscriptions.
	if redis != nil {
		relay := realtime.NewRelay(redis)
		defer relay.Shutdown()
		sinks = append(sinks, eventSink{name: "realtime", deliver: relay.Deliver})
	} else {
		log.Warn().Msg("REDIS_URL not set, completion events will not reach websocket clients")
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers)
		defer producer.Close()
		sinks = append(sinks, eventSink{name: "kafka", deliver: producer.BookingSink(cfg.KafkaBookingTopic)})
	}
	cancelFeed := forwardEvents(ctx, bus, sinks)
	defer cancelFeed()

	catalogRepo := catalog.NewRepository(db)
	loc := cfg.Location()
	service := booking.NewService(
		booking.NewRepository(db),
		catalog.NewManager(catalogRepo, loc),
		schedule.NewResolver(catalogRepo),
		bus,
		booking.Options{GranularityMinutes: cfg.SlotGranularityMinutes, TxTimeout: cfg.BookingTxTimeout},
	)

	completer := booking.NewCompleter(service, loc)
	if err := completer.Start(ctx, cfg.CompletionSchedule); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.CompletionSchedule).Msg("Invalid completion schedule")
	}

	// Catch up right away instead of waiting for the first tick.
	completer.RunOnce(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	completer.Stop(shutdownCtx)

	log.Info().Msg("Worker stopped")
}

// eventSink is one consumer of the booking events the worker produces
type eventSink struct {
	name    string
	deliver func(context.Context, events.Event) error
}

// forwardEvents gives every sink its own bus subscription. The returned func
// unsubscribes them all.
func forwardEvents(ctx context.Context, bus *events.Bus, sinks []eventSink) func() {
	cancels := make([]func(), 0, len(sinks))
	for _, sink := range sinks {
		ch, cancel := bus.Subscribe(1024)
		cancels = append(cancels, cancel)
		go events.Forward(ctx, sink.name, ch, sink.deliver)
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}
