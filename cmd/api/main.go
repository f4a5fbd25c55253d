package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/slotbook/slotbook-api/internal/config"
	"github.com/slotbook/slotbook-api/internal/domain/booking"
	"github.com/slotbook/slotbook-api/internal/domain/catalog"
	"github.com/slotbook/slotbook-api/internal/domain/events"
	"github.com/slotbook/slotbook-api/internal/domain/realtime"
	"github.com/slotbook/slotbook-api/internal/domain/schedule"
	"github.com/slotbook/slotbook-api/internal/middleware"
	"github.com/slotbook/slotbook-api/internal/pkg/database"
	"github.com/slotbook/slotbook-api/internal/pkg/jwt"
	"github.com/slotbook/slotbook-api/internal/pkg/kafka"
	"github.com/slotbook/slotbook-api/internal/pkg/logger"
	pkgresponse "github.com/slotbook/slotbook-api/internal/pkg/response"
)

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env}); err != nil {
		log.Fatal().Err(err).Msg("Failed to init logger")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Str("store", cfg.StoreDriver).
		Msg("Starting Slotbook API")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// ---------- Stores ----------
	catalogRepo, ledger, closeStore := openStores(cfg)
	defer closeStore()

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)
	authMiddleware := middleware.Auth(jwtService)

	// ---------- Event feed ----------
	bus := events.NewBus()
	defer bus.Close()

	hub := realtime.NewHub(redis)
	go hub.Run()
	defer hub.Shutdown()

	hubEvents, cancelHub := bus.Subscribe(256)
	defer cancelHub()
	go events.Forward(ctx, "realtime", hubEvents, hub.Deliver)

	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers)
		defer producer.Close()

		kafkaEvents, cancelKafka := bus.Subscribe(1024)
		defer cancelKafka()
		go events.Forward(ctx, "kafka", kafkaEvents, producer.BookingSink(cfg.KafkaBookingTopic))
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaBookingTopic).Msg("Kafka booking sink enabled")
	}

	// ---------- Services ----------
	catalogManager := catalog.NewManager(catalogRepo, cfg.Location())
	bookingService := booking.NewService(ledger, catalogManager, schedule.NewResolver(catalogRepo), bus, booking.Options{
		GranularityMinutes: cfg.SlotGranularityMinutes,
		TxTimeout:          cfg.BookingTxTimeout,
	})

	// ---------- Handlers ----------
	catalogHandler := catalog.NewHandler(catalogManager)
	bookingHandler := booking.NewHandler(bookingService)
	realtimeHandler := realtime.NewHandler(hub, catalogManager, cfg.AllowedOrigins)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	// WebSocket endpoint; the token comes in ?token=
	r.With(authMiddleware).Get("/ws", realtimeHandler.WebSocket)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			pkgresponse.OK(w, map[string]string{"message": "pong"})
		})

		r.Mount("/bookings", bookingHandler.Routes(authMiddleware))
		mountBusinessRoutes(r, authMiddleware, catalogHandler, bookingHandler)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	stop()

	log.Info().Msg("Server stopped")
}

// businessRoutes is implemented by every handler that serves paths under
// /businesses/{businessID}.
type businessRoutes interface {
	RegisterBusinessRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler)
}

// mountBusinessRoutes registers all handlers on one /businesses/{businessID}
// subrouter. chi panics when the same pattern is mounted twice.
func mountBusinessRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler, handlers ...businessRoutes) {
	r.Route("/businesses/{businessID}", func(r chi.Router) {
		for _, h := range handlers {
			h.RegisterBusinessRoutes(r, authMiddleware)
		}
	})
}

// openStores selects the catalog and ledger implementation from STORE_DRIVER.
func openStores(cfg *config.Config) (catalog.Repository, booking.Ledger, func()) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn().Msg("Using in-memory stores, data is lost on restart")
		return catalog.NewMemoryRepository(), booking.NewMemoryLedger(), func() {}
	case config.StoreDriverPostgres, "":
		db, err := database.NewPostgres(database.PostgresConfig{
			URL:          cfg.DatabaseURL,
			MaxOpenConns: cfg.DBMaxOpenConns,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		return catalog.NewRepository(db), booking.NewRepository(db), func() { database.ClosePostgres(db) }
	default:
		log.Fatal().Str("store", cfg.StoreDriver).Msg("Unknown STORE_DRIVER")
		return nil, nil, nil
	}
}
