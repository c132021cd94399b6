package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/strikersplash/Striker-Splash-sub001/internal/config"
	"github.com/strikersplash/Striker-Splash-sub001/internal/database/migrations"
	"github.com/strikersplash/Striker-Splash-sub001/internal/game"
	"github.com/strikersplash/Striker-Splash-sub001/internal/kafka"
	"github.com/strikersplash/Striker-Splash-sub001/internal/ledger"
	ledgerdb "github.com/strikersplash/Striker-Splash-sub001/internal/ledger/db"
	"github.com/strikersplash/Striker-Splash-sub001/internal/ledger/schema"
	"github.com/strikersplash/Striker-Splash-sub001/internal/logger"
	queuedb "github.com/strikersplash/Striker-Splash-sub001/internal/queue/db"
	"github.com/strikersplash/Striker-Splash-sub001/internal/queue/queue_api"
	redcache "github.com/strikersplash/Striker-Splash-sub001/internal/queue/redis"
	queue "github.com/strikersplash/Striker-Splash-sub001/internal/queue/service"
)

func main() {
	_ = godotenv.Load() // Loads .env file if present

	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Close()

	ctx := context.Background()

	// --- PostgreSQL Setup ---
	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN))
	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", "failed to connect to Postgres: "+err.Error())
	}
	log.Info("DATABASE", "Postgres connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()

	// Run migrations
	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.DefaultOptions(), log)
		if err := runner.RunMigrations(); err != nil {
			log.Fatal("DATABASE", "migrations failed: "+err.Error())
		}
	}

	// Detect the ledger ticket-linkage column once; everything downstream
	// gets the capability injected.
	capability := schema.Detect(ctx, bunDB, log)

	// --- Redis Setup ---
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", "failed to connect to Redis: "+err.Error())
	}
	log.Info("REDIS", "Redis connection successful")

	displayCache := redcache.NewDisplayCache(redisClient, cfg.Redis.DisplayTTL, log)

	// --- Kafka Setup ---
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		topics := []string{
			cfg.Kafka.Topics.TicketIssued,
			cfg.Kafka.Topics.TicketExpired,
			cfg.Kafka.Topics.KicksPurchased,
			cfg.Kafka.Topics.GoalLogged,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
			log.Warn("KAFKA", "topic bootstrap failed, continuing: "+err.Error())
		}
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics)
		defer producer.Close()
	} else {
		log.Warn("KAFKA", "Kafka disabled, events will not be published")
	}

	// --- Initialize Services ---
	queueDB := &queuedb.DB{Bun: bunDB}
	ledgerDB := ledgerdb.New(bunDB, capability)

	var queueService *queue.QueueService
	var ledgerService *ledger.LedgerService
	var gameService *game.GameService
	if producer != nil {
		queueService = queue.NewQueueService(queueDB, displayCache, producer, log)
		ledgerService = ledger.NewLedgerService(ledgerDB, capability, ledgerDB, producer, log)
		gameService = game.NewGameService(bunDB, cfg.Game, capability, displayCache, producer, log)
	} else {
		queueService = queue.NewQueueService(queueDB, displayCache, nil, log)
		ledgerService = ledger.NewLedgerService(ledgerDB, capability, ledgerDB, nil, log)
		gameService = game.NewGameService(bunDB, cfg.Game, capability, displayCache, nil, log)
	}

	handler := queue_api.NewHandler(queueService, ledgerService, gameService)

	// --- Setup Router ---
	r := chi.NewRouter()
	r.Route("/api/v1", handler.Routes)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", "Queue service running on "+cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", "HTTP server error: "+err.Error())
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("SERVER", "shutdown signal received, cleaning up")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("SERVER", "forced shutdown: "+err.Error())
	}
	log.Info("SERVER", "queue service exited gracefully")
}
