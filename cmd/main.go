package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carbonledger/internal/accumulator"
	"carbonledger/internal/cache"
	"carbonledger/internal/handlers"
	"carbonledger/internal/logger"
	"carbonledger/internal/mqtt"
	"carbonledger/internal/repository"
	"carbonledger/internal/server"
	"carbonledger/internal/service"
	"carbonledger/internal/timeseries"

	"github.com/spf13/viper"
)

func main() {
	// load config.yml first so the logger picks up level/encoding
	if err := loadConfig(); err != nil {
		fallback := logger.Get(logger.InfoLevel, logger.EncodingConsole)
		fallback.Fatalw("error reading config", "err", err)
	}

	log := logger.Get(viper.GetString("log.level"), viper.GetString("log.encoding"))

	// open DB
	db, err := openDB(log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// external collaborators: cache and time-series mirror are advisory,
	// so a missing redis/ClickHouse degrades instead of aborting boot
	appCache := openCache(log)
	defer func() { _ = appCache.Close() }()
	mirror := openMirror(log)

	// wire dependencies
	repos := repository.NewRepository(db)
	accStore := accumulator.NewStore()
	services := service.NewService(repos, accStore, appCache, mirror, gatewayOptions(), log)
	apiHandler := handlers.NewHandler(services, viper.GetStringMapString("auth.api_keys"), log)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// message-bus telemetry path (subscribe-only)
	startConsumer(ctx, services, log)

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, viper.GetString("port"), apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	return viper.ReadInConfig()
}

// openDB initializes the SQLite database using configuration.
func openDB(log *logger.Logger) (*sql.DB, error) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "carbonledger.db")
		dbPath = "carbonledger.db"
	}
	return repository.InitDB(dbPath)
}

// openCache connects to redis when enabled. Returns nil (disabled cache) on
// any failure: aggregate views then read straight from sqlite.
func openCache(log *logger.Logger) *cache.Cache {
	if !viper.GetBool("redis.enabled") {
		return nil
	}
	c, err := cache.New(
		viper.GetString("redis.addr"),
		viper.GetString("redis.password"),
		viper.GetInt("redis.db"),
		viper.GetDuration("redis.ttl"),
	)
	if err != nil {
		log.Warnw("redis unavailable; serving aggregate views uncached", "err", err)
		return nil
	}
	log.Infow("connected to redis", "addr", viper.GetString("redis.addr"))
	return c
}

// openMirror connects the ClickHouse time-series mirror when enabled.
func openMirror(log *logger.Logger) service.ReadingMirror {
	if !viper.GetBool("clickhouse.enabled") {
		return nil
	}
	m, err := timeseries.NewClickHouseMirror(
		viper.GetString("clickhouse.addr"),
		viper.GetString("clickhouse.database"),
		viper.GetString("clickhouse.username"),
		viper.GetString("clickhouse.password"),
	)
	if err != nil {
		log.Warnw("clickhouse unavailable; raw readings will not be mirrored", "err", err)
		return nil
	}
	log.Infow("connected to clickhouse", "addr", viper.GetString("clickhouse.addr"))
	return m
}

func gatewayOptions() service.GatewayOptions {
	return service.GatewayOptions{
		AutoProvision: viper.GetBool("ingest.auto_provision"),
		ProvisionType: viper.GetString("ingest.provision_type"),
	}
}

// startConsumer subscribes the MQTT telemetry path when enabled.
func startConsumer(ctx context.Context, services *service.Service, log *logger.Logger) {
	if !viper.GetBool("mqtt.enabled") {
		return
	}
	consumer, err := mqtt.NewConsumer(mqtt.ConsumerConfig{
		Broker:    viper.GetString("mqtt.broker"),
		ClientID:  viper.GetString("mqtt.client_id"),
		Username:  viper.GetString("mqtt.username"),
		Password:  viper.GetString("mqtt.password"),
		Topic:     viper.GetString("mqtt.topic"),
		CompanyID: viper.GetString("mqtt.company_id"),
	}, services.Ingestion, log)
	if err != nil {
		log.Warnw("mqtt broker unavailable; telemetry accepted over HTTP only", "err", err)
		return
	}
	go func() {
		if err := consumer.Run(ctx); err != nil {
			log.Errorw("mqtt consumer stopped", "err", err)
		}
	}()
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop background goroutines
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
