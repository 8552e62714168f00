// Laundry Core - shared laundry room monitoring backend.
//
// This is the main entry point for the Laundry Core application. It wires
// together the controller gateway, the device state engine, the observer
// hub, push notifications, operation logs, and the HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	_ "github.com/openlaundry/laundry-core/migrations"

	"github.com/openlaundry/laundry-core/internal/api"
	"github.com/openlaundry/laundry-core/internal/appversion"
	"github.com/openlaundry/laundry-core/internal/device"
	"github.com/openlaundry/laundry-core/internal/gateway"
	"github.com/openlaundry/laundry-core/internal/infrastructure/config"
	"github.com/openlaundry/laundry-core/internal/infrastructure/database"
	"github.com/openlaundry/laundry-core/internal/infrastructure/influxdb"
	"github.com/openlaundry/laundry-core/internal/infrastructure/logging"
	"github.com/openlaundry/laundry-core/internal/infrastructure/mqtt"
	"github.com/openlaundry/laundry-core/internal/notice"
	"github.com/openlaundry/laundry-core/internal/oplog"
	"github.com/openlaundry/laundry-core/internal/push"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Local development convenience; the real environment wins.
	_ = godotenv.Load()

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Laundry Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Repositories
	deviceRepo := device.NewSQLiteRepository(db.DB)
	logSink := oplog.NewSQLiteSink(db.DB)
	pushRepo := push.NewSQLiteRepository(db.DB)
	noticeRepo := notice.NewSQLiteRepository(db.DB)
	versionRepo := appversion.NewSQLiteRepository(db.DB)

	// A disabled InfluxDB leaves the telemetry hooks nil; a typed nil
	// pointer inside the interfaces would dodge the nil checks downstream.
	var stateTelemetry device.Telemetry
	var connTelemetry gateway.ConnTelemetry
	var sensorTelemetry gateway.SensorTelemetry
	if influxClient != nil {
		stateTelemetry = influxClient
		connTelemetry = influxClient
		sensorTelemetry = influxClient
	}

	// State engine and controller gateway
	engine := device.NewStateEngine(deviceRepo, stateTelemetry, log.With("component", "engine"))
	registry := gateway.NewRegistry(engine, connTelemetry, log.With("component", "gateway"))

	// Operation log accumulator
	accumulator := oplog.NewAccumulator(logSink,
		time.Duration(cfg.Oplog.EvictAfter)*time.Second,
		log.With("component", "oplog"),
	)
	go accumulator.Run(ctx, time.Duration(cfg.Oplog.SweepInterval)*time.Second)

	// Observer hub, shared between the API server and the frame router
	hub := api.NewHub(cfg.WebSocket, log.With("component", "hub"))
	go hub.Run(ctx)

	// Push notification dispatch over MQTT
	dispatcher := push.NewMQTTDispatcher(mqttClient, byte(cfg.MQTT.QoS))

	// Frame router ties the gateway to everything else
	gwRouter := gateway.NewRouter(gateway.RouterDeps{
		Engine:      engine,
		Subs:        pushRepo,
		Dispatcher:  dispatcher,
		Accumulator: accumulator,
		Hub:         hub,
		Publisher:   mqttClient,
		Telemetry:   sensorTelemetry,
		Logger:      log.With("component", "router"),
	})

	// Liveness-driven transitions reach observers through the same path
	// as frame-driven ones.
	registry.OnTransition = gwRouter.NotifyTransition
	go registry.Run(ctx, time.Duration(cfg.Gateway.HeartbeatInterval)*time.Second)

	// HTTP and WebSocket server
	server, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Gateway:     cfg.Gateway,
		Security:    cfg.Security,
		Logger:      log.With("component", "api"),
		Devices:     deviceRepo,
		Registry:    registry,
		Router:      gwRouter,
		Logs:        logSink,
		Push:        pushRepo,
		Notices:     noticeRepo,
		Versions:    versionRepo,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT
	// 4. Database

	log.Info("Laundry Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LAUNDRY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LAUNDRY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
