// AstroHub Core - Unified Device Synchronization Layer
//
// This is the main entry point for the AstroHub Core application.
// AstroHub presents every Alpaca-speaking astronomical instrument on the
// network through one registry, one command surface, and one event stream:
//   - Network discovery of device servers (UDP broadcast + manual entry)
//   - Connection lifecycle management with a strict state machine
//   - Command dispatch with optimistic property writes
//   - Real-time event streaming over WebSocket and MQTT export
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/astrohub/astrohub-core/migrations"

	"github.com/astrohub/astrohub-core/internal/alpaca"
	"github.com/astrohub/astrohub-core/internal/api"
	"github.com/astrohub/astrohub-core/internal/audit"
	"github.com/astrohub/astrohub-core/internal/auth"
	"github.com/astrohub/astrohub-core/internal/bus"
	"github.com/astrohub/astrohub-core/internal/device"
	"github.com/astrohub/astrohub-core/internal/discovery"
	"github.com/astrohub/astrohub-core/internal/dispatch"
	"github.com/astrohub/astrohub-core/internal/export"
	"github.com/astrohub/astrohub-core/internal/history"
	"github.com/astrohub/astrohub-core/internal/infrastructure/config"
	"github.com/astrohub/astrohub-core/internal/infrastructure/database"
	"github.com/astrohub/astrohub-core/internal/infrastructure/influxdb"
	"github.com/astrohub/astrohub-core/internal/infrastructure/logging"
	"github.com/astrohub/astrohub-core/internal/infrastructure/mqtt"
	"github.com/astrohub/astrohub-core/internal/lifecycle"
	"github.com/astrohub/astrohub-core/internal/metrics"
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
func run(ctx context.Context) error { //nolint:gocognit,gocyclo,cyclop,funlen // sequential wiring of every subsystem
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting AstroHub Core",
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

	// Register Prometheus collectors before any subsystem records a sample
	metrics.Init()

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

	// Event bus and device registry
	events := bus.New()
	events.SetLogger(log)

	registry := device.NewRegistry(events)
	registry.SetLogger(log)

	// Device transport: real Alpaca client, or the in-memory simulator
	alpacaClient := alpaca.NewClient(alpaca.Config{
		ClientID: cfg.Alpaca.ClientID,
		Timeout:  cfg.Alpaca.Timeout,
	})

	var transport interface {
		lifecycle.Transport
		dispatch.Transport
	} = alpacaClient
	if cfg.Alpaca.Simulator {
		log.Warn("simulator transport enabled; no device traffic leaves this process")
		transport = dispatch.NewSimulator()
	}

	lifecycleManager := lifecycle.NewManager(registry, transport)
	lifecycleManager.SetLogger(log)

	dispatcher := dispatch.NewDispatcher(registry, transport)
	dispatcher.SetLogger(log)

	// Discovery service
	var rewriter *discovery.ProxyRewriter
	if cfg.Discovery.UseProxy {
		rewriter = &discovery.ProxyRewriter{Base: cfg.API.PublicURL}
	}
	discoveryService := discovery.NewService(discovery.Options{
		Registry:   registry,
		Client:     alpacaClient,
		Scanner:    &discovery.UDPScanner{Window: cfg.GetScanWindow()},
		Rewriter:   rewriter,
		Repository: discovery.NewRepository(db.DB),
		Logger:     log,
	})

	if restoreErr := discoveryService.RestoreManual(ctx); restoreErr != nil {
		log.Warn("restoring manual servers failed", "error", restoreErr)
	}

	if cfg.Discovery.ScanOnStartup {
		go func() {
			if _, scanErr := discoveryService.Discover(ctx); scanErr != nil {
				log.Warn("startup discovery scan failed", "error", scanErr)
			}
		}()
	}

	// MQTT export bridge (optional)
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		exporter := export.NewExporter(events, mqttClient, byte(cfg.MQTT.QoS))
		exporter.SetLogger(log)
		exporter.Start()
		defer exporter.Stop()
	} else {
		log.Info("MQTT export disabled")
	}

	// InfluxDB property history (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		recorder := history.NewRecorder(events, influxClient, registry)
		recorder.Start()
		defer recorder.Stop()
	} else {
		log.Info("InfluxDB disabled")
	}

	// Auth repositories; seed the first admin on an empty database
	userRepo := auth.NewUserRepository(db.DB)
	tokenRepo := auth.NewTokenRepository(db.DB)

	if _, seedErr := auth.SeedAdmin(ctx, userRepo, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin account: %w", seedErr)
	}

	// API server
	apiServer, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log,
		Registry:   registry,
		Lifecycle:  lifecycleManager,
		Dispatcher: dispatcher,
		Discovery:  discoveryService,
		Events:     events,
		DB:         db,
		Users:      userRepo,
		Tokens:     tokenRepo,
		Audit:      audit.NewSQLiteRepository(db.DB),
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify core services are healthy
	if err := healthCheck(ctx, db, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. History recorder / InfluxDB (if enabled)
	// 3. MQTT exporter / client (if enabled)
	// 4. Database

	log.Info("AstroHub Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses ASTROHUB_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ASTROHUB_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies core services are healthy after startup.
func healthCheck(ctx context.Context, db *database.DB, apiServer *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
