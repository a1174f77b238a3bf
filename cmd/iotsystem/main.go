// IoT System API
//
// This is the main entry point for the IoT System API server. It serves
// account, device and monitoring management over REST, streams changes
// over WebSocket, and delivers device commands over MQTT.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	_ "github.com/rodolfodiegosilva/iot-system-api/migrations"

	"github.com/rodolfodiegosilva/iot-system-api/internal/api"
	"github.com/rodolfodiegosilva/iot-system-api/internal/audit"
	"github.com/rodolfodiegosilva/iot-system-api/internal/auth"
	"github.com/rodolfodiegosilva/iot-system-api/internal/device"
	"github.com/rodolfodiegosilva/iot-system-api/internal/infrastructure/config"
	"github.com/rodolfodiegosilva/iot-system-api/internal/infrastructure/database"
	"github.com/rodolfodiegosilva/iot-system-api/internal/infrastructure/influxdb"
	"github.com/rodolfodiegosilva/iot-system-api/internal/infrastructure/logging"
	"github.com/rodolfodiegosilva/iot-system-api/internal/infrastructure/mqtt"
	"github.com/rodolfodiegosilva/iot-system-api/internal/monitoring"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configPathEnv     = "IOTSYS_CONFIG"
)

// options holds the parsed command line.
type options struct {
	configPath  string
	showVersion bool
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Printf("iotsystem %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	// Cancel on Ctrl+C or SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts.configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags reads the command line. --config wins over IOTSYS_CONFIG,
// which wins over the default path.
func parseFlags(args []string) (options, error) {
	var opts options

	flagSet := pflag.NewFlagSet("iotsystem", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML configuration file (env: "+configPathEnv+")")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	flagSet.BoolP("help", "h", false, "show this help")

	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if flagSet.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}

	if opts.configPath == "" {
		opts.configPath = getConfigPath()
	}
	return opts, nil
}

// run is the application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context, configPath string) error {
	// Default logger until config is loaded
	log := logging.Default()
	log.Info("starting IoT System API",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	revocations, closeRevocations, err := openRevocationStore(ctx, cfg.Security.Revocation, db)
	if err != nil {
		return fmt.Errorf("opening revocation store: %w", err)
	}
	defer closeRevocations()
	log.Info("revocation store ready", "backend", cfg.Security.Revocation.Backend)

	sweeper := auth.NewRevocationSweeper(revocations, cfg.Security.Revocation.SweepIntervalDuration(), log.Logger)
	go sweeper.Run(ctx)

	users := auth.NewUserRepository(db.DB)
	if _, err := auth.SeedAdmin(ctx, users, auth.AdminSeed{
		Username: cfg.Security.Bootstrap.AdminUsername,
		Email:    cfg.Security.Bootstrap.AdminEmail,
		Password: cfg.Security.Bootstrap.AdminPassword,
	}, log.Logger); err != nil {
		return fmt.Errorf("seeding administrator: %w", err)
	}

	tokens := auth.NewTokenService(cfg.Security.JWT.Secret)
	authenticator := auth.NewAuthenticator(tokens, revocations, users)
	accounts := auth.NewService(users, tokens, revocations, log.Logger)

	devices := device.NewService(device.NewSQLiteRepository(db.DB, cfg.API.PublicURL+"/api/v1"), users)
	devices.SetLogger(log)
	monitorings := monitoring.NewService(monitoring.NewSQLiteRepository(db.DB), devices, log.Logger)
	recorder := audit.NewRecorder(audit.NewSQLiteRepository(db.DB), log.Logger)

	// MQTT is optional: commands are stored either way
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = connectMQTT(cfg, devices, log)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB,
			influxdb.WithMeasurements(influxdb.DefaultMeasurements()),
			influxdb.WithErrorHandler(func(err error) {
				log.Error("InfluxDB write error", "error", err)
			}),
		)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
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

		devices.SetStatusRecorder(influxClient)
		monitorings.SetStatusRecorder(influxClient)
	} else {
		log.Info("InfluxDB disabled")
	}

	deps := api.Deps{
		Config:        cfg.API,
		WS:            cfg.WebSocket,
		Security:      cfg.Security,
		Logger:        log,
		Authenticator: authenticator,
		Accounts:      accounts,
		Devices:       devices,
		Monitorings:   monitorings,
		Audit:         recorder,
		Sweeper:       sweeper,
		DB:            db.DB,
		Version:       version,
	}
	// A typed nil would pass the server's nil check
	if mqttClient != nil {
		deps.Events = mqttClient
	}

	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred closes run in reverse: API server, InfluxDB, MQTT,
	// revocation store, database.
	return nil
}

// openRevocationStore builds the configured revocation backend. The
// returned close function is always safe to call.
func openRevocationStore(ctx context.Context, cfg config.RevocationConfig, db *database.DB) (auth.RevocationStore, func(), error) {
	noop := func() {}

	switch cfg.Backend {
	case config.RevocationBackendMemory:
		return auth.NewMemoryRevocationStore(), noop, nil

	case config.RevocationBackendSQLite:
		return auth.NewSQLiteRevocationStore(db.DB), noop, nil

	case config.RevocationBackendPostgres:
		pg, err := database.OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, noop, err
		}
		if err := auth.EnsurePostgresSchema(ctx, pg); err != nil {
			pg.Close() //nolint:errcheck // already failing
			return nil, noop, err
		}
		return auth.NewPostgresRevocationStore(pg), closeDB(pg), nil

	default:
		return nil, noop, fmt.Errorf("unknown revocation backend %q", cfg.Backend)
	}
}

func closeDB(db *sql.DB) func() {
	return func() {
		db.Close() //nolint:errcheck // shutdown path
	}
}

// connectMQTT connects to the broker and subscribes to device status
// reports.
func connectMQTT(cfg *config.Config, devices *device.Service, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg.MQTT,
		mqtt.WithLogger(log),
		mqtt.WithStatusTopic(mqtt.Topics{}.SystemStatus()),
		mqtt.WithConnectHook(func() { log.Info("MQTT reconnected") }),
		mqtt.WithDisconnectHook(func(err error) { log.Warn("MQTT disconnected", "error", err) }),
	)
	if err != nil {
		return nil, err
	}
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	qos := byte(cfg.MQTT.QoS)
	devices.SetPublisher(client, qos)
	if err := client.Subscribe(mqtt.Topics{}.AllDeviceStatuses(), qos, devices.HandleStatusMessage); err != nil {
		client.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("subscribing to device status: %w", err)
	}
	return client, nil
}

// getConfigPath returns IOTSYS_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv(configPathEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies every started component. mqttClient and
// influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, server *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
