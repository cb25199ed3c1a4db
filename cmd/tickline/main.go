// Tickline Core - Automation Action Engine
//
// This is the main entry point for the Tickline Core application.
// Tickline executes configured automation scripts on a cooperative
// tick loop, answers remote action calls over MQTT and HTTP, and
// aggregates sensor streams through sliding-window filters.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/tealfork/tickline-core/migrations"

	"github.com/tealfork/tickline-core/internal/api"
	"github.com/tealfork/tickline-core/internal/bridge"
	"github.com/tealfork/tickline-core/internal/engine"
	"github.com/tealfork/tickline-core/internal/filter"
	"github.com/tealfork/tickline-core/internal/infrastructure/config"
	"github.com/tealfork/tickline-core/internal/infrastructure/database"
	"github.com/tealfork/tickline-core/internal/infrastructure/influxdb"
	"github.com/tealfork/tickline-core/internal/infrastructure/logging"
	"github.com/tealfork/tickline-core/internal/infrastructure/mqtt"
	"github.com/tealfork/tickline-core/internal/rpc"
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
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // composition root: linear wiring of every subsystem
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Tickline Core",
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

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
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
	} else {
		log.Info("MQTT disabled; remote action calls and state mirroring unavailable")
	}

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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Shared state store and WebSocket hub
	store := engine.NewStore()
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	qos := byte(cfg.MQTT.QoS)

	// Run lifecycle events go to the broker when MQTT is up; run
	// durations go to InfluxDB when it is configured
	var publishers []engine.EventPublisher
	if mqttClient != nil {
		publishers = append(publishers, bridge.NewRunPublisher(mqttClient, qos, log))
	}
	if influxClient != nil {
		publishers = append(publishers, bridge.NewMetricsPublisher(influxClient))
	}
	events := engine.CombinePublishers(publishers...)

	// Script engine on its tick loop
	runRepo := engine.NewSQLiteRepository(db.DB)
	loop := engine.NewLoop(cfg.GetTickInterval())
	eng := engine.New(loop, runRepo, hub, events, log)

	buildEnv := engine.BuildEnv{Store: store, Logger: log}
	if mqttClient != nil {
		buildEnv.Publish = func(topic string, payload []byte) error {
			return mqttClient.Publish(topic, payload, qos, false)
		}
	}

	bootScripts := make([]string, 0, len(cfg.Scripts))
	for _, spec := range cfg.Scripts {
		script, buildErr := engine.BuildScript(spec, buildEnv)
		if buildErr != nil {
			return fmt.Errorf("building script %q: %w", spec.Name, buildErr)
		}
		if regErr := eng.Register(script); regErr != nil {
			return fmt.Errorf("registering script %q: %w", spec.Name, regErr)
		}
		if spec.OnBoot {
			bootScripts = append(bootScripts, spec.Name)
		}
	}
	log.Info("scripts registered", "count", len(cfg.Scripts), "on_boot", len(bootScripts))

	if startErr := eng.Start(ctx, bootScripts); startErr != nil {
		return fmt.Errorf("starting engine: %w", startErr)
	}
	log.Info("engine started", "tick_interval", cfg.GetTickInterval())

	// Remote action registry and call table
	actionRegistry := rpc.NewRegistry()
	if regErr := registerCoreActions(actionRegistry, eng, store); regErr != nil {
		return fmt.Errorf("registering core actions: %w", regErr)
	}

	callTable := rpc.NewTable(actionRegistry, cfg.GetCallTimeout(), hub, log)
	callTable.Start(ctx)
	log.Info("call table started", "timeout", cfg.GetCallTimeout())

	// Broker bridge: action calls in, results and run events out,
	// state topics mirrored into the store
	if mqttClient != nil {
		br := bridge.New(mqttClient, callTable, store, qos, log)
		if bridgeErr := br.Start(ctx); bridgeErr != nil {
			return fmt.Errorf("starting broker bridge: %w", bridgeErr)
		}
		log.Info("broker bridge started")
	}

	// Filter pipelines
	if err := startFilters(cfg, mqttClient, influxClient, log); err != nil {
		return err
	}

	// HTTP API server
	apiServer, err := api.New(api.Deps{
		Config:          cfg.API,
		WS:              cfg.WebSocket,
		Logger:          log,
		Engine:          eng,
		State:           store,
		Actions:         callTable,
		Registry:        actionRegistry,
		MQTT:            mqttClient,
		DB:              db,
		Runs:            runRepo,
		ExternalHub:     hub,
		Version:         version,
		RunHistoryLimit: cfg.Engine.RunHistoryLimit,
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
	log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

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
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("Tickline Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses TICKLINE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TICKLINE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// registerCoreActions declares the built-in remote actions. Remote peers
// invoke these over MQTT (tickline/action/call/{name}) or HTTP.
func registerCoreActions(registry *rpc.Registry, eng *engine.Engine, store *engine.Store) error {
	actions := []*rpc.Action{
		{
			Name:     "ping",
			Response: rpc.ResponseOptional,
			Handler: func(_ context.Context, call *rpc.Call) {
				result := rpc.Result{Success: true}
				if call.ReturnResponse() {
					result.Payload = map[string]any{"version": version}
				}
				//nolint:errcheck // late responses are dropped by the table
				call.Respond(result)
			},
		},
		{
			Name: "script_execute",
			Args: []rpc.Arg{
				{Name: "script", Type: rpc.TypeString},
			},
			Response: rpc.ResponseStatus,
			Handler: func(ctx context.Context, call *rpc.Call) {
				script, _ := call.Args()["script"].(string)
				_, err := eng.Execute(ctx, script, nil, "action")
				result := rpc.Result{Success: err == nil}
				if err != nil {
					result.Error = err.Error()
				}
				//nolint:errcheck // late responses are dropped by the table
				call.Respond(result)
			},
		},
		{
			Name: "script_stop",
			Args: []rpc.Arg{
				{Name: "script", Type: rpc.TypeString},
			},
			Response: rpc.ResponseStatus,
			Handler: func(ctx context.Context, call *rpc.Call) {
				script, _ := call.Args()["script"].(string)
				err := eng.Stop(ctx, script)
				result := rpc.Result{Success: err == nil}
				if err != nil {
					result.Error = err.Error()
				}
				//nolint:errcheck // late responses are dropped by the table
				call.Respond(result)
			},
		},
		{
			Name: "state_get",
			Args: []rpc.Arg{
				{Name: "key", Type: rpc.TypeString},
			},
			Response: rpc.ResponseOnly,
			Handler: func(_ context.Context, call *rpc.Call) {
				key, _ := call.Args()["key"].(string)
				value, ok := store.Get(key)
				//nolint:errcheck // late responses are dropped by the table
				call.Respond(rpc.Result{
					Success: true,
					Payload: map[string]any{"key": key, "value": value, "exists": ok},
				})
			},
		},
	}

	for _, a := range actions {
		if err := registry.Register(a); err != nil {
			return err
		}
	}
	return nil
}

// startFilters builds the configured filter pipelines and attaches them
// to the broker. Without MQTT there is nothing to sample, so pipelines
// are skipped with a warning.
func startFilters(cfg *config.Config, mqttClient *mqtt.Client, influxClient *influxdb.Client, log *logging.Logger) error {
	if len(cfg.Filters) == 0 {
		return nil
	}
	if mqttClient == nil {
		log.Warn("filter pipelines configured but MQTT is disabled; skipping", "count", len(cfg.Filters))
		return nil
	}

	var points filter.PointWriter
	if influxClient != nil {
		points = influxClient
	}

	source := bridge.FilterSource{Broker: mqttClient}
	for _, spec := range cfg.Filters {
		pipeline, err := filter.NewPipeline(spec, mqttClient, points, log)
		if err != nil {
			return fmt.Errorf("building filter pipeline %q: %w", spec.Name, err)
		}
		if err := pipeline.Attach(source); err != nil {
			return fmt.Errorf("attaching filter pipeline %q: %w", spec.Name, err)
		}
		log.Info("filter pipeline attached",
			"pipeline", spec.Name,
			"source_topic", spec.SourceTopic,
			"window_size", spec.WindowSize,
		)
	}
	return nil
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	// Check database
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Check MQTT (if enabled)
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	// Check InfluxDB (if enabled)
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
