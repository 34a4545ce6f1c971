// Danfoss Air bridge for Gray Logic.
//
// This is the main entry point for the ventilation bridge. It owns one
// device session against a Danfoss Air unit reached through a Modbus TCP
// gateway and exposes it over MQTT (Gray Logic bridge topics) and HTTP.
//
// "danfossair token [subject]" prints a bearer token for the HTTP API's
// write routes, signed with the configured api.auth.jwt_secret.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	_ "github.com/nerrad567/gray-logic-danfoss/migrations"

	"github.com/nerrad567/gray-logic-danfoss/internal/api"
	"github.com/nerrad567/gray-logic-danfoss/internal/bridges/danfoss"
	"github.com/nerrad567/gray-logic-danfoss/internal/device"
	"github.com/nerrad567/gray-logic-danfoss/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-danfoss/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-danfoss/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-danfoss/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-danfoss/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-danfoss/internal/transport/modbus"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	if len(os.Args) > 1 && os.Args[1] == "token" {
		err = issueToken(os.Stdout, os.Args[2:])
	} else {
		err = run(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting Danfoss Air bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)

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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	applied, _, err := db.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path, "migrations", len(applied))

	settingsRepo := device.NewSQLiteSettingsRepository(db.DB)
	historyRepo := device.NewSQLiteStateHistoryRepository(db.DB)

	settings, added, err := loadSettings(ctx, settingsRepo, cfg)
	if err != nil {
		return err
	}

	store := device.NewStore(cfg.Device.ID, settings.Name, danfoss.DefaultCapabilities())
	store.SetLogger(log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := danfoss.NewMetrics(registry)

	modbusCfg, err := modbus.ConfigFromSettings(cfg.Transport.Modbus)
	if err != nil {
		return fmt.Errorf("building register map: %w", err)
	}
	modbusCfg.Logger = log.With("component", "modbus")

	controller, err := danfoss.NewController(danfoss.Options{
		DeviceID:        cfg.Device.ID,
		Host:            settings.Hostname,
		Factory:         modbus.NewFactory(modbusCfg),
		Platform:        store,
		Reporter:        danfoss.NewLogReporter(log, metrics),
		Logger:          log.With("component", "session"),
		Metrics:         metrics,
		DebounceWindow:  cfg.Session.DebounceWindow,
		ReinitDelay:     cfg.Session.ReinitDelay,
		PollInterval:    cfg.Session.PollInterval,
		StartTimeout:    cfg.Session.StartTimeout,
		ContinueOnError: cfg.Session.ContinueOnError,
	})
	if err != nil {
		return fmt.Errorf("creating session controller: %w", err)
	}

	ctrlCtx, stopController := context.WithCancel(context.Background())
	go func() {
		if runErr := controller.Run(ctrlCtx); runErr != nil && !errors.Is(runErr, context.Canceled) {
			log.Error("session controller stopped", "error", runErr)
		}
	}()
	defer func() {
		stopController()
		<-controller.Done()
		log.Info("session controller stopped")
	}()

	if added {
		controller.OnAdded()
	}

	willTopic, willPayload, err := danfoss.LWT(cfg.Bridge.ID)
	if err != nil {
		return fmt.Errorf("building health will: %w", err)
	}
	mqttClient, err := mqtt.Connect(cfg.MQTT, mqtt.WithWill(willTopic, willPayload))
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

	checks := map[string]api.HealthChecker{"database": db, "mqtt": mqttClient}

	var telemetry danfoss.TelemetryWriter
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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		telemetry = influxClient
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	bridge, err := danfoss.NewBridge(danfoss.BridgeOptions{
		BridgeID:         cfg.Bridge.ID,
		Version:          version,
		DeviceID:         cfg.Device.ID,
		HealthInterval:   cfg.Bridge.HealthInterval,
		HistoryRetention: cfg.Bridge.HistoryRetention,
		MQTTClient:       &mqttBridgeAdapter{client: mqttClient},
		Controller:       controller,
		Store:            store,
		Settings:         settingsRepo,
		History:          historyRepo,
		Telemetry:        telemetry,
		Logger:           log.With("component", "bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer bridge.Stop()

	apiServer, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log,
		Store:      store,
		Controller: controller,
		Settings:   bridge,
		History:    historyRepo,
		Gatherer:   registry,
		Checks:     checks,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("Danfoss Air bridge started",
		"device_id", cfg.Device.ID,
		"hostname", settings.Hostname,
		"api_port", cfg.API.Port,
	)

	<-ctx.Done()
	log.Info("shutdown signal received")

	// Deferred calls run in reverse order: API, bridge, InfluxDB, MQTT,
	// controller, database.
	return nil
}

// loadSettings returns the stored device settings. On first start they are
// seeded from the config file and added reports true.
func loadSettings(ctx context.Context, repo device.SettingsRepository, cfg *config.Config) (settings device.Settings, added bool, err error) {
	stored, err := repo.Get(ctx, cfg.Device.ID)
	switch {
	case err == nil:
		return *stored, false, nil
	case !errors.Is(err, device.ErrSettingsNotFound):
		return device.Settings{}, false, fmt.Errorf("loading device settings: %w", err)
	}

	settings = device.Settings{
		DeviceID: cfg.Device.ID,
		Hostname: cfg.Device.Hostname,
		Name:     cfg.Device.Name,
	}
	if err := device.ValidateSettings(&settings); err != nil {
		return device.Settings{}, false, fmt.Errorf("seeding device settings: %w", err)
	}
	if err := repo.Save(ctx, &settings); err != nil {
		return device.Settings{}, false, fmt.Errorf("saving device settings: %w", err)
	}
	return settings, true, nil
}

// defaultTokenSubject names tokens minted without an explicit subject.
const defaultTokenSubject = "operator"

// issueToken writes a signed API bearer token to w.
func issueToken(w io.Writer, args []string) error {
	subject := defaultTokenSubject
	if len(args) > 0 && args[0] != "" {
		subject = args[0]
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	token, err := api.IssueToken(cfg.API.Auth.JWTSecret, subject, api.DefaultTokenTTL)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface, whose handlers return nothing.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
