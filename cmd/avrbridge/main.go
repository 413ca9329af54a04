// avrbridge connects networked AV receivers to smart-home frontends.
//
// It maintains a session per receiver, exposes a REST and WebSocket API
// for remotes, republishes state changes over MQTT, and records state
// history to SQLite and InfluxDB.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hwaldner/avrbridge/internal/api"
	"github.com/hwaldner/avrbridge/internal/avr"
	"github.com/hwaldner/avrbridge/internal/avr/audiocontrol"
	"github.com/hwaldner/avrbridge/internal/device"
	"github.com/hwaldner/avrbridge/internal/entity"
	"github.com/hwaldner/avrbridge/internal/infrastructure/config"
	"github.com/hwaldner/avrbridge/internal/infrastructure/database"
	"github.com/hwaldner/avrbridge/internal/infrastructure/influxdb"
	"github.com/hwaldner/avrbridge/internal/infrastructure/logging"
	"github.com/hwaldner/avrbridge/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// commandTimeout bounds a single MQTT-initiated device command.
const commandTimeout = 15 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting AVR bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "bridge_id", cfg.Driver.ID)

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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Device registry builds one session per stored receiver.
	store := device.NewSQLiteStore(db.DB)
	history := device.NewSQLiteStateHistory(db.DB)
	registry := device.NewRegistry(store, func(address string) (avr.Transport, error) {
		client, err := audiocontrol.New(address)
		if err != nil {
			return nil, err
		}
		client.SetLogger(log)
		return client, nil
	})
	registry.SetLogger(log)
	defer func() {
		log.Info("closing device registry")
		if closeErr := registry.Close(); closeErr != nil {
			log.Error("error closing registry", "error", closeErr)
		}
	}()

	if loadErr := registry.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading device registry: %w", loadErr)
	}
	log.Info("device registry initialised", "devices", registry.Count())

	// One media player entity per device.
	entities := entity.NewManager()
	for _, session := range registry.All() {
		entities.Add(session.ID(), session.Name(), session.Attributes())
	}

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
	} else {
		log.Info("MQTT disabled")
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

	// Start API server
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Driver:   cfg.Driver,
		Logger:   log,
		Registry: registry,
		Entities: entities,
		History:  history,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Fan session events out to the WebSocket hub, MQTT, InfluxDB and
	// the state history table.
	fanout := &eventFanout{
		log:      log,
		registry: registry,
		entities: entities,
		hub:      apiServer.Hub(),
		mqtt:     mqttClient,
		influx:   influxClient,
		history:  history,
	}
	registry.Subscribe(fanout.handle)

	// MQTT command intake
	if mqttClient != nil {
		topic := mqtt.Topics{}.AllDeviceCommands()
		subErr := mqttClient.Subscribe(topic, byte(cfg.MQTT.QoS), func(topic string, payload []byte) error {
			return handleCommandMessage(registry, topic, payload)
		})
		if subErr != nil {
			return fmt.Errorf("subscribing to command topic: %w", subErr)
		}
		log.Info("MQTT command intake active", "topic", topic)
	}

	if cfg.Driver.ConnectOnStartup {
		log.Info("connecting to configured devices")
		registry.ConnectAll(ctx)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	registry.DisconnectAll(shutdownCtx)

	log.Info("AVR bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses AVRBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AVRBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// The MQTT and InfluxDB clients may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, apiServer *api.Server) error {
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

	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}

// handleCommandMessage routes an MQTT command payload to the addressed
// device session.
//
// Payload shape: {"command":"volume","params":{"volume":40}}
func handleCommandMessage(registry *device.Registry, topic string, payload []byte) error {
	deviceID := mqtt.DeviceIDFromCommandTopic(topic)
	if deviceID == "" {
		return fmt.Errorf("unrecognised command topic %q", topic)
	}

	session, err := registry.Get(deviceID)
	if err != nil {
		return fmt.Errorf("command for unknown device %q", deviceID)
	}

	var req struct {
		Command string         `json:"command"`
		Params  map[string]any `json:"params"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decoding command payload: %w", err)
	}
	if req.Command == "" {
		return fmt.Errorf("command payload missing command field")
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if st := device.Dispatch(ctx, session, req.Command, req.Params); !st.OK() {
		return fmt.Errorf("command %q on %s: %s", req.Command, deviceID, st)
	}
	return nil
}
