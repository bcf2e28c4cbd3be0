// Gray Logic MyQ Bridge
//
// This is the main entry point for the MyQ garage door bridge. It polls
// the MyQ cloud for door state, publishes changes to the Gray Logic
// MQTT hierarchy, and dispatches open/close commands back to the cloud.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-myq/internal/api"
	"github.com/nerrad567/gray-logic-myq/internal/bridge"
	"github.com/nerrad567/gray-logic-myq/internal/history"
	"github.com/nerrad567/gray-logic-myq/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-myq/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-myq/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-myq/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-myq/internal/myq"
	"github.com/nerrad567/gray-logic-myq/internal/registry"
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
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Returning an error allows main to handle exit codes
// consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic MyQ bridge",
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

	// Initialise device registry (owns its schema)
	reg, err := registry.NewSQLiteRegistry(db.DB)
	if err != nil {
		return fmt.Errorf("initialising registry: %w", err)
	}
	log.Info("device registry initialised")

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT, "myq")
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

	// Create MyQ cloud client
	brand, err := myq.ParseBrand(cfg.MyQ.Brand)
	if err != nil {
		return fmt.Errorf("parsing brand: %w", err)
	}
	password, err := cfg.MyQ.DecodedPassword()
	if err != nil {
		return fmt.Errorf("decoding password: %w", err)
	}
	client, err := myq.New(myq.Config{
		Brand:    brand,
		Username: cfg.MyQ.Username,
		Password: password,
	})
	if err != nil {
		return fmt.Errorf("creating MyQ client: %w", err)
	}
	client.SetLogger(log)
	log.Info("MyQ client created",
		"brand", cfg.MyQ.Brand,
		"username", cfg.MyQ.Username,
	)

	// Establish the session up front. Failures are not fatal: the
	// first catalog fetch re-logins on demand.
	if loginErr := client.Login(ctx, false); loginErr != nil {
		log.Warn("initial login failed, will retry on first poll", "error", loginErr)
	} else {
		log.Info("MyQ session established")
	}

	// Connect to InfluxDB history (optional)
	var historySink *history.Sink
	if cfg.InfluxDB.Enabled {
		historySink, err = history.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := historySink.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		historySink.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Create and start the bridge
	opts := bridge.Options{
		BridgeID:     cfg.Bridge.ID,
		Version:      version,
		PollInterval: cfg.GetPollInterval(),
		Client:       client,
		MQTTClient:   &mqttBridgeAdapter{client: mqttClient},
		Registry:     reg,
		Logger:       log,
	}
	if historySink != nil {
		opts.History = historySink
	}
	myqBridge, err := bridge.New(opts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := myqBridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		myqBridge.Stop()
	}()
	log.Info("bridge started", "poll_interval", cfg.GetPollInterval().String())

	// Start the local status API (optional)
	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log,
			Bridge:   myqBridge,
			Registry: reg,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server (if enabled)
	// 2. Bridge
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("Gray Logic MyQ bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_MYQ_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_MYQ_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the
// bridge's MQTTClient interface. The difference is the Subscribe
// handler signature: the infrastructure client's handlers return an
// error, the bridge's do not.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements bridge.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
