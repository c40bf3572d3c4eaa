// fanbridge - MQTT bridge for a single ventilation fan
//
// This is the main entry point for the fan bridge. It connects the fan
// controller's MQTT topics to a small HTTP/WebSocket dashboard API:
//   - Sensor and fan telemetry from the bus updates one in-memory state
//   - Dashboard commands update that state and are published to the bus
//   - The HTTP side keeps answering while the broker is unreachable
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/fanbridge/internal/api"
	"github.com/nerrad567/fanbridge/internal/bridges/fan"
	"github.com/nerrad567/fanbridge/internal/infrastructure/config"
	"github.com/nerrad567/fanbridge/internal/infrastructure/logging"
	"github.com/nerrad567/fanbridge/internal/infrastructure/mqtt"
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
//
// Startup never waits for the broker: the API comes up first and the MQTT
// client connects, and reconnects, in the background.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting fanbridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	store := fan.NewStore(cfg.Topics.HumidityEnabled())

	mqttClient, err := mqtt.New(cfg.MQTT, mqtt.WithLogger(log.With("component", "mqtt")))
	if err != nil {
		return fmt.Errorf("creating MQTT client: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()

	// Subscriptions are recorded now and issued on every (re)connect.
	bridge := fan.NewBridge(store, cfg.Topics, log.With("component", "bridge"))
	if subErr := bridge.Subscribe(mqttClient); subErr != nil {
		return fmt.Errorf("subscribing bridge topics: %w", subErr)
	}
	log.Info("fan bridge configured",
		"inbound_topics", bridge.InboundTopics(),
		"status_command", cfg.Topics.StatusCommand,
		"output_command", cfg.Topics.OutputCommand,
		"humidity", cfg.Topics.HumidityEnabled(),
	)

	dispatcher := fan.NewDispatcher(store, mqttClient, cfg.Topics, log.With("component", "dispatcher"))

	srv, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log.With("component", "api"),
		Dispatcher: dispatcher,
		State:      fan.NewQuery(store),
		Inbound:    bridge,
		MQTT:       mqttClient,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	store.SetOnChange(srv.NotifyState)

	if startErr := srv.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mqttClient.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return srv.Close()
	})

	log.Info("initialisation complete, waiting for shutdown signal",
		"api", srv.Addr(),
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
	)

	if waitErr := g.Wait(); waitErr != nil {
		return fmt.Errorf("shutdown: %w", waitErr)
	}

	log.Info("fanbridge stopped")
	return nil
}

// loadConfig reads the configuration file. A missing file at the default
// path falls back to built-in defaults; an explicitly configured path must
// exist.
func loadConfig(log *logging.Logger) (*config.Config, error) {
	path, explicit := getConfigPath()

	cfg, err := config.Load(path)
	if err == nil {
		log.Info("configuration loaded", "path", path)
		return cfg, nil
	}
	if explicit || !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cfg, err = config.Default()
	if err != nil {
		return nil, fmt.Errorf("loading default config: %w", err)
	}
	log.Info("no configuration file found, using defaults", "path", path)
	return cfg, nil
}

// getConfigPath returns the config path and whether it was set explicitly.
func getConfigPath() (string, bool) {
	if path := os.Getenv("FANBRIDGE_CONFIG"); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}
