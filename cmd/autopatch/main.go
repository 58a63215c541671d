// Autopatch Core - Automated Patch-Clamp Controller
//
// This is the main entry point for the autopatch controller. It drives
// a multi-pipette patch-clamp rig: operators queue candidate cells over
// MQTT, and the scheduler works through them with one state machine per
// pipette unit, sharing the camera and stage lanes between units.
//
// The controller is designed for:
//   - Unattended overnight runs (attempts always end with a clean tip)
//   - Durable attempt records (SQLite ledger survives crashes)
//   - Live telemetry (resistance and pressure traces to InfluxDB)
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/openpatch/autopatch-core/migrations"

	"github.com/openpatch/autopatch-core/internal/control"
	"github.com/openpatch/autopatch-core/internal/infrastructure/config"
	"github.com/openpatch/autopatch-core/internal/infrastructure/database"
	"github.com/openpatch/autopatch-core/internal/infrastructure/influxdb"
	"github.com/openpatch/autopatch-core/internal/infrastructure/logging"
	"github.com/openpatch/autopatch-core/internal/infrastructure/mqtt"
	"github.com/openpatch/autopatch-core/internal/ledger"
	"github.com/openpatch/autopatch-core/internal/patch"
	"github.com/openpatch/autopatch-core/internal/rig"
	"github.com/openpatch/autopatch-core/internal/scheduler"
	"github.com/openpatch/autopatch-core/internal/target"
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

// Simulated hardware timing. Real manipulator and camera drivers
// replace these when hardware support lands.
const (
	simMoveDelay  = 10 * time.Millisecond
	simExposure   = 50 * time.Millisecond
	healthTimeout = 10 * time.Second
)

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
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
	log.Info("starting autopatch controller",
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
	log.Info("configuration loaded", "path", configPath, "rig", cfg.Rig.ID)

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

	// Attempt ledger
	attemptLedger := ledger.NewSQLiteRepository(db.DB)

	// Target queue, claimed in the plate's well order
	queue := target.NewQueue(cfg.WellOrder())
	log.Info("target queue initialised", "wells", len(cfg.Rig.Plate.Wells))

	// Connect to InfluxDB (optional); telemetry defaults to no-op
	var telemetry patch.Telemetry
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
		telemetry = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Rig hardware. Only the simulated driver exists today; each unit
	// gets a manipulator parked at its home position.
	units := make([]scheduler.UnitSpec, 0, len(cfg.Rig.Units))
	for _, u := range cfg.Rig.Units {
		units = append(units, scheduler.UnitSpec{
			Info:        u.UnitInfo,
			Manipulator: rig.NewSimulatedManipulator(u.Home, simMoveDelay),
			Reachable:   u.Reachable,
		})
	}
	imager := rig.NewSimulatedImager(simExposure)
	log.Info("rig initialised", "units", len(units), "driver", "simulated")

	// Scheduler
	sched, err := scheduler.New(scheduler.Config{
		MaxConsecutiveFailures: cfg.Scheduler.MaxConsecutiveFailures,
		IdlePollInterval:       cfg.Scheduler.IdlePollInterval,
		RecordTimeout:          cfg.Scheduler.RecordTimeout,
		SafeMove:               cfg.Rig.SafeMove,
	}, &cfg.PatchStates, units, scheduler.Deps{
		Queue:     queue,
		Ledger:    attemptLedger,
		Imager:    imager,
		Recording: &recordingLog{log: log},
		Telemetry: telemetry,
	})
	if err != nil {
		return fmt.Errorf("building scheduler: %w", err)
	}
	sched.SetLogger(log)

	// Connect to MQTT broker (optional). With MQTT the controller waits
	// for operator commands; without it the scheduler starts directly
	// and drains whatever targets are queued programmatically.
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

		handler, handlerErr := control.NewHandler(control.HandlerOptions{
			MQTT:   mqttClient,
			Runner: sched,
			Queue:  queue,
			Ledger: attemptLedger,
			Plate:  cfg.Plate(),
			QoS:    byte(cfg.MQTT.QoS),
			Logger: log,
		})
		if handlerErr != nil {
			return fmt.Errorf("building command handler: %w", handlerErr)
		}
		sched.SetPublisher(handler)
		if startErr := handler.Start(ctx); startErr != nil {
			return fmt.Errorf("starting command handler: %w", startErr)
		}
		log.Info("command handler started")
	} else {
		log.Info("MQTT disabled, starting scheduler directly")
		if startErr := sched.Start(ctx); startErr != nil {
			return fmt.Errorf("starting scheduler: %w", startErr)
		}
	}

	// Verify all connections are healthy
	healthCtx, healthCancel := context.WithTimeout(ctx, healthTimeout)
	err = healthCheck(healthCtx, db, mqttClient, influxClient)
	healthCancel()
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Stop the workers; in-flight attempts abort and run their
	// clean/rinse tails before the workers exit. ErrNotRunning just
	// means no start command ever arrived.
	if stopErr := sched.Stop(); stopErr != nil && !errors.Is(stopErr, scheduler.ErrNotRunning) {
		log.Error("stopping scheduler", "error", stopErr)
	}

	log.Info("autopatch controller stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses AUTOPATCH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AUTOPATCH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// mqttClient and influxClient may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
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

	return nil
}

// recordingLog acknowledges recording handoffs by logging them. A real
// amplifier integration replaces this with an RPC to the acquisition
// software.
type recordingLog struct {
	log *logging.Logger
}

// StartProtocol implements patch.RecordingService.
func (r *recordingLog) StartProtocol(_ context.Context, clampID, attemptID string) error {
	r.log.Info("recording handoff accepted", "clamp", clampID, "attempt_id", attemptID)
	return nil
}
