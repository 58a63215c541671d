package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openpatch/autopatch-core/internal/geometry"
	"github.com/openpatch/autopatch-core/internal/patch"
)

// Config is the root configuration structure for the autopatch core.
// All configuration is loaded from YAML and can be overridden by
// environment variables.
type Config struct {
	Rig         RigConfig         `yaml:"rig"`
	PatchStates patch.StateConfig `yaml:"patch_states"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// RigConfig describes the physical rig: the plate geometry and the
// pipette units mounted around it.
type RigConfig struct {
	ID    string       `yaml:"id"`
	Plate PlateConfig  `yaml:"plate"`
	Units []UnitConfig `yaml:"units"`

	// SafeMove routes cross-well travel through exclusive lane
	// reservations so pipettes cannot collide mid-flight. On by
	// default; disable only on rigs whose units cannot intersect.
	SafeMove bool `yaml:"safe_move"`
}

// PlateConfig describes the sample plate in the global stage frame.
type PlateConfig struct {
	Center geometry.Position `yaml:"center"`
	Wells  []WellConfig      `yaml:"wells"`
}

// WellConfig is one patchable well, offset from the plate centre.
type WellConfig struct {
	ID     string     `yaml:"id"`
	Offset [2]float64 `yaml:"offset"`
	Radius float64    `yaml:"radius"`
}

// UnitConfig is one pipette unit: its identity and geometry plus the
// wells its manipulator can physically reach.
type UnitConfig struct {
	patch.UnitInfo `yaml:",inline"`

	Reachable []string `yaml:"reachable"`
}

// SchedulerConfig contains scheduler tuning options.
type SchedulerConfig struct {
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures"`
	IdlePollInterval       time.Duration `yaml:"idle_poll_interval"`
	RecordTimeout          time.Duration `yaml:"record_timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB telemetry settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
//
// The loading order is:
//  1. Default values
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern AUTOPATCH_SECTION_KEY, for
// example AUTOPATCH_DATABASE_PATH or AUTOPATCH_MQTT_HOST.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with working defaults for everything
// except the rig, which has no sensible default and must come from the
// file.
func defaultConfig() *Config {
	return &Config{
		Rig:         RigConfig{SafeMove: true},
		PatchStates: *patch.DefaultStateConfig(),
		Scheduler: SchedulerConfig{
			MaxConsecutiveFailures: 3,
			IdlePollInterval:       250 * time.Millisecond,
			RecordTimeout:          10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:        "./data/autopatch.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "autopatch-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AUTOPATCH_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("AUTOPATCH_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("AUTOPATCH_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("AUTOPATCH_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("AUTOPATCH_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Rig.ID == "" {
		errs = append(errs, "rig.id is required")
	}
	if len(c.Rig.Plate.Wells) == 0 {
		errs = append(errs, "rig.plate.wells must not be empty")
	}
	if len(c.Rig.Units) == 0 {
		errs = append(errs, "rig.units must not be empty")
	}

	wells := make(map[string]bool)
	for _, w := range c.Rig.Plate.Wells {
		if w.ID == "" {
			errs = append(errs, "well id is required")
			continue
		}
		if wells[w.ID] {
			errs = append(errs, fmt.Sprintf("duplicate well id %q", w.ID))
		}
		wells[w.ID] = true
		if w.Radius <= 0 {
			errs = append(errs, fmt.Sprintf("well %s radius must be positive", w.ID))
		}
	}

	units := make(map[string]bool)
	for _, u := range c.Rig.Units {
		if u.ID == "" {
			errs = append(errs, "unit id is required")
			continue
		}
		if units[u.ID] {
			errs = append(errs, fmt.Sprintf("duplicate unit id %q", u.ID))
		}
		units[u.ID] = true
		if len(u.Reachable) == 0 {
			errs = append(errs, fmt.Sprintf("unit %s must reach at least one well", u.ID))
		}
		for _, wellID := range u.Reachable {
			if !wells[wellID] {
				errs = append(errs, fmt.Sprintf("unit %s reaches unknown well %q", u.ID, wellID))
			}
		}
	}

	if err := c.PatchStates.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Plate converts the plate section into the geometry service's form.
func (c *Config) Plate() *geometry.Plate {
	plate := &geometry.Plate{Center: c.Rig.Plate.Center}
	for _, w := range c.Rig.Plate.Wells {
		plate.Wells = append(plate.Wells, geometry.Well{
			ID:     w.ID,
			Offset: w.Offset,
			Radius: w.Radius,
		})
	}
	return plate
}

// WellOrder returns the configured well IDs in file order, which is the
// claim order for the target queue.
func (c *Config) WellOrder() []string {
	order := make([]string, 0, len(c.Rig.Plate.Wells))
	for _, w := range c.Rig.Plate.Wells {
		order = append(order, w.ID)
	}
	return order
}
