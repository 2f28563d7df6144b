package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the configuration file looked up by Load.
const FileName = "combatsim.cfg.json"

// SimConfig holds simulation scheduling settings
type SimConfig struct {
	Seed                    uint64
	MaxSteps                int
	StepInterval            time.Duration
	Scenario                string
	DrawOnMutualElimination bool
	DefeatThreshold         float64
	Potential               map[string]float64
}

// CombatLogConfig holds async event logger settings
type CombatLogConfig struct {
	Dir           string
	PollInterval  time.Duration
	DrainTimeout  time.Duration
	JoinTimeout   time.Duration
	HighWaterMark int
	Fsync         bool
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds sqlite mirror settings. An empty Path keeps the
// database in memory and dumps it to OutputDir every DumpInterval.
type SQLiteConfig struct {
	Path         string
	OutputDir    string
	DumpInterval time.Duration
}

// PostgresConfig holds postgres connection settings
type PostgresConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	SSLMode  string
}

// WebSocketConfig holds websocket mirror settings
type WebSocketConfig struct {
	URL          string
	Secret       string
	WriteTimeout time.Duration
}

// StorageConfig lists the mirror backends fed alongside the jsonl log.
type StorageConfig struct {
	Mirrors   []string
	Memory    MemoryConfig
	SQLite    SQLiteConfig
	Postgres  PostgresConfig
	WebSocket WebSocketConfig
}

// InfluxConfig holds InfluxDB metrics settings
type InfluxConfig struct {
	Enabled   bool
	Host      string
	Port      string
	Protocol  string
	Token     string
	Org       string
	Bucket    string
	BackupDir string
}

// GraylogConfig holds GELF log shipping settings
type GraylogConfig struct {
	Enabled bool
	Address string
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// MonitorConfig holds status file and metrics endpoint settings
type MonitorConfig struct {
	Enabled       bool
	Interval      time.Duration
	StatusFile    string
	MetricsListen string
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. Environment
// variables prefixed with COMBATSIM_ override file values.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// SetDefaults registers default values and environment bindings.
func SetDefaults() {
	viper.SetEnvPrefix("COMBATSIM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("sim.seed", 0)
	viper.SetDefault("sim.maxSteps", 1000)
	viper.SetDefault("sim.stepInterval", "0s")
	viper.SetDefault("sim.scenario", "")
	viper.SetDefault("sim.drawOnMutualElimination", false)
	viper.SetDefault("sim.defeatThreshold", 0.30)
	viper.SetDefault("sim.potential.tank", 6.0)
	viper.SetDefault("sim.potential.mechanized", 2.0)
	viper.SetDefault("sim.potential.infantry", 0.5)
	viper.SetDefault("sim.potential.mortar", 2.0)
	viper.SetDefault("sim.potential.artillery", 3.0)
	viper.SetDefault("sim.potential.aerial", 4.0)

	viper.SetDefault("combatlog.dir", "")
	viper.SetDefault("combatlog.pollInterval", "100ms")
	viper.SetDefault("combatlog.drainTimeout", "5s")
	viper.SetDefault("combatlog.joinTimeout", "1s")
	viper.SetDefault("combatlog.highWaterMark", 10000)
	viper.SetDefault("combatlog.fsync", true)

	viper.SetDefault("storage.mirrors", []string{})
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.outputDir", "./recordings")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.websocket.url", "")
	viper.SetDefault("storage.websocket.secret", "")
	viper.SetDefault("storage.websocket.writeTimeout", "10s")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "combatsim")
	viper.SetDefault("db.sslmode", "disable")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "combatsim")
	viper.SetDefault("influx.bucket", "combat_metrics")
	viper.SetDefault("influx.backupDir", "")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "combatsim")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval", "5s")
	viper.SetDefault("monitor.statusFile", "")
	viper.SetDefault("metrics.listen", "")
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetSimConfig returns the simulation settings.
func GetSimConfig() SimConfig {
	potential := map[string]float64{}
	for _, t := range []string{"tank", "mechanized", "infantry", "mortar", "artillery", "aerial"} {
		potential[t] = viper.GetFloat64("sim.potential." + t)
	}
	return SimConfig{
		Seed:                    viper.GetUint64("sim.seed"),
		MaxSteps:                viper.GetInt("sim.maxSteps"),
		StepInterval:            viper.GetDuration("sim.stepInterval"),
		Scenario:                viper.GetString("sim.scenario"),
		DrawOnMutualElimination: viper.GetBool("sim.drawOnMutualElimination"),
		DefeatThreshold:         viper.GetFloat64("sim.defeatThreshold"),
		Potential:               potential,
	}
}

// GetCombatLogConfig returns the event logger settings. The log directory
// defaults to a combat folder under logsDir.
func GetCombatLogConfig() CombatLogConfig {
	dir := viper.GetString("combatlog.dir")
	if dir == "" {
		dir = filepath.Join(viper.GetString("logsDir"), "combat")
	}
	return CombatLogConfig{
		Dir:           dir,
		PollInterval:  viper.GetDuration("combatlog.pollInterval"),
		DrainTimeout:  viper.GetDuration("combatlog.drainTimeout"),
		JoinTimeout:   viper.GetDuration("combatlog.joinTimeout"),
		HighWaterMark: viper.GetInt("combatlog.highWaterMark"),
		Fsync:         viper.GetBool("combatlog.fsync"),
	}
}

// GetStorageConfig returns the mirror backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Mirrors: viper.GetStringSlice("storage.mirrors"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			OutputDir:    viper.GetString("storage.sqlite.outputDir"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetString("db.port"),
			Username: viper.GetString("db.username"),
			Password: viper.GetString("db.password"),
			Database: viper.GetString("db.database"),
			SSLMode:  viper.GetString("db.sslmode"),
		},
		WebSocket: WebSocketConfig{
			URL:          viper.GetString("storage.websocket.url"),
			Secret:       viper.GetString("storage.websocket.secret"),
			WriteTimeout: viper.GetDuration("storage.websocket.writeTimeout"),
		},
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:   viper.GetBool("influx.enabled"),
		Host:      viper.GetString("influx.host"),
		Port:      viper.GetString("influx.port"),
		Protocol:  viper.GetString("influx.protocol"),
		Token:     viper.GetString("influx.token"),
		Org:       viper.GetString("influx.org"),
		Bucket:    viper.GetString("influx.bucket"),
		BackupDir: viper.GetString("influx.backupDir"),
	}
}

// GetGraylogConfig returns the GELF settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetMonitorConfig returns the status monitor settings.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:       viper.GetBool("monitor.enabled"),
		Interval:      viper.GetDuration("monitor.interval"),
		StatusFile:    viper.GetString("monitor.statusFile"),
		MetricsListen: viper.GetString("metrics.listen"),
	}
}
