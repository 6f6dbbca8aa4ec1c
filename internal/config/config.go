package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DriftConfig holds the statistical thresholds for drift analysis.
type DriftConfig struct {
	Alpha          float64       `yaml:"alpha" json:"alpha"`
	ShareThreshold float64       `yaml:"share_threshold" json:"share_threshold"`
	MinSamples     int           `yaml:"min_samples" json:"min_samples"`
	CycleInterval  time.Duration `yaml:"cycle_interval" json:"cycle_interval"`
}

// WindowConfig holds the prediction window buffer settings.
type WindowConfig struct {
	Capacity int `yaml:"capacity" json:"capacity"`
}

// RetrainConfig governs the retrain trigger and candidate selection.
type RetrainConfig struct {
	JobURL        string        `yaml:"job_url" json:"job_url"`
	CorpusPointer string        `yaml:"corpus_pointer" json:"corpus_pointer"`
	Deadline      time.Duration `yaml:"deadline" json:"deadline"`
	F1Tolerance   float64       `yaml:"f1_tolerance" json:"f1_tolerance"`

	// SyntheticOverride suppresses drift-triggered retrains, for test runs
	// fed with synthetic traffic that is expected to drift.
	SyntheticOverride bool `yaml:"synthetic_override" json:"synthetic_override"`
}

// BaselineConfig holds baseline store settings.
type BaselineConfig struct {
	Path      string        `yaml:"path" json:"path"`
	Staleness time.Duration `yaml:"staleness" json:"staleness"`
}

// RegistryConfig holds model registry persistence settings.
type RegistryConfig struct {
	Path string `yaml:"path" json:"path"`
}

// KafkaConfig holds the ingestion/report messaging settings.
type KafkaConfig struct {
	Enabled          bool     `yaml:"enabled" json:"enabled"`
	Brokers          []string `yaml:"brokers" json:"brokers"`
	PredictionsTopic string   `yaml:"predictions_topic" json:"predictions_topic"`
	ReportsTopic     string   `yaml:"reports_topic" json:"reports_topic"`
	GroupPrefix      string   `yaml:"group_prefix" json:"group_prefix"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// ServingConfig holds serving-path settings.
type ServingConfig struct {
	// ProbeFile points at a JSON array of feature vectors used as the
	// hot-swap smoke test input. When empty, a single empty vector is
	// probed, which still catches models that cannot produce well-formed
	// output.
	ProbeFile string `yaml:"probe_file" json:"probe_file"`
}

// Config represents the application configuration.
type Config struct {
	LogLevel string         `yaml:"log_level" json:"log_level"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	Serving  ServingConfig  `yaml:"serving" json:"serving"`
	Drift    DriftConfig    `yaml:"drift" json:"drift"`
	Window   WindowConfig   `yaml:"window" json:"window"`
	Retrain  RetrainConfig  `yaml:"retrain" json:"retrain"`
	Baseline BaselineConfig `yaml:"baseline" json:"baseline"`
	Registry RegistryConfig `yaml:"registry" json:"registry"`
	Kafka    KafkaConfig    `yaml:"kafka" json:"kafka"`
}

// LoadConfig loads configuration with defaults, then environment variables,
// then an optional config file, in increasing precedence.
func LoadConfig() (*Config, error) {
	config := &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Addr:            "0.0.0.0:8080",
			ShutdownTimeout: 30 * time.Second,
		},
		Drift: DriftConfig{
			Alpha:          0.05,
			ShareThreshold: 0.5,
			MinSamples:     30,
			CycleInterval:  5 * time.Minute,
		},
		Window: WindowConfig{
			Capacity: 1000,
		},
		Retrain: RetrainConfig{
			JobURL:        "http://localhost:9000/train",
			CorpusPointer: "data/processed",
			Deadline:      30 * time.Minute,
			F1Tolerance:   0.0,
		},
		Baseline: BaselineConfig{
			Path:      "/var/lib/modelwatch/baseline",
			Staleness: 30 * 24 * time.Hour,
		},
		Registry: RegistryConfig{
			Path: "/var/lib/modelwatch/registry",
		},
		Kafka: KafkaConfig{
			Enabled:          false,
			Brokers:          []string{"localhost:9092"},
			PredictionsTopic: "predictions",
			ReportsTopic:     "drift-reports",
			GroupPrefix:      "modelwatch",
		},
	}

	// Environment overrides
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		config.LogLevel = lvl
	}
	if addr := os.Getenv("SERVER_ADDR"); addr != "" {
		config.Server.Addr = addr
	}
	if v, err := strconv.ParseFloat(os.Getenv("DRIFT_ALPHA"), 64); err == nil {
		config.Drift.Alpha = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("DRIFT_SHARE_THRESHOLD"), 64); err == nil {
		config.Drift.ShareThreshold = v
	}
	if v, err := strconv.Atoi(os.Getenv("DRIFT_MIN_SAMPLES")); err == nil {
		config.Drift.MinSamples = v
	}
	if v, err := time.ParseDuration(os.Getenv("DRIFT_CYCLE_INTERVAL")); err == nil {
		config.Drift.CycleInterval = v
	}
	if v, err := strconv.Atoi(os.Getenv("WINDOW_CAPACITY")); err == nil {
		config.Window.Capacity = v
	}
	if url := os.Getenv("RETRAIN_JOB_URL"); url != "" {
		config.Retrain.JobURL = url
	}
	if ptr := os.Getenv("RETRAIN_CORPUS_POINTER"); ptr != "" {
		config.Retrain.CorpusPointer = ptr
	}
	if v, err := time.ParseDuration(os.Getenv("RETRAIN_DEADLINE")); err == nil {
		config.Retrain.Deadline = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("RETRAIN_F1_TOLERANCE"), 64); err == nil {
		config.Retrain.F1Tolerance = v
	}
	if v := os.Getenv("RETRAIN_SYNTHETIC_OVERRIDE"); v != "" {
		config.Retrain.SyntheticOverride = v == "true"
	}
	if path := os.Getenv("BASELINE_PATH"); path != "" {
		config.Baseline.Path = path
	}
	if v, err := time.ParseDuration(os.Getenv("BASELINE_STALENESS")); err == nil {
		config.Baseline.Staleness = v
	}
	if path := os.Getenv("REGISTRY_PATH"); path != "" {
		config.Registry.Path = path
	}
	if path := os.Getenv("SERVING_PROBE_FILE"); path != "" {
		config.Serving.ProbeFile = path
	}
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		config.Kafka.Enabled = v == "true"
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		config.Kafka.Brokers = strings.Split(brokers, ",")
	}

	// Optional config file
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/modelwatch")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		if viper.IsSet("log_level") {
			config.LogLevel = viper.GetString("log_level")
		}
		if viper.IsSet("server.addr") {
			config.Server.Addr = viper.GetString("server.addr")
		}
		if viper.IsSet("drift.alpha") {
			config.Drift.Alpha = viper.GetFloat64("drift.alpha")
		}
		if viper.IsSet("drift.share_threshold") {
			config.Drift.ShareThreshold = viper.GetFloat64("drift.share_threshold")
		}
		if viper.IsSet("drift.min_samples") {
			config.Drift.MinSamples = viper.GetInt("drift.min_samples")
		}
		if viper.IsSet("drift.cycle_interval") {
			config.Drift.CycleInterval = viper.GetDuration("drift.cycle_interval")
		}
		if viper.IsSet("window.capacity") {
			config.Window.Capacity = viper.GetInt("window.capacity")
		}
		if viper.IsSet("retrain.job_url") {
			config.Retrain.JobURL = viper.GetString("retrain.job_url")
		}
		if viper.IsSet("retrain.corpus_pointer") {
			config.Retrain.CorpusPointer = viper.GetString("retrain.corpus_pointer")
		}
		if viper.IsSet("retrain.deadline") {
			config.Retrain.Deadline = viper.GetDuration("retrain.deadline")
		}
		if viper.IsSet("retrain.f1_tolerance") {
			config.Retrain.F1Tolerance = viper.GetFloat64("retrain.f1_tolerance")
		}
		if viper.IsSet("retrain.synthetic_override") {
			config.Retrain.SyntheticOverride = viper.GetBool("retrain.synthetic_override")
		}
		if viper.IsSet("baseline.path") {
			config.Baseline.Path = viper.GetString("baseline.path")
		}
		if viper.IsSet("baseline.staleness") {
			config.Baseline.Staleness = viper.GetDuration("baseline.staleness")
		}
		if viper.IsSet("registry.path") {
			config.Registry.Path = viper.GetString("registry.path")
		}
		if viper.IsSet("serving.probe_file") {
			config.Serving.ProbeFile = viper.GetString("serving.probe_file")
		}
		if viper.IsSet("kafka.enabled") {
			config.Kafka.Enabled = viper.GetBool("kafka.enabled")
		}
		if viper.IsSet("kafka.brokers") {
			config.Kafka.Brokers = viper.GetStringSlice("kafka.brokers")
		}
		if viper.IsSet("kafka.predictions_topic") {
			config.Kafka.PredictionsTopic = viper.GetString("kafka.predictions_topic")
		}
		if viper.IsSet("kafka.reports_topic") {
			config.Kafka.ReportsTopic = viper.GetString("kafka.reports_topic")
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects threshold values the analyzer cannot operate with.
// These are the only fatal errors in the orchestrator.
func (c *Config) Validate() error {
	if c.Drift.Alpha <= 0 || c.Drift.Alpha >= 1 {
		return fmt.Errorf("drift.alpha must be in (0, 1), got %v", c.Drift.Alpha)
	}
	if c.Drift.ShareThreshold < 0 || c.Drift.ShareThreshold > 1 {
		return fmt.Errorf("drift.share_threshold must be in [0, 1], got %v", c.Drift.ShareThreshold)
	}
	if c.Drift.MinSamples < 1 {
		return fmt.Errorf("drift.min_samples must be >= 1, got %d", c.Drift.MinSamples)
	}
	if c.Window.Capacity < 1 {
		return fmt.Errorf("window.capacity must be >= 1, got %d", c.Window.Capacity)
	}
	if c.Retrain.F1Tolerance < 0 {
		return fmt.Errorf("retrain.f1_tolerance must be >= 0, got %v", c.Retrain.F1Tolerance)
	}
	if c.Retrain.Deadline <= 0 {
		return fmt.Errorf("retrain.deadline must be positive, got %v", c.Retrain.Deadline)
	}
	return nil
}
