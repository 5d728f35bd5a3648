package model

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// BackendConfig describes the bookings REST API.
type BackendConfig struct {
	// BaseURL is the root URL of the bookings API.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// PollIntervalSec is how often (in seconds) the booking list is fetched.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// TokenKey is the keyring entry holding the API token.
	TokenKey string `mapstructure:"token_key" yaml:"token_key"`
}

// EvaluatorConfig configures one polling evaluator.
type EvaluatorConfig struct {
	// Enabled is the operator kill-switch.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// IntervalSec is the poll period.
	IntervalSec int `mapstructure:"interval_sec" yaml:"interval_sec"`

	// JitterMs adds up to this many milliseconds to every period.
	JitterMs int `mapstructure:"jitter_ms" yaml:"jitter_ms"`

	// DebounceMs delays the re-check after the booking list changes size.
	DebounceMs int `mapstructure:"debounce_ms" yaml:"debounce_ms"`

	// WindowMin is the confirmation window in minutes (confirmation only).
	WindowMin int `mapstructure:"window_min" yaml:"window_min,omitempty"`
}

// Interval returns the poll period as a duration.
func (c EvaluatorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}

// Jitter returns the jitter as a duration.
func (c EvaluatorConfig) Jitter() time.Duration {
	return time.Duration(c.JitterMs) * time.Millisecond
}

// Debounce returns the debounce delay as a duration.
func (c EvaluatorConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// EvaluatorsConfig groups the three evaluators and the shared cooldown.
type EvaluatorsConfig struct {
	Confirmation EvaluatorConfig `mapstructure:"confirmation" yaml:"confirmation"`
	NoShow       EvaluatorConfig `mapstructure:"no_show" yaml:"no_show"`
	Alerts       EvaluatorConfig `mapstructure:"alerts" yaml:"alerts"`

	// CooldownSec is how long a booking stays settled after an update.
	CooldownSec int `mapstructure:"cooldown_sec" yaml:"cooldown_sec"`
}

// NotificationsConfig bounds the persisted notification list.
type NotificationsConfig struct {
	MaxStored       int `mapstructure:"max_stored" yaml:"max_stored"`
	MaxAgeHours     int `mapstructure:"max_age_hours" yaml:"max_age_hours"`
	WorkerTimeoutMs int `mapstructure:"worker_timeout_ms" yaml:"worker_timeout_ms"`
}

// StorageConfig selects the key-value backend used as local storage.
type StorageConfig struct {
	// Backend is one of "sqlite", "redis" or "memory".
	Backend   string `mapstructure:"backend" yaml:"backend"`
	Path      string `mapstructure:"path" yaml:"path"`
	RedisURL  string `mapstructure:"redis_url" yaml:"redis_url"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// SoundConfig holds the audible alert preferences.
type SoundConfig struct {
	Enabled bool    `mapstructure:"enabled" yaml:"enabled"`
	Volume  float64 `mapstructure:"volume" yaml:"volume"`

	// Player overrides the command used to play cues (e.g. "paplay").
	Player string `mapstructure:"player" yaml:"player"`

	// MinGapMs is the minimum spacing between two cues.
	MinGapMs int `mapstructure:"min_gap_ms" yaml:"min_gap_ms"`
}

// WorkerConfig configures the background notification worker.
type WorkerConfig struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
	DBPath     string `mapstructure:"db_path" yaml:"db_path"`
	Desktop    bool   `mapstructure:"desktop" yaml:"desktop"`
}

// LoggingConfig holds the minimum log level.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Backend       BackendConfig       `mapstructure:"backend" yaml:"backend"`
	Evaluators    EvaluatorsConfig    `mapstructure:"evaluators" yaml:"evaluators"`
	Notifications NotificationsConfig `mapstructure:"notifications" yaml:"notifications"`
	Storage       StorageConfig       `mapstructure:"storage" yaml:"storage"`
	Sound         SoundConfig         `mapstructure:"sound" yaml:"sound"`
	Worker        WorkerConfig        `mapstructure:"worker" yaml:"worker"`
	Logging       LoggingConfig       `mapstructure:"logging" yaml:"logging"`
}

// Cooldown returns the update-tracker cooldown.
func (c *AppConfig) Cooldown() time.Duration {
	return time.Duration(c.Evaluators.CooldownSec) * time.Second
}

// WorkerTimeout returns the bound on a worker message round trip.
func (c *AppConfig) WorkerTimeout() time.Duration {
	return time.Duration(c.Notifications.WorkerTimeoutMs) * time.Millisecond
}

// ConfigDir returns ~/.config/paddledesk, falling back to the working
// directory when the home directory cannot be determined.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "paddledesk")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/paddledesk/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	dir := ConfigDir()
	return &AppConfig{
		Backend: BackendConfig{
			BaseURL:         "http://localhost:8080",
			PollIntervalSec: 30,
			TokenKey:        "backend-token",
		},
		Evaluators: EvaluatorsConfig{
			Confirmation: EvaluatorConfig{
				Enabled:     true,
				IntervalSec: 60,
				DebounceMs:  1000,
				WindowMin:   60,
			},
			// Status transitions to NO_SHOW are decided by the backend
			// scheduler; the local rule set is an opt-in fallback.
			NoShow: EvaluatorConfig{
				Enabled:     false,
				IntervalSec: 300,
				DebounceMs:  1000,
			},
			Alerts: EvaluatorConfig{
				Enabled:     true,
				IntervalSec: 30,
				DebounceMs:  1000,
			},
			CooldownSec: 180,
		},
		Notifications: NotificationsConfig{
			MaxStored:       100,
			MaxAgeHours:     24,
			WorkerTimeoutMs: 3000,
		},
		Storage: StorageConfig{
			Backend:   "sqlite",
			Path:      filepath.Join(dir, "local.db"),
			Namespace: "paddledesk",
		},
		Sound: SoundConfig{
			Enabled:  true,
			Volume:   0.7,
			MinGapMs: 750,
		},
		Worker: WorkerConfig{
			ListenAddr: "localhost:7207",
			DBPath:     filepath.Join(dir, "worker.db"),
			Desktop:    true,
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PADDLEDESK")
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values.
	def := defaultAppConfig()
	v.SetDefault("backend.base_url", def.Backend.BaseURL)
	v.SetDefault("backend.poll_interval_sec", def.Backend.PollIntervalSec)
	v.SetDefault("backend.token_key", def.Backend.TokenKey)
	v.SetDefault("evaluators.confirmation.enabled", def.Evaluators.Confirmation.Enabled)
	v.SetDefault("evaluators.confirmation.interval_sec", def.Evaluators.Confirmation.IntervalSec)
	v.SetDefault("evaluators.confirmation.debounce_ms", def.Evaluators.Confirmation.DebounceMs)
	v.SetDefault("evaluators.confirmation.window_min", def.Evaluators.Confirmation.WindowMin)
	v.SetDefault("evaluators.no_show.enabled", def.Evaluators.NoShow.Enabled)
	v.SetDefault("evaluators.no_show.interval_sec", def.Evaluators.NoShow.IntervalSec)
	v.SetDefault("evaluators.no_show.debounce_ms", def.Evaluators.NoShow.DebounceMs)
	v.SetDefault("evaluators.alerts.enabled", def.Evaluators.Alerts.Enabled)
	v.SetDefault("evaluators.alerts.interval_sec", def.Evaluators.Alerts.IntervalSec)
	v.SetDefault("evaluators.alerts.debounce_ms", def.Evaluators.Alerts.DebounceMs)
	v.SetDefault("evaluators.cooldown_sec", def.Evaluators.CooldownSec)
	v.SetDefault("notifications.max_stored", def.Notifications.MaxStored)
	v.SetDefault("notifications.max_age_hours", def.Notifications.MaxAgeHours)
	v.SetDefault("notifications.worker_timeout_ms", def.Notifications.WorkerTimeoutMs)
	v.SetDefault("storage.backend", def.Storage.Backend)
	v.SetDefault("storage.path", def.Storage.Path)
	v.SetDefault("storage.namespace", def.Storage.Namespace)
	v.SetDefault("sound.enabled", def.Sound.Enabled)
	v.SetDefault("sound.volume", def.Sound.Volume)
	v.SetDefault("sound.min_gap_ms", def.Sound.MinGapMs)
	v.SetDefault("worker.listen_addr", def.Worker.ListenAddr)
	v.SetDefault("worker.db_path", def.Worker.DBPath)
	v.SetDefault("worker.desktop", def.Worker.Desktop)
	v.SetDefault("logging.level", def.Logging.Level)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return def, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return def, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Sound.Volume < 0 || cfg.Sound.Volume > 1 {
		return nil, fmt.Errorf("parsing config %s: sound.volume %.2f outside [0,1]", path, cfg.Sound.Volume)
	}
	if cfg.Notifications.MaxStored <= 0 {
		cfg.Notifications.MaxStored = def.Notifications.MaxStored
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("backend", cfg.Backend)
	v.Set("evaluators", cfg.Evaluators)
	v.Set("notifications", cfg.Notifications)
	v.Set("storage", cfg.Storage)
	v.Set("sound", cfg.Sound)
	v.Set("worker", cfg.Worker)
	v.Set("logging", cfg.Logging)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
