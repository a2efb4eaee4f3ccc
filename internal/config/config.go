package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"

	"github.com/spf13/viper"
)

// Config holds every tunable the agent reads at startup. Fields map 1:1 to
// keys in lensguard.yaml / the LENSGUARD_* env namespace (see Load).
type Config struct {
	// Sensor intake
	SensorHost string `mapstructure:"sensor_host"`
	SensorPort int    `mapstructure:"sensor_port"`

	// Classifier service
	ClassifierBaseURL string `mapstructure:"classifier_base_url"`

	// Frames directory watched by the uploader and read by the control surface
	FramesDir string `mapstructure:"frames_dir"`
	DebugDir  string `mapstructure:"debug_dir"`

	// Capture tuning
	CaptureQuality int `mapstructure:"capture_quality"`

	// Session timing (milliseconds unless noted)
	SettleDelayMS          int `mapstructure:"settle_delay_ms"`
	CaptureIntervalMS      int `mapstructure:"capture_interval_ms"`
	DetectionThrottleMS    int `mapstructure:"detection_throttle_ms"`
	VerdictCacheTTLSeconds int `mapstructure:"verdict_cache_ttl_seconds"`

	// Upload batching
	UploadBatchSize   int `mapstructure:"upload_batch_size"`
	UploadDebounceMS  int `mapstructure:"upload_debounce_ms"`

	// Control surface polling
	VerdictPollIntervalSeconds int `mapstructure:"verdict_poll_interval_seconds"`

	// Logging
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`

	// Hotkeys
	HotkeysEnabled bool `mapstructure:"hotkeys_enabled"`
}

// log is overridden via SetLogFunc so config validation warnings flow
// through the shared structured logger without this package importing
// internal/logging directly (keeps the dependency one-directional).
var log = func(msg string, args ...any) {}

// SetLogFunc installs the structured warn-logger used during Load.
func SetLogFunc(fn func(msg string, args ...any)) {
	log = fn
}

// Default returns a Config populated with safe defaults.
func Default() *Config {
	return &Config{
		SensorHost:        "127.0.0.1",
		SensorPort:        8765,
		ClassifierBaseURL: "http://127.0.0.1:8000",
		FramesDir:         filepath.Join(dataDir(), "screenshots"),
		DebugDir:          filepath.Join(dataDir(), "debug"),
		CaptureQuality:    85,

		SettleDelayMS:       500,
		CaptureIntervalMS:   1000,
		DetectionThrottleMS: 2000,
		VerdictCacheTTLSeconds: 5,

		UploadBatchSize:  3,
		UploadDebounceMS: 150,

		VerdictPollIntervalSeconds: 10,

		LogLevel:      "info",
		LogFormat:     "text",
		LogMaxSizeMB:  50,
		LogMaxBackups: 3,

		HotkeysEnabled: true,
	}
}

// Load reads configuration from cfgFile (or the platform default location
// and working directory) and environment variables prefixed LENSGUARD_,
// layered over Default(). Fatal validation errors abort startup; warnings
// are logged and the (auto-corrected) config is returned.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("lensguard")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("LENSGUARD")
	// Unmarshal only sees keys viper knows about, so bind every Config key
	// to its env variable; otherwise env values apply only to keys the
	// config file also sets.
	t := reflect.TypeOf(*cfg)
	for i := 0; i < t.NumField(); i++ {
		if key := t.Field(i).Tag.Get("mapstructure"); key != "" {
			v.BindEnv(key)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	result := cfg.ValidateTiered()
	for _, err := range result.Warnings {
		log("config validation", "error", err)
	}
	if result.HasFatals() {
		for _, err := range result.Fatals {
			log("config validation fatal", "error", err)
		}
		return nil, fmt.Errorf("config has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, nil
}

// SaveTo writes cfg as YAML to cfgFile (or the platform default path). Only
// the sensor, classifier, directory, capture-quality, batch-size and log
// level/format settings are written; the timing, debounce, poll-interval,
// log-file and hotkey settings are not.
func SaveTo(cfg *Config, cfgFile string) error {
	v := viper.New()
	v.Set("sensor_host", cfg.SensorHost)
	v.Set("sensor_port", cfg.SensorPort)
	v.Set("classifier_base_url", cfg.ClassifierBaseURL)
	v.Set("frames_dir", cfg.FramesDir)
	v.Set("debug_dir", cfg.DebugDir)
	v.Set("capture_quality", cfg.CaptureQuality)
	v.Set("upload_batch_size", cfg.UploadBatchSize)
	v.Set("log_level", cfg.LogLevel)
	v.Set("log_format", cfg.LogFormat)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		if dir := filepath.Dir(cfgPath); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "lensguard.yaml")
		if err := os.MkdirAll(configDir(), 0o700); err != nil {
			return err
		}
	}

	return v.WriteConfigAs(cfgPath)
}

func dataDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "LensGuard")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "LensGuard")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "lensguard")
	}
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "LensGuard")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "LensGuard")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "lensguard")
	}
}
