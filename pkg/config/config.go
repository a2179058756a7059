package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the instrument configuration loaded once at boot.
type Config struct {
	Sensor      SensorConfig      `yaml:"sensor"`
	Sampling    SamplingConfig    `yaml:"sampling"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Analysis    AnalysisConfig    `yaml:"analysis"`
	Storage     StorageConfig     `yaml:"storage"`
	Clock       ClockConfig       `yaml:"clock"`
	Mock        MockConfig        `yaml:"mock"`
}

// SensorConfig selects and parameterizes the load cell amplifier.
type SensorConfig struct {
	Driver         string        `yaml:"driver"`          // hx711, serial or mock
	DoutPin        string        `yaml:"dout_pin"`        // GPIO name of the HX711 data line
	SckPin         string        `yaml:"sck_pin"`         // GPIO name of the HX711 clock line
	Gain           int           `yaml:"gain"`            // 128, 64 or 32
	SerialPort     string        `yaml:"serial_port"`     // Bridge MCU port (serial driver)
	BaudRate       int           `yaml:"baud_rate"`       // Bridge MCU baud rate
	ReadyAttempts  int           `yaml:"ready_attempts"`  // Polls before initialization gives up
	ReadyPoll      time.Duration `yaml:"ready_poll"`      // Delay between initialization polls
	ReadTimeout    time.Duration `yaml:"read_timeout"`    // Max wait for one conversion
	AverageSamples int           `yaml:"average_samples"` // Raw reads averaged by tare
}

// SamplingConfig contains acquisition cadence parameters.
type SamplingConfig struct {
	Interval      time.Duration `yaml:"interval"`
	TrimThreshold float32       `yaml:"trim_threshold"` // Leading readings at or below this (g) are dropped
	FlushEvery    int           `yaml:"flush_every"`
}

// CalibrationConfig contains the calibration sequence timing.
type CalibrationConfig struct {
	DefaultFactor    float32       `yaml:"default_factor"`
	UnloadedDuration time.Duration `yaml:"unloaded_duration"`
	LoadedDuration   time.Duration `yaml:"loaded_duration"`
	MeasureInterval  time.Duration `yaml:"measure_interval"`
	AverageSamples   int           `yaml:"average_samples"`
	ReadyTimeout     time.Duration `yaml:"ready_timeout"`
}

// AnalysisConfig contains burn detection parameters.
type AnalysisConfig struct {
	BurnThreshold   float64       `yaml:"burn_threshold"`    // Thrust (g) above which the motor is burning
	MinBurnDuration time.Duration `yaml:"min_burn_duration"` // Shorter bursts are treated as noise
	ChartMaxPoints  int           `yaml:"chart_max_points"`  // 0 disables chart decimation
}

// StorageConfig contains filesystem locations.
type StorageConfig struct {
	DataDir    string `yaml:"data_dir"`
	RunsDir    string `yaml:"runs_dir"`
	ConfigsDir string `yaml:"configs_dir"`
	PrefsPath  string `yaml:"prefs_path"`
}

// ClockConfig controls how wall-clock timestamps are rendered.
type ClockConfig struct {
	Timezone string `yaml:"timezone"`
}

// MockConfig contains simulated amplifier parameters.
type MockConfig struct {
	Offset        int32         `yaml:"offset"`          // Raw counts with no load
	CountsPerGram float32       `yaml:"counts_per_gram"` // Simulated cell sensitivity
	PeakGrams     float32       `yaml:"peak_grams"`      // Simulated burn peak thrust
	BurnDuration  time.Duration `yaml:"burn_duration"`
	Period        time.Duration `yaml:"period"`       // Time between simulated burns
	NoiseCounts   int32         `yaml:"noise_counts"` // Peak-to-peak noise amplitude
}

// Default returns a default configuration matching the reference hardware.
func Default() *Config {
	return &Config{
		Sensor: SensorConfig{
			Driver:         "hx711",
			DoutPin:        "GPIO16",
			SckPin:         "GPIO4",
			Gain:           128,
			SerialPort:     "/dev/ttyACM0",
			BaudRate:       115200,
			ReadyAttempts:  10,
			ReadyPoll:      100 * time.Millisecond,
			ReadTimeout:    500 * time.Millisecond,
			AverageSamples: 10,
		},
		Sampling: SamplingConfig{
			Interval:      100 * time.Millisecond, // 10 samples per second
			TrimThreshold: 0.5,
			FlushEvery:    10,
		},
		Calibration: CalibrationConfig{
			DefaultFactor:    661.41,
			UnloadedDuration: 5 * time.Second,
			LoadedDuration:   5 * time.Second,
			MeasureInterval:  time.Second,
			AverageSamples:   10,
			ReadyTimeout:     30 * time.Second,
		},
		Analysis: AnalysisConfig{
			BurnThreshold:   5,
			MinBurnDuration: 100 * time.Millisecond,
			ChartMaxPoints:  2000,
		},
		Storage: StorageConfig{
			DataDir:    "./data",
			RunsDir:    "runs",
			ConfigsDir: "configs",
			PrefsPath:  "prefs.db",
		},
		Clock: ClockConfig{
			Timezone: "Local",
		},
		Mock: MockConfig{
			Offset:        8400,
			CountsPerGram: 661.41,
			PeakGrams:     250,
			BurnDuration:  2 * time.Second,
			Period:        10 * time.Second,
			NoiseCounts:   200,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// RunsPath returns the run-data directory, resolved under DataDir when relative.
func (c *Config) RunsPath() string {
	return c.resolve(c.Storage.RunsDir)
}

// ConfigsPath returns the run-config directory, resolved under DataDir when relative.
func (c *Config) ConfigsPath() string {
	return c.resolve(c.Storage.ConfigsDir)
}

// PrefsPath returns the preferences database path, resolved under DataDir when relative.
func (c *Config) PrefsPath() string {
	return c.resolve(c.Storage.PrefsPath)
}

// Location returns the configured timezone, falling back to UTC when unknown.
func (c *Config) Location() *time.Location {
	if c.Clock.Timezone == "" || c.Clock.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Clock.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Storage.DataDir, p)
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Sensor.Driver == "" {
		c.Sensor.Driver = def.Sensor.Driver
	}
	if c.Sensor.DoutPin == "" {
		c.Sensor.DoutPin = def.Sensor.DoutPin
	}
	if c.Sensor.SckPin == "" {
		c.Sensor.SckPin = def.Sensor.SckPin
	}
	if c.Sensor.Gain == 0 {
		c.Sensor.Gain = def.Sensor.Gain
	}
	if c.Sensor.SerialPort == "" {
		c.Sensor.SerialPort = def.Sensor.SerialPort
	}
	if c.Sensor.BaudRate == 0 {
		c.Sensor.BaudRate = def.Sensor.BaudRate
	}
	if c.Sensor.ReadyAttempts <= 0 {
		c.Sensor.ReadyAttempts = def.Sensor.ReadyAttempts
	}
	if c.Sensor.ReadyPoll == 0 {
		c.Sensor.ReadyPoll = def.Sensor.ReadyPoll
	}
	if c.Sensor.ReadTimeout == 0 {
		c.Sensor.ReadTimeout = def.Sensor.ReadTimeout
	}
	if c.Sensor.AverageSamples <= 0 {
		c.Sensor.AverageSamples = def.Sensor.AverageSamples
	}

	if c.Sampling.Interval == 0 {
		c.Sampling.Interval = def.Sampling.Interval
	}
	if c.Sampling.TrimThreshold == 0 {
		c.Sampling.TrimThreshold = def.Sampling.TrimThreshold
	}
	if c.Sampling.FlushEvery <= 0 {
		c.Sampling.FlushEvery = def.Sampling.FlushEvery
	}

	if c.Calibration.DefaultFactor == 0 {
		c.Calibration.DefaultFactor = def.Calibration.DefaultFactor
	}
	if c.Calibration.UnloadedDuration == 0 {
		c.Calibration.UnloadedDuration = def.Calibration.UnloadedDuration
	}
	if c.Calibration.LoadedDuration == 0 {
		c.Calibration.LoadedDuration = def.Calibration.LoadedDuration
	}
	if c.Calibration.MeasureInterval == 0 {
		c.Calibration.MeasureInterval = def.Calibration.MeasureInterval
	}
	if c.Calibration.AverageSamples <= 0 {
		c.Calibration.AverageSamples = def.Calibration.AverageSamples
	}
	if c.Calibration.ReadyTimeout == 0 {
		c.Calibration.ReadyTimeout = def.Calibration.ReadyTimeout
	}

	if c.Analysis.BurnThreshold <= 0 {
		c.Analysis.BurnThreshold = def.Analysis.BurnThreshold
	}
	if c.Analysis.MinBurnDuration == 0 {
		c.Analysis.MinBurnDuration = def.Analysis.MinBurnDuration
	}

	if c.Storage.DataDir == "" {
		c.Storage.DataDir = def.Storage.DataDir
	}
	if c.Storage.RunsDir == "" {
		c.Storage.RunsDir = def.Storage.RunsDir
	}
	if c.Storage.ConfigsDir == "" {
		c.Storage.ConfigsDir = def.Storage.ConfigsDir
	}
	if c.Storage.PrefsPath == "" {
		c.Storage.PrefsPath = def.Storage.PrefsPath
	}

	if c.Clock.Timezone == "" {
		c.Clock.Timezone = def.Clock.Timezone
	}

	if c.Mock.CountsPerGram == 0 {
		c.Mock.CountsPerGram = def.Mock.CountsPerGram
	}
	if c.Mock.Period == 0 {
		c.Mock.Period = def.Mock.Period
	}
	if c.Mock.BurnDuration == 0 {
		c.Mock.BurnDuration = def.Mock.BurnDuration
	}
}
