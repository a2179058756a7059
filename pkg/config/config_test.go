package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, "hx711", cfg.Sensor.Driver)
	assert.Equal(t, "GPIO16", cfg.Sensor.DoutPin)
	assert.Equal(t, "GPIO4", cfg.Sensor.SckPin)
	assert.Equal(t, 128, cfg.Sensor.Gain)
	assert.Equal(t, 10, cfg.Sensor.ReadyAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Sampling.Interval)
	assert.Equal(t, float32(0.5), cfg.Sampling.TrimThreshold)
	assert.Equal(t, 10, cfg.Sampling.FlushEvery)
	assert.Equal(t, float32(661.41), cfg.Calibration.DefaultFactor)
	assert.Equal(t, 5*time.Second, cfg.Calibration.UnloadedDuration)
	assert.Equal(t, 5*time.Second, cfg.Calibration.LoadedDuration)
	assert.Equal(t, time.Second, cfg.Calibration.MeasureInterval)
	assert.Equal(t, 30*time.Second, cfg.Calibration.ReadyTimeout)
	assert.Equal(t, 5.0, cfg.Analysis.BurnThreshold)
	assert.Equal(t, 100*time.Millisecond, cfg.Analysis.MinBurnDuration)
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "hx711", cfg.Sensor.Driver)
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
sensor:
  driver: serial
  serial_port: "/dev/ttyUSB1"
  baud_rate: 57600

sampling:
  interval: 50ms
  trim_threshold: 1.5

calibration:
  default_factor: 420.5
  unloaded_duration: 3s
  loaded_duration: 4s
  ready_timeout: 10s

storage:
  data_dir: /var/lib/thrust
  prefs_path: /etc/thrust/prefs.db

clock:
  timezone: UTC
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)

	assert.Equal(t, "serial", cfg.Sensor.Driver)
	assert.Equal(t, "/dev/ttyUSB1", cfg.Sensor.SerialPort)
	assert.Equal(t, 57600, cfg.Sensor.BaudRate)
	assert.Equal(t, 50*time.Millisecond, cfg.Sampling.Interval)
	assert.Equal(t, float32(1.5), cfg.Sampling.TrimThreshold)
	assert.Equal(t, float32(420.5), cfg.Calibration.DefaultFactor)
	assert.Equal(t, 3*time.Second, cfg.Calibration.UnloadedDuration)
	assert.Equal(t, 4*time.Second, cfg.Calibration.LoadedDuration)
	assert.Equal(t, 10*time.Second, cfg.Calibration.ReadyTimeout)

	assert.Equal(t, filepath.Join("/var/lib/thrust", "runs"), cfg.RunsPath())
	assert.Equal(t, filepath.Join("/var/lib/thrust", "configs"), cfg.ConfigsPath())
	assert.Equal(t, "/etc/thrust/prefs.db", cfg.PrefsPath())
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("invalid: yaml: content: [")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_PartialYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
sensor:
  dout_pin: GPIO5
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)

	// Missing fields fall back to defaults
	assert.Equal(t, "GPIO5", cfg.Sensor.DoutPin)
	assert.Equal(t, "GPIO4", cfg.Sensor.SckPin)
	assert.Equal(t, 100*time.Millisecond, cfg.Sampling.Interval)
	assert.Equal(t, 10, cfg.Sampling.FlushEvery)
	assert.Equal(t, "./data", cfg.Storage.DataDir)
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Sensor.Driver = "mock"
	cfg.Sampling.Interval = 20 * time.Millisecond

	path := filepath.Join(t.TempDir(), "thrust.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mock", loaded.Sensor.Driver)
	assert.Equal(t, 20*time.Millisecond, loaded.Sampling.Interval)
}

func TestLocation_Unknown(t *testing.T) {
	cfg := Default()
	cfg.Clock.Timezone = "Not/AZone"
	assert.Equal(t, time.UTC, cfg.Location())

	cfg.Clock.Timezone = "Local"
	assert.Equal(t, time.Local, cfg.Location())
}
