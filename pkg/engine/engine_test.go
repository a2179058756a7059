package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/thrust/pkg/calibrate"
	"github.com/itohio/thrust/pkg/config"
	"github.com/itohio/thrust/pkg/datalog"
	"github.com/itohio/thrust/pkg/loadcell"
	"github.com/itohio/thrust/pkg/prefs"
	"github.com/itohio/thrust/pkg/run"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

var t0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Sensor.Driver = "mock"
	cfg.Sensor.ReadyPoll = time.Millisecond
	cfg.Clock.Timezone = "UTC"
	return cfg
}

func bootTest(t *testing.T) (*Engine, *loadcell.Mock, *fakeClock) {
	t.Helper()
	m := loadcell.NewMock(nil)
	m.Set(1000)
	clk := &fakeClock{t: t0}

	e, err := Boot(testConfig(t), WithAmplifier(m), WithClock(clk.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e, m, clk
}

func TestBoot_UnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sensor.Driver = "bogus"

	_, err := Boot(cfg)
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestBoot_UsesDefaultFactor(t *testing.T) {
	e, _, _ := bootTest(t)
	assert.Equal(t, float32(661.41), e.cell.Scale())
	assert.Equal(t, float32(1000), e.cell.Offset())

	factor, err := e.CalibrationFactor(context.Background())
	require.NoError(t, err)
	assert.Zero(t, factor)
}

func TestBoot_TimezonePreference(t *testing.T) {
	tests := []struct {
		name    string
		tz      string
		created string
	}{
		{"unset uses config", "", "25-06-01_10:00:00"},
		{"stored zone", "Asia/Tokyo", "25-06-01_19:00:00"},
		{"unknown zone uses config", "EET-2", "25-06-01_10:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			if tt.tz != "" {
				p, err := prefs.Open(cfg.PrefsPath())
				require.NoError(t, err)
				require.NoError(t, p.PutString(context.Background(), prefs.KeyTimezone, tt.tz))
				require.NoError(t, p.Close())
			}

			m := loadcell.NewMock(nil)
			m.Set(1000)
			clk := &fakeClock{t: t0}
			e, err := Boot(cfg, WithAmplifier(m), WithClock(clk.Now))
			require.NoError(t, err)
			defer e.Close()

			require.NoError(t, e.CreateRunConfig("tz", ""))
			configs, err := e.ListRunConfigs()
			require.NoError(t, err)
			require.Len(t, configs, 1)
			assert.Equal(t, tt.created, configs[0].Created)
		})
	}
}

func TestBoot_RunsInitFailureReleasesSensor(t *testing.T) {
	cfg := testConfig(t)
	// A regular file where the configs directory should be.
	require.NoError(t, os.WriteFile(cfg.ConfigsPath(), []byte("x"), 0o644))

	m := loadcell.NewMock(nil)
	m.Set(1000)
	_, err := Boot(cfg, WithAmplifier(m))
	require.Error(t, err)
	assert.False(t, m.IsReady())
}

func TestRunAcquisition(t *testing.T) {
	e, m, clk := bootTest(t)

	require.NoError(t, e.CreateRunConfig("Motor A", "bench"))
	require.NoError(t, e.StartRun("Motor A"))

	st := e.CurrentRun()
	require.True(t, st.IsActive)
	assert.Equal(t, "Motor_A: 25-06-01_10:00:00.csv", st.CurrentFileName)

	// The idle reading at start is trimmed and moves the origin.
	clk.Set(t0.Add(time.Second))
	e.Tick(clk.Now())

	m.Set(1000 + 8202)
	e.Tick(t0.Add(time.Second + 100*time.Millisecond))
	e.Tick(t0.Add(time.Second + 150*time.Millisecond))

	require.NoError(t, e.StopRun())
	assert.False(t, e.CurrentRun().IsActive)

	content, err := e.ReadDataFile(st.CurrentFileName)
	require.NoError(t, err)
	assert.Equal(t, "timestamp_ms,thrust_grams\n100,12.40\n", string(content))

	size, err := e.FileSize(st.CurrentFileName)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), size)

	files, err := e.ListRunDataFiles("Motor A")
	require.NoError(t, err)
	assert.Equal(t, []datalog.Entry{{Name: st.CurrentFileName, Size: size}}, files)

	all, err := e.ListDataFiles()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRunLifecycleSurface(t *testing.T) {
	e, _, _ := bootTest(t)

	assert.ErrorIs(t, e.CreateRunConfig("", ""), run.ErrEmptyName)
	require.NoError(t, e.CreateRunConfig("a", "one"))
	require.NoError(t, e.UpdateRunNotes("a", "two"))

	configs, err := e.ListRunConfigs()
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "two", configs[0].Notes)

	require.NoError(t, e.StartRun("a"))
	assert.ErrorIs(t, e.DeleteDataFile(e.CurrentRun().CurrentFileName), ErrFileInUse)
	assert.ErrorIs(t, e.DeleteDataFile("/"+e.CurrentRun().CurrentFileName), ErrFileInUse)

	require.NoError(t, e.DeleteRun("a"))
	assert.False(t, e.CurrentRun().IsActive)

	configs, err = e.ListRunConfigs()
	require.NoError(t, err)
	assert.Empty(t, configs)

	all, err := e.ListDataFiles()
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.ErrorIs(t, e.StopRun(), run.ErrNoActiveRun)
	assert.ErrorIs(t, e.DeleteDataFile("missing.csv"), datalog.ErrNotFound)
}

func TestCalibrationThroughEngine(t *testing.T) {
	e, m, clk := bootTest(t)

	require.NoError(t, e.StartCalibrationJSON([]byte(`{"knownWeight":100}`)))
	assert.ErrorIs(t, e.StartCalibration(100), calibrate.ErrInProgress)

	require.NoError(t, e.CreateRunConfig("r", ""))
	assert.ErrorIs(t, e.StartRun("r"), ErrCalibrating)

	e.Tick(t0.Add(5 * time.Second))
	m.Set(1000 + 6614)
	for _, d := range []time.Duration{10, 11, 12, 13, 14} {
		e.Tick(t0.Add(d * time.Second))
		assert.False(t, e.CalibrationStatus().Complete)
	}
	e.Tick(t0.Add(15 * time.Second))

	st := e.CalibrationStatus()
	assert.True(t, st.Complete)
	assert.True(t, st.Success)
	assert.InDelta(t, 66.14, st.CalibrationFactor, 1e-4)

	factor, err := e.CalibrationFactor(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 66.14, factor, 1e-4)
	assert.InDelta(t, 66.14, e.cell.Scale(), 1e-4)

	// The new factor applies to the next run without a restart.
	clk.Set(t0.Add(20 * time.Second))
	require.NoError(t, e.StartRun("r"))
	assert.ErrorIs(t, e.StartCalibration(100), run.ErrRunActive)
	e.Tick(clk.Now())
	require.NoError(t, e.StopRun())

	content, err := e.ReadDataFile(e.CurrentRun().CurrentFileName)
	require.NoError(t, err)
	assert.Equal(t, "timestamp_ms,thrust_grams\n0,100.00\n", string(content))
}

func TestCalibration_SensorMissing(t *testing.T) {
	m := loadcell.NewMock(nil)
	m.SetReady(false)
	e, err := Boot(testConfig(t), WithAmplifier(m), WithClock(func() time.Time { return t0 }))
	require.NoError(t, err)
	defer e.Close()

	err = e.StartCalibration(100)
	assert.ErrorIs(t, err, calibrate.ErrNotReady)
	assert.Equal(t, "Load cell not ready", calibrate.Message(err))

	// Runs still work and log zeros once data exists; the idle start is trimmed.
	require.NoError(t, e.CreateRunConfig("r", ""))
	require.NoError(t, e.StartRun("r"))
	e.Tick(t0)
	require.NoError(t, e.StopRun())

	content, err := e.ReadDataFile(e.CurrentRun().CurrentFileName)
	require.NoError(t, err)
	assert.Equal(t, "timestamp_ms,thrust_grams\n", string(content))
}

func TestChartAndBurnStats(t *testing.T) {
	e, _, _ := bootTest(t)

	csv := "timestamp_ms,thrust_grams\n0,0.00\n100,10.00\n200,20.00\n300,10.00\n400,0.00\n"
	require.NoError(t, os.WriteFile(filepath.Join(e.cfg.RunsPath(), "m: 1.csv"), []byte(csv), 0o644))

	data, err := e.ChartData([]string{"m: 1.csv"})
	require.NoError(t, err)
	require.Len(t, data.Datasets, 1)
	assert.Len(t, data.Datasets[0].Data, 5)

	out, err := e.ChartDataJSON([]byte(`{"files":["m: 1.csv"]}`))
	require.NoError(t, err)
	assert.Contains(t, string(out), `"name":"m: 1.csv"`)

	st, err := e.BurnStats("m: 1.csv")
	require.NoError(t, err)
	assert.Equal(t, 20.0, st.Peak)
	require.Len(t, st.Burns, 1)
	assert.InDelta(t, 0.2, st.BurnTime, 1e-9)

	_, err = e.BurnStats("missing.csv")
	assert.ErrorIs(t, err, datalog.ErrNotFound)
}

func TestRun_StopsActiveRunOnCancel(t *testing.T) {
	e, _, _ := bootTest(t)
	require.NoError(t, e.CreateRunConfig("r", ""))
	require.NoError(t, e.StartRun("r"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := e.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, e.CurrentRun().IsActive)
}
