package run

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/thrust/pkg/datalog"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func newTestManager(t *testing.T) (*Manager, *datalog.Logger, *fakeClock) {
	t.Helper()
	dir := t.TempDir()
	store := datalog.New(dir, filepath.Join(dir, "runs"), 10)
	require.NoError(t, store.Init())

	clk := &fakeClock{t: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)}
	m := NewManager(filepath.Join(dir, "configs"), store, clk.Now, time.UTC)
	require.NoError(t, m.Init())
	return m, store, clk
}

func TestCreateConfig(t *testing.T) {
	m, _, _ := newTestManager(t)

	require.NoError(t, m.CreateConfig("Motor A", "first test"))
	assert.ErrorIs(t, m.CreateConfig("", "x"), ErrEmptyName)

	data, err := os.ReadFile(filepath.Join(m.configsDir, "Motor_A.json"))
	require.NoError(t, err)

	var cfg Config
	require.NoError(t, json.Unmarshal(data, &cfg))
	assert.Equal(t, Config{Name: "Motor A", Notes: "first test", Created: "25-03-14_09:26:53"}, cfg)

	configs, err := m.ListConfigs()
	require.NoError(t, err)
	assert.Equal(t, []Config{cfg}, configs)
}

func TestCreateConfig_BadClock(t *testing.T) {
	m, _, clk := newTestManager(t)
	clk.t = time.Unix(5, 0)

	require.NoError(t, m.CreateConfig("cold", ""))
	configs, err := m.ListConfigs()
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, BadTimestamp, configs[0].Created)
}

func TestListConfigs_SkipsGarbage(t *testing.T) {
	m, _, _ := newTestManager(t)
	require.NoError(t, m.CreateConfig("b", ""))
	require.NoError(t, m.CreateConfig("a", ""))
	require.NoError(t, os.WriteFile(filepath.Join(m.configsDir, "broken.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(m.configsDir, "notes.txt"), []byte("hi"), 0o644))

	configs, err := m.ListConfigs()
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, "a", configs[0].Name)
	assert.Equal(t, "b", configs[1].Name)
}

func TestStartStop(t *testing.T) {
	m, store, clk := newTestManager(t)
	require.NoError(t, m.CreateConfig("Motor A", "notes"))

	assert.ErrorIs(t, m.Start("missing"), ErrNotFound)
	assert.ErrorIs(t, m.Stop(), ErrNoActiveRun)

	require.NoError(t, m.Start("Motor A"))
	st := m.Current()
	assert.True(t, st.IsActive)
	assert.Equal(t, "Motor A", st.Name)
	assert.Equal(t, "notes", st.Notes)
	assert.Equal(t, clk.t, st.StartTime)
	assert.Equal(t, "Motor_A: 25-03-14_09:26:53.csv", st.CurrentFileName)
	assert.True(t, store.IsOpen())

	// Only one run may be active at a time.
	require.NoError(t, m.CreateConfig("other", ""))
	assert.ErrorIs(t, m.Start("other"), ErrRunActive)

	require.NoError(t, m.Stop())
	assert.False(t, m.IsActive())
	assert.False(t, store.IsOpen())
	assert.Equal(t, "Motor A", m.Current().Name)
	assert.Equal(t, "Motor_A: 25-03-14_09:26:53.csv", m.Current().CurrentFileName)
}

func TestStart_DistinctFileWithinSameSecond(t *testing.T) {
	m, _, _ := newTestManager(t)
	require.NoError(t, m.CreateConfig("r", ""))

	require.NoError(t, m.Start("r"))
	first := m.Current().CurrentFileName
	require.NoError(t, m.Stop())

	require.NoError(t, m.Start("r"))
	second := m.Current().CurrentFileName
	require.NoError(t, m.Stop())

	assert.NotEqual(t, first, second)
	assert.Equal(t, "r: 25-03-14_09:26:53_1.csv", second)

	files, err := m.DataFiles("r")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestDelete_Cascade(t *testing.T) {
	m, store, clk := newTestManager(t)
	require.NoError(t, m.CreateConfig("Motor A", ""))
	require.NoError(t, m.CreateConfig("Motor AB", ""))

	require.NoError(t, m.Start("Motor AB"))
	require.NoError(t, m.Stop())

	require.NoError(t, m.Start("Motor A"))
	require.NoError(t, m.Stop())
	clk.t = clk.t.Add(time.Minute)
	require.NoError(t, m.Start("Motor A"))

	require.NoError(t, m.Delete("Motor A"))
	assert.False(t, m.IsActive())
	assert.False(t, store.IsOpen())

	_, err := os.Stat(filepath.Join(m.configsDir, "Motor_A.json"))
	assert.True(t, os.IsNotExist(err))

	files, err := m.DataFiles("Motor A")
	require.NoError(t, err)
	assert.Empty(t, files)

	// A run sharing the name prefix survives.
	files, err = m.DataFiles("Motor AB")
	require.NoError(t, err)
	assert.Len(t, files, 1)

	// Deleting something that doesn't exist still succeeds.
	assert.NoError(t, m.Delete("never existed"))
}

func TestDelete_OtherRunKeepsActive(t *testing.T) {
	m, _, _ := newTestManager(t)
	require.NoError(t, m.CreateConfig("a", ""))
	require.NoError(t, m.CreateConfig("b", ""))
	require.NoError(t, m.Start("a"))

	require.NoError(t, m.Delete("b"))
	assert.True(t, m.IsActive())
	assert.Equal(t, "a", m.Current().Name)
}

func TestUpdateNotes(t *testing.T) {
	m, _, clk := newTestManager(t)
	require.NoError(t, m.CreateConfig("Motor A", "old"))
	assert.ErrorIs(t, m.UpdateNotes("missing", "x"), ErrNotFound)

	require.NoError(t, m.Start("Motor A"))
	clk.t = clk.t.Add(time.Hour)
	require.NoError(t, m.UpdateNotes("Motor A", "new"))

	assert.Equal(t, "new", m.Current().Notes)

	configs, err := m.ListConfigs()
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, Config{Name: "Motor A", Notes: "new", Created: "25-03-14_09:26:53"}, configs[0])
}

func TestResetStartTime(t *testing.T) {
	m, _, clk := newTestManager(t)
	require.NoError(t, m.CreateConfig("r", ""))
	require.NoError(t, m.Start("r"))

	later := clk.t.Add(3 * time.Second)
	m.ResetStartTime(later)
	assert.Equal(t, later, m.Current().StartTime)
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"Motor A":        "Motor_A",
		"a/b\\c":         "a-b-c",
		`x*y?z|w`:        "x-y-z-w",
		`"quoted" <tag>`: "quoted_tag",
		"R&D 50% #3":     "RandD_50pct_num3",
		"it's":           "its",
		"tab\there\n":    "tab_here_",
		"plain":          "plain",
	}
	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			got := Sanitize(in)
			assert.Equal(t, want, got)
			assert.Equal(t, got, Sanitize(got))
		})
	}
}

func TestWriteConfig_FailureKeepsPrevious(t *testing.T) {
	m, _, clk := newTestManager(t)
	require.NoError(t, m.CreateConfig("a", "old"))
	want, err := m.ListConfigs()
	require.NoError(t, err)

	clk.t = clk.t.Add(time.Hour)

	t.Run("rename fails", func(t *testing.T) {
		rename = func(string, string) error { return errors.New("disk full") }
		defer func() { rename = os.Rename }()

		assert.Error(t, m.CreateConfig("a", "new"))
		assert.Error(t, m.UpdateNotes("a", "new"))
	})

	t.Run("configs dir is not a directory", func(t *testing.T) {
		dir := m.configsDir
		m.configsDir = filepath.Join(dir, "a.json")
		defer func() { m.configsDir = dir }()

		assert.Error(t, m.CreateConfig("a", "new"))
	})

	got, err := m.ListConfigs()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	leftovers, err := filepath.Glob(filepath.Join(m.configsDir, ".a.*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}
