package run

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/itohio/thrust/pkg/datalog"
)

const (
	// TimestampLayout renders wall-clock timestamps as yy-mm-dd_HH:MM:SS.
	TimestampLayout = "06-01-02_15:04:05"
	// BadTimestamp is used when the wall clock has never been set.
	BadTimestamp = "badTimestamp"
)

var (
	ErrEmptyName   = errors.New("run name cannot be empty")
	ErrRunActive   = errors.New("a run is already active")
	ErrNoActiveRun = errors.New("no active run")
	ErrNotFound    = errors.New("run config not found")
)

// Config is the persisted metadata of a named run.
type Config struct {
	Name    string `json:"name"`
	Notes   string `json:"notes"`
	Created string `json:"created"`
}

// State is the live state of the current (or last) run.
type State struct {
	Name            string    `json:"name"`
	Notes           string    `json:"notes"`
	IsActive        bool      `json:"isActive"`
	StartTime       time.Time `json:"startTime"`
	CurrentFileName string    `json:"currentFileName"`
}

// Store is the part of the sample store the run lifecycle drives.
type Store interface {
	CreateFile(name string) error
	Close()
	Delete(name string) error
	Entries(dir string) ([]datalog.Entry, error)
	RunsDir() string
}

// Manager owns run configurations and the single current run.
type Manager struct {
	configsDir string
	store      Store
	now        func() time.Time
	loc        *time.Location

	state State
}

// NewManager creates a Manager. now supplies both the run start time and the
// wall-clock timestamps; loc selects the timezone of rendered timestamps.
func NewManager(configsDir string, store Store, now func() time.Time, loc *time.Location) *Manager {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return &Manager{
		configsDir: configsDir,
		store:      store,
		now:        now,
		loc:        loc,
	}
}

// Init creates the configs directory and resets the current run.
func (m *Manager) Init() error {
	if err := os.MkdirAll(m.configsDir, 0o755); err != nil {
		log.Printf("Failed to create configs directory: %v", err)
		return fmt.Errorf("failed to create configs directory: %w", err)
	}
	m.state = State{}
	log.Printf("Run manager initialized")
	return nil
}

// CreateConfig persists a run config keyed by the sanitized name. An
// existing config with the same key is overwritten.
func (m *Manager) CreateConfig(name, notes string) error {
	if name == "" {
		log.Printf("Run name cannot be empty")
		return ErrEmptyName
	}

	key := Sanitize(name)
	cfg := Config{
		Name:    name,
		Notes:   notes,
		Created: m.timestamp(),
	}
	if err := m.writeConfig(key, cfg); err != nil {
		return err
	}

	log.Printf("Created run config: %s (file: %s.json)", name, key)
	return nil
}

// Start opens a new data file for the named config and makes it the active run.
func (m *Manager) Start(name string) error {
	if m.state.IsActive {
		log.Printf("A run is already active. Stop it first.")
		return ErrRunActive
	}

	key := Sanitize(name)
	cfg, err := m.readConfig(key)
	if err != nil {
		log.Printf("Run config not found: %s (looked for: %s)", name, m.configPath(key))
		return err
	}

	fileName := m.dataFileName(key)
	if err := m.store.CreateFile(fileName); err != nil {
		log.Printf("Failed to create data file")
		return err
	}

	m.state = State{
		Name:            cfg.Name,
		Notes:           cfg.Notes,
		IsActive:        true,
		StartTime:       m.now(),
		CurrentFileName: fileName,
	}

	log.Printf("Started run: %s -> %s", cfg.Name, fileName)
	return nil
}

// Stop closes the data file of the active run. Name, notes and file name
// stay readable until the next Start.
func (m *Manager) Stop() error {
	if !m.state.IsActive {
		log.Printf("No active run to stop")
		return ErrNoActiveRun
	}

	m.store.Close()
	m.state.IsActive = false

	log.Printf("Stopped run: %s", m.state.Name)
	log.Printf("Data saved to: %s", m.state.CurrentFileName)
	return nil
}

// Delete removes a run's config and every data file of that run, stopping
// it first if it is active. Cleanup is best effort and always succeeds.
func (m *Manager) Delete(name string) error {
	key := Sanitize(name)
	if m.isActiveKey(key) {
		_ = m.Stop()
	}

	configPath := m.configPath(key)
	if err := os.Remove(configPath); err == nil {
		log.Printf("Deleted config: %s", configPath)
	} else if !os.IsNotExist(err) {
		log.Printf("Failed to delete config %s: %v", configPath, err)
	}

	files, err := m.DataFiles(name)
	if err != nil {
		log.Printf("Failed to list data files for %s: %v", name, err)
	}
	for _, f := range files {
		if err := m.store.Delete(f.Name); err == nil {
			log.Printf("Deleted data file: %s", f.Name)
		}
	}

	log.Printf("Deleted run: %s", name)
	return nil
}

// UpdateNotes rewrites the notes of an existing config, keeping its name and
// creation time, and mirrors them into the active run.
func (m *Manager) UpdateNotes(name, notes string) error {
	key := Sanitize(name)
	cfg, err := m.readConfig(key)
	if err != nil {
		log.Printf("Run config not found: %s", name)
		return err
	}

	cfg.Notes = notes
	if err := m.writeConfig(key, cfg); err != nil {
		return err
	}

	if m.isActiveKey(key) {
		m.state.Notes = notes
	}

	log.Printf("Updated notes for run: %s", name)
	return nil
}

// ResetStartTime moves the reference origin of the active run.
func (m *Manager) ResetStartTime(t time.Time) {
	m.state.StartTime = t
}

// Current returns a copy of the current run state.
func (m *Manager) Current() State {
	return m.state
}

// IsActive reports whether a run is active.
func (m *Manager) IsActive() bool {
	return m.state.IsActive
}

// ListConfigs returns all parsable run configs ordered by file name.
func (m *Manager) ListConfigs() ([]Config, error) {
	des, err := os.ReadDir(m.configsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read configs directory: %w", err)
	}

	result := make([]Config, 0, len(des))
	for _, de := range des {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.configsDir, de.Name()))
		if err != nil {
			continue
		}
		var cfg Config
		if err := json.Unmarshal(data, &cfg); err != nil {
			log.Printf("Skipping unparsable config %s: %v", de.Name(), err)
			continue
		}
		result = append(result, cfg)
	}
	return result, nil
}

// DataFiles returns the data files belonging to the named run.
func (m *Manager) DataFiles(name string) ([]datalog.Entry, error) {
	prefix := Sanitize(name) + ": "

	entries, err := m.store.Entries(m.store.RunsDir())
	if err != nil {
		return nil, err
	}

	result := make([]datalog.Entry, 0)
	for _, e := range entries {
		if strings.HasPrefix(e.Name, prefix) && strings.HasSuffix(e.Name, ".csv") {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Manager) isActiveKey(key string) bool {
	return m.state.IsActive && Sanitize(m.state.Name) == key
}

func (m *Manager) configPath(key string) string {
	return filepath.Join(m.configsDir, key+".json")
}

func (m *Manager) readConfig(key string) (Config, error) {
	data, err := os.ReadFile(m.configPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, ErrNotFound
		}
		return Config{}, fmt.Errorf("failed to open config file: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Printf("Failed to parse config file")
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// rename is replaced in tests to simulate a failing filesystem.
var rename = os.Rename

// writeConfig replaces the config file atomically so a failed write leaves
// the previous file untouched.
func (m *Manager) writeConfig(key string, cfg Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := m.configPath(key)
	tmp, err := os.CreateTemp(m.configsDir, "."+key+".*.tmp")
	if err != nil {
		log.Printf("Failed to create config file: %s", path)
		return fmt.Errorf("failed to create config file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		log.Printf("Failed to create config file: %s", path)
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

func (m *Manager) timestamp() string {
	t := m.now()
	if t.Year() < 2020 {
		return BadTimestamp
	}
	return t.In(m.loc).Format(TimestampLayout)
}

// dataFileName builds "<key>: <timestamp>.csv", adding a numeric suffix to
// the timestamp when a file of that name already exists.
func (m *Manager) dataFileName(key string) string {
	ts := m.timestamp()
	name := key + ": " + ts + ".csv"
	for i := 1; m.exists(name); i++ {
		name = key + ": " + ts + "_" + strconv.Itoa(i) + ".csv"
	}
	return name
}

func (m *Manager) exists(name string) bool {
	_, err := os.Stat(filepath.Join(m.store.RunsDir(), name))
	return err == nil
}
