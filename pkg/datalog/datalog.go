// Package datalog is the append-only CSV sample store for run data.
package datalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Header is the first row of every run data file.
var Header = []string{"timestamp_ms", "thrust_grams"}

var (
	// ErrNoFileOpen is returned by Append when no data file is open.
	ErrNoFileOpen = errors.New("no file open for logging")
	// ErrNotFound is returned when a data file does not exist.
	ErrNotFound = errors.New("file does not exist")
	// ErrInvalidName is returned for names that would escape the data directory.
	ErrInvalidName = errors.New("invalid file name")
)

// Entry describes one stored file.
type Entry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Logger writes samples for one open run file at a time. Appends are
// buffered and flushed to stable storage every flushEvery samples.
type Logger struct {
	dataDir    string
	runsDir    string
	flushEvery int

	file     *os.File
	w        *csv.Writer
	fileName string
	count    int
}

// New creates a Logger rooted at dataDir writing run files into runsDir.
func New(dataDir, runsDir string, flushEvery int) *Logger {
	if flushEvery <= 0 {
		flushEvery = 10
	}
	return &Logger{
		dataDir:    dataDir,
		runsDir:    runsDir,
		flushEvery: flushEvery,
	}
}

// Init creates the data and runs directories if they don't exist.
func (l *Logger) Init() error {
	for _, dir := range []string{l.dataDir, l.runsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Printf("Failed to create directory %s: %v", dir, err)
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// RunsDir returns the directory run files are written to.
func (l *Logger) RunsDir() string {
	return l.runsDir
}

// CreateFile closes any open file, then creates name in the runs directory,
// writes the header and resets the sample counter.
func (l *Logger) CreateFile(name string) error {
	if l.IsOpen() {
		l.Close()
	}

	fullPath, err := l.path(name)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("Failed to create data file %s: %v", fullPath, err)
		return fmt.Errorf("failed to create data file: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		f.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}

	l.file = f
	l.w = w
	l.fileName = fullPath
	l.count = 0

	log.Printf("Created data file: %s", fullPath)
	return nil
}

// Append writes one "timestamp,thrust" row with thrust rounded to 2 decimals.
func (l *Logger) Append(thrust float32, timestampMs uint32) error {
	if !l.IsOpen() {
		log.Printf("No file open for logging")
		return ErrNoFileOpen
	}

	row := []string{
		strconv.FormatUint(uint64(timestampMs), 10),
		strconv.FormatFloat(float64(thrust), 'f', 2, 32),
	}
	if err := l.w.Write(row); err != nil {
		return fmt.Errorf("failed to write sample: %w", err)
	}

	l.count++
	if l.count%l.flushEvery == 0 {
		// The row is already buffered; a write error surfaces on the next Append.
		if err := l.flush(); err != nil {
			log.Printf("Failed to flush %s: %v", l.fileName, err)
		}
	}
	return nil
}

// SampleCount returns the number of samples appended to the open file.
func (l *Logger) SampleCount() int {
	return l.count
}

// IsOpen reports whether a data file is open.
func (l *Logger) IsOpen() bool {
	return l.file != nil
}

// CurrentFile returns the full path of the open file, or "".
func (l *Logger) CurrentFile() string {
	return l.fileName
}

// Close flushes and releases the open file. It is a no-op when nothing is open.
func (l *Logger) Close() {
	if l.file != nil {
		if err := l.flush(); err != nil {
			log.Printf("Failed to flush %s: %v", l.fileName, err)
		}
		if err := l.file.Close(); err != nil {
			log.Printf("Failed to close %s: %v", l.fileName, err)
		}
		log.Printf("Closed data file: %s", l.fileName)
	}
	l.file = nil
	l.w = nil
	l.fileName = ""
}

// Read returns the whole content of a run file.
func (l *Logger) Read(name string) ([]byte, error) {
	fullPath, err := l.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		log.Printf("Failed to open file for reading: %s", fullPath)
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Delete removes a run file.
func (l *Logger) Delete(name string) error {
	fullPath, err := l.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			log.Printf("File does not exist: %s", fullPath)
			return ErrNotFound
		}
		log.Printf("Failed to delete file %s: %v", fullPath, err)
		return fmt.Errorf("failed to delete file: %w", err)
	}
	log.Printf("Deleted file: %s", fullPath)
	return nil
}

// Size returns the size of a run file in bytes.
func (l *Logger) Size(name string) (int64, error) {
	fullPath, err := l.path(name)
	if err != nil {
		return 0, err
	}
	st, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return st.Size(), nil
}

// List returns the names of regular files in dir, sorted.
func (l *Logger) List(dir string) ([]string, error) {
	entries, err := l.Entries(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names, nil
}

// Entries returns the regular files in dir with their sizes, sorted by name.
func (l *Logger) Entries(dir string) ([]Entry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("Failed to open directory: %s", dir)
		return nil, fmt.Errorf("failed to open directory %s: %w", dir, err)
	}

	result := make([]Entry, 0, len(des))
	for _, de := range des {
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		result = append(result, Entry{Name: de.Name(), Size: info.Size()})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (l *Logger) flush() error {
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return fmt.Errorf("failed to flush samples: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync data file: %w", err)
	}
	return nil
}

// path resolves a bare file name inside the runs directory.
func (l *Logger) path(name string) (string, error) {
	name = strings.TrimPrefix(name, "/")
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", ErrInvalidName
	}
	return filepath.Join(l.runsDir, name), nil
}
