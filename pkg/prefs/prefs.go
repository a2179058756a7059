// Package prefs is the persistent key-value store for device preferences
// (calibration factor, WiFi credentials, timezone).
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Namespace used by the device for network and calibration settings.
const Namespace = "wifi-config"

// Well-known keys.
const (
	KeyCalFactor = "cal_factor"
	KeySSID      = "ssid"
	KeyPassword  = "password"
	KeyTimezone  = "timezone"
)

// Store wraps SQLite access for namespaced preferences.
type Store struct {
	db        *sql.DB
	namespace string
}

// Open opens or creates the preferences database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, namespace: Namespace}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS prefs (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (namespace, key)
	);`)
	return err
}

// GetString returns the value for key, or def when unset.
func (s *Store) GetString(ctx context.Context, key, def string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM prefs WHERE namespace = ? AND key = ?`, s.namespace, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return v, nil
}

// PutString stores value under key.
func (s *Store) PutString(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prefs (namespace, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value`,
		s.namespace, key, value)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// GetFloat returns the float value for key, or def when unset or unparsable.
func (s *Store) GetFloat(ctx context.Context, key string, def float32) (float32, error) {
	v, err := s.GetString(ctx, key, "")
	if err != nil {
		return def, err
	}
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return def, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	return float32(f), nil
}

// PutFloat stores a float value under key.
func (s *Store) PutFloat(ctx context.Context, key string, value float32) error {
	return s.PutString(ctx, key, strconv.FormatFloat(float64(value), 'g', -1, 32))
}

// Delete removes key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM prefs WHERE namespace = ? AND key = ?`, s.namespace, key)
	return err
}

// Keys returns all keys in the namespace.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM prefs WHERE namespace = ? ORDER BY key`, s.namespace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
