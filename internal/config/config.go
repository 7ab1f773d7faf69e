// Package config loads the JSON tuning file for the recorder and sync engine.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds the recorder tuning and sync settings. Every field is
// optional; the Get* accessors supply defaults for omitted values so partial
// files are safe.
type Config struct {
	// Point filter
	MaxAccuracyMeters  *float64 `json:"max_accuracy_meters,omitempty"`
	MinPointDistanceKm *float64 `json:"min_point_distance_km,omitempty"`

	// Stop detection
	StopRadiusKm           *float64 `json:"stop_radius_km,omitempty"`
	StopMinDurationMinutes *float64 `json:"stop_min_duration_minutes,omitempty"`

	// Durations are strings like "1s" or "15s"
	TickInterval      *string `json:"tick_interval,omitempty"`
	SyncTimeout       *string `json:"sync_timeout,omitempty"`
	ReconcileInterval *string `json:"reconcile_interval,omitempty"`
	SnapshotInterval  *string `json:"snapshot_interval,omitempty"`

	// Remote persistence service
	RemoteURL   *string `json:"remote_url,omitempty"`
	RemoteToken *string `json:"remote_token,omitempty"`

	// Roles allowed to start a recording
	AllowedRoles []string `json:"allowed_roles,omitempty"`
}

const maxFileSize = 1 * 1024 * 1024

// Empty returns a Config with every field unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file. The path must have a .json
// extension and the file must be under 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that are set.
func (c *Config) Validate() error {
	if c.MaxAccuracyMeters != nil && *c.MaxAccuracyMeters <= 0 {
		return fmt.Errorf("max_accuracy_meters must be positive, got %f", *c.MaxAccuracyMeters)
	}
	if c.MinPointDistanceKm != nil && *c.MinPointDistanceKm < 0 {
		return fmt.Errorf("min_point_distance_km must be non-negative, got %f", *c.MinPointDistanceKm)
	}
	if c.StopRadiusKm != nil && *c.StopRadiusKm <= 0 {
		return fmt.Errorf("stop_radius_km must be positive, got %f", *c.StopRadiusKm)
	}
	if c.StopMinDurationMinutes != nil && *c.StopMinDurationMinutes <= 0 {
		return fmt.Errorf("stop_min_duration_minutes must be positive, got %f", *c.StopMinDurationMinutes)
	}

	durations := map[string]*string{
		"tick_interval":      c.TickInterval,
		"sync_timeout":       c.SyncTimeout,
		"reconcile_interval": c.ReconcileInterval,
		"snapshot_interval":  c.SnapshotInterval,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 || (d == 0 && name != "snapshot_interval") {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}
	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetMaxAccuracyMeters returns the accuracy rejection threshold.
func (c *Config) GetMaxAccuracyMeters() float64 {
	if c.MaxAccuracyMeters == nil {
		return 50
	}
	return *c.MaxAccuracyMeters
}

// GetMinPointDistanceKm returns the minimum displacement for a fix to be kept.
func (c *Config) GetMinPointDistanceKm() float64 {
	if c.MinPointDistanceKm == nil {
		return 0.010
	}
	return *c.MinPointDistanceKm
}

func (c *Config) GetStopRadiusKm() float64 {
	if c.StopRadiusKm == nil {
		return 0.03
	}
	return *c.StopRadiusKm
}

func (c *Config) GetStopMinDurationMinutes() float64 {
	if c.StopMinDurationMinutes == nil {
		return 1
	}
	return *c.StopMinDurationMinutes
}

func (c *Config) GetTickInterval() time.Duration {
	return durationOr(c.TickInterval, time.Second)
}

// GetSyncTimeout bounds a single remote write.
func (c *Config) GetSyncTimeout() time.Duration {
	return durationOr(c.SyncTimeout, 15*time.Second)
}

func (c *Config) GetReconcileInterval() time.Duration {
	return durationOr(c.ReconcileInterval, 5*time.Minute)
}

// GetSnapshotInterval is the minimum gap between active-session snapshots.
// Zero snapshots after every accepted point.
func (c *Config) GetSnapshotInterval() time.Duration {
	return durationOr(c.SnapshotInterval, 0)
}

func (c *Config) GetRemoteURL() string {
	if c.RemoteURL == nil {
		return ""
	}
	return *c.RemoteURL
}

func (c *Config) GetRemoteToken() string {
	if c.RemoteToken == nil {
		return ""
	}
	return *c.RemoteToken
}

// GetAllowedRoles returns the roles allowed to record.
func (c *Config) GetAllowedRoles() []string {
	if len(c.AllowedRoles) == 0 {
		return []string{"admin", "technician"}
	}
	return append([]string(nil), c.AllowedRoles...)
}
