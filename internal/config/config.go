// Package config holds the bridge's static run configuration. There is
// no dynamic reconfiguration: values are read once at startup from
// defaults, optionally overlaid by a JSON file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/crosswalk-data/aeb.report/internal/units"
)

// Defaults for the cyclist-crossing scenario. The tick period is the
// simulated timestep mirrored onto the wall clock; the receive timeout
// is half a tick so a silent controller can never stall the loop.
const (
	DefaultListenAddr        = ":9001"
	DefaultHTTPAddr          = ":8080"
	DefaultTickPeriod        = "50ms"
	DefaultReceiveTimeout    = "50ms"
	DefaultWarmupSeconds     = 2.0
	DefaultWarnDistance      = 15.0
	DefaultBrakeDistance     = 8.0
	DefaultCollisionDistance = 2.5
	DefaultBrakeReference    = 8.0
	DefaultMaxDeceleration   = 0.8
	DefaultDBPath            = "aeb_runs.db"
	DefaultReportDir         = "reports"
	DefaultDisplayUnits      = units.KMPH
)

// Config is the root configuration. All fields are pointers so a
// partial JSON file only overrides what it names; the Get* accessors
// supply defaults for the rest.
type Config struct {
	// Link params
	ListenAddr     *string `json:"listen_addr,omitempty"`
	ReceiveTimeout *string `json:"receive_timeout,omitempty"` // duration string like "50ms"

	// Loop params
	TickPeriod    *string  `json:"tick_period,omitempty"` // duration string like "50ms"
	WarmupSeconds *float64 `json:"warmup_seconds,omitempty"`

	// Fallback policy params (metres except max_deceleration)
	WarnDistance      *float64 `json:"warn_distance,omitempty"`
	BrakeDistance     *float64 `json:"brake_distance,omitempty"`
	CollisionDistance *float64 `json:"collision_distance,omitempty"`
	BrakeReference    *float64 `json:"brake_reference,omitempty"`
	MaxDeceleration   *float64 `json:"max_deceleration,omitempty"`

	// Sink params
	HTTPAddr     *string `json:"http_addr,omitempty"`
	DBPath       *string `json:"db_path,omitempty"`
	ReportDir    *string `json:"report_dir,omitempty"`
	DisplayUnits *string `json:"display_units,omitempty"`

	// Built-in world geometry overrides (metres along the approach
	// axis, m/s). Unset fields keep the crossing-scenario defaults.
	EgoStartY    *float64 `json:"ego_start_y,omitempty"`
	LeadStartY   *float64 `json:"lead_start_y,omitempty"`
	EgoTopSpeed  *float64 `json:"ego_top_speed,omitempty"`
	LeadTopSpeed *float64 `json:"lead_top_speed,omitempty"`
}

// Empty returns a Config with every field unset; accessors fall back
// to the defaults above.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file. Omitted fields keep their
// defaults, so partial configs are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
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

func (c *Config) GetListenAddr() string {
	if c.ListenAddr != nil {
		return *c.ListenAddr
	}
	return DefaultListenAddr
}

func (c *Config) GetHTTPAddr() string {
	if c.HTTPAddr != nil {
		return *c.HTTPAddr
	}
	return DefaultHTTPAddr
}

// GetTickPeriod returns the wall-clock pacing period, falling back to
// the default on a missing or unparsable value.
func (c *Config) GetTickPeriod() time.Duration {
	return c.duration(c.TickPeriod, DefaultTickPeriod)
}

// GetReceiveTimeout returns the bounded per-tick receive wait.
func (c *Config) GetReceiveTimeout() time.Duration {
	return c.duration(c.ReceiveTimeout, DefaultReceiveTimeout)
}

// GetTimestep is the simulated seconds advanced per tick, derived from
// the tick period so simulated and wall time stay 1:1.
func (c *Config) GetTimestep() float64 {
	return c.GetTickPeriod().Seconds()
}

func (c *Config) GetWarmupSeconds() float64 {
	if c.WarmupSeconds != nil {
		return *c.WarmupSeconds
	}
	return DefaultWarmupSeconds
}

func (c *Config) GetWarnDistance() float64 {
	if c.WarnDistance != nil {
		return *c.WarnDistance
	}
	return DefaultWarnDistance
}

func (c *Config) GetBrakeDistance() float64 {
	if c.BrakeDistance != nil {
		return *c.BrakeDistance
	}
	return DefaultBrakeDistance
}

func (c *Config) GetCollisionDistance() float64 {
	if c.CollisionDistance != nil {
		return *c.CollisionDistance
	}
	return DefaultCollisionDistance
}

func (c *Config) GetBrakeReference() float64 {
	if c.BrakeReference != nil {
		return *c.BrakeReference
	}
	return DefaultBrakeReference
}

func (c *Config) GetMaxDeceleration() float64 {
	if c.MaxDeceleration != nil {
		return *c.MaxDeceleration
	}
	return DefaultMaxDeceleration
}

func (c *Config) GetDBPath() string {
	if c.DBPath != nil {
		return *c.DBPath
	}
	return DefaultDBPath
}

func (c *Config) GetReportDir() string {
	if c.ReportDir != nil {
		return *c.ReportDir
	}
	return DefaultReportDir
}

func (c *Config) GetDisplayUnits() string {
	if c.DisplayUnits != nil {
		return *c.DisplayUnits
	}
	return DefaultDisplayUnits
}

// Validate rejects configurations the decision loop cannot run with:
// unordered distance thresholds, non-positive periods, a deceleration
// cap outside (0,1] or an unknown display unit.
func (c *Config) Validate() error {
	if c.TickPeriod != nil {
		if d, err := time.ParseDuration(*c.TickPeriod); err != nil || d <= 0 {
			return fmt.Errorf("tick_period must be a positive duration, got %q", *c.TickPeriod)
		}
	}
	if c.ReceiveTimeout != nil {
		if d, err := time.ParseDuration(*c.ReceiveTimeout); err != nil || d <= 0 {
			return fmt.Errorf("receive_timeout must be a positive duration, got %q", *c.ReceiveTimeout)
		}
	}
	if c.WarmupSeconds != nil && *c.WarmupSeconds < 0 {
		return fmt.Errorf("warmup_seconds must be non-negative, got %v", *c.WarmupSeconds)
	}

	collision := c.GetCollisionDistance()
	brake := c.GetBrakeDistance()
	warn := c.GetWarnDistance()
	if collision <= 0 || brake <= 0 || warn <= 0 {
		return fmt.Errorf("distance thresholds must be positive (collision=%v brake=%v warn=%v)", collision, brake, warn)
	}
	if !(collision < brake && brake <= warn) {
		return fmt.Errorf("distance thresholds must satisfy collision < brake <= warn (collision=%v brake=%v warn=%v)", collision, brake, warn)
	}
	if c.BrakeReference != nil && *c.BrakeReference <= 0 {
		return fmt.Errorf("brake_reference must be positive, got %v", *c.BrakeReference)
	}
	if d := c.GetMaxDeceleration(); d <= 0 || d > 1 {
		return fmt.Errorf("max_deceleration must be in (0,1], got %v", d)
	}
	if u := c.GetDisplayUnits(); !units.IsValid(u) {
		return fmt.Errorf("display_units must be one of %v, got %q", units.ValidUnits, u)
	}
	if c.EgoTopSpeed != nil && *c.EgoTopSpeed <= 0 {
		return fmt.Errorf("ego_top_speed must be positive, got %v", *c.EgoTopSpeed)
	}
	if c.LeadTopSpeed != nil && *c.LeadTopSpeed <= 0 {
		return fmt.Errorf("lead_top_speed must be positive, got %v", *c.LeadTopSpeed)
	}
	if c.EgoStartY != nil && c.LeadStartY != nil && *c.LeadStartY <= *c.EgoStartY {
		return fmt.Errorf("lead_start_y must be ahead of ego_start_y (got ego=%v lead=%v)", *c.EgoStartY, *c.LeadStartY)
	}
	return nil
}

func (c *Config) duration(field *string, fallback string) time.Duration {
	if field != nil {
		if d, err := time.ParseDuration(*field); err == nil && d > 0 {
			return d
		}
	}
	d, _ := time.ParseDuration(fallback)
	return d
}
