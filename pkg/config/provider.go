// Package config defines the configuration surface of the collection
// pipeline and the backends that load it. Configuration can come from a
// YAML or JSON file or from a SQLite database for managed deployments.
package config

import (
	"fmt"
	"time"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetDataSources() (map[string]DataSourceData, error)
	GetDatabaseConfig() (*DatabaseData, error)
	GetAPIConfig() (*APIData, error)
	GetCollectorConfig() (*CollectorData, error)

	// Configuration management (for future SQLite-specific operations)
	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	DataSources map[string]DataSourceData `json:"data_sources"`
	Database    DatabaseData              `json:"db"`
	API         *APIData                  `json:"api,omitempty"`
	Collector   CollectorData             `json:"collector,omitempty"`
}

// DataSourceData holds the per-provider settings. API keys only ever live
// here; nothing in the codebase carries a default key.
type DataSourceData struct {
	APIKey  string `json:"api_key,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// DatabaseData holds the journal database settings
type DatabaseData struct {
	ConnectionString string `json:"connection_string"`
}

// APIData holds the read API settings. A nil APIData disables the server.
type APIData struct {
	Host string `json:"host,omitempty"`
	Port int    `json:"port"`
}

// CollectorData holds the gathering window and catalog knobs
type CollectorData struct {
	StartDate     string `json:"start_date,omitempty"` // YYYY-MM-DD
	EndDate       string `json:"end_date,omitempty"`   // YYYY-MM-DD
	MinPopulation int    `json:"min_population,omitempty"`
	CacheDir      string `json:"cache_dir,omitempty"`
}

// Collector defaults, applied by Validate when the section is empty.
const (
	DefaultMinPopulation = 1000
	DefaultWindowYears   = 2
)

// ConfigError describes a configuration problem found at load or
// validation time. The process treats it as fatal.
type ConfigError struct {
	Section string
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("invalid configuration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid configuration (%s): %s", e.Section, e.Reason)
}

// Validate checks the loaded configuration and fills in collector
// defaults. The gathering window defaults to the last two full years.
func (c *ConfigData) Validate() error {
	if c.Database.ConnectionString == "" {
		return &ConfigError{Section: "db", Reason: "connection_string is required"}
	}
	if c.API != nil && (c.API.Port < 1 || c.API.Port > 65535) {
		return &ConfigError{Section: "api", Reason: fmt.Sprintf("port %d out of range", c.API.Port)}
	}

	if c.Collector.MinPopulation == 0 {
		c.Collector.MinPopulation = DefaultMinPopulation
	}
	if c.Collector.MinPopulation < 0 {
		return &ConfigError{Section: "collector", Reason: "min_population must not be negative"}
	}

	now := time.Now().UTC()
	if c.Collector.StartDate == "" {
		c.Collector.StartDate = now.AddDate(-DefaultWindowYears, 0, 0).Format("2006-01-02")
	}
	if c.Collector.EndDate == "" {
		c.Collector.EndDate = now.Format("2006-01-02")
	}

	if _, _, err := c.Collector.Window(); err != nil {
		return err
	}
	return nil
}

// Window parses the configured gathering window. Both dates are
// interpreted as midnight UTC.
func (c *CollectorData) Window() (start, end time.Time, err error) {
	start, err = time.Parse("2006-01-02", c.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, &ConfigError{Section: "collector", Reason: fmt.Sprintf("bad start_date %q", c.StartDate)}
	}
	end, err = time.Parse("2006-01-02", c.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, &ConfigError{Section: "collector", Reason: fmt.Sprintf("bad end_date %q", c.EndDate)}
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, &ConfigError{Section: "collector", Reason: "end_date precedes start_date"}
	}
	return start.UTC(), end.UTC(), nil
}

// SourceEnabled reports whether a data source should be constructed. A
// source is enabled unless the config explicitly disables it.
func (d DataSourceData) SourceEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}
