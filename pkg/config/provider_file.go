package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

// FileProvider implements ConfigProvider for YAML and JSON configuration
// files. The format is chosen by file extension; anything that is not
// .json is parsed as YAML.
type FileProvider struct {
	filename string
	config   *ConfigData
}

// NewFileProvider creates a new file-backed configuration provider
func NewFileProvider(filename string) *FileProvider {
	return &FileProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from the file
func (f *FileProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(f.filename)
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("reading %s: %v", f.filename, err)}
	}

	var config *ConfigData
	if strings.EqualFold(filepath.Ext(f.filename), ".json") {
		config = &ConfigData{}
		if err := json.Unmarshal(cfgFile, config); err != nil {
			return nil, &ConfigError{Reason: fmt.Sprintf("parsing %s: %v", f.filename, err)}
		}
	} else {
		config, err = parseYAML(cfgFile)
		if err != nil {
			return nil, &ConfigError{Reason: fmt.Sprintf("parsing %s: %v", f.filename, err)}
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	f.config = config
	return config, nil
}

// GetDataSources returns per-provider configurations
func (f *FileProvider) GetDataSources() (map[string]DataSourceData, error) {
	if f.config == nil {
		_, err := f.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return f.config.DataSources, nil
}

// GetDatabaseConfig returns the journal database configuration
func (f *FileProvider) GetDatabaseConfig() (*DatabaseData, error) {
	if f.config == nil {
		_, err := f.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return &f.config.Database, nil
}

// GetAPIConfig returns the read API configuration, nil when unset
func (f *FileProvider) GetAPIConfig() (*APIData, error) {
	if f.config == nil {
		_, err := f.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return f.config.API, nil
}

// GetCollectorConfig returns the collector configuration
func (f *FileProvider) GetCollectorConfig() (*CollectorData, error) {
	if f.config == nil {
		_, err := f.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return &f.config.Collector, nil
}

// IsReadOnly returns true since config files are read-only through this interface
func (f *FileProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for the file provider
func (f *FileProvider) Close() error {
	return nil
}

// parseYAML loads the YAML form into the internal format
func parseYAML(raw []byte) (*ConfigData, error) {
	var yamlConfig struct {
		DataSources map[string]DataSourceYAML `yaml:"data_sources"`
		Database    DatabaseYAML              `yaml:"db"`
		API         *APIYAML                  `yaml:"api,omitempty"`
		Collector   CollectorYAML             `yaml:"collector,omitempty"`
	}

	if err := yaml.Unmarshal(raw, &yamlConfig); err != nil {
		return nil, err
	}

	config := &ConfigData{
		DataSources: make(map[string]DataSourceData, len(yamlConfig.DataSources)),
		Database: DatabaseData{
			ConnectionString: yamlConfig.Database.ConnectionString,
		},
		Collector: CollectorData{
			StartDate:     yamlConfig.Collector.StartDate,
			EndDate:       yamlConfig.Collector.EndDate,
			MinPopulation: yamlConfig.Collector.MinPopulation,
			CacheDir:      yamlConfig.Collector.CacheDir,
		},
	}

	for name, source := range yamlConfig.DataSources {
		config.DataSources[name] = DataSourceData{
			APIKey:  source.APIKey,
			Enabled: source.Enabled,
		}
	}

	if yamlConfig.API != nil {
		config.API = &APIData{
			Host: yamlConfig.API.Host,
			Port: yamlConfig.API.Port,
		}
	}

	return config, nil
}

// YAML-specific structs with proper YAML tags for parsing the file format
type DataSourceYAML struct {
	APIKey  string `yaml:"api_key,omitempty"`
	Enabled *bool  `yaml:"enabled,omitempty"`
}

type DatabaseYAML struct {
	ConnectionString string `yaml:"connection_string"`
}

type APIYAML struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port"`
}

type CollectorYAML struct {
	StartDate     string `yaml:"start_date,omitempty"`
	EndDate       string `yaml:"end_date,omitempty"`
	MinPopulation int    `yaml:"min_population,omitempty"`
	CacheDir      string `yaml:"cache_dir,omitempty"`
}
