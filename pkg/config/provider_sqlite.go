package config

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteProvider implements ConfigProvider for SQLite database
// configuration. Managed deployments edit the database out of band; the
// collector only ever reads the row set named "default".
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider creates a new SQLite configuration provider
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads the complete configuration from the SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}

	sources, err := s.GetDataSources()
	if err != nil {
		return nil, fmt.Errorf("failed to load data sources: %w", err)
	}
	config.DataSources = sources

	database, err := s.GetDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load database config: %w", err)
	}
	config.Database = *database

	api, err := s.GetAPIConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load API config: %w", err)
	}
	config.API = api

	collector, err := s.GetCollectorConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load collector config: %w", err)
	}
	config.Collector = *collector

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// GetDataSources returns per-provider configurations from the database
func (s *SQLiteProvider) GetDataSources() (map[string]DataSourceData, error) {
	query := `
		SELECT name, api_key, enabled
		FROM data_source_configs
		WHERE config_id = (SELECT id FROM configs WHERE name = 'default')
		ORDER BY name
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query data source configs: %w", err)
	}
	defer rows.Close()

	sources := make(map[string]DataSourceData)
	for rows.Next() {
		var name string
		var apiKey sql.NullString
		var enabled sql.NullBool

		if err := rows.Scan(&name, &apiKey, &enabled); err != nil {
			return nil, fmt.Errorf("failed to scan data source row: %w", err)
		}

		source := DataSourceData{}
		if apiKey.Valid {
			source.APIKey = apiKey.String
		}
		if enabled.Valid {
			source.Enabled = &enabled.Bool
		}
		sources[name] = source
	}

	return sources, rows.Err()
}

// GetDatabaseConfig returns the journal database configuration
func (s *SQLiteProvider) GetDatabaseConfig() (*DatabaseData, error) {
	query := `
		SELECT connection_string
		FROM database_configs
		WHERE config_id = (SELECT id FROM configs WHERE name = 'default')
	`

	var connectionString sql.NullString
	err := s.db.QueryRow(query).Scan(&connectionString)
	if err != nil {
		if err == sql.ErrNoRows {
			return &DatabaseData{}, nil
		}
		return nil, fmt.Errorf("failed to query database config: %w", err)
	}

	return &DatabaseData{ConnectionString: connectionString.String}, nil
}

// GetAPIConfig returns the read API configuration, nil when absent
func (s *SQLiteProvider) GetAPIConfig() (*APIData, error) {
	query := `
		SELECT host, port
		FROM api_configs
		WHERE config_id = (SELECT id FROM configs WHERE name = 'default')
	`

	var host sql.NullString
	var port sql.NullInt64
	err := s.db.QueryRow(query).Scan(&host, &port)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query API config: %w", err)
	}

	return &APIData{
		Host: host.String,
		Port: int(port.Int64),
	}, nil
}

// GetCollectorConfig returns the collector configuration
func (s *SQLiteProvider) GetCollectorConfig() (*CollectorData, error) {
	query := `
		SELECT start_date, end_date, min_population, cache_dir
		FROM collector_configs
		WHERE config_id = (SELECT id FROM configs WHERE name = 'default')
	`

	var startDate, endDate, cacheDir sql.NullString
	var minPopulation sql.NullInt64
	err := s.db.QueryRow(query).Scan(&startDate, &endDate, &minPopulation, &cacheDir)
	if err != nil {
		if err == sql.ErrNoRows {
			return &CollectorData{}, nil
		}
		return nil, fmt.Errorf("failed to query collector config: %w", err)
	}

	return &CollectorData{
		StartDate:     startDate.String,
		EndDate:       endDate.String,
		MinPopulation: int(minPopulation.Int64),
		CacheDir:      cacheDir.String,
	}, nil
}

// IsReadOnly returns false since SQLite configuration can be modified
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveConfig saves a complete configuration to the database, creating the
// schema on first use.
func (s *SQLiteProvider) SaveConfig(configData *ConfigData) error {
	if err := s.ensureSchema(); err != nil {
		return fmt.Errorf("failed to create config schema: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	configID, err := s.insertConfig(tx, "default")
	if err != nil {
		return fmt.Errorf("failed to insert config: %w", err)
	}

	if err := s.clearExistingConfig(tx, configID); err != nil {
		return fmt.Errorf("failed to clear existing config: %w", err)
	}

	for name, source := range configData.DataSources {
		var enabled sql.NullBool
		if source.Enabled != nil {
			enabled = sql.NullBool{Bool: *source.Enabled, Valid: true}
		}
		_, err := tx.Exec(
			`INSERT INTO data_source_configs (config_id, name, api_key, enabled) VALUES (?, ?, ?, ?)`,
			configID, name, nullString(source.APIKey), enabled,
		)
		if err != nil {
			return fmt.Errorf("failed to insert data source %s: %w", name, err)
		}
	}

	_, err = tx.Exec(
		`INSERT INTO database_configs (config_id, connection_string) VALUES (?, ?)`,
		configID, configData.Database.ConnectionString,
	)
	if err != nil {
		return fmt.Errorf("failed to insert database config: %w", err)
	}

	if configData.API != nil {
		_, err = tx.Exec(
			`INSERT INTO api_configs (config_id, host, port) VALUES (?, ?, ?)`,
			configID, nullString(configData.API.Host), configData.API.Port,
		)
		if err != nil {
			return fmt.Errorf("failed to insert API config: %w", err)
		}
	}

	_, err = tx.Exec(
		`INSERT INTO collector_configs (config_id, start_date, end_date, min_population, cache_dir) VALUES (?, ?, ?, ?, ?)`,
		configID,
		nullString(configData.Collector.StartDate),
		nullString(configData.Collector.EndDate),
		configData.Collector.MinPopulation,
		nullString(configData.Collector.CacheDir),
	)
	if err != nil {
		return fmt.Errorf("failed to insert collector config: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteProvider) ensureSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS configs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS data_source_configs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			config_id INTEGER NOT NULL REFERENCES configs(id),
			name TEXT NOT NULL,
			api_key TEXT,
			enabled BOOLEAN
		)`,
		`CREATE TABLE IF NOT EXISTS database_configs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			config_id INTEGER NOT NULL REFERENCES configs(id),
			connection_string TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS api_configs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			config_id INTEGER NOT NULL REFERENCES configs(id),
			host TEXT,
			port INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS collector_configs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			config_id INTEGER NOT NULL REFERENCES configs(id),
			start_date TEXT,
			end_date TEXT,
			min_population INTEGER,
			cache_dir TEXT
		)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteProvider) insertConfig(tx *sql.Tx, name string) (int64, error) {
	query := `INSERT OR REPLACE INTO configs (name, created_at, updated_at) VALUES (?, datetime('now'), datetime('now'))`
	result, err := tx.Exec(query, name)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteProvider) clearExistingConfig(tx *sql.Tx, configID int64) error {
	queries := []string{
		"DELETE FROM data_source_configs WHERE config_id = ?",
		"DELETE FROM database_configs WHERE config_id = ?",
		"DELETE FROM api_configs WHERE config_id = ?",
		"DELETE FROM collector_configs WHERE config_id = ?",
	}

	for _, query := range queries {
		if _, err := tx.Exec(query, configID); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
