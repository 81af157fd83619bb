package provision

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PreflightChecks verifies the server is reachable and the target
// database and role do not already exist.
func PreflightChecks(cfg *Config) error {
	fmt.Println("🔍 Pre-flight Checks")

	if err := checkPostgreSQLConnection(cfg); err != nil {
		return fmt.Errorf("❌ PostgreSQL connection failed: %w", err)
	}
	fmt.Println("✅ PostgreSQL connection successful")

	conflicts, err := CheckExistingResources(cfg)
	if err != nil {
		return fmt.Errorf("❌ Failed to check existing resources: %w", err)
	}
	if conflicts {
		return fmt.Errorf("❌ Database or user already exists (use --drop-existing to replace them)")
	}
	fmt.Println("✅ No existing database/user conflicts")

	fmt.Println()
	return nil
}

// checkPostgreSQLConnection verifies PostgreSQL is accessible
func checkPostgreSQLConnection(cfg *Config) error {
	db, err := sql.Open("pgx", cfg.BuildAdminConnString("postgres"))
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Ping()
}

// CheckExistingResources reports whether the database or user already
// exists.
func CheckExistingResources(cfg *Config) (bool, error) {
	db, err := sql.Open("pgx", cfg.BuildAdminConnString("postgres"))
	if err != nil {
		return false, err
	}
	defer db.Close()

	var dbExists bool
	err = db.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", cfg.DBName).Scan(&dbExists)
	if err != nil {
		return false, err
	}

	var userExists bool
	err = db.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_roles WHERE rolname = $1)", cfg.DBUser).Scan(&userExists)
	if err != nil {
		return false, err
	}

	if dbExists {
		fmt.Printf("⚠️  Database '%s' already exists\n", cfg.DBName)
	}
	if userExists {
		fmt.Printf("⚠️  User '%s' already exists\n", cfg.DBUser)
	}

	return dbExists || userExists, nil
}

// TestConnection connects as the application user and verifies it can
// create tables, which AutoMigrate will do on first run.
func TestConnection(cfg *Config) error {
	db, err := sql.Open("pgx", cfg.BuildAppConnString())
	if err != nil {
		return fmt.Errorf("failed to open connection: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	_, err = db.Exec("CREATE TABLE IF NOT EXISTS _provisioner_test (id SERIAL PRIMARY KEY)")
	if err != nil {
		return fmt.Errorf("failed to create test table: %w", err)
	}
	_, err = db.Exec("DROP TABLE IF EXISTS _provisioner_test")
	if err != nil {
		return fmt.Errorf("failed to drop test table: %w", err)
	}

	return nil
}
