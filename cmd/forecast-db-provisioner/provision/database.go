package provision

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// CreateDatabase creates the journal database with UTF8 encoding
func CreateDatabase(cfg *Config) error {
	fmt.Println("🗄️  Creating Database")

	db, err := sql.Open("pgx", cfg.BuildAdminConnString("postgres"))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer db.Close()

	createDBSQL := fmt.Sprintf(`
		CREATE DATABASE %s
		ENCODING 'UTF8'
		TEMPLATE template0
	`, cfg.DBName)

	_, err = db.Exec(createDBSQL)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}

	fmt.Printf("✅ Database '%s' created with UTF8 encoding\n", cfg.DBName)
	fmt.Println()
	return nil
}

// DropExistingResources drops the database and user if present. The
// caller is responsible for confirming this with the operator first.
func DropExistingResources(cfg *Config) error {
	fmt.Println("🗑️  Dropping Existing Resources")

	db, err := sql.Open("pgx", cfg.BuildAdminConnString("postgres"))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer db.Close()

	// Terminate any open sessions so the DROP DATABASE doesn't block.
	_, err = db.Exec(`
		SELECT pg_terminate_backend(pid)
		FROM pg_stat_activity
		WHERE datname = $1 AND pid <> pg_backend_pid()
	`, cfg.DBName)
	if err != nil {
		return fmt.Errorf("failed to terminate existing sessions: %w", err)
	}

	if _, err = db.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s", cfg.DBName)); err != nil {
		return fmt.Errorf("failed to drop database: %w", err)
	}
	fmt.Printf("✅ Database '%s' dropped\n", cfg.DBName)

	if _, err = db.Exec(fmt.Sprintf("DROP USER IF EXISTS %s", cfg.DBUser)); err != nil {
		return fmt.Errorf("failed to drop user: %w", err)
	}
	fmt.Printf("✅ User '%s' dropped\n", cfg.DBUser)

	return nil
}
