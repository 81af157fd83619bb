package provision

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// CreateUser creates the database user with the generated password and
// grants the privileges the collector and read API need.
func CreateUser(cfg *Config) error {
	fmt.Println("👤 Creating User")

	db, err := sql.Open("pgx", cfg.BuildAdminConnString("postgres"))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer db.Close()

	createUserSQL := fmt.Sprintf("CREATE USER %s WITH PASSWORD '%s'", cfg.DBUser, cfg.DBPassword)
	if _, err = db.Exec(createUserSQL); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	fmt.Printf("✅ User '%s' created\n", cfg.DBUser)

	if err := grantPrivileges(cfg); err != nil {
		return err
	}

	fmt.Println()
	return nil
}

// grantPrivileges grants all necessary privileges to the database user
func grantPrivileges(cfg *Config) error {
	db, err := sql.Open("pgx", cfg.BuildAdminConnString("postgres"))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer db.Close()

	grantDBSQL := fmt.Sprintf("GRANT ALL PRIVILEGES ON DATABASE %s TO %s", cfg.DBName, cfg.DBUser)
	if _, err = db.Exec(grantDBSQL); err != nil {
		return fmt.Errorf("failed to grant database privileges: %w", err)
	}
	fmt.Println("✅ Database privileges granted")

	// Schema-level grants have to run inside the target database.
	targetDB, err := sql.Open("pgx", cfg.BuildAdminConnString(cfg.DBName))
	if err != nil {
		return fmt.Errorf("failed to connect to target database: %w", err)
	}
	defer targetDB.Close()

	grants := []string{
		fmt.Sprintf("GRANT ALL ON SCHEMA public TO %s", cfg.DBUser),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL ON TABLES TO %s", cfg.DBUser),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL ON SEQUENCES TO %s", cfg.DBUser),
	}
	for _, grant := range grants {
		if _, err = targetDB.Exec(grant); err != nil {
			return fmt.Errorf("failed to grant schema privileges: %w", err)
		}
	}
	fmt.Println("✅ Schema and default privileges granted")

	return nil
}
