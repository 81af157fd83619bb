// Command forecast-db-provisioner creates the PostgreSQL database and
// role the collection pipeline writes to, grants the needed privileges,
// and optionally records the connection string in a SQLite config.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/lplpqq/forecast/cmd/forecast-db-provisioner/provision"
	"github.com/lplpqq/forecast/pkg/config"
)

const (
	defaultDBName    = "forecast"
	defaultDBUser    = "forecast"
	defaultHost      = "localhost"
	defaultPort      = 5432
	defaultSSLMode   = "prefer"
	defaultAdminUser = "postgres"
)

func main() {
	dbName := flag.String("db-name", defaultDBName, "Database name to create")
	dbUser := flag.String("db-user", defaultDBUser, "Database user to create")
	postgresHost := flag.String("postgres-host", defaultHost, "PostgreSQL host")
	postgresPort := flag.Int("postgres-port", defaultPort, "PostgreSQL port")
	postgresAdmin := flag.String("postgres-admin", defaultAdminUser, "PostgreSQL admin user")
	postgresAdminPassword := flag.String("postgres-admin-password", "", "PostgreSQL admin password (or use POSTGRES_ADMIN_PASSWORD env var)")
	sslMode := flag.String("ssl-mode", defaultSSLMode, "SSL mode (disable, require, prefer)")
	configDB := flag.String("config-db", "", "Optional SQLite config to record the connection string in")
	interactive := flag.Bool("interactive", false, "Prompt for the admin user before provisioning")
	dropExisting := flag.Bool("drop-existing", false, "Drop the existing database and user first (DESTRUCTIVE)")
	flag.Parse()

	fmt.Println("🚀 forecast Database Provisioner")
	fmt.Println("================================")
	fmt.Println()

	adminPassword := *postgresAdminPassword
	if adminPassword == "" {
		adminPassword = os.Getenv("POSTGRES_ADMIN_PASSWORD")
	}

	fmt.Println("Configuration:")
	fmt.Printf("  PostgreSQL Host: %s:%d\n", *postgresHost, *postgresPort)
	fmt.Printf("  Database Name: %s\n", *dbName)
	fmt.Printf("  Database User: %s\n", *dbUser)
	fmt.Printf("  SSL Mode: %s\n", *sslMode)
	fmt.Println()

	admin := *postgresAdmin
	if *interactive {
		reader := bufio.NewReader(os.Stdin)
		fmt.Printf("PostgreSQL admin user [%s]: ", admin)
		input, _ := reader.ReadString('\n')
		if input = strings.TrimSpace(input); input != "" {
			admin = input
		}
		fmt.Println()
	}

	dbPassword, err := provision.GeneratePassword(provision.PasswordLength)
	if err != nil {
		fatal("Failed to generate password: %v", err)
	}

	cfg := &provision.Config{
		PostgresHost:     *postgresHost,
		PostgresPort:     *postgresPort,
		PostgresAdmin:    admin,
		PostgresPassword: adminPassword,
		DBName:           *dbName,
		DBUser:           *dbUser,
		DBPassword:       dbPassword,
		SSLMode:          *sslMode,
	}

	if *dropExisting {
		confirmDrop(cfg)
		if err := provision.DropExistingResources(cfg); err != nil {
			fatal("Failed to drop existing resources: %v", err)
		}
		fmt.Println()
	}

	if err := provision.PreflightChecks(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if err := provision.CreateDatabase(cfg); err != nil {
		fatal("Failed to create database: %v", err)
	}
	if err := provision.CreateUser(cfg); err != nil {
		fatal("Failed to create user: %v", err)
	}

	fmt.Println("🔍 Verifying Connection")
	if err := provision.TestConnection(cfg); err != nil {
		fatal("Connection test failed: %v", err)
	}
	fmt.Println("✅ Connection verified")
	fmt.Println()

	if *configDB != "" {
		if err := updateConfigDB(*configDB, cfg); err != nil {
			fatal("Failed to update config database: %v", err)
		}
		fmt.Printf("✅ Connection string saved to %s\n", *configDB)
		fmt.Println()
	}

	fmt.Println("✅ Provisioning Complete!")
	fmt.Println()
	fmt.Printf("  Generated password for '%s': %s\n", cfg.DBUser, dbPassword)
	fmt.Println("  ⚠️  Save it now; it won't be shown again.")
	fmt.Println()
	fmt.Println("Connection string for config:")
	fmt.Printf("  %s\n", cfg.BuildAppConnString())
	fmt.Println()
	fmt.Println("The collector creates its tables on first run.")
}

// confirmDrop requires an explicit "yes" before destroying anything.
func confirmDrop(cfg *provision.Config) {
	fmt.Println("⚠️  DESTRUCTIVE OPERATION WARNING")
	fmt.Println("=================================")
	fmt.Println()
	fmt.Printf("This will DROP the following resources if they exist:\n")
	fmt.Printf("  • Database: %s\n", cfg.DBName)
	fmt.Printf("  • User: %s\n", cfg.DBUser)
	fmt.Println()
	fmt.Println("⚠️  ALL DATA IN THE DATABASE WILL BE PERMANENTLY DELETED")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Type 'yes' to confirm you understand and want to proceed: ")
	confirmation, _ := reader.ReadString('\n')
	if strings.TrimSpace(confirmation) != "yes" {
		fmt.Println("❌ Operation cancelled")
		os.Exit(0)
	}
	fmt.Println()
}

// updateConfigDB writes the freshly provisioned connection string into a
// SQLite configuration, preserving any sections already stored there.
func updateConfigDB(path string, cfg *provision.Config) error {
	provider, err := config.NewSQLiteProvider(path)
	if err != nil {
		return err
	}
	defer provider.Close()

	// Assemble whatever is already stored; a fresh database has no
	// schema yet, so fall back to an empty configuration.
	stored := &config.ConfigData{}
	if sources, err := provider.GetDataSources(); err == nil {
		stored.DataSources = sources
	}
	if api, err := provider.GetAPIConfig(); err == nil {
		stored.API = api
	}
	if coll, err := provider.GetCollectorConfig(); err == nil && coll != nil {
		stored.Collector = *coll
	}

	stored.Database.ConnectionString = cfg.BuildAppConnString()
	return provider.SaveConfig(stored)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "❌ "+format+"\n", args...)
	os.Exit(1)
}
