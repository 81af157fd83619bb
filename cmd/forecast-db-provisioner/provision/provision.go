// Package provision creates the journal database, its owning role, and
// the grants the collector needs, against a stock PostgreSQL server.
package provision

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Config holds the provisioning configuration
type Config struct {
	PostgresHost     string
	PostgresPort     int
	PostgresAdmin    string
	PostgresPassword string
	DBName           string
	DBUser           string
	DBPassword       string
	SSLMode          string
}

// BuildAdminConnString builds a connection string for the admin user
// against the named database.
func (c *Config) BuildAdminConnString(dbname string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresAdmin, c.PostgresPassword, dbname, c.SSLMode)
}

// BuildAppConnString builds the connection string the collector will use.
func (c *Config) BuildAppConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.DBUser, c.DBPassword, c.DBName, c.SSLMode)
}

const (
	// PasswordLength is the default length for generated passwords
	PasswordLength = 24

	passwordCharset = "abcdefghijklmnopqrstuvwxyz" +
		"ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
		"0123456789" +
		"!@#$%^&*()-_=+"
)

// GeneratePassword generates a cryptographically secure random password
func GeneratePassword(length int) (string, error) {
	if length <= 0 {
		length = PasswordLength
	}

	password := make([]byte, length)
	charsetLen := big.NewInt(int64(len(passwordCharset)))

	for i := range password {
		num, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}
		password[i] = passwordCharset[num.Int64()]
	}

	return string(password), nil
}
