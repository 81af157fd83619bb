// Package database implements the journal store: a GORM client over
// PostgreSQL holding the city catalog, the hourly weather journal, and
// per-run collection summaries.
package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lplpqq/forecast/internal/log"
	"go.uber.org/zap"
)

// uniqueViolation is the PostgreSQL SQLSTATE raised when an insert trips
// the journal's composite unique index.
const uniqueViolation = "23505"

// Client holds the connection to the journal database
type Client struct {
	DB *gorm.DB // Exported so it can be accessed from other packages

	connectionString string
	maxSessions      int
	logger           *zap.SugaredLogger
}

// NewClient creates a new database client. maxSessions should match the
// collector's session semaphore so the pool never turns permits away.
func NewClient(connectionString string, maxSessions int, logger *zap.SugaredLogger) *Client {
	return &Client{
		connectionString: connectionString,
		maxSessions:      maxSessions,
		logger:           logger,
	}
}

// Connect connects to the journal database
func (c *Client) Connect() error {
	// Create a logger for gorm
	dbLogger := logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logger.Warn, // Log level
			IgnoreRecordNotFoundError: true,        // Ignore ErrRecordNotFound error for logger
			Colorful:                  true,        // Use colors
		},
	)

	log.Info("connecting to the journal database...")
	db, err := gorm.Open(postgres.Open(c.connectionString), &gorm.Config{Logger: dbLogger})
	if err != nil {
		log.Warn("warning: unable to create a journal database connection:", err)
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("error acquiring underlying connection pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(c.maxSessions)
	sqlDB.SetMaxIdleConns(c.maxSessions / 2)
	sqlDB.SetConnMaxLifetime(time.Hour)

	c.DB = db
	log.Info("journal database connection successful")

	return nil
}

// CreateTables creates or migrates the journal schema
func (c *Client) CreateTables() error {
	if err := c.DB.AutoMigrate(&City{}); err != nil {
		return fmt.Errorf("error creating or migrating city table: %v", err)
	}
	if err := c.DB.AutoMigrate(&WeatherJournal{}); err != nil {
		return fmt.Errorf("error creating or migrating weather journal table: %v", err)
	}
	if err := c.DB.AutoMigrate(&CollectionRun{}); err != nil {
		return fmt.Errorf("error creating or migrating collection runs table: %v", err)
	}
	return nil
}

// Close releases the underlying connection pool
func (c *Client) Close() error {
	if c.DB == nil {
		return nil
	}
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// IsIntegrityError reports whether err is a uniqueness violation. The
// collector treats these as "another worker already stored this batch".
func IsIntegrityError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
