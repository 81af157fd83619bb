package database

import (
	"time"

	"github.com/jackc/pgtype"
	"gorm.io/gorm"
)

// City is one row of the simplemaps-derived city catalog. Rows are
// inserted by the catalog loader and never mutated afterwards.
type City struct {
	ID         uint    `gorm:"primaryKey;autoIncrement"`
	Name       string  `gorm:"not null;index"`
	Country    string  `gorm:"not null"`
	Latitude   float64 `gorm:"uniqueIndex:idx_city_coordinate;not null"`
	Longitude  float64 `gorm:"uniqueIndex:idx_city_coordinate;not null"`
	Population int64   `gorm:"not null"`
}

// TableName specifies the table name for City
func (City) TableName() string {
	return "city"
}

// WeatherJournal is one hourly observation of one city from one data
// source. The composite unique index is what makes re-runs idempotent:
// a (city, date, source) triple can only ever be stored once.
type WeatherJournal struct {
	gorm.Model

	CityID     uint      `gorm:"uniqueIndex:idx_journal_city_date_source;index;not null"`
	City       City      `gorm:"constraint:OnDelete:CASCADE"`
	Date       time.Time `gorm:"uniqueIndex:idx_journal_city_date_source;index;not null"`
	DataSource string    `gorm:"uniqueIndex:idx_journal_city_date_source;not null"`

	Temperature         float64 `gorm:"not null"`
	ApparentTemperature *float64
	Pressure            float64 `gorm:"not null"`
	WindSpeed           float64 `gorm:"not null"`
	WindGustSpeed       *float64
	WindDirection       float64 `gorm:"not null"`
	Humidity            float64 `gorm:"not null"`
	Clouds              *float64
	Precipitation       *float64
	Snow                *int
}

// TableName specifies the table name for WeatherJournal
func (WeatherJournal) TableName() string {
	return "weather_journal"
}

// CollectionRun records one collector execution: the requested window and
// per-provider outcome counts, kept as JSONB for ad-hoc querying.
type CollectionRun struct {
	gorm.Model

	RunID      string       `gorm:"uniqueIndex;not null"`
	StartedAt  time.Time    `gorm:"not null"`
	FinishedAt time.Time    `gorm:"not null"`
	StartDate  time.Time    `gorm:"not null"`
	EndDate    time.Time    `gorm:"not null"`
	Succeeded  int          `gorm:"not null"`
	Skipped    int          `gorm:"not null"`
	Summary    pgtype.JSONB `gorm:"type:jsonb;default:'{}';not null"`
}

// TableName specifies the table name for CollectionRun
func (CollectionRun) TableName() string {
	return "collection_runs"
}
