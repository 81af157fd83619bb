package database

import (
	"context"
	"fmt"
	"time"

	"github.com/lplpqq/forecast/internal/log"
	"github.com/lplpqq/forecast/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LoadCities returns the city catalog ordered by population, largest first
func (c *Client) LoadCities(ctx context.Context) ([]City, error) {
	var cities []City
	err := c.DB.WithContext(ctx).Order("population DESC").Find(&cities).Error
	if err != nil {
		return nil, fmt.Errorf("error loading city catalog: %v", err)
	}
	return cities, nil
}

// InsertNewCities stores the catalog rows whose (latitude, longitude) is
// not in the table yet. Re-running with the same input inserts nothing.
func (c *Client) InsertNewCities(ctx context.Context, cities []City) (int, error) {
	var existing []City
	err := c.DB.WithContext(ctx).Select("latitude", "longitude").Find(&existing).Error
	if err != nil {
		return 0, fmt.Errorf("error reading existing city coordinates: %v", err)
	}

	seen := make(map[[2]float64]struct{}, len(existing))
	for _, city := range existing {
		seen[[2]float64{city.Latitude, city.Longitude}] = struct{}{}
	}

	fresh := make([]City, 0, len(cities))
	for _, city := range cities {
		key := [2]float64{city.Latitude, city.Longitude}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		fresh = append(fresh, city)
	}

	if len(fresh) == 0 {
		return 0, nil
	}

	err = c.DB.WithContext(ctx).CreateInBatches(fresh, 500).Error
	if err != nil {
		return 0, fmt.Errorf("error inserting %d cities: %v", len(fresh), err)
	}
	return len(fresh), nil
}

// PresentDates returns the journal dates already stored for cityID within
// [from, to], normalized to UTC for set membership checks.
func (c *Client) PresentDates(ctx context.Context, cityID uint, from, to time.Time) (map[time.Time]struct{}, error) {
	var dates []time.Time
	err := c.DB.WithContext(ctx).
		Model(&WeatherJournal{}).
		Where("city_id = ? AND date >= ? AND date <= ?", cityID, from, to).
		Pluck("date", &dates).Error
	if err != nil {
		return nil, fmt.Errorf("error reading present dates for city %d: %v", cityID, err)
	}

	present := make(map[time.Time]struct{}, len(dates))
	for _, d := range dates {
		present[d.UTC()] = struct{}{}
	}
	return present, nil
}

// AppendNewRecords writes the records whose date is not in present, all in
// one transaction. A uniqueness violation means another worker stored an
// overlapping batch first; the batch is logged and dropped, not retried.
func (c *Client) AppendNewRecords(ctx context.Context, cityID uint, records []types.WeatherRecord, present map[time.Time]struct{}) (int, error) {
	rows := newJournalRows(cityID, records, present)
	if len(rows) == 0 {
		return 0, nil
	}

	err := c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Rows reference cities by ID only; never touch the city table here.
		return tx.Omit(clause.Associations).CreateInBatches(rows, 1000).Error
	})
	if err != nil {
		if IsIntegrityError(err) {
			log.Errorf("integrity error appending %d records for city %d, skipping the batch: %v", len(rows), cityID, err)
			return 0, nil
		}
		return 0, fmt.Errorf("error appending %d records for city %d: %v", len(rows), cityID, err)
	}
	return len(rows), nil
}

// SaveCollectionRun appends one collector run summary row
func (c *Client) SaveCollectionRun(ctx context.Context, run *CollectionRun) error {
	if err := c.DB.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("error saving collection run %s: %v", run.RunID, err)
	}
	return nil
}

// newJournalRows converts canonical records to journal rows, dropping the
// ones whose date is already present.
func newJournalRows(cityID uint, records []types.WeatherRecord, present map[time.Time]struct{}) []WeatherJournal {
	rows := make([]WeatherJournal, 0, len(records))
	for _, rec := range records {
		date := rec.Date.UTC()
		if _, ok := present[date]; ok {
			continue
		}

		rows = append(rows, WeatherJournal{
			CityID:              cityID,
			Date:                date,
			DataSource:          rec.DataSource,
			Temperature:         rec.Temperature,
			ApparentTemperature: rec.ApparentTemperature,
			Pressure:            rec.Pressure,
			WindSpeed:           rec.WindSpeed,
			WindGustSpeed:       rec.WindGustSpeed,
			WindDirection:       rec.WindDirection,
			Humidity:            rec.Humidity,
			Clouds:              rec.Clouds,
			Precipitation:       rec.Precipitation,
			Snow:                rec.Snow,
		})
	}
	return rows
}
