// Package types defines the canonical data shapes shared by the providers,
// the collector, and the journal.
package types

import (
	"fmt"
	"time"
)

// Coordinate is a geographic point. Latitude and longitude are decimal
// degrees, WGS84.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// Valid reports whether the coordinate lies within the usual bounds.
func (c Coordinate) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.4f,%.4f", c.Latitude, c.Longitude)
}

// WeatherRecord is a normalized per-hour observation. Every provider adapts
// its response into this shape, converting to the units documented below.
// Fields a source does not report are nil, never a sentinel value.
//
// Units: temperature °C, pressure hPa (sea-level where the source offers
// it), wind speeds m/s, wind direction degrees [0,360), humidity percent,
// clouds percent, precipitation mm, snow depth mm.
type WeatherRecord struct {
	DataSource string

	Date                time.Time // hour-aligned, UTC
	Temperature         float64
	ApparentTemperature *float64
	Pressure            float64
	WindSpeed           float64
	WindGustSpeed       *float64
	WindDirection       float64
	Humidity            float64
	Clouds              *float64
	Precipitation       *float64
	Snow                *int
}
