// Package openmeteo implements the Open-Meteo historical archive data
// source. The archive is keyless and serves hour-aligned parallel arrays.
package openmeteo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lplpqq/forecast/internal/httpclient"
	"github.com/lplpqq/forecast/internal/providers"
	"github.com/lplpqq/forecast/internal/types"
)

const baseURL = "https://archive-api.open-meteo.com/v1"

// hourlyFields is the column list requested from the archive endpoint.
var hourlyFields = []string{
	"temperature_2m",
	"relative_humidity_2m",
	"apparent_temperature",
	"precipitation",
	"rain",
	"snowfall",
	"snow_depth",
	"surface_pressure",
	"cloud_cover",
	"wind_speed_10m",
	"wind_direction_10m",
	"wind_gusts_10m",
}

// archiveResponse mirrors the parallel-array layout of /archive.
type archiveResponse struct {
	Hourly struct {
		Time          []string   `json:"time"`
		Temperature   []*float64 `json:"temperature_2m"`
		Apparent      []*float64 `json:"apparent_temperature"`
		Pressure      []*float64 `json:"surface_pressure"`
		WindSpeed     []*float64 `json:"wind_speed_10m"`
		WindGusts     []*float64 `json:"wind_gusts_10m"`
		WindDirection []*float64 `json:"wind_direction_10m"`
		Humidity      []*float64 `json:"relative_humidity_2m"`
		CloudCover    []*float64 `json:"cloud_cover"`
		Precipitation []*float64 `json:"precipitation"`
		Snowfall      []*float64 `json:"snowfall"`
	} `json:"hourly"`
}

type Provider struct {
	lc     providers.Lifecycle
	client *httpclient.Client
}

// NewProvider creates an Open-Meteo provider instance
func NewProvider(settings providers.Settings) (*Provider, error) {
	endpoint := settings.BaseURL
	if endpoint == "" {
		endpoint = baseURL
	}

	client, err := httpclient.New(endpoint, settings.ClientOptions()...)
	if err != nil {
		return nil, err
	}

	return &Provider{
		lc:     providers.Lifecycle{Name: "open_meteo"},
		client: client,
	}, nil
}

// Name returns the stable identifier of this data source
func (p *Provider) Name() string {
	return p.lc.Name
}

// Setup transitions the provider to ready; the archive needs no warm-up
func (p *Provider) Setup(ctx context.Context) error {
	return p.lc.RunSetup(func() error { return nil })
}

// Teardown releases the provider
func (p *Provider) Teardown() error {
	return p.lc.RunTeardown(func() error { return nil })
}

// GetHistoricalWeather fetches hourly archive data for the coordinate
// within [start, end] inclusive.
func (p *Provider) GetHistoricalWeather(ctx context.Context, coord types.Coordinate, start, end time.Time) ([]types.WeatherRecord, error) {
	if err := p.lc.Ready(); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("latitude", strconv.FormatFloat(coord.Latitude, 'f', -1, 64))
	query.Set("longitude", strconv.FormatFloat(coord.Longitude, 'f', -1, 64))
	query.Set("start_date", start.Format("2006-01-02"))
	query.Set("end_date", end.Format("2006-01-02"))
	query.Set("hourly", strings.Join(hourlyFields, ","))

	var resp archiveResponse
	if err := p.client.GetJSON(ctx, "/archive", query, &resp); err != nil {
		return nil, err
	}

	return decodeHourly(p.Name(), &resp, start, end)
}

// decodeHourly converts the parallel arrays into canonical records. The
// archive serves whole days, so rows outside [start, end] are dropped;
// rows missing a required field are skipped entirely.
func decodeHourly(source string, resp *archiveResponse, start, end time.Time) ([]types.WeatherRecord, error) {
	hourly := &resp.Hourly
	records := make([]types.WeatherRecord, 0, len(hourly.Time))

	for i, stamp := range hourly.Time {
		date, err := time.Parse("2006-01-02T15:04", stamp)
		if err != nil {
			return nil, fmt.Errorf("error parsing archive timestamp %q: %v", stamp, err)
		}
		if date.Before(start) || date.After(end) {
			continue
		}

		temperature := at(hourly.Temperature, i)
		pressure := at(hourly.Pressure, i)
		windSpeed := at(hourly.WindSpeed, i)
		windDirection := at(hourly.WindDirection, i)
		humidity := at(hourly.Humidity, i)
		if temperature == nil || pressure == nil || windSpeed == nil || windDirection == nil || humidity == nil {
			continue
		}

		rec := types.WeatherRecord{
			DataSource:          source,
			Date:                date,
			Temperature:         *temperature,
			ApparentTemperature: at(hourly.Apparent, i),
			Pressure:            *pressure,
			WindSpeed:           providers.KmhToMs(*windSpeed),
			WindDirection:       *windDirection,
			Humidity:            *humidity,
			Clouds:              at(hourly.CloudCover, i),
			Precipitation:       at(hourly.Precipitation, i),
		}
		if gust := at(hourly.WindGusts, i); gust != nil {
			converted := providers.KmhToMs(*gust)
			rec.WindGustSpeed = &converted
		}
		if snow := at(hourly.Snowfall, i); snow != nil {
			converted := providers.CmToMm(*snow)
			rec.Snow = &converted
		}

		records = append(records, rec)
	}

	return records, nil
}

// at returns the i-th element of a column that may be shorter than the
// time axis.
func at(col []*float64, i int) *float64 {
	if i >= len(col) {
		return nil
	}
	return col[i]
}
