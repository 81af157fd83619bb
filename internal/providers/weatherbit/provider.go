// Package weatherbit implements the Weatherbit history data source. The
// API serves metric units natively, so no conversion is needed beyond
// parsing its colon-separated hour stamps.
package weatherbit

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/lplpqq/forecast/internal/httpclient"
	"github.com/lplpqq/forecast/internal/providers"
	"github.com/lplpqq/forecast/internal/types"
)

// The documented base URL carries a trailing slash; the client trims it.
const baseURL = "https://api.weatherbit.io/v2.0/"

// historyResponse mirrors the /history/hourly payload.
type historyResponse struct {
	Data []hourlyObservation `json:"data"`
}

type hourlyObservation struct {
	Datetime      string   `json:"datetime"` // 2006-01-02:15
	Temperature   *float64 `json:"temp"`
	Apparent      *float64 `json:"app_temp"`
	Pressure      *float64 `json:"pres"` // station-level; slp is sea-level
	SeaLevel      *float64 `json:"slp"`
	WindSpeed     *float64 `json:"wind_spd"` // m/s
	WindGust      *float64 `json:"wind_gust_spd"`
	WindDirection *float64 `json:"wind_dir"`
	Humidity      *float64 `json:"rh"`
	Clouds        *float64 `json:"clouds"`
	Precipitation *float64 `json:"precip"` // mm
	Snow          *float64 `json:"snow"`   // mm
}

type Provider struct {
	lc     providers.Lifecycle
	client *httpclient.Client
	apiKey string
}

// NewProvider creates a Weatherbit provider instance
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
		lc:     providers.Lifecycle{Name: "weatherbit"},
		client: client,
		apiKey: settings.APIKey,
	}, nil
}

// Name returns the stable identifier of this data source
func (p *Provider) Name() string {
	return p.lc.Name
}

// Setup transitions the provider to ready; there is nothing to warm up
func (p *Provider) Setup(ctx context.Context) error {
	return p.lc.RunSetup(func() error { return nil })
}

// Teardown releases the provider
func (p *Provider) Teardown() error {
	return p.lc.RunTeardown(func() error { return nil })
}

// GetHistoricalWeather fetches hourly history for the coordinate within
// [start, end] inclusive.
func (p *Provider) GetHistoricalWeather(ctx context.Context, coord types.Coordinate, start, end time.Time) ([]types.WeatherRecord, error) {
	if err := p.lc.Ready(); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("lat", strconv.FormatFloat(coord.Latitude, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(coord.Longitude, 'f', -1, 64))
	query.Set("start_date", start.Format("2006-01-02"))
	query.Set("end_date", end.Format("2006-01-02"))
	query.Set("key", p.apiKey)

	var resp historyResponse
	if err := p.client.GetJSON(ctx, "/history/hourly", query, &resp); err != nil {
		return nil, err
	}

	records := make([]types.WeatherRecord, 0, len(resp.Data))
	for _, obs := range resp.Data {
		date, err := time.Parse("2006-01-02:15", obs.Datetime)
		if err != nil {
			return nil, fmt.Errorf("error parsing weatherbit timestamp %q: %v", obs.Datetime, err)
		}
		if date.Before(start) || date.After(end) {
			continue
		}

		// Prefer the sea-level pressure when the API reports both.
		pressure := obs.SeaLevel
		if pressure == nil {
			pressure = obs.Pressure
		}
		if obs.Temperature == nil || pressure == nil || obs.WindSpeed == nil ||
			obs.WindDirection == nil || obs.Humidity == nil {
			continue
		}

		rec := types.WeatherRecord{
			DataSource:          p.Name(),
			Date:                date,
			Temperature:         *obs.Temperature,
			ApparentTemperature: obs.Apparent,
			Pressure:            *pressure,
			WindSpeed:           *obs.WindSpeed,
			WindGustSpeed:       obs.WindGust,
			WindDirection:       *obs.WindDirection,
			Humidity:            *obs.Humidity,
			Clouds:              obs.Clouds,
			Precipitation:       obs.Precipitation,
		}
		if obs.Snow != nil {
			depth := int(*obs.Snow)
			rec.Snow = &depth
		}

		records = append(records, rec)
	}

	return records, nil
}
