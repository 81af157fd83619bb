// Package openweathermap implements the OpenWeatherMap history data
// source. The history endpoint takes unix timestamps and returns the same
// envelope as the current-weather API, one element per hour.
package openweathermap

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/lplpqq/forecast/internal/httpclient"
	"github.com/lplpqq/forecast/internal/providers"
	"github.com/lplpqq/forecast/internal/types"
)

const baseURL = "https://history.openweathermap.org/data/2.5"

// historyResponse mirrors the /history/city payload.
type historyResponse struct {
	List []hourObservation `json:"list"`
}

type hourObservation struct {
	Epoch int64 `json:"dt"`
	Main  struct {
		Temperature *float64 `json:"temp"`
		FeelsLike   *float64 `json:"feels_like"`
		Pressure    *float64 `json:"pressure"`
		Humidity    *float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed     *float64 `json:"speed"` // m/s with units=metric
		Direction *float64 `json:"deg"`
		Gust      *float64 `json:"gust"`
	} `json:"wind"`
	Clouds struct {
		All *float64 `json:"all"`
	} `json:"clouds"`
	Rain struct {
		OneHour *float64 `json:"1h"` // mm
	} `json:"rain"`
	Snow struct {
		OneHour *float64 `json:"1h"` // mm
	} `json:"snow"`
}

type Provider struct {
	lc     providers.Lifecycle
	client *httpclient.Client
	apiKey string
}

// NewProvider creates an OpenWeatherMap provider instance
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
		lc:     providers.Lifecycle{Name: "open_weather_map"},
		client: client,
		apiKey: settings.APIKey,
	}, nil
}

// Name returns the stable identifier of this data source
func (p *Provider) Name() string {
	return p.lc.Name
}

// Setup transitions the provider to ready
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
	query.Set("type", "hour")
	query.Set("start", strconv.FormatInt(start.Unix(), 10))
	query.Set("end", strconv.FormatInt(end.Unix(), 10))
	query.Set("units", "metric")
	query.Set("appid", p.apiKey)

	var resp historyResponse
	if err := p.client.GetJSON(ctx, "/history/city", query, &resp); err != nil {
		return nil, err
	}

	records := make([]types.WeatherRecord, 0, len(resp.List))
	for _, obs := range resp.List {
		date := time.Unix(obs.Epoch, 0).UTC()
		if date.Before(start) || date.After(end) {
			continue
		}
		if obs.Main.Temperature == nil || obs.Main.Pressure == nil ||
			obs.Wind.Speed == nil || obs.Wind.Direction == nil || obs.Main.Humidity == nil {
			continue
		}

		rec := types.WeatherRecord{
			DataSource:          p.Name(),
			Date:                date,
			Temperature:         *obs.Main.Temperature,
			ApparentTemperature: obs.Main.FeelsLike,
			Pressure:            *obs.Main.Pressure,
			WindSpeed:           *obs.Wind.Speed,
			WindGustSpeed:       obs.Wind.Gust,
			WindDirection:       *obs.Wind.Direction,
			Humidity:            *obs.Main.Humidity,
			Clouds:              obs.Clouds.All,
			Precipitation:       obs.Rain.OneHour,
		}
		if obs.Snow.OneHour != nil {
			depth := int(*obs.Snow.OneHour)
			rec.Snow = &depth
		}

		records = append(records, rec)
	}

	return records, nil
}
