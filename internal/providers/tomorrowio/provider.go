// Package tomorrowio implements the Tomorrow.io historical timelines data
// source, the only provider that POSTs its query as a JSON body.
package tomorrowio

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/lplpqq/forecast/internal/httpclient"
	"github.com/lplpqq/forecast/internal/providers"
	"github.com/lplpqq/forecast/internal/types"
)

const baseURL = "https://api.tomorrow.io/v4"

// requestedFields is the value list asked of the timelines endpoint.
var requestedFields = []string{
	"temperature",
	"temperatureApparent",
	"pressureSeaLevel",
	"windSpeed",
	"windGust",
	"windDirection",
	"humidity",
	"cloudCover",
	"precipitationIntensity",
	"snowAccumulation",
}

// historicalRequest is the POST /historical body.
type historicalRequest struct {
	Timesteps []string `json:"timesteps"`
	StartTime string   `json:"startTime"`
	EndTime   string   `json:"endTime"`
	Units     string   `json:"units"`
	Location  string   `json:"location"` // "lat, lon"
	Fields    []string `json:"fields"`
}

// historicalResponse mirrors the timelines payload.
type historicalResponse struct {
	Data struct {
		Timelines []struct {
			Intervals []interval `json:"intervals"`
		} `json:"timelines"`
	} `json:"data"`
}

type interval struct {
	StartTime string `json:"startTime"` // RFC3339
	Values    struct {
		Temperature   *float64 `json:"temperature"`
		Apparent      *float64 `json:"temperatureApparent"`
		Pressure      *float64 `json:"pressureSeaLevel"`
		WindSpeed     *float64 `json:"windSpeed"`
		WindGust      *float64 `json:"windGust"`
		WindDirection *float64 `json:"windDirection"`
		Humidity      *float64 `json:"humidity"`
		Clouds        *float64 `json:"cloudCover"`
		Precipitation *float64 `json:"precipitationIntensity"`
		Snow          *float64 `json:"snowAccumulation"` // mm
	} `json:"values"`
}

type Provider struct {
	lc     providers.Lifecycle
	client *httpclient.Client
	apiKey string
}

// NewProvider creates a Tomorrow.io provider instance
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
		lc:     providers.Lifecycle{Name: "tomorrow_io"},
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
// [start, end] inclusive. The location string is latitude first, matching
// the timelines documentation.
func (p *Provider) GetHistoricalWeather(ctx context.Context, coord types.Coordinate, start, end time.Time) ([]types.WeatherRecord, error) {
	if err := p.lc.Ready(); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("apikey", p.apiKey)

	body := historicalRequest{
		Timesteps: []string{"1h"},
		StartTime: start.UTC().Format(time.RFC3339),
		EndTime:   end.UTC().Format(time.RFC3339),
		Units:     "metric",
		Location:  fmt.Sprintf("%f, %f", coord.Latitude, coord.Longitude),
		Fields:    requestedFields,
	}

	var resp historicalResponse
	if err := p.client.PostJSON(ctx, "/historical", query, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data.Timelines) == 0 {
		return nil, nil
	}

	intervals := resp.Data.Timelines[0].Intervals
	records := make([]types.WeatherRecord, 0, len(intervals))
	for _, iv := range intervals {
		date, err := time.Parse(time.RFC3339, iv.StartTime)
		if err != nil {
			return nil, fmt.Errorf("error parsing timeline interval start %q: %v", iv.StartTime, err)
		}
		date = date.UTC()
		if date.Before(start) || date.After(end) {
			continue
		}

		v := iv.Values
		if v.Temperature == nil || v.Pressure == nil || v.WindSpeed == nil ||
			v.WindDirection == nil || v.Humidity == nil {
			continue
		}

		rec := types.WeatherRecord{
			DataSource:          p.Name(),
			Date:                date,
			Temperature:         *v.Temperature,
			ApparentTemperature: v.Apparent,
			Pressure:            *v.Pressure,
			WindSpeed:           *v.WindSpeed,
			WindGustSpeed:       v.WindGust,
			WindDirection:       *v.WindDirection,
			Humidity:            *v.Humidity,
			Clouds:              v.Clouds,
			Precipitation:       v.Precipitation,
		}
		if v.Snow != nil {
			depth := int(*v.Snow)
			rec.Snow = &depth
		}

		records = append(records, rec)
	}

	return records, nil
}
