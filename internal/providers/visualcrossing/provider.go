// Package visualcrossing implements the Visual Crossing timeline data
// source. The timeline endpoint rejects long ranges on the free tier, so
// requests are issued in short chunks and concatenated.
package visualcrossing

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/lplpqq/forecast/internal/httpclient"
	"github.com/lplpqq/forecast/internal/providers"
	"github.com/lplpqq/forecast/internal/types"
)

const baseURL = "https://weather.visualcrossing.com/VisualCrossingWebServices/rest/services"

// MaxChunkSpanDays caps the length of a single timeline request. The
// upstream truncates responses beyond a couple of days of hourly data, so
// longer windows are fetched as a series of two-day slices.
const MaxChunkSpanDays = 2

// timelineResponse mirrors the /timeline payload.
type timelineResponse struct {
	Days []struct {
		Hours []hourObservation `json:"hours"`
	} `json:"days"`
}

type hourObservation struct {
	Epoch         int64    `json:"datetimeEpoch"`
	Temperature   *float64 `json:"temp"`
	FeelsLike     *float64 `json:"feelslike"`
	Pressure      *float64 `json:"pressure"` // sea-level, hPa
	WindSpeed     *float64 `json:"windspeed"`
	WindGust      *float64 `json:"windgust"` // null when close to windspeed
	WindDirection *float64 `json:"winddir"`
	Humidity      *float64 `json:"humidity"`
	Clouds        *float64 `json:"cloudcover"`
	Precipitation *float64 `json:"precip"` // mm
	Snow          *float64 `json:"snow"`   // cm
}

type Provider struct {
	lc     providers.Lifecycle
	client *httpclient.Client
	apiKey string
}

// NewProvider creates a Visual Crossing provider instance
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
		lc:     providers.Lifecycle{Name: "visual_crossing"},
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
// [start, end] inclusive, one request per chunk of MaxChunkSpanDays days.
func (p *Provider) GetHistoricalWeather(ctx context.Context, coord types.Coordinate, start, end time.Time) ([]types.WeatherRecord, error) {
	if err := p.lc.Ready(); err != nil {
		return nil, err
	}

	var records []types.WeatherRecord
	for _, chunk := range splitWindow(start, end) {
		chunkRecords, err := p.fetchChunk(ctx, coord, chunk.from, chunk.to, start, end)
		if err != nil {
			return nil, err
		}
		records = append(records, chunkRecords...)
	}
	return records, nil
}

type window struct {
	from, to time.Time
}

// splitWindow slices [start, end] into consecutive windows no longer than
// MaxChunkSpanDays whole days, inclusive at the low edge and capped at end.
func splitWindow(start, end time.Time) []window {
	var chunks []window
	for from := start; !from.After(end); from = from.AddDate(0, 0, MaxChunkSpanDays) {
		to := from.AddDate(0, 0, MaxChunkSpanDays-1)
		if to.After(end) {
			to = end
		}
		chunks = append(chunks, window{from: from, to: to})
	}
	return chunks
}

func (p *Provider) fetchChunk(ctx context.Context, coord types.Coordinate, from, to, start, end time.Time) ([]types.WeatherRecord, error) {
	path := fmt.Sprintf("/timeline/%f,%f/%s/%s",
		coord.Latitude, coord.Longitude,
		from.Format("2006-01-02"), to.Format("2006-01-02"))

	query := url.Values{}
	query.Set("unitGroup", "metric")
	query.Set("key", p.apiKey)
	query.Set("options", "preview")
	query.Set("contentType", "json")

	var resp timelineResponse
	if err := p.client.GetJSON(ctx, path, query, &resp); err != nil {
		return nil, err
	}

	var records []types.WeatherRecord
	for _, day := range resp.Days {
		for _, obs := range day.Hours {
			date := time.Unix(obs.Epoch, 0).UTC()
			if date.Before(start) || date.After(end) {
				continue
			}
			if obs.Temperature == nil || obs.Pressure == nil || obs.WindSpeed == nil ||
				obs.WindDirection == nil || obs.Humidity == nil {
				continue
			}

			rec := types.WeatherRecord{
				DataSource:          p.Name(),
				Date:                date,
				Temperature:         *obs.Temperature,
				ApparentTemperature: obs.FeelsLike,
				Pressure:            *obs.Pressure,
				WindSpeed:           *obs.WindSpeed,
				WindDirection:       *obs.WindDirection,
				Humidity:            *obs.Humidity,
				Clouds:              obs.Clouds,
				Precipitation:       obs.Precipitation,
			}

			// The API omits the gust when it is not significantly above
			// the sustained speed; fall back to the speed itself.
			if obs.WindGust != nil {
				rec.WindGustSpeed = obs.WindGust
			} else {
				speed := *obs.WindSpeed
				rec.WindGustSpeed = &speed
			}
			if obs.Snow != nil {
				depth := providers.CmToMm(*obs.Snow)
				rec.Snow = &depth
			}

			records = append(records, rec)
		}
	}
	return records, nil
}
