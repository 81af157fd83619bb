// Package worldweatheronline implements the World Weather Online
// past-weather data source. The API nests hours inside per-day objects and
// encodes the hour as an HMM/HHMM integer string ("0", "300", "2300").
package worldweatheronline

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

const baseURL = "https://api.worldweatheronline.com/premium/v1"

// pastWeatherResponse mirrors the /past-weather.ashx payload.
type pastWeatherResponse struct {
	Data struct {
		Weather []struct {
			Date   string `json:"date"` // 2006-01-02
			Hourly []hourObservation
		} `json:"weather"`
	} `json:"data"`
}

type hourObservation struct {
	Time          string `json:"time"` // minutes-of-day string, e.g. "0", "300", "2300"
	Temperature   string `json:"tempC"`
	FeelsLike     string `json:"FeelsLikeC"`
	Pressure      string `json:"pressure"` // hPa
	WindSpeed     string `json:"windspeedKmph"`
	WindGust      string `json:"WindGustKmph"`
	WindDirection string `json:"winddirDegree"`
	Humidity      string `json:"humidity"`
	Clouds        string `json:"cloudcover"`
	Precipitation string `json:"precipMM"`
}

type Provider struct {
	lc     providers.Lifecycle
	client *httpclient.Client
	apiKey string
}

// NewProvider creates a World Weather Online provider instance
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
		lc:     providers.Lifecycle{Name: "world_weather_online"},
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
	query.Set("q", coord.String())
	query.Set("date", start.Format("2006-01-02"))
	query.Set("enddate", end.Format("2006-01-02"))
	query.Set("tp", "1")
	query.Set("format", "json")
	query.Set("key", p.apiKey)

	var resp pastWeatherResponse
	if err := p.client.GetJSON(ctx, "/past-weather.ashx", query, &resp); err != nil {
		return nil, err
	}

	var records []types.WeatherRecord
	for _, day := range resp.Data.Weather {
		dayStart, err := time.Parse("2006-01-02", day.Date)
		if err != nil {
			return nil, fmt.Errorf("error parsing past-weather date %q: %v", day.Date, err)
		}

		for _, obs := range day.Hourly {
			rec, err := decodeHour(p.Name(), dayStart, obs)
			if err != nil {
				return nil, err
			}
			if rec.Date.Before(start) || rec.Date.After(end) {
				continue
			}
			records = append(records, *rec)
		}
	}
	return records, nil
}

// decodeHour converts one string-typed hourly object into a canonical
// record. Every numeric field arrives as a quoted string.
func decodeHour(source string, dayStart time.Time, obs hourObservation) (*types.WeatherRecord, error) {
	minutes, err := strconv.Atoi(obs.Time)
	if err != nil {
		return nil, fmt.Errorf("error parsing past-weather hour %q: %v", obs.Time, err)
	}

	temperature, err := number(obs.Temperature, "tempC")
	if err != nil {
		return nil, err
	}
	pressure, err := number(obs.Pressure, "pressure")
	if err != nil {
		return nil, err
	}
	windKmh, err := number(obs.WindSpeed, "windspeedKmph")
	if err != nil {
		return nil, err
	}
	windDirection, err := number(obs.WindDirection, "winddirDegree")
	if err != nil {
		return nil, err
	}
	humidity, err := number(obs.Humidity, "humidity")
	if err != nil {
		return nil, err
	}

	rec := &types.WeatherRecord{
		DataSource:    source,
		Date:          dayStart.Add(time.Duration(minutes/100) * time.Hour),
		Temperature:   temperature,
		Pressure:      pressure,
		WindSpeed:     providers.KmhToMs(windKmh),
		WindDirection: windDirection,
		Humidity:      humidity,
	}

	if obs.FeelsLike != "" {
		feels, err := number(obs.FeelsLike, "FeelsLikeC")
		if err != nil {
			return nil, err
		}
		rec.ApparentTemperature = &feels
	}
	if obs.WindGust != "" {
		gustKmh, err := number(obs.WindGust, "WindGustKmph")
		if err != nil {
			return nil, err
		}
		gust := providers.KmhToMs(gustKmh)
		rec.WindGustSpeed = &gust
	}
	if obs.Clouds != "" {
		clouds, err := number(obs.Clouds, "cloudcover")
		if err != nil {
			return nil, err
		}
		rec.Clouds = &clouds
	}
	if obs.Precipitation != "" {
		precip, err := number(obs.Precipitation, "precipMM")
		if err != nil {
			return nil, err
		}
		rec.Precipitation = &precip
	}

	return rec, nil
}

func number(raw, field string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("error parsing past-weather %s %q: %v", field, raw, err)
	}
	return v, nil
}
