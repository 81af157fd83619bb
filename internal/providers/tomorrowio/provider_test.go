package tomorrowio

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lplpqq/forecast/internal/providers"
	"github.com/lplpqq/forecast/internal/types"
)

var tokyo = types.Coordinate{Latitude: 35.6897, Longitude: 139.6922}

func newTestProvider(t *testing.T, baseURL string) *Provider {
	t.Helper()
	p, err := NewProvider(providers.Settings{BaseURL: baseURL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if err := p.Setup(context.Background()); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	return p
}

func TestHistoricalPost(t *testing.T) {
	start := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 5, 1, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/historical" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("apikey") != "test-key" {
			t.Errorf("expected the API key as apikey, got %q", r.URL.Query().Get("apikey"))
		}

		raw, _ := io.ReadAll(r.Body)
		var body historicalRequest
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("decoding request body: %v", err)
		}
		// Latitude comes first in the location string.
		if body.Location != "35.689700, 139.692200" {
			t.Errorf("unexpected location %q", body.Location)
		}
		if len(body.Timesteps) != 1 || body.Timesteps[0] != "1h" {
			t.Errorf("unexpected timesteps %v", body.Timesteps)
		}
		if body.Units != "metric" {
			t.Errorf("unexpected units %q", body.Units)
		}
		if body.StartTime != start.Format(time.RFC3339) || body.EndTime != end.Format(time.RFC3339) {
			t.Errorf("unexpected window %q..%q", body.StartTime, body.EndTime)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"timelines": []map[string]interface{}{
					{
						"intervals": []map[string]interface{}{
							{
								"startTime": start.Format(time.RFC3339),
								"values": map[string]interface{}{
									"temperature":            6.1,
									"temperatureApparent":    4.0,
									"pressureSeaLevel":       1017.3,
									"windSpeed":              2.8,
									"windGust":               5.2,
									"windDirection":          200.0,
									"humidity":               68.0,
									"cloudCover":             90.0,
									"precipitationIntensity": 0.2,
									"snowAccumulation":       3.0,
								},
							},
							{
								"startTime": end.Format(time.RFC3339),
								"values": map[string]interface{}{
									"temperature":      6.0,
									"pressureSeaLevel": 1017.5,
									"windSpeed":        2.6,
									"windDirection":    198.0,
									"humidity":         69.0,
								},
							},
						},
					},
				},
			},
		})
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)

	records, err := p.GetHistoricalWeather(context.Background(), tokyo, start, end)
	if err != nil {
		t.Fatalf("GetHistoricalWeather: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	first := records[0]
	if first.DataSource != "tomorrow_io" {
		t.Errorf("expected source tomorrow_io, got %q", first.DataSource)
	}
	if !first.Date.Equal(start) {
		t.Errorf("expected first record at %v, got %v", start, first.Date)
	}
	if first.Snow == nil || *first.Snow != 3 {
		t.Errorf("expected snow 3 mm, got %v", first.Snow)
	}
	if first.WindGustSpeed == nil || *first.WindGustSpeed != 5.2 {
		t.Errorf("expected gust 5.2, got %v", first.WindGustSpeed)
	}

	second := records[1]
	if second.ApparentTemperature != nil || second.WindGustSpeed != nil ||
		second.Clouds != nil || second.Precipitation != nil || second.Snow != nil {
		t.Error("expected absent optional fields to stay nil")
	}
}

func TestEmptyTimelines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {"timelines": []}}`))
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)

	records, err := p.GetHistoricalWeather(context.Background(), tokyo,
		time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 5, 1, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("GetHistoricalWeather: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}
