package weatherbit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lplpqq/forecast/internal/providers"
	"github.com/lplpqq/forecast/internal/types"
)

var berlin = types.Coordinate{Latitude: 52.52, Longitude: 13.405}

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

func TestHistoryDecode(t *testing.T) {
	fixture := `{
		"data": [
			{
				"datetime": "2024-01-05:00",
				"temp": 3.4,
				"app_temp": 1.1,
				"pres": 1002.0,
				"slp": 1013.2,
				"wind_spd": 4.2,
				"wind_gust_spd": 7.7,
				"wind_dir": 250,
				"rh": 81,
				"clouds": 75,
				"precip": 0.3,
				"snow": 0
			},
			{
				"datetime": "2024-01-05:01",
				"temp": 3.1,
				"pres": 1002.1,
				"wind_spd": 4.0,
				"wind_dir": 245,
				"rh": 82,
				"clouds": null,
				"precip": null,
				"snow": null
			}
		]
	}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/history/hourly" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if q.Get("key") != "test-key" {
			t.Errorf("expected the API key as a query parameter, got %q", q.Get("key"))
		}
		if q.Get("lat") != "52.52" || q.Get("lon") != "13.405" {
			t.Errorf("unexpected coordinate params %q, %q", q.Get("lat"), q.Get("lon"))
		}
		w.Write([]byte(fixture))
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)

	start := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 5, 23, 0, 0, 0, time.UTC)
	records, err := p.GetHistoricalWeather(context.Background(), berlin, start, end)
	if err != nil {
		t.Fatalf("GetHistoricalWeather: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	first := records[0]
	if first.DataSource != "weatherbit" {
		t.Errorf("expected source weatherbit, got %q", first.DataSource)
	}
	if !first.Date.Equal(start) {
		t.Errorf("expected first record at %v, got %v", start, first.Date)
	}
	// Sea-level pressure wins when both are reported.
	if first.Pressure != 1013.2 {
		t.Errorf("expected sea-level pressure 1013.2, got %v", first.Pressure)
	}
	// Weatherbit already serves m/s; no conversion applied.
	if first.WindSpeed != 4.2 {
		t.Errorf("expected wind 4.2 m/s untouched, got %v", first.WindSpeed)
	}
	if first.WindGustSpeed == nil || *first.WindGustSpeed != 7.7 {
		t.Errorf("expected gust 7.7, got %v", first.WindGustSpeed)
	}
	if first.Snow == nil || *first.Snow != 0 {
		t.Errorf("expected snow 0, got %v", first.Snow)
	}

	second := records[1]
	// Without slp the station pressure is kept.
	if second.Pressure != 1002.1 {
		t.Errorf("expected station pressure 1002.1, got %v", second.Pressure)
	}
	if second.Clouds != nil || second.Precipitation != nil || second.Snow != nil {
		t.Error("expected null optional fields to stay nil")
	}
	if second.ApparentTemperature != nil {
		t.Error("expected nil apparent temperature when absent")
	}
}

func TestRowsMissingRequiredFieldsAreDropped(t *testing.T) {
	fixture := `{
		"data": [
			{"datetime": "2024-01-05:00", "temp": null, "pres": 1000, "wind_spd": 1, "wind_dir": 90, "rh": 50},
			{"datetime": "2024-01-05:01", "temp": 2.0, "pres": 1000, "wind_spd": 1, "wind_dir": 90, "rh": 50}
		]
	}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fixture))
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)

	records, err := p.GetHistoricalWeather(context.Background(), berlin,
		time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 5, 23, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("GetHistoricalWeather: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected the null-temperature row to be dropped, got %d records", len(records))
	}
}

func TestBadTimestampIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [{"datetime": "garbage", "temp": 1, "pres": 1000, "wind_spd": 1, "wind_dir": 90, "rh": 50}]}`))
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)

	_, err := p.GetHistoricalWeather(context.Background(), berlin,
		time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 5, 23, 0, 0, 0, time.UTC))
	if err == nil {
		t.Fatal("expected an error for an unparseable timestamp")
	}
}
