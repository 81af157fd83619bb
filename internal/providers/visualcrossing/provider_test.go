package visualcrossing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
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

func TestSplitWindow(t *testing.T) {
	start := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	chunks := splitWindow(start, end)
	expected := []window{
		{time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC)},
		// Final chunk is capped at end rather than spanning two days.
		{time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
	}

	if len(chunks) != len(expected) {
		t.Fatalf("expected %d chunks, got %d: %v", len(expected), len(chunks), chunks)
	}
	for i, want := range expected {
		if !chunks[i].from.Equal(want.from) || !chunks[i].to.Equal(want.to) {
			t.Errorf("chunk %d: expected %v..%v, got %v..%v",
				i, want.from, want.to, chunks[i].from, chunks[i].to)
		}
	}
}

func TestChunkedRequests(t *testing.T) {
	var mu sync.Mutex
	var paths []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()

		if r.URL.Query().Get("unitGroup") != "metric" {
			t.Errorf("expected unitGroup=metric, got %q", r.URL.Query().Get("unitGroup"))
		}
		w.Write([]byte(`{"days": []}`))
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)

	start := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)
	if _, err := p.GetHistoricalWeather(context.Background(), tokyo, start, end); err != nil {
		t.Fatalf("GetHistoricalWeather: %v", err)
	}

	// 8 days at 2 days per request.
	if len(paths) != 4 {
		t.Fatalf("expected 4 chunked requests, got %d: %v", len(paths), paths)
	}
	expected := []string{
		"/timeline/35.689700,139.692200/2024-01-05/2024-01-06",
		"/timeline/35.689700,139.692200/2024-01-07/2024-01-08",
		"/timeline/35.689700,139.692200/2024-01-09/2024-01-10",
		"/timeline/35.689700,139.692200/2024-01-11/2024-01-12",
	}
	for i, want := range expected {
		if paths[i] != want {
			t.Errorf("request %d: expected path %q, got %q", i, want, paths[i])
		}
	}
}

func TestDecodeGustFallbackAndSnow(t *testing.T) {
	start := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 5, 1, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"days": []map[string]interface{}{
				{
					"hours": []map[string]interface{}{
						{
							"datetimeEpoch": start.Unix(),
							"temp":          2.5,
							"feelslike":     0.4,
							"pressure":      1015.0,
							"windspeed":     6.0,
							"windgust":      nil,
							"winddir":       270.0,
							"humidity":      70.0,
							"cloudcover":    50.0,
							"precip":        0.0,
							"snow":          1.5,
						},
						{
							"datetimeEpoch": end.Unix(),
							"temp":          2.1,
							"pressure":      1015.2,
							"windspeed":     5.5,
							"windgust":      9.9,
							"winddir":       265.0,
							"humidity":      71.0,
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
	if first.DataSource != "visual_crossing" {
		t.Errorf("expected source visual_crossing, got %q", first.DataSource)
	}
	// Null gust falls back to the sustained speed.
	if first.WindGustSpeed == nil || *first.WindGustSpeed != 6.0 {
		t.Errorf("expected gust fallback 6.0, got %v", first.WindGustSpeed)
	}
	// 1.5 cm of snow is 15 mm.
	if first.Snow == nil || *first.Snow != 15 {
		t.Errorf("expected snow 15 mm, got %v", first.Snow)
	}

	second := records[1]
	if second.WindGustSpeed == nil || *second.WindGustSpeed != 9.9 {
		t.Errorf("expected reported gust 9.9, got %v", second.WindGustSpeed)
	}
	if second.Clouds != nil || second.Precipitation != nil || second.Snow != nil {
		t.Error("expected absent optional fields to stay nil")
	}
}
