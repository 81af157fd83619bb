package meteostat

import (
	"compress/gzip"
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lplpqq/forecast/internal/providers"
	"github.com/lplpqq/forecast/internal/types"
)

var tokyo = types.Coordinate{Latitude: 35.6897, Longitude: 139.6922}

const stationsManifest = `[
	{"id": "47662", "location": {"latitude": 35.69, "longitude": 139.69}},
	{"id": "47971", "location": {"latitude": 27.09, "longitude": 142.18}},
	{"id": "10382", "location": {"latitude": 52.47, "longitude": 13.4}}
]`

// writeGzip compresses body onto the response.
func writeGzip(w http.ResponseWriter, body string) {
	gz := gzip.NewWriter(w)
	gz.Write([]byte(body))
	gz.Close()
}

// yearCSV builds headerless bulk rows, one per hour.
func yearCSV(day string, hours ...int) string {
	var b strings.Builder
	for _, h := range hours {
		fmt.Fprintf(&b, "%s,%d,1.5,0.5,80,0.0,,270,10.8,18.0,1015.0,,3\n", day, h)
	}
	return b.String()
}

func newTestProvider(t *testing.T, handler http.Handler) (*Provider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewProvider(providers.Settings{BaseURL: srv.URL, CacheDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if err := p.Setup(context.Background()); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	return p, srv
}

func TestFindNearest(t *testing.T) {
	p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeGzip(w, stationsManifest)
	}))

	tests := []struct {
		name     string
		coord    types.Coordinate
		expected string
	}{
		{"tokyo resolves to the tokyo station", tokyo, "47662"},
		{"berlin resolves to the berlin station", types.Coordinate{Latitude: 52.52, Longitude: 13.405}, "10382"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := p.FindNearest(tt.coord)
			if err != nil {
				t.Fatalf("FindNearest: %v", err)
			}
			if id != tt.expected {
				t.Errorf("expected station %s, got %s", tt.expected, id)
			}
		})
	}
}

func TestFindNearestTieBreaksToLowestIndex(t *testing.T) {
	idx := newStationIndex([]Station{
		{ID: "first"},
		{ID: "second"},
	})
	// Both stations sit at the origin; the first wins.
	if id := idx.FindNearest(types.Coordinate{Latitude: 0, Longitude: 0}); id != "first" {
		t.Errorf("expected the tie to break to the lowest index, got %s", id)
	}
}

func TestFindNearestBeforeSetup(t *testing.T) {
	p, err := NewProvider(providers.Settings{BaseURL: "http://localhost:0", CacheDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if _, err := p.FindNearest(tokyo); err == nil {
		t.Fatal("expected an error before Setup")
	}
}

func TestYearSpanningFetch(t *testing.T) {
	var mu sync.Mutex
	yearRequests := map[string]int{}

	p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/stations/"):
			writeGzip(w, stationsManifest)
		case r.URL.Path == "/hourly/2023/47662.csv.gz":
			mu.Lock()
			yearRequests["2023"]++
			mu.Unlock()
			writeGzip(w, yearCSV("2023-12-31", 20, 21, 22, 23))
		case r.URL.Path == "/hourly/2024/47662.csv.gz":
			mu.Lock()
			yearRequests["2024"]++
			mu.Unlock()
			writeGzip(w, yearCSV("2024-01-01", 0, 1, 2, 3, 4))
		default:
			t.Errorf("unexpected request path %q", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	start := time.Date(2023, 12, 31, 22, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC)
	records, err := p.GetHistoricalWeather(context.Background(), tokyo, start, end)
	if err != nil {
		t.Fatalf("GetHistoricalWeather: %v", err)
	}

	if yearRequests["2023"] != 1 || yearRequests["2024"] != 1 {
		t.Errorf("expected one fetch per year, got %v", yearRequests)
	}
	if len(records) != 5 {
		t.Fatalf("expected 5 records in the window, got %d", len(records))
	}
	for i, rec := range records {
		if rec.DataSource != "meteostat" {
			t.Fatalf("record %d: expected source meteostat, got %q", i, rec.DataSource)
		}
		if rec.Date.Before(start) || rec.Date.After(end) {
			t.Fatalf("record %d at %v escapes the window", i, rec.Date)
		}
		if i > 0 && records[i-1].Date.After(rec.Date) {
			t.Fatalf("record %d: dates not ascending", i)
		}
		// 10.8 km/h is 3 m/s; 18 km/h gusts are 5 m/s.
		if math.Abs(rec.WindSpeed-3.0) > 1e-9 {
			t.Fatalf("record %d: expected wind 3 m/s, got %v", i, rec.WindSpeed)
		}
		if rec.WindGustSpeed == nil || math.Abs(*rec.WindGustSpeed-5.0) > 1e-9 {
			t.Fatalf("record %d: expected gust 5 m/s, got %v", i, rec.WindGustSpeed)
		}
		// The bulk files carry no cloud cover.
		if rec.Clouds != nil {
			t.Fatalf("record %d: expected nil clouds", i)
		}
	}

	// A second call for the same window is served from the frame cache.
	if _, err := p.GetHistoricalWeather(context.Background(), tokyo, start, end); err != nil {
		t.Fatalf("second GetHistoricalWeather: %v", err)
	}
	if yearRequests["2023"] != 1 || yearRequests["2024"] != 1 {
		t.Errorf("expected cached frames to be reused, got %v", yearRequests)
	}
}

func TestRowsMissingRequiredColumnsAreDropped(t *testing.T) {
	p, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/stations/") {
			writeGzip(w, stationsManifest)
			return
		}
		// Second row has no temperature, third no pressure.
		writeGzip(w,
			"2024-01-01,0,1.5,0.5,80,0.0,,270,10.8,18.0,1015.0,,3\n"+
				"2024-01-01,1,,0.5,80,0.0,,270,10.8,18.0,1015.0,,3\n"+
				"2024-01-01,2,1.5,0.5,80,0.0,,270,10.8,18.0,,,3\n")
	}))

	records, err := p.GetHistoricalWeather(context.Background(), tokyo,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("GetHistoricalWeather: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected incomplete rows to be dropped, got %d records", len(records))
	}
}

func TestStationsManifestIsCachedOnDisk(t *testing.T) {
	var manifestFetches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		manifestFetches++
		writeGzip(w, stationsManifest)
	}))
	defer srv.Close()

	cacheDir := t.TempDir()

	for i := 0; i < 2; i++ {
		p, err := NewProvider(providers.Settings{BaseURL: srv.URL, CacheDir: cacheDir})
		if err != nil {
			t.Fatalf("NewProvider: %v", err)
		}
		if err := p.Setup(context.Background()); err != nil {
			t.Fatalf("Setup %d: %v", i, err)
		}
		if err := p.Teardown(); err != nil {
			t.Fatalf("Teardown %d: %v", i, err)
		}
	}

	if manifestFetches != 1 {
		t.Errorf("expected one manifest fetch across runs, got %d", manifestFetches)
	}
	cacheFile := filepath.Join(cacheDir, "meteostat", "stations", "lite.json")
	if _, err := os.Stat(cacheFile); err != nil {
		t.Errorf("expected the manifest cache at %q: %v", cacheFile, err)
	}
}
