package restserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lplpqq/forecast/internal/database"
	"github.com/lplpqq/forecast/pkg/responseformat"
	"go.uber.org/zap"
)

func newTestHandlers() *Handlers {
	ctrl := &Controller{
		formatter: responseformat.NewFormatter(),
		logger:    zap.NewNop().Sugar(),
	}
	return NewHandlers(ctrl)
}

func TestParseWindow(t *testing.T) {
	tests := []struct {
		name       string
		from, to   string
		badRequest bool
	}{
		{name: "plain dates", from: "2024-01-05", to: "2024-01-15"},
		{name: "rfc3339", from: "2024-01-05T00:00:00Z", to: "2024-01-15T00:00:00Z"},
		{name: "mixed formats", from: "2024-01-05", to: "2024-01-15T12:00:00Z"},
		{name: "missing from", from: "", to: "2024-01-15", badRequest: true},
		{name: "missing to", from: "2024-01-05", to: "", badRequest: true},
		{name: "inverted", from: "2024-01-15", to: "2024-01-05", badRequest: true},
		{name: "garbage", from: "last tuesday", to: "2024-01-15", badRequest: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to, detail := parseWindow(tt.from, tt.to)
			if tt.badRequest {
				if detail == "" {
					t.Error("expected a validation message")
				}
				return
			}
			if detail != "" {
				t.Fatalf("unexpected validation message %q", detail)
			}
			if from.After(to) {
				t.Error("parsed window is inverted")
			}
			if from.Location() != time.UTC || to.Location() != time.UTC {
				t.Error("window stamps must be UTC")
			}
		})
	}
}

func TestNearestCity(t *testing.T) {
	cities := []database.City{
		{ID: 1, Name: "Tokyo", Latitude: 35.6897, Longitude: 139.6922},
		{ID: 2, Name: "Berlin", Latitude: 52.52, Longitude: 13.405},
		{ID: 3, Name: "Potsdam", Latitude: 52.4, Longitude: 13.07},
	}

	tests := []struct {
		name     string
		lat      float64
		long     float64
		expected string
	}{
		{"exact match", 35.6897, 139.6922, "Tokyo"},
		{"near berlin", 52.5, 13.4, "Berlin"},
		{"near potsdam", 52.39, 13.05, "Potsdam"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nearestCity(cities, tt.lat, tt.long); got.Name != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got.Name)
			}
		})
	}
}

func TestNearestCityTieBreaksToLowestIndex(t *testing.T) {
	cities := []database.City{
		{ID: 1, Name: "First"},
		{ID: 2, Name: "Second"},
	}
	if got := nearestCity(cities, 0, 0); got.Name != "First" {
		t.Errorf("expected the tie to break to the first entry, got %s", got.Name)
	}
}

func TestPaginate(t *testing.T) {
	hour := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	points := make([]WeatherPoint, PageSize+1)
	for i := range points {
		points[i] = WeatherPoint{Date: hour.Add(time.Duration(i) * time.Hour)}
	}

	page, next := paginate(points)
	if len(page) != PageSize {
		t.Fatalf("expected a full page of %d, got %d", PageSize, len(page))
	}
	if next == nil || !next.Equal(points[PageSize].Date) {
		t.Errorf("expected cursor at the overflow row, got %v", next)
	}

	page, next = paginate(points[:10])
	if len(page) != 10 || next != nil {
		t.Errorf("expected a final page of 10 with no cursor, got %d and %v", len(page), next)
	}

	page, next = paginate(nil)
	if page == nil || len(page) != 0 || next != nil {
		t.Error("expected an empty final page for no rows")
	}
}

func TestGetWeatherValidation(t *testing.T) {
	h := newTestHandlers()

	tests := []struct {
		name string
		url  string
	}{
		{"no window", "/weather?lat=1&long=2"},
		{"inverted window", "/weather?lat=1&long=2&from=2024-01-15&to=2024-01-05"},
		{"no city selector", "/weather?from=2024-01-05&to=2024-01-15"},
		{"lat without long", "/weather?lat=1&from=2024-01-05&to=2024-01-15"},
		{"both selectors", "/weather?lat=1&long=2&city=Tokyo&from=2024-01-05&to=2024-01-15"},
		{"latitude out of range", "/weather?lat=91&long=2&from=2024-01-05&to=2024-01-15"},
		{"longitude out of range", "/weather?lat=1&long=181&from=2024-01-05&to=2024-01-15"},
		{"bad cursor", "/weather?lat=1&long=2&from=2024-01-05&to=2024-01-15&cursor=nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.GetWeather(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestSearchCitiesRejectsShortQueries(t *testing.T) {
	h := newTestHandlers()

	for _, query := range []string{"", "a", "ab"} {
		rec := httptest.NewRecorder()
		h.SearchCities(rec, httptest.NewRequest(http.MethodGet, "/cities/search?query="+query, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("query %q: expected 400, got %d", query, rec.Code)
		}
	}
}
