package restserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/lplpqq/forecast/internal/database"
)

// PageSize caps how many averaged hours one weather response carries.
const PageSize = 500

// searchMinQueryLen keeps prefix searches selective enough to be useful.
const searchMinQueryLen = 3

// searchResultCount is how many hits a city search returns.
const searchResultCount = 5

// Handlers holds the HTTP handlers for the read API
type Handlers struct {
	ctrl *Controller

	// cityMu guards the lazily-built coordinate cache used to resolve
	// the nearest city.
	cityMu sync.Mutex
	cities []database.City
}

// NewHandlers creates the handlers
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{ctrl: ctrl}
}

// GetHealth reports liveness
func (h *Handlers) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.ctrl.formatter.WriteResponse(w, r, map[string]string{"status": "ok"}, nil)
}

// GetWeather serves one page of per-hour averages across data sources for
// the resolved city within [from, to]. The optional cursor continues a
// previous page.
func (h *Handlers) GetWeather(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	from, to, badRequest := parseWindow(query.Get("from"), query.Get("to"))
	if badRequest != "" {
		h.writeError(w, r, http.StatusBadRequest, badRequest)
		return
	}

	cursor := from
	if rawCursor := query.Get("cursor"); rawCursor != "" {
		parsed, err := parseStamp(rawCursor)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("unparseable cursor %q", rawCursor))
			return
		}
		cursor = parsed
	}

	city, status, detail := h.resolveCity(r)
	if detail != "" {
		h.writeError(w, r, status, detail)
		return
	}

	var points []WeatherPoint
	err := h.ctrl.DB.DB.WithContext(r.Context()).
		Model(&database.WeatherJournal{}).
		Select("date, AVG(temperature) AS temperature, AVG(pressure) AS pressure, " +
			"AVG(wind_speed) AS wind_speed, AVG(wind_direction) AS wind_direction, " +
			"AVG(humidity) AS humidity, AVG(precipitation) AS precipitation, AVG(snow) AS snow").
		Where("city_id = ? AND date >= ? AND date <= ?", city.ID, cursor, to).
		Where("precipitation IS NOT NULL AND snow IS NOT NULL").
		Group("date").
		Order("date").
		Limit(PageSize + 1).
		Scan(&points).Error
	if err != nil {
		h.ctrl.logger.Errorf("error querying averaged weather for city %d: %v", city.ID, err)
		h.writeError(w, r, http.StatusInternalServerError, "error querying weather history")
		return
	}

	page, nextDate := paginate(points)
	h.ctrl.formatter.WriteResponse(w, r, WeatherResponse{
		City:     city.Name,
		Country:  city.Country,
		Data:     page,
		NextDate: nextDate,
	}, nil)
}

// SearchCities serves a prefix search over city names, most populous
// first.
func (h *Handlers) SearchCities(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if len(query) < searchMinQueryLen {
		h.writeError(w, r, http.StatusBadRequest,
			fmt.Sprintf("query must be at least %d characters", searchMinQueryLen))
		return
	}

	var hits []CityEntry
	err := h.ctrl.DB.DB.WithContext(r.Context()).
		Model(&database.City{}).
		Select("name, country").
		Where("name ILIKE ?", query+"%").
		Order("population DESC").
		Limit(searchResultCount).
		Scan(&hits).Error
	if err != nil {
		h.ctrl.logger.Errorf("error searching cities for %q: %v", query, err)
		h.writeError(w, r, http.StatusInternalServerError, "error searching cities")
		return
	}
	if hits == nil {
		hits = []CityEntry{}
	}

	h.ctrl.formatter.WriteResponse(w, r, CitiesSearchResponse{Cities: hits}, nil)
}

// resolveCity picks the city for a weather request: either the nearest
// one to ?lat=&long= or an exact (case-insensitive) ?city= name match.
// The returned detail is empty on success.
func (h *Handlers) resolveCity(r *http.Request) (*database.City, int, string) {
	query := r.URL.Query()
	rawLat, rawLong, name := query.Get("lat"), query.Get("long"), query.Get("city")

	switch {
	case rawLat == "" && rawLong == "" && name == "":
		return nil, http.StatusBadRequest, "provide either lat and long or a city name"
	case (rawLat == "") != (rawLong == ""):
		return nil, http.StatusBadRequest, "lat and long must be provided together"
	case name != "" && rawLat != "":
		return nil, http.StatusBadRequest, "provide either coordinates or a city name, not both"
	}

	if name != "" {
		var city database.City
		err := h.ctrl.DB.DB.WithContext(r.Context()).
			Where("name ILIKE ?", name).
			Order("population DESC").
			First(&city).Error
		if err != nil {
			return nil, http.StatusNotFound, fmt.Sprintf("no city named %q", name)
		}
		return &city, 0, ""
	}

	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil, http.StatusBadRequest, fmt.Sprintf("invalid latitude %q", rawLat)
	}
	long, err := strconv.ParseFloat(rawLong, 64)
	if err != nil || long < -180 || long > 180 {
		return nil, http.StatusBadRequest, fmt.Sprintf("invalid longitude %q", rawLong)
	}

	cities, err := h.cityList(r)
	if err != nil {
		h.ctrl.logger.Errorf("error loading the city list: %v", err)
		return nil, http.StatusInternalServerError, "error loading the city catalog"
	}
	if len(cities) == 0 {
		return nil, http.StatusNotFound, "the city catalog is empty"
	}

	return nearestCity(cities, lat, long), 0, ""
}

// cityList returns the catalog, loading it once and caching it for the
// life of the server. The catalog never changes while running.
func (h *Handlers) cityList(r *http.Request) ([]database.City, error) {
	h.cityMu.Lock()
	defer h.cityMu.Unlock()

	if h.cities == nil {
		cities, err := h.ctrl.DB.LoadCities(r.Context())
		if err != nil {
			return nil, err
		}
		h.cities = cities
	}
	return h.cities, nil
}

// nearestCity returns the catalog entry closest to (lat, long) by planar
// Euclidean distance; ties break to the lowest index.
func nearestCity(cities []database.City, lat, long float64) *database.City {
	best := 0
	bestDist := cityDistanceSq(&cities[0], lat, long)
	for i := 1; i < len(cities); i++ {
		if d := cityDistanceSq(&cities[i], lat, long); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return &cities[best]
}

func cityDistanceSq(city *database.City, lat, long float64) float64 {
	dLat := city.Latitude - lat
	dLong := city.Longitude - long
	return dLat*dLat + dLong*dLong
}

// parseWindow validates the from/to pair. The returned message is empty
// when the window is valid.
func parseWindow(rawFrom, rawTo string) (from, to time.Time, badRequest string) {
	if rawFrom == "" || rawTo == "" {
		return from, to, "from and to are required"
	}

	from, err := parseStamp(rawFrom)
	if err != nil {
		return from, to, fmt.Sprintf("unparseable from %q", rawFrom)
	}
	to, err = parseStamp(rawTo)
	if err != nil {
		return from, to, fmt.Sprintf("unparseable to %q", rawTo)
	}
	if from.After(to) {
		return from, to, "from must not be later than to"
	}
	return from, to, ""
}

// parseStamp accepts RFC3339 timestamps and plain dates, both read as
// UTC.
func parseStamp(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

// paginate trims one page out of a PageSize+1 query result and derives
// the cursor for the next page.
func paginate(points []WeatherPoint) ([]WeatherPoint, *time.Time) {
	if len(points) <= PageSize {
		if points == nil {
			points = []WeatherPoint{}
		}
		return points, nil
	}
	next := points[PageSize].Date
	return points[:PageSize], &next
}

// writeError always answers in JSON; format switching only applies to
// successful payloads.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Detail: detail})
}
