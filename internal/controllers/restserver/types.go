package restserver

import "time"

// WeatherPoint is one averaged hour across every data source that
// reported it.
type WeatherPoint struct {
	Date          time.Time `json:"date"`
	Temperature   float64   `json:"temperature"`
	Pressure      float64   `json:"pressure"`
	WindSpeed     float64   `json:"wind_speed"`
	WindDirection float64   `json:"wind_direction"`
	Humidity      float64   `json:"humidity"`
	Precipitation float64   `json:"precipitation"`
	Snow          float64   `json:"snow"`
}

// WeatherResponse is one page of averaged history. NextDate carries the
// cursor for the following page, nil on the last one.
type WeatherResponse struct {
	City     string         `json:"city"`
	Country  string         `json:"country"`
	Data     []WeatherPoint `json:"data"`
	NextDate *time.Time     `json:"next_date"`
}

// CityEntry is one city search hit.
type CityEntry struct {
	Name    string `json:"name"`
	Country string `json:"country"`
}

// CitiesSearchResponse lists search hits ordered by population.
type CitiesSearchResponse struct {
	Cities []CityEntry `json:"cities"`
}

// errorResponse is the uniform error payload.
type errorResponse struct {
	Detail string `json:"detail"`
}
