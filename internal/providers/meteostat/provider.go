// Package meteostat implements the Meteostat bulk data source. Unlike the
// request/response providers it downloads whole station-years of gzipped
// CSV, so it keeps a nearest-station index and an LRU of parsed year
// frames between calls.
package meteostat

import (
	"context"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lplpqq/forecast/internal/httpclient"
	"github.com/lplpqq/forecast/internal/providers"
	"github.com/lplpqq/forecast/internal/types"
	"github.com/lplpqq/forecast/pkg/lru"
	"golang.org/x/sync/errgroup"
)

const baseURL = "https://bulk.meteostat.net/v2"

// frameCacheSize bounds how many parsed station-years stay in memory.
const frameCacheSize = 100

// Headerless CSV column order of the bulk hourly files:
// date, hour, temp, dwpt, rhum, prcp, snow, wdir, wspd, wpgt, pres, tsun, coco
const (
	colDate = iota
	colHour
	colTemp
	colDwpt
	colRhum
	colPrcp
	colSnow
	colWdir
	colWspd
	colWpgt
	colPres
	colTsun
	colCoco
	columnCount
)

// frameKey identifies one parsed station-year in the cache.
type frameKey struct {
	stationID string
	year      int
}

type Provider struct {
	lc       providers.Lifecycle
	client   *httpclient.Client
	cacheDir string

	// mu guards stations and frames; year fetches run on multiple
	// goroutines.
	mu       sync.Mutex
	stations *stationIndex
	frames   *lru.Cache[frameKey, []types.WeatherRecord]
}

// NewProvider creates a Meteostat provider instance
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
		lc:       providers.Lifecycle{Name: "meteostat"},
		client:   client,
		cacheDir: settings.CacheDir,
		frames:   lru.New[frameKey, []types.WeatherRecord](frameCacheSize),
	}, nil
}

// Name returns the stable identifier of this data source
func (p *Provider) Name() string {
	return p.lc.Name
}

// Setup loads the stations manifest and builds the nearest-station index
func (p *Provider) Setup(ctx context.Context) error {
	return p.lc.RunSetup(func() error {
		cacheFile := filepath.Join(p.cacheDir, "meteostat", "stations", "lite.json")
		index, err := loadStationIndex(ctx, p.client, cacheFile)
		if err != nil {
			return fmt.Errorf("%s: %v", p.Name(), err)
		}

		p.mu.Lock()
		p.stations = index
		p.mu.Unlock()
		return nil
	})
}

// Teardown drops the stations index and the frame cache
func (p *Provider) Teardown() error {
	return p.lc.RunTeardown(func() error {
		p.mu.Lock()
		p.stations = nil
		p.frames = lru.New[frameKey, []types.WeatherRecord](frameCacheSize)
		p.mu.Unlock()
		return nil
	})
}

// FindNearest resolves the station closest to the coordinate. It is only
// valid between Setup and Teardown.
func (p *Provider) FindNearest(coord types.Coordinate) (string, error) {
	if err := p.lc.Ready(); err != nil {
		return "", err
	}

	p.mu.Lock()
	index := p.stations
	p.mu.Unlock()
	if index == nil {
		return "", fmt.Errorf("%s: stations index not loaded", p.Name())
	}
	return index.FindNearest(coord), nil
}

// GetHistoricalWeather resolves the nearest station, fetches every
// calendar year touching [start, end] concurrently, and returns the rows
// inside the window in ascending date order.
func (p *Provider) GetHistoricalWeather(ctx context.Context, coord types.Coordinate, start, end time.Time) ([]types.WeatherRecord, error) {
	stationID, err := p.FindNearest(coord)
	if err != nil {
		return nil, err
	}

	years := make([]int, 0, end.Year()-start.Year()+1)
	for year := start.Year(); year <= end.Year(); year++ {
		years = append(years, year)
	}

	frames := make([][]types.WeatherRecord, len(years))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, year := range years {
		group.Go(func() error {
			frame, err := p.yearFrame(groupCtx, stationID, year)
			if err != nil {
				return err
			}
			frames[i] = frame
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var records []types.WeatherRecord
	for _, frame := range frames {
		for _, rec := range frame {
			if rec.Date.Before(start) || rec.Date.After(end) {
				continue
			}
			records = append(records, rec)
		}
	}

	// Year files are already chronological but fetches may land out of
	// order when a frame comes from the cache; make the order explicit.
	sort.Slice(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})
	return records, nil
}

// yearFrame returns the parsed records of one station-year, consulting
// the LRU first.
func (p *Provider) yearFrame(ctx context.Context, stationID string, year int) ([]types.WeatherRecord, error) {
	key := frameKey{stationID: stationID, year: year}

	p.mu.Lock()
	if frame, ok := p.frames.Get(key); ok {
		p.mu.Unlock()
		return frame, nil
	}
	p.mu.Unlock()

	path := fmt.Sprintf("/hourly/%d/%s.csv.gz", year, stationID)
	raw, err := p.client.GetGzipped(ctx, path, nil)
	if err != nil {
		return nil, err
	}

	frame, err := p.parseYearCSV(raw)
	if err != nil {
		return nil, &httpclient.DecodeError{URL: path, Err: err}
	}

	p.mu.Lock()
	p.frames.Put(key, frame)
	p.mu.Unlock()
	return frame, nil
}

// parseYearCSV decodes one bulk hourly file. Rows missing any required
// field are dropped; optional columns become nils. Meteostat serves no
// cloud cover, so Clouds is always nil.
func (p *Provider) parseYearCSV(raw []byte) ([]types.WeatherRecord, error) {
	reader := csv.NewReader(strings.NewReader(string(raw)))
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading bulk CSV: %v", err)
	}

	records := make([]types.WeatherRecord, 0, len(rows))
	for _, row := range rows {
		if len(row) < columnCount {
			continue
		}

		date, err := time.Parse("2006-01-02", row[colDate])
		if err != nil {
			return nil, fmt.Errorf("parsing bulk CSV date %q: %v", row[colDate], err)
		}
		hour, err := strconv.Atoi(row[colHour])
		if err != nil {
			return nil, fmt.Errorf("parsing bulk CSV hour %q: %v", row[colHour], err)
		}

		temp := floatColumn(row[colTemp])
		rhum := floatColumn(row[colRhum])
		wdir := floatColumn(row[colWdir])
		wspd := floatColumn(row[colWspd])
		pres := floatColumn(row[colPres])
		if temp == nil || rhum == nil || wdir == nil || wspd == nil || pres == nil {
			continue
		}

		rec := types.WeatherRecord{
			DataSource:    p.Name(),
			Date:          date.Add(time.Duration(hour) * time.Hour),
			Temperature:   *temp,
			Pressure:      *pres,
			WindSpeed:     providers.KmhToMs(*wspd),
			WindDirection: *wdir,
			Humidity:      *rhum,
			Precipitation: floatColumn(row[colPrcp]),
		}
		if gust := floatColumn(row[colWpgt]); gust != nil {
			converted := providers.KmhToMs(*gust)
			rec.WindGustSpeed = &converted
		}
		if snow := floatColumn(row[colSnow]); snow != nil {
			depth := int(*snow)
			rec.Snow = &depth
		}

		records = append(records, rec)
	}

	return records, nil
}

// floatColumn parses an optional CSV cell; empty cells are nil.
func floatColumn(cell string) *float64 {
	if cell == "" {
		return nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return nil
	}
	return &v
}
