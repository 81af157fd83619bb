// Package catalog bootstraps the city table from the simplemaps world
// cities archive. It runs once per deployment; re-running is harmless
// because inserts are filtered against the coordinates already stored.
package catalog

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lplpqq/forecast/internal/database"
	"github.com/lplpqq/forecast/internal/httpclient"
	"github.com/lplpqq/forecast/internal/log"
)

const (
	// archiveURL is the fixed source of the city catalog.
	archiveURL = "https://simplemaps.com/static/data/world-cities/basic/simplemaps_worldcities_basicv1.76.zip"

	// csvEntryName is the one archive member we care about.
	csvEntryName = "worldcities.csv"

	// DefaultMinPopulation filters out villages the providers have no
	// useful coverage for.
	DefaultMinPopulation = 1000
)

// Loader downloads, filters, and persists the city catalog.
type Loader struct {
	db            *database.Client
	client        *httpclient.Client
	cacheFile     string
	minPopulation int
}

// NewLoader builds a Loader. minPopulation at or below zero selects the
// default threshold.
func NewLoader(db *database.Client, client *httpclient.Client, cacheDir string, minPopulation int) *Loader {
	if minPopulation <= 0 {
		minPopulation = DefaultMinPopulation
	}
	return &Loader{
		db:            db,
		client:        client,
		cacheFile:     filepath.Join(cacheDir, "cities", "cities.csv"),
		minPopulation: minPopulation,
	}
}

// FetchCities returns the filtered catalog rows, reading the disk cache
// when present and downloading the archive otherwise. The cache lives
// until the file is deleted by hand.
func (l *Loader) FetchCities(ctx context.Context) ([]database.City, error) {
	return l.fetchFrom(ctx, archiveURL)
}

func (l *Loader) fetchFrom(ctx context.Context, sourceURL string) ([]database.City, error) {
	if cached, err := os.ReadFile(l.cacheFile); err == nil {
		log.Infof("loading cached city catalog from %q", l.cacheFile)
		return parseCitiesCSV(bytes.NewReader(cached), l.minPopulation)
	}

	log.Infof("no cached city catalog at %q, downloading the archive", l.cacheFile)
	archive, err := l.client.GetRaw(ctx, sourceURL, nil)
	if err != nil {
		return nil, err
	}

	entry, err := extractEntry(archive, csvEntryName)
	if err != nil {
		return nil, err
	}

	cities, err := parseCitiesCSV(bytes.NewReader(entry), l.minPopulation)
	if err != nil {
		return nil, err
	}

	if err := l.writeCache(cities); err != nil {
		return nil, err
	}
	return cities, nil
}

// Populate fetches the catalog and stores every city whose coordinate is
// not in the table yet, in one commit.
func (l *Loader) Populate(ctx context.Context) error {
	cities, err := l.FetchCities(ctx)
	if err != nil {
		return err
	}

	inserted, err := l.db.InsertNewCities(ctx, cities)
	if err != nil {
		return err
	}
	log.Infof("city catalog populated: %d rows inserted, %d already present", inserted, len(cities)-inserted)
	return nil
}

// extractEntry pulls one named member out of a zip archive held in
// memory. A missing member is fatal for the bootstrap.
func extractEntry(archive []byte, name string) ([]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("error opening city archive: %v", err)
	}

	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("error opening archive entry %q: %v", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("archive entry %q not found in the city archive", name)
}

// parseCitiesCSV decodes the worldcities header and rows, keeping cities
// at or above the population threshold. Rows without a parseable
// population are dropped.
func parseCitiesCSV(r io.Reader, minPopulation int) ([]database.City, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("error reading city CSV header: %v", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"city", "lat", "lng", "country", "population"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("city CSV is missing the %q column", required)
		}
	}

	var cities []database.City
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading city CSV row: %v", err)
		}

		population, err := strconv.ParseFloat(row[col["population"]], 64)
		if err != nil || int(population) < minPopulation {
			continue
		}
		lat, err := strconv.ParseFloat(row[col["lat"]], 64)
		if err != nil {
			continue
		}
		lng, err := strconv.ParseFloat(row[col["lng"]], 64)
		if err != nil {
			continue
		}

		cities = append(cities, database.City{
			Name:       row[col["city"]],
			Country:    row[col["country"]],
			Latitude:   lat,
			Longitude:  lng,
			Population: int64(population),
		})
	}
	return cities, nil
}

// writeCache stores the filtered rows so later runs skip the download.
func (l *Loader) writeCache(cities []database.City) error {
	if err := os.MkdirAll(filepath.Dir(l.cacheFile), 0o755); err != nil {
		return fmt.Errorf("error creating city cache directory: %v", err)
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	writer.Write([]string{"city", "lat", "lng", "country", "population"})
	for _, city := range cities {
		writer.Write([]string{
			city.Name,
			strconv.FormatFloat(city.Latitude, 'f', -1, 64),
			strconv.FormatFloat(city.Longitude, 'f', -1, 64),
			city.Country,
			strconv.FormatInt(city.Population, 10),
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("error encoding city cache: %v", err)
	}

	if err := os.WriteFile(l.cacheFile, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("error writing city cache file: %v", err)
	}
	return nil
}
