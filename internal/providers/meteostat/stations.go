package meteostat

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lplpqq/forecast/internal/httpclient"
	"github.com/lplpqq/forecast/internal/log"
	"github.com/lplpqq/forecast/internal/types"
	"gonum.org/v1/gonum/mat"
)

// stationsManifestPath is the bulk endpoint serving the station list.
const stationsManifestPath = "/stations/lite.json.gz"

// Station is one measurement point from the lite stations manifest.
type Station struct {
	ID       string `json:"id"`
	Location struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
}

// stationIndex resolves a coordinate to its nearest station by Euclidean
// distance over a dense N×2 coordinate matrix. Plain planar distance is
// accurate enough here: station coverage is dense relative to the error a
// flat-earth approximation introduces.
type stationIndex struct {
	ids    []string
	coords *mat.Dense
}

// loadStationIndex reads the stations manifest, preferring the disk cache
// and fetching the gzipped manifest once when the cache is absent. The
// cache lives until the file is deleted by hand.
func loadStationIndex(ctx context.Context, client *httpclient.Client, cacheFile string) (*stationIndex, error) {
	content, err := os.ReadFile(cacheFile)
	switch {
	case err == nil && len(content) > 0:
		log.Debugf("loaded cached stations manifest from %q", cacheFile)
	case err == nil:
		return nil, fmt.Errorf("cached stations manifest %q is empty, delete it and re-run", cacheFile)
	default:
		log.Infof("no cached stations manifest at %q, fetching", cacheFile)
		content, err = client.GetGzipped(ctx, stationsManifestPath, nil)
		if err != nil {
			return nil, err
		}
		if len(content) == 0 {
			return nil, fmt.Errorf("stations manifest fetch returned an empty body")
		}
		if err := os.MkdirAll(filepath.Dir(cacheFile), 0o755); err != nil {
			return nil, fmt.Errorf("error creating stations cache directory: %v", err)
		}
		if err := os.WriteFile(cacheFile, content, 0o644); err != nil {
			return nil, fmt.Errorf("error writing stations cache file: %v", err)
		}
	}

	var stations []Station
	if err := json.Unmarshal(content, &stations); err != nil {
		return nil, fmt.Errorf("error parsing stations manifest: %v", err)
	}
	if len(stations) == 0 {
		return nil, fmt.Errorf("stations manifest holds no stations")
	}

	return newStationIndex(stations), nil
}

func newStationIndex(stations []Station) *stationIndex {
	ids := make([]string, len(stations))
	coords := mat.NewDense(len(stations), 2, nil)
	for i, s := range stations {
		ids[i] = s.ID
		coords.Set(i, 0, s.Location.Latitude)
		coords.Set(i, 1, s.Location.Longitude)
	}
	return &stationIndex{ids: ids, coords: coords}
}

// FindNearest returns the id of the station closest to the coordinate.
// Ties break to the lowest row index.
func (idx *stationIndex) FindNearest(coord types.Coordinate) string {
	rows, _ := idx.coords.Dims()

	best := 0
	bestDist := distanceSq(idx.coords, 0, coord)
	for i := 1; i < rows; i++ {
		if d := distanceSq(idx.coords, i, coord); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return idx.ids[best]
}

func distanceSq(coords *mat.Dense, row int, coord types.Coordinate) float64 {
	dLat := coords.At(row, 0) - coord.Latitude
	dLon := coords.At(row, 1) - coord.Longitude
	return dLat*dLat + dLon*dLon
}
