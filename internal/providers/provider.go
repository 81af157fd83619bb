// Package providers defines the historical weather provider abstraction
// shared by the concrete data source backends.
package providers

import (
	"context"
	"net/http"
	"time"

	"github.com/lplpqq/forecast/internal/httpclient"
	"github.com/lplpqq/forecast/internal/types"
	"golang.org/x/time/rate"
)

// Provider is an interface that provides standard methods for various
// historical weather data sources
type Provider interface {
	// Name returns the stable snake_case identifier of the data source,
	// stored verbatim in the journal's data_source column.
	Name() string

	// Setup acquires whatever the provider needs before fetching
	// (manifests, caches). Safe to call concurrently across distinct
	// providers.
	Setup(ctx context.Context) error

	// Teardown releases what Setup acquired.
	Teardown() error

	// GetHistoricalWeather returns hourly records for the coordinate
	// within [start, end] inclusive, ascending by date. Optional fields
	// the source does not report stay nil.
	GetHistoricalWeather(ctx context.Context, coord types.Coordinate, start, end time.Time) ([]types.WeatherRecord, error)
}

// Settings carries the construction inputs shared by every data source
type Settings struct {
	// APIKey authenticates paid sources; keyless sources ignore it. Keys
	// only ever travel as query parameters.
	APIKey string

	// Transport is the HTTP transport shared across providers so the
	// connection budget is global. Nil lets each client build its own.
	Transport http.RoundTripper

	// CacheDir is the root directory for sources that cache bulk files.
	CacheDir string

	// BaseURL overrides the source's default endpoint.
	BaseURL string

	// RequestsPerSecond paces requests against the source's quota. Zero
	// leaves the client unpaced.
	RequestsPerSecond float64
}

// ClientOptions translates the shared settings into httpclient options.
func (s Settings) ClientOptions() []httpclient.Option {
	var opts []httpclient.Option
	if s.Transport != nil {
		opts = append(opts, httpclient.WithTransport(s.Transport))
	}
	if s.RequestsPerSecond > 0 {
		opts = append(opts, httpclient.WithRateLimit(rate.NewLimiter(rate.Limit(s.RequestsPerSecond), 1)))
	}
	return opts
}

