// Package collector drives the gathering run: it fans work out across
// every provider × city pair, owns the retry and backoff policy around
// provider fetches, and appends the deduplicated results to the journal.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/lplpqq/forecast/internal/database"
	"github.com/lplpqq/forecast/internal/httpclient"
	"github.com/lplpqq/forecast/internal/log"
	"github.com/lplpqq/forecast/internal/providers"
	"github.com/lplpqq/forecast/internal/types"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	// ConcurrentSessionsAllowed caps simultaneously open database
	// sessions across all provider tasks.
	ConcurrentSessionsAllowed = 50

	// DefaultRetryAttempts bounds provider fetch attempts per pair.
	DefaultRetryAttempts = 3

	// DefaultWaitTime is how long a task sleeps after the upstream asks
	// it to slow down with a 429.
	DefaultWaitTime = 10 * time.Second
)

// Options tune a Collector. Zero values select the defaults above.
type Options struct {
	SessionLimit  int
	RetryAttempts int
	WaitTime      time.Duration

	// ChunkSize bounds how many city tasks exist at once per provider.
	// Zero selects 4 × SessionLimit; negative disables chunking.
	ChunkSize int
}

func (o *Options) applyDefaults() {
	if o.SessionLimit <= 0 {
		o.SessionLimit = ConcurrentSessionsAllowed
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = DefaultRetryAttempts
	}
	if o.WaitTime <= 0 {
		o.WaitTime = DefaultWaitTime
	}
	if o.ChunkSize == 0 {
		o.ChunkSize = 4 * o.SessionLimit
	}
}

// Store is the slice of the database client the collector depends on.
type Store interface {
	LoadCities(ctx context.Context) ([]database.City, error)
	PresentDates(ctx context.Context, cityID uint, from, to time.Time) (map[time.Time]struct{}, error)
	AppendNewRecords(ctx context.Context, cityID uint, records []types.WeatherRecord, present map[time.Time]struct{}) (int, error)
	SaveCollectionRun(ctx context.Context, run *database.CollectionRun) error
}

// Collector orchestrates one gathering run over a fixed window.
type Collector struct {
	db        Store
	providers []providers.Provider
	start     time.Time
	end       time.Time
	opts      Options

	sessions *semaphore.Weighted
	cities   []database.City

	mu        sync.Mutex
	succeeded map[string]int
	skipped   map[string]int
}

// New builds a Collector for the window [start, end].
func New(db Store, provs []providers.Provider, start, end time.Time, opts Options) *Collector {
	opts.applyDefaults()
	return &Collector{
		db:        db,
		providers: provs,
		start:     start.UTC(),
		end:       end.UTC(),
		opts:      opts,
		sessions:  semaphore.NewWeighted(int64(opts.SessionLimit)),
		succeeded: make(map[string]int),
		skipped:   make(map[string]int),
	}
}

// Setup prepares every provider and loads the city catalog, both
// concurrently. It must complete before Run.
func (c *Collector) Setup(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	for _, provider := range c.providers {
		group.Go(func() error {
			if err := provider.Setup(groupCtx); err != nil {
				return fmt.Errorf("setting up %s: %w", provider.Name(), err)
			}
			return nil
		})
	}
	group.Go(func() error {
		cities, err := c.db.LoadCities(groupCtx)
		if err != nil {
			return err
		}
		c.cities = cities
		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}
	if len(c.cities) == 0 {
		return fmt.Errorf("city catalog is empty, run the catalog populate step first")
	}

	log.Infof("collector ready: %d providers, %d cities, window %s..%s",
		len(c.providers), len(c.cities),
		c.start.Format("2006-01-02"), c.end.Format("2006-01-02"))
	return nil
}

// Teardown tears down every provider. Safe to call after a failed Setup.
func (c *Collector) Teardown() {
	for _, provider := range c.providers {
		if err := provider.Teardown(); err != nil {
			log.Errorf("error tearing down %s: %v", provider.Name(), err)
		}
	}
}

// Run fans out one task per (provider, city) pair and blocks until all
// pairs finish or the context is cancelled. Pair failures are absorbed
// into the skip count; only cancellation stops the run early.
func (c *Collector) Run(ctx context.Context) error {
	startedAt := time.Now().UTC()

	group, groupCtx := errgroup.WithContext(ctx)
	for _, provider := range c.providers {
		group.Go(func() error {
			return c.runProvider(groupCtx, provider)
		})
	}
	err := group.Wait()

	succeeded, skipped, summary := c.snapshot()
	log.Infof("collection finished: %d pairs succeeded, %d skipped", succeeded, skipped)

	if saveErr := c.saveRun(context.WithoutCancel(ctx), startedAt, succeeded, skipped, summary); saveErr != nil {
		log.Errorf("error saving collection run summary: %v", saveErr)
	}
	return err
}

// runProvider dispatches every city for one provider, in chunks when
// configured, so very large catalogs do not spawn a goroutine per city
// all at once.
func (c *Collector) runProvider(ctx context.Context, provider providers.Provider) error {
	chunk := c.opts.ChunkSize
	if chunk <= 0 || chunk > len(c.cities) {
		chunk = len(c.cities)
	}

	for low := 0; low < len(c.cities); low += chunk {
		high := low + chunk
		if high > len(c.cities) {
			high = len(c.cities)
		}

		group, groupCtx := errgroup.WithContext(ctx)
		for _, city := range c.cities[low:high] {
			group.Go(func() error {
				return c.collectPair(groupCtx, provider, city)
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// collectPair gathers one (provider, city) pair: plan the effective
// window from what the journal already holds, fetch under the retry
// policy, and append whatever is new. Every outcome except cancellation
// is folded into the run counters.
func (c *Collector) collectPair(ctx context.Context, provider providers.Provider, city database.City) error {
	if err := c.sessions.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sessions.Release(1)

	present, err := c.db.PresentDates(ctx, city.ID, c.start, c.end)
	if err != nil {
		if isCancellation(err) {
			return err
		}
		log.Errorf("error planning %s/%s: %v", provider.Name(), city.Name, err)
		c.countSkip(provider.Name())
		return nil
	}

	start, end := effectiveWindow(c.start, c.end, present)
	coord := types.Coordinate{Latitude: city.Latitude, Longitude: city.Longitude}

	records, err := c.fetchWithRetry(ctx, provider, coord, city.Name, start, end)
	if err != nil {
		if isCancellation(err) {
			return err
		}
		c.countSkip(provider.Name())
		return nil
	}
	if records == nil {
		// The upstream has nothing for this pair; not a failure.
		c.countSkip(provider.Name())
		return nil
	}

	inserted, err := c.db.AppendNewRecords(ctx, city.ID, records, present)
	if err != nil {
		if isCancellation(err) {
			return err
		}
		log.Errorf("error writing %s/%s window %s..%s: %v",
			provider.Name(), city.Name, start.Format("2006-01-02"), end.Format("2006-01-02"), err)
		c.countSkip(provider.Name())
		return nil
	}

	log.Debugf("%s/%s: %d fetched, %d new", provider.Name(), city.Name, len(records), inserted)
	c.countSuccess(provider.Name())
	return nil
}

// fetchWithRetry wraps the provider call in the retry policy: up to
// RetryAttempts tries; 429 sleeps WaitTime first; 404 means the upstream
// has no data for this pair and returns a nil slice without retrying;
// decode errors are not retried; everything else retries until the
// attempts run out.
func (c *Collector) fetchWithRetry(ctx context.Context, provider providers.Provider, coord types.Coordinate, cityName string, start, end time.Time) ([]types.WeatherRecord, error) {
	var lastErr error

	for attempt := 1; attempt <= c.opts.RetryAttempts; attempt++ {
		records, err := provider.GetHistoricalWeather(ctx, coord, start, end)
		if err == nil {
			if records == nil {
				records = []types.WeatherRecord{}
			}
			return records, nil
		}
		if isCancellation(err) {
			return nil, err
		}
		lastErr = err

		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) {
			switch {
			case statusErr.Status == 404:
				log.Infof("%s has no data for %s in %s..%s, skipping",
					provider.Name(), cityName, start.Format("2006-01-02"), end.Format("2006-01-02"))
				return nil, nil
			case statusErr.Status == 429:
				log.Warnf("%s rate limited on %s (attempt %d/%d), sleeping %v",
					provider.Name(), cityName, attempt, c.opts.RetryAttempts, c.opts.WaitTime)
				select {
				case <-time.After(c.opts.WaitTime):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				continue
			default:
				log.Warnf("%s returned status %d for %s (attempt %d/%d)",
					provider.Name(), statusErr.Status, cityName, attempt, c.opts.RetryAttempts)
				continue
			}
		}

		var decodeErr *httpclient.DecodeError
		if errors.As(err, &decodeErr) {
			log.Errorf("%s returned an undecodable payload for %s in %s..%s, skipping: %v",
				provider.Name(), cityName, start.Format("2006-01-02"), end.Format("2006-01-02"), err)
			return nil, err
		}

		log.Warnf("%s fetch failed for %s (attempt %d/%d): %v",
			provider.Name(), cityName, attempt, c.opts.RetryAttempts, err)
	}

	log.Errorf("%s exhausted %d attempts for %s in %s..%s, skipping: %v",
		provider.Name(), c.opts.RetryAttempts, cityName,
		start.Format("2006-01-02"), end.Format("2006-01-02"), lastErr)
	return nil, lastErr
}

// effectiveWindow widens [start, end] to span any journal dates that fall
// outside it, letting the provider bridge gaps around what is already
// stored. The dedup filter still drops the overlap on write.
func effectiveWindow(start, end time.Time, present map[time.Time]struct{}) (time.Time, time.Time) {
	for date := range present {
		if date.Before(start) {
			start = date
		}
		if date.After(end) {
			end = date
		}
	}
	return start, end
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (c *Collector) countSuccess(provider string) {
	c.mu.Lock()
	c.succeeded[provider]++
	c.mu.Unlock()
}

func (c *Collector) countSkip(provider string) {
	c.mu.Lock()
	c.skipped[provider]++
	c.mu.Unlock()
}

// snapshot returns the run totals and the per-provider breakdown.
func (c *Collector) snapshot() (succeeded, skipped int, summary map[string]map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	summary = make(map[string]map[string]int)
	for _, provider := range c.providers {
		name := provider.Name()
		summary[name] = map[string]int{
			"succeeded": c.succeeded[name],
			"skipped":   c.skipped[name],
		}
		succeeded += c.succeeded[name]
		skipped += c.skipped[name]
	}
	return succeeded, skipped, summary
}

// saveRun appends the run summary row.
func (c *Collector) saveRun(ctx context.Context, startedAt time.Time, succeeded, skipped int, summary map[string]map[string]int) error {
	var payload pgtype.JSONB
	if err := payload.Set(summary); err != nil {
		return fmt.Errorf("error encoding run summary: %v", err)
	}

	return c.db.SaveCollectionRun(ctx, &database.CollectionRun{
		RunID:      uuid.NewString(),
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
		StartDate:  c.start,
		EndDate:    c.end,
		Succeeded:  succeeded,
		Skipped:    skipped,
		Summary:    payload,
	})
}
