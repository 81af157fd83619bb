// Package restserver implements the read API over the weather journal:
// averaged per-hour time series for a resolved city and a city name
// search. It only ever reads; the collector is the sole writer.
package restserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/lplpqq/forecast/internal/database"
	"github.com/lplpqq/forecast/internal/log"
	"github.com/lplpqq/forecast/pkg/config"
	"github.com/lplpqq/forecast/pkg/responseformat"
	"go.uber.org/zap"
)

// Controller represents the read API server
type Controller struct {
	ctx       context.Context
	wg        *sync.WaitGroup
	apiConfig config.APIData
	Server    http.Server
	DB        *database.Client
	logger    *zap.SugaredLogger
	formatter *responseformat.Formatter
	handlers  *Handlers
}

// NewController creates a new read API controller
func NewController(ctx context.Context, wg *sync.WaitGroup, db *database.Client, apiConfig config.APIData, logger *zap.SugaredLogger) (*Controller, error) {
	if apiConfig.Port == 0 {
		return nil, fmt.Errorf("api.port is required to start the read API")
	}
	if apiConfig.Host == "" {
		logger.Info("api.host not provided; defaulting to 0.0.0.0 (all interfaces)")
		apiConfig.Host = "0.0.0.0"
	}

	ctrl := &Controller{
		ctx:       ctx,
		wg:        wg,
		apiConfig: apiConfig,
		DB:        db,
		logger:    logger,
		formatter: responseformat.NewFormatter(),
	}
	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", apiConfig.Host, apiConfig.Port)
	ctrl.Server.Handler = ctrl.setupRouter()
	ctrl.Server.ReadHeaderTimeout = 10 * time.Second

	return ctrl, nil
}

// StartController starts the read API server and arranges shutdown on
// context cancellation
func (c *Controller) StartController() error {
	log.Info("Starting read API controller...")
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
			log.Errorf("read API server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		log.Info("Shutting down the read API server...")
		c.Server.Shutdown(context.Background())
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(c.loggingMiddleware, c.recoveryMiddleware)

	router.HandleFunc("/weather", c.handlers.GetWeather).Methods(http.MethodGet)
	router.HandleFunc("/cities/search", c.handlers.SearchCities).Methods(http.MethodGet)
	router.HandleFunc("/healthz", c.handlers.GetHealth).Methods(http.MethodGet)

	return router
}

// loggingMiddleware records method, path, and elapsed time per request
func (c *Controller) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		c.logger.Debugf("%s %s served in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// recoveryMiddleware converts handler panics into 500s instead of
// dropping the connection
func (c *Controller) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				c.logger.Errorf("panic serving %s %s: %v", r.Method, r.URL.Path, rec)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
