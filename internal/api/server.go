package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/netfleet/fleetwatch/internal/models"
	"github.com/netfleet/fleetwatch/internal/store"
)

const shutdownTimeout = 10 * time.Second

// SchedulerControl is the scheduler surface the API exposes.
type SchedulerControl interface {
	Start() error
	Stop() error
	Status() models.SchedulerStatus
}

// TimeoutReader is the timeout-tracker surface the API exposes.
type TimeoutReader interface {
	Summary() models.TimeoutSummary
	List(minConsecutive int) []models.TimeoutRecord
	Critical() []models.TimeoutRecord
	Reset() error
}

// ResultReader is the result-store surface the API exposes.
type ResultReader interface {
	Latest(limit int) ([]models.ProbeResult, error)
	ReadDate(date string) ([]models.ProbeResult, error)
	LatestByAddress() []models.ProbeResult
	Partitions() ([]store.PartitionInfo, error)
	Rebuild() error
}

// Server is the HTTP front of the polling core. The core itself exposes no
// listener; everything routes through the store, tracker, and scheduler
// entry points.
type Server struct {
	listen    string
	scheduler SchedulerControl
	timeouts  TimeoutReader
	results   ResultReader
	logger    zerolog.Logger

	httpServer *http.Server
	wg         sync.WaitGroup
}

// NewServer creates the API server listening on listen (host:port).
func NewServer(listen string, scheduler SchedulerControl, timeouts TimeoutReader, results ResultReader, logger zerolog.Logger) (*Server, error) {
	if listen == "" {
		return nil, errors.New("API listen address must not be empty")
	}
	return &Server{
		listen:    listen,
		scheduler: scheduler,
		timeouts:  timeouts,
		results:   results,
		logger:    logger,
	}, nil
}

// Start begins serving in the background.
func (s *Server) Start() error {
	if s.httpServer != nil {
		s.logger.Warn().Msg("API server is already running")
		return errors.New("api server is already running")
	}

	s.httpServer = &http.Server{
		Addr:              s.listen,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("API server terminated unexpectedly")
		}
	}()

	s.logger.Info().Str("listen", s.listen).Msg("API server started successfully")
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		s.logger.Warn().Msg("API server is not running")
		return errors.New("api server is not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	s.wg.Wait()
	s.httpServer = nil

	if err != nil {
		return err
	}
	s.logger.Info().Msg("API server stopped successfully")
	return nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/results", func(r chi.Router) {
			r.Get("/latest", s.handleLatestResults)
			r.Get("/current", s.handleCurrentResults)
			r.Get("/history", s.handleHistory)
			r.Get("/partitions", s.handlePartitions)
			r.Post("/rebuild", s.handleRebuild)
		})

		r.Route("/timeouts", func(r chi.Router) {
			r.Get("/", s.handleTimeoutList)
			r.Get("/summary", s.handleTimeoutSummary)
			r.Get("/critical", s.handleTimeoutCritical)
			r.Post("/reset", s.handleTimeoutReset)
		})

		r.Route("/service", func(r chi.Router) {
			r.Get("/status", s.handleServiceStatus)
			r.Post("/start", s.handleServiceStart)
			r.Post("/stop", s.handleServiceStop)
		})
	})

	return r
}
