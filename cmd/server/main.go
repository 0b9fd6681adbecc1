package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/liamcoop/churn/artifact"
	"github.com/liamcoop/churn/internal/config"
	"github.com/liamcoop/churn/internal/logger"
	"github.com/liamcoop/churn/internal/metrics"
	"github.com/liamcoop/churn/model"
	"github.com/liamcoop/churn/record"
	"github.com/liamcoop/churn/web"
)

const (
	errNoData      = "no data provided"
	maxRequestBody = 1 << 20
)

// Predictor is the loaded model as seen by the HTTP layer
type Predictor interface {
	Predict(f *record.Frame) (model.Prediction, error)
	Name() string
	Version() string
	SupportsProbability() bool
}

// Options tunes the HTTP layer
type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

type Server struct {
	model   Predictor
	metrics *metrics.Metrics
	index   []byte
	router  *chi.Mux
}

// NewServer wires the HTTP routes around a loaded model
func NewServer(p Predictor, m *metrics.Metrics, opts Options) *Server {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}

	s := &Server{
		model:   p,
		metrics: m,
		index:   web.IndexHTML(),
	}
	s.setupRoutes(opts)

	return s
}

func (s *Server) setupRoutes(opts Options) {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.metrics.Middleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Prediction-Id", "X-Request-Id"},
		MaxAge:         300,
	}))

	// Landing page
	r.Get("/", s.handleIndex)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(web.Static()))))

	// Inference
	r.Post("/predict", s.handlePredict)

	// Operations
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Landing page handler
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(s.index)
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:               "healthy",
		Model:                s.model.Name(),
		ModelVersion:         s.model.Version(),
		ProbabilitySupported: s.model.SupportsProbability(),
	})
}

// Prediction handler
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeBody(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err == nil && isEmptyPayload(payload) {
		err = errors.New("request body is empty")
	}
	if err != nil {
		logger.Warn("rejected prediction request", "request_id", middleware.GetReqID(r.Context()), "error", err)
		respondError(w, http.StatusBadRequest, errNoData)
		return
	}

	predictionID := uuid.NewString()
	log := logger.With(
		"request_id", middleware.GetReqID(r.Context()),
		"prediction_id", predictionID,
	)

	start := time.Now()
	log.Info("received payload", "payload", payload)

	data, err := asRecord(payload)
	if err != nil {
		s.metrics.ObserveFailure(time.Since(start))
		log.Error("prediction failed", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	mapped := record.Map(data)
	log.Info("mapped payload", "payload", mapped)

	frame := record.Shape(mapped)
	log.Debug("frame columns", "columns", frame.Columns)

	pred, err := s.model.Predict(frame)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.ObserveFailure(elapsed)
		log.Error("prediction failed", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.metrics.ObservePrediction(pred.Class, elapsed)

	w.Header().Set("X-Prediction-Id", predictionID)
	respondJSON(w, http.StatusOK, PredictResponse{
		Prediction:        pred.Class,
		ProbabilityClass1: pred.Probability,
	})
}

// decodeBody parses the request body as exactly one JSON value
func decodeBody(body io.Reader) (any, error) {
	dec := json.NewDecoder(body)

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("invalid request body: trailing data after JSON value")
	}

	return payload, nil
}

// isEmptyPayload reports whether a decoded body carries no data:
// null, false, zero, or an empty string, array or object
func isEmptyPayload(v any) bool {
	switch p := v.(type) {
	case nil:
		return true
	case bool:
		return !p
	case float64:
		return p == 0
	case string:
		return p == ""
	case []any:
		return len(p) == 0
	case map[string]any:
		return len(p) == 0
	}
	return false
}

// asRecord accepts only JSON objects as customer records
func asRecord(v any) (record.ExternalRecord, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("request body must be a JSON object, got %s", jsonKind(v))
	}
	return record.ExternalRecord(obj), nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	}
	return fmt.Sprintf("%T", v)
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

// newSource picks where the model artifact is read from. The returned close
// function releases the database connection once the artifact is loaded.
func newSource(ctx context.Context, cfg *config.Config) (artifact.Source, func(), error) {
	if !cfg.UseDatabase() {
		return artifact.NewFileSource(cfg.ModelPath), func() {}, nil
	}

	db, err := artifact.OpenPostgres(ctx, cfg.ModelDatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return artifact.NewPostgresSource(db, cfg.ModelName), func() { db.Close() }, nil
}

// loadModel reads and compiles the model artifact named by cfg
func loadModel(ctx context.Context, cfg *config.Config) (*model.Handle, error) {
	src, closeSource, err := newSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer closeSource()

	logger.Info("loading model artifact", "source", src.Describe())
	return model.Load(ctx, src)
}

// writeTimeoutMargin leaves room for the Timeout middleware's 504 to be written
const writeTimeoutMargin = 5 * time.Second

func newHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + writeTimeoutMargin,
		IdleTimeout:  60 * time.Second,
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}

	if err := logger.Setup(logger.Options{
		Level:       cfg.LogLevel,
		SampleRate:  cfg.ErrorSampleRate,
		OTELEnabled: cfg.OTELEnabled,
		ServiceName: cfg.ServiceName,
	}); err != nil {
		logger.Warn("logger setup", "error", err)
	}

	// The service cannot serve without a model
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 30*time.Second)
	handle, err := loadModel(loadCtx, cfg)
	cancelLoad()
	if err != nil {
		logger.Fatal("failed to load model", "error", err)
	}

	logger.Info("model loaded",
		"name", handle.Name(),
		"version", handle.Version(),
		"columns", len(handle.Columns()),
		"probability_supported", handle.SupportsProbability(),
	)

	m := metrics.New()
	m.SetProbabilitySupported(handle.SupportsProbability())

	server := NewServer(handle, m, Options{
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
	})

	httpServer := newHTTPServer(cfg, server)

	// Graceful shutdown handling
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "address", cfg.Address())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		logger.Fatal("server failed", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
	logger.Shutdown(ctx)
}
