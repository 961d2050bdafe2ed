// Package server exposes the analysis pipeline and conversation engine over
// a JSON HTTP API.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/insight-api/internal/cache"
	"github.com/sells-group/insight-api/internal/chat"
	"github.com/sells-group/insight-api/internal/config"
	"github.com/sells-group/insight-api/internal/monitoring"
	"github.com/sells-group/insight-api/internal/pipeline"
)

// Server wires the HTTP handlers to the analysis core.
type Server struct {
	pipeline *pipeline.Service
	engine   *chat.Engine
	analyses *cache.Cache
	metrics  *monitoring.Collector
	cfg      config.ServerConfig
}

// New creates a Server. metrics may be nil.
func New(pipe *pipeline.Service, engine *chat.Engine, analyses *cache.Cache, metrics *monitoring.Collector, cfg config.ServerConfig) *Server {
	return &Server{
		pipeline: pipe,
		engine:   engine,
		analyses: analyses,
		metrics:  metrics,
		cfg:      cfg,
	}
}

// Router builds the chi handler tree with middleware, CORS, and per-route
// rate limits.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(api chi.Router) {
		api.Get("/stats", s.handleStats)
		api.With(NewIPRateLimiter(s.cfg.AnalyzePerMinute).Middleware).Post("/analyze", s.handleAnalyze)
		api.With(NewIPRateLimiter(s.cfg.ChatPerMinute).Middleware).Post("/chat", s.handleChat)
	})

	return r
}

// requestLogger logs one line per request through the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("http: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
