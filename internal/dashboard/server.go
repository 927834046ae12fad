// Package dashboard serves the upload form and analysis results over HTTP.
package dashboard

import (
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/sells-group/densitymap/internal/config"
	"github.com/sells-group/densitymap/internal/pipeline"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Options configures the HTTP surface.
type Options struct {
	MaxUploadBytes int64
	CORSOrigins    []string
	RateLimit      float64 // analyses per second across all clients, 0 = unlimited
	RateBurst      int
}

// OptionsFromConfig maps the server section of cfg.
func OptionsFromConfig(cfg config.ServerConfig) Options {
	return Options{
		MaxUploadBytes: int64(cfg.MaxUploadMB) << 20,
		CORSOrigins:    cfg.CORSOrigins,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
	}
}

// Server runs one pipeline per analysis request. It holds no per-session
// state; every request gets its own extraction directory.
type Server struct {
	opts     Options
	analysis pipeline.Options
	limiter  *rate.Limiter
	page     *template.Template
	metrics  *metrics
}

// New creates a Server.
func New(opts Options, analysis pipeline.Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 64 << 20
	}
	s := &Server{
		opts:     opts,
		analysis: analysis,
		page:     template.Must(template.ParseFS(templateFS, "templates/index.html.tmpl")),
		metrics:  newMetrics(),
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return s
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)

	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition", "X-Run-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", s.metrics.handler())
	r.Get("/", s.index)

	r.Group(func(ar chi.Router) {
		ar.Use(s.rateLimit)
		ar.Use(s.limitBody)
		ar.Post("/analyze", s.analyzePage)
		ar.Route("/api", func(api chi.Router) {
			api.Post("/analyze", s.analyzeJSON)
			api.Post("/report.xlsx", s.reportXLSX)
		})
	})

	return r
}

// HTTPServer wraps Handler with the timeouts from cfg.
func (s *Server) HTTPServer(addr string, cfg config.ServerConfig) *http.Server {
	readTimeout := time.Duration(cfg.ReadTimeoutSecs) * time.Second
	if readTimeout <= 0 {
		readTimeout = 60 * time.Second
	}
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       readTimeout,
	}
}
