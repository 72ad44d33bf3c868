package http

import (
	"context"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"sheetpipe/internal/cache"
	"sheetpipe/internal/core"
	"sheetpipe/internal/middleware/ratelimit"
	"sheetpipe/internal/middleware/security"
	"sheetpipe/internal/middleware/trace"
	"sheetpipe/internal/staging"
	"sheetpipe/internal/warehouse"
	appweb "sheetpipe/web"
)

// Ingestor accepts an uploaded spreadsheet and returns the created job.
type Ingestor interface {
	IngestUpload(ctx context.Context, filename string, r io.Reader) (core.ImportJob, error)
}

// Warehouse is the slice of the ledger the dashboard reads from.
type Warehouse interface {
	GetJob(ctx context.Context, jobID string) (core.ImportJob, error)
	DatasetOverview(ctx context.Context, dataset core.Dataset, recentLimit int) (core.DatasetOverview, error)
	QueueStats(ctx context.Context) (warehouse.EtlQueueStats, error)
	Ping(ctx context.Context) error
}

// Options tunes the server. Zero values fall back to defaults.
type Options struct {
	Addr              string
	MaxUploadBytes    int64
	RequestsPerMinute int
	OverviewTTL       time.Duration
	Datasets          []core.Dataset
}

const (
	defaultMaxUploadBytes = 25 << 20
	defaultOverviewTTL    = 30 * time.Second
	recentJobsLimit       = 10
)

type Server struct {
	http.Server
	templates *template.Template

	ingestor Ingestor
	wh       Warehouse
	staging  staging.RecordStore
	datasets []core.Dataset

	maxUploadBytes int64

	tracer   *trace.Middleware
	detector *security.Detector
	limiter  *ratelimit.Limiter

	// Overview aggregates are cached per dataset so dashboard polling does
	// not hammer the warehouse.
	overviewCache *cache.LRUCache[core.DatasetOverview]
	cacheManager  *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes, middleware, and templates, returning a
// ready-to-run server.
func NewServer(opts Options, ing Ingestor, wh Warehouse, st staging.RecordStore) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.OverviewTTL <= 0 {
		opts.OverviewTTL = defaultOverviewTTL
	}

	mux := http.NewServeMux()

	s := &Server{
		ingestor:       ing,
		wh:             wh,
		staging:        st,
		datasets:       opts.Datasets,
		maxUploadBytes: opts.MaxUploadBytes,
		detector:       security.NewDetector(),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RequestsPerMinute,
		}),
		overviewCache: cache.NewLRUCache[core.DatasetOverview](16, opts.OverviewTTL),
		cacheManager:  cache.NewManager(),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP)

	s.cacheManager.Register(s.overviewCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		slog.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		slog.Warn("Failed to mount embedded static FS", "error", err)
	}

	rateLimited := s.limiter.Middleware(s.detector.ExtractClientIP, nil)

	mux.HandleFunc("/", s.handleIndex)
	mux.Handle("/uploads", rateLimited(http.HandlerFunc(s.handleUpload)))
	mux.HandleFunc("/jobs/", s.handleJobStatus)
	mux.HandleFunc("/ui/dataset-overview", s.handleDatasetOverview)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	handler := s.tracer.Middleware(headers.Middleware(s.rejectSuspicious(mux)))

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// rejectSuspicious drops requests that look like scanner probes before they
// reach the mux.
func (s *Server) rejectSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			slog.WarnContext(r.Context(), "Suspicious request rejected",
				"path", r.URL.Path,
				"client_ip", s.detector.ExtractClientIP(r),
				"user_agent", r.Header.Get("User-Agent"))
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports ready only when both stores answer a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := s.wh.Ping(ctx); err != nil {
		slog.WarnContext(ctx, "Readiness check failed", "store", "warehouse", "error", err)
		http.Error(w, "warehouse unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := s.staging.Ping(ctx); err != nil {
		slog.WarnContext(ctx, "Readiness check failed", "store", "staging", "error", err)
		http.Error(w, "staging unavailable", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
