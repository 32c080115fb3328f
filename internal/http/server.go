// Package http serves the parent overview pages, the staff JSON API and the ops endpoints.
package http

import (
	"context"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"edulink/internal/auth"
	"edulink/internal/backend"
	"edulink/internal/inflight"
	"edulink/internal/log"
	"edulink/internal/metrics"
	"edulink/internal/middleware/ratelimit"
	"edulink/internal/middleware/security"
	"edulink/internal/middleware/trace"
	"edulink/internal/overview"
	"edulink/internal/tokenstore"
	appweb "edulink/web"
)

// ReadinessCheck is one dependency probed by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps are the collaborators the server calls into.
type Deps struct {
	Backend  backend.Backend
	Recorder backend.Recorder

	// Links defaults to Backend; pass a cached issuer to avoid repeat RPCs.
	Links    backend.ParentLinkIssuer
	Tokens   tokenstore.Store
	Inflight inflight.Guard

	// Verifier is nil when no JWT secret is configured; the staff API then answers 503.
	Verifier  *auth.Verifier
	Readiness []ReadinessCheck
	Logger    *log.Logger
}

type Options struct {
	Addr               string
	ParentWebOrigin    string
	Location           *time.Location
	RecentLimit        int
	InflightTTL        time.Duration
	OverviewTimeout    time.Duration
	RateLimitPerMinute int
	Now                func() time.Time
}

func (o *Options) defaults() {
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.RecentLimit <= 0 {
		o.RecentLimit = overview.DefaultRecentLimit
	}
	if o.InflightTTL <= 0 {
		o.InflightTTL = 15 * time.Second
	}
	if o.OverviewTimeout <= 0 {
		o.OverviewTimeout = 10 * time.Second
	}
	if o.RateLimitPerMinute <= 0 {
		o.RateLimitPerMinute = ratelimit.DefaultConfig().RequestsPerMinute
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type Server struct {
	http.Server

	deps       Deps
	opts       Options
	templates  *template.Template
	normalizer *overview.Normalizer
	limiter    *ratelimit.Limiter
	detector   *security.Detector
	logger     *log.Logger

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware into a ready-to-run http.Server.
func NewServer(deps Deps, opts Options) (*Server, error) {
	if deps.Backend == nil {
		return nil, errors.New("http: backend is required")
	}
	opts.defaults()
	if deps.Links == nil {
		deps.Links = deps.Backend
	}
	if deps.Tokens == nil {
		deps.Tokens = tokenstore.NewCookie(false)
	}
	if deps.Inflight == nil {
		deps.Inflight = inflight.NewLocal()
	}
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)
	}

	t, err := defaultTemplates()
	if err != nil {
		return nil, err
	}

	s := &Server{
		deps:       deps,
		opts:       opts,
		templates:  t,
		normalizer: overview.NewNormalizer(opts.Location).WithClock(opts.Now),
		detector:   security.NewDetector(),
		logger:     deps.Logger,
	}
	s.limiter = ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: opts.RateLimitPerMinute,
		OnLimited: func(key string) {
			s.logger.Warn("Rate limit exceeded", log.FieldClientIP, key)
		},
	})

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(log.Middleware(s.logger))
	r.Use(trace.New(s.logger, s.detector.ClientIP).Handler)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.Use(s.flagSuspicious)
	r.Use(s.limiter.Middleware(s.detector.ClientIP, s.rateLimited, http.MethodPost))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", metrics.Handler())
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		r.With(security.StaticAssets(3600)).
			Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(sub))))
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/p", http.StatusFound)
	})
	r.Group(func(r chi.Router) {
		r.Use(security.NoStore)
		r.Get("/p", s.handleTokenForm)
		r.Post("/p", s.handleTokenSubmit)
		r.Post("/p/forget", s.handleForget)
		r.Get("/p/{token}", s.handleOverviewPage)
		r.Get("/overview", s.handleOverviewQuery)
		r.Get("/ui/overview/{token}", s.handleOverviewPartial)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireStaff)
		r.Post("/attendance", s.handleRecordAttendance)
		r.Post("/students/{studentId}/parent-link", s.handleParentLink)
		r.Get("/classes/{classId}/roll", s.handleClassRoll)
		r.Get("/academies/{academyId}/today-classes", s.handleTodayClasses)
		r.Get("/feedback-presets", s.handleFeedbackPresets)
	})
	return r
}

func (s *Server) requireStaff(next http.Handler) http.Handler {
	if s.deps.Verifier == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusServiceUnavailable, "staff_api_disabled", "스태프 API가 설정되지 않았습니다.")
		})
	}
	return s.deps.Verifier.Middleware(next)
}

func (s *Server) flagSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.Suspicious(r) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				log.FieldMethod, r.Method, log.FieldClientIP, s.detector.ClientIP(r),
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "요청이 너무 많습니다. 잠시 후 다시 시도해주세요.")
		return
	}
	http.Error(w, "요청이 너무 많습니다. 잠시 후 다시 시도해주세요.", http.StatusTooManyRequests)
}

// Shutdown stops background loops and drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
