package http

import (
	"bytes"
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"budgetshare/internal/api"
	"budgetshare/internal/log"
	"budgetshare/internal/metrics"
	"budgetshare/internal/middleware/ratelimit"
	"budgetshare/internal/middleware/security"
	"budgetshare/internal/middleware/trace"
	"budgetshare/internal/services"
	appweb "budgetshare/web"
)

const sessionCookie = "budgetshare_session"

type Config struct {
	Addr string
	// CookieSecure marks the session cookie Secure.
	CookieSecure       bool
	RateLimitPerMinute int
	TrustedProxies     []string
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Server struct {
	http.Server
	templates  *template.Template
	ledger     *services.Ledger
	auth       *services.Auth
	checks     map[string]ReadinessCheck
	procedures map[string]procedure

	logger   *log.Logger
	detector *security.Detector
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware

	cookieSecure bool
	startTime    time.Time
	now          func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run server.
// The caller owns Shutdown, which also stops the rate limiter.
func NewServer(cfg Config, ledger *services.Ledger, auth *services.Auth, checks map[string]ReadinessCheck, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	s := &Server{
		ledger:       ledger,
		auth:         auth,
		checks:       checks,
		logger:       logger.WithComponent(log.ComponentHTTP),
		detector:     security.NewDetector(),
		limiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		cookieSecure: cfg.CookieSecure,
		startTime:    time.Now(),
		now:          time.Now,
	}
	for _, cidr := range cfg.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			s.logger.Warn("Ignoring trusted proxy", log.FieldError, err)
		}
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)
	s.procedures = s.buildProcedures()

	t, err := template.New("").Funcs(templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates", log.FieldComponent, log.ComponentTemplate, log.FieldError, err)
	} else {
		s.templates = t
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.limitMutations(handler)
	handler = s.screen(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = log.RequestIDMiddleware(func(r *http.Request) string { return trace.GetRequestID(r.Context()) })(handler)
	handler = log.Middleware(logger)(handler)
	handler = s.tracer.Middleware(handler)
	handler = otelhttp.NewHandler(handler, "budgetshare")

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("GET /register", s.handleRegisterPage)
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /logout", s.handleLogout)

	mux.Handle("GET /{$}", s.requireSession(s.handleDashboard))
	mux.Handle("GET /ui/transactions", s.requireSession(s.handleTransactionsPartial))
	mux.Handle("GET /ui/budgets", s.requireSession(s.handleBudgetsPartial))
	mux.Handle("GET /ui/users", s.requireSession(s.handleUsersPartial))

	mux.Handle("POST /transactions", s.requireSession(s.handleAddTransaction))
	mux.Handle("POST /transactions/{id}", s.requireSession(s.handleUpdateTransaction))
	mux.Handle("DELETE /transactions/{id}", s.requireSession(s.handleDeleteTransaction))
	mux.Handle("POST /budgets", s.requireSession(s.handleSetBudget))
	mux.Handle("DELETE /budgets/{category}", s.requireSession(s.handleDeleteBudget))
	mux.Handle("POST /invites", s.requireSession(s.handleGenerateInvite))
	mux.Handle("POST /users/{id}/revoke", s.requireSession(s.handleRevokeAccess))
	mux.Handle("GET /invite/{token}", s.requireSession(s.handleInvitePage))
	mux.Handle("POST /invite/{token}", s.requireSession(s.handleAcceptInvite))

	mux.HandleFunc("POST /api/login", s.handleAPILogin)
	mux.HandleFunc("POST /api/register", s.handleAPIRegister)
	mux.HandleFunc("POST /api/logout", s.handleAPILogout)
	mux.HandleFunc("POST /api/call/{method}", s.handleCall)
}

// screen turns away requests that look like vulnerability scans.
func (s *Server) screen(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request rejected",
				log.FieldComponent, log.ComponentSecurity,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldClientIP, s.detector.ExtractClientIP(r),
				log.FieldUserAgent, r.Header.Get("User-Agent"))
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limitMutations applies the per-client rate limit to everything but reads.
func (s *Server) limitMutations(next http.Handler) http.Handler {
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
		default:
			limited.ServeHTTP(w, r)
		}
	})
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldComponent, log.ComponentRateLimit,
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	if isAPI(r) {
		writeResult(w, http.StatusTooManyRequests, api.ErrResult(api.KindRateLimited, "Too many requests. Please wait a moment."))
		return
	}
	NewHTMXResponse().
		Status(http.StatusTooManyRequests).
		TriggerErrorNotification("Too many requests. Please wait a moment.").
		Write(w)
}

// render buffers the whole template before writing any of it.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded", log.FieldPath, r.URL.Path, log.FieldComponent, log.ComponentTemplate)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.ErrorContext(r.Context(), "Template render failed",
			log.FieldComponent, log.ComponentTemplate, log.FieldOperation, log.OpRender,
			"template", name, log.FieldError, err)
		InternalServerError(genericFailure).Write(w)
		return
	}
	NewHTMXResponse().Status(status).BodyHTML(buf.String()).Write(w)
}

// Shutdown gracefully shuts down the server and its background goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
