package http

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SneHope/TVH-NotiZAR/internal/dashboard"
	"github.com/SneHope/TVH-NotiZAR/internal/domain"
)

// ReportService is the report lifecycle surface the API exposes.
type ReportService interface {
	Submit(ctx context.Context, in domain.ReportInput) (domain.Report, error)
	List(ctx context.Context, f domain.ReportFilter) ([]domain.Report, error)
	GetByID(ctx context.Context, id string) (domain.Report, error)
	UpdateStatus(ctx context.Context, id string, next domain.Status) error
	AddAdminUpdate(ctx context.Context, in domain.AdminUpdateInput) (domain.AdminUpdate, error)
	ListAdminUpdates(ctx context.Context, reportID string) ([]domain.AdminUpdate, error)
	MarkUpdateRead(ctx context.Context, updateID string) error
	Export(ctx context.Context, start, end time.Time) (domain.ExportSnapshot, error)
	PublishAnnouncement(ctx context.Context, in domain.AnnouncementInput) (domain.Announcement, error)
	ListAnnouncements(ctx context.Context, limit int) ([]domain.Announcement, error)
}

// DashboardSource yields the current dashboard view.
type DashboardSource interface {
	Snapshot() dashboard.View
}

// Deps are the collaborators behind the routes. Dashboard and AdminHub may be
// nil, in which case their routes answer 503. Without a Geocoder the
// geolocation pre-fill carries coordinates only.
type Deps struct {
	Reports    ReportService
	Dashboard  DashboardSource
	Ready      sharedobs.ReadinessChecker
	Geocoder   domain.Geocoder
	AdminHub   http.Handler
	AdminToken string
	Clock      clockwork.Clock
}

// Server exposes the report API, the admin websocket, and the health,
// readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
}

// NewServer creates an HTTP server with every route mounted.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}

	s := &Server{
		deps:   deps,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(deps.Ready))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/reports", s.handleSubmit)
		r.Get("/reports", s.handleList)
		r.Get("/reports/{id}", s.handleGet)
		r.Get("/reports/{id}/updates", s.handleListUpdates)
		r.Post("/updates/{id}/read", s.handleMarkRead)
		r.Get("/dashboard", s.handleDashboard)
		r.Get("/geolocate", s.handleGeolocate)
		r.Get("/announcements", s.handleListAnnouncements)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/admin/reports", s.handleAdminList)
			r.Get("/admin/reports/{id}", s.handleAdminGet)
			r.Patch("/reports/{id}/status", s.handleUpdateStatus)
			r.Post("/reports/{id}/updates", s.handleAddUpdate)
			r.Post("/announcements", s.handlePublishAnnouncement)
			r.Get("/export", s.handleExport)
		})
	})

	r.With(s.requireAdmin).Get("/ws/admin", s.handleAdminSocket)

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		// Websocket connections outlive a single write, so no WriteTimeout.
		IdleTimeout: 60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// requireAdmin accepts the admin token from the X-Admin-Token header or the
// token query parameter. With no token configured every admin route is
// refused.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Admin-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if s.deps.AdminToken == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(s.deps.AdminToken)) != 1 {
			s.writeError(w, r, domain.ErrPermissionDenied)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		// Health checks and scrapes would drown the log.
		switch r.URL.Path {
		case "/healthz", "/readyz", "/metrics":
			return
		}
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("http handler panic",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
				)
				sharedobs.WriteJSON(w, http.StatusInternalServerError, errorBody{
					Error: "internal error",
					Code:  "internal",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
