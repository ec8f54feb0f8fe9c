// Package server hosts the portal's HTTP surface: login, the upload form,
// the multipart submit endpoint, and the static information pages.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/er-portal/internal/auth"
	"github.com/dharsanguruparan/er-portal/internal/backendapi"
	"github.com/dharsanguruparan/er-portal/internal/config"
	"github.com/dharsanguruparan/er-portal/internal/csrf"
	"github.com/dharsanguruparan/er-portal/internal/queue"
	"github.com/dharsanguruparan/er-portal/internal/repository"
	"github.com/dharsanguruparan/er-portal/internal/session"
	"github.com/dharsanguruparan/er-portal/internal/upload"
)

// BackendAPI is the slice of the backend client the handlers consume.
type BackendAPI interface {
	Dashboard(ctx context.Context, token string) (*backendapi.DashboardDetails, error)
	Authenticate(ctx context.Context, email string) (string, error)
}

// Notifier schedules the post-upload completion report.
type Notifier interface {
	EnqueueNotify(ctx context.Context, payload queue.NotifyPayload) error
}

// AuditLog records upload outcomes. Nil disables audit bookkeeping.
type AuditLog interface {
	Create(ctx context.Context, rec *repository.UploadRecord) error
}

// Server stitches together configuration, sessions, storage, the backend API
// client, and background task scheduling. All dependencies are constructed at
// startup and read-only afterwards.
type Server struct {
	cfg      *config.Config
	sessions session.Store
	blobs    upload.BlobStore
	api      BackendAPI
	notify   Notifier
	audit    AuditLog
	csrf     *csrf.Signer
	log      zerolog.Logger

	server *http.Server
	once   sync.Once
}

// New constructs a Server. notify and audit may be nil in reduced dev setups.
func New(cfg *config.Config, sessions session.Store, blobs upload.BlobStore, api BackendAPI, notify Notifier, audit AuditLog, log zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		blobs:    blobs,
		api:      api,
		notify:   notify,
		audit:    audit,
		csrf:     csrf.NewSigner(cfg.JWTKey, cfg.CSRFTokenTTL),
		log:      log,
	}
}

// Handler returns the routed HTTP handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleLogin)
	mux.HandleFunc("/dev-login", s.handleDevLogin)
	mux.HandleFunc("/data-upload", s.requireAuth(s.handleDataUpload))
	mux.HandleFunc("/data-upload-closed", s.requireAuth(s.handleDataUploadClosed))
	mux.HandleFunc("/submit-data-upload", s.requireAuth(s.handleSubmitDataUpload))
	mux.HandleFunc("/upload-guidance", s.requireAuth(s.handlePage("upload_guidance.html")))
	mux.HandleFunc("/account-details", s.requireAuth(s.handlePage("account_details.html")))
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return loggingMiddleware(s.log, mux)
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:              s.cfg.Address,
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.Info().Str("address", s.cfg.Address).Msg("portal listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// ensureSession loads the caller's session, creating an anonymous one (and
// setting the cookie) when none exists.
func (s *Server) ensureSession(w http.ResponseWriter, r *http.Request) (string, *session.Data, error) {
	if cookie, err := r.Cookie(s.cfg.CookieName); err == nil && cookie.Value != "" {
		data, err := s.sessions.Get(r.Context(), cookie.Value)
		if err == nil {
			return cookie.Value, data, nil
		}
		if !errors.Is(err, session.ErrNotFound) {
			return "", nil, err
		}
	}
	id := session.NewID()
	data := &session.Data{}
	if err := s.sessions.Put(r.Context(), id, data); err != nil {
		return "", nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return id, data, nil
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sid string, data *session.Data)

// requireAuth verifies the session's bearer token before invoking the
// handler; unauthenticated or expired sessions are bounced to the login page.
func (s *Server) requireAuth(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, data, err := s.ensureSession(w, r)
		if err != nil {
			s.renderError(w, r, err)
			return
		}
		if !data.Authenticated() {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		ident, err := auth.ParseToken(data.Token, s.cfg.JWTKey)
		if err != nil {
			s.log.Warn().Err(err).Str("laCode", data.Identity.LACode).Msg("session token rejected")
			_ = s.sessions.Delete(r.Context(), sid)
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		r = r.WithContext(auth.WithIdentity(r.Context(), ident))
		next(w, r, sid, data)
	}
}

func loggingMiddleware(log zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
