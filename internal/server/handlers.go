package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/er-portal/internal/auth"
	"github.com/dharsanguruparan/er-portal/internal/queue"
	"github.com/dharsanguruparan/er-portal/internal/repository"
	"github.com/dharsanguruparan/er-portal/internal/session"
	"github.com/dharsanguruparan/er-portal/internal/upload"
)

// DataFormat is one selectable register format.
type DataFormat struct {
	Value string
	Text  string
}

var dataFormats = []DataFormat{
	{Value: "", Text: "Select a format"},
	{Value: "Express", Text: "Express"},
	{Value: "Strand", Text: "Strand"},
	{Value: "Halarose", Text: "Halarose"},
	{Value: "Xpress software solutions", Text: "Xpress software solutions"},
	{Value: "Other compatible formats", Text: "Other"},
}

const deadlineDateLayout = "2006-01-02"

// handleLogin renders the developer login page. Visiting it drops any
// existing authentication, which doubles as sign-out.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sid, data, err := s.ensureSession(w, r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	data.Token = ""
	data.Identity = auth.Identity{}
	flash := data.TakeFlash()
	if err := s.sessions.Put(r.Context(), sid, data); err != nil {
		s.renderError(w, r, err)
		return
	}
	s.render(w, http.StatusOK, "login.html", map[string]any{
		"DevLoginURL": "/dev-login",
		"Errors":      flash.Errors,
		"FormFields":  flash.FormFields,
		"CSRFToken":   s.csrf.Token(sid),
	})
}

// handleDevLogin exchanges the submitted email for a backend-signed token and
// establishes the authenticated session.
func (s *Server) handleDevLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sid, data, err := s.ensureSession(w, r)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.loginFailure(w, r, sid, data, "", "Unable to sign in with the provided email address")
		return
	}
	if !s.csrf.Verify(sid, r.PostFormValue("_csrf")) {
		s.loginFailure(w, r, sid, data, "", "Your session has expired, please try again")
		return
	}
	email := strings.TrimSpace(r.PostFormValue("email"))
	if email == "" {
		s.log.Warn().Msg("no email provided for dev login")
		s.loginFailure(w, r, sid, data, "", "Please enter an email address")
		return
	}

	token, err := s.api.Authenticate(r.Context(), email)
	if err != nil {
		s.log.Error().Err(err).Msg("error while logging in using developer email field")
		s.loginFailure(w, r, sid, data, email, "Unable to sign in with the provided email address")
		return
	}
	ident, err := auth.ParseToken(token, s.cfg.JWTKey)
	if err != nil {
		s.log.Error().Err(err).Msg("backend token failed verification")
		s.loginFailure(w, r, sid, data, email, "Unable to sign in with the provided email address")
		return
	}

	data.Token = token
	data.Identity = ident
	data.ClearFlash()
	if err := s.sessions.Put(r.Context(), sid, data); err != nil {
		s.renderError(w, r, err)
		return
	}
	s.log.Info().
		Str("laCode", ident.LACode).
		Str("username", ident.Username).
		Msg("user logged in")
	http.Redirect(w, r, "/data-upload", http.StatusFound)
}

func (s *Server) loginFailure(w http.ResponseWriter, r *http.Request, sid string, data *session.Data, email, message string) {
	data.Errors = map[string]string{"email": message}
	if email != "" {
		data.FormFields = map[string]string{"email": email}
	}
	if err := s.sessions.Put(r.Context(), sid, data); err != nil {
		s.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// handleDataUpload renders the upload form with one-shot errors and form
// values, gated on the upload window still being open.
func (s *Server) handleDataUpload(w http.ResponseWriter, r *http.Request, sid string, data *session.Data) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flash := data.TakeFlash()
	if err := s.sessions.Put(r.Context(), sid, data); err != nil {
		s.renderError(w, r, err)
		return
	}

	details, err := s.api.Dashboard(r.Context(), data.Token)
	if err != nil {
		s.log.Error().Err(err).
			Str("laCode", data.Identity.LACode).
			Msg("failed to fetch dashboard details")
		s.renderError(w, r, err)
		return
	}

	// Days remaining is 0 on the last day of the window; only a negative
	// count closes it.
	windowClosed := true
	displayDeadline := ""
	daysRemaining := 0
	if details != nil && details.DeadlineDate != "" {
		deadline, parseErr := time.Parse(deadlineDateLayout, details.DeadlineDate)
		if parseErr != nil {
			s.log.Error().Err(parseErr).
				Str("deadlineDate", details.DeadlineDate).
				Str("laCode", data.Identity.LACode).
				Msg("error processing upload dashboard details")
		} else {
			displayDeadline = deadline.Format("2 January 2006")
			daysRemaining = details.DaysRemaining
			windowClosed = daysRemaining < 0
		}
	} else {
		s.log.Error().
			Str("laCode", data.Identity.LACode).
			Msg("error processing upload dashboard details")
	}
	if windowClosed {
		http.Redirect(w, r, "/data-upload-closed", http.StatusFound)
		return
	}

	s.render(w, http.StatusOK, "data_upload.html", map[string]any{
		"DeadlineDate":      displayDeadline,
		"DaysRemaining":     daysRemaining,
		"UploadStatus":      details.UploadStatus,
		"DataFormats":       dataFormats,
		"FileUploadPostURL": "/submit-data-upload",
		"FileTypes":         s.cfg.AllowedExtensions,
		"Banner":            flash.Banner,
		"FormFields":        flash.FormFields,
		"Errors":            flash.Errors,
		"CSRFToken":         s.csrf.Token(sid),
	})
}

// handleDataUploadClosed renders the closed-window notice.
func (s *Server) handleDataUploadClosed(w http.ResponseWriter, r *http.Request, sid string, data *session.Data) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	data.ClearFlash()
	if err := s.sessions.Put(r.Context(), sid, data); err != nil {
		s.renderError(w, r, err)
		return
	}
	s.render(w, http.StatusOK, "data_upload_closed.html", nil)
}

// handleSubmitDataUpload consumes the multipart body and drives the upload
// pipeline, then queues flash state and redirects back to the form.
func (s *Server) handleSubmitDataUpload(w http.ResponseWriter, r *http.Request, sid string, data *session.Data) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	data.ClearFlash()
	if err := s.sessions.Put(r.Context(), sid, data); err != nil {
		s.renderError(w, r, err)
		return
	}

	ident := data.Identity
	reqLog := s.log.With().Str("laCode", ident.LACode).Logger()
	reqLog.Info().
		Str("laName", ident.LAName).
		Str("userName", ident.Username).
		Str("userEmail", ident.Email).
		Msg("received data upload request")

	// Headroom above the file ceiling for boundaries and form fields; the
	// precise per-file limit is enforced inside the coordinator.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileSize+(2<<20))
	mr, err := r.MultipartReader()
	if err != nil {
		reqLog.Error().Err(err).Msg("expecting multipart form data")
		s.renderError(w, r, err)
		return
	}

	sess := upload.NewSession(ident, time.Now())
	coord := upload.NewCoordinator(s.blobs, upload.Config{
		MaxFileSize:       s.cfg.MaxFileSize,
		AllowedExtensions: s.cfg.AllowedExtensions,
		UploadTimeout:     s.cfg.UploadTimeout,
	}, sess, reqLog)
	outcome := coord.Run(r.Context(), mr)

	switch outcome.Kind {
	case upload.OutcomeFatal:
		s.renderError(w, r, outcome.Err)
		return
	case upload.OutcomeInvalid:
		data.Errors = outcome.Errors.Fields()
		data.FormFields = outcome.FormFields
		if outcome.Banner != nil {
			data.Banner = &session.Banner{Type: outcome.Banner.Type, Message: outcome.Banner.Message}
		}
	case upload.OutcomeSuccess:
		if outcome.Banner != nil {
			data.Banner = &session.Banner{Type: outcome.Banner.Type, Message: outcome.Banner.Message}
		}
		auditID := s.recordAudit(r, sess)
		s.enqueueNotify(r, data.Token, sess, auditID)
	}
	if err := s.sessions.Put(r.Context(), sid, data); err != nil {
		s.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/data-upload", http.StatusFound)
}

// recordAudit persists the attempt outcome; bookkeeping failures are logged,
// never surfaced, since the data blob is already durable.
func (s *Server) recordAudit(r *http.Request, sess *upload.Session) string {
	if s.audit == nil {
		return ""
	}
	rec := &repository.UploadRecord{
		ID:               uuid.NewString(),
		LACode:           sess.LACode,
		LAName:           sess.LAName,
		UserEmail:        sess.UserEmail,
		FileName:         sess.FileName,
		DataPath:         sess.DataPath,
		MetadataPath:     sess.MetadataPath,
		BytesReceived:    sess.UploadBytesReceived,
		FileUploaded:     sess.FileUploadSuccessful,
		MetadataUploaded: sess.MetadataUploadSuccessful,
	}
	if err := s.audit.Create(r.Context(), rec); err != nil {
		s.log.Warn().Err(err).
			Str("laCode", sess.LACode).
			Str("fileName", sess.FileName).
			Msg("failed to record upload audit row")
		return ""
	}
	return rec.ID
}

// enqueueNotify schedules the backend completion report. Failures are logged
// only; the user-visible outcome is already decided.
func (s *Server) enqueueNotify(r *http.Request, token string, sess *upload.Session, auditID string) {
	if s.notify == nil {
		return
	}
	err := s.notify.EnqueueNotify(r.Context(), queue.NotifyPayload{
		AuditID:          auditID,
		LACode:           sess.LACode,
		Token:            token,
		Filename:         sess.FileName,
		FileFormat:       sess.DataFormat,
		FileSizeBytes:    sess.FileSize,
		OtherInformation: sess.OtherInformation,
	})
	if err != nil {
		s.log.Error().Err(err).
			Str("laCode", sess.LACode).
			Str("fileName", sess.FileName).
			Msg("failed to enqueue upload notification")
	}
}

// handlePage renders an authenticated static template.
func (s *Server) handlePage(name string) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, _ string, data *session.Data) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.render(w, http.StatusOK, name, map[string]any{
			"Identity": data.Identity,
		})
	}
}
