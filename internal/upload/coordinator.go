package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/er-portal/internal/metrics"
)

// BlobStore is the remote object store capability the coordinator drives.
type BlobStore interface {
	ContainerExists(ctx context.Context) (bool, error)
	UploadStream(ctx context.Context, key string, r io.Reader, contentType string) (int64, error)
	UploadBytes(ctx context.Context, key string, data []byte, contentType string) error
}

// Phase is the coordinator's current position in the multipart lifecycle.
// Transitions are strictly forward: Collecting -> Streaming -> Collecting
// (trailing fields) or Draining, then Finished.
type Phase int

const (
	// PhaseCollecting consumes field parts and waits for the file part.
	PhaseCollecting Phase = iota
	// PhaseStreaming is active while file bytes flow to the object store.
	PhaseStreaming
	// PhaseDraining discards all remaining input after an abort or fatal
	// error so the connection is never left half-read.
	PhaseDraining
	// PhaseFinished is terminal.
	PhaseFinished
)

// OutcomeKind classifies the single terminal result of a coordinator run.
type OutcomeKind int

const (
	// OutcomeSuccess: data blob committed, metadata attempted, redirect
	// with a success banner.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeInvalid: validation failed or the transfer aborted; redirect
	// with field errors and submitted values queued for re-display.
	OutcomeInvalid
	// OutcomeFatal: configuration or parser failure; render the generic
	// error page.
	OutcomeFatal
)

// Banner is a one-shot notification queued for the next page view.
type Banner struct {
	Type    string
	Message string
}

// Outcome is the coordinator's terminal report to the HTTP handler.
type Outcome struct {
	Kind       OutcomeKind
	Errors     ValidationErrors
	FormFields map[string]string
	Banner     *Banner
	Err        error
}

// ErrFileTooLarge is surfaced by the counting reader when the byte ceiling is
// reached mid-stream.
var ErrFileTooLarge = errors.New("file size limit exceeded")

// ErrStorageUnavailable marks object-store configuration failures, which are
// fatal to the request.
var ErrStorageUnavailable = errors.New("object store unavailable")

// maxFieldBytes bounds how much of a single non-file part is read.
const maxFieldBytes = 1 << 20

// Config carries the limits a Coordinator enforces.
type Config struct {
	MaxFileSize       int64
	AllowedExtensions []string
	UploadTimeout     time.Duration
}

// Coordinator consumes one multipart/form-data body, populates the Session,
// and drives exactly one file transfer to the object store.
type Coordinator struct {
	store BlobStore
	cfg   Config
	log   zerolog.Logger

	sess    *Session
	errs    ValidationErrors
	invalid bool
	phase   Phase
	banner  *Banner
	fatal   error
}

// NewCoordinator builds a coordinator around a request-scoped session.
func NewCoordinator(store BlobStore, cfg Config, sess *Session, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		store: store,
		cfg:   cfg,
		sess:  sess,
		log:   log.With().Str("laCode", sess.LACode).Logger(),
	}
}

// Session exposes the session for post-run bookkeeping (audit rows, metrics).
func (c *Coordinator) Session() *Session {
	return c.sess
}

// Run parses the stream to exhaustion and returns the terminal outcome.
// Parts may arrive in any interleaving; file-level validation runs at the
// moment the file part arrives using whatever metadata has been collected.
func (c *Coordinator) Run(ctx context.Context, mr *multipart.Reader) Outcome {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if c.sess.Aborted || c.errs.Any() || c.fatal != nil {
				// The outcome is already decided; a truncated or
				// over-cap remainder only means the drain stopped short.
				c.log.Warn().Err(err).
					Str("fileName", c.sess.FileName).
					Int64("uploadBytesReceived", c.sess.UploadBytesReceived).
					Msg("multipart body ended early after upload was rejected")
				break
			}
			c.log.Error().Err(err).
				Str("fileName", c.sess.FileName).
				Int64("uploadBytesReceived", c.sess.UploadBytesReceived).
				Msg("error processing multipart body")
			metrics.UploadsTotal.WithLabelValues("fatal").Inc()
			c.phase = PhaseFinished
			return Outcome{Kind: OutcomeFatal, Err: fmt.Errorf("parse multipart body: %w", err)}
		}
		if isFilePart(part) {
			c.handleFile(ctx, part)
		} else {
			c.handleField(part)
		}
		part.Close()
	}
	return c.finish(ctx)
}

// handleField reads one non-file part and routes it into the session.
func (c *Coordinator) handleField(part *multipart.Part) {
	name := part.FormName()
	if name == "" {
		c.drain(part)
		return
	}
	raw, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
	if err != nil {
		c.log.Error().Err(err).Str("field", name).Msg("error reading form field")
		return
	}
	c.sess.SetField(name, string(raw), c.log)
}

// handleFile processes the first file part: validate with whatever metadata
// has arrived, then stream to the object store. Subsequent file parts, and
// any file part after an abort or a failed validation, are drained and
// ignored; one failed validation rejects the whole request.
func (c *Coordinator) handleFile(ctx context.Context, part *multipart.Part) {
	if c.phase == PhaseDraining || c.invalid || c.sess.Aborted || c.sess.FileAttached() {
		c.log.Warn().
			Str("fileName", part.FileName()).
			Bool("fileStreamActive", c.sess.FileAttached()).
			Msg("upload aborted or file stream active, draining incoming file stream")
		c.drain(part)
		return
	}

	fileName := strings.TrimSpace(part.FileName())
	if fileName == "" {
		c.log.Warn().Msg("no file details received")
		c.sess.ClearDescriptor()
	} else {
		c.sess.AttachDescriptor(fileName, part.Header.Get("Content-Type"))
		c.log.Info().
			Str("fileName", fileName).
			Str("mimeType", c.sess.FileMimeType).
			Msg("upload file details received")
	}

	c.errs = Validate(c.sess, c.cfg.MaxFileSize, c.cfg.AllowedExtensions)
	if c.errs.Any() {
		c.invalid = true
		c.drain(part)
		return
	}

	exists, err := c.store.ContainerExists(ctx)
	if err != nil || !exists {
		if err == nil {
			err = errors.New("container does not exist")
		}
		c.log.Error().Err(err).Msg("object store container unavailable")
		c.fatal = fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		c.phase = PhaseDraining
		c.drain(part)
		return
	}

	c.phase = PhaseStreaming
	c.sess.MarkFileAttached()
	c.sess.BindDataPath()

	c.log.Info().
		Str("fileName", c.sess.FileName).
		Int64("fileSize", c.sess.FileSize).
		Str("mimeType", c.sess.FileMimeType).
		Str("blobPath", c.sess.DataPath).
		Msg("start upload data stream to object store")

	uploadCtx := ctx
	if c.cfg.UploadTimeout > 0 {
		var cancel context.CancelFunc
		uploadCtx, cancel = context.WithTimeout(ctx, c.cfg.UploadTimeout)
		defer cancel()
	}

	counter := &countingReader{r: part, sess: c.sess, max: c.cfg.MaxFileSize}
	written, err := c.store.UploadStream(uploadCtx, c.sess.DataPath, counter, c.sess.FileMimeType)
	switch {
	case errors.Is(err, ErrFileTooLarge):
		c.log.Error().
			Str("fileName", c.sess.FileName).
			Str("mimeType", c.sess.FileMimeType).
			Int64("uploadBytesReceived", c.sess.UploadBytesReceived).
			Msg("file size limit exceeded")
		c.sess.Aborted = true
		c.errs.FileUpload = MsgFileTooLarge
		c.banner = &Banner{Type: "error", Message: "File upload failed."}
		c.phase = PhaseDraining
	case err != nil:
		c.log.Error().Err(err).
			Str("filePath", c.sess.DataPath).
			Msg("error uploading file to object store")
		c.sess.Aborted = true
		c.banner = &Banner{Type: "error", Message: "File upload failed."}
		c.phase = PhaseDraining
	default:
		c.sess.FileUploadSuccessful = true
		if c.sess.FileSize == 0 {
			c.sess.FileSize = written
		}
		c.banner = &Banner{Type: "success", Message: "File upload successful."}
		c.phase = PhaseCollecting
		c.log.Info().
			Str("fileName", c.sess.FileName).
			Int64("fileSize", c.sess.FileSize).
			Str("mimeType", c.sess.FileMimeType).
			Str("blobPath", c.sess.DataPath).
			Msg("data file upload successful")
	}

	// Consume whatever the uploader left behind so the connection is never
	// half-read; a hung client is treated as a defect.
	c.drain(part)
	c.log.Info().
		Str("fileName", c.sess.FileName).
		Int64("uploadBytesReceived", c.sess.UploadBytesReceived).
		Msg("finished receiving file data")
}

// finish runs once all parts are consumed and reports the terminal outcome.
func (c *Coordinator) finish(ctx context.Context) Outcome {
	c.phase = PhaseFinished

	if c.fatal != nil {
		metrics.UploadsTotal.WithLabelValues("fatal").Inc()
		return Outcome{Kind: OutcomeFatal, Err: c.fatal}
	}

	if !c.errs.Any() && !c.sess.Aborted && !c.sess.FileUploadSuccessful {
		// The body finished without any file part.
		c.errs.FileUpload = MsgFileRequired
	}

	if c.errs.Any() || c.sess.Aborted {
		outcome := "invalid"
		if c.sess.Aborted {
			outcome = "aborted"
		}
		metrics.UploadsTotal.WithLabelValues(outcome).Inc()
		return Outcome{
			Kind:       OutcomeInvalid,
			Errors:     c.errs,
			FormFields: c.sess.FormValues(),
			Banner:     c.banner,
		}
	}

	// Data blob is durable; the companion record write is best-effort and
	// independently logged (see WriteMetadata).
	c.WriteMetadata(ctx)

	metrics.UploadsTotal.WithLabelValues("success").Inc()
	return Outcome{
		Kind:       OutcomeSuccess,
		FormFields: c.sess.FormValues(),
		Banner:     c.banner,
	}
}

// drain discards the remainder of a part so the HTTP connection is fully
// read and can be terminated cleanly.
func (c *Coordinator) drain(part *multipart.Part) {
	if _, err := io.Copy(io.Discard, part); err != nil {
		c.log.Error().Err(err).
			Str("fileName", c.sess.FileName).
			Msg("error draining incoming file stream")
	}
}

// isFilePart reports whether the part carries a filename parameter in its
// Content-Disposition, which is how file inputs are distinguished from plain
// fields even when the filename itself is empty.
func isFilePart(part *multipart.Part) bool {
	cd := part.Header.Get("Content-Disposition")
	if cd == "" {
		return false
	}
	_, params, err := mime.ParseMediaType(cd)
	if err != nil {
		return false
	}
	_, ok := params["filename"]
	return ok
}

// countingReader feeds the streaming uploader while accumulating the byte
// counter and enforcing the configured ceiling. Exceeding the ceiling fails
// the read, which aborts the in-flight object-store write.
type countingReader struct {
	r    io.Reader
	sess *Session
	max  int64
	n    int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.n += int64(n)
		cr.sess.AddBytesReceived(int64(n))
		metrics.UploadBytesReceived.Add(float64(n))
		if cr.max > 0 && cr.n > cr.max {
			return n, ErrFileTooLarge
		}
	}
	return n, err
}
