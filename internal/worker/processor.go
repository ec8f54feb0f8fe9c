// Package worker runs the asynq handlers for the portal's background tasks.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/er-portal/internal/backendapi"
	"github.com/dharsanguruparan/er-portal/internal/metrics"
	"github.com/dharsanguruparan/er-portal/internal/queue"
	"github.com/dharsanguruparan/er-portal/internal/repository"
)

// StatusAPI is the slice of the backend client the worker needs.
type StatusAPI interface {
	NotifyUpload(ctx context.Context, token string, n backendapi.UploadNotification) error
}

// AuditLog is the slice of the repository the worker needs. A nil repository
// disables audit bookkeeping (single-binary dev setups without Postgres).
type AuditLog interface {
	MarkNotified(ctx context.Context, id string) error
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	api   StatusAPI
	audit AuditLog
	log   zerolog.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(api StatusAPI, audit AuditLog, log zerolog.Logger) *Processor {
	return &Processor{api: api, audit: audit, log: log}
}

// Handler registers the notify task handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.NotifyUploadTask, p.handleNotify)
	return mux
}

func (p *Processor) handleNotify(ctx context.Context, task *asynq.Task) error {
	var payload queue.NotifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	err := p.api.NotifyUpload(ctx, payload.Token, backendapi.UploadNotification{
		Filename:         payload.Filename,
		FileFormat:       payload.FileFormat,
		FileSizeBytes:    payload.FileSizeBytes,
		OtherInformation: payload.OtherInformation,
	})
	if err != nil {
		metrics.NotifyFailures.Inc()
		p.log.Error().Err(err).
			Str("laCode", payload.LACode).
			Str("fileName", payload.Filename).
			Msg("failed to update upload status")
		return err
	}

	if p.audit != nil && payload.AuditID != "" {
		if err := p.audit.MarkNotified(ctx, payload.AuditID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			// The backend already accepted the report; a bookkeeping miss is
			// not worth a retry that would re-notify.
			p.log.Warn().Err(err).Str("auditID", payload.AuditID).Msg("failed to mark audit row notified")
		}
	}

	p.log.Info().
		Str("laCode", payload.LACode).
		Str("fileName", payload.Filename).
		Msg("upload status reported to backend")
	return nil
}
