// Package queue defines the background tasks the portal schedules.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// NotifyUploadTask is scheduled after a register file is durably stored;
	// the worker reports the completion to the backend status API.
	NotifyUploadTask = "upload:notify"
)

// NotifyPayload is serialized into the task so the worker can report the
// upload and mark the audit row.
type NotifyPayload struct {
	AuditID          string `json:"audit_id"`
	LACode           string `json:"la_code"`
	Token            string `json:"token"`
	Filename         string `json:"filename"`
	FileFormat       string `json:"file_format"`
	FileSizeBytes    int64  `json:"file_size_bytes"`
	OtherInformation string `json:"other_information"`
}

// EnqueueNotify enqueues an upload notification with bounded retries.
// Exhausted retries are logged by the worker and never alter the user-visible
// outcome; the file is already durably stored.
func EnqueueNotify(ctx context.Context, client *asynq.Client, payload NotifyPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(NotifyUploadTask, data)
	if _, err := client.EnqueueContext(ctx, task, asynq.MaxRetry(5)); err != nil {
		return fmt.Errorf("enqueue notify task: %w", err)
	}
	return nil
}
