package queue

import (
	"context"

	"github.com/hibiken/asynq"
)

// Client wraps an asynq client with the portal's task vocabulary.
type Client struct {
	inner *asynq.Client
}

// NewClient adapts an asynq client for handler wiring.
func NewClient(inner *asynq.Client) *Client {
	return &Client{inner: inner}
}

// EnqueueNotify schedules an upload notification task.
func (c *Client) EnqueueNotify(ctx context.Context, payload NotifyPayload) error {
	return EnqueueNotify(ctx, c.inner, payload)
}

// Close releases the underlying Redis connection.
func (c *Client) Close() error {
	return c.inner.Close()
}
