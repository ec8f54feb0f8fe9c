// Package backendapi is the JSON client for the juror-er backend: upload
// window state, upload completion bookkeeping, and the developer auth
// shortcut that exchanges an email for a signed identity token.
package backendapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	dashboardResource    = "juror-er/upload/dashboard"
	uploadFileResource   = "juror-er/upload/file"
	uploadStatusResource = "juror-er/upload/status/"
	authResource         = "auth/juror-er/jwt"
)

// DashboardDetails drives the gate on whether an upload is permitted at all.
type DashboardDetails struct {
	DeadlineDate  string `json:"deadlineDate"`
	DaysRemaining int    `json:"daysRemaining"`
	UploadStatus  string `json:"uploadStatus"`
}

// UploadNotification reports a durably stored upload to the backend.
type UploadNotification struct {
	Filename         string `json:"filename"`
	FileFormat       string `json:"file_format"`
	FileSizeBytes    int64  `json:"file_size_bytes"`
	OtherInformation string `json:"other_information"`
}

// LAStatus is the per-authority state returned by the status resource.
type LAStatus struct {
	LACode       string `json:"laCode"`
	UploadStatus string `json:"uploadStatus"`
	UpdatedAt    string `json:"updatedAt"`
}

// APIError carries the backend's error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend api: status %d code %q: %s", e.StatusCode, e.Code, e.Message)
}

type errorEnvelope struct {
	StatusCode int `json:"statusCode"`
	Err        struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Client calls the backend status API. It is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	log     zerolog.Logger
}

// New constructs a Client. baseURL must end with the API version prefix, e.g.
// http://localhost:8080/api/v1/.
func New(baseURL string, timeout time.Duration, log zerolog.Logger) (*Client, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	return &Client{
		baseURL: parsed,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}, nil
}

// Dashboard fetches the deadline window and current upload status.
func (c *Client) Dashboard(ctx context.Context, token string) (*DashboardDetails, error) {
	var details DashboardDetails
	if err := c.do(ctx, http.MethodGet, dashboardResource, token, nil, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// UploadStatus fetches the per-authority upload state.
func (c *Client) UploadStatus(ctx context.Context, token, laCode string) (*LAStatus, error) {
	var status LAStatus
	if err := c.do(ctx, http.MethodGet, uploadStatusResource+url.PathEscape(laCode), token, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// NotifyUpload reports a completed upload. The file is already durably stored
// when this is called; failures are the caller's to log and retry.
func (c *Client) NotifyUpload(ctx context.Context, token string, n UploadNotification) error {
	return c.do(ctx, http.MethodPost, uploadFileResource, token, n, nil)
}

// Authenticate exchanges a developer email for a backend-signed JWT.
func (c *Client) Authenticate(ctx context.Context, email string) (string, error) {
	var resp struct {
		JWT string `json:"jwt"`
	}
	payload := map[string]string{"email": email}
	if err := c.do(ctx, http.MethodPost, authResource, "", payload, &resp); err != nil {
		return "", err
	}
	if resp.JWT == "" {
		return "", &APIError{StatusCode: http.StatusBadGateway, Message: "auth response missing jwt"}
	}
	return resp.JWT, nil
}

func (c *Client) do(ctx context.Context, method, resource, token string, body, out any) error {
	ref, err := url.Parse(resource)
	if err != nil {
		return fmt.Errorf("parse resource %q: %w", resource, err)
	}
	target := c.baseURL.ResolveReference(ref)

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	c.log.Debug().Str("method", method).Str("url", target.String()).Msg("sending request to backend api")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, resource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", resource, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err == nil {
		var envelope errorEnvelope
		if json.Unmarshal(raw, &envelope) == nil && envelope.Err.Message != "" {
			apiErr.Code = envelope.Err.Code
			apiErr.Message = envelope.Err.Message
			return apiErr
		}
	}
	apiErr.Message = http.StatusText(resp.StatusCode)
	return apiErr
}
