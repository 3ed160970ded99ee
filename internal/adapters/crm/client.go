// Package crm implements the marketing CRM contact client.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/target/intake-pipeline/config"
	"github.com/target/intake-pipeline/internal/core"
	apperrors "github.com/target/intake-pipeline/internal/errors"
	"github.com/target/intake-pipeline/internal/pkg/httpretry"
	"github.com/target/intake-pipeline/internal/service"
)

const maxErrorBody = 1 << 10

// ClientOptions configures Client.
type ClientOptions struct {
	Config config.CRMConfig   // Required: BaseURL must be set
	Doer   httpretry.HTTPDoer // Optional: overrides the underlying transport
	Retry  *httpretry.Options // Optional: overrides retry delays
	Logger *slog.Logger       // Optional
}

// Client upserts contacts through the CRM REST API.
type Client struct {
	baseURL string
	token   string
	http    httpretry.HTTPDoer
	logger  *slog.Logger
}

var _ core.CRMClient = (*Client)(nil)

type upsertBody struct {
	Email      string            `json:"email"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NewClient creates a CRM client.
func NewClient(opts ClientOptions) (*Client, error) {
	cfg := opts.Config
	cfg.Sanitize()
	if !cfg.Enabled() {
		return nil, errors.New("crm base URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid crm base URL: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	doer := opts.Doer
	if doer == nil {
		doer = &http.Client{Timeout: cfg.Timeout}
	}
	retry := httpretry.Options{}
	if opts.Retry != nil {
		retry = *opts.Retry
	}
	retry.Client = doer
	retry.MaxRetries = cfg.MaxRetries
	retry.Logger = logger

	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.APIToken,
		http:    httpretry.New(retry),
		logger:  logger.With("component", "crm"),
	}, nil
}

// UpsertContact writes the contact keyed by its external ID. Repeating the
// call with the same request is safe.
func (c *Client) UpsertContact(ctx context.Context, req core.ContactUpsert) error {
	if strings.TrimSpace(req.ExternalID) == "" {
		return apperrors.Terminal(nil, "crm contact external id is required")
	}
	body, err := json.Marshal(upsertBody{Email: req.Email, Attributes: req.Attributes})
	if err != nil {
		return apperrors.Terminal(err, "encode crm contact")
	}

	endpoint := c.baseURL + "/contacts/" + url.PathEscape(req.ExternalID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return apperrors.Terminal(err, "build crm request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.ExternalID)
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperrors.Transient(err, "crm request timed out")
		}
		return apperrors.Transient(err, "crm request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		c.logger.DebugContext(ctx, "crm contact upserted",
			"external_id", req.ExternalID,
			"status", resp.StatusCode,
			"duration", time.Since(start),
		)
		return nil
	}

	return statusError(resp)
}

// statusError maps a non-2xx response. Rejections are terminal unless the
// server signalled a transient condition.
func statusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	cause := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))

	switch {
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return apperrors.Transient(cause, "crm unavailable")
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return apperrors.Terminal(cause, "crm rejected credentials")
	default:
		return apperrors.Terminal(cause, "crm rejected contact")
	}
}

// LogClient records contacts in the log instead of calling a CRM.
type LogClient struct {
	logger *slog.Logger
}

var _ core.CRMClient = (*LogClient)(nil)

// NewLogClient creates a LogClient.
func NewLogClient(logger *slog.Logger) *LogClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogClient{logger: logger.With("component", "crm")}
}

// UpsertContact implements core.CRMClient.
func (c *LogClient) UpsertContact(ctx context.Context, req core.ContactUpsert) error {
	c.logger.InfoContext(ctx, "crm not configured, contact logged",
		"external_id", req.ExternalID,
		"email", service.RedactEmail(req.Email),
		"attributes", len(req.Attributes),
	)
	return nil
}
