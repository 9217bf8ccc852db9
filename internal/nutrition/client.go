// internal/nutrition/client.go
package nutrition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"mcp-plate-log/internal/auth"
	"mcp-plate-log/internal/metrics"
	"mcp-plate-log/internal/models"
)

const (
	opSubmit = "submit"

	DefaultTimeout          = 60 * time.Second
	DefaultExpectedWeights  = 4
	DefaultMaxResponseBytes = 8 << 20
)

type Config struct {
	Endpoint string
	Timeout  time.Duration
	// ExpectedWeights is the number of portion weights every request must
	// carry. Zero accepts any non-empty list.
	ExpectedWeights  int
	MaxResponseBytes int64
}

// Client uploads meal photos to the nutrition analyzer. It holds no per-call
// state and is safe for concurrent use; every Submit is independent.
type Client struct {
	httpClient  *http.Client
	credentials auth.CredentialProvider
	config      Config
	logger      logrus.FieldLogger
	recorder    metrics.UploadRecorder
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. Config.Timeout is not applied to it.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithRecorder(recorder metrics.UploadRecorder) Option {
	return func(c *Client) {
		if recorder != nil {
			c.recorder = recorder
		}
	}
}

func NewClient(cfg Config, credentials auth.CredentialProvider, opts ...Option) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("analyzer endpoint is required")
	}
	if credentials == nil {
		return nil, fmt.Errorf("credential provider is required")
	}
	if cfg.ExpectedWeights < 0 {
		return nil, fmt.Errorf("expected weights must not be negative, got %d", cfg.ExpectedWeights)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}

	c := &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		credentials: credentials,
		config:      cfg,
		logger:      logrus.StandardLogger(),
		recorder:    metrics.Discard,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Submit sends one meal photo with its portion weights and returns the
// decoded analysis. Exactly one request is issued; there is no retry.
// Failures are *Error values whose Kind distinguishes validation,
// authentication, network, malformed responses and server rejections.
func (c *Client) Submit(ctx context.Context, req *models.UploadRequest) (*models.AnalysisResult, error) {
	start := time.Now()
	result, err := c.submit(ctx, req)
	c.observe(err, time.Since(start))
	return result, err
}

func (c *Client) submit(ctx context.Context, req *models.UploadRequest) (*models.AnalysisResult, error) {
	if err := c.Validate(req); err != nil {
		return nil, err
	}

	token, err := c.credentials.Token(ctx)
	if err != nil {
		return nil, wrapError(KindAuthentication, opSubmit, "failed to obtain bearer token", err)
	}
	if token == "" {
		return nil, newError(KindAuthentication, opSubmit, "credential provider returned an empty token")
	}

	body, contentType, err := encodeUpload(req)
	if err != nil {
		return nil, wrapError(KindValidation, opSubmit, "failed to encode upload", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return nil, wrapError(KindNetwork, opSubmit, "failed to create HTTP request", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Bearer "+token)

	c.logger.WithFields(logrus.Fields{
		"op":         opSubmit,
		"weights":    len(req.Weights),
		"image_size": len(req.Image),
	}).Debug("uploading meal image")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, wrapError(KindNetwork, opSubmit, "HTTP request failed", err)
	}
	defer resp.Body.Close()

	raw, err := readLimited(resp.Body, c.config.MaxResponseBytes)
	if errors.Is(err, errBodyTooLarge) {
		return nil, wrapError(KindMalformedResponse, opSubmit, "response body too large", err)
	}
	if err != nil {
		return nil, wrapError(KindNetwork, opSubmit, "failed to read response body", err)
	}

	result, err := ParseResponse(raw)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, err)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Validate checks an upload request without touching the network.
func (c *Client) Validate(req *models.UploadRequest) error {
	if req == nil {
		return newError(KindValidation, opSubmit, "upload request is nil")
	}
	if len(req.Image) == 0 {
		return newError(KindValidation, opSubmit, "image is empty")
	}
	if len(req.Weights) == 0 {
		return newError(KindValidation, opSubmit, "at least one portion weight is required")
	}
	if c.config.ExpectedWeights > 0 && len(req.Weights) != c.config.ExpectedWeights {
		return newError(KindValidation, opSubmit,
			fmt.Sprintf("expected %d portion weights, got %d", c.config.ExpectedWeights, len(req.Weights)))
	}
	for i, w := range req.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w <= 0 {
			return newError(KindValidation, opSubmit,
				fmt.Sprintf("portion weight %d must be a positive number of grams, got %v", i+1, w))
		}
	}
	return nil
}

// statusError classifies a non-2xx reply. A rejection body keeps its reason;
// anything else is a contract violation.
func statusError(status int, parseErr error) error {
	var typed *Error
	if errors.As(parseErr, &typed) && typed.Kind == KindServerRejected {
		typed.StatusCode = status
		return typed
	}
	typed = wrapError(KindMalformedResponse, opSubmit, "unexpected response status", parseErr)
	typed.StatusCode = status
	return typed
}

var errBodyTooLarge = errors.New("response body exceeds size limit")

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func (c *Client) observe(err error, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = string(KindOf(err))
	}
	c.recorder.ObserveUpload(outcome, elapsed)

	entry := c.logger.WithFields(logrus.Fields{
		"op":       opSubmit,
		"outcome":  outcome,
		"duration": elapsed.String(),
	})
	switch {
	case err == nil:
		entry.Info("meal analysis completed")
	case IsServerRejected(err), IsValidation(err):
		entry.WithError(err).Info("meal analysis not accepted")
	default:
		entry.WithError(err).Warn("meal analysis failed")
	}
}
