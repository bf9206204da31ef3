// Package client talks to the classification service.
package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/glimps-re/pescan/pkg/datamodel"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const (
	ScanPath        = "/api/scan"
	HealthPath      = "/api/health"
	FileField       = "file"
	RequestIDHeader = "X-Request-ID"
)

type Config struct {
	BaseURL  string
	Insecure bool
	// UserAgent is sent with every request when set.
	UserAgent string
}

type Client struct {
	httpc   *resty.Client
	baseURL string
}

func NewClient(config Config) (c *Client, err error) {
	base := strings.TrimRight(config.BaseURL, "/")
	u, err := url.Parse(base)
	if err != nil {
		err = fmt.Errorf("invalid service url %q: %w", config.BaseURL, err)
		return
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		err = fmt.Errorf("invalid service url %q: scheme must be http or https", config.BaseURL)
		return
	}

	httpc := resty.New()
	httpc.SetLogger(newRestyLogger(logger))
	httpc.SetBaseURL(base)
	// one attempt per user action
	httpc.SetRetryCount(0)
	httpc.SetHeader("Accept", "application/json")
	if config.UserAgent != "" {
		httpc.SetHeader("User-Agent", config.UserAgent)
	}
	if config.Insecure {
		httpc.SetTLSClientConfig(&tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // chosen by user
		})
	}
	c = &Client{httpc: httpc, baseURL: base}
	return
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Scan submits file to the service and decodes its verdict.
// Non-success answers are returned as HTTPError, undecodable ones wrap ErrMalformedResponse,
// anything else is a transport failure.
func (c *Client) Scan(ctx context.Context, file datamodel.FileRef) (result datamodel.ScanResult, err error) {
	requestID := uuid.NewString()
	reqLogger := logger.With(slog.String(logRequestIDKey, requestID), slog.String("file", file.Name))

	content, err := file.Open(ctx)
	if err != nil {
		err = fmt.Errorf("could not open %s: %w", file.Name, err)
		return
	}
	defer func() {
		if e := content.Close(); e != nil {
			reqLogger.Warn("could not close file correctly", slog.String(logErrorKey, e.Error()))
		}
	}()

	reqLogger.Debug("submit file", slog.Int64("size", file.SizeBytes), slog.String("url", c.baseURL+ScanPath))
	resp, err := c.httpc.R().
		SetContext(ctx).
		SetHeader(RequestIDHeader, requestID).
		SetFileReader(FileField, file.Name, content).
		Post(ScanPath)
	if err != nil {
		reqLogger.Debug("scan request failed", slog.String(logErrorKey, err.Error()))
		return
	}

	body := resp.Body()
	if !resp.IsSuccess() {
		httpErr := newHTTPError(resp.StatusCode(), resp.Status(), body)
		reqLogger.Debug("scan rejected", slog.Int("status", httpErr.Code), slog.String("detail", httpErr.Detail))
		err = httpErr
		return
	}

	result, err = datamodel.DecodeScanResult(body)
	if err != nil {
		reqLogger.Debug("could not decode scan result", slog.String(logErrorKey, err.Error()))
		err = fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		return
	}
	reqLogger.Debug("file scanned", slog.String("label", string(result.Label)), slog.Int("features", len(result.Features)))
	return
}

type healthResponse struct {
	Status string `json:"status"`
}

// Health asks the service for its status ("ok" when healthy).
func (c *Client) Health(ctx context.Context) (status string, err error) {
	resp, err := c.httpc.R().
		SetContext(ctx).
		SetHeader(RequestIDHeader, uuid.NewString()).
		Get(HealthPath)
	if err != nil {
		return
	}
	if !resp.IsSuccess() {
		err = newHTTPError(resp.StatusCode(), resp.Status(), resp.Body())
		return
	}
	health := healthResponse{}
	if err = json.Unmarshal(resp.Body(), &health); err != nil {
		err = fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		return
	}
	if health.Status == "" {
		err = fmt.Errorf("%w: missing status", ErrMalformedResponse)
		return
	}
	status = health.Status
	return
}
