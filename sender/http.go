package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"bridge/hasher"
	"bridge/types"
)

const (
	DefaultTimeout = 5 * time.Second
	UserAgent      = "sensor-bridge/1.0"

	snapshotPath = "/sensor"
	statePath    = "/state/{userID}"
	ingestPath   = "/ingest"
)

// HTTPConfig configures the cloud API client.
type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPClient talks JSON to the cloud API. It implements RemoteClient and BatchSender.
type HTTPClient struct {
	http   *resty.Client
	logger *zap.Logger
}

func NewHTTPClient(cfg HTTPConfig, logger *zap.Logger) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := resty.New()
	c.SetBaseURL(cfg.BaseURL)
	c.SetTimeout(cfg.Timeout)
	c.SetHeader("User-Agent", UserAgent)
	c.SetHeader("Content-Type", "application/json")
	c.SetHeader("Accept", "application/json")
	// Retries are owned by the callers, the sync cycle is at-most-once per period.
	c.SetRetryCount(0)

	return &HTTPClient{http: c, logger: logger.Named("sender.http")}
}

func (c *HTTPClient) Push(ctx context.Context, snapshot types.Sample, sessionID string) error {
	body := SnapshotRequest{UserID: sessionID, Data: snapshot}
	key, err := hasher.ComputeHash(sessionID, body)
	if err != nil {
		return fmt.Errorf("failed to hash snapshot: %w", err)
	}

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", key).
		SetBody(body).
		Post(snapshotPath)
	if err != nil {
		return fmt.Errorf("push snapshot: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("push snapshot: %w", statusError(resp))
	}

	c.logger.Debug("snapshot pushed",
		zap.String("session_id", sessionID),
		zap.Int64("timestamp", snapshot.Timestamp),
		zap.Duration("latency", time.Since(start)),
	)
	return nil
}

func (c *HTTPClient) Pull(ctx context.Context, sessionID string) (*types.RemoteState, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("userID", sessionID).
		Get(statePath)
	if err != nil {
		return nil, fmt.Errorf("pull state: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusNoContent, resp.StatusCode() == http.StatusNotFound:
		return nil, nil
	case !resp.IsSuccess():
		return nil, fmt.Errorf("pull state: %w", statusError(resp))
	}

	body := bytes.TrimSpace(resp.Body())
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, nil
	}

	var wire remoteState
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, err.Error())
	}
	if err := validate.Struct(wire); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, err.Error())
	}

	state := wire.toState()
	return &state, nil
}

func (c *HTTPClient) SendBatch(ctx context.Context, req IngestRequest) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", req.Hash).
		SetBody(req).
		Post(ingestPath)
	if err != nil {
		return fmt.Errorf("upload batch: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("upload batch: %w", statusError(resp))
	}
	return nil
}

func statusError(resp *resty.Response) *StatusError {
	return &StatusError{Code: resp.StatusCode(), Body: string(resp.Body())}
}
