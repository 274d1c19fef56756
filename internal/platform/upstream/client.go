package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/ehr/scp/internal/domain/classification"
	"github.com/ehr/scp/internal/domain/evaluation"
	"github.com/ehr/scp/internal/domain/sessionsync"
	"github.com/ehr/scp/internal/domain/staffing"
)

// StatusError is a non-2xx answer of the records service.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("records service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("records service returned %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is a StatusError with one of codes.
func IsStatus(err error, codes ...int) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	for _, c := range codes {
		if se.StatusCode == c {
			return true
		}
	}
	return false
}

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// Retries applies to GET requests only.
	Retries int
}

// Client talks to the hospital records service. It is the evaluation
// Gateway, the synchronization Fetcher, the classification Source and the
// staffing Saver.
type Client struct {
	http   *resty.Client
	logger zerolog.Logger
}

var (
	_ evaluation.Gateway    = (*Client)(nil)
	_ classification.Source = (*Client)(nil)
	_ staffing.Saver        = (*Client)(nil)
	_ sessionsync.Fetcher   = (*Client)(nil)
)

func New(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	hc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// mutating calls are never repeated
			if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	if cfg.Token != "" {
		hc.SetAuthToken(cfg.Token)
	}
	return &Client{http: hc, logger: logger}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Error().Err(err).Str("method", method).Str("path", path).Msg("records service call failed")
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode()).
		Dur("latency", time.Since(start)).
		Msg("records service call")

	if resp.IsError() || resp.StatusCode() >= 300 {
		return &StatusError{StatusCode: resp.StatusCode(), Message: errorMessage(resp.Body())}
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// errorMessage extracts a readable message from an error body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	if json.Unmarshal(body, &payload) == nil {
		for _, m := range []string{payload.Message, payload.Error, payload.Detail} {
			if m != "" {
				return m
			}
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// decodeList accepts a bare array or an object with a data array.
func decodeList(raw json.RawMessage, out interface{}) error {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			return err
		}
		raw = env.Data
		trimmed = strings.TrimSpace(string(raw))
	}
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func escape(s string) string { return url.PathEscape(s) }
