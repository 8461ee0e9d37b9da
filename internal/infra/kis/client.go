package kis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"github.com/wonny/snowbot/internal/domain/trading"
	"github.com/wonny/snowbot/internal/pkg/metrics"
	"golang.org/x/time/rate"
)

// maxAttempts bounds every Call (rate-limit and token retries included)
const maxAttempts = 2

// Config holds one profile's KIS API configuration
type Config struct {
	Profile     trading.Profile
	AppKey      string
	AppSecret   string
	BaseURL     string
	AccountNo   string // CANO
	AccountCode string // ACNT_PRDT_CD

	Timeout     time.Duration // per HTTP call
	MinInterval time.Duration // spacing between successive calls
	RetryDelay  time.Duration // sleep before retrying a rate-limited call
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	return c
}

// IsPaper reports whether the profile is the virtual trading server
func (c Config) IsPaper() bool {
	return c.Profile == trading.ProfilePaper
}

// Client is the KIS REST transport of one profile.
// Every call passes through the token manager, the pacing limiter and the
// circuit breaker.
type Client struct {
	cfg        Config
	tokens     *TokenManager
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	metrics    *metrics.Metrics
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client
func NewClient(cfg Config, tokens *TokenManager, m *metrics.Metrics) *Client {
	cfg = cfg.withDefaults()

	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "kis-" + string(cfg.Profile),
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("⚠️  KIS circuit breaker state changed")
		},
	})

	return &Client{
		cfg:        cfg,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		breaker:    breaker,
		metrics:    m,
		sleep:      sleepCtx,
	}
}

// Profile returns the client's profile
func (c *Client) Profile() trading.Profile {
	return c.cfg.Profile
}

// Tokens returns the token manager
func (c *Client) Tokens() *TokenManager {
	return c.tokens
}

func (c *Client) credentials() Credentials {
	return Credentials{
		AppKey:    c.cfg.AppKey,
		AppSecret: c.cfg.AppSecret,
		BaseURL:   c.cfg.BaseURL,
	}
}

// Response is a parsed broker response.
// RetCode "0" means success for business-level operations.
type Response struct {
	Status  int           `json:"-"`
	RetCode string        `json:"rt_cd"`
	MsgCode string        `json:"msg_cd"`
	Msg1    string        `json:"msg1"`
	Body    []byte        `json:"-"`
	Latency time.Duration `json:"-"`
}

// OK reports a business-level success
func (r *Response) OK() bool {
	return r.RetCode == "0"
}

// Decode unmarshals the raw body into v
func (r *Response) Decode(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// Call performs one broker operation with at most two attempts.
//
// Structured codes are checked before the HTTP status: a rate-limit code
// sleeps and retries, a token-expired/invalid code invalidates the token and
// retries. Otherwise a 200 is returned as is and any other status fails.
// Transport errors (timeouts included) are not retried.
func (c *Client) Call(ctx context.Context, trID, method, path string, params url.Values, body interface{}) (*Response, error) {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		token, err := c.tokens.Acquire(ctx, c.cfg.Profile, c.credentials())
		if err != nil {
			c.metrics.ObserveBrokerCall(trID, "unauthenticated", 0)
			return nil, fmt.Errorf("%w: %s: %w", trading.ErrUnauthenticated, trID, err)
		}

		resp, err := c.do(ctx, trID, method, path, params, body, token)
		if err != nil {
			c.metrics.ObserveBrokerCall(trID, "transport_error", 0)
			return nil, err
		}

		apiErr := &APIError{
			TrID:    trID,
			Status:  resp.Status,
			Code:    resp.MsgCode,
			Message: resp.Msg1,
			Body:    string(resp.Body),
		}

		switch {
		case isRateLimited(resp.MsgCode, string(resp.Body)):
			c.metrics.ObserveBrokerCall(trID, "rate_limited", resp.Latency.Seconds())
			lastErr = apiErr
			log.Warn().Str("tr_id", trID).Int("attempt", attempt).Msg("KIS rate limit, retrying")
			if attempt < maxAttempts {
				if err := c.sleep(ctx, c.cfg.RetryDelay); err != nil {
					return nil, err
				}
			}
			continue

		case isTokenRejected(resp.MsgCode, string(resp.Body)):
			c.metrics.ObserveBrokerCall(trID, "token_rejected", resp.Latency.Seconds())
			lastErr = apiErr
			log.Warn().Str("tr_id", trID).Str("code", resp.MsgCode).Msg("KIS token rejected, invalidating")
			if err := c.tokens.Invalidate(ctx, c.cfg.Profile); err != nil {
				log.Error().Err(err).Msg("Failed to persist token invalidation")
			}
			continue

		case resp.Status == http.StatusOK:
			c.metrics.ObserveBrokerCall(trID, "ok", resp.Latency.Seconds())
			return resp, nil

		default:
			c.metrics.ObserveBrokerCall(trID, "http_error", resp.Latency.Seconds())
			return nil, apiErr
		}
	}

	return nil, fmt.Errorf("%w: %s after %d attempts: %w", trading.ErrTransientBroker, trID, maxAttempts, lastErr)
}

// do executes a single HTTP round trip and parses the envelope
func (c *Client) do(ctx context.Context, trID, method, path string, params url.Values, body interface{}, token string) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	endpoint := c.cfg.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("authorization", "Bearer "+token)
	req.Header.Set("appkey", c.cfg.AppKey)
	req.Header.Set("appsecret", c.cfg.AppSecret)
	req.Header.Set("tr_id", trID)
	req.Header.Set("custtype", "P") // 개인

	start := time.Now()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.httpClient.Do(req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s: circuit open: %w", trading.ErrBrokerFailure, trID, err)
		}
		return nil, fmt.Errorf("%w: %s: execute request: %w", trading.ErrBrokerFailure, trID, err)
	}
	httpResp := out.(*http.Response)
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read response: %w", trading.ErrBrokerFailure, trID, err)
	}

	resp := &Response{
		Status:  httpResp.StatusCode,
		Body:    respBody,
		Latency: time.Since(start),
	}
	// The envelope is parsed regardless of status; plain-text 5xx bodies leave it empty
	_ = json.Unmarshal(respBody, resp)

	return resp, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
