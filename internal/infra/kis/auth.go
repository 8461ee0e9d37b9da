package kis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wonny/snowbot/internal/domain/trading"
	"github.com/wonny/snowbot/internal/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	// DailyIssueLimit is the number of tokens a profile may issue per day
	DailyIssueLimit = 5

	// TokenLifetime is kept short of the broker's 24h validity
	TokenLifetime = 23 * time.Hour

	persistRetryDelay = 100 * time.Millisecond
)

// Credentials identifies an app at the broker
type Credentials struct {
	AppKey    string
	AppSecret string
	BaseURL   string
}

// TokenManager owns the access token of each profile, persists it, and
// enforces the daily issuance quota.
type TokenManager struct {
	store      TokenStore
	httpClient *http.Client
	now        func() time.Time
	metrics    *metrics.Metrics

	mu     sync.Mutex
	states map[trading.Profile]*trading.CredentialState

	// Singleflight to prevent stampede
	sf singleflight.Group
}

// TokenOption configures a TokenManager
type TokenOption func(*TokenManager)

// WithClock overrides the time source
func WithClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) { m.now = now }
}

// WithTokenHTTPClient overrides the HTTP client used for issuance
func WithTokenHTTPClient(c *http.Client) TokenOption {
	return func(m *TokenManager) { m.httpClient = c }
}

// WithTokenMetrics records issuance counts
func WithTokenMetrics(mt *metrics.Metrics) TokenOption {
	return func(m *TokenManager) { m.metrics = mt }
}

// NewTokenManager creates a TokenManager backed by store
func NewTokenManager(store TokenStore, opts ...TokenOption) *TokenManager {
	m := &TokenManager{
		store:      store,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
		states:     make(map[trading.Profile]*trading.CredentialState),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// tokenResponse represents KIS token API response
type tokenResponse struct {
	AccessToken        string `json:"access_token"`
	AccessTokenExpired string `json:"access_token_token_expired"`
	TokenType          string `json:"token_type"`
	ExpiresIn          int    `json:"expires_in"`
	ErrorCode          string `json:"error_code"`
	ErrorDescription   string `json:"error_description"`
	MsgCode            string `json:"msg_cd"`
	Msg1               string `json:"msg1"`
}

// Acquire returns a usable token for profile, issuing one when needed.
// Quota and credential failures are wrapped with trading.ErrAuth.
func (m *TokenManager) Acquire(ctx context.Context, profile trading.Profile, creds Credentials) (string, error) {
	if !profile.Valid() {
		return "", fmt.Errorf("%w: %w: %q", trading.ErrAuth, trading.ErrInvalidProfile, profile)
	}
	if creds.AppKey == "" || creds.AppSecret == "" {
		return "", fmt.Errorf("%w: %w (%s)", trading.ErrAuth, trading.ErrNoCredentials, profile)
	}

	// 1. Cached token
	if token, ok, err := m.cached(ctx, profile); err != nil {
		return "", err
	} else if ok {
		return token, nil
	}

	// 2. Issue - one in flight per profile
	v, err, _ := m.sf.Do(string(profile), func() (interface{}, error) {
		return m.issue(ctx, profile, creds)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// cached returns the stored token if it is still usable
func (m *TokenManager) cached(ctx context.Context, profile trading.Profile) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.stateLocked(ctx, profile)
	if err != nil {
		return "", false, err
	}
	if state.Usable(m.now()) {
		return state.AccessToken, true, nil
	}
	return "", false, nil
}

func (m *TokenManager) issue(ctx context.Context, profile trading.Profile, creds Credentials) (string, error) {
	m.mu.Lock()
	state, err := m.stateLocked(ctx, profile)
	if err != nil {
		m.mu.Unlock()
		return "", err
	}

	now := m.now()
	// Double-check after acquiring lock
	if state.Usable(now) {
		m.mu.Unlock()
		return state.AccessToken, nil
	}

	today := trading.DateKey(now)
	if state.IssuedOn != today {
		state.IssuedCount = 0
		state.IssuedOn = today
	}
	if state.IssuedCount >= DailyIssueLimit {
		count := state.IssuedCount
		m.mu.Unlock()
		log.Error().
			Str("profile", string(profile)).
			Int("issued_today", count).
			Msg("🚫 Token issuance quota exhausted")
		return "", fmt.Errorf("%w: %w (%s: %d/%d today)", trading.ErrAuth, trading.ErrQuotaExceeded, profile, count, DailyIssueLimit)
	}
	m.mu.Unlock()

	token, err := m.requestToken(ctx, creds)
	if err != nil {
		return "", fmt.Errorf("%w: issue token (%s): %w", trading.ErrAuth, profile, err)
	}

	m.mu.Lock()
	now = m.now()
	state.AccessToken = token
	state.ExpiresAt = now.Add(TokenLifetime)
	if state.IssuedOn != trading.DateKey(now) {
		state.IssuedCount = 0
		state.IssuedOn = trading.DateKey(now)
	}
	state.IssuedCount++
	saved := *state
	m.mu.Unlock()

	m.metrics.IncTokenIssued(string(profile))

	// 발급 횟수는 재시작 후에도 유지되어야 한다
	if err := m.persist(ctx, &saved); err != nil {
		m.metrics.IncTokenPersistFailure(string(profile))
		log.Error().Err(err).
			Str("profile", string(profile)).
			Int("issued_today", saved.IssuedCount).
			Msg("❌ Failed to persist token state, issuance count may be lost on restart")
	}

	log.Info().
		Str("profile", string(profile)).
		Int("issued_today", saved.IssuedCount).
		Time("expires_at", saved.ExpiresAt).
		Msg("🔑 Access token issued")

	return token, nil
}

// requestToken calls the OAuth endpoint (client-credential grant)
func (m *TokenManager) requestToken(ctx context.Context, creds Credentials) (string, error) {
	bodyBytes, err := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"appkey":     creds.AppKey,
		"appsecret":  creds.AppSecret,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/oauth2/tokenP", creds.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var tokenResp tokenResponse
	_ = json.Unmarshal(respBody, &tokenResp)

	if resp.StatusCode != http.StatusOK || tokenResp.AccessToken == "" {
		code := tokenResp.ErrorCode
		if code == "" {
			code = tokenResp.MsgCode
		}
		msg := tokenResp.ErrorDescription
		if msg == "" {
			msg = tokenResp.Msg1
		}
		return "", &APIError{
			TrID:    "tokenP",
			Status:  resp.StatusCode,
			Code:    code,
			Message: msg,
			Body:    string(respBody),
		}
	}

	return tokenResp.AccessToken, nil
}

// Invalidate clears the cached token of profile without touching the quota
func (m *TokenManager) Invalidate(ctx context.Context, profile trading.Profile) error {
	m.mu.Lock()
	state, err := m.stateLocked(ctx, profile)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	state.AccessToken = ""
	state.ExpiresAt = time.Time{}
	saved := *state
	m.mu.Unlock()

	log.Warn().Str("profile", string(profile)).Msg("Access token invalidated")

	if err := m.persist(ctx, &saved); err != nil {
		m.metrics.IncTokenPersistFailure(string(profile))
		return fmt.Errorf("persist token state: %w", err)
	}
	return nil
}

// persist saves state, retrying once after persistRetryDelay
func (m *TokenManager) persist(ctx context.Context, state *trading.CredentialState) error {
	err := m.store.Save(ctx, state)
	if err == nil {
		return nil
	}
	log.Warn().Err(err).Str("profile", string(state.Profile)).Msg("⚠️ Token state save failed, retrying")

	t := time.NewTimer(persistRetryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return err
	case <-t.C:
	}
	return m.store.Save(ctx, state)
}

// Status reports the token state of profile
func (m *TokenManager) Status(ctx context.Context, profile trading.Profile) (*trading.TokenStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.stateLocked(ctx, profile)
	if err != nil {
		return nil, err
	}

	now := m.now()
	status := &trading.TokenStatus{
		Profile:    profile,
		HasToken:   state.AccessToken != "",
		Valid:      state.Usable(now),
		DailyLimit: DailyIssueLimit,
	}
	if !state.ExpiresAt.IsZero() {
		expires := state.ExpiresAt
		status.ExpiresAt = &expires
	}
	if status.Valid {
		status.Remaining = state.ExpiresAt.Sub(now)
	}
	if state.IssuedOn == trading.DateKey(now) {
		status.IssuedToday = state.IssuedCount
	}
	return status, nil
}

// stateLocked returns the in-memory state, loading it from the store once.
// Caller must hold m.mu.
func (m *TokenManager) stateLocked(ctx context.Context, profile trading.Profile) (*trading.CredentialState, error) {
	if state, ok := m.states[profile]; ok {
		return state, nil
	}

	state, err := m.store.Load(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("%w: load token state (%s): %w", trading.ErrAuth, profile, err)
	}
	if state == nil {
		state = &trading.CredentialState{}
	}
	state.Profile = profile
	m.states[profile] = state
	return state, nil
}
