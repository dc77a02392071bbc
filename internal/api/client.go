package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/alecgard/tally/internal/auth"
	"golang.org/x/time/rate"
)

// MetricsRecorder is an optional interface for recording client-level
// metrics.
type MetricsRecorder interface {
	IncAPIRequest(service, method string, statusCode int)
	ObserveAPIDuration(service string, seconds float64)
	IncTokenRefresh(result string)
	IncUpstreamError(errorType string)
}

// Credentials identify the OAuth application at the token endpoint.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Config wires a Client.
type Config struct {
	Tokens      *auth.Store
	Credentials Credentials
	TokenURL    string

	AuthBaseURL         string
	AccountingBaseURL   string
	TimetrackingBaseURL string

	Timeout           time.Duration
	RequestsPerSecond float64

	Logger *slog.Logger

	// PersistToken is invoked after every successful refresh so the new
	// refresh token survives the process.
	PersistToken func(auth.Token) error
	// PersistAccount is invoked after account discovery.
	PersistAccount func(AccountInfo) error

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Client performs authenticated requests against the upstream API. It injects
// the bearer token, refreshes it pre-emptively when the store reports expiry,
// and reactively on a 401 with exactly one retry. Network errors are never
// retried here.
type Client struct {
	httpClient *http.Client
	tokens     *auth.Store
	creds      Credentials
	tokenURL   string

	authBase         string
	accountingBase   string
	timetrackingBase string

	limiter *rate.Limiter
	logger  *slog.Logger
	metrics MetricsRecorder

	persistToken   func(auth.Token) error
	persistAccount func(AccountInfo) error
	now            func() time.Time

	// refreshMu guarantees at most one in-flight refresh. Losers of the
	// race recheck the store after acquiring and skip their own refresh, so
	// a stale refresh token can never clobber a newer one.
	refreshMu sync.Mutex

	accountMu sync.Mutex
	account   AccountInfo
}

// New creates a Client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 4
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		httpClient:       &http.Client{Timeout: timeout},
		tokens:           cfg.Tokens,
		creds:            cfg.Credentials,
		tokenURL:         cfg.TokenURL,
		authBase:         strings.TrimRight(cfg.AuthBaseURL, "/"),
		accountingBase:   strings.TrimRight(cfg.AccountingBaseURL, "/"),
		timetrackingBase: strings.TrimRight(cfg.TimetrackingBaseURL, "/"),
		limiter:          rate.NewLimiter(rate.Limit(rps), 1),
		logger:           logger,
		persistToken:     cfg.PersistToken,
		persistAccount:   cfg.PersistAccount,
		now:              now,
	}
}

// SetMetrics sets the optional metrics recorder.
func (c *Client) SetMetrics(m MetricsRecorder) {
	c.metrics = m
}

// Get performs an authenticated GET and decodes the JSON body into out.
func (c *Client) Get(ctx context.Context, rawURL string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, rawURL, query, nil, out)
}

// Post performs an authenticated POST with a JSON body and decodes the
// response into out.
func (c *Client) Post(ctx context.Context, rawURL string, payload any, out any) error {
	return c.do(ctx, http.MethodPost, rawURL, nil, payload, out)
}

// outcome tags the result of a single send so the retry decision is an
// explicit branch rather than a nil sentinel.
type outcome int

const (
	outcomeOK outcome = iota
	outcomeUnauthorized
	outcomeRejected
)

type response struct {
	outcome outcome
	status  int
	body    []byte
}

func (c *Client) do(ctx context.Context, method, rawURL string, query url.Values, payload any, out any) error {
	tok := c.tokens.Get()
	if tok.Empty() {
		return ErrNotAuthenticated
	}

	// Pre-emptive refresh. The 401 path below remains as the backstop for
	// clock skew the grace window missed.
	if tok.ExpiredAt(c.now()) {
		c.logger.Debug("access token expired, refreshing before request")
		if err := c.refresh(ctx, tok.AccessToken); err != nil {
			return err
		}
	}

	// The access token actually sent is the one a 401 invalidates; rereading
	// the store there would race with refreshes done by other callers.
	access := c.tokens.Get().AccessToken
	resp, err := c.send(ctx, method, rawURL, query, payload, access)
	if err != nil {
		return err
	}

	if resp.outcome == outcomeUnauthorized {
		c.logger.Debug("access token rejected, refreshing", "url", rawURL)
		if err := c.refresh(ctx, access); err != nil {
			return err
		}
		resp, err = c.send(ctx, method, rawURL, query, payload, c.tokens.Get().AccessToken)
		if err != nil {
			return err
		}
		if resp.outcome == outcomeUnauthorized {
			return &AuthExpiredError{Reason: "access token rejected again after refresh"}
		}
	}

	if resp.outcome == outcomeRejected {
		return &RequestError{StatusCode: resp.status, Message: upstreamMessage(resp.body)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", rawURL, err)
	}
	return nil
}

// send performs exactly one HTTP round trip with the given bearer token.
func (c *Client) send(ctx context.Context, method, rawURL string, query url.Values, payload any, access string) (response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return response{}, &TransientError{Kind: classifyNetworkError(err), Err: err}
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return response{}, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	target := rawURL
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		target = rawURL + sep + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return response{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+access)
	req.Header.Set("Api-Version", "alpha")
	req.Header.Set("Content-Type", "application/json")

	service := c.serviceLabel(rawURL)
	start := time.Now()
	res, err := c.httpClient.Do(req)
	latency := time.Since(start)

	if c.metrics != nil {
		c.metrics.ObserveAPIDuration(service, latency.Seconds())
	}
	if err != nil {
		kind := classifyNetworkError(err)
		if c.metrics != nil {
			c.metrics.IncUpstreamError(kind)
		}
		return response{}, &TransientError{Kind: kind, Err: err}
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		kind := classifyNetworkError(err)
		if c.metrics != nil {
			c.metrics.IncUpstreamError(kind)
		}
		return response{}, &TransientError{Kind: kind, Err: err}
	}

	if c.metrics != nil {
		c.metrics.IncAPIRequest(service, method, res.StatusCode)
	}

	switch {
	case res.StatusCode == http.StatusUnauthorized:
		return response{outcome: outcomeUnauthorized, status: res.StatusCode, body: data}, nil
	case res.StatusCode >= 200 && res.StatusCode < 300:
		return response{outcome: outcomeOK, status: res.StatusCode, body: data}, nil
	default:
		return response{outcome: outcomeRejected, status: res.StatusCode, body: data}, nil
	}
}

// refresh exchanges the refresh token for a new pair. staleAccess is the
// access token the caller observed failing; if the store already holds a
// different one, another caller refreshed first and this call is a no-op.
func (c *Client) refresh(ctx context.Context, staleAccess string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	current := c.tokens.Get()
	if current.AccessToken != staleAccess {
		return nil
	}
	if current.RefreshToken == "" {
		return &AuthExpiredError{Reason: "no refresh token on file"}
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.creds.ClientID},
		"client_secret": {c.creds.ClientSecret},
		"refresh_token": {current.RefreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.httpClient.Do(req)
	if err != nil {
		kind := classifyNetworkError(err)
		if c.metrics != nil {
			c.metrics.IncTokenRefresh("error")
			c.metrics.IncUpstreamError(kind)
		}
		return &TransientError{Kind: kind, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		if c.metrics != nil {
			c.metrics.IncTokenRefresh("rejected")
		}
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		msg := upstreamMessage(body)
		if msg == "" {
			msg = fmt.Sprintf("token endpoint returned %d", res.StatusCode)
		}
		return &AuthExpiredError{Reason: msg}
	}

	var tr struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(res.Body).Decode(&tr); err != nil {
		return fmt.Errorf("decoding token response: %w", err)
	}

	now := c.now()
	tok := auth.Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		CreatedAt:    now,
	}
	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}
	if tr.ExpiresIn > 0 {
		tok.ExpiresAt = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	c.tokens.Replace(tok)
	if c.persistToken != nil {
		if err := c.persistToken(tok); err != nil {
			c.logger.Warn("persisting refreshed token failed", "error", err)
		}
	}
	if c.metrics != nil {
		c.metrics.IncTokenRefresh("ok")
	}
	c.logger.Debug("access token refreshed", "expires_at", tok.ExpiresAt)
	return nil
}

// serviceLabel extracts a coarse service name from the URL for metrics.
func (c *Client) serviceLabel(rawURL string) string {
	switch {
	case c.authBase != "" && strings.HasPrefix(rawURL, c.authBase):
		return "auth"
	case c.accountingBase != "" && strings.HasPrefix(rawURL, c.accountingBase):
		return "accounting"
	case c.timetrackingBase != "" && strings.HasPrefix(rawURL, c.timetrackingBase):
		return "timetracking"
	default:
		return "other"
	}
}
