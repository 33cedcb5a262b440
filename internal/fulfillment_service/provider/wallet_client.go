package provider

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
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/starsgate/golang_services/internal/fulfillment_service/domain"
)

const (
	DefaultWalletAPIURL = "https://api.fragment-api.com/v1"

	authScheme      = "JWT "
	maxResponseSize = 1 << 20
	logBodyLimit    = 800
)

// WalletConfig holds the wallet provider endpoint, secret material and
// per-call timeouts. Zero timeouts fall back to the defaults below.
type WalletConfig struct {
	BaseURL   string
	APIKey    string
	Phone     string
	Mnemonics []string
	Version   string

	AuthTimeout    time.Duration
	CheckTimeout   time.Duration
	OrderTimeout   time.Duration
	BalanceTimeout time.Duration

	RateLimit rate.Limit
	RateBurst int
}

func (c *WalletConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultWalletAPIURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = 30 * time.Second
	}
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = 8 * time.Second
	}
	if c.OrderTimeout <= 0 {
		c.OrderTimeout = 60 * time.Second
	}
	if c.BalanceTimeout <= 0 {
		c.BalanceTimeout = 8 * time.Second
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 1
	}
}

// WalletClient talks to the stars wallet API. It owns the credential and
// re-authenticates once whenever a call is answered with 401 or 403.
type WalletClient struct {
	logger     *slog.Logger
	httpClient *http.Client
	limiter    *rate.Limiter
	store      domain.CredentialStore
	cfg        WalletConfig
	now        func() time.Time

	mu   sync.RWMutex
	cred *domain.Credential
}

func NewWalletClient(logger *slog.Logger, cfg WalletConfig, store domain.CredentialStore, httpClient *http.Client) *WalletClient {
	cfg.applyDefaults()
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	return &WalletClient{
		logger:     logger.With("provider", "wallet"),
		httpClient: httpClient,
		limiter:    limiter,
		store:      store,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Credential returns a copy of the held credential, if any.
func (c *WalletClient) Credential() (domain.Credential, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cred == nil {
		return domain.Credential{}, false
	}
	return *c.cred, true
}

func (c *WalletClient) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cred == nil {
		return ""
	}
	return c.cred.Token
}

func (c *WalletClient) setCredential(cred *domain.Credential) {
	c.mu.Lock()
	c.cred = cred
	c.mu.Unlock()
}

// EnsureCredential loads the cached credential or authenticates. An error
// means the service has no way to talk to the wallet.
func (c *WalletClient) EnsureCredential(ctx context.Context) error {
	cached, err := c.store.Load()
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to read cached wallet credential, authenticating", "error", err)
	}
	if cached != nil && cached.Token != "" {
		if !cached.MatchesVersion(c.cfg.Version) {
			c.logger.WarnContext(ctx, "Cached wallet credential was issued for a different wallet version",
				"credential_version", cached.Version, "configured_version", c.cfg.Version)
		}
		c.setCredential(cached)
		return nil
	}
	if _, err := c.Authenticate(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNoCredential, err)
	}
	return nil
}

// Authenticate exchanges the secret material for a fresh credential and
// persists it. A failed save is logged; the credential stays in memory.
func (c *WalletClient) Authenticate(ctx context.Context) (*domain.Credential, error) {
	if c.cfg.APIKey == "" || len(c.cfg.Mnemonics) == 0 {
		return nil, errors.New("wallet secret material is not configured")
	}
	body := WalletAuthRequestBody{
		APIKey:      c.cfg.APIKey,
		PhoneNumber: c.cfg.Phone,
		Mnemonics:   c.cfg.Mnemonics,
		Version:     c.cfg.Version,
	}
	status, respBody, err := c.send(ctx, "auth", http.MethodPost, "/auth/authenticate/", body, "", c.cfg.AuthTimeout)
	if err != nil {
		c.logger.ErrorContext(ctx, "Wallet authentication request failed", "error", err)
		return nil, fmt.Errorf("wallet auth request: %w", err)
	}
	if !isSuccess(status) {
		c.logger.ErrorContext(ctx, "Wallet authentication rejected", "status_code", status, "body", clip(respBody, logBodyLimit))
		return nil, fmt.Errorf("wallet auth failed: status %d: %s", status, clip(respBody, 200))
	}

	var auth WalletAuthResponse
	if err := json.Unmarshal(respBody, &auth); err != nil || auth.Token == "" {
		c.logger.ErrorContext(ctx, "Wallet authentication returned no token", "status_code", status, "body", clip(respBody, logBodyLimit))
		return nil, fmt.Errorf("wallet auth response has no token")
	}

	cred := domain.Credential{Token: auth.Token, Version: c.cfg.Version, IssuedAt: c.now().UTC()}
	c.setCredential(&cred)
	if err := c.store.Save(cred); err != nil {
		c.logger.WarnContext(ctx, "Failed to persist wallet credential", "error", err)
	}
	c.logger.InfoContext(ctx, "Wallet authentication succeeded", "version", cred.Version)
	return &cred, nil
}

// CheckRecipientExists never fails: any error or non-success answer is
// reported as "does not exist".
func (c *WalletClient) CheckRecipientExists(ctx context.Context, recipient string) bool {
	username := domain.NormalizeRecipient(recipient)
	if username == "" {
		return false
	}
	path := "/misc/user/" + url.PathEscape(username) + "/"
	status, body, err := c.authorized(ctx, "user", http.MethodGet, path, nil, c.cfg.CheckTimeout)
	if err != nil {
		c.logger.ErrorContext(ctx, "Recipient lookup failed", "username", username, "error", err)
		return false
	}
	if !isSuccess(status) {
		c.logger.InfoContext(ctx, "Recipient lookup returned non-success", "username", username, "status_code", status)
		return false
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		c.logger.WarnContext(ctx, "Recipient lookup returned non-object body", "username", username, "error", err)
		return false
	}
	_, ok := decoded["username"]
	return ok
}

// Deliver orders quantity stars for recipient. Failures are returned as
// outcomes; a transport error yields Status 0 with the error text as body.
func (c *WalletClient) Deliver(ctx context.Context, recipient string, quantity int) domain.DeliveryOutcome {
	username := domain.NormalizeRecipient(recipient)
	reqBody := WalletOrderRequestBody{Username: username, Quantity: quantity}
	status, body, err := c.authorized(ctx, "order", http.MethodPost, "/order/stars/", reqBody, c.cfg.OrderTimeout)
	if err != nil {
		c.logger.ErrorContext(ctx, "Stars order request failed", "username", username, "quantity", quantity, "error", err)
		return domain.DeliveryOutcome{Success: false, Body: err.Error(), Status: 0}
	}
	if !isSuccess(status) {
		c.logger.WarnContext(ctx, "Stars order rejected", "username", username, "quantity", quantity,
			"status_code", status, "body", clip(body, logBodyLimit))
		return domain.DeliveryOutcome{Success: false, Body: string(body), Status: status}
	}
	c.logger.InfoContext(ctx, "Stars order accepted", "username", username, "quantity", quantity, "status_code", status)
	return domain.DeliveryOutcome{Success: true, Body: string(body), Status: status}
}

// Balance reports the wallet balance; ok is false when it cannot be determined.
func (c *WalletClient) Balance(ctx context.Context) (float64, bool) {
	status, body, err := c.authorized(ctx, "wallet", http.MethodGet, "/misc/wallet/", nil, c.cfg.BalanceTimeout)
	if err != nil {
		c.logger.ErrorContext(ctx, "Wallet balance request failed", "error", err)
		return 0, false
	}
	c.logger.DebugContext(ctx, "Wallet balance response", "status_code", status, "body", clip(body, 1000))
	if !isSuccess(status) {
		c.logger.WarnContext(ctx, "Wallet balance request returned non-success", "status_code", status)
		return 0, false
	}
	balance, ok := ParseBalance(body)
	if !ok {
		c.logger.WarnContext(ctx, "Could not extract balance from wallet response", "body", clip(body, 2000))
	}
	return balance, ok
}

// ParseBalance accepts a flat balance field, a nested "wallet" object or a
// nested "data" object, in that order. Numeric strings count as numbers.
func ParseBalance(raw []byte) (float64, bool) {
	var decoded map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return 0, false
	}
	if v, ok := firstNumber(decoded, flatBalanceKeys); ok {
		return v, true
	}
	if nested, ok := decoded["wallet"].(map[string]any); ok {
		if v, ok := firstNumber(nested, walletBalanceKeys); ok {
			return v, true
		}
	}
	if nested, ok := decoded["data"].(map[string]any); ok {
		if v, ok := firstNumber(nested, dataBalanceKeys); ok {
			return v, true
		}
	}
	return 0, false
}

func firstNumber(m map[string]any, keys []string) (float64, bool) {
	for _, k := range keys {
		raw, present := m[k]
		if !present {
			continue
		}
		switch v := raw.(type) {
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f, true
			}
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// authorized performs an authenticated call. On 401/403 it re-authenticates
// once and retries once; the retry's answer is returned as is.
func (c *WalletClient) authorized(ctx context.Context, endpoint, method, path string, body any, timeout time.Duration) (int, []byte, error) {
	status, respBody, err := c.send(ctx, endpoint, method, path, body, c.token(), timeout)
	if err != nil || !isUnauthorized(status) {
		return status, respBody, err
	}

	c.logger.WarnContext(ctx, "Wallet rejected credential, re-authenticating", "endpoint", endpoint, "status_code", status)
	c.setCredential(nil)
	cred, authErr := c.Authenticate(ctx)
	if authErr != nil {
		walletReauthCounter.WithLabelValues("failure").Inc()
		c.logger.ErrorContext(ctx, "Wallet re-authentication failed", "endpoint", endpoint, "error", authErr)
		return status, respBody, nil
	}
	walletReauthCounter.WithLabelValues("success").Inc()
	return c.send(ctx, endpoint, method, path, body, cred.Token, timeout)
}

func (c *WalletClient) send(ctx context.Context, endpoint, method, path string, body any, token string, timeout time.Duration) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal %s request: %w", endpoint, err)
		}
		reader = bytes.NewReader(b)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(reqCtx); err != nil {
			return 0, nil, fmt.Errorf("wallet rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(reqCtx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", authScheme+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		walletRequestDurationHist.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		return 0, nil, fmt.Errorf("send %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	walletRequestDurationHist.WithLabelValues(endpoint, statusClass(resp.StatusCode)).Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, nil, fmt.Errorf("read %s response (status %d): %w", endpoint, resp.StatusCode, err)
	}
	return resp.StatusCode, respBody, nil
}

func isSuccess(status int) bool { return status >= 200 && status < 300 }

func isUnauthorized(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

func clip(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}
