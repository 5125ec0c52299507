package fiscal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Session is a bearer token with its expiry. One session lives on the client
// and is refreshed lazily; concurrent refreshes collapse into a single
// in-flight sign-in via singleflight.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

type Client struct {
	baseURL    string
	login      string
	password   string
	licenseKey string
	sessionTTL time.Duration
	httpc      *http.Client
	log        *slog.Logger

	mu      sync.Mutex
	session *Session
	sf      singleflight.Group
}

func NewClient(baseURL, login, password, licenseKey string, sessionTTL time.Duration, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		login:      login,
		password:   password,
		licenseKey: licenseKey,
		sessionTTL: sessionTTL,
		httpc:      &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

// SignIn exchanges the configured credentials for a bearer token. A non-2xx
// response is fatal for the caller; there is no retry here.
func (c *Client) SignIn(ctx context.Context) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"login":    c.login,
		"password": c.password,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/cashier/signin", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-License-Key", c.licenseKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("fiscal sign-in failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("fiscal sign-in returned %d: %s", resp.StatusCode, respBody)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decoding sign-in response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("fiscal sign-in returned empty token")
	}
	return payload.AccessToken, nil
}

// Authenticate returns a valid session token, signing in only when the
// cached session is missing or expired.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.session != nil && time.Now().Before(c.session.ExpiresAt) {
		token := c.session.Token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	v, err, _ := c.sf.Do("signin", func() (interface{}, error) {
		token, err := c.SignIn(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.session = &Session{Token: token, ExpiresAt: time.Now().Add(c.sessionTTL)}
		c.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// EnsureShiftOpen probes for an active register shift and opens one only when
// the probe errors. Another process may already have opened the shift; the
// probe result is trusted either way, so a second shift is never opened.
func (c *Client) EnsureShiftOpen(ctx context.Context, token string) (*Shift, error) {
	shift, err := c.currentShift(ctx, token)
	if err == nil {
		return shift, nil
	}
	c.log.Info("no active shift, opening a new one", "probe_error", err)

	return c.openShift(ctx, token)
}

func (c *Client) currentShift(ctx context.Context, token string) (*Shift, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/cashier/shift", nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req, token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shift probe failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("shift probe returned %d: %s", resp.StatusCode, respBody)
	}

	var shift Shift
	if err := json.NewDecoder(resp.Body).Decode(&shift); err != nil {
		return nil, fmt.Errorf("decoding shift: %w", err)
	}
	if shift.ID == "" {
		return nil, fmt.Errorf("no active shift")
	}
	return &shift, nil
}

func (c *Client) openShift(ctx context.Context, token string) (*Shift, error) {
	// Fresh idempotency identifier per open attempt.
	body, _ := json.Marshal(map[string]string{"id": uuid.NewString()})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/shifts", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.authorize(req, token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shift open failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("shift open returned %d: %s", resp.StatusCode, respBody)
	}

	var shift Shift
	if err := json.NewDecoder(resp.Body).Decode(&shift); err != nil {
		return nil, fmt.Errorf("decoding opened shift: %w", err)
	}
	return &shift, nil
}

// CreateReceipt performs the single receipt POST. The backend can accept the
// request and still reject the receipt, so any present status other than
// CREATED is treated as a failure even on a 2xx response. No retry happens
// here; retries are the caller's responsibility and must be idempotency-safe.
func (c *Client) CreateReceipt(ctx context.Context, token string, request ReceiptRequest) (*Receipt, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+request.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.authorize(req, token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("receipt request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("receipt request returned %d: %s", resp.StatusCode, respBody)
	}

	var receipt Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return nil, fmt.Errorf("decoding receipt: %w", err)
	}
	if receipt.Status != "" && receipt.Status != "CREATED" {
		return nil, fmt.Errorf("receipt rejected with status %s", receipt.Status)
	}
	return &receipt, nil
}

func (c *Client) authorize(req *http.Request, token string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-License-Key", c.licenseKey)
}
