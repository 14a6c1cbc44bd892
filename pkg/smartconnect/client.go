// Package smartconnect is a trimmed Angel One SmartAPI client covering
// what the candle pipeline needs: session login with TOTP and the
// historical candle endpoint. Routes and headers mirror the upstream
// API contract.
package smartconnect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

const defaultRoot = "https://apiconnect.angelone.in"

var routes = map[string]string{
	"api.login":       "/rest/auth/angelbroking/user/v1/loginByPassword",
	"api.logout":      "/rest/secure/angelbroking/user/v1/logout",
	"api.token":       "/rest/auth/angelbroking/jwt/v1/generateTokens",
	"api.candle.data": "/rest/secure/angelbroking/historical/v1/getCandleData",
}

// API error classes worth distinguishing at call sites.
var (
	// ErrTransient marks failures worth retrying: network errors, 5xx,
	// throttling.
	ErrTransient = errors.New("transient upstream failure")
	// ErrRejected marks failures that will not succeed on retry.
	ErrRejected = errors.New("request rejected by upstream")
)

// Config configures the REST client.
type Config struct {
	APIKey     string
	ClientCode string
	Password   string
	TOTPSecret string

	RootURL string
	Timeout time.Duration

	// Header identity fields required by the API.
	ClientLocalIP  string
	ClientPublicIP string
	MACAddress     string
}

func (c *Config) defaults() {
	if c.RootURL == "" {
		c.RootURL = defaultRoot
	}
	if c.Timeout == 0 {
		c.Timeout = 7 * time.Second
	}
	if c.ClientLocalIP == "" {
		c.ClientLocalIP = "127.0.0.1"
	}
	if c.ClientPublicIP == "" {
		c.ClientPublicIP = "106.193.147.98"
	}
	if c.MACAddress == "" {
		c.MACAddress = "00:11:22:33:44:55"
	}
}

// Client is the REST client. Safe for concurrent use after Login.
type Client struct {
	cfg  Config
	http *http.Client

	accessToken  string
	refreshToken string
	feedToken    string
}

// New builds a client; call Login before authenticated endpoints.
func New(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// FeedToken returns the token required by the streaming feed.
func (c *Client) FeedToken() string { return c.feedToken }

// AuthToken returns the session JWT, or "" before Login.
func (c *Client) AuthToken() string { return c.accessToken }

// Login generates a fresh TOTP code from the configured secret and
// establishes a session, storing the returned tokens.
func (c *Client) Login(ctx context.Context) error {
	code, err := totp.GenerateCode(c.cfg.TOTPSecret, time.Now())
	if err != nil {
		return fmt.Errorf("totp generation: %w", err)
	}
	res, err := c.post(ctx, "api.login", map[string]any{
		"clientcode": c.cfg.ClientCode,
		"password":   c.cfg.Password,
		"totp":       code,
	})
	if err != nil {
		return err
	}
	data, ok := res["data"].(map[string]any)
	if !ok {
		return fmt.Errorf("%w: malformed login response", ErrRejected)
	}
	c.accessToken, _ = data["jwtToken"].(string)
	c.refreshToken, _ = data["refreshToken"].(string)
	c.feedToken, _ = data["feedToken"].(string)
	if c.accessToken == "" {
		return fmt.Errorf("%w: login returned no token", ErrRejected)
	}
	return nil
}

// Logout terminates the session.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.post(ctx, "api.logout", map[string]any{"clientcode": c.cfg.ClientCode})
	return err
}

// RawCandle is one row from the candle endpoint:
// [timestamp, open, high, low, close, volume].
type RawCandle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// GetCandleData fetches historical candles. Interval uses the upstream
// vocabulary (ONE_MINUTE, FIVE_MINUTE, ONE_DAY, ...).
func (c *Client) GetCandleData(ctx context.Context, exchange, symbolToken, interval string, from, to time.Time) ([]RawCandle, error) {
	res, err := c.post(ctx, "api.candle.data", map[string]any{
		"exchange":    exchange,
		"symboltoken": symbolToken,
		"interval":    interval,
		"fromdate":    from.Format("2006-01-02 15:04"),
		"todate":      to.Format("2006-01-02 15:04"),
	})
	if err != nil {
		return nil, err
	}
	rows, ok := res["data"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: candle payload missing data array", ErrTransient)
	}
	out := make([]RawCandle, 0, len(rows))
	for _, r := range rows {
		row, ok := r.([]any)
		if !ok || len(row) < 6 {
			return nil, fmt.Errorf("%w: malformed candle row", ErrTransient)
		}
		tsRaw, _ := row[0].(string)
		ts, err := time.Parse(time.RFC3339, tsRaw)
		if err != nil {
			return nil, fmt.Errorf("%w: bad candle timestamp %q", ErrTransient, tsRaw)
		}
		out = append(out, RawCandle{
			Timestamp: ts.UTC(),
			Open:      num(row[1]),
			High:      num(row[2]),
			Low:       num(row[3]),
			Close:     num(row[4]),
			Volume:    num(row[5]),
		})
	}
	return out, nil
}

func num(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-ClientLocalIP", c.cfg.ClientLocalIP)
	h.Set("X-ClientPublicIP", c.cfg.ClientPublicIP)
	h.Set("X-MACAddress", c.cfg.MACAddress)
	h.Set("X-PrivateKey", c.cfg.APIKey)
	h.Set("X-UserType", "USER")
	h.Set("X-SourceID", "WEB")
	if c.accessToken != "" {
		h.Set("Authorization", "Bearer "+c.accessToken)
	}
	return h
}

func (c *Client) post(ctx context.Context, route string, params map[string]any) (map[string]any, error) {
	uri, ok := routes[route]
	if !ok {
		return nil, fmt.Errorf("unknown route %q", route)
	}
	body, _ := json.Marshal(params)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.RootURL, "/")+uri, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header = c.headers()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, truncate(raw))
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: non-JSON response", ErrTransient)
	}
	if st, ok := out["status"].(bool); ok && !st {
		msg, _ := out["message"].(string)
		return out, fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	return out, nil
}

func truncate(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
