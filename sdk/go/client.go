// Package sdk is a typed Go client for the agriscore HTTP and WebSocket API.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"agriscore/core"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the agriscore HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithUserID identifies the caller through the X-User-ID header, for servers
// running behind a trusted gateway without tokens.
func WithUserID(id string) Option {
	return WithHeader("X-User-ID", strings.TrimSpace(id))
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" && v != "" {
			c.headers.Set(k, v)
		}
	}
}

// LogActivity scores an activity for the authenticated caller.
func (c *Client) LogActivity(ctx context.Context, activity, description string) (ActivityResult, error) {
	var res ActivityResult
	err := c.post(ctx, "/activities", activityBody(activity, description), &res)
	return res, err
}

// LogActivityFor scores an activity on behalf of userID.
func (c *Client) LogActivityFor(ctx context.Context, userID, activity, description string) (ActivityResult, error) {
	if strings.TrimSpace(userID) == "" {
		return ActivityResult{}, ErrEmptyUserID
	}
	var res ActivityResult
	err := c.post(ctx, "/users/"+url.PathEscape(userID)+"/activities", activityBody(activity, description), &res)
	return res, err
}

func activityBody(activity, description string) map[string]string {
	body := map[string]string{"activity_type": activity}
	if description != "" {
		body["description"] = description
	}
	return body
}

// MyScore fetches the caller's score record.
func (c *Client) MyScore(ctx context.Context) (core.UserScore, error) {
	var s core.UserScore
	err := c.get(ctx, "/scores/me", nil, &s)
	return s, err
}

// GetScore fetches the score record of userID.
func (c *Client) GetScore(ctx context.Context, userID string) (core.UserScore, error) {
	if strings.TrimSpace(userID) == "" {
		return core.UserScore{}, ErrEmptyUserID
	}
	var s core.UserScore
	err := c.get(ctx, "/users/"+url.PathEscape(userID)+"/score", nil, &s)
	return s, err
}

// MyRank fetches the caller's all-time rank.
func (c *Client) MyRank(ctx context.Context) (Rank, error) {
	var r Rank
	err := c.get(ctx, "/scores/me/rank", nil, &r)
	return r, err
}

// GetRank fetches the all-time rank of userID.
func (c *Client) GetRank(ctx context.Context, userID string) (Rank, error) {
	if strings.TrimSpace(userID) == "" {
		return Rank{}, ErrEmptyUserID
	}
	var r Rank
	err := c.get(ctx, "/users/"+url.PathEscape(userID)+"/rank", nil, &r)
	return r, err
}

// Leaderboard fetches the top users for period ("all", "week" or "month").
// A zero limit uses the server default.
func (c *Client) Leaderboard(ctx context.Context, limit int, period string) (Leaderboard, error) {
	q := url.Values{}
	if limit != 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if period != "" {
		q.Set("period", period)
	}
	var lb Leaderboard
	err := c.get(ctx, "/leaderboard", q, &lb)
	return lb, err
}

// Badges lists the badge catalog.
func (c *Client) Badges(ctx context.Context) ([]core.BadgeDefinition, error) {
	var out []core.BadgeDefinition
	err := c.get(ctx, "/catalog/badges", nil, &out)
	return out, err
}

// Levels lists the level thresholds in ascending order.
func (c *Client) Levels(ctx context.Context) ([]core.LevelThreshold, error) {
	var out []core.LevelThreshold
	err := c.get(ctx, "/catalog/levels", nil, &out)
	return out, err
}

// Health probes /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	err := c.get(ctx, "/healthz", nil, &hs)
	return hs, err
}

// SubscribeEvents connects to the WebSocket stream and emits core.Event values.
// Optional types narrow the stream. The returned channel closes when ctx is done
// or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context, types ...core.EventType) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	target := c.wsURL
	if len(types) > 0 {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		target += "?types=" + url.QueryEscape(strings.Join(names, ","))
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, target, c.headers)
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	out := make(chan core.Event, 32)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var evt core.Event
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			select {
			case out <- evt:
			default:
				// drop if consumer is slow
			}
		}
	}()
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, target any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, target)
}

func (c *Client) post(ctx context.Context, path string, body, target any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, target)
}

func (c *Client) do(req *http.Request, target any) error {
	c.applyHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, target)
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
