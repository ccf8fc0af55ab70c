// Package api provides an HTTP client for the reelcast feed service. It
// implements feed.Gateway.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/gauthierbraillon/reelcast/internal/feed"
	"github.com/gauthierbraillon/reelcast/internal/logging"
	"github.com/gauthierbraillon/reelcast/pkg/oauth"
)

// DefaultBaseURL is where `reelcast serve` listens by default.
const DefaultBaseURL = "http://localhost:8080"

// HTTPClient interface for making HTTP requests (allows injection for testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBaseURL sets a custom base URL (useful for testing).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithRateLimit caps outgoing requests per second. Zero or less disables it.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Duration(float64(time.Second)/perSecond)), 1)
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *log.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client is a feed service client.
type Client struct {
	token      *oauth.Token
	baseURL    string
	httpClient HTTPClient
	limiter    *rate.Limiter
	logger     *log.Logger
}

var _ feed.Gateway = (*Client)(nil)

// NewClient creates a new feed service client. token may be nil: reads work
// anonymously and mutations then fail with feed.ErrAuth.
func NewClient(token *oauth.Token, opts ...ClientOption) *Client {
	c := &Client{
		token:      token,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
		logger:     logging.WithPrefix("api"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FetchPage retrieves up to limit items starting at offset. Items missing an
// id or media URL are dropped and counted in Page.Skipped.
func (c *Client) FetchPage(ctx context.Context, limit, offset int) (feed.Page, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(limit))
	q.Set("offset", fmt.Sprint(offset))

	body, err := c.doRequest(ctx, http.MethodGet, "/v1/feed?"+q.Encode(), nil, http.StatusOK)
	if err != nil {
		return feed.Page{}, feed.Wrap("fetch page", "", err)
	}

	var response feedResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return feed.Page{}, feed.Wrap("fetch page", "", fmt.Errorf("failed to parse feed response: %w: %w", feed.ErrDecode, err))
	}

	page := feed.Page{
		Items:   make([]feed.Item, 0, len(response.Items)),
		Offset:  response.Offset,
		HasMore: response.HasMore,
	}
	for _, raw := range response.Items {
		var item feed.Item
		if err := json.Unmarshal(raw, &item); err != nil || item.ID == "" || item.MediaURL == "" {
			page.Skipped++
			continue
		}
		item.Counters = clampCounters(item.Counters)
		page.Items = append(page.Items, item)
	}
	if page.Skipped > 0 {
		c.logger.Warn("skipped malformed items", "offset", offset, "skipped", page.Skipped)
	}

	return page, nil
}

// SetLike commits the liked flag and returns the value the service settled on.
func (c *Client) SetLike(ctx context.Context, itemID string, liked bool) (bool, error) {
	method := http.MethodPut
	if !liked {
		method = http.MethodDelete
	}

	body, err := c.doRequest(ctx, method, itemPath(itemID, "like"), nil, http.StatusOK)
	if err != nil {
		return false, feed.Wrap("set like", itemID, err)
	}

	var response likeResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return false, feed.Wrap("set like", itemID, fmt.Errorf("failed to parse like response: %w: %w", feed.ErrDecode, err))
	}
	return response.Liked, nil
}

// AddComment posts a comment and returns the canonical comment.
func (c *Client) AddComment(ctx context.Context, itemID, text string) (feed.Comment, error) {
	payload, err := json.Marshal(commentRequest{Text: text})
	if err != nil {
		return feed.Comment{}, fmt.Errorf("failed to encode comment: %w", err)
	}

	body, err := c.doRequest(ctx, http.MethodPost, itemPath(itemID, "comments"), payload, http.StatusCreated, http.StatusOK)
	if err != nil {
		return feed.Comment{}, feed.Wrap("add comment", itemID, err)
	}

	var comment feed.Comment
	if err := json.Unmarshal(body, &comment); err != nil {
		return feed.Comment{}, feed.Wrap("add comment", itemID, fmt.Errorf("failed to parse comment response: %w: %w", feed.ErrDecode, err))
	}
	if comment.ItemID == "" {
		comment.ItemID = itemID
	}
	return comment, nil
}

// FetchComments retrieves the comments for an item, newest first.
func (c *Client) FetchComments(ctx context.Context, itemID string) ([]feed.Comment, error) {
	body, err := c.doRequest(ctx, http.MethodGet, itemPath(itemID, "comments"), nil, http.StatusOK)
	if err != nil {
		return nil, feed.Wrap("fetch comments", itemID, err)
	}

	var response commentsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, feed.Wrap("fetch comments", itemID, fmt.Errorf("failed to parse comments response: %w: %w", feed.ErrDecode, err))
	}
	if response.Comments == nil {
		return []feed.Comment{}, nil
	}
	return response.Comments, nil
}

// IncrementShare reports a completed share.
func (c *Client) IncrementShare(ctx context.Context, itemID string) error {
	if _, err := c.doRequest(ctx, http.MethodPost, itemPath(itemID, "shares"), nil, http.StatusNoContent, http.StatusOK); err != nil {
		return feed.Wrap("increment share", itemID, err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload []byte, want ...int) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w: %w", feed.ErrNetwork, err)
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.token != nil && c.token.AccessToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token.AccessToken))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach feed service: %w: %w", feed.ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w: %w", feed.ErrNetwork, err)
	}

	c.logger.Debug("request", "method", method, "path", path, "status", resp.StatusCode, "took", time.Since(start))

	if !slices.Contains(want, resp.StatusCode) {
		return nil, c.handleAPIError(resp.StatusCode)
	}

	return body, nil
}

func itemPath(itemID, resource string) string {
	return fmt.Sprintf("/v1/items/%s/%s", url.PathEscape(itemID), resource)
}

func clampCounters(c feed.Counters) feed.Counters {
	c.Likes = max(c.Likes, 0)
	c.Comments = max(c.Comments, 0)
	c.Shares = max(c.Shares, 0)
	return c
}

// API wire types (private - implementation detail)

type feedResponse struct {
	Items   []json.RawMessage `json:"items"`
	Offset  int               `json:"offset"`
	HasMore bool              `json:"has_more"`
}

type likeResponse struct {
	Liked     bool  `json:"liked"`
	LikeCount int64 `json:"like_count"`
}

type commentRequest struct {
	Text string `json:"text"`
}

type commentsResponse struct {
	Comments []feed.Comment `json:"comments"`
}

func (c *Client) handleAPIError(statusCode int) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("feed service authentication failed - please run 'reelcast auth' to re-authenticate: %w", feed.ErrAuth)
	case http.StatusForbidden:
		return fmt.Errorf("feed service access denied - check your token: %w", feed.ErrAuth)
	case http.StatusTooManyRequests:
		return fmt.Errorf("feed service rate limit exceeded - please try again later: %w", feed.ErrNetwork)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("feed service temporarily unavailable - please try again in a few minutes: %w", feed.ErrNetwork)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
		return fmt.Errorf("feed service server error - please try again later: %w", feed.ErrNetwork)
	default:
		return fmt.Errorf("feed service error (status %d) - please try again: %w", statusCode, feed.ErrNetwork)
	}
}
