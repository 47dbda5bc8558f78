// Package backendclient talks to the couple's remote account backend: auth,
// goal progress, shared tasks, rewards and LGPD consent. The dashboard does
// not depend on it; only the CLI drives it.
package backendclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultBaseURL = "http://localhost:4000"
	DefaultTimeout = 10 * time.Second
)

// TokenSource supplies the bearer token attached to each request. An empty
// token means the request goes out unauthenticated.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed bearer token.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token() string { return string(t) }

// TokenStore keeps the tokens from the last login or refresh.
type TokenStore struct {
	mu      sync.RWMutex
	access  string
	refresh string
}

// Token implements TokenSource.
func (s *TokenStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

// RefreshToken returns the stored refresh token.
func (s *TokenStore) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

// Set stores the tokens from an auth response. A missing refresh token keeps
// the previous one.
func (s *TokenStore) Set(resp *AuthResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = resp.AccessToken
	if resp.RefreshToken != "" {
		s.refresh = resp.RefreshToken
	}
}

// APIError is returned for any non-2xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend API error: %s %s: status %d, body: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// Client is a JSON client for the backend REST API.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// New creates a Client. A blank baseURL or non-positive timeout falls back to
// the defaults; tokens may be nil.
func New(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

type RegisterRequest struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken,omitempty"`
	User         json.RawMessage `json:"user,omitempty"`
}

type TaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	AssigneeID  string `json:"assigneeId,omitempty"`
}

type RewardRequest struct {
	Title       string `json:"title"`
	Cost        int64  `json:"cost"`
	Description string `json:"description,omitempty"`
}

type ConsentRequest struct {
	UserID       string          `json:"userId"`
	ConsentGiven bool            `json:"consentGiven"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, in RegisterRequest) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", in, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Login exchanges credentials for tokens.
func (c *Client) Login(ctx context.Context, in LoginRequest) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshToken exchanges a refresh token for a new access token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	in := map[string]string{"refreshToken": refreshToken}
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/refresh-token", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateGoalProgress records progress towards a savings goal.
func (c *Client) UpdateGoalProgress(ctx context.Context, goalID string, progress decimal.Decimal) (json.RawMessage, error) {
	in := map[string]json.Number{"progress": json.Number(progress.String())}
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPatch, "/api/finance/goals/"+url.PathEscape(goalID), in, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateTask(ctx context.Context, in TaskRequest) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/collab/tasks", in, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListTasks(ctx context.Context) ([]json.RawMessage, error) {
	var out []json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/collab/tasks", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateReward(ctx context.Context, in RewardRequest) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/collab/rewards", in, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListRewards(ctx context.Context) ([]json.RawMessage, error) {
	var out []json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/collab/rewards", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PostConsent records an LGPD consent decision.
func (c *Client) PostConsent(ctx context.Context, in ConsentRequest) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/consent", in, &out); err != nil {
		return nil, err
	}
	return out, nil
}
