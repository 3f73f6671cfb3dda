// Package client talks to the course progress api, it backs the learner CLI's
// progression.Catalog and progression.ProgressService.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pot-code/course-progress/internal/progression"
	"github.com/pot-code/course-progress/internal/user"
	"go.uber.org/zap"
)

const maxErrorBody = 4096

// APIError non 2xx reply
type APIError struct {
	Status int    `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Title)
}

// Config client options
type Config struct {
	BaseURL string // e.g. http://127.0.0.1:8081/api/v1
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client api client, safe for concurrent use
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

var (
	_ progression.Catalog         = &Client{}
	_ progression.ProgressService = &Client{}
)

// New create a Client
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     cfg.Logger,
	}
}

// LoginResult reply of a successful login
type LoginResult struct {
	Token string          `json:"token"`
	User  *user.UserModel `json:"user"`
}

// Login exchange the credential for a token
func (c *Client) Login(ctx context.Context, cred *user.Credential) (*LoginResult, error) {
	result := new(LoginResult)
	if err := c.do(ctx, http.MethodPost, "/user/login", "", cred, result); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return result, nil
}

// FetchCourse implement progression.Catalog
func (c *Client) FetchCourse(ctx context.Context) (*progression.Course, error) {
	course := new(progression.Course)
	if err := c.do(ctx, http.MethodGet, "/modules", "", nil, course); err != nil {
		return nil, fmt.Errorf("fetch modules: %w", err)
	}
	return course, nil
}

// FetchProgress implement progression.ProgressService, a 404 means the record is not initialized
func (c *Client) FetchProgress(ctx context.Context, token string) ([]*progression.LessonProgress, error) {
	var items []*progression.LessonProgress
	err := c.do(ctx, http.MethodGet, "/progress", token, nil, &items)
	if apiErr, ok := err.(*APIError); ok && apiErr.Status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", progression.ErrNotInitialized, apiErr.Error())
	}
	if err != nil {
		return nil, err
	}
	return items, nil
}

// InitProgress implement progression.ProgressService
func (c *Client) InitProgress(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/progress/init", token, nil, nil)
}

// SubmitCompletion implement progression.ProgressService
func (c *Client) SubmitCompletion(ctx context.Context, token string, lessonID int) error {
	body := map[string]int{"lessonId": lessonID}
	return c.do(ctx, http.MethodPost, "/progress/complete", token, body, nil)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	c.logger.Debug("api request",
		zap.String("http.request.method", method),
		zap.String("url.path", path),
		zap.Int("http.response.status_code", resp.StatusCode),
		zap.Duration("event.duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = json.Unmarshal(raw, apiErr)
		apiErr.Status = resp.StatusCode
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
