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
	"time"
)

// DefaultBaseURL is the worksheet API host.
const DefaultBaseURL = "https://api-staging.crazygoldfish.com"

// Client talks to the remote worksheet-generation API.
type Client struct {
	baseURL   string
	http      *http.Client
	onExpired func(token string)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithExpiryHook registers fn to be called with the rejected token whenever
// an authenticated call is answered with 401.
func WithExpiryHook(fn func(token string)) Option {
	return func(c *Client) { c.onExpired = fn }
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API host the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	form := url.Values{
		"username":   {username},
		"password":   {password},
		"grant_type": {"password"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, raw, err := c.do(req, "")
	if err != nil {
		return "", err
	}
	if !ok(resp) {
		return "", &ValidationError{Op: "login", Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.AccessToken == "" {
		return "", fmt.Errorf("%w: login response has no access_token", ErrMalformedResponse)
	}
	return body.AccessToken, nil
}

// SubmitQuestionConfigJob starts question-config generation for a metadata job.
func (c *Client) SubmitQuestionConfigJob(ctx context.Context, token, jobID string, subjectMatter, learningStandards json.RawMessage) error {
	body := map[string]json.RawMessage{
		"subject_matter":     orNull(subjectMatter),
		"learning_standards": orNull(learningStandards),
	}
	return c.postJSON(ctx, token, "submit question config", "/worksheet/v1/question-config/"+url.PathEscape(jobID), body)
}

// SubmitWorksheetJob starts worksheet generation from a question configuration.
func (c *Client) SubmitWorksheetJob(ctx context.Context, token, jobID string, questionConfig json.RawMessage) error {
	return c.postJSON(ctx, token, "generate worksheet", "/worksheet/v1/generate-worksheet/"+url.PathEscape(jobID), orNull(questionConfig))
}

func (c *Client) postJSON(ctx context.Context, token, op, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s body: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, raw, err := c.do(req, token)
	if err != nil {
		return err
	}
	if !ok(resp) {
		return &ValidationError{Op: op, Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, token, op, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	resp, raw, err := c.do(req, token)
	if err != nil {
		return err
	}
	if !ok(resp) {
		return &ValidationError{Op: op, Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, op, err)
	}
	return nil
}

// do sends req and reads the whole body. Authenticated calls (token != "")
// go through the expiry check before anyone looks at the body: a 401 is
// reported as ErrAuthExpired and the body is discarded.
func (c *Client) do(req *http.Request, token string) (*http.Response, []byte, error) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, fmt.Errorf("%w: %s %s: %v", ErrNetwork, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if token != "" && resp.StatusCode == http.StatusUnauthorized {
		slog.Warn("API rejected token", "method", req.Method, "path", req.URL.Path)
		_, _ = io.Copy(io.Discard, resp.Body)
		if c.onExpired != nil {
			c.onExpired(token)
		}
		return resp, nil, ErrAuthExpired
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("%w: read %s body: %v", ErrNetwork, req.URL.Path, err)
	}
	slog.Debug("API response", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode)
	return resp, raw, nil
}

func ok(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func orNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
