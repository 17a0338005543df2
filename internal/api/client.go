// Package api is the authenticated request client for the game backend.
// Every response uses the {success, data, message} envelope; bearer
// credentials and 401/403/5xx handling are centralized here.
package api

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
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestTimeout = 10 * time.Second

var ErrUnauthorized = errors.New("unauthorized")
var ErrForbidden = errors.New("forbidden")

// TokenSource supplies the current bearer token, or "" when logged out.
type TokenSource interface {
	Token() string
}

// Error is a server-side rejection: the request reached the backend and
// came back with success=false.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

// envelope is the backend's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

type Client struct {
	base           string
	http           *http.Client
	tokens         TokenSource
	log            *zap.Logger
	onUnauthorized func()
}

func New(baseURL string, tokens TokenSource, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		http:   &http.Client{Timeout: requestTimeout},
		tokens: tokens,
		log:    log,
	}
}

// OnUnauthorized registers a hook fired on every 401, before the error
// is returned. Typically wired to the token store's Clear.
func (c *Client) OnUnauthorized(fn func()) { c.onUnauthorized = fn }

// SetHTTPClient swaps the underlying transport (tests).
func (c *Client) SetHTTPClient(h *http.Client) { c.http = h }

// SocketURL builds the real-time endpoint URL for path, mirroring the
// base URL's transport security: https → wss, http → ws. The socket
// lives at host level under /ws, regardless of any API path prefix.
func (c *Client) SocketURL(path string) string {
	u, err := url.Parse(c.base)
	if err != nil {
		return ""
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = "/ws" + path
	u.RawQuery = ""
	return u.String()
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.log.Warn("unauthorized", zap.String("path", path))
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		c.log.Warn("access denied", zap.String("path", path))
		return ErrForbidden
	case resp.StatusCode >= 500:
		c.log.Error("server error", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return &Error{Status: resp.StatusCode, Message: "server error"}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		return &Error{Status: resp.StatusCode, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}
