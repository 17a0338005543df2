// Package auth holds the session token and the thin auth endpoints. The
// token is only checked locally for expiry; the server verifies it for
// real on every request.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/demerle/liars-dice/internal/api"
)

var ErrMalformedToken = errors.New("malformed token")

// TokenStore is the in-memory bearer token holder. Implements
// api.TokenSource.
type TokenStore struct {
	mu    sync.RWMutex
	token string
}

func NewTokenStore() *TokenStore { return &TokenStore{} }

func (s *TokenStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *TokenStore) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *TokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

// User mirrors the backend's auth payload.
type User struct {
	ID       int64  `json:"id,omitempty"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// session is the login/register response: the user plus an issued token.
type session struct {
	User
	Token string `json:"token"`
}

type Service struct {
	api    *api.Client
	tokens *TokenStore
	log    *zap.Logger
}

func NewService(client *api.Client, tokens *TokenStore, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{api: client, tokens: tokens, log: log}
}

func (s *Service) Login(ctx context.Context, username, password string) (User, error) {
	var sess session
	err := s.api.Post(ctx, "/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &sess)
	if err != nil {
		return User{}, fmt.Errorf("login: %w", err)
	}
	s.tokens.Set(sess.Token)
	s.log.Info("logged in", zap.String("username", sess.Username))
	return sess.User, nil
}

func (s *Service) Register(ctx context.Context, username, email, password string) (User, error) {
	var sess session
	err := s.api.Post(ctx, "/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, &sess)
	if err != nil {
		return User{}, fmt.Errorf("register: %w", err)
	}
	s.tokens.Set(sess.Token)
	return sess.User, nil
}

// Logout clears the local token whether or not the server call succeeds.
func (s *Service) Logout(ctx context.Context) error {
	err := s.api.Post(ctx, "/auth/logout", nil, nil)
	s.tokens.Clear()
	return err
}

func (s *Service) CurrentUser(ctx context.Context) (User, error) {
	var u User
	if err := s.api.Get(ctx, "/auth/me", &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// IsAuthenticated reports whether a token is present and not expired.
// The check is local and advisory: the payload is decoded without
// signature verification, which the client could not do anyway.
func (s *Service) IsAuthenticated() bool {
	tok := s.tokens.Token()
	if tok == "" {
		return false
	}
	exp, err := tokenExpiry(tok)
	if err != nil {
		return false
	}
	return exp.After(time.Now())
}

func tokenExpiry(token string) (time.Time, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}, ErrMalformedToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("decode token payload: %w", err)
	}
	var claims struct {
		Exp int64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return time.Time{}, fmt.Errorf("decode token claims: %w", err)
	}
	if claims.Exp == 0 {
		return time.Time{}, ErrMalformedToken
	}
	return time.Unix(claims.Exp, 0), nil
}
