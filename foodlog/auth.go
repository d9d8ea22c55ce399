// ABOUTME: Email/password client for the identity provider token endpoint.
// ABOUTME: Handles sign-up, sign-in and refresh-token exchange.
package foodlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthClient exchanges account credentials for short-lived access tokens.
type AuthClient struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

// NewAuthClient constructs an AuthClient for the configured provider.
func NewAuthClient(cfg AuthConfig) *AuthClient {
	to := cfg.Timeout
	if to == 0 {
		to = 30 * time.Second
	}
	return &AuthClient{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		hc:      &http.Client{Timeout: to},
	}
}

// Credentials is everything needed to act as a signed-in user.
type Credentials struct {
	User         UserIdentity `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	Expires      time.Time    `json:"expires"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// SignUp creates an account and signs it in.
func (c *AuthClient) SignUp(ctx context.Context, email, password string) (Credentials, error) {
	return c.passwordRequest(ctx, "signup", "/auth/v1/signup", email, password)
}

// SignIn authenticates with email/password.
func (c *AuthClient) SignIn(ctx context.Context, email, password string) (Credentials, error) {
	return c.passwordRequest(ctx, "sign in", "/auth/v1/token?grant_type=password", email, password)
}

// Refresh exchanges a refresh token for a new token pair.
func (c *AuthClient) Refresh(ctx context.Context, refreshToken string) (Credentials, error) {
	if refreshToken == "" {
		return Credentials{}, errors.New("refresh token required")
	}
	req := struct {
		RefreshToken string `json:"refresh_token"`
	}{
		RefreshToken: refreshToken,
	}
	return c.tokenRequest(ctx, "refresh", "/auth/v1/token?grant_type=refresh_token", req)
}

func (c *AuthClient) passwordRequest(ctx context.Context, op, path, email, password string) (Credentials, error) {
	email = strings.TrimSpace(email)
	password = strings.TrimSpace(password)
	if email == "" || password == "" {
		return Credentials{}, errors.New("email and password required")
	}
	req := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{
		Email:    email,
		Password: password,
	}
	return c.tokenRequest(ctx, op, path, req)
}

func (c *AuthClient) tokenRequest(ctx context.Context, op, path string, body any) (Credentials, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return Credentials{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return Credentials{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("%s: %w: %v", op, ErrNetworkFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		sentinel := classifyStatus(resp.StatusCode)
		if resp.StatusCode == http.StatusBadRequest {
			sentinel = ErrUnauthorized
		}
		return Credentials{}, fmt.Errorf("%s failed: %w: %s", op, sentinel, decodeErrorBody(resp))
	}

	var out tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Credentials{}, err
	}
	creds := Credentials{
		User:         UserIdentity{ID: out.User.ID, Email: out.User.Email},
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
	}
	if out.ExpiresIn > 0 {
		creds.Expires = time.Now().Add(time.Duration(out.ExpiresIn) * time.Second).UTC()
	} else if exp, err := TokenExpiry(out.AccessToken); err == nil {
		creds.Expires = exp
	}
	return creds, nil
}

// TokenExpiry reads the exp claim from a JWT without verifying it. The client
// never holds the signing key; it only needs to know when to refresh.
func TokenExpiry(access string) (time.Time, error) {
	token, _, err := jwt.NewParser().ParseUnverified(access, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, err
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, errors.New("token has no exp claim")
	}
	return exp.Time.UTC(), nil
}
