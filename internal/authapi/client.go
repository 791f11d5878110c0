package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/authkeeper/authkeeper/internal/logger"
)

const defaultTimeout = 15 * time.Second

// Client talks to the auth service's documented endpoints. It holds no
// session state: tokens are passed in by the caller on every call.
type Client struct {
	baseURL string

	client *http.Client
	logger logger.Logger
}

func NewClient(baseURL string, l logger.Logger) *Client {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  l,
	}
}

// URL joins path onto the auth service base address
func (c *Client) URL(path string) string {
	return c.baseURL + path
}

type RegisterParams struct {
	Email      string
	Username   string
	Password   string
	InviteCode string // optional, passed through opaquely
}

// Login exchanges credentials for a token pair and the user profile
func (c *Client) Login(ctx context.Context, emailOrUsername string, password string) (AuthResponse, error) {
	body := struct {
		EmailOrUsername string `json:"email_or_username"`
		Password        string `json:"password"`
	}{emailOrUsername, password}

	var out AuthResponse
	err := c.post(ctx, "/api/auth/login", body, "", &out)
	return out, err
}

// Register creates an account and logs it in within the same call
func (c *Client) Register(ctx context.Context, params RegisterParams) (AuthResponse, error) {
	body := struct {
		Email      string `json:"email"`
		Username   string `json:"username"`
		Password   string `json:"password"`
		InviteCode string `json:"invite_code,omitempty"`
	}{params.Email, params.Username, params.Password, params.InviteCode}

	var out AuthResponse
	err := c.post(ctx, "/api/auth/register", body, "", &out)
	return out, err
}

// Refresh presents a refresh token and gets back a rotated pair.
// The presented token is single use: after a successful call it is dead.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenResponse, error) {
	body := struct {
		RefreshToken string `json:"refresh_token"`
	}{refreshToken}

	var out TokenResponse
	err := c.post(ctx, "/api/auth/refresh", body, "", &out)
	return out, err
}

// Logout asks the server to revoke the refresh token. The response body is
// not interpreted; callers treat the whole call as best effort.
func (c *Client) Logout(ctx context.Context, accessToken string, refreshToken string) error {
	body := struct {
		RefreshToken string `json:"refresh_token"`
	}{refreshToken}

	return c.post(ctx, "/api/auth/logout", body, accessToken, nil)
}

func (c *Client) post(ctx context.Context, path string, body any, accessToken string, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(path), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return newError(CodeTransport, 0, "", fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		err := ResponseError(resp)
		c.logger.Warn("Auth service rejected request", "path", path, "status", resp.StatusCode, "detail", err.Detail)
		return err
	}

	if out == nil {
		return nil
	}
	return decodeValid(resp.Body, out)
}

// DecodeUser decodes and validates a user profile response body.
// Used with responses obtained outside the client, e.g. via authorized fetch.
func DecodeUser(resp *http.Response) (UserPayload, error) {
	var p UserPayload
	err := decodeValid(resp.Body, &p)
	return p, err
}

// ResponseError turns a non-2xx auth service response into a typed error,
// surfacing the server's 'detail' message verbatim when present
func ResponseError(resp *http.Response) *Error {
	detail := http.StatusText(resp.StatusCode)

	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Detail != "" {
		detail = body.Detail
	}

	code := CodeRejected
	if resp.StatusCode == http.StatusUnauthorized {
		code = CodeUnauthorized
	}

	return newError(code, resp.StatusCode, detail, fmt.Errorf("auth service returned status %d", resp.StatusCode))
}

// decodeValid decodes JSON into out and checks it against the schema tags.
// A body that decodes but misses required fields is malformed, not a
// zero-valued success.
func decodeValid(r io.Reader, out any) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return newError(CodeMalformed, 0, "", fmt.Errorf("failed to decode response: %w", err))
	}

	if err := validate.Struct(out); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return newError(CodeMalformed, 0, "", fmt.Errorf("failed to validate response: %w", err))
		}
		return newError(CodeMalformed, 0, "", fmt.Errorf("response failed schema validation: %w", err))
	}

	return nil
}
