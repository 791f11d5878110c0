package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/authkeeper/authkeeper/internal/apperrors"
	"github.com/authkeeper/authkeeper/internal/authapi"
	"github.com/authkeeper/authkeeper/internal/credstore"
	"github.com/authkeeper/authkeeper/internal/logger"
	"github.com/authkeeper/authkeeper/internal/models"
)

const (
	// Fallback refresh period when the access token lifetime is unknown.
	// Chosen against the auth service's 15m access TTL.
	defaultRefreshInterval = 12 * time.Minute

	// How long before access token expiry the proactive refresh should land
	defaultRefreshMargin = 3 * time.Minute

	// Guard against degenerate intervals from absurdly short server TTLs
	minRefreshInterval = time.Minute
)

// apiClient is the slice of the auth service client the manager needs
type apiClient interface {
	Login(ctx context.Context, emailOrUsername string, password string) (authapi.AuthResponse, error)
	Register(ctx context.Context, params authapi.RegisterParams) (authapi.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (authapi.TokenResponse, error)
	Logout(ctx context.Context, accessToken string, refreshToken string) error
	URL(path string) string
}

type Config struct {
	// Fixed refresh period. When zero the period is derived from the access
	// token lifetime minus RefreshMargin.
	RefreshInterval time.Duration

	// Safety margin between a scheduled refresh and access token expiry
	RefreshMargin time.Duration

	// Client used for authorized requests (Do). Defaults to http.DefaultClient;
	// timeout policy belongs to this transport.
	HTTPClient *http.Client

	Logger logger.Logger
}

// Manager owns the client side of an authenticated session: the persisted
// credentials, the background refresh, recovery from token expiry on
// authorized requests, and the login/register/logout flows.
//
// Construct one Manager per process and pass it to every consumer; it is the
// only writer of its credential store.
type Manager struct {
	api   apiClient
	store credstore.Store

	interval time.Duration
	margin   time.Duration

	httpClient *http.Client
	logger     logger.Logger

	// Collapses concurrent scheduled and reactive refreshes into one call
	refreshGroup singleflight.Group

	scheduler *scheduler
}

func NewManager(api apiClient, store credstore.Store, cfg Config) (*Manager, error) {
	if api == nil || store == nil {
		return nil, errors.New("api client and store must not be nil")
	}

	l := cfg.Logger
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	margin := cfg.RefreshMargin
	if margin == 0 {
		margin = defaultRefreshMargin
	}

	m := &Manager{
		api:        api,
		store:      store,
		interval:   cfg.RefreshInterval,
		margin:     margin,
		httpClient: httpClient,
		logger:     l,
	}
	m.scheduler = newScheduler(m.Refresh, l)

	return m, nil
}

// Session returns the persisted session, apperrors.ErrNoSession when logged out
func (m *Manager) Session(ctx context.Context) (models.Session, error) {
	return m.store.Load(ctx)
}

// CurrentUser returns the cached profile of the logged in user
func (m *Manager) CurrentUser(ctx context.Context) (models.User, error) {
	session, err := m.store.Load(ctx)
	if err != nil {
		return models.User{}, err
	}
	return session.User, nil
}

// IsAuthenticated reports whether a session with an access token is persisted
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	session, err := m.store.Load(ctx)
	return err == nil && session.Authenticated()
}

// Login authenticates against the auth service, persists the session and
// starts the refresh scheduler. A prior session is left untouched on failure.
func (m *Manager) Login(ctx context.Context, emailOrUsername string, password string) (models.User, error) {
	resp, err := m.api.Login(ctx, emailOrUsername, password)
	if err != nil {
		return models.User{}, fmt.Errorf("login failed: %w", err)
	}

	return m.establish(ctx, resp)
}

// Register creates an account, persists the session and starts the refresh
// scheduler. A prior session is left untouched on failure.
func (m *Manager) Register(ctx context.Context, params authapi.RegisterParams) (models.User, error) {
	resp, err := m.api.Register(ctx, params)
	if err != nil {
		return models.User{}, fmt.Errorf("register failed: %w", err)
	}

	return m.establish(ctx, resp)
}

func (m *Manager) establish(ctx context.Context, resp authapi.AuthResponse) (models.User, error) {
	user := resp.User.ToModel()

	err := m.store.Save(ctx, models.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		User:         user,
	})
	if err != nil {
		return models.User{}, fmt.Errorf("failed to persist session: %w", err)
	}

	m.scheduler.Start(m.refreshInterval(resp.AccessToken, resp.AccessTTL()))
	m.logger.Info("Session established", "username", user.Username, "role", user.Role.String())

	return user, nil
}

// Resume restarts the refresh scheduler for a session persisted by an earlier
// process. The token pair is refreshed immediately so the scheduler starts
// from a known-fresh access token.
func (m *Manager) Resume(ctx context.Context) error {
	session, err := m.store.Load(ctx)
	if err != nil || !session.Authenticated() {
		return apperrors.ErrNotAuthenticated
	}

	if err := m.Refresh(ctx); err != nil {
		return err
	}

	session, err = m.store.Load(ctx)
	if err != nil {
		return apperrors.ErrNotAuthenticated
	}

	m.scheduler.Start(m.refreshInterval(session.AccessToken, 0))
	return nil
}

// Refresh exchanges the stored refresh token for a rotated pair, replacing
// both tokens in the store. Concurrent callers (scheduled tick, 401 recovery)
// share a single in-flight exchange: duplicate calls would race to rotate the
// single-use refresh token and spuriously log one caller out.
//
// Any failure clears the store and reports apperrors.ErrSessionExpired.
// Retry policy belongs to callers; there is none here.
func (m *Manager) Refresh(ctx context.Context) error {
	_, err, _ := m.refreshGroup.Do("refresh", func() (any, error) {
		return nil, m.refresh(ctx)
	})
	return err
}

func (m *Manager) refresh(ctx context.Context) error {
	session, err := m.store.Load(ctx)
	if err != nil || session.RefreshToken == "" {
		return apperrors.ErrSessionExpired
	}

	resp, err := m.api.Refresh(ctx, session.RefreshToken)
	if err != nil {
		// The refresh token is spent or unreachable: fail safe to logged out
		if clearErr := m.store.Clear(ctx); clearErr != nil {
			m.logger.Error("Failed to clear session after refresh failure", "error", clearErr)
		}
		m.logger.Warn("Token refresh failed, session cleared", "error", err)
		return fmt.Errorf("%w: %w", apperrors.ErrSessionExpired, err)
	}

	// Rotate both tokens in one composite write, keeping the cached profile
	session.AccessToken = resp.AccessToken
	session.RefreshToken = resp.RefreshToken
	if err := m.store.Save(ctx, session); err != nil {
		return fmt.Errorf("failed to persist rotated session: %w", err)
	}

	m.logger.Debug("Token pair rotated")
	return nil
}

// Do sends an authorized request: it attaches the current access token and
// recovers from a 401 with exactly one refresh-and-retry cycle. The retried
// response is returned whatever its status; any other status passes through
// untouched. Without an access token it fails fast with ErrNotAuthenticated
// and no network call.
//
// Requests with a body are retried only when GetBody is set (requests built
// with http.NewRequest from a bytes or strings reader always have it).
func (m *Manager) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	session, err := m.store.Load(ctx)
	if err != nil || !session.Authenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}

	resp, err := m.send(req, session.AccessToken, false)
	if err != nil {
		return nil, err
	}

	replayable := req.Body == nil || req.GetBody != nil
	if resp.StatusCode != http.StatusUnauthorized || !replayable {
		return resp, nil
	}
	resp.Body.Close() // nolint:errcheck

	m.logger.Debug("Request unauthorized, attempting refresh and retry", "url", req.URL.Path)

	if err := m.Refresh(ctx); err != nil {
		// Session already cleared; stop proactive refreshing too
		m.scheduler.Stop()
		return nil, err
	}

	session, err = m.store.Load(ctx)
	if err != nil {
		return nil, apperrors.ErrNotAuthenticated
	}

	// Exactly one retry: a second 401 is returned to the caller as is
	return m.send(req, session.AccessToken, true)
}

func (m *Manager) send(req *http.Request, accessToken string, replay bool) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if replay && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		clone.Body = body
	}
	clone.Header.Set("Authorization", "Bearer "+accessToken)

	return m.httpClient.Do(clone)
}

// Profile fetches the user profile from the auth service through an
// authorized request and refreshes the cached copy
func (m *Manager) Profile(ctx context.Context) (models.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.api.URL("/api/auth/me"), nil)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := m.Do(req)
	if err != nil {
		return models.User{}, err
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return models.User{}, authapi.ResponseError(resp)
	}

	payload, err := authapi.DecodeUser(resp)
	if err != nil {
		return models.User{}, err
	}
	user := payload.ToModel()

	// Cache the fresh profile next to the current token pair
	if session, err := m.store.Load(ctx); err == nil {
		session.User = user
		if err := m.store.Save(ctx, session); err != nil {
			m.logger.Warn("Failed to cache refreshed profile", "error", err)
		}
	}

	return user, nil
}

// ChangePassword changes the account password through an authorized request.
// The server revokes every session on success, so the local session is
// cleared and the scheduler stopped: the user has to log in again.
func (m *Manager) ChangePassword(ctx context.Context, currentPassword string, newPassword string) error {
	body, err := json.Marshal(struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}{currentPassword, newPassword})
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, m.api.URL("/api/auth/password"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return authapi.ResponseError(resp)
	}

	// All refresh tokens are revoked server side now
	m.scheduler.Stop()
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	m.logger.Info("Password changed, session closed")
	return nil
}

// Logout revokes the refresh token best effort and unconditionally clears
// the persisted session and stops the scheduler. A failed revoke call is
// logged and swallowed: the local state transition never blocks on it.
func (m *Manager) Logout(ctx context.Context) error {
	m.scheduler.Stop()

	session, err := m.store.Load(ctx)
	if err == nil && session.RefreshToken != "" {
		if err := m.api.Logout(ctx, session.AccessToken, session.RefreshToken); err != nil {
			m.logger.Warn("Best effort token revoke failed", "error", err)
		}
	}

	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	m.logger.Info("Logged out")
	return nil
}

// Close stops background refreshing without touching the persisted session
func (m *Manager) Close() {
	m.scheduler.Stop()
}

// refreshInterval picks the proactive refresh period: an explicit configured
// interval wins; otherwise the access token lifetime (server supplied, or
// read from the token's own exp/iat claims) minus the safety margin; the
// fixed default covers tokens of unknown lifetime.
func (m *Manager) refreshInterval(accessToken string, ttl time.Duration) time.Duration {
	if m.interval > 0 {
		return m.interval
	}

	if ttl <= 0 {
		ttl = ttlFromClaims(accessToken)
	}

	if interval := ttl - m.margin; interval >= minRefreshInterval {
		return interval
	}
	return defaultRefreshInterval
}

// ttlFromClaims reads the access token lifetime from its registered claims.
// The signature is not verified: the client holds no key, and the lifetime
// only schedules a refresh, it grants nothing.
func ttlFromClaims(accessToken string) time.Duration {
	var claims jwt.RegisteredClaims

	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return 0
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return 0
	}
	return claims.ExpiresAt.Sub(claims.IssuedAt.Time)
}
