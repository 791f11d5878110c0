package guard

import (
	"context"
	"net/url"

	"github.com/authkeeper/authkeeper/internal/logger"
	"github.com/authkeeper/authkeeper/internal/models"
)

const (
	defaultLoginPath  = "/login"
	defaultDeniedPath = "/"
)

// sessionManager is the slice of the session manager the guard needs
type sessionManager interface {
	IsAuthenticated(ctx context.Context) bool
	CurrentUser(ctx context.Context) (models.User, error)
	Profile(ctx context.Context) (models.User, error)
}

// Navigator applies a redirect decision. The guard never renders or routes
// itself; the consumer (a UI shell, a CLI, an HTTP layer) decides what
// navigation means.
type Navigator interface {
	Navigate(target string)
}

// NavigatorFunc allows a plain function as Navigator
type NavigatorFunc func(target string)

func (f NavigatorFunc) Navigate(target string) {
	f(target)
}

type Config struct {
	// Where unauthenticated users are sent. The origin is carried in the
	// 'next' query parameter so the login flow can come back.
	LoginPath string

	// Where authenticated but under-privileged users are sent
	DeniedPath string

	Logger logger.Logger
}

// Guard gates flows on the presence of a session and on the role model's
// ascending privilege ordering
type Guard struct {
	manager sessionManager
	nav     Navigator

	loginPath  string
	deniedPath string
	logger     logger.Logger
}

func New(manager sessionManager, nav Navigator, cfg Config) *Guard {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	loginPath := cfg.LoginPath
	if loginPath == "" {
		loginPath = defaultLoginPath
	}
	deniedPath := cfg.DeniedPath
	if deniedPath == "" {
		deniedPath = defaultDeniedPath
	}

	return &Guard{
		manager:    manager,
		nav:        nav,
		loginPath:  loginPath,
		deniedPath: deniedPath,
		logger:     l,
	}
}

// IsAuthenticated reports whether a session with an access token exists.
// The access token is the sole signal; a cached profile alone is not enough.
func (g *Guard) IsAuthenticated(ctx context.Context) bool {
	return g.manager.IsAuthenticated(ctx)
}

// HasRole reports whether the current user is at least as privileged as min.
// Always false when unauthenticated.
func (g *Guard) HasRole(ctx context.Context, min models.Role) bool {
	if !g.manager.IsAuthenticated(ctx) {
		return false
	}

	user, err := g.manager.CurrentUser(ctx)
	if err != nil {
		return false
	}
	return user.Role.AtLeast(min)
}

// RequireAuth gates a flow on a live session. Unauthenticated users are
// redirected to the login flow with the origin in 'next'. When the session
// exists but no profile is cached, the profile is fetched through an
// authorized request, which doubles as a validity check of the token pair.
func (g *Guard) RequireAuth(ctx context.Context, returnURL string) bool {
	if !g.manager.IsAuthenticated(ctx) {
		g.nav.Navigate(g.loginTarget(returnURL))
		return false
	}

	user, err := g.manager.CurrentUser(ctx)
	if err == nil && user.ID != 0 {
		return true
	}

	if _, err := g.manager.Profile(ctx); err != nil {
		g.logger.Warn("Session could not be confirmed", "error", err)
		g.nav.Navigate(g.loginTarget(returnURL))
		return false
	}
	return true
}

// RequireAdmin composes RequireAuth with an admin role check. An
// authenticated but under-privileged user is sent to the denied destination,
// not to login: logging in again would not help.
func (g *Guard) RequireAdmin(ctx context.Context, returnURL string) bool {
	if !g.RequireAuth(ctx, returnURL) {
		return false
	}

	if !g.HasRole(ctx, models.RoleAdmin) {
		user, _ := g.manager.CurrentUser(ctx)
		g.logger.Warn("Access denied", "username", user.Username, "role", user.Role.String())
		g.nav.Navigate(g.deniedPath)
		return false
	}
	return true
}

func (g *Guard) loginTarget(returnURL string) string {
	if returnURL == "" {
		return g.loginPath
	}
	return g.loginPath + "?next=" + url.QueryEscape(returnURL)
}
