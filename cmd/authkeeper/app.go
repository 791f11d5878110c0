package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/authkeeper/authkeeper/internal/authapi"
	"github.com/authkeeper/authkeeper/internal/credstore"
	"github.com/authkeeper/authkeeper/internal/credstore/filestore"
	"github.com/authkeeper/authkeeper/internal/credstore/sqlitestore"
	"github.com/authkeeper/authkeeper/internal/logger"
	"github.com/authkeeper/authkeeper/internal/session"
)

const usage = `Usage: authkeeper [flags] <command>

Commands:
  register <email> <username> [invite-code]   Create an account and log in
  login <email-or-username>                   Log in, password is read from stdin
  logout                                      Revoke the refresh token and clear the session
  whoami                                      Show the profile of the logged in user
  token                                       Print the current access token
  watch                                       Keep the session fresh until interrupted
`

type App struct {
	manager *session.Manager
	logger  logger.Logger

	stdin  io.Reader
	stdout io.Writer

	closeStore func() error
}

func NewApp(ctx context.Context, c *Config) (*App, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	store, closeStore, err := openStore(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("error while opening session store: %w", err)
	}

	client := authapi.NewClient(c.AuthAddr, logger)

	manager, err := session.NewManager(client, store, session.Config{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("error while creating session manager: %w", err)
	}

	return &App{
		manager:    manager,
		logger:     logger,
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		closeStore: closeStore,
	}, nil
}

func openStore(ctx context.Context, c *Config) (credstore.Store, func() error, error) {
	noop := func() error { return nil }

	switch c.Backend {
	case BackendMemory:
		return credstore.NewMemoryStore(), noop, nil
	case BackendSQLite:
		path := defaultedPath(c.SessionPath, "session.db")
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, nil, err
		}
		store, err := sqlitestore.Open(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		store, err := filestore.New(defaultedPath(c.SessionPath, "session.json"))
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil
	}
}

// defaultedPath places the session under ~/.authkeeper unless configured
func defaultedPath(configured string, filename string) string {
	if configured != "" {
		return configured
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".authkeeper", filename)
	}
	return filepath.Join(home, ".authkeeper", filename)
}

func (a *App) Close() {
	a.manager.Close()
	if err := a.closeStore(); err != nil {
		a.logger.Warn("Failed to close session store", "error", err)
	}
}

func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.stdout, usage)
		return fmt.Errorf("no command given")
	}

	command, rest := args[0], args[1:]

	switch command {
	case "register":
		return a.register(ctx, rest)
	case "login":
		return a.login(ctx, rest)
	case "logout":
		return a.manager.Logout(ctx)
	case "whoami":
		return a.whoami(ctx)
	case "token":
		return a.token(ctx)
	case "watch":
		return a.watch(ctx)
	default:
		fmt.Fprint(a.stdout, usage)
		return fmt.Errorf("unknown command: %q", command)
	}
}

func (a *App) register(ctx context.Context, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("usage: register <email> <username> [invite-code]")
	}

	password, err := a.readPassword()
	if err != nil {
		return err
	}

	params := authapi.RegisterParams{
		Email:    args[0],
		Username: args[1],
		Password: password,
	}
	if len(args) == 3 {
		params.InviteCode = args[2]
	}

	user, err := a.manager.Register(ctx, params)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Registered and logged in as %s (%s)\n", user.Username, user.Role.String())
	return nil
}

func (a *App) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: login <email-or-username>")
	}

	password, err := a.readPassword()
	if err != nil {
		return err
	}

	user, err := a.manager.Login(ctx, args[0], password)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Logged in as %s (%s)\n", user.Username, user.Role.String())
	return nil
}

func (a *App) whoami(ctx context.Context) error {
	user, err := a.manager.Profile(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "ID:       %d\n", user.ID)
	fmt.Fprintf(a.stdout, "Email:    %s\n", user.Email)
	fmt.Fprintf(a.stdout, "Username: %s\n", user.Username)
	fmt.Fprintf(a.stdout, "Role:     %s\n", user.Role.String())
	if user.LastLoginAt != nil {
		fmt.Fprintf(a.stdout, "Last login: %s\n", user.LastLoginAt.Local())
	}
	return nil
}

// token prints the raw access token so shell scripts can build their own
// authorized requests
func (a *App) token(ctx context.Context) error {
	s, err := a.manager.Session(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.stdout, s.AccessToken)
	return nil
}

// watch resumes the persisted session and keeps the token pair fresh in the
// background until the context is cancelled
func (a *App) watch(ctx context.Context) error {
	if err := a.manager.Resume(ctx); err != nil {
		return err
	}

	user, err := a.manager.CurrentUser(ctx)
	if err == nil {
		fmt.Fprintf(a.stdout, "Keeping session fresh for %s, press Ctrl+C to stop\n", user.Username)
	}

	<-ctx.Done()
	return nil
}

// readPassword reads one line from stdin. The prompt is written to stdout
// only when stdin looks interactive, so piping a password stays quiet.
func (a *App) readPassword() (string, error) {
	if f, ok := a.stdin.(*os.File); ok {
		if stat, err := f.Stat(); err == nil && stat.Mode()&os.ModeCharDevice != 0 {
			fmt.Fprint(a.stdout, "Password: ")
		}
	}

	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	return password, nil
}
