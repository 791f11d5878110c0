package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/authkeeper/authkeeper/internal/logger"
)

const (
	defaultAuthAddr     = "http://localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvDevelopment
	defaultBackend      = BackendFile
)

// Session storage backends the CLI can persist credentials with
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type Config struct {
	// Default logging level
	LogLevel string

	// Auth service address to authenticate against
	AuthAddr string

	// Where the session is persisted. Empty means a default location under
	// the user's home directory.
	SessionPath string

	// Storage backend: file, sqlite or memory
	Backend string

	// Environment, controls log formatting
	Environment string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:    defaultLoggingLevel,
		AuthAddr:    defaultAuthAddr,
		Backend:     defaultBackend,
		Environment: defaultEnvironment,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}

	envMap := map[string]func(string){
		"AUTH_SERVICE_ADDRESS": setString(&c.AuthAddr),
		"SESSION_PATH":         setString(&c.SessionPath),
		"SESSION_BACKEND":      setString(&c.Backend),
		"LOG_LEVEL":            setString(&c.LogLevel),
		"ENVIRONMENT":          setString(&c.Environment),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

// ParseFlags parses command line flags up to the first subcommand and
// returns the remaining arguments
func (c *Config) ParseFlags(args []string) ([]string, error) {
	fs := pflag.NewFlagSet("authkeeper", pflag.ContinueOnError)

	fs.StringVarP(&c.AuthAddr, "auth", "a", c.AuthAddr, "Auth service address")
	fs.StringVarP(&c.SessionPath, "session", "s", c.SessionPath, "Session storage path")
	fs.StringVarP(&c.Backend, "backend", "b", c.Backend, "Session storage backend (file, sqlite, memory)")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs.Args(), nil
}

// Validate checks option combinations that cannot work
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("unknown session backend: %q", c.Backend)
	}

	if c.AuthAddr == "" {
		return errors.New("auth service address must not be empty")
	}
	return nil
}
