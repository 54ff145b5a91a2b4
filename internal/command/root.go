// Package command provides CLI command definitions for opendelivery.
//
// It uses urfave/cli/v2 for command parsing. Every command runs against one
// domain.Store built from the global flags and the config file.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/jacentio/opendelivery/backend"
	"github.com/jacentio/opendelivery/backend/dynamo"
	"github.com/jacentio/opendelivery/cipher"
	"github.com/jacentio/opendelivery/domain"
	"github.com/jacentio/opendelivery/internal/config"
	"github.com/jacentio/opendelivery/internal/metrics"
)

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// ErrNotFound is returned by read commands when nothing is stored.
var ErrNotFound = errors.New("opendelivery: not found")

const runtimeKey = "runtime"

// BackendFactory builds the backend a command runs against.
type BackendFactory func(ctx context.Context, cfg config.Config) (backend.Backend, error)

// DynamoBackend connects to DynamoDB using the region, profile and table settings of cfg.
func DynamoBackend(ctx context.Context, cfg config.Config) (backend.Backend, error) {
	return dynamo.Connect(ctx, cfg.Region, cfg.Profile, cfg.BackendConfig())
}

// Runtime is the per-invocation state shared by all commands.
type Runtime struct {
	Config   config.Config
	Store    *domain.Store
	Logger   *slog.Logger
	Registry *prometheus.Registry
}

// App creates the CLI application backed by DynamoDB.
func App() *cli.App {
	return AppWithBackend(DynamoBackend)
}

// AppWithBackend creates the CLI application with a custom backend.
func AppWithBackend(factory BackendFactory) *cli.App {
	return &cli.App{
		Name:    "opendelivery",
		Usage:   "Manage configuration domains with read-after-write consistency",
		Version: fmt.Sprintf("%s (commit: %s)", Version, Commit),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			CreateCommand(),
			DestroyCommand(),
			ExistsCommand(),
			ItemsCommand(),
			LoadCommand(),
			DestroyItemCommand(),
			GetCommand(),
			SetCommand(),
			DeleteCommand(),
			GetEncryptedCommand(),
			SetEncryptedCommand(),
			ItemJSONCommand(),
		},
		Before: func(c *cli.Context) error {
			rt, err := newRuntime(c, factory)
			if err != nil {
				return err
			}
			c.App.Metadata[runtimeKey] = rt
			return nil
		},
		After: func(c *cli.Context) error {
			rt := GetRuntime(c)
			path := c.String("metrics-file")
			if rt == nil || path == "" {
				return nil
			}
			if err := prometheus.WriteToTextfile(path, rt.Registry); err != nil {
				return fmt.Errorf("write metrics: %w", err)
			}
			return nil
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a YAML config file",
			EnvVars: []string{"OPENDELIVERY_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "region",
			Aliases: []string{"r"},
			Usage:   "AWS region (e.g., us-west-1)",
		},
		&cli.StringFlag{
			Name:  "profile",
			Usage: "AWS shared config profile",
		},
		&cli.StringFlag{
			Name:  "certificate",
			Usage: "PEM file with the public certificate used to encrypt",
		},
		&cli.StringFlag{
			Name:  "private-key",
			Usage: "PEM file with the private key used to decrypt",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "metrics-file",
			Usage: "Write write-confirmation metrics to this file on exit",
		},
	}
}

// GetRuntime retrieves the runtime from context.
func GetRuntime(c *cli.Context) *Runtime {
	if rt, ok := c.App.Metadata[runtimeKey].(*Runtime); ok {
		return rt
	}
	return nil
}

func newRuntime(c *cli.Context, factory BackendFactory) (*Runtime, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	applyFlags(c, &cfg)

	logger, err := newLogger(c.App.ErrWriter, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger = logger.With("request_id", uuid.NewString())

	b, err := factory(c.Context, cfg)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	storeCfg := cfg.StoreConfig()
	storeCfg.Logger = logger
	storeCfg.Observer = metrics.New(registry)

	var keys *cipher.KeyPair
	if cfg.Keys.Certificate != "" || cfg.Keys.PrivateKey != "" {
		keys, err = cipher.LoadKeyPair(cfg.Keys.Certificate, cfg.Keys.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("load keys: %w", err)
		}
	}

	return &Runtime{
		Config:   cfg,
		Store:    domain.NewWithKeys(b, storeCfg, keys),
		Logger:   logger,
		Registry: registry,
	}, nil
}

// applyFlags overrides config values with flags set on the command line.
func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("region") {
		cfg.Region = c.String("region")
	}
	if c.IsSet("profile") {
		cfg.Profile = c.String("profile")
	}
	if c.IsSet("certificate") {
		cfg.Keys.Certificate = c.String("certificate")
	}
	if c.IsSet("private-key") {
		cfg.Keys.PrivateKey = c.String("private-key")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var l slog.Level
	if level != "" {
		if err := l.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}

// args returns exactly the named positional arguments.
func args(c *cli.Context, names ...string) ([]string, error) {
	if c.NArg() != len(names) {
		return nil, fmt.Errorf("usage: %s %s %s", c.App.Name, c.Command.Name, strings.Join(names, " "))
	}
	return c.Args().Slice(), nil
}

// currentRuntime returns the runtime or an error when Before did not run.
func currentRuntime(c *cli.Context) (*Runtime, error) {
	rt := GetRuntime(c)
	if rt == nil {
		return nil, errors.New("opendelivery: runtime not initialized")
	}
	return rt, nil
}
