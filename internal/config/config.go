// Package config loads command configuration.
//
// Sources, later overriding earlier: defaults, an optional YAML file, then
// OPENDELIVERY_ environment variables (OPENDELIVERY_POLL_INTERVAL -> poll.interval).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jacentio/opendelivery/backend/dynamo"
	"github.com/jacentio/opendelivery/domain"
)

// EnvPrefix is the environment variable prefix.
const EnvPrefix = "OPENDELIVERY_"

// Config is the command configuration.
type Config struct {
	// Region is the AWS region; empty uses the SDK default chain.
	Region string `koanf:"region"`

	// Profile is the shared AWS config profile; empty uses the default.
	Profile string `koanf:"profile"`

	Table TableConfig `koanf:"table"`
	Poll  PollConfig  `koanf:"poll"`
	Keys  KeysConfig  `koanf:"keys"`

	Replicate ReplicateConfig `koanf:"replicate"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
}

type TableConfig struct {
	Prefix  string `koanf:"prefix"`
	ItemKey string `koanf:"item_key"`
	Streams bool   `koanf:"streams"`
}

// PollConfig bounds write confirmation. Attempts covers item and property
// writes; DomainAttempts covers create and destroy, which wait for table
// provisioning and should stay well above Attempts.
type PollConfig struct {
	Interval       time.Duration `koanf:"interval"`
	Attempts       int           `koanf:"attempts"`
	DomainAttempts int           `koanf:"domain_attempts"`
}

type KeysConfig struct {
	// Certificate is a PEM file with the public certificate (encrypt only).
	Certificate string `koanf:"certificate"`

	// PrivateKey is a PEM file with the private key (encrypt and decrypt).
	PrivateKey string `koanf:"private_key"`
}

// ReplicateConfig configures the stream replicator.
type ReplicateConfig struct {
	// Target is the domain that receives replicated items.
	Target string `koanf:"target"`
}

// Default returns the built-in defaults.
func Default() Config {
	d := domain.DefaultConfig()
	t := dynamo.DefaultConfig()
	return Config{
		Table: TableConfig{
			Prefix:  t.TablePrefix,
			ItemKey: t.ItemKey,
		},
		Poll: PollConfig{
			Interval: d.PollInterval,
			Attempts:       d.PollAttempts,
			DomainAttempts: d.DomainPollAttempts,
		},
		LogLevel: "info",
	}
}

// Load reads configuration from path (optional) and the environment.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// OPENDELIVERY_TABLE_ITEM_KEY -> table.item_key
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// envKey maps an environment variable to a config path. The first underscore
// after the prefix separates the section; the rest belong to the field name.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(s, "_")
	if !ok {
		return s
	}
	switch section {
	case "table", "poll", "keys", "replicate":
		return section + "." + field
	default:
		return s
	}
}

// StoreConfig converts the poll and region settings for domain.New.
func (c Config) StoreConfig() domain.Config {
	cfg := domain.DefaultConfig()
	cfg.Region = c.Region
	cfg.PollInterval = c.Poll.Interval
	cfg.PollAttempts = c.Poll.Attempts
	cfg.DomainPollAttempts = c.Poll.DomainAttempts
	return cfg
}

// BackendConfig converts the table settings for dynamo.New.
func (c Config) BackendConfig() dynamo.Config {
	return dynamo.Config{
		TablePrefix: c.Table.Prefix,
		ItemKey:     c.Table.ItemKey,
		Streams:     c.Table.Streams,
	}
}
