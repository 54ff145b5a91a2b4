// Package main provides the Lambda entry point that replicates a domain
// table's stream into another domain.
//
// Configuration comes from the file named by OPENDELIVERY_CONFIG (optional)
// and OPENDELIVERY_ environment variables; OPENDELIVERY_REPLICATE_TARGET is required.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jacentio/opendelivery/backend/dynamo"
	"github.com/jacentio/opendelivery/domain"
	"github.com/jacentio/opendelivery/internal/config"
	"github.com/jacentio/opendelivery/internal/metrics"
	"github.com/jacentio/opendelivery/stream"
)

func main() {
	handler, err := setup(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	lambda.Start(handler.HandleReplicate)
}

func setup(ctx context.Context) (*stream.Handler, error) {
	cfg, err := config.Load(os.Getenv("OPENDELIVERY_CONFIG"))
	if err != nil {
		return nil, err
	}
	if cfg.Replicate.Target == "" {
		return nil, errors.New("OPENDELIVERY_REPLICATE_TARGET is not set")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With("target", cfg.Replicate.Target)

	b, err := dynamo.Connect(ctx, cfg.Region, cfg.Profile, cfg.BackendConfig())
	if err != nil {
		return nil, err
	}

	storeCfg := cfg.StoreConfig()
	storeCfg.Logger = logger
	storeCfg.Observer = metrics.New(prometheus.DefaultRegisterer)

	return stream.NewHandler(domain.New(b, storeCfg), cfg.Replicate.Target, cfg.Table.ItemKey, logger), nil
}
