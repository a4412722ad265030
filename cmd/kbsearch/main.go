// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

const metricsServerKey = "metrics-server"

func main() {
	// A missing .env file is normal; flags and the environment still apply.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("ignoring .env: %v", err)
	}

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "kbsearch",
		Usage: "Cached embeddings and hybrid search over a knowledge base",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"KBSEARCH_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Serve Prometheus metrics on this address (e.g. :9090)",
				EnvVars: []string{"KBSEARCH_METRICS_ADDR"},
			},
		},
		Before: func(c *cli.Context) error {
			if err := setupLogger(c); err != nil {
				return err
			}
			return startMetricsServer(c)
		},
		After: stopMetricsServer,
		Commands: []*cli.Command{
			{
				Name:      "embed",
				Usage:     "Embed texts read from stdin, one per line, through the cache",
				Action:    embedCommand,
				Flags:     engineFlags(),
				ArgsUsage: " ",
			},
			{
				Name:      "ingest",
				Usage:     "Store documents from files and embed them",
				Action:    ingestCommand,
				ArgsUsage: "FILE...",
				Flags: append(engineFlags(),
					&cli.BoolFlag{
						Name:  "whole-file",
						Usage: "Store each file as one document instead of one per line",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of concurrent ingestion jobs",
						Value: 2,
					},
				),
			},
			{
				Name:      "seed",
				Usage:     "Store a small sample corpus, for trying out search",
				Action:    seedCommand,
				Flags:     engineFlags(),
				ArgsUsage: " ",
			},
			{
				Name:      "search",
				Usage:     "Hybrid semantic and keyword search",
				Action:    searchCommand,
				ArgsUsage: "QUERY...",
				Flags: append(engineFlags(),
					&cli.IntFlag{
						Name:  "max-hits",
						Usage: "Maximum number of results",
						Value: 5,
					},
					&cli.Float64Flag{
						Name:  "semantic-weight",
						Usage: "Weight of the vector similarity list",
						Value: 1,
					},
					&cli.Float64Flag{
						Name:  "keyword-weight",
						Usage: "Weight of the keyword list",
						Value: 1,
					},
					&cli.Float64Flag{
						Name:  "rrf-k",
						Usage: "Reciprocal Rank Fusion smoothing constant",
						Value: 60,
					},
					&cli.Float64Flag{
						Name:  "min-similarity",
						Usage: "Cosine similarity floor for semantic hits",
						Value: 0.3,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print results as JSON",
					},
				),
			},
			{
				Name:   "reembed",
				Usage:  "Reembed all documents with a (new) embedding model",
				Action: reembedCommand,
				Flags: append(engineFlags(),
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of documents to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N documents",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
					&cli.BoolFlag{
						Name:  "skip-current",
						Usage: "Skip documents already embedded with the target model",
					},
				),
			},
			{
				Name:   "fuse",
				Usage:  "Fuse two JSON lists of scored entries with Reciprocal Rank Fusion",
				Action: fuseCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "semantic",
						Usage:    "JSON file with the semantic list",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "keyword",
						Usage:    "JSON file with the keyword list",
						Required: true,
					},
					&cli.Float64Flag{
						Name:  "semantic-weight",
						Usage: "Weight of the semantic list",
						Value: 1,
					},
					&cli.Float64Flag{
						Name:  "keyword-weight",
						Usage: "Weight of the keyword list",
						Value: 1,
					},
					&cli.Float64Flag{
						Name:  "rrf-k",
						Usage: "Reciprocal Rank Fusion smoothing constant",
						Value: 60,
					},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

func startMetricsServer(c *cli.Context) error {
	addr := c.String("metrics-addr")
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "addr", addr, "err", err)
		}
	}()
	slog.Info("serving metrics", "addr", addr)

	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[metricsServerKey] = srv
	return nil
}

func stopMetricsServer(c *cli.Context) error {
	srv, ok := c.App.Metadata[metricsServerKey].(*http.Server)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
