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
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/poiesic/kbsearch"
	"github.com/poiesic/kbsearch/ai"
	"github.com/poiesic/kbsearch/storage"
	"github.com/poiesic/kbsearch/storage/memory"
	"github.com/poiesic/kbsearch/storage/natskv"
	"github.com/poiesic/kbsearch/storage/sqlstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

// Cache store kinds accepted by --cache.
const (
	cacheBadger   = "badger"
	cacheMemory   = "memory"
	cacheSQLite   = "sqlite"
	cachePostgres = "postgres"
	cacheNATS     = "nats"
)

// engineFlags are shared by every command that opens the database.
func engineFlags() []cli.Flag {
	defaults := ai.DefaultConfig()
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "db",
			Aliases:  []string{"d"},
			Usage:    "Path to BadgerDB database directory",
			Required: true,
			EnvVars:  []string{"KBSEARCH_DB"},
		},
		&cli.StringFlag{
			Name:    "provider",
			Usage:   "Embedding client (langchain, http, mock)",
			Value:   defaults.Provider,
			EnvVars: []string{"KBSEARCH_PROVIDER"},
		},
		&cli.StringFlag{
			Name:    "embedding-host",
			Usage:   "Embedding service host URL",
			Value:   defaults.EmbeddingHost,
			EnvVars: []string{"KBSEARCH_EMBEDDING_HOST"},
		},
		&cli.StringFlag{
			Name:     "embedding-model",
			Aliases:  []string{"model"},
			Usage:    "Embedding model name",
			Required: true,
			EnvVars:  []string{"KBSEARCH_EMBEDDING_MODEL"},
		},
		&cli.StringFlag{
			Name:    "api-key",
			Usage:   "API key for the embedding service",
			EnvVars: []string{"KBSEARCH_API_KEY", "OPENAI_API_KEY"},
		},
		&cli.DurationFlag{
			Name:    "request-timeout",
			Usage:   "Timeout for each embedding request",
			Value:   defaults.RequestTimeout,
			EnvVars: []string{"KBSEARCH_REQUEST_TIMEOUT"},
		},
		&cli.IntFlag{
			Name:    "dimensions",
			Usage:   "Expected embedding dimensions (0 accepts any)",
			EnvVars: []string{"KBSEARCH_DIMENSIONS"},
		},
		&cli.IntFlag{
			Name:    "batch-limit",
			Usage:   "Maximum texts per provider batch",
			Value:   defaults.BatchLimit,
			EnvVars: []string{"KBSEARCH_BATCH_LIMIT"},
		},
		&cli.StringFlag{
			Name:    "cache",
			Usage:   "Embedding cache store (badger, memory, sqlite, postgres, nats)",
			Value:   cacheBadger,
			EnvVars: []string{"KBSEARCH_CACHE"},
		},
		&cli.StringFlag{
			Name:    "cache-dsn",
			Usage:   "Cache store location: SQL DSN or NATS URL",
			EnvVars: []string{"KBSEARCH_CACHE_DSN"},
		},
		&cli.DurationFlag{
			Name:    "cache-ttl",
			Usage:   "Entry lifetime for the memory and nats stores (0 keeps entries)",
			EnvVars: []string{"KBSEARCH_CACHE_TTL"},
		},
		&cli.DurationFlag{
			Name:    "cache-timeout",
			Usage:   "Bound on each cache store call (0 disables)",
			Value:   2 * time.Second,
			EnvVars: []string{"KBSEARCH_CACHE_TIMEOUT"},
		},
	}
}

func aiConfigFromFlags(c *cli.Context) *ai.Config {
	return ai.NewConfig(
		ai.WithProvider(c.String("provider")),
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithAPIKey(c.String("api-key")),
		ai.WithRequestTimeout(c.Duration("request-timeout")),
		ai.WithDimensions(c.Int("dimensions")),
		ai.WithBatchLimit(c.Int("batch-limit")),
	)
}

// openEngine opens the database and embedding stack described by the flags.
func openEngine(c *cli.Context) (*kbsearch.Engine, error) {
	aiConfig := aiConfigFromFlags(c)
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	opts := []kbsearch.Option{
		kbsearch.WithAIConfig(aiConfig),
		kbsearch.WithCacheTimeout(c.Duration("cache-timeout")),
	}
	if c.String("metrics-addr") != "" {
		opts = append(opts, kbsearch.WithMetricsRegisterer(prometheus.DefaultRegisterer))
	}

	store, err := openCacheStore(c.Context, c.String("cache"), c.String("cache-dsn"), c.Duration("cache-ttl"))
	if err != nil {
		return nil, err
	}
	if store != nil {
		opts = append(opts, kbsearch.WithCacheStore(store))
	}

	engine, err := kbsearch.Open(c.String("db"), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return engine, nil
}

// openCacheStore returns the store named by kind, or nil for badger, which
// shares the document database.
func openCacheStore(ctx context.Context, kind, dsn string, ttl time.Duration) (storage.CacheStore, error) {
	switch strings.ToLower(kind) {
	case "", cacheBadger:
		return nil, nil
	case cacheMemory:
		return memory.NewStore(ttl), nil
	case cacheSQLite, cachePostgres:
		if dsn == "" {
			return nil, fmt.Errorf("--cache-dsn is required for the %s cache", kind)
		}
		dialect, err := sqlstore.ParseDialect(kind)
		if err != nil {
			return nil, err
		}
		store, err := sqlstore.Open(ctx, dialect, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s cache: %w", kind, err)
		}
		return store, nil
	case cacheNATS:
		if dsn == "" {
			dsn = nats.DefaultURL
		}
		return openNATSStore(ctx, dsn, ttl)
	default:
		return nil, fmt.Errorf("unknown cache store %q", kind)
	}
}

// natsCacheStore closes the connection together with the store.
type natsCacheStore struct {
	*natskv.Store
	conn *nats.Conn
}

func (s *natsCacheStore) Close() error {
	err := s.Store.Close()
	return errors.Join(err, s.conn.Drain())
}

func openNATSStore(ctx context.Context, url string, ttl time.Duration) (storage.CacheStore, error) {
	conn, err := nats.Connect(url, nats.Name("kbsearch"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	store, err := natskv.Open(ctx, js, natskv.DefaultBucket, ttl)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &natsCacheStore{Store: store, conn: conn}, nil
}
