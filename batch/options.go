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

package batch

import (
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/kbsearch/metrics"
)

// DefaultProviderBatchLimit is the largest number of texts sent through one
// ProcessBatch call by ProcessBatchWithSplitting.
const DefaultProviderBatchLimit = 2048

// DefaultPoolSize is how many cache misses are generated at once unless
// WithPoolSize says otherwise. Generation waits on the network, so this does
// not follow the CPU count.
const DefaultPoolSize = 16

// Option configures a Processor.
type Option func(*Processor) error

// WithProviderBatchLimit sets the chunk size used by
// ProcessBatchWithSplitting. Default is DefaultProviderBatchLimit.
func WithProviderBatchLimit(limit int) Option {
	return func(p *Processor) error {
		if limit <= 0 {
			return ErrInvalidBatchLimit
		}
		p.providerBatchLimit = limit
		return nil
	}
}

// WithPoolSize sets how many cache misses are resolved concurrently.
// Default is DefaultPoolSize, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Processor) error {
		if size < 1 {
			size = 1
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithRetry retries each failed generation call up to maxAttempts times
// with exponential backoff starting at baseDelay. Default is a single
// attempt.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(p *Processor) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		p.maxAttempts = maxAttempts
		p.retryDelay = baseDelay
		return nil
	}
}

// WithDimensions rejects generated embeddings whose length differs from
// dims. Zero disables the check.
func WithDimensions(dims int) Option {
	return func(p *Processor) error {
		p.dimensions = dims
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger.With("component", "batch-processor")
		return nil
	}
}

// WithMetrics records per-batch hit, miss and hit rate figures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) error {
		p.metrics = m
		return nil
	}
}
