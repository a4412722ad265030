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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/kbsearch/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff(t *testing.T) {
	tests := []struct {
		name         string
		failures     int
		maxAttempts  int
		wantErr      bool
		wantAttempts int
	}{
		{"first try", 0, 3, false, 1},
		{"eventual success", 2, 5, false, 3},
		{"all attempts fail", 10, 3, true, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			errPersistent := errors.New("persistent error")
			err := RetryWithBackoff(context.Background(), func() error {
				attempts++
				if attempts <= tt.failures {
					return errPersistent
				}
				return nil
			}, tt.maxAttempts, time.Millisecond)

			if tt.wantErr {
				assert.Equal(t, errPersistent, err, "should return the last error")
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantAttempts, attempts)
		})
	}
}

func TestRetryWithBackoff_InvalidMaxAttempts(t *testing.T) {
	for _, n := range []int{0, -1} {
		attempts := 0
		err := RetryWithBackoff(context.Background(), func() error {
			attempts++
			return nil
		}, n, time.Millisecond)
		assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
		assert.Zero(t, attempts)
	}
}

func TestRetryWithBackoff_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := RetryWithBackoff(ctx, func() error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("error")
	}, 10, 5*time.Millisecond)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, attempts)
}

func TestRetryWithBackoff_ExponentialBackoff(t *testing.T) {
	attempts := 0
	var delays []time.Duration
	last := time.Now()

	err := RetryWithBackoff(context.Background(), func() error {
		attempts++
		if attempts > 1 {
			delays = append(delays, time.Since(last))
		}
		last = time.Now()
		if attempts < 4 {
			return errors.New("error")
		}
		return nil
	}, 5, 10*time.Millisecond)

	require.NoError(t, err)
	require.Len(t, delays, 3)
	assert.GreaterOrEqual(t, delays[0], 10*time.Millisecond)
	assert.GreaterOrEqual(t, delays[1], 20*time.Millisecond)
	assert.GreaterOrEqual(t, delays[2], 40*time.Millisecond)
}

func TestRetrying(t *testing.T) {
	calls := 0
	generate := Retrying(func(ctx context.Context, text string) (core.Embedding, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("transient")
		}
		return core.Embedding{1}, nil
	}, 2, time.Millisecond)

	emb, err := generate(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, core.Embedding{1}, emb)
	assert.Equal(t, 2, calls)
}
