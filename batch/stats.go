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

import "log/slog"

// Stats summarizes one batch. Hits and Misses count input positions, so a
// text repeated three times and missing from the cache adds three misses but
// at most one generation call.
type Stats struct {
	Total           int
	Hits            int
	Misses          int
	GenerationCalls int
}

// HitRate returns Hits/Total, or 0 for an empty batch.
func (s Stats) HitRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Total)
}

// Add returns the sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		Total:           s.Total + o.Total,
		Hits:            s.Hits + o.Hits,
		Misses:          s.Misses + o.Misses,
		GenerationCalls: s.GenerationCalls + o.GenerationCalls,
	}
}

// LogValue implements slog.LogValuer.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("total", s.Total),
		slog.Int("hits", s.Hits),
		slog.Int("misses", s.Misses),
		slog.Float64("hit_rate", s.HitRate()),
		slog.Int("generation_calls", s.GenerationCalls),
	)
}
