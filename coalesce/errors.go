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

package coalesce

import "errors"

var (
	// ErrGenerateFuncRequired is returned when Do is called without a
	// generation function.
	ErrGenerateFuncRequired = errors.New("generate function required")

	// ErrGenerationPanicked is returned to every waiter when the generation
	// function panics.
	ErrGenerationPanicked = errors.New("generation panicked")
)
