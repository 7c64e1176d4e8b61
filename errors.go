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


package versegrounding

import "errors"

var (
	// ErrNotReady is returned by queries issued before initialization
	// completes. Callers should treat it as "no context available".
	ErrNotReady = errors.New("engine is not ready")

	// ErrSourceRequired indicates New was called without a passage source.
	ErrSourceRequired = errors.New("passage source is required")

	// ErrCorpusUnavailable wraps a failure to load passages from the source.
	ErrCorpusUnavailable = errors.New("corpus unavailable")

	// ErrClosed indicates the engine has been closed.
	ErrClosed = errors.New("engine is closed")
)
