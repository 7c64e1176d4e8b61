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


package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidPassage indicates a Passage failed validation.
	ErrInvalidPassage = errors.New("invalid passage")

	// ErrEmptyContent indicates the Text field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrEmptyBook indicates the Book field is empty.
	ErrEmptyBook = errors.New("book cannot be empty")

	// ErrInvalidLocation indicates a non-positive chapter or verse number.
	ErrInvalidLocation = errors.New("chapter and verse must be positive")

	// ErrInvalidStrategy indicates an unknown chunking strategy.
	ErrInvalidStrategy = errors.New("invalid chunking strategy")

	// ErrInvalidStrictness indicates an unknown strictness level.
	ErrInvalidStrictness = errors.New("invalid strictness")
)
