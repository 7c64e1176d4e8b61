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

import (
	"fmt"
	"strings"
)

// ValidatePassage validates a Passage according to domain rules.
//
// Validation rules:
//   - Book must not be empty
//   - Chapter and Verse must be positive
//   - Text must not be blank
//
// NOT validated:
//   - Testament and Translation (free-form tags, may be empty)
func ValidatePassage(p *Passage) error {
	if p == nil {
		return fmt.Errorf("%w: passage is nil", ErrInvalidPassage)
	}

	if strings.TrimSpace(p.Book) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidPassage, ErrEmptyBook)
	}

	if p.Chapter < 1 || p.Verse < 1 {
		return fmt.Errorf("%w: %w (%s)", ErrInvalidPassage, ErrInvalidLocation, p.Reference())
	}

	if strings.TrimSpace(p.Text) == "" {
		return fmt.Errorf("%w: %w (%s)", ErrInvalidPassage, ErrEmptyContent, p.Reference())
	}

	return nil
}

// FilterValid returns the passages that pass ValidatePassage along with the
// errors for those that did not. Input order is preserved.
func FilterValid(passages []Passage) ([]Passage, []error) {
	valid := make([]Passage, 0, len(passages))
	var errs []error
	for i := range passages {
		if err := ValidatePassage(&passages[i]); err != nil {
			errs = append(errs, err)
			continue
		}
		valid = append(valid, passages[i])
	}
	return valid, errs
}
