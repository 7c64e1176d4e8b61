package corpus

import "errors"

var (
	// ErrUnknownFormat is returned when a file is neither a passage array
	// nor a translation document.
	ErrUnknownFormat = errors.New("unrecognized corpus format")

	// ErrNoPassages is returned when a file holds no valid passages.
	ErrNoPassages = errors.New("corpus contains no valid passages")
)
