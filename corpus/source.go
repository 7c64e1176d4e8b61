// Package corpus loads passages for the engine.
//
// The engine only depends on the Source interface. JSONFile reads the
// verse files produced by the extraction scripts so the command-line tool
// can index a translation without any other infrastructure.
package corpus

import (
	"context"
	"slices"

	"github.com/poiesic/versegrounding/core"
)

// Source provides the complete passage set for a session.
// Implementations must return passages in a stable order.
type Source interface {
	LoadAllPassages(ctx context.Context) ([]core.Passage, error)
}

// Static is an in-memory Source.
type Static []core.Passage

var _ Source = Static(nil)

// LoadAllPassages returns a copy of the passages.
func (s Static) LoadAllPassages(ctx context.Context) ([]core.Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return slices.Clone([]core.Passage(s)), nil
}
