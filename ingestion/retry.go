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


package ingestion

import (
	"context"
	"errors"
	"time"

	"github.com/poiesic/versegrounding/core"
)

// retry runs op for chunk up to the pipeline's attempt limit, doubling the
// delay after each failure. Errors that another attempt cannot fix end the
// loop early, as does cancellation of ctx.
func (p *Pipeline) retry(ctx context.Context, chunk *core.Chunk, op func() error) error {
	delay := p.retryDelay
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil {
			if attempt > 1 {
				p.logger.Debug("chunk embedded after retry", "chunk", chunk.Reference, "attempt", attempt)
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if attempt >= p.retryAttempts || permanent(err) {
			return err
		}

		p.logger.Debug("chunk embedding failed, will retry",
			"chunk", chunk.Reference,
			"attempt", attempt,
			"max_attempts", p.retryAttempts,
			"backoff", delay,
			"err", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}

// permanent reports whether err comes from the shape of the response rather
// than the call, so repeating the call cannot help.
func permanent(err error) bool {
	return errors.Is(err, ErrEmptyVector) || errors.Is(err, ErrDimensionMismatch)
}
