package source

import (
	"context"

	"github.com/expjudge/expjudge/internal/event"
)

// Source supplies the raw interaction events for an analysis run.
// Implementations must return an immutable snapshot: the caller owns
// the returned slice and concurrent calls must not share state.
type Source interface {
	Events(ctx context.Context) ([]event.Event, error)
	Close() error
}
