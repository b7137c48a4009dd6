package challenge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/navigator/codebook/internal/apperr"
)

// Ready is a one-shot readiness signal. The collaborator resolves it once it
// is constructed; dependents wait on it with a bounded timeout.
type Ready struct {
	once sync.Once
	ch   chan struct{}
}

// NewReady returns an unresolved signal.
func NewReady() *Ready {
	return &Ready{ch: make(chan struct{})}
}

// Resolved returns a signal that is already resolved.
func Resolved() *Ready {
	r := NewReady()
	r.Resolve()
	return r
}

// Resolve marks the signal ready. Extra calls are no-ops.
func (r *Ready) Resolve() {
	r.once.Do(func() { close(r.ch) })
}

// Done is closed once the signal is resolved.
func (r *Ready) Done() <-chan struct{} { return r.ch }

// IsReady reports whether Resolve has been called.
func (r *Ready) IsReady() bool {
	select {
	case <-r.ch:
		return true
	default:
		return false
	}
}

// Wait blocks until the signal resolves, ctx ends, or timeout elapses
// (timeout <= 0 means no extra bound). It wraps apperr.ErrNotReady on
// expiry.
func (r *Ready) Wait(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case <-r.ch:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", apperr.ErrNotReady, ctx.Err())
	}
}
