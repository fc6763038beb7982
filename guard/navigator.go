package guard

import (
	"context"
	"sync"

	"github.com/goliatone/go-errors"
)

const textCodeNavigationSuperseded = "NAVIGATION_SUPERSEDED"

// ErrNavigationSuperseded is returned for an evaluation that was overtaken
// by a newer navigation. Its verdict must not be applied.
var ErrNavigationSuperseded = errors.New("navigation superseded by a newer request", errors.CategoryOperation).
	WithTextCode(textCodeNavigationSuperseded).
	WithCode(errors.CodeConflict)

// Navigator serializes navigations for one user agent: only the verdict of
// the most recent Navigate call is applied and returned.
type Navigator struct {
	pipeline *Pipeline

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// NewNavigator returns a navigator over pipeline.
func NewNavigator(pipeline *Pipeline) *Navigator {
	return &Navigator{pipeline: pipeline}
}

// Navigate evaluates dest. Starting a new navigation cancels any that is
// still suspended; the older call returns ErrNavigationSuperseded.
func (n *Navigator) Navigate(ctx context.Context, dest Destination) (Verdict, error) {
	evalCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	n.mu.Lock()
	n.seq++
	id := n.seq
	if n.cancel != nil {
		n.cancel()
	}
	n.cancel = cancel
	n.mu.Unlock()

	v, err := n.pipeline.Evaluate(evalCtx, dest)

	n.mu.Lock()
	defer n.mu.Unlock()

	if id != n.seq {
		return Verdict{}, ErrNavigationSuperseded
	}
	n.cancel = nil
	if err != nil {
		return Verdict{}, err
	}

	n.pipeline.Apply(ctx, v)
	return v, nil
}

// Current returns the sequence number of the latest navigation.
func (n *Navigator) Current() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.seq
}
