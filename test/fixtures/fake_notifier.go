package fixtures

import (
	"context"
	"sync"

	"github.com/eliteGoblin/focusd/bgmute/internal/domain"
)

// FakeNotifier is a domain.FocusNotifier driven by Fire.
type FakeNotifier struct {
	mu       sync.Mutex
	events   chan struct{}
	startErr error
	started  bool
	stopped  bool
}

// NewFakeNotifier creates a notifier that has not fired yet.
func NewFakeNotifier() *FakeNotifier {
	return &FakeNotifier{events: make(chan struct{}, 1)}
}

// FailStart makes Start return err.
func (n *FakeNotifier) FailStart(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.startErr = err
}

// Fire signals a focus change. Pending signals are coalesced.
func (n *FakeNotifier) Fire() {
	select {
	case n.events <- struct{}{}:
	default:
	}
}

func (n *FakeNotifier) Start(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.startErr != nil {
		return n.startErr
	}
	n.started = true
	return nil
}

func (n *FakeNotifier) Events() <-chan struct{} { return n.events }

func (n *FakeNotifier) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopped = true
	return nil
}

// Started reports whether Start succeeded.
func (n *FakeNotifier) Started() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.started
}

// Stopped reports whether Stop was called.
func (n *FakeNotifier) Stopped() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stopped
}

var _ domain.FocusNotifier = (*FakeNotifier)(nil)
