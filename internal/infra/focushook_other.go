//go:build !windows

package infra

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/bgmute/internal/domain"
)

// otherFocusHook never fires; the scheduler falls back to polling.
type otherFocusHook struct {
	events chan struct{}
}

// NewFocusHook creates the platform focus notifier.
func NewFocusHook(_ *zap.Logger) domain.FocusNotifier {
	return &otherFocusHook{events: make(chan struct{})}
}

// Start is a no-op on unsupported platforms.
func (h *otherFocusHook) Start(context.Context) error { return nil }

func (h *otherFocusHook) Events() <-chan struct{} { return h.events }

// Stop is a no-op on unsupported platforms.
func (h *otherFocusHook) Stop() error { return nil }
