//go:build !windows

package infra

import (
	"github.com/eliteGoblin/focusd/bgmute/internal/domain"
)

// otherFocusTracker reports that focus tracking is unavailable.
type otherFocusTracker struct{}

// NewFocusTracker creates the platform focus tracker.
func NewFocusTracker(_ domain.ProcessResolver) domain.FocusTracker {
	return otherFocusTracker{}
}

func (otherFocusTracker) CurrentFocus() (*domain.ProcessIdentity, error) {
	return nil, domain.ErrUnsupportedPlatform
}
