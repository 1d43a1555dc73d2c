//go:build windows

package infra

import (
	"fmt"

	"golang.org/x/sys/windows"

	"github.com/eliteGoblin/focusd/bgmute/internal/domain"
)

// WindowsFocusTracker implements domain.FocusTracker with GetForegroundWindow.
type WindowsFocusTracker struct {
	resolver domain.ProcessResolver
}

// NewFocusTracker creates the platform focus tracker.
func NewFocusTracker(resolver domain.ProcessResolver) domain.FocusTracker {
	return &WindowsFocusTracker{resolver: resolver}
}

// CurrentFocus returns the process owning the foreground window, or nil when
// no window is foreground.
func (t *WindowsFocusTracker) CurrentFocus() (*domain.ProcessIdentity, error) {
	hwnd := windows.GetForegroundWindow()
	if hwnd == 0 {
		return nil, nil
	}

	var pid uint32
	if _, err := windows.GetWindowThreadProcessId(hwnd, &pid); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFocusUnavailable, err)
	}
	if pid == 0 {
		return nil, nil
	}

	name, err := t.resolver.ExeName(pid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFocusUnavailable, err)
	}

	return &domain.ProcessIdentity{PID: pid, ExeName: name}, nil
}

// Ensure WindowsFocusTracker implements domain.FocusTracker.
var _ domain.FocusTracker = (*WindowsFocusTracker)(nil)
