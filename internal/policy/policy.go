// Package policy decides whether an audio session should be muted.
// Everything here is pure: no I/O, no clocks, no shared state.
package policy

import "github.com/eliteGoblin/focusd/bgmute/internal/domain"

// DesiredMute returns the mute state a session should have.
//
// Precedence: a global disable beats everything, an exclusion beats focus,
// and only a non-excluded, unfocused session is muted.
func DesiredMute(identity domain.ProcessIdentity, isFocused, enabled bool, excluded ExclusionSet) bool {
	if !enabled {
		return false
	}
	if excluded.Contains(identity.ExeName) {
		return false
	}
	if isFocused {
		return false
	}
	return true
}

// IsFocused reports whether identity is the focus process. A nil focus
// means nothing is foreground.
func IsFocused(identity domain.ProcessIdentity, focus *domain.ProcessIdentity) bool {
	if focus == nil {
		return false
	}
	return identity.Equal(*focus)
}
