// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"strconv"
	"strings"
	"time"
)

// ProcessIdentity names the process that owns a window or an audio session.
// PID is reused by the OS across process lifetimes, so it is only meaningful
// together with ExeName and only for the current pass.
type ProcessIdentity struct {
	PID     uint32
	ExeName string // e.g. "spotify.exe"; compared case-insensitively
}

// Key returns the per-pass tracking key: lowercased exe name plus pid.
func (p ProcessIdentity) Key() string {
	return strings.ToLower(p.ExeName) + "|" + strconv.FormatUint(uint64(p.PID), 10)
}

// SameApp reports whether both identities refer to the same executable.
func (p ProcessIdentity) SameApp(other ProcessIdentity) bool {
	return strings.EqualFold(p.ExeName, other.ExeName)
}

// Equal reports whether both identities refer to the same process instance.
func (p ProcessIdentity) Equal(other ProcessIdentity) bool {
	return p.PID == other.PID && p.SameApp(other)
}

// Valid reports whether the identity carries an executable name.
func (p ProcessIdentity) Valid() bool {
	return p.ExeName != ""
}

func (p ProcessIdentity) String() string {
	return p.ExeName + " (" + strconv.FormatUint(uint64(p.PID), 10) + ")"
}

// SessionState is the engine's view of a tracked session's mute state.
type SessionState int

const (
	// StateUnknown means the engine has not (successfully) applied a state yet.
	StateUnknown SessionState = iota
	StateMutedByEngine
	StateUnmutedByEngine
)

func (s SessionState) String() string {
	switch s {
	case StateMutedByEngine:
		return "muted"
	case StateUnmutedByEngine:
		return "unmuted"
	default:
		return "unknown"
	}
}

// AppliedMute returns the mute flag last applied by the engine.
// ok is false while the state is Unknown.
func (s SessionState) AppliedMute() (muted bool, ok bool) {
	switch s {
	case StateMutedByEngine:
		return true, true
	case StateUnmutedByEngine:
		return false, true
	default:
		return false, false
	}
}

// StateFor maps an applied mute flag to the matching engine state.
func StateFor(muted bool) SessionState {
	if muted {
		return StateMutedByEngine
	}
	return StateUnmutedByEngine
}

// DiscoveredSession is one entry of a session enumeration.
type DiscoveredSession struct {
	Identity    ProcessIdentity
	DisplayName string
	Muted       bool // externally observed at enumeration time
	Handle      SessionHandle
	// Instances identifies the OS sessions behind Handle (one per stream or
	// endpoint). A new entry means audio the engine has not muted yet.
	Instances []string
}

// AudioSession is a session tracked by the reconciler between enumerations.
type AudioSession struct {
	Identity      ProcessIdentity
	DisplayName   string
	Handle        SessionHandle
	State         SessionState
	ObservedMuted bool
	Instances     []string
	FirstSeen     time.Time
	LastSeen      time.Time
}

// Settings is one consistent read of the configuration collaborator.
type Settings struct {
	MutingEnabled bool
	Excluded      []string // executable names, any case
}

// SessionView is the read-only projection of a tracked session.
type SessionView struct {
	Identity      ProcessIdentity
	DisplayName   string
	State         SessionState
	ObservedMuted bool
	Excluded      bool
	Focused       bool
	DesiredMute   bool
}

// Snapshot is the engine state published after each pass.
type Snapshot struct {
	Pass     uint64
	TakenAt  time.Time
	Enabled  bool
	Focus    *ProcessIdentity
	Sessions []SessionView
}

// MutedCount returns how many sessions are currently muted by the engine.
func (s *Snapshot) MutedCount() int {
	n := 0
	for _, v := range s.Sessions {
		if v.State == StateMutedByEngine {
			n++
		}
	}
	return n
}

// PassResult captures what happened during a single reconciliation pass.
type PassResult struct {
	Pass         uint64
	Focus        *ProcessIdentity
	FocusChanged bool
	Refreshed    bool
	Tracked      int
	Added        int
	Removed      int
	MuteCalls    int
	Muted        int
	Failures     []error // per-session SetMute failures
	FocusErr     error   // focus query failed; previous focus was used
	ListErr      error   // enumeration failed; refresh step skipped
	Clean        bool
	ExecutedAt   time.Time
	Duration     time.Duration
}

// MuteRecord is a ledger row for a session the engine muted.
type MuteRecord struct {
	ExeName string
	PID     uint32
	MutedAt time.Time
}
