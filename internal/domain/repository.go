package domain

import (
	"context"
	"errors"
)

var (
	// ErrAudioUnavailable means the platform audio interface could not be
	// initialised. It is the only fatal engine error.
	ErrAudioUnavailable = errors.New("audio session interface unavailable")

	// ErrSessionGone means the session disappeared between enumeration and use.
	ErrSessionGone = errors.New("audio session no longer exists")

	// ErrFocusUnavailable means the foreground process could not be resolved.
	ErrFocusUnavailable = errors.New("foreground process unavailable")

	// ErrUnsupportedPlatform is returned by platform adapters on other OSes.
	ErrUnsupportedPlatform = errors.New("platform not supported")
)

// FocusTracker reports the process that currently owns input focus.
// Implementation: GetForegroundWindow on Windows.
type FocusTracker interface {
	// CurrentFocus returns the focused process, or nil when nothing is
	// foreground (e.g. the desktop). An error means the query failed.
	CurrentFocus() (*ProcessIdentity, error)
}

// FocusNotifier delivers OS focus-change notifications.
type FocusNotifier interface {
	// Start installs the notification source. It must not block.
	Start(ctx context.Context) error

	// Events fires at least once after each focus change. Events may be coalesced.
	Events() <-chan struct{}

	// Stop removes the notification source.
	Stop() error
}

// SessionHandle is an opaque capability to one process's audio sessions.
type SessionHandle interface {
	// SetMute sets the mute flag. Returns ErrSessionGone if the session vanished.
	SetMute(muted bool) error

	// IsMuted reads the current mute flag.
	IsMuted() (bool, error)
}

// SessionEnumerator lists the live audio sessions.
// Implementation: WASAPI via go-wca on Windows.
type SessionEnumerator interface {
	// Open acquires platform resources. Errors wrap ErrAudioUnavailable.
	Open() error

	// ListSessions walks the session registry. Handles from the previous
	// call may be released once this returns.
	ListSessions() ([]DiscoveredSession, error)

	// Close releases all platform resources.
	Close() error
}

// ProcessResolver maps a pid to its executable name.
type ProcessResolver interface {
	ExeName(pid uint32) (string, error)
	CurrentPID() uint32
}

// SettingsSource is the configuration collaborator. The engine only reads it.
type SettingsSource interface {
	Settings() Settings
}

// MuteLedger persists which sessions the engine has muted, so a crashed run
// can be restored later.
type MuteLedger interface {
	// RecordMuted stores the session as muted by the engine.
	RecordMuted(identity ProcessIdentity) error

	// RecordUnmuted clears the session.
	RecordUnmuted(identity ProcessIdentity) error

	// List returns all sessions currently recorded as muted.
	List() ([]MuteRecord, error)

	// Clear removes all records.
	Clear() error

	// Close releases resources (e.g., database connection).
	Close() error
}

// Reconciler runs reconciliation passes.
type Reconciler interface {
	// Reconcile runs one pass to completion.
	Reconcile(ctx context.Context, opts PassOptions) PassResult

	// Snapshot returns the state published by the last completed pass.
	// It never blocks on a running pass.
	Snapshot() *Snapshot
}

// PassOptions adjusts a single reconciliation pass.
type PassOptions struct {
	ForceRefresh  bool // enumerate sessions regardless of the refresh interval
	SkipRefresh   bool // never enumerate in this pass
	ForceDisabled bool // treat muting as disabled (shutdown restoration)
}
