// Package usecase contains application business logic.
package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/bgmute/internal/domain"
	"github.com/eliteGoblin/focusd/bgmute/internal/policy"
)

// DefaultRefreshInterval is how often sessions are re-enumerated when focus
// does not change.
const DefaultRefreshInterval = 2 * time.Second

// ReconcilerConfig holds reconciler settings.
type ReconcilerConfig struct {
	RefreshInterval time.Duration
	Now             func() time.Time // clock override for tests
}

// PassObserver receives the result of every pass (e.g. metrics).
type PassObserver interface {
	ObservePass(result domain.PassResult)
}

// ReconcilerImpl implements domain.Reconciler.
// It is owned by a single goroutine; only Snapshot may be called concurrently.
type ReconcilerImpl struct {
	config     ReconcilerConfig
	focus      *focusCache
	enumerator domain.SessionEnumerator
	settings   domain.SettingsSource
	ledger     domain.MuteLedger
	observer   PassObserver
	logger     *zap.Logger

	sessions    map[string]*domain.AudioSession
	lastFocus   *domain.ProcessIdentity
	lastRefresh time.Time
	everListed  bool
	passes      uint64

	snapshot atomic.Pointer[domain.Snapshot]
}

// NewReconciler creates a reconciler. Ledger and observer are optional and
// can be set with WithLedger and WithObserver.
func NewReconciler(
	config ReconcilerConfig,
	ft domain.FocusTracker,
	se domain.SessionEnumerator,
	ss domain.SettingsSource,
	logger *zap.Logger,
) *ReconcilerImpl {
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = DefaultRefreshInterval
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	r := &ReconcilerImpl{
		config:     config,
		focus:      newFocusCache(ft),
		enumerator: se,
		settings:   ss,
		logger:     logger,
		sessions:   make(map[string]*domain.AudioSession),
	}
	r.snapshot.Store(&domain.Snapshot{})
	return r
}

// WithLedger records engine-applied mutes in l.
func (r *ReconcilerImpl) WithLedger(l domain.MuteLedger) *ReconcilerImpl {
	r.ledger = l
	return r
}

// WithObserver reports every pass result to o.
func (r *ReconcilerImpl) WithObserver(o PassObserver) *ReconcilerImpl {
	r.observer = o
	return r
}

// Reconcile runs one pass to completion. It never aborts midway: ctx is not
// consulted, so the shutdown pass can run after cancellation.
func (r *ReconcilerImpl) Reconcile(_ context.Context, opts domain.PassOptions) domain.PassResult {
	start := r.config.Now()
	r.passes++

	result := domain.PassResult{
		Pass:       r.passes,
		ExecutedAt: start,
	}

	settings := r.settings.Settings()
	enabled := settings.MutingEnabled && !opts.ForceDisabled
	excluded := policy.NewExclusionSet(settings.Excluded...)

	focus, err := r.focus.current()
	if err != nil {
		result.FocusErr = err
		r.logger.Debug("focus query failed, keeping previous focus", zap.Error(err))
	}
	result.Focus = focus
	result.FocusChanged = r.passes > 1 && !sameFocus(r.lastFocus, focus)
	r.lastFocus = focus

	if result.FocusChanged {
		r.logger.Debug("focus changed", zap.Stringer("focus", focusLabel{focus}))
	}

	if !opts.SkipRefresh && r.refreshDue(start, opts.ForceRefresh, result.FocusChanged) {
		r.refresh(start, &result)
	}

	for _, key := range r.sortedKeys() {
		s := r.sessions[key]
		desired := policy.DesiredMute(s.Identity, policy.IsFocused(s.Identity, focus), enabled, excluded)

		if applied, known := s.State.AppliedMute(); known && applied == desired {
			continue
		}

		result.MuteCalls++
		if err := s.Handle.SetMute(desired); err != nil {
			s.State = domain.StateUnknown
			result.Failures = append(result.Failures, fmt.Errorf("set mute %s: %w", s.Identity, err))
			r.logger.Warn("failed to set mute",
				zap.String("exe", s.Identity.ExeName),
				zap.Uint32("pid", s.Identity.PID),
				zap.Bool("mute", desired),
				zap.Error(err))
			continue
		}

		s.State = domain.StateFor(desired)
		s.ObservedMuted = desired
		r.record(s.Identity, desired)

		r.logger.Info(muteVerb(desired),
			zap.String("exe", s.Identity.ExeName),
			zap.Uint32("pid", s.Identity.PID))
	}

	result.Tracked = len(r.sessions)
	for _, s := range r.sessions {
		if s.State == domain.StateMutedByEngine {
			result.Muted++
		}
	}
	result.Clean = len(result.Failures) == 0
	result.Duration = r.config.Now().Sub(start)

	r.publish(start, enabled, focus, excluded)

	if r.observer != nil {
		r.observer.ObservePass(result)
	}

	return result
}

// Snapshot returns the state published by the last completed pass.
func (r *ReconcilerImpl) Snapshot() *domain.Snapshot {
	return r.snapshot.Load()
}

func (r *ReconcilerImpl) refreshDue(now time.Time, forced, focusChanged bool) bool {
	if forced || focusChanged || !r.everListed {
		return true
	}
	return now.Sub(r.lastRefresh) >= r.config.RefreshInterval
}

// refresh re-enumerates sessions and re-keys the tracked set. Sessions whose
// key survives keep their state unless the process opened another OS
// session; new keys start Unknown; missing keys drop. On enumeration failure
// the tracked set is left as is.
func (r *ReconcilerImpl) refresh(now time.Time, result *domain.PassResult) {
	found, err := r.enumerator.ListSessions()
	if err != nil {
		result.ListErr = err
		r.logger.Warn("session enumeration failed", zap.Error(err))
		return
	}

	result.Refreshed = true
	r.lastRefresh = now
	r.everListed = true

	next := make(map[string]*domain.AudioSession, len(found))
	for _, d := range found {
		if !d.Identity.Valid() || d.Handle == nil {
			continue
		}
		key := d.Identity.Key()
		if _, dup := next[key]; dup {
			continue
		}

		if s, ok := r.sessions[key]; ok {
			if s.State != domain.StateUnknown && gainedInstance(s.Instances, d.Instances) {
				s.State = domain.StateUnknown
				r.logger.Debug("session gained a stream, reapplying",
					zap.String("exe", d.Identity.ExeName),
					zap.Uint32("pid", d.Identity.PID),
					zap.Int("streams", len(d.Instances)))
			}
			s.Handle = d.Handle
			s.DisplayName = d.DisplayName
			s.ObservedMuted = d.Muted
			s.Instances = d.Instances
			s.LastSeen = now
			next[key] = s
			continue
		}

		next[key] = &domain.AudioSession{
			Identity:      d.Identity,
			DisplayName:   d.DisplayName,
			Handle:        d.Handle,
			State:         domain.StateUnknown,
			ObservedMuted: d.Muted,
			Instances:     d.Instances,
			FirstSeen:     now,
			LastSeen:      now,
		}
		result.Added++
		r.logger.Debug("session discovered",
			zap.String("exe", d.Identity.ExeName),
			zap.Uint32("pid", d.Identity.PID),
			zap.Bool("muted", d.Muted))
	}

	for key, s := range r.sessions {
		if _, ok := next[key]; ok {
			continue
		}
		result.Removed++
		if s.State == domain.StateMutedByEngine {
			r.record(s.Identity, false)
		}
		r.logger.Debug("session gone",
			zap.String("exe", s.Identity.ExeName),
			zap.Uint32("pid", s.Identity.PID))
	}

	r.sessions = next
}

// record keeps the ledger in step with engine-applied state. Ledger failures
// never affect reconciliation.
func (r *ReconcilerImpl) record(id domain.ProcessIdentity, muted bool) {
	if r.ledger == nil {
		return
	}
	var err error
	if muted {
		err = r.ledger.RecordMuted(id)
	} else {
		err = r.ledger.RecordUnmuted(id)
	}
	if err != nil {
		r.logger.Warn("failed to update mute ledger",
			zap.String("exe", id.ExeName),
			zap.Error(err))
	}
}

func (r *ReconcilerImpl) publish(at time.Time, enabled bool, focus *domain.ProcessIdentity, excluded policy.ExclusionSet) {
	snap := &domain.Snapshot{
		Pass:     r.passes,
		TakenAt:  at,
		Enabled:  enabled,
		Sessions: make([]domain.SessionView, 0, len(r.sessions)),
	}
	if focus != nil {
		f := *focus
		snap.Focus = &f
	}

	for _, key := range r.sortedKeys() {
		s := r.sessions[key]
		focused := policy.IsFocused(s.Identity, focus)
		snap.Sessions = append(snap.Sessions, domain.SessionView{
			Identity:      s.Identity,
			DisplayName:   s.DisplayName,
			State:         s.State,
			ObservedMuted: s.ObservedMuted,
			Excluded:      excluded.Contains(s.Identity.ExeName),
			Focused:       focused,
			DesiredMute:   policy.DesiredMute(s.Identity, focused, enabled, excluded),
		})
	}

	r.snapshot.Store(snap)
}

// gainedInstance reports whether cur names an OS session missing from prev.
// Sessions that merely ended do not count.
func gainedInstance(prev, cur []string) bool {
	seen := make(map[string]struct{}, len(prev))
	for _, id := range prev {
		seen[id] = struct{}{}
	}
	for _, id := range cur {
		if _, ok := seen[id]; !ok {
			return true
		}
	}
	return false
}

func (r *ReconcilerImpl) sortedKeys() []string {
	keys := make([]string, 0, len(r.sessions))
	for k := range r.sessions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func muteVerb(muted bool) string {
	if muted {
		return "muted session"
	}
	return "unmuted session"
}

type focusLabel struct{ id *domain.ProcessIdentity }

func (f focusLabel) String() string {
	if f.id == nil {
		return "none"
	}
	return f.id.String()
}

// Ensure ReconcilerImpl implements domain.Reconciler.
var _ domain.Reconciler = (*ReconcilerImpl)(nil)
