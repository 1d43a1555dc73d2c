// Package daemon runs the muting engine loop.
package daemon

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/bgmute/internal/domain"
	"github.com/eliteGoblin/focusd/bgmute/internal/usecase"
)

// SchedulerConfig holds scheduler timing.
type SchedulerConfig struct {
	PollInterval    time.Duration // fast tick: focus check and apply
	RefreshInterval time.Duration // slow tick: session re-enumeration
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		PollInterval:    300 * time.Millisecond,
		RefreshInterval: usecase.DefaultRefreshInterval,
	}
}

// Scheduler drives reconciliation passes. It owns the reconciler and the
// session enumerator: both are only touched from the goroutine in Run.
type Scheduler struct {
	config     SchedulerConfig
	reconciler domain.Reconciler
	enumerator domain.SessionEnumerator
	notifier   domain.FocusNotifier // optional
	ledger     domain.MuteLedger    // optional
	wake       chan struct{}
	logger     *zap.Logger
}

// NewScheduler creates a scheduler. notifier may be nil, in which case focus
// changes are picked up by the fast tick only.
func NewScheduler(
	config SchedulerConfig,
	reconciler domain.Reconciler,
	enumerator domain.SessionEnumerator,
	notifier domain.FocusNotifier,
	logger *zap.Logger,
) *Scheduler {
	defaults := DefaultSchedulerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = defaults.RefreshInterval
	}
	return &Scheduler{
		config:     config,
		reconciler: reconciler,
		enumerator: enumerator,
		notifier:   notifier,
		wake:       make(chan struct{}, 1),
		logger:     logger,
	}
}

// WithLedger makes Run clear l after a shutdown pass that restored every
// session. After a partial restore the rows are kept for `bgmute restore`.
func (s *Scheduler) WithLedger(l domain.MuteLedger) *Scheduler {
	s.ledger = l
	return s
}

// Wake requests an immediate pass with a forced refresh. Calls made while a
// wake is already pending are coalesced. Safe from any goroutine.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run opens the audio subsystem and runs passes until ctx is canceled.
// On cancellation it runs one restoration pass that unmutes everything the
// engine muted, then releases the audio subsystem and returns nil.
// The only error returned is a failure to open the audio subsystem.
func (s *Scheduler) Run(ctx context.Context) error {
	// COM objects are bound to the thread that created them.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := s.enumerator.Open(); err != nil {
		s.logger.Error("failed to open audio sessions", zap.Error(err))
		return fmt.Errorf("open audio sessions: %w", err)
	}
	defer func() {
		if err := s.enumerator.Close(); err != nil {
			s.logger.Warn("failed to close audio sessions", zap.Error(err))
		}
	}()

	var focusEvents <-chan struct{}
	if s.notifier != nil {
		if err := s.notifier.Start(ctx); err != nil {
			s.logger.Warn("focus hook unavailable, polling only", zap.Error(err))
		} else {
			focusEvents = s.notifier.Events()
			defer func() {
				if err := s.notifier.Stop(); err != nil {
					s.logger.Warn("failed to stop focus hook", zap.Error(err))
				}
			}()
		}
	}

	s.logger.Info("muting engine started",
		zap.Duration("poll_interval", s.config.PollInterval),
		zap.Duration("refresh_interval", s.config.RefreshInterval))

	// Run a pass immediately on startup
	s.runPass(domain.PassOptions{ForceRefresh: true})

	pollTicker := time.NewTicker(s.config.PollInterval)
	refreshTicker := time.NewTicker(s.config.RefreshInterval)
	defer func() {
		pollTicker.Stop()
		refreshTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("muting engine stopping")
			s.finishLedger(s.restore())
			return nil

		case <-focusEvents:
			s.runPass(domain.PassOptions{ForceRefresh: true})

		case <-s.wake:
			s.runPass(domain.PassOptions{ForceRefresh: true})

		case <-refreshTicker.C:
			s.runPass(domain.PassOptions{ForceRefresh: true})

		case <-pollTicker.C:
			s.runPass(domain.PassOptions{})
		}
	}
}

func (s *Scheduler) runPass(opts domain.PassOptions) {
	res := s.reconciler.Reconcile(context.Background(), opts)

	s.logger.Debug("pass completed",
		zap.Uint64("pass", res.Pass),
		zap.Bool("refreshed", res.Refreshed),
		zap.Int("tracked", res.Tracked),
		zap.Int("muted", res.Muted),
		zap.Int("mute_calls", res.MuteCalls),
		zap.Int("failures", len(res.Failures)),
		zap.Duration("duration", res.Duration))
}

// restore unmutes every session the engine muted, without re-enumerating.
func (s *Scheduler) restore() domain.PassResult {
	res := s.reconciler.Reconcile(context.Background(), domain.PassOptions{
		ForceDisabled: true,
		SkipRefresh:   true,
	})

	fields := []zap.Field{
		zap.Int("sessions", res.Tracked),
		zap.Int("unmute_calls", res.MuteCalls),
		zap.Int("failures", len(res.Failures)),
	}
	if res.Clean {
		s.logger.Info("restored sessions on shutdown", fields...)
		return res
	}
	s.logger.Warn("some sessions could not be restored on shutdown", fields...)
	return res
}

// finishLedger drops rows left by processes that exited while muted, but
// only when the shutdown pass restored everything it tried to.
func (s *Scheduler) finishLedger(res domain.PassResult) {
	if s.ledger == nil {
		return
	}
	if !res.Clean {
		s.logger.Warn("keeping mute ledger for bgmute restore",
			zap.Int("failures", len(res.Failures)))
		return
	}
	if err := s.ledger.Clear(); err != nil {
		s.logger.Warn("failed to clear mute ledger", zap.Error(err))
	}
}
