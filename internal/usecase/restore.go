package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/bgmute/internal/domain"
)

// RestoreResult captures what a ledger restoration did.
type RestoreResult struct {
	Recorded []domain.MuteRecord
	Unmuted  []domain.ProcessIdentity
	Errors   []error
}

// Restorer unmutes sessions that a previous run muted but never restored,
// e.g. after a crash skipped the shutdown pass.
type Restorer struct {
	enumerator domain.SessionEnumerator
	ledger     domain.MuteLedger
	logger     *zap.Logger
}

// NewRestorer creates a restorer. The enumerator must already be open.
func NewRestorer(se domain.SessionEnumerator, l domain.MuteLedger, logger *zap.Logger) *Restorer {
	return &Restorer{enumerator: se, ledger: l, logger: logger}
}

// Restore unmutes every currently muted session whose executable is in the
// ledger. The ledger is cleared only when every unmute succeeded.
func (r *Restorer) Restore(_ context.Context) (*RestoreResult, error) {
	records, err := r.ledger.List()
	if err != nil {
		return nil, fmt.Errorf("read mute ledger: %w", err)
	}

	result := &RestoreResult{Recorded: records}
	if len(records) == 0 {
		return result, nil
	}

	recorded := make(map[string]struct{}, len(records))
	for _, rec := range records {
		recorded[strings.ToLower(rec.ExeName)] = struct{}{}
	}

	sessions, err := r.enumerator.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	for _, s := range sessions {
		if _, ok := recorded[strings.ToLower(s.Identity.ExeName)]; !ok || !s.Muted {
			continue
		}
		if err := s.Handle.SetMute(false); err != nil {
			r.logger.Warn("failed to restore session",
				zap.String("exe", s.Identity.ExeName),
				zap.Uint32("pid", s.Identity.PID),
				zap.Error(err))
			result.Errors = append(result.Errors, err)
			continue
		}
		r.logger.Info("restored session",
			zap.String("exe", s.Identity.ExeName),
			zap.Uint32("pid", s.Identity.PID))
		result.Unmuted = append(result.Unmuted, s.Identity)
	}

	if len(result.Errors) == 0 {
		if err := r.ledger.Clear(); err != nil {
			return result, fmt.Errorf("clear mute ledger: %w", err)
		}
	}

	return result, nil
}
