package daemon

import (
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/bgmute/internal/config"
	"github.com/eliteGoblin/focusd/bgmute/internal/domain"
)

// Service is the control surface for a tray or other front end.
// All methods are safe to call from any goroutine.
type Service struct {
	store      *config.Store
	reconciler domain.Reconciler
	scheduler  *Scheduler
	logger     *zap.Logger
}

// NewService wires the config store to the scheduler so that every settings
// change, from this service or from a reloaded file, triggers a pass.
func NewService(store *config.Store, reconciler domain.Reconciler, scheduler *Scheduler, logger *zap.Logger) *Service {
	store.OnChange(scheduler.Wake)
	return &Service{
		store:      store,
		reconciler: reconciler,
		scheduler:  scheduler,
		logger:     logger,
	}
}

// Snapshot returns the state published by the last completed pass.
func (s *Service) Snapshot() *domain.Snapshot {
	return s.reconciler.Snapshot()
}

// SetEnabled turns background muting on or off.
func (s *Service) SetEnabled(enabled bool) error {
	if err := s.store.SetMutingEnabled(enabled); err != nil {
		return err
	}
	s.logger.Info("muting toggled", zap.Bool("enabled", enabled))
	return nil
}

// Toggle inverts the muting flag and returns the new value.
func (s *Service) Toggle() (bool, error) {
	enabled, err := s.store.Toggle()
	if err != nil {
		return false, err
	}
	s.logger.Info("muting toggled", zap.Bool("enabled", enabled))
	return enabled, nil
}

// SetExcluded replaces the exclusion list.
func (s *Service) SetExcluded(names []string) error {
	return s.store.SetExcluded(names)
}
