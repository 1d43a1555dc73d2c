//go:build !windows

package infra

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/bgmute/internal/domain"
)

// otherEnumerator reports that audio sessions are unavailable.
type otherEnumerator struct{}

// NewSessionEnumerator creates the platform session enumerator.
func NewSessionEnumerator(_ domain.ProcessResolver, _ *zap.Logger) domain.SessionEnumerator {
	return otherEnumerator{}
}

func (otherEnumerator) Open() error {
	return fmt.Errorf("%w: %w", domain.ErrAudioUnavailable, domain.ErrUnsupportedPlatform)
}

func (otherEnumerator) ListSessions() ([]domain.DiscoveredSession, error) {
	return nil, domain.ErrUnsupportedPlatform
}

func (otherEnumerator) Close() error { return nil }
