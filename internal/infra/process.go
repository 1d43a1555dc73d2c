// Package infra implements infrastructure concerns (process, audio, focus, ledger).
package infra

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/focusd/bgmute/internal/domain"
)

// ProcessResolverImpl implements domain.ProcessResolver using gopsutil.
type ProcessResolverImpl struct {
	self uint32
}

// NewProcessResolver creates a new process resolver.
func NewProcessResolver() domain.ProcessResolver {
	return &ProcessResolverImpl{self: uint32(os.Getpid())}
}

// ExeName returns the executable name (e.g. "spotify.exe") of pid.
func (pr *ProcessResolverImpl) ExeName(pid uint32) (string, error) {
	if pid == 0 {
		return "", fmt.Errorf("pid 0 has no executable")
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", fmt.Errorf("lookup pid %d: %w", pid, err)
	}
	name, err := p.Name()
	if err != nil {
		return "", fmt.Errorf("name of pid %d: %w", pid, err) // process may have exited
	}
	return name, nil
}

// CurrentPID returns the engine's own PID.
func (pr *ProcessResolverImpl) CurrentPID() uint32 {
	return pr.self
}

// Ensure ProcessResolverImpl implements domain.ProcessResolver.
var _ domain.ProcessResolver = (*ProcessResolverImpl)(nil)
