// Package fixtures provides a scripted audio platform for tests.
package fixtures

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/bgmute/internal/domain"
)

// ErrInjected is returned by fakes when a failure is scripted.
var ErrInjected = errors.New("injected failure")

// FakeHandle is a scripted session handle.
type FakeHandle struct {
	mu       sync.Mutex
	muted    bool
	gone     bool
	failNext  int
	calls     []bool
	instances []string
}

// SetMute records the call and applies it unless a failure is scripted.
func (h *FakeHandle) SetMute(muted bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, muted)
	if h.gone {
		return domain.ErrSessionGone
	}
	if h.failNext > 0 {
		h.failNext--
		return ErrInjected
	}
	h.muted = muted
	return nil
}

// IsMuted returns the current flag.
func (h *FakeHandle) IsMuted() (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.gone {
		return false, domain.ErrSessionGone
	}
	return h.muted, nil
}

// Muted returns the flag without error handling.
func (h *FakeHandle) Muted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.muted
}

// SetExternally changes the flag the way a user or another app would.
func (h *FakeHandle) SetExternally(muted bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.muted = muted
}

// FailNext makes the next n SetMute calls fail.
func (h *FakeHandle) FailNext(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failNext = n
}

// Calls returns the SetMute arguments seen so far.
func (h *FakeHandle) Calls() []bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]bool, len(h.calls))
	copy(out, h.calls)
	return out
}

// Instances returns the identifiers of the streams behind the handle.
func (h *FakeHandle) Instances() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.instances...)
}

// ResetCalls forgets recorded calls.
func (h *FakeHandle) ResetCalls() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = nil
}

type fakeSession struct {
	identity domain.ProcessIdentity
	handle   *FakeHandle
}

// FakePlatform implements domain.FocusTracker, domain.SessionEnumerator and
// domain.SettingsSource over in-memory state.
type FakePlatform struct {
	mu sync.Mutex

	focus    *domain.ProcessIdentity
	focusErr error

	sessions map[string]*fakeSession
	listErr  error
	openErr  error
	opened   bool
	closed   bool
	lists    int

	settings domain.Settings
}

// NewFakePlatform creates a platform with muting enabled and no sessions.
func NewFakePlatform() *FakePlatform {
	return &FakePlatform{
		sessions: make(map[string]*fakeSession),
		settings: domain.Settings{MutingEnabled: true},
	}
}

// AddSession registers an audio-producing process and returns its handle.
func (p *FakePlatform) AddSession(pid uint32, exe string) *FakeHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := domain.ProcessIdentity{PID: pid, ExeName: exe}
	h := &FakeHandle{instances: []string{id.Key() + "#1"}}
	p.sessions[id.Key()] = &fakeSession{identity: id, handle: h}
	return h
}

// AddStream opens another stream in an existing session, the way a process
// starts playing on a second device. The new stream starts unmuted, so the
// process as a whole no longer reads as muted.
func (p *FakePlatform) AddStream(pid uint32, exe string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := domain.ProcessIdentity{PID: pid, ExeName: exe}.Key()
	s, ok := p.sessions[key]
	if !ok {
		return
	}
	s.handle.mu.Lock()
	s.handle.instances = append(s.handle.instances, fmt.Sprintf("%s#%d", key, len(s.handle.instances)+1))
	s.handle.muted = false
	s.handle.mu.Unlock()
}

// RemoveSession makes the process's session disappear. Its handle reports
// ErrSessionGone from then on.
func (p *FakePlatform) RemoveSession(pid uint32, exe string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := domain.ProcessIdentity{PID: pid, ExeName: exe}.Key()
	if s, ok := p.sessions[key]; ok {
		s.handle.mu.Lock()
		s.handle.gone = true
		s.handle.mu.Unlock()
		delete(p.sessions, key)
	}
}

// Focus sets the foreground process. exe "" means nothing is foreground.
func (p *FakePlatform) Focus(pid uint32, exe string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if exe == "" {
		p.focus = nil
		return
	}
	p.focus = &domain.ProcessIdentity{PID: pid, ExeName: exe}
}

// FailFocus makes focus queries fail until cleared with nil.
func (p *FakePlatform) FailFocus(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.focusErr = err
}

// FailList makes enumerations fail until cleared with nil.
func (p *FakePlatform) FailList(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listErr = err
}

// FailOpen makes Open fail.
func (p *FakePlatform) FailOpen(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openErr = err
}

// SetEnabled changes the global muting flag.
func (p *FakePlatform) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings.MutingEnabled = enabled
}

// SetExcluded replaces the exclusion list.
func (p *FakePlatform) SetExcluded(names ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings.Excluded = append([]string(nil), names...)
}

// ListCalls returns how many enumerations ran.
func (p *FakePlatform) ListCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lists
}

// Closed reports whether Close was called.
func (p *FakePlatform) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// CurrentFocus implements domain.FocusTracker.
func (p *FakePlatform) CurrentFocus() (*domain.ProcessIdentity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.focusErr != nil {
		return nil, p.focusErr
	}
	if p.focus == nil {
		return nil, nil
	}
	f := *p.focus
	return &f, nil
}

// Open implements domain.SessionEnumerator.
func (p *FakePlatform) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.openErr != nil {
		return p.openErr
	}
	p.opened = true
	return nil
}

// ListSessions implements domain.SessionEnumerator.
func (p *FakePlatform) ListSessions() ([]domain.DiscoveredSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lists++
	if p.listErr != nil {
		return nil, p.listErr
	}

	keys := make([]string, 0, len(p.sessions))
	for k := range p.sessions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]domain.DiscoveredSession, 0, len(keys))
	for _, k := range keys {
		s := p.sessions[k]
		out = append(out, domain.DiscoveredSession{
			Identity:    s.identity,
			DisplayName: strings.TrimSuffix(s.identity.ExeName, ".exe"),
			Muted:       s.handle.Muted(),
			Handle:      s.handle,
			Instances:   s.handle.Instances(),
		})
	}
	return out, nil
}

// Close implements domain.SessionEnumerator.
func (p *FakePlatform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Settings implements domain.SettingsSource.
func (p *FakePlatform) Settings() domain.Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.settings
	s.Excluded = append([]string(nil), p.settings.Excluded...)
	return s
}

// MemoryLedger is an in-memory domain.MuteLedger.
type MemoryLedger struct {
	mu      sync.Mutex
	records map[string]domain.MuteRecord
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[string]domain.MuteRecord)}
}

func (l *MemoryLedger) RecordMuted(id domain.ProcessIdentity) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[id.Key()] = domain.MuteRecord{ExeName: id.ExeName, PID: id.PID, MutedAt: time.Now()}
	return nil
}

func (l *MemoryLedger) RecordUnmuted(id domain.ProcessIdentity) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, id.Key())
	return nil
}

func (l *MemoryLedger) List() ([]domain.MuteRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.MuteRecord, 0, len(l.records))
	for _, r := range l.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExeName < out[j].ExeName })
	return out, nil
}

func (l *MemoryLedger) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = make(map[string]domain.MuteRecord)
	return nil
}

func (l *MemoryLedger) Close() error { return nil }

var (
	_ domain.FocusTracker      = (*FakePlatform)(nil)
	_ domain.SessionEnumerator = (*FakePlatform)(nil)
	_ domain.SettingsSource    = (*FakePlatform)(nil)
	_ domain.SessionHandle     = (*FakeHandle)(nil)
	_ domain.MuteLedger        = (*MemoryLedger)(nil)
)
