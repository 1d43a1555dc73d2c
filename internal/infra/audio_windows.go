//go:build windows

package infra

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"github.com/go-ole/go-ole"
	"github.com/moutend/go-wca/pkg/wca"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/bgmute/internal/domain"
)

// HRESULTs that mean the session or its device went away.
const (
	hrSFalse                   = 0x00000001
	hrAudclntDeviceInvalidated = 0x88890004
	hrRPCDisconnected          = 0x80010108
)

// WASAPIEnumerator implements domain.SessionEnumerator over the render
// endpoints' audio session managers. All calls must come from the thread
// that called Open.
type WASAPIEnumerator struct {
	resolver domain.ProcessResolver
	logger   *zap.Logger

	mmde    *wca.IMMDeviceEnumerator
	handles []*wasapiHandle // handed out by the previous ListSessions
	comInit bool
}

// NewSessionEnumerator creates the platform session enumerator.
func NewSessionEnumerator(resolver domain.ProcessResolver, logger *zap.Logger) domain.SessionEnumerator {
	return &WASAPIEnumerator{resolver: resolver, logger: logger}
}

// Open initializes COM on the calling thread and creates the device enumerator.
func (e *WASAPIEnumerator) Open() error {
	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil && !isHRESULT(err, hrSFalse) {
		return fmt.Errorf("%w: CoInitializeEx: %v", domain.ErrAudioUnavailable, err)
	}
	e.comInit = true

	if err := wca.CoCreateInstance(
		wca.CLSID_MMDeviceEnumerator, 0, wca.CLSCTX_ALL,
		wca.IID_IMMDeviceEnumerator, &e.mmde,
	); err != nil {
		e.Close()
		return fmt.Errorf("%w: create device enumerator: %v", domain.ErrAudioUnavailable, err)
	}
	return nil
}

// ListSessions walks every active render endpoint and groups its sessions
// by owning process. The engine's own process and system sessions are skipped.
func (e *WASAPIEnumerator) ListSessions() ([]domain.DiscoveredSession, error) {
	if e.mmde == nil {
		return nil, fmt.Errorf("%w: enumerator not open", domain.ErrAudioUnavailable)
	}

	var dc *wca.IMMDeviceCollection
	if err := e.mmde.EnumAudioEndpoints(wca.ERender, wca.DEVICE_STATE_ACTIVE, &dc); err != nil {
		return nil, fmt.Errorf("enumerate endpoints: %w", err)
	}
	defer dc.Release()

	var deviceCount uint32
	if err := dc.GetCount(&deviceCount); err != nil {
		return nil, fmt.Errorf("count endpoints: %w", err)
	}

	byPID := make(map[uint32]*wasapiHandle)
	var order []uint32
	self := e.resolver.CurrentPID()

	for i := uint32(0); i < deviceCount; i++ {
		var dev *wca.IMMDevice
		if err := dc.Item(i, &dev); err != nil {
			e.logger.Debug("skipping endpoint", zap.Uint32("index", i), zap.Error(err))
			continue
		}
		e.collectDevice(dev, self, byPID, &order)
		dev.Release()
	}

	found := make([]domain.DiscoveredSession, 0, len(order))
	next := make([]*wasapiHandle, 0, len(order))
	for _, pid := range order {
		h := byPID[pid]
		next = append(next, h)

		name, err := e.resolver.ExeName(pid)
		if err != nil {
			e.logger.Debug("session owner exited", zap.Uint32("pid", pid), zap.Error(err))
			continue
		}
		muted, _ := h.IsMuted()
		display := h.displayName
		if display == "" {
			display = strings.TrimSuffix(name, ".exe")
		}
		found = append(found, domain.DiscoveredSession{
			Identity:    domain.ProcessIdentity{PID: pid, ExeName: name},
			DisplayName: display,
			Muted:       muted,
			Handle:      h,
			Instances:   append([]string(nil), h.instances...),
		})
	}

	for _, old := range e.handles {
		old.release()
	}
	e.handles = next

	return found, nil
}

func (e *WASAPIEnumerator) collectDevice(dev *wca.IMMDevice, self uint32, byPID map[uint32]*wasapiHandle, order *[]uint32) {
	var asm2 *wca.IAudioSessionManager2
	if err := dev.Activate(wca.IID_IAudioSessionManager2, wca.CLSCTX_ALL, nil, &asm2); err != nil {
		e.logger.Debug("endpoint has no session manager", zap.Error(err))
		return
	}
	defer asm2.Release()

	var se *wca.IAudioSessionEnumerator
	if err := asm2.GetSessionEnumerator(&se); err != nil {
		e.logger.Debug("failed to get session enumerator", zap.Error(err))
		return
	}
	defer se.Release()

	var devID string
	_ = dev.GetId(&devID)

	var count int
	if err := se.GetCount(&count); err != nil {
		e.logger.Debug("failed to count sessions", zap.Error(err))
		return
	}

	for i := 0; i < count; i++ {
		var ctl *wca.IAudioSessionControl
		if err := se.GetSession(i, &ctl); err != nil {
			continue
		}
		info, ok := sessionVolume(ctl)
		ctl.Release()
		if !ok {
			continue
		}
		if info.pid == 0 || info.pid == self {
			info.volume.Release()
			continue
		}
		if info.instance == "" {
			info.instance = fmt.Sprintf("%s/%d", devID, i)
		}

		h, seen := byPID[info.pid]
		if !seen {
			h = &wasapiHandle{displayName: info.display}
			byPID[info.pid] = h
			*order = append(*order, info.pid)
		}
		h.volumes = append(h.volumes, info.volume)
		h.instances = append(h.instances, info.instance)
	}
}

type sessionInfo struct {
	pid      uint32
	display  string
	instance string
	volume   *wca.ISimpleAudioVolume
}

// sessionVolume resolves a session's owning pid, instance id and volume
// control. The caller owns the returned volume.
func sessionVolume(ctl *wca.IAudioSessionControl) (sessionInfo, bool) {
	var info sessionInfo

	dispatch, err := ctl.QueryInterface(wca.IID_IAudioSessionControl2)
	if err != nil {
		return info, false
	}
	ctl2 := (*wca.IAudioSessionControl2)(unsafe.Pointer(dispatch))
	defer ctl2.Release()

	if err := ctl2.GetProcessId(&info.pid); err != nil {
		// Multi-process sessions (system sounds) have no single owner.
		return info, false
	}
	_ = ctl2.GetSessionInstanceIdentifier(&info.instance)

	_ = ctl2.GetDisplayName(&info.display)
	if strings.HasPrefix(info.display, "@") {
		info.display = "" // resource reference, not a readable name
	}

	dispatch, err = ctl2.QueryInterface(wca.IID_ISimpleAudioVolume)
	if err != nil {
		return info, false
	}
	info.volume = (*wca.ISimpleAudioVolume)(unsafe.Pointer(dispatch))
	return info, true
}

// Close releases all COM objects and uninitializes COM.
func (e *WASAPIEnumerator) Close() error {
	for _, h := range e.handles {
		h.release()
	}
	e.handles = nil
	if e.mmde != nil {
		e.mmde.Release()
		e.mmde = nil
	}
	if e.comInit {
		ole.CoUninitialize()
		e.comInit = false
	}
	return nil
}

// wasapiHandle controls every session one process owns across endpoints.
type wasapiHandle struct {
	mu          sync.Mutex
	volumes     []*wca.ISimpleAudioVolume
	instances   []string // parallel to volumes
	displayName string
	released    bool
}

// SetMute applies muted to all of the process's sessions.
func (h *wasapiHandle) SetMute(muted bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return domain.ErrSessionGone
	}

	var errs []error
	for _, v := range h.volumes {
		if err := v.SetMute(muted, nil); err != nil {
			errs = append(errs, mapSessionErr(err))
		}
	}
	if len(errs) == len(h.volumes) && len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// IsMuted reports true only when every session is muted.
func (h *wasapiHandle) IsMuted() (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return false, domain.ErrSessionGone
	}

	for _, v := range h.volumes {
		var muted bool
		if err := v.GetMute(&muted); err != nil {
			return false, mapSessionErr(err)
		}
		if !muted {
			return false, nil
		}
	}
	return len(h.volumes) > 0, nil
}

func (h *wasapiHandle) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return
	}
	for _, v := range h.volumes {
		v.Release()
	}
	h.volumes = nil
	h.released = true
}

func mapSessionErr(err error) error {
	if isHRESULT(err, hrAudclntDeviceInvalidated) || isHRESULT(err, hrRPCDisconnected) {
		return fmt.Errorf("%w: %v", domain.ErrSessionGone, err)
	}
	return err
}

func isHRESULT(err error, code uintptr) bool {
	var oleErr *ole.OleError
	if errors.As(err, &oleErr) {
		return oleErr.Code() == code
	}
	return false
}

// Ensure WASAPIEnumerator implements domain.SessionEnumerator.
var _ domain.SessionEnumerator = (*WASAPIEnumerator)(nil)
