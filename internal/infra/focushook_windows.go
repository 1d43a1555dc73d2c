//go:build windows

package infra

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	"github.com/eliteGoblin/focusd/bgmute/internal/domain"
)

const (
	eventSystemForeground = 0x0003
	winEventOutOfContext  = 0x0000
	wmQuit                = 0x0012
	pmNoRemove            = 0x0000
)

var (
	user32                 = windows.NewLazySystemDLL("user32.dll")
	procSetWinEventHook    = user32.NewProc("SetWinEventHook")
	procUnhookWinEvent     = user32.NewProc("UnhookWinEvent")
	procGetMessageW        = user32.NewProc("GetMessageW")
	procPeekMessageW       = user32.NewProc("PeekMessageW")
	procPostThreadMessageW = user32.NewProc("PostThreadMessageW")
)

// The hook callback has no user data pointer, so the active hook is global.
var (
	activeHookMu sync.Mutex
	activeHook   *WinEventFocusHook
	hookCallback = windows.NewCallback(winEventProc)
)

type msg struct {
	hwnd    windows.HWND
	message uint32
	wParam  uintptr
	lParam  uintptr
	time    uint32
	pt      struct{ x, y int32 }
}

// WinEventFocusHook implements domain.FocusNotifier with an out-of-context
// EVENT_SYSTEM_FOREGROUND hook serviced by a dedicated message loop thread.
type WinEventFocusHook struct {
	events chan struct{}
	logger *zap.Logger

	mu       sync.Mutex
	threadID uint32
	done     chan struct{}
}

// NewFocusHook creates the platform focus notifier.
func NewFocusHook(logger *zap.Logger) domain.FocusNotifier {
	return &WinEventFocusHook{
		events: make(chan struct{}, 1),
		logger: logger,
	}
}

// Start installs the hook on its own OS thread and returns once it is live.
func (h *WinEventFocusHook) Start(ctx context.Context) error {
	activeHookMu.Lock()
	if activeHook != nil {
		activeHookMu.Unlock()
		return errors.New("focus hook already installed")
	}
	activeHook = h
	activeHookMu.Unlock()

	ready := make(chan error, 1)
	h.done = make(chan struct{})
	go h.loop(ready)

	if err := <-ready; err != nil {
		h.clearActive()
		return err
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = h.Stop()
		case <-h.done:
		}
	}()
	return nil
}

func (h *WinEventFocusHook) loop(ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(h.done)

	hook, _, err := procSetWinEventHook.Call(
		eventSystemForeground, eventSystemForeground,
		0, hookCallback, 0, 0, winEventOutOfContext)
	if hook == 0 {
		ready <- fmt.Errorf("SetWinEventHook: %w", err)
		return
	}
	defer procUnhookWinEvent.Call(hook)

	// Create the thread's message queue so a WM_QUIT posted by Stop is never lost.
	var m msg
	procPeekMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0, pmNoRemove)

	h.mu.Lock()
	h.threadID = windows.GetCurrentThreadId()
	h.mu.Unlock()
	ready <- nil

	for {
		// GetMessageW returns 0 on WM_QUIT and -1 on error.
		r, _, err := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(r) == 0 {
			return
		}
		if int32(r) == -1 {
			h.logger.Warn("focus hook message loop failed", zap.Error(err))
			return
		}
	}
}

// Events fires after each foreground change. Bursts are coalesced.
func (h *WinEventFocusHook) Events() <-chan struct{} {
	return h.events
}

// Stop removes the hook and ends the message loop.
func (h *WinEventFocusHook) Stop() error {
	h.mu.Lock()
	tid := h.threadID
	h.threadID = 0
	h.mu.Unlock()

	if tid != 0 {
		procPostThreadMessageW.Call(uintptr(tid), wmQuit, 0, 0)
		<-h.done
	}
	h.clearActive()
	return nil
}

func (h *WinEventFocusHook) clearActive() {
	activeHookMu.Lock()
	if activeHook == h {
		activeHook = nil
	}
	activeHookMu.Unlock()
}

func (h *WinEventFocusHook) notify() {
	select {
	case h.events <- struct{}{}:
	default:
	}
}

func winEventProc(hook, event, hwnd, idObject, idChild, eventThread, eventTime uintptr) uintptr {
	if event != eventSystemForeground {
		return 0
	}
	activeHookMu.Lock()
	h := activeHook
	activeHookMu.Unlock()
	if h != nil {
		h.notify()
	}
	return 0
}

// Ensure WinEventFocusHook implements domain.FocusNotifier.
var _ domain.FocusNotifier = (*WinEventFocusHook)(nil)
