//go:build windows

package capture

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/roach88/mestouches/internal/engine"
	"github.com/roach88/mestouches/internal/record"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")

	procSetWindowsHookExW        = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx      = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx           = user32.NewProc("CallNextHookEx")
	procSetWinEventHook          = user32.NewProc("SetWinEventHook")
	procUnhookWinEvent           = user32.NewProc("UnhookWinEvent")
	procGetMessageW              = user32.NewProc("GetMessageW")
	procPostThreadMessageW       = user32.NewProc("PostThreadMessageW")
	procEnumDisplayMonitors      = user32.NewProc("EnumDisplayMonitors")
	procGetMonitorInfoW          = user32.NewProc("GetMonitorInfoW")
	procGetWindowTextW           = user32.NewProc("GetWindowTextW")
	procGetWindowThreadProcessID = user32.NewProc("GetWindowThreadProcessId")
)

const (
	whKeyboardLL = 13
	whMouseLL    = 14
	wmQuit       = 0x0012

	eventObjectCreate     = 0x8000
	eventObjectDestroy    = 0x8001
	eventObjectNameChange = 0x800C

	winEventOutOfContext   = 0x0000
	winEventSkipOwnProcess = 0x0002

	objidWindow         = 0
	monitorInfoPrimary  = 0x1
	maxWindowTextLength = 512
	maxImagePathLength  = 1024
)

type kbdllHookStruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type point struct{ X, Y int32 }

type msllHookStruct struct {
	Pt          point
	MouseData   uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type msg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      point
	Private uint32
}

type monitorInfoEx struct {
	CbSize    uint32
	RcMonitor windows.Rect
	RcWork    windows.Rect
	DwFlags   uint32
	SzDevice  [32]uint16
}

// The hook procedures are process-wide; only one native session may be
// installed at a time.
var (
	activeHooks atomic.Pointer[Hooks]
	activeEmit  atomic.Pointer[func(WindowSignal)]
)

var keyboardProc = windows.NewCallback(func(code, wParam, lParam uintptr) uintptr {
	if int32(code) >= 0 {
		if h := activeHooks.Load(); h != nil {
			kb := (*kbdllHookStruct)(unsafe.Pointer(lParam))
			h.Keyboard.Handle(RawKey{Message: uint32(wParam), VKCode: kb.VkCode})
		}
	}
	r, _, _ := procCallNextHookEx.Call(0, code, wParam, lParam)
	return r
})

var mouseProc = windows.NewCallback(func(code, wParam, lParam uintptr) uintptr {
	if int32(code) >= 0 {
		if h := activeHooks.Load(); h != nil {
			ms := (*msllHookStruct)(unsafe.Pointer(lParam))
			h.Pointer.Handle(RawPointer{
				Message:   uint32(wParam),
				X:         ms.Pt.X,
				Y:         ms.Pt.Y,
				MouseData: ms.MouseData,
			})
		}
	}
	r, _, _ := procCallNextHookEx.Call(0, code, wParam, lParam)
	return r
})

var winEventProc = windows.NewCallback(func(hook, event, hwnd, idObject, idChild, thread, ms uintptr) uintptr {
	if int32(idObject) != objidWindow || int32(idChild) != 0 || hwnd == 0 {
		return 0
	}
	var code int32
	switch uint32(event) {
	case eventObjectCreate:
		code = WindowCreated
	case eventObjectDestroy:
		code = WindowDestroyed
	case eventObjectNameChange:
		code = WindowRenamed
	default:
		return 0
	}
	sig := WindowSignal{Code: code, Window: uint64(hwnd)}
	if emit := activeEmit.Load(); emit != nil {
		(*emit)(sig)
	}
	return 0
})

var errAlreadyInstalled = errors.New("native hooks already installed")

type nativeSource struct{}

// NativeSource returns the low-level keyboard, mouse and window event hook
// source.
func NativeSource() (Source, error) { return nativeSource{}, nil }

func (nativeSource) Run(ctx context.Context, hooks *Hooks) error {
	if !activeHooks.CompareAndSwap(nil, hooks) {
		return errAlreadyInstalled
	}
	defer activeHooks.Store(nil)
	if hooks.Window != nil {
		emit := func(sig WindowSignal) { hooks.Window.Handle(sig) }
		if !activeEmit.CompareAndSwap(nil, &emit) {
			return errAlreadyInstalled
		}
		defer activeEmit.Store(nil)
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	kb, _, err := procSetWindowsHookExW.Call(whKeyboardLL, keyboardProc, 0, 0)
	if kb == 0 {
		return fmt.Errorf("install keyboard hook: %w", err)
	}
	defer procUnhookWindowsHookEx.Call(kb)

	ms, _, err := procSetWindowsHookExW.Call(whMouseLL, mouseProc, 0, 0)
	if ms == 0 {
		return fmt.Errorf("install mouse hook: %w", err)
	}
	defer procUnhookWindowsHookEx.Call(ms)

	if hooks.Window != nil {
		unhook, err := installWinEventHooks()
		if err != nil {
			return err
		}
		defer unhook()
	}

	return messageLoop(ctx)
}

type nativeWindowSource struct{}

// NativeWindowSource returns a window lifecycle source backed by
// out-of-context WinEvent hooks.
func NativeWindowSource() (WindowSource, error) { return nativeWindowSource{}, nil }

func (nativeWindowSource) RunWindows(ctx context.Context, emit func(WindowSignal)) error {
	if !activeEmit.CompareAndSwap(nil, &emit) {
		return errAlreadyInstalled
	}
	defer activeEmit.Store(nil)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	unhook, err := installWinEventHooks()
	if err != nil {
		return err
	}
	defer unhook()

	return messageLoop(ctx)
}

// installWinEventHooks hooks create/destroy and, separately, name changes;
// the events between them are too frequent to take.
func installWinEventHooks() (func(), error) {
	var installed []uintptr
	unhook := func() {
		for _, h := range installed {
			procUnhookWinEvent.Call(h)
		}
	}
	for _, r := range [][2]uintptr{
		{eventObjectCreate, eventObjectDestroy},
		{eventObjectNameChange, eventObjectNameChange},
	} {
		h, _, err := procSetWinEventHook.Call(
			r[0], r[1],
			0, winEventProc, 0, 0,
			winEventOutOfContext|winEventSkipOwnProcess,
		)
		if h == 0 {
			unhook()
			return nil, fmt.Errorf("install window event hook: %w", err)
		}
		installed = append(installed, h)
	}
	return unhook, nil
}

// messageLoop pumps the calling thread's queue until ctx is done. Hook
// procedures run inside GetMessageW.
func messageLoop(ctx context.Context) error {
	tid := windows.GetCurrentThreadId()
	stop := context.AfterFunc(ctx, func() {
		procPostThreadMessageW.Call(uintptr(tid), wmQuit, 0, 0)
	})
	defer stop()

	var m msg
	for {
		r, _, err := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		switch int32(r) {
		case -1:
			return fmt.Errorf("message loop: %w", err)
		case 0:
			return ctx.Err()
		}
	}
}

type nativeResolver struct{}

// NativeResolver resolves window titles and owning executables.
func NativeResolver() Resolver { return nativeResolver{} }

func (nativeResolver) Resolve(window uint64) (string, string) {
	hwnd := uintptr(window)
	var buf [maxWindowTextLength]uint16
	n, _, _ := procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	document := windows.UTF16ToString(buf[:n])

	var pid uint32
	procGetWindowThreadProcessID.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
	return processImage(pid), document
}

func processImage(pid uint32) string {
	if pid == 0 {
		return ""
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return ""
	}
	defer windows.CloseHandle(h)
	var buf [maxImagePathLength]uint16
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return ""
	}
	return windows.UTF16ToString(buf[:size])
}

type nativeScreens struct{}

// NativeScreens enumerates the attached monitors on every call.
func NativeScreens() (engine.ScreenSource, error) { return nativeScreens{}, nil }

var (
	monitorMu   sync.Mutex
	monitorList []uintptr
)

var monitorEnumProc = windows.NewCallback(func(hMonitor, hdc, rect, data uintptr) uintptr {
	monitorList = append(monitorList, hMonitor)
	return 1
})

func (nativeScreens) Screens() record.ScreenSet {
	monitorMu.Lock()
	monitorList = monitorList[:0]
	procEnumDisplayMonitors.Call(0, 0, monitorEnumProc, 0)
	handles := append([]uintptr(nil), monitorList...)
	monitorMu.Unlock()

	type monitor struct {
		rect    windows.Rect
		device  string
		primary bool
	}
	var mons []monitor
	var left, top int32
	for _, h := range handles {
		info := monitorInfoEx{CbSize: uint32(unsafe.Sizeof(monitorInfoEx{}))}
		ok, _, _ := procGetMonitorInfoW.Call(h, uintptr(unsafe.Pointer(&info)))
		if ok == 0 {
			continue
		}
		m := monitor{
			rect:    info.RcMonitor,
			device:  windows.UTF16ToString(info.SzDevice[:]),
			primary: info.DwFlags&monitorInfoPrimary != 0,
		}
		if len(mons) == 0 || m.rect.Left < left {
			left = m.rect.Left
		}
		if len(mons) == 0 || m.rect.Top < top {
			top = m.rect.Top
		}
		mons = append(mons, m)
	}

	set := record.ScreenSet{OriginX: -left, OriginY: -top}
	for _, m := range mons {
		s := record.Screen{
			Hash:   record.Fit(m.device, record.HashWidth),
			X:      uint32(m.rect.Left - left),
			Y:      uint32(m.rect.Top - top),
			Width:  uint32(m.rect.Right - m.rect.Left),
			Height: uint32(m.rect.Bottom - m.rect.Top),
		}
		if m.primary {
			set.Screens = append([]record.Screen{s}, set.Screens...)
		} else {
			set.Screens = append(set.Screens, s)
		}
	}
	return set
}
