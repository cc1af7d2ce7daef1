//go:build windows

package util

import (
	"log/slog"
	"os"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	kernel32             = windows.NewLazySystemDLL("kernel32.dll")
	user32               = windows.NewLazySystemDLL("user32.dll")
	procGetConsoleWindow = kernel32.NewProc("GetConsoleWindow")
	procShowWindow       = user32.NewProc("ShowWindow")
	procFreeConsole      = kernel32.NewProc("FreeConsole")
)

// Shells whose children count as CLI launches even though a console
// window exists.
var shellProcs = map[string]bool{
	"cmd.exe":             true,
	"powershell.exe":      true,
	"pwsh.exe":            true,
	"wt.exe":              true,
	"conhost.exe":         true,
	"windowsterminal.exe": true,
}

// IsRunFromGUI reports whether virtpad was started by double-click
// rather than from a shell. Without a console window the launch is GUI;
// with one, the parent process decides.
func IsRunFromGUI() bool {
	hwnd, _, _ := procGetConsoleWindow.Call()
	if hwnd == 0 {
		return true
	}

	parent := parentProcessName()
	slog.Debug("launch detection", "parent", parent)
	if shellProcs[strings.ToLower(parent)] {
		return false
	}
	return strings.EqualFold(parent, "explorer.exe")
}

// HideConsoleWindow detaches the console allocated for a GUI launch so
// the virtpad server keeps running without a visible window.
func HideConsoleWindow() {
	hwnd, _, _ := procGetConsoleWindow.Call()
	if hwnd == 0 {
		return
	}
	_, _, _ = procShowWindow.Call(hwnd, windows.SW_HIDE)
	_, _, _ = procFreeConsole.Call()
}

func parentProcessName() string {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return ""
	}
	defer windows.CloseHandle(snapshot)

	self, ok := findProcess(snapshot, uint32(os.Getpid()))
	if !ok || self.ParentProcessID == 0 {
		return ""
	}
	parent, ok := findProcess(snapshot, self.ParentProcessID)
	if !ok {
		return ""
	}
	return windows.UTF16ToString(parent.ExeFile[:])
}

// findProcess scans the snapshot from the start for a PID.
func findProcess(snapshot windows.Handle, pid uint32) (windows.ProcessEntry32, bool) {
	var pe windows.ProcessEntry32
	pe.Size = uint32(unsafe.Sizeof(pe))
	for err := windows.Process32First(snapshot, &pe); err == nil; err = windows.Process32Next(snapshot, &pe) {
		if pe.ProcessID == pid {
			return pe, true
		}
	}
	return windows.ProcessEntry32{}, false
}
