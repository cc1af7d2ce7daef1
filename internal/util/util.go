//go:build !windows

package util

// Console window handling only matters for double-click launches on
// Windows; elsewhere the virtpad server is started from a shell or a
// service manager.

func IsRunFromGUI() bool { return false }

func HideConsoleWindow() {}
