// Package term answers the few terminal questions the CLI needs: whether a
// file descriptor is an interactive terminal, how wide it is, and (on
// Windows) switching the console to ANSI escape processing.
package term

import "os"

// DefaultWidth is returned when the width of the output cannot be queried.
const DefaultWidth = 80

// Interactive reports whether f is a terminal that understands ANSI escapes.
// On Windows it enables virtual terminal processing as a side effect.
func Interactive(f *os.File) bool {
	fd := f.Fd()
	if !IsTerminal(fd) {
		return false
	}
	return enableVirtualTerminal(fd) == nil
}

// WidthOr returns the column count of the terminal behind fd, or fallback.
func WidthOr(fd uintptr, fallback int) int {
	w, err := Width(fd)
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}
