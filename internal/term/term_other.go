//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !windows

package term

import "errors"

var errUnsupported = errors.New("term: not supported on this platform")

// IsTerminal always reports false on unsupported platforms.
func IsTerminal(uintptr) bool { return false }

// Width is not supported on this platform.
func Width(uintptr) (int, error) { return 0, errUnsupported }

func enableVirtualTerminal(uintptr) error { return errUnsupported }
