//go:build !debug

package batch

func debugLog(string, ...any) {}
