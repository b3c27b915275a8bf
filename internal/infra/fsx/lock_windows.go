//go:build windows
// +build windows

package fsx

import "os"

// Windows has no flock syscall; on Windows both functions are no-ops, so
// ProjectLock does not serialize mutations there.
func flockExclusiveNonBlocking(f *os.File) error { return nil }

func flockUnlock(f *os.File) error { return nil }
