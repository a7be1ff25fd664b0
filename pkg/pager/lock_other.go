//go:build !(linux || darwin || freebsd)

package pager

import "os"

func lockFile(*os.File, bool) error { return nil }

func unlockFile(*os.File) error { return nil }
