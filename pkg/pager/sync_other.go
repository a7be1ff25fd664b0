//go:build !linux

package pager

import "os"

func syncFile(f *os.File) error {
	return f.Sync()
}
