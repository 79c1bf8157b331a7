//go:build !windows

package progress

import "os"

// enableANSI is a no-op on Unix; terminals support ANSI natively.
func enableANSI(f *os.File) {}
