package bridge

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
)

// Listen creates the bridge's Unix domain socket at path, replacing a stale
// socket file and restricting it to the current user.
func Listen(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}

	// Remove any stale socket file
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to create bridge socket: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(path, 0600); err != nil {
			listener.Close()
			return nil, fmt.Errorf("failed to set socket permissions: %w", err)
		}
	}
	return listener, nil
}

// Cleanup removes the socket file. Called on shutdown.
func Cleanup(path string) {
	os.Remove(path)
}
