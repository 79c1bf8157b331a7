// Package remote defines the remote file-transfer capability the engine is
// built on, plus its SSH/SFTP implementation. Sessions, listings and transfers
// only ever see the Channel interface.
package remote

import (
	"context"
	"io"
	"os"

	"github.com/sftpdesk/sftpdesk/internal/models"
)

// Channel is an authenticated, open connection to one remote host exposing
// file operations. Implementations must be safe for concurrent use.
type Channel interface {
	ReadDir(dir string) ([]os.FileInfo, error)
	Open(name string) (io.ReadCloser, error)
	// Create opens name for writing, creating or truncating it.
	Create(name string) (io.WriteCloser, error)
	Stat(name string) (os.FileInfo, error)
	Mkdir(name string) error
	Chmod(name string, mode os.FileMode) error
	Remove(name string) error
	RemoveDirectory(name string) error
	RealPath(name string) (string, error)
	Close() error
}

// Dialer opens channels. Errors are *apperr.Error tagged transport,
// handshake or auth.
type Dialer interface {
	Dial(ctx context.Context, params models.ConnectParams) (Channel, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, params models.ConnectParams) (Channel, error)

func (f DialerFunc) Dial(ctx context.Context, params models.ConnectParams) (Channel, error) {
	return f(ctx, params)
}
