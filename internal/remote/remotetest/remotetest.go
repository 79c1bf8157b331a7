// Package remotetest provides in-memory SFTP servers for tests. Channels
// returned here run the real pkg/sftp client against pkg/sftp's in-memory
// request server over io.Pipe, so no network or SSH is involved.
package remotetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/sftp"

	"github.com/sftpdesk/sftpdesk/internal/apperr"
	"github.com/sftpdesk/sftpdesk/internal/models"
	"github.com/sftpdesk/sftpdesk/internal/remote"
)

// UnreachableHost makes Dialer fail with a transport error.
const UnreachableHost = "unreachable.invalid"

// Server is one in-memory filesystem that any number of channels can
// connect to.
type Server struct {
	t        testing.TB
	handlers sftp.Handlers

	// Password, when set, is required by Dialer.
	Password string

	dials atomic.Int32
}

// NewServer creates an empty in-memory filesystem rooted at "/".
func NewServer(t testing.TB) *Server {
	t.Helper()
	return &Server{t: t, handlers: sftp.InMemHandler()}
}

type pipeConn struct {
	io.Reader
	io.WriteCloser
}

// Channel opens a new connection to the server.
func (s *Server) Channel() remote.Channel {
	s.t.Helper()

	clientRead, serverWrite := io.Pipe()
	serverRead, clientWrite := io.Pipe()

	server := sftp.NewRequestServer(pipeConn{serverRead, serverWrite}, s.handlers)
	go func() {
		_ = server.Serve()
	}()

	client, err := sftp.NewClientPipe(clientRead, clientWrite)
	if err != nil {
		server.Close()
		s.t.Fatalf("remotetest: open client: %v", err)
	}

	ch := &pipeChannel{Channel: remote.NewSFTPChannel(client), server: server}
	s.t.Cleanup(func() { ch.Close() })
	return ch
}

// pipeChannel shuts the request server down before the client. The client's
// Close waits for its receive loop, which only ends once the server side of
// the pipe is closed.
type pipeChannel struct {
	remote.Channel
	server *sftp.RequestServer

	once sync.Once
	err  error
}

func (c *pipeChannel) Close() error {
	c.once.Do(func() {
		c.server.Close()
		c.err = c.Channel.Close()
	})
	return c.err
}

// Dialer returns a Dialer connecting to this server. It fails with a
// transport error for UnreachableHost and an auth error on a password
// mismatch.
func (s *Server) Dialer() remote.Dialer {
	return remote.DialerFunc(func(ctx context.Context, p models.ConnectParams) (remote.Channel, error) {
		if err := ctx.Err(); err != nil {
			return nil, apperr.New(apperr.KindTransport, "connect", p.Addr(), err)
		}
		if p.Host == UnreachableHost {
			return nil, apperr.New(apperr.KindTransport, "connect", p.Addr(), fmt.Errorf("dial tcp: lookup %s: no such host", p.Host))
		}
		if s.Password != "" && p.Password != s.Password {
			return nil, apperr.New(apperr.KindAuth, "authenticate", p.Addr(), fmt.Errorf("ssh: unable to authenticate"))
		}
		s.dials.Add(1)
		return s.Channel(), nil
	})
}

// Dials reports how many channels Dialer has handed out.
func (s *Server) Dials() int {
	return int(s.dials.Load())
}

// WriteFile stores data at name, creating parent directories.
func (s *Server) WriteFile(name string, data []byte) {
	s.t.Helper()
	ch := s.Channel()
	defer ch.Close()

	s.mkdirAll(ch, parentDir(name))
	w, err := ch.Create(name)
	if err != nil {
		s.t.Fatalf("remotetest: create %s: %v", name, err)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		s.t.Fatalf("remotetest: write %s: %v", name, err)
	}
	if err := w.Close(); err != nil {
		s.t.Fatalf("remotetest: close %s: %v", name, err)
	}
}

// Mkdir creates name and any missing parents.
func (s *Server) Mkdir(name string) {
	s.t.Helper()
	ch := s.Channel()
	defer ch.Close()
	s.mkdirAll(ch, name)
}

// ReadFile returns the content stored at name.
func (s *Server) ReadFile(name string) []byte {
	s.t.Helper()
	ch := s.Channel()
	defer ch.Close()

	r, err := ch.Open(name)
	if err != nil {
		s.t.Fatalf("remotetest: open %s: %v", name, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		s.t.Fatalf("remotetest: read %s: %v", name, err)
	}
	return data
}

// Exists reports whether name is present.
func (s *Server) Exists(name string) bool {
	s.t.Helper()
	ch := s.Channel()
	defer ch.Close()
	_, err := ch.Stat(name)
	return err == nil
}

func (s *Server) mkdirAll(ch remote.Channel, dir string) {
	if dir == "" || dir == "/" {
		return
	}
	if fi, err := ch.Stat(dir); err == nil && fi.IsDir() {
		return
	}
	s.mkdirAll(ch, parentDir(dir))
	if err := ch.Mkdir(dir); err != nil {
		s.t.Fatalf("remotetest: mkdir %s: %v", dir, err)
	}
}

func parentDir(name string) string {
	for i := len(name) - 1; i > 0; i-- {
		if name[i] == '/' {
			return name[:i]
		}
	}
	return "/"
}

// Faulty wraps a Channel and lets tests inject failures and observe reads.
// Zero-valued fields pass calls through.
type Faulty struct {
	remote.Channel

	ReadDirErr  func(dir string) error
	OpenErr     error
	CreateErr   error
	StatErr     error
	MkdirErr    error
	ChmodErr    error
	RealPathErr error

	// Entries replaces ReadDir results for every directory.
	Entries []os.FileInfo

	// AfterRead is called after every Read on a file opened through Open
	// with the cumulative number of bytes read from that file.
	AfterRead func(total int64)

	// ReadPanic makes Read panic, simulating a crashed worker.
	ReadPanic bool

	mu     sync.Mutex
	closed bool
}

func (f *Faulty) ReadDir(dir string) ([]os.FileInfo, error) {
	if f.ReadDirErr != nil {
		if err := f.ReadDirErr(dir); err != nil {
			return nil, err
		}
	}
	if f.Entries != nil {
		return f.Entries, nil
	}
	return f.Channel.ReadDir(dir)
}

func (f *Faulty) Open(name string) (io.ReadCloser, error) {
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	r, err := f.Channel.Open(name)
	if err != nil {
		return nil, err
	}
	if f.AfterRead == nil && !f.ReadPanic {
		return r, nil
	}
	return &observedReader{ReadCloser: r, after: f.AfterRead, panics: f.ReadPanic}, nil
}

func (f *Faulty) Create(name string) (io.WriteCloser, error) {
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	return f.Channel.Create(name)
}

func (f *Faulty) Stat(name string) (os.FileInfo, error) {
	if f.StatErr != nil {
		return nil, f.StatErr
	}
	return f.Channel.Stat(name)
}

func (f *Faulty) Mkdir(name string) error {
	if f.MkdirErr != nil {
		return f.MkdirErr
	}
	return f.Channel.Mkdir(name)
}

func (f *Faulty) Chmod(name string, mode os.FileMode) error {
	if f.ChmodErr != nil {
		return f.ChmodErr
	}
	return f.Channel.Chmod(name, mode)
}

func (f *Faulty) RealPath(name string) (string, error) {
	if f.RealPathErr != nil {
		return "", f.RealPathErr
	}
	return f.Channel.RealPath(name)
}

func (f *Faulty) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return f.Channel.Close()
}

// Closed reports whether Close was called.
func (f *Faulty) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type observedReader struct {
	io.ReadCloser
	total  int64
	after  func(int64)
	panics bool
}

func (r *observedReader) Read(p []byte) (int, error) {
	if r.panics {
		panic("remotetest: injected read panic")
	}
	n, err := r.ReadCloser.Read(p)
	r.total += int64(n)
	if r.after != nil && n > 0 {
		r.after(r.total)
	}
	return n, err
}

// FixedDialer always hands out the given channel.
func FixedDialer(ch remote.Channel) remote.Dialer {
	return remote.DialerFunc(func(context.Context, models.ConnectParams) (remote.Channel, error) {
		return ch, nil
	})
}
