package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/sftpdesk/sftpdesk/internal/apperr"
	"github.com/sftpdesk/sftpdesk/internal/constants"
	"github.com/sftpdesk/sftpdesk/internal/logging"
	"github.com/sftpdesk/sftpdesk/internal/models"
)

// SSHOptions configures SSHDialer.
type SSHOptions struct {
	// DialTimeout bounds the TCP connect plus the SSH handshake.
	DialTimeout time.Duration
	// KnownHostsFile enables host key verification. Empty accepts any key.
	KnownHostsFile string
	// MaxPacket is the SFTP packet size requested from the server.
	MaxPacket int
	// ConcurrentReads lets the legacy bulk download pipeline reads.
	ConcurrentReads bool
	// KeepAlive sends keepalive@openssh.com requests at this interval when > 0.
	KeepAlive time.Duration
}

// SSHDialer opens SFTP channels over password-authenticated SSH.
type SSHDialer struct {
	opts     SSHOptions
	hostKeys ssh.HostKeyCallback
	logger   *logging.Logger
}

// NewSSHDialer builds a dialer. It fails only when a known_hosts file is
// configured but cannot be parsed.
func NewSSHDialer(opts SSHOptions, logger *logging.Logger) (*SSHDialer, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = constants.DefaultDialTimeout
	}
	if opts.MaxPacket <= 0 {
		opts.MaxPacket = constants.DefaultMaxPacket
	}
	if logger == nil {
		logger = logging.Nop()
	}

	d := &SSHDialer{opts: opts, logger: logger.Component("ssh")}
	if opts.KnownHostsFile != "" {
		cb, err := knownhosts.New(opts.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts %s: %w", opts.KnownHostsFile, err)
		}
		d.hostKeys = cb
	} else {
		d.hostKeys = ssh.InsecureIgnoreHostKey()
	}
	return d, nil
}

// Dial connects, authenticates with the password and opens the SFTP subsystem.
func (d *SSHDialer) Dial(ctx context.Context, params models.ConnectParams) (Channel, error) {
	addr := params.Addr()

	dialCtx, cancel := context.WithTimeout(ctx, d.opts.DialTimeout)
	defer cancel()

	var nd net.Dialer
	conn, err := nd.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, apperr.New(apperr.KindTransport, "connect", addr, err)
	}

	// The handshake has no context of its own; bound it with a deadline.
	deadline, _ := dialCtx.Deadline()
	_ = conn.SetDeadline(deadline)

	cfg := &ssh.ClientConfig{
		User:            params.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(params.Password)},
		HostKeyCallback: d.hostKeys,
		Timeout:         d.opts.DialTimeout,
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, classifyHandshake(addr, err)
	}
	_ = conn.SetDeadline(time.Time{})
	client := ssh.NewClient(c, chans, reqs)

	sftpOpts := []sftp.ClientOption{
		sftp.MaxPacketUnchecked(d.opts.MaxPacket),
		sftp.UseConcurrentReads(d.opts.ConcurrentReads),
	}
	sc, err := sftp.NewClient(client, sftpOpts...)
	if err != nil {
		client.Close()
		return nil, apperr.New(apperr.KindHandshake, "open sftp subsystem", addr, err)
	}

	ch := &sshChannel{ssh: client, sftp: sc, done: make(chan struct{})}
	if d.opts.KeepAlive > 0 {
		go ch.keepAlive(d.opts.KeepAlive, d.logger)
	}

	d.logger.Debug().Str("addr", addr).Str("user", params.Username).Msg("SFTP channel open")
	return ch, nil
}

// classifyHandshake separates rejected credentials from protocol failures.
// x/crypto/ssh reports both from NewClientConn, only the message differs.
func classifyHandshake(addr string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "unable to authenticate") || strings.Contains(msg, "no supported methods remain") {
		return apperr.New(apperr.KindAuth, "authenticate", addr, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return apperr.New(apperr.KindTransport, "handshake", addr, err)
	}
	return apperr.New(apperr.KindHandshake, "handshake", addr, err)
}

// NewSFTPChannel wraps an already established SFTP client. Closing the
// channel closes the client only.
func NewSFTPChannel(client *sftp.Client) Channel {
	return &sshChannel{sftp: client, done: make(chan struct{})}
}

type sshChannel struct {
	ssh       *ssh.Client // nil when wrapping a bare SFTP client
	sftp      *sftp.Client
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (c *sshChannel) ReadDir(dir string) ([]os.FileInfo, error) { return c.sftp.ReadDir(dir) }

func (c *sshChannel) Open(name string) (io.ReadCloser, error) {
	f, err := c.sftp.Open(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (c *sshChannel) Create(name string) (io.WriteCloser, error) {
	f, err := c.sftp.Create(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (c *sshChannel) Stat(name string) (os.FileInfo, error) { return c.sftp.Stat(name) }

func (c *sshChannel) Mkdir(name string) error { return c.sftp.Mkdir(name) }

func (c *sshChannel) Chmod(name string, mode os.FileMode) error { return c.sftp.Chmod(name, mode) }

func (c *sshChannel) Remove(name string) error { return c.sftp.Remove(name) }

func (c *sshChannel) RemoveDirectory(name string) error { return c.sftp.RemoveDirectory(name) }

func (c *sshChannel) RealPath(name string) (string, error) { return c.sftp.RealPath(name) }

func (c *sshChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.sftp.Close()
		if c.ssh != nil {
			if err := c.ssh.Close(); c.closeErr == nil {
				c.closeErr = err
			}
		}
	})
	return c.closeErr
}

func (c *sshChannel) keepAlive(interval time.Duration, logger *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if _, _, err := c.ssh.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				logger.Debug().Err(err).Msg("keepalive failed")
				return
			}
		}
	}
}
