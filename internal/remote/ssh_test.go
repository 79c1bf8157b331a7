package remote

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/sftpdesk/sftpdesk/internal/apperr"
	"github.com/sftpdesk/sftpdesk/internal/models"
)

const testUser = "alice"

// startSSHServer runs a password-authenticated SSH server on loopback that
// serves the SFTP subsystem from an in-memory filesystem.
func startSSHServer(t *testing.T, password string) models.ConnectParams {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == testUser && string(pass) == password {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
	}
	cfg.AddHostKey(signer)

	handlers := sftp.InMemHandler()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSSH(conn, cfg, handlers)
		}
	}()

	return paramsFor(t, ln.Addr().String(), password)
}

func paramsFor(t *testing.T, addr, password string) models.ConnectParams {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return models.ConnectParams{Host: host, Port: uint16(port), Username: testUser, Password: password}
}

func serveSSH(conn net.Conn, cfg *ssh.ServerConfig, handlers sftp.Handlers) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		conn.Close()
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			return
		}
		go func(in <-chan *ssh.Request) {
			for req := range in {
				ok := req.Type == "subsystem" && len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp"
				_ = req.Reply(ok, nil)
				if ok {
					go func() {
						server := sftp.NewRequestServer(ch, handlers)
						_ = server.Serve()
						server.Close()
					}()
				}
			}
		}(requests)
	}
}

func newTestDialer(t *testing.T) *SSHDialer {
	t.Helper()
	d, err := NewSSHDialer(SSHOptions{DialTimeout: 5 * time.Second}, nil)
	require.NoError(t, err)
	return d
}

func TestSSHDialerOpensWorkingChannel(t *testing.T) {
	params := startSSHServer(t, "s3cret")
	d := newTestDialer(t)

	ch, err := d.Dial(context.Background(), params)
	require.NoError(t, err)
	defer ch.Close()

	require.NoError(t, ch.Mkdir("/reports"))
	w, err := ch.Create("/reports/q1.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte("a,b\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	entries, err := ch.ReadDir("/reports")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "q1.csv", entries[0].Name())
	assert.EqualValues(t, 4, entries[0].Size())

	// Closing twice is harmless
	require.NoError(t, ch.Close())
	assert.NoError(t, ch.Close())
}

func TestSSHDialerRejectsWrongPassword(t *testing.T) {
	params := startSSHServer(t, "s3cret")
	params.Password = "guess"

	_, err := newTestDialer(t).Dial(context.Background(), params)
	require.Error(t, err)
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
}

func TestSSHDialerTransportFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close() // nothing listens there any more

	_, err = newTestDialer(t).Dial(context.Background(), paramsFor(t, addr, "x"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindTransport, apperr.KindOf(err))
}

func TestSSHDialerHandshakeFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	// Speaks something that is not SSH, then hangs up.
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_, _ = conn.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
			conn.Close()
		}
	}()

	_, err = newTestDialer(t).Dial(context.Background(), paramsFor(t, ln.Addr().String(), "x"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindHandshake, apperr.KindOf(err))
}

func TestNewSSHDialerKnownHostsMissing(t *testing.T) {
	_, err := NewSSHDialer(SSHOptions{KnownHostsFile: filepath.Join(t.TempDir(), "absent")}, nil)
	assert.Error(t, err)
}

func TestConnectParamsAddrDefaultsPort(t *testing.T) {
	assert.Equal(t, "example.com:22", models.ConnectParams{Host: "example.com"}.Addr())
	assert.Equal(t, "[::1]:2222", models.ConnectParams{Host: "::1", Port: 2222}.Addr())
}
