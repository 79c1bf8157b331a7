package listing

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sftpdesk/sftpdesk/internal/apperr"
	"github.com/sftpdesk/sftpdesk/internal/models"
	"github.com/sftpdesk/sftpdesk/internal/remote"
	"github.com/sftpdesk/sftpdesk/internal/remote/remotetest"
	"github.com/sftpdesk/sftpdesk/internal/session"
)

type fakeInfo struct {
	name string
	size int64
	mode os.FileMode
	mod  time.Time
	sys  any
}

func (f fakeInfo) Name() string       { return f.name }
func (f fakeInfo) Size() int64        { return f.size }
func (f fakeInfo) Mode() os.FileMode  { return f.mode }
func (f fakeInfo) ModTime() time.Time { return f.mod }
func (f fakeInfo) IsDir() bool        { return f.mode.IsDir() }
func (f fakeInfo) Sys() any           { return f.sys }

func connect(t *testing.T, ch remote.Channel) *Lister {
	t.Helper()
	reg := session.NewRegistry(remotetest.FixedDialer(ch), nil, nil)
	_, err := reg.Connect(context.Background(), models.SessionInfo{ID: "s1", Host: "h"})
	require.NoError(t, err)
	return NewLister(reg, nil)
}

func TestListDirectory(t *testing.T) {
	srv := remotetest.NewServer(t)
	srv.WriteFile("/data/a.txt", []byte("hello"))
	srv.Mkdir("/data/nested")
	l := connect(t, srv.Channel())

	entries, err := l.List(context.Background(), "s1", "/data")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byName := map[string]models.FileEntry{}
	for _, e := range entries {
		byName[e.Name] = e
	}
	file := byName["a.txt"]
	assert.Equal(t, "/data/a.txt", file.Path)
	assert.EqualValues(t, 5, file.Size)
	assert.False(t, file.IsDir)
	assert.NotEqual(t, "0", file.Permissions)

	dir := byName["nested"]
	assert.True(t, dir.IsDir)
	assert.Equal(t, "/data/nested", dir.Path)
}

func TestListEmptyPathMeansRoot(t *testing.T) {
	srv := remotetest.NewServer(t)
	srv.WriteFile("/top.bin", []byte{1})
	l := connect(t, srv.Channel())

	entries, err := l.List(context.Background(), "s1", "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "/top.bin", entries[0].Path)
}

func TestListEmptyDirectory(t *testing.T) {
	srv := remotetest.NewServer(t)
	srv.Mkdir("/empty")
	l := connect(t, srv.Channel())

	entries, err := l.List(context.Background(), "s1", "/empty")
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestListSkipsDotEntriesAndKeepsOrder(t *testing.T) {
	srv := remotetest.NewServer(t)
	ch := &remotetest.Faulty{
		Channel: srv.Channel(),
		Entries: []os.FileInfo{
			fakeInfo{name: "zeta", mode: 0o600},
			fakeInfo{name: ".", mode: os.ModeDir | 0o755},
			fakeInfo{name: "C:", mode: os.ModeDir},
			fakeInfo{name: "..", mode: os.ModeDir | 0o755},
			fakeInfo{name: "alpha", size: -1},
		},
	}
	l := connect(t, ch)

	entries, err := l.List(context.Background(), "s1", "/")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "zeta", entries[0].Name)
	assert.Equal(t, "600", entries[0].Permissions)
	assert.Equal(t, "C-drive", entries[1].Name)
	assert.Equal(t, "0", entries[1].Permissions)
	assert.Equal(t, "alpha", entries[2].Name)
	assert.EqualValues(t, 0, entries[2].Size)
	assert.Nil(t, entries[2].Modified)
}

func TestListFailureIsRemoteOpWithPath(t *testing.T) {
	srv := remotetest.NewServer(t)
	probed := false
	ch := &remotetest.Faulty{
		Channel: srv.Channel(),
		ReadDirErr: func(dir string) error {
			if dir == "/" {
				probed = true
				return nil
			}
			return errors.New("no such file")
		},
	}
	l := connect(t, ch)

	_, err := l.List(context.Background(), "s1", "/missing")
	require.Error(t, err)
	assert.Equal(t, apperr.KindRemoteOp, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "/missing")
	assert.True(t, probed)
}

func TestListUnknownSession(t *testing.T) {
	l := NewLister(session.NewRegistry(remotetest.NewServer(t).Dialer(), nil, nil), nil)
	_, err := l.List(context.Background(), "nope", "/")
	assert.True(t, errors.Is(err, apperr.ErrSessionNotFound))
}

func TestPermissionsPrefersSFTPMode(t *testing.T) {
	fi := fakeInfo{name: "x", mode: 0o755, sys: &sftp.FileStat{Mode: 0o104755}}
	assert.Equal(t, "4755", Permissions(fi))
	assert.Equal(t, "755", Permissions(fakeInfo{mode: 0o755}))
	assert.Equal(t, "0", Permissions(fakeInfo{}))
}

func TestModifiedTimeRendered(t *testing.T) {
	mt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	e := toEntry("/", fakeInfo{name: "f", mod: mt})
	require.NotNil(t, e.Modified)
	assert.Equal(t, "2024-03-01T12:00:00Z", *e.Modified)
}
