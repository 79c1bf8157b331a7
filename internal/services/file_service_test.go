package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sftpdesk/sftpdesk/internal/apperr"
	"github.com/sftpdesk/sftpdesk/internal/models"
	"github.com/sftpdesk/sftpdesk/internal/remote"
	"github.com/sftpdesk/sftpdesk/internal/remote/remotetest"
	"github.com/sftpdesk/sftpdesk/internal/session"
)

func newFileService(t *testing.T, wrap func(remote.Channel) remote.Channel) (*remotetest.Server, *FileService) {
	t.Helper()
	srv := remotetest.NewServer(t)
	ch := srv.Channel()
	if wrap != nil {
		ch = wrap(ch)
	}
	reg := session.NewRegistry(remotetest.FixedDialer(ch), nil, nil)
	_, err := reg.Connect(context.Background(), models.SessionInfo{ID: "s1", Host: "h"})
	require.NoError(t, err)
	return srv, NewFileService(reg, nil)
}

func TestCreateDirectory(t *testing.T) {
	srv, fs := newFileService(t, nil)

	msg, err := fs.CreateDirectory(context.Background(), "s1", "/projects")
	require.NoError(t, err)
	assert.NotEmpty(t, msg)
	assert.True(t, srv.Exists("/projects"))

	entries, err := fs.ListDirectory(context.Background(), "s1", "/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsDir)
}

func TestCreateDirectoryChmodRejectedStillSucceeds(t *testing.T) {
	srv, fs := newFileService(t, func(ch remote.Channel) remote.Channel {
		return &remotetest.Faulty{Channel: ch, ChmodErr: errors.New("operation unsupported")}
	})

	_, err := fs.CreateDirectory(context.Background(), "s1", "/d")
	require.NoError(t, err)
	assert.True(t, srv.Exists("/d"))
}

func TestCreateDirectoryMkdirFails(t *testing.T) {
	_, fs := newFileService(t, nil)

	_, err := fs.CreateDirectory(context.Background(), "s1", "/missing-parent/child")
	assert.Equal(t, apperr.KindRemoteOp, apperr.KindOf(err))
}

func TestDeleteBranchesOnFlag(t *testing.T) {
	srv, fs := newFileService(t, nil)
	srv.WriteFile("/dir/file.txt", []byte("x"))

	_, err := fs.Delete(context.Background(), "s1", "/dir/file.txt", false)
	require.NoError(t, err)
	assert.False(t, srv.Exists("/dir/file.txt"))

	_, err = fs.Delete(context.Background(), "s1", "/dir", true)
	require.NoError(t, err)
	assert.False(t, srv.Exists("/dir"))

	_, err = fs.Delete(context.Background(), "s1", "/absent", false)
	assert.Equal(t, apperr.KindRemoteOp, apperr.KindOf(err))
}

func TestFileServiceUnknownSession(t *testing.T) {
	_, fs := newFileService(t, nil)
	ctx := context.Background()

	_, err := fs.CreateDirectory(ctx, "nope", "/d")
	assert.True(t, errors.Is(err, apperr.ErrSessionNotFound))
	_, err = fs.Delete(ctx, "nope", "/d", true)
	assert.True(t, errors.Is(err, apperr.ErrSessionNotFound))
	_, err = fs.ListDirectory(ctx, "nope", "/")
	assert.True(t, errors.Is(err, apperr.ErrSessionNotFound))
}
