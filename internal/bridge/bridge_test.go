package bridge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sftpdesk/sftpdesk/internal/apperr"
	"github.com/sftpdesk/sftpdesk/internal/core"
	"github.com/sftpdesk/sftpdesk/internal/localfs"
	"github.com/sftpdesk/sftpdesk/internal/models"
	"github.com/sftpdesk/sftpdesk/internal/remote/remotetest"
	"github.com/sftpdesk/sftpdesk/internal/services"
)

func newEngine(t *testing.T, srv *remotetest.Server) *core.Engine {
	t.Helper()
	e, err := core.NewEngine(nil, core.Options{
		Mode:         "serve",
		Dialer:       srv.Dialer(),
		Local:        localfs.New(osfs.New(t.TempDir())),
		ProfilesPath: filepath.Join(t.TempDir(), "profiles.toml"),
		LogOutput:    &bytes.Buffer{},
	})
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func call(t *testing.T, h *Handler, command string, args interface{}) *Response {
	t.Helper()
	var raw json.RawMessage
	if args != nil {
		b, err := json.Marshal(args)
		require.NoError(t, err)
		raw = b
	}
	return h.HandleRequest(context.Background(), &Request{ID: "1", Command: command, Args: raw})
}

func connected(t *testing.T) (*Handler, *remotetest.Server) {
	t.Helper()
	srv := remotetest.NewServer(t)
	h := NewHandler(newEngine(t, srv))
	resp := call(t, h, CmdConnect, map[string]interface{}{
		"connection_info": models.SessionInfo{ID: "c1", Name: "box", Host: "h", Username: "u"},
	})
	require.True(t, resp.OK, resp.Error)
	assert.Equal(t, "c1", resp.Result)
	return h, srv
}

func TestHandlerTransfersReturnGeneratedID(t *testing.T) {
	h, srv := connected(t)
	srv.WriteFile("/src.bin", []byte("payload"))

	resp := call(t, h, CmdDownloadFileWithProgress, map[string]interface{}{
		"connection_id": "c1", "remote_path": "/src.bin", "local_path": "/got.bin",
	})
	require.True(t, resp.OK, resp.Error)
	down, ok := resp.Result.(services.Result)
	require.True(t, ok, "unexpected result %T", resp.Result)
	assert.NotEmpty(t, down.TransferID)
	assert.Equal(t, int64(7), down.Bytes)

	resp = call(t, h, CmdUploadFile, map[string]interface{}{
		"connection_id": "c1", "local_path": "/got.bin", "remote_path": "/copy.bin",
	})
	require.True(t, resp.OK, resp.Error)
	up, ok := resp.Result.(services.Result)
	require.True(t, ok, "unexpected result %T", resp.Result)
	assert.NotEmpty(t, up.TransferID)
	assert.NotEqual(t, down.TransferID, up.TransferID)
	assert.Equal(t, []byte("payload"), srv.ReadFile("/copy.bin"))
}

func TestHandlerUnknownCommand(t *testing.T) {
	h := NewHandler(newEngine(t, remotetest.NewServer(t)))
	resp := call(t, h, "format_disk", nil)
	assert.False(t, resp.OK)
	assert.Equal(t, TypeResponse, resp.Type)
	assert.Equal(t, "1", resp.ID)
	assert.Equal(t, string(apperr.KindInvalidArgument), resp.Kind)
	assert.Contains(t, resp.Error, "format_disk")
}

func TestHandlerMalformedArgs(t *testing.T) {
	h := NewHandler(newEngine(t, remotetest.NewServer(t)))
	resp := h.HandleRequest(context.Background(), &Request{ID: "2", Command: CmdListDirectory, Args: json.RawMessage(`[1,2]`)})
	assert.False(t, resp.OK)
	assert.Equal(t, string(apperr.KindInvalidArgument), resp.Kind)
}

func TestHandlerSessionLifecycle(t *testing.T) {
	h, srv := connected(t)
	srv.WriteFile("/srv/a.txt", []byte("hello"))

	resp := call(t, h, CmdListDirectory, pathArgs{ConnectionID: "c1", Path: "/srv"})
	require.True(t, resp.OK, resp.Error)
	entries := resp.Result.([]models.FileEntry)
	require.Len(t, entries, 1)
	assert.Equal(t, "/srv/a.txt", entries[0].Path)

	resp = call(t, h, CmdGetConnectionInfo, connectionArgs{ConnectionID: "c1"})
	require.True(t, resp.OK, resp.Error)
	assert.Contains(t, resp.Result, "u@h:22")

	resp = call(t, h, CmdDisconnect, connectionArgs{ConnectionID: "c1"})
	require.True(t, resp.OK)

	resp = call(t, h, CmdListDirectory, pathArgs{ConnectionID: "c1", Path: "/"})
	assert.False(t, resp.OK)
	assert.Equal(t, string(apperr.KindNotFound), resp.Kind)
}

func TestHandlerUploadFileData(t *testing.T) {
	h, srv := connected(t)

	resp := call(t, h, CmdUploadFileData, uploadDataArgs{
		ConnectionID: "c1",
		RemotePath:   "/notes.txt",
		FileData:     base64.StdEncoding.EncodeToString([]byte("remember")),
		FileName:     "notes.txt",
	})
	require.True(t, resp.OK, resp.Error)
	assert.Equal(t, []byte("remember"), srv.ReadFile("/notes.txt"))

	resp = call(t, h, CmdUploadFileData, uploadDataArgs{
		ConnectionID: "c1",
		RemotePath:   "/bad.txt",
		FileData:     "!!! not base64",
	})
	assert.False(t, resp.OK)
	assert.Equal(t, string(apperr.KindInvalidArgument), resp.Kind)
	assert.False(t, srv.Exists("/bad.txt"))
}

func TestHandlerDirectoryHousekeeping(t *testing.T) {
	h, srv := connected(t)

	resp := call(t, h, CmdCreateDirectory, pathArgs{ConnectionID: "c1", Path: "/inbox"})
	require.True(t, resp.OK, resp.Error)
	assert.True(t, srv.Exists("/inbox"))

	resp = call(t, h, CmdDeleteFile, deleteArgs{ConnectionID: "c1", Path: "/inbox", IsDir: true})
	require.True(t, resp.OK, resp.Error)
	assert.False(t, srv.Exists("/inbox"))
}

func TestHandlerCancelUnknownTransfer(t *testing.T) {
	h := NewHandler(newEngine(t, remotetest.NewServer(t)))
	resp := call(t, h, CmdCancelTransfer, transferArgs{TransferID: "ghost"})
	assert.False(t, resp.OK)
	assert.Equal(t, string(apperr.KindNotFound), resp.Kind)

	resp = call(t, h, CmdCancelAllTransfers, nil)
	require.True(t, resp.OK)
	assert.Equal(t, 0, resp.Result)

	resp = call(t, h, CmdClearFinishedTransfers, nil)
	require.True(t, resp.OK)
	assert.Equal(t, 0, resp.Result)
}

func TestHandlerProfiles(t *testing.T) {
	h := NewHandler(newEngine(t, remotetest.NewServer(t)))

	resp := call(t, h, CmdSaveProfile, map[string]interface{}{"name": "prod", "host": "prod.example", "username": "ops"})
	require.True(t, resp.OK, resp.Error)
	id := resp.Result.(string)

	resp = call(t, h, CmdTouchProfile, profileIDArgs{ID: id})
	require.True(t, resp.OK, resp.Error)

	resp = call(t, h, CmdProfileStats, nil)
	require.True(t, resp.OK)
	raw, _ := json.Marshal(resp.Result)
	assert.JSONEq(t, `{"total":1,"with_password":0,"recently_used":1}`, string(raw))

	resp = call(t, h, CmdSaveProfile, map[string]interface{}{"name": "nohost"})
	assert.Equal(t, string(apperr.KindInvalidArgument), resp.Kind)

	resp = call(t, h, CmdDeleteProfile, profileIDArgs{ID: id})
	require.True(t, resp.OK)
	resp = call(t, h, CmdDeleteProfile, profileIDArgs{ID: id})
	assert.Equal(t, string(apperr.KindNotFound), resp.Kind)
}

func startServer(t *testing.T, e *core.Engine) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "sfd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	sock := filepath.Join(dir, "b.sock")

	ln, err := Listen(sock)
	require.NoError(t, err)
	s := NewServer(e)
	s.Start(ln)
	t.Cleanup(s.Stop)
	return sock
}

func TestServerRoundTripAndEvents(t *testing.T) {
	srv := remotetest.NewServer(t)
	srv.WriteFile("/data/big.bin", bytes.Repeat([]byte("x"), 3<<20))
	e := newEngine(t, srv)
	sock := startServer(t, e)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := Dial(ctx, sock)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Subscribe(ctx))

	var id string
	require.NoError(t, client.Call(ctx, CmdConnect, map[string]interface{}{
		"connection_info": models.SessionInfo{ID: "tab", Host: "h", Username: "u"},
	}, &id))
	assert.Equal(t, "tab", id)

	var res services.Result
	require.NoError(t, client.Call(ctx, CmdDownloadFileWithProgress, downloadArgs{
		ConnectionID: "tab",
		RemotePath:   "/data/big.bin",
		LocalPath:    "/dl/big.bin",
		TransferID:   "xfer-1",
	}, &res))
	assert.Equal(t, "xfer-1", res.TransferID)
	assert.Equal(t, int64(3145728), res.Bytes)
	assert.Contains(t, res.Message, "3145728")

	var final ProgressPayload
	seenConnected := false
	for final.TransferID == "" {
		select {
		case m, ok := <-client.Events():
			require.True(t, ok, "event stream closed early")
			switch m.Event {
			case "session_connected":
				seenConnected = true
			case "download_progress":
				var p ProgressPayload
				require.NoError(t, json.Unmarshal(m.Payload.(json.RawMessage), &p))
				if p.Completed || p.Cancelled {
					final = p
				}
			}
		case <-ctx.Done():
			t.Fatal("no terminal progress event")
		}
	}
	assert.True(t, seenConnected)
	assert.True(t, final.Completed)
	assert.Equal(t, 100, final.Progress)
	assert.EqualValues(t, 3<<20, final.BytesCopied)

	err = client.Call(ctx, CmdGetConnectionInfo, connectionArgs{ConnectionID: "missing"}, nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestServerRejectsGarbageLine(t *testing.T) {
	e := newEngine(t, remotetest.NewServer(t))
	sock := startServer(t, e)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Dial(ctx, sock)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.conn.Write([]byte("this is not json\n"))
	require.NoError(t, err)

	// The connection survives and keeps serving.
	var dir string
	require.NoError(t, client.Call(ctx, CmdGetDownloadsDirectory, nil, &dir))
	assert.NotEmpty(t, dir)
}

func TestClientAfterServerStop(t *testing.T) {
	e := newEngine(t, remotetest.NewServer(t))
	dir, err := os.MkdirTemp("", "sfd")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	ln, err := Listen(filepath.Join(dir, "b.sock"))
	require.NoError(t, err)
	s := NewServer(e)
	s.Start(ln)

	ctx := context.Background()
	client, err := Dial(ctx, filepath.Join(dir, "b.sock"))
	require.NoError(t, err)
	defer client.Close()

	s.Stop()
	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}

	err = client.Call(ctx, CmdListSessions, nil, nil)
	assert.Error(t, err)
}

func TestThrottleCoalescesButKeepsTerminal(t *testing.T) {
	s := &Server{eventInterval: 50 * time.Millisecond}
	last := make(map[string]time.Time)
	base := time.Unix(1000, 0)

	assert.False(t, s.throttled(last, "a", base))
	assert.True(t, s.throttled(last, "a", base.Add(10*time.Millisecond)))
	assert.False(t, s.throttled(last, "b", base.Add(10*time.Millisecond)), "keys are independent")
	assert.False(t, s.throttled(last, "a", base.Add(60*time.Millisecond)))
}
