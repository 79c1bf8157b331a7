package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/sftpdesk/sftpdesk/internal/apperr"
	"github.com/sftpdesk/sftpdesk/internal/core"
	"github.com/sftpdesk/sftpdesk/internal/metrics"
	"github.com/sftpdesk/sftpdesk/internal/models"
	"github.com/sftpdesk/sftpdesk/internal/profiles"
	"github.com/sftpdesk/sftpdesk/internal/services"
)

type commandFunc func(ctx context.Context, args json.RawMessage) (interface{}, error)

// Handler maps commands onto engine operations. It has no connection state;
// subscribe is handled by the Server.
type Handler struct {
	engine   *core.Engine
	commands map[string]commandFunc
}

// NewHandler builds the command table for engine.
func NewHandler(engine *core.Engine) *Handler {
	h := &Handler{engine: engine}
	h.commands = map[string]commandFunc{
		CmdTestConnection:           h.testConnection,
		CmdConnect:                  h.connect,
		CmdListDirectory:            h.listDirectory,
		CmdDownloadFile:             h.downloadFile,
		CmdDownloadFileWithProgress: h.downloadWithProgress,
		CmdUploadFile:               h.uploadFile,
		CmdUploadFileData:           h.uploadFileData,
		CmdCreateDirectory:          h.createDirectory,
		CmdDeleteFile:               h.deleteFile,
		CmdGetConnectionInfo:        h.connectionInfo,
		CmdDisconnect:               h.disconnect,
		CmdCancelTransfer:           h.cancelTransfer,
		CmdListSessions:             h.listSessions,
		CmdListTransfers:            h.listTransfers,
		CmdCancelAllTransfers:       h.cancelAll,
		CmdClearFinishedTransfers:   h.clearFinished,
		CmdGetDownloadsDirectory:    h.downloadsDirectory,
		CmdListProfiles:             h.listProfiles,
		CmdSaveProfile:              h.saveProfile,
		CmdDeleteProfile:            h.deleteProfile,
		CmdTouchProfile:             h.touchProfile,
		CmdProfileStats:             h.profileStats,
	}
	return h
}

// HandleRequest runs one command and renders its outcome. Exported for
// direct testing without sockets.
func (h *Handler) HandleRequest(ctx context.Context, req *Request) *Response {
	fn, ok := h.commands[req.Command]
	if !ok {
		err := apperr.Invalid("dispatch", "unknown command: %s", req.Command)
		metrics.RecordBridgeRequest("unknown", err)
		return NewErrorResponse(req.ID, errorKind(err), err.Error())
	}
	result, err := fn(ctx, req.Args)
	metrics.RecordBridgeRequest(req.Command, err)
	if err != nil {
		return NewErrorResponse(req.ID, errorKind(err), err.Error())
	}
	return NewOKResponse(req.ID, result)
}

// errorKind classifies errors for the wire, including the profile store's
// plain sentinel.
func errorKind(err error) string {
	if errors.Is(err, profiles.ErrNotFound) {
		return string(apperr.KindNotFound)
	}
	return string(apperr.KindOf(err))
}

func decode(command string, raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperr.Invalid(command, "malformed arguments: %v", err)
	}
	return nil
}

func (h *Handler) testConnection(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var a testConnectionArgs
	if err := decode(CmdTestConnection, raw, &a); err != nil {
		return nil, err
	}
	return h.engine.TestConnection(ctx, models.ConnectParams{
		Host: a.Host, Port: a.Port, Username: a.Username, Password: a.Password,
	})
}

func (h *Handler) connect(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var a struct {
		ConnectionInfo models.SessionInfo `json:"connection_info"`
	}
	if err := decode(CmdConnect, raw, &a); err != nil {
		return nil, err
	}
	return h.engine.Connect(ctx, a.ConnectionInfo)
}

func (h *Handler) listDirectory(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := decode(CmdListDirectory, raw, &a); err != nil {
		return nil, err
	}
	return h.engine.ListDirectory(ctx, a.ConnectionID, a.Path)
}

func (h *Handler) downloadFile(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var a downloadArgs
	if err := decode(CmdDownloadFile, raw, &a); err != nil {
		return nil, err
	}
	res, err := h.engine.Download(ctx, a.ConnectionID, a.RemotePath, a.LocalPath)
	if err != nil {
		return nil, err
	}
	return res.Message, nil
}

// downloadWithProgress and uploadFile answer with the full result so a client
// that left transfer_id empty learns the generated one.
func (h *Handler) downloadWithProgress(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var a downloadArgs
	if err := decode(CmdDownloadFileWithProgress, raw, &a); err != nil {
		return nil, err
	}
	res, err := h.engine.DownloadWithProgress(ctx, services.DownloadRequest{
		SessionID:  a.ConnectionID,
		RemotePath: a.RemotePath,
		LocalPath:  a.LocalPath,
		TransferID: a.TransferID,
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (h *Handler) uploadFile(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var a uploadArgs
	if err := decode(CmdUploadFile, raw, &a); err != nil {
		return nil, err
	}
	res, err := h.engine.Upload(ctx, services.UploadRequest{
		SessionID:  a.ConnectionID,
		LocalPath:  a.LocalPath,
		RemotePath: a.RemotePath,
		TransferID: a.TransferID,
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (h *Handler) uploadFileData(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var a uploadDataArgs
	if err := decode(CmdUploadFileData, raw, &a); err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(a.FileData)
	if err != nil {
		return nil, apperr.Invalid(CmdUploadFileData, "file_data is not valid base64: %v", err)
	}
	res, err := h.engine.UploadBytes(ctx, a.ConnectionID, a.RemotePath, data, a.FileName)
	if err != nil {
		return nil, err
	}
	return res.Message, nil
}

func (h *Handler) createDirectory(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := decode(CmdCreateDirectory, raw, &a); err != nil {
		return nil, err
	}
	return h.engine.CreateDirectory(ctx, a.ConnectionID, a.Path)
}

func (h *Handler) deleteFile(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var a deleteArgs
	if err := decode(CmdDeleteFile, raw, &a); err != nil {
		return nil, err
	}
	return h.engine.Delete(ctx, a.ConnectionID, a.Path, a.IsDir)
}

func (h *Handler) connectionInfo(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var a connectionArgs
	if err := decode(CmdGetConnectionInfo, raw, &a); err != nil {
		return nil, err
	}
	return h.engine.GetConnectionInfo(ctx, a.ConnectionID)
}

func (h *Handler) disconnect(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var a connectionArgs
	if err := decode(CmdDisconnect, raw, &a); err != nil {
		return nil, err
	}
	return h.engine.Disconnect(a.ConnectionID), nil
}

func (h *Handler) cancelTransfer(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var a transferArgs
	if err := decode(CmdCancelTransfer, raw, &a); err != nil {
		return nil, err
	}
	return h.engine.RequestCancel(a.TransferID)
}

func (h *Handler) listSessions(context.Context, json.RawMessage) (interface{}, error) {
	return h.engine.Sessions().Sessions(), nil
}

func (h *Handler) listTransfers(context.Context, json.RawMessage) (interface{}, error) {
	return h.engine.ListTransfers(), nil
}

func (h *Handler) cancelAll(context.Context, json.RawMessage) (interface{}, error) {
	return h.engine.CancelAll(), nil
}

func (h *Handler) clearFinished(context.Context, json.RawMessage) (interface{}, error) {
	return h.engine.ClearFinished(), nil
}

func (h *Handler) downloadsDirectory(context.Context, json.RawMessage) (interface{}, error) {
	return h.engine.DownloadsDirectory(), nil
}

func (h *Handler) listProfiles(context.Context, json.RawMessage) (interface{}, error) {
	return h.engine.Profiles().List(), nil
}

func (h *Handler) saveProfile(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var p profiles.Profile
	if err := decode(CmdSaveProfile, raw, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Host) == "" {
		return nil, apperr.Invalid(CmdSaveProfile, "host is required")
	}
	return h.engine.Profiles().Save(p)
}

func (h *Handler) deleteProfile(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var a profileIDArgs
	if err := decode(CmdDeleteProfile, raw, &a); err != nil {
		return nil, err
	}
	if err := h.engine.Profiles().Delete(a.ID); err != nil {
		return nil, err
	}
	return "Profile deleted", nil
}

func (h *Handler) touchProfile(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var a profileIDArgs
	if err := decode(CmdTouchProfile, raw, &a); err != nil {
		return nil, err
	}
	if err := h.engine.Profiles().Touch(a.ID); err != nil {
		return nil, err
	}
	return "Profile updated", nil
}

func (h *Handler) profileStats(context.Context, json.RawMessage) (interface{}, error) {
	return h.engine.Profiles().Stats(), nil
}
