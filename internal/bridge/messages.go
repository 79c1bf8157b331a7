// Package bridge serves the engine's command surface over a local socket.
// Each line a client writes is one JSON Request; each line the server
// writes is a Response or, after subscribe, an event Message.
package bridge

import (
	"encoding/json"
	"time"

	"github.com/sftpdesk/sftpdesk/internal/events"
)

// Commands understood by the server.
const (
	CmdTestConnection           = "test_connection"
	CmdConnect                  = "connect_sftp"
	CmdListDirectory            = "list_directory"
	CmdDownloadFile             = "download_file"
	CmdDownloadFileWithProgress = "download_file_with_progress"
	CmdUploadFile               = "upload_file"
	CmdUploadFileData           = "upload_file_data"
	CmdCreateDirectory          = "create_directory"
	CmdDeleteFile               = "delete_file"
	CmdGetConnectionInfo        = "get_connection_info"
	CmdDisconnect               = "disconnect_sftp"
	CmdCancelTransfer           = "cancel_transfer"
	CmdSubscribe                = "subscribe"
	CmdListSessions             = "list_sessions"
	CmdListTransfers            = "list_transfers"
	CmdCancelAllTransfers       = "cancel_all_transfers"
	CmdClearFinishedTransfers   = "clear_finished_transfers"
	CmdGetDownloadsDirectory    = "get_downloads_directory"
	CmdListProfiles             = "list_profiles"
	CmdSaveProfile              = "save_profile"
	CmdDeleteProfile            = "delete_profile"
	CmdTouchProfile             = "touch_profile"
	CmdProfileStats             = "profile_stats"
)

// Message types on the wire.
const (
	TypeResponse = "response"
	TypeEvent    = "event"
)

// Request is one command from a client.
type Request struct {
	ID      string          `json:"id"`
	Command string          `json:"command"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// Response answers the Request with the same ID.
type Response struct {
	Type   string      `json:"type"`
	ID     string      `json:"id"`
	OK     bool        `json:"ok"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
	Kind   string      `json:"kind,omitempty"`
}

// Message is a pushed event.
type Message struct {
	Type    string      `json:"type"`
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// NewOKResponse creates a success response.
func NewOKResponse(id string, result interface{}) *Response {
	return &Response{Type: TypeResponse, ID: id, OK: true, Result: result}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id, kind, msg string) *Response {
	return &Response{Type: TypeResponse, ID: id, Error: msg, Kind: kind}
}

// Command arguments

type testConnectionArgs struct {
	Host     string `json:"host"`
	Port     uint16 `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type connectionArgs struct {
	ConnectionID string `json:"connection_id"`
}

type pathArgs struct {
	ConnectionID string `json:"connection_id"`
	Path         string `json:"path"`
}

type downloadArgs struct {
	ConnectionID string `json:"connection_id"`
	RemotePath   string `json:"remote_path"`
	LocalPath    string `json:"local_path"`
	TransferID   string `json:"transfer_id"`
}

type uploadArgs struct {
	ConnectionID string `json:"connection_id"`
	LocalPath    string `json:"local_path"`
	RemotePath   string `json:"remote_path"`
	TransferID   string `json:"transfer_id"`
}

type uploadDataArgs struct {
	ConnectionID string `json:"connection_id"`
	RemotePath   string `json:"remote_path"`
	FileData     string `json:"file_data"` // base64
	FileName     string `json:"file_name"`
}

type deleteArgs struct {
	ConnectionID string `json:"connection_id"`
	Path         string `json:"path"`
	IsDir        bool   `json:"is_dir"`
}

type transferArgs struct {
	TransferID string `json:"transfer_id"`
}

type profileIDArgs struct {
	ID string `json:"id"`
}

// Event payloads

// ProgressPayload is the body of download_progress and upload_progress.
type ProgressPayload struct {
	TransferID  string  `json:"transfer_id"`
	FileName    string  `json:"file_name"`
	Direction   string  `json:"direction"`
	BytesCopied int64   `json:"bytes_copied"`
	TotalSize   int64   `json:"total_size"`
	Progress    int     `json:"progress"`
	Speed       float64 `json:"speed"`
	Cancelled   bool    `json:"cancelled,omitempty"`
	Completed   bool    `json:"completed,omitempty"`
}

// TransferPayload is the body of transfer lifecycle events.
type TransferPayload struct {
	TransferID string  `json:"transfer_id"`
	Direction  string  `json:"direction"`
	SessionID  string  `json:"session_id"`
	FileName   string  `json:"file_name"`
	Source     string  `json:"source"`
	Dest       string  `json:"dest"`
	TotalSize  int64   `json:"total_size"`
	Bytes      int64   `json:"bytes"`
	Speed      float64 `json:"speed"`
	Error      string  `json:"error,omitempty"`
}

// SessionPayload is the body of session_connected and session_disconnected.
type SessionPayload struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	Host      string `json:"host"`
	Username  string `json:"username"`
}

// LogPayload is the body of log events.
type LogPayload struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Component string `json:"component,omitempty"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
}

// eventMessage converts a bus event to its wire form. ok is false for
// event types the bridge does not forward.
func eventMessage(ev events.Event) (*Message, bool) {
	var payload interface{}
	switch e := ev.(type) {
	case *events.ProgressEvent:
		payload = ProgressPayload{
			TransferID:  e.TransferID,
			FileName:    e.FileName,
			Direction:   e.Direction,
			BytesCopied: e.BytesCopied,
			TotalSize:   e.TotalSize,
			Progress:    e.Percent,
			Speed:       e.Speed,
			Cancelled:   e.Cancelled,
			Completed:   e.Completed,
		}
	case *events.TransferEvent:
		p := TransferPayload{
			TransferID: e.TaskID,
			Direction:  e.Direction,
			SessionID:  e.SessionID,
			FileName:   e.Name,
			Source:     e.Source,
			Dest:       e.Dest,
			TotalSize:  e.Size,
			Bytes:      e.Bytes,
			Speed:      e.Speed,
		}
		if e.Error != nil {
			p.Error = e.Error.Error()
		}
		payload = p
	case *events.SessionEvent:
		payload = SessionPayload{SessionID: e.SessionID, Name: e.Name, Host: e.Host, Username: e.Username}
	case *events.LogEvent:
		p := LogPayload{
			Timestamp: e.Timestamp().Format(time.RFC3339Nano),
			Level:     e.Level.String(),
			Component: e.Component,
			Message:   e.Message,
		}
		if e.Error != nil {
			p.Error = e.Error.Error()
		}
		payload = p
	default:
		return nil, false
	}
	return &Message{Type: TypeEvent, Event: string(ev.Type()), Payload: payload}, true
}
