// Package services is the operation layer the bridge and CLI call into:
// transfers with progress and cancellation, and remote housekeeping. It is
// frontend-agnostic; progress and state changes go out on the EventBus.
package services

import "github.com/sftpdesk/sftpdesk/internal/transfer"

// DownloadRequest copies one remote file to a local path.
type DownloadRequest struct {
	SessionID  string
	RemotePath string
	LocalPath  string
	// TransferID keys progress events and cancellation. Empty generates one.
	TransferID string
}

// UploadRequest copies one local file to a remote path.
type UploadRequest struct {
	SessionID  string
	LocalPath  string
	RemotePath string
	// TransferID keys progress events and cancellation. Empty generates one.
	TransferID string
}

// Result summarises a finished transfer.
type Result struct {
	TransferID string `json:"transfer_id,omitempty"`
	Bytes      int64  `json:"bytes"`
	Message    string `json:"message"`
}

// TransferList is the answer to a transfer listing.
type TransferList struct {
	Transfers []transfer.TaskInfo `json:"transfers"`
	Stats     transfer.QueueStats `json:"stats"`
	Active    []string            `json:"active"`
}
