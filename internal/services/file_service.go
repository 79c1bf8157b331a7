package services

import (
	"context"

	"github.com/sftpdesk/sftpdesk/internal/apperr"
	"github.com/sftpdesk/sftpdesk/internal/constants"
	"github.com/sftpdesk/sftpdesk/internal/listing"
	"github.com/sftpdesk/sftpdesk/internal/logging"
	"github.com/sftpdesk/sftpdesk/internal/metrics"
	"github.com/sftpdesk/sftpdesk/internal/models"
	"github.com/sftpdesk/sftpdesk/internal/session"
)

// FileService handles remote directory listing and housekeeping.
type FileService struct {
	sessions *session.Registry
	lister   *listing.Lister
	logger   *logging.Logger
}

// NewFileService creates a new FileService.
func NewFileService(sessions *session.Registry, logger *logging.Logger) *FileService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &FileService{
		sessions: sessions,
		lister:   listing.NewLister(sessions, logger),
		logger:   logger.Component("files"),
	}
}

// ListDirectory returns the entries of a remote directory.
func (fs *FileService) ListDirectory(ctx context.Context, sessionID, dir string) ([]models.FileEntry, error) {
	return fs.lister.List(ctx, sessionID, dir)
}

// CreateDirectory creates dir and sets its mode to 0755. A server that
// rejects the chmod still leaves the created directory, which counts as
// success.
func (fs *FileService) CreateDirectory(ctx context.Context, sessionID, dir string) (string, error) {
	sess, err := fs.sessions.Get("create directory", sessionID)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ch := sess.Channel()
	err = ch.Mkdir(dir)
	metrics.RecordRemoteOp("mkdir", err)
	if err != nil {
		return "", apperr.Remote("create directory", dir, err)
	}
	if err := ch.Chmod(dir, constants.DirMode); err != nil {
		fs.logger.Warn().Err(err).Str("path", dir).Msg("could not set directory mode")
	}

	fs.logger.Info().Str("session", sessionID).Str("path", dir).Msg("directory created")
	return "Directory created", nil
}

// Delete removes a file, or an empty directory when isDir is set. The
// target's real type is not checked; the flag picks the operation.
func (fs *FileService) Delete(ctx context.Context, sessionID, target string, isDir bool) (string, error) {
	sess, err := fs.sessions.Get("delete", sessionID)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ch := sess.Channel()
	op := "remove"
	if isDir {
		op = "remove directory"
		err = ch.RemoveDirectory(target)
	} else {
		err = ch.Remove(target)
	}
	metrics.RecordRemoteOp("delete", err)
	if err != nil {
		return "", apperr.Remote(op, target, err)
	}

	fs.logger.Info().Str("session", sessionID).Str("path", target).Bool("dir", isDir).Msg("deleted")
	return "Deleted", nil
}
