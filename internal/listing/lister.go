// Package listing turns remote directory reads into FileEntry values.
package listing

import (
	"context"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"

	"github.com/sftpdesk/sftpdesk/internal/apperr"
	"github.com/sftpdesk/sftpdesk/internal/logging"
	"github.com/sftpdesk/sftpdesk/internal/metrics"
	"github.com/sftpdesk/sftpdesk/internal/models"
	"github.com/sftpdesk/sftpdesk/internal/session"
)

// Lister lists directories of registered sessions.
type Lister struct {
	sessions *session.Registry
	logger   *logging.Logger
}

// NewLister creates a lister over the given registry.
func NewLister(sessions *session.Registry, logger *logging.Logger) *Lister {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Lister{sessions: sessions, logger: logger.Component("listing")}
}

// List returns the entries of dir in server order, without "." and "..".
// An empty directory yields an empty, non-nil slice.
func (l *Lister) List(ctx context.Context, sessionID, dir string) ([]models.FileEntry, error) {
	sess, err := l.sessions.Get("list directory", sessionID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir = NormalizePath(dir)
	infos, err := sess.Channel().ReadDir(dir)
	metrics.RecordRemoteOp("list", err)
	if err != nil {
		l.probeRoot(sess, dir, err)
		return nil, apperr.Remote("list directory", dir, err)
	}

	entries := make([]models.FileEntry, 0, len(infos))
	for _, fi := range infos {
		raw := fi.Name()
		if raw == "." || raw == ".." {
			continue
		}
		entries = append(entries, toEntry(dir, fi))
	}

	l.logger.Debug().Str("session", sessionID).Str("path", dir).Int("entries", len(entries)).Msg("listed directory")
	return entries, nil
}

// probeRoot logs whether "/" is readable, to tell a bad path from a broken
// session. It never changes the reported error.
func (l *Lister) probeRoot(sess *session.Session, dir string, cause error) {
	ev := l.logger.Warn().Err(cause).Str("session", sess.ID).Str("path", dir)
	if dir == "/" {
		ev.Msg("listing root failed")
		return
	}
	if _, err := sess.Channel().ReadDir("/"); err != nil {
		ev.AnErr("root_error", err).Msg("listing failed, root is not readable either")
		return
	}
	ev.Msg("listing failed, root is readable")
}

func toEntry(dir string, fi os.FileInfo) models.FileEntry {
	raw := fi.Name()
	size := fi.Size()
	if size < 0 {
		size = 0
	}

	entry := models.FileEntry{
		Name:        DisplayName(raw),
		Path:        path.Join(dir, raw),
		Size:        size,
		IsDir:       fi.IsDir(),
		Permissions: Permissions(fi),
	}
	if mt := fi.ModTime(); !mt.IsZero() && mt.Unix() > 0 {
		s := mt.UTC().Format(time.RFC3339)
		entry.Modified = &s
	}
	return entry
}

// Permissions renders the permission bits in octal, "0" when none are known.
// The raw SFTP attribute mode is preferred since it keeps setuid/setgid/sticky
// in their POSIX positions.
func Permissions(fi os.FileInfo) string {
	var perm uint32
	if st, ok := fi.Sys().(*sftp.FileStat); ok && st != nil {
		perm = st.Mode & 0o7777
	} else {
		perm = uint32(fi.Mode().Perm())
	}
	return strconv.FormatUint(uint64(perm), 8)
}
