package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sftpdesk/sftpdesk/internal/apperr"
	"github.com/sftpdesk/sftpdesk/internal/constants"
	"github.com/sftpdesk/sftpdesk/internal/diskspace"
	"github.com/sftpdesk/sftpdesk/internal/events"
	"github.com/sftpdesk/sftpdesk/internal/localfs"
	"github.com/sftpdesk/sftpdesk/internal/logging"
	"github.com/sftpdesk/sftpdesk/internal/metrics"
	"github.com/sftpdesk/sftpdesk/internal/session"
	"github.com/sftpdesk/sftpdesk/internal/transfer"
)

// TransferService runs downloads and uploads as cancellable, chunked,
// progress-emitting copies. Every call blocks until its transfer ends;
// callers wanting concurrency call from their own goroutines and the
// semaphore bounds how many move bytes at once.
type TransferService struct {
	sessions *session.Registry
	local    *localfs.Store
	eventBus *events.EventBus
	queue    *transfer.Queue
	cancels  *transfer.CancelRegistry
	copier   *transfer.Copier
	logger   *logging.Logger

	checkDiskSpace bool

	// Concurrency control
	semaphore   chan struct{} // Limits concurrent transfers
	activeSlots int32         // Atomic counter for logging
}

// TransferServiceConfig configures the TransferService.
type TransferServiceConfig struct {
	// MaxConcurrent is the maximum number of transfers moving bytes at once.
	// Defaults to constants.DefaultMaxConcurrentTransfers.
	MaxConcurrent int
	// ChunkSize is the copy loop's read size. Defaults to constants.ChunkSize.
	ChunkSize int
	// ProgressInterval and ProgressStep tune the progress throttle.
	ProgressInterval time.Duration
	ProgressStep     int64
	// CheckDiskSpace rejects downloads that cannot fit before writing.
	CheckDiskSpace bool
}

// NewTransferService creates a new TransferService. eventBus may be nil.
func NewTransferService(sessions *session.Registry, local *localfs.Store, eventBus *events.EventBus, logger *logging.Logger, config TransferServiceConfig) *TransferService {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = constants.DefaultMaxConcurrentTransfers
	}
	if config.MaxConcurrent > constants.MaxConcurrentTransfers {
		config.MaxConcurrent = constants.MaxConcurrentTransfers
	}
	if local == nil {
		local = localfs.NewOS()
	}
	if logger == nil {
		logger = logging.Nop()
	}

	copier := transfer.NewCopier()
	if config.ChunkSize > 0 {
		copier.ChunkSize = config.ChunkSize
	}
	if config.ProgressInterval > 0 {
		copier.Interval = config.ProgressInterval
	}
	if config.ProgressStep > 0 {
		copier.Step = config.ProgressStep
	}

	return &TransferService{
		sessions:       sessions,
		local:          local,
		eventBus:       eventBus,
		queue:          transfer.NewQueue(eventBus),
		cancels:        transfer.NewCancelRegistry(),
		copier:         copier,
		logger:         logger.Component("transfer"),
		checkDiskSpace: config.CheckDiskSpace,
		semaphore:      make(chan struct{}, config.MaxConcurrent),
	}
}

// GetQueue returns the underlying transfer queue.
func (ts *TransferService) GetQueue() *transfer.Queue {
	return ts.queue
}

// Download copies a remote file to a local path, emitting download_progress
// events and honouring RequestCancel(req.TransferID). A cancelled or failed
// download leaves the partial local file in place.
func (ts *TransferService) Download(ctx context.Context, req DownloadRequest) (Result, error) {
	id := transferID(req.TransferID)
	sig := ts.cancels.Register(id)
	defer ts.cancels.Release(id, sig)

	sess, err := ts.sessions.Get("download", req.SessionID)
	if err != nil {
		return Result{TransferID: id}, err
	}
	ch := sess.Channel()
	name := path.Base(req.RemotePath)
	task := ts.queue.Track(id, transfer.Download, req.SessionID, name, req.RemotePath, req.LocalPath)

	n, err := ts.execute(ctx, task, sig, func() (int64, error) {
		if err := ts.local.EnsureParent(req.LocalPath); err != nil {
			return 0, apperr.Filesystem("create directory", filepath.Dir(req.LocalPath), err)
		}

		src, err := ch.Open(req.RemotePath)
		if err != nil {
			return 0, apperr.Remote("open", req.RemotePath, err)
		}
		defer src.Close()

		var total int64
		if fi, err := ch.Stat(req.RemotePath); err == nil {
			total = fi.Size()
		} else {
			ts.logger.Debug().Err(err).Str("path", req.RemotePath).Msg("remote size unknown")
		}

		if ts.checkDiskSpace {
			if err := diskspace.CheckAvailableSpace(req.LocalPath, total); err != nil {
				return 0, apperr.Filesystem("check disk space", req.LocalPath, err)
			}
		}

		dst, err := ts.local.Create(req.LocalPath)
		if err != nil {
			return 0, apperr.Filesystem("create", req.LocalPath, err)
		}
		ts.queue.Start(task, total)

		n, err := ts.copier.Copy(ctx, transfer.Job{
			ID:        id,
			Direction: transfer.Download,
			FileName:  name,
			Total:     total,
			Src:       src,
			Dst:       dst,
			Signal:    sig,
			ReadErr:   func(err error) error { return apperr.Remote("read", req.RemotePath, err) },
			WriteErr:  func(err error) error { return apperr.Filesystem("write", req.LocalPath, err) },
		}, ts.emitter(task))
		return n, closeWith(dst, err, func(err error) error { return apperr.Filesystem("close", req.LocalPath, err) })
	})
	if err != nil {
		return Result{TransferID: id, Bytes: n}, err
	}

	return Result{
		TransferID: id,
		Bytes:      n,
		Message:    fmt.Sprintf("Download complete, file size: %d bytes", n),
	}, nil
}

// DownloadLegacy copies a remote file with a single bulk copy. It emits no
// progress and cannot be cancelled.
func (ts *TransferService) DownloadLegacy(ctx context.Context, sessionID, remotePath, localPath string) (Result, error) {
	sess, err := ts.sessions.Get("download", sessionID)
	if err != nil {
		return Result{}, err
	}
	ch := sess.Channel()

	start := time.Now()
	n, err := func() (int64, error) {
		if err := ts.local.EnsureParent(localPath); err != nil {
			return 0, apperr.Filesystem("create directory", filepath.Dir(localPath), err)
		}
		src, err := ch.Open(remotePath)
		if err != nil {
			return 0, apperr.Remote("open", remotePath, err)
		}
		defer src.Close()

		dst, err := ts.local.Create(localPath)
		if err != nil {
			return 0, apperr.Filesystem("create", localPath, err)
		}
		n, err := io.Copy(dst, src)
		if err != nil {
			err = apperr.New(apperr.KindRemoteOp, "copy", remotePath, err)
		}
		return n, closeWith(dst, err, func(err error) error { return apperr.Filesystem("close", localPath, err) })
	}()
	metrics.RecordTransfer(string(transfer.Download), n, time.Since(start), err)
	if err != nil {
		ts.logger.Warn().Err(err).Str("path", remotePath).Msg("download failed")
		return Result{Bytes: n}, err
	}

	ts.logger.Info().Str("path", remotePath).Int64("bytes", n).Msg("download complete")
	return Result{Bytes: n, Message: fmt.Sprintf("Download complete, file size: %d bytes", n)}, nil
}

// Upload copies a local file to a remote path with the same progress and
// cancellation contract as Download, emitting upload_progress events.
func (ts *TransferService) Upload(ctx context.Context, req UploadRequest) (Result, error) {
	id := transferID(req.TransferID)
	sig := ts.cancels.Register(id)
	defer ts.cancels.Release(id, sig)

	sess, err := ts.sessions.Get("upload", req.SessionID)
	if err != nil {
		return Result{TransferID: id}, err
	}
	ch := sess.Channel()
	name := filepath.Base(req.LocalPath)
	task := ts.queue.Track(id, transfer.Upload, req.SessionID, name, req.LocalPath, req.RemotePath)

	n, err := ts.execute(ctx, task, sig, func() (int64, error) {
		src, err := ts.local.Open(req.LocalPath)
		if err != nil {
			return 0, apperr.Filesystem("open", req.LocalPath, err)
		}
		defer src.Close()

		var total int64
		if fi, err := ts.local.Stat(req.LocalPath); err == nil {
			total = fi.Size()
		}

		dst, err := ch.Create(req.RemotePath)
		if err != nil {
			return 0, apperr.Remote("create", req.RemotePath, err)
		}
		ts.queue.Start(task, total)

		n, err := ts.copier.Copy(ctx, transfer.Job{
			ID:        id,
			Direction: transfer.Upload,
			FileName:  name,
			Total:     total,
			Src:       src,
			Dst:       dst,
			Signal:    sig,
			ReadErr:   func(err error) error { return apperr.Filesystem("read", req.LocalPath, err) },
			WriteErr:  func(err error) error { return apperr.Remote("write", req.RemotePath, err) },
		}, ts.emitter(task))
		return n, closeWith(dst, err, func(err error) error { return apperr.Remote("close", req.RemotePath, err) })
	})
	if err != nil {
		return Result{TransferID: id, Bytes: n}, err
	}

	return Result{
		TransferID: id,
		Bytes:      n,
		Message:    fmt.Sprintf("Upload complete, %d bytes", n),
	}, nil
}

// UploadBytes writes an already decoded payload to a new remote file.
func (ts *TransferService) UploadBytes(ctx context.Context, sessionID, remotePath string, data []byte, displayName string) (Result, error) {
	sess, err := ts.sessions.Get("upload", sessionID)
	if err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, apperr.New(apperr.KindCancelled, "upload", remotePath, err)
	}

	start := time.Now()
	err = func() error {
		dst, err := sess.Channel().Create(remotePath)
		if err != nil {
			return apperr.Remote("create", remotePath, err)
		}
		_, err = dst.Write(data)
		if err != nil {
			err = apperr.Remote("write", remotePath, err)
		}
		return closeWith(dst, err, func(err error) error { return apperr.Remote("close", remotePath, err) })
	}()
	metrics.RecordTransfer(string(transfer.Upload), int64(len(data)), time.Since(start), err)
	if err != nil {
		return Result{}, err
	}

	if displayName == "" {
		displayName = path.Base(remotePath)
	}
	ts.logger.Info().Str("path", remotePath).Int("bytes", len(data)).Msg("payload uploaded")
	return Result{Bytes: int64(len(data)), Message: fmt.Sprintf("File %s uploaded", displayName)}, nil
}

// RequestCancel asks the transfer with the given id to stop at its next
// chunk boundary. Unknown or finished ids yield a not_found error.
func (ts *TransferService) RequestCancel(transferID string) error {
	if err := ts.cancels.RequestCancel(transferID); err != nil {
		return err
	}
	ts.logger.Info().Str("transfer", transferID).Msg("cancellation requested")
	return nil
}

// CancelAll requests cancellation of every registered transfer.
func (ts *TransferService) CancelAll() int {
	n := ts.cancels.CancelAll()
	if n > 0 {
		ts.logger.Info().Int("count", n).Msg("cancelling all transfers")
	}
	return n
}

// ListTransfers reports every tracked transfer, the queue stats and the ids
// that can currently be cancelled.
func (ts *TransferService) ListTransfers() TransferList {
	return TransferList{
		Transfers: ts.queue.GetTasks(),
		Stats:     ts.queue.GetStats(),
		Active:    ts.cancels.Active(),
	}
}

// GetStats returns the queue statistics.
func (ts *TransferService) GetStats() transfer.QueueStats {
	return ts.queue.GetStats()
}

// ClearFinished drops finished transfers from the listing.
func (ts *TransferService) ClearFinished() int {
	return ts.queue.ClearFinished()
}

// execute waits for a worker slot, runs body, and records the outcome in the
// queue and metrics. A panic in body becomes a task_failure error.
func (ts *TransferService) execute(ctx context.Context, task *transfer.Task, sig *transfer.Signal, body func() (int64, error)) (n int64, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			ts.logger.Error().Str("transfer", task.ID).Msgf("PANIC in %s of %s: %v", task.Direction, task.Name, r)
			err = apperr.New(apperr.KindTaskFailure, string(task.Direction), task.ID, fmt.Errorf("panic: %v", r))
		}
		ts.finish(task, n, err, time.Since(start))
	}()

	if err := ts.acquire(ctx, task, sig); err != nil {
		return 0, err
	}
	defer ts.release(task)

	return body()
}

// acquire waits for a semaphore slot. A cancel request or context end while
// waiting ends the transfer with a final cancelled event.
func (ts *TransferService) acquire(ctx context.Context, task *transfer.Task, sig *transfer.Signal) error {
	select {
	case ts.semaphore <- struct{}{}:
	default:
		ts.logger.Debug().Str("transfer", task.ID).
			Int32("active", atomic.LoadInt32(&ts.activeSlots)).
			Int("max", cap(ts.semaphore)).
			Msg("waiting for transfer slot")
		select {
		case ts.semaphore <- struct{}{}:
		case <-sig.Done():
			return ts.cancelledWhileQueued(task)
		case <-ctx.Done():
			return ts.cancelledWhileQueued(task)
		}
	}

	atomic.AddInt32(&ts.activeSlots, 1)
	metrics.TransferStarted()
	return nil
}

func (ts *TransferService) release(task *transfer.Task) {
	<-ts.semaphore
	atomic.AddInt32(&ts.activeSlots, -1)
	metrics.TransferFinished()
}

func (ts *TransferService) cancelledWhileQueued(task *transfer.Task) error {
	ts.emitter(task)(transfer.Progress{
		TransferID: task.ID,
		Direction:  task.Direction,
		FileName:   task.Name,
		Status:     transfer.StatusCancelled,
	})
	return apperr.Cancelled(string(task.Direction), task.ID)
}

// emitter feeds progress samples to the queue and the event bus.
func (ts *TransferService) emitter(task *transfer.Task) func(transfer.Progress) {
	return func(p transfer.Progress) {
		ts.queue.Progress(task, p.Bytes, p.Speed)
		if ts.eventBus != nil {
			ts.eventBus.Publish(p.Event())
		}
	}
}

func (ts *TransferService) finish(task *transfer.Task, n int64, err error, elapsed time.Duration) {
	metrics.RecordTransfer(string(task.Direction), n, elapsed, err)

	log := ts.logger.Info()
	switch {
	case err == nil:
		ts.queue.Complete(task, n)
	case apperr.IsCancelled(err):
		ts.queue.Cancel(task, n)
	default:
		ts.queue.Fail(task, err)
		log = ts.logger.Warn().Err(err)
	}
	log.Str("transfer", task.ID).
		Str("direction", string(task.Direction)).
		Str("name", task.Name).
		Int64("bytes", n).
		Dur("elapsed", elapsed).
		Str("state", string(task.State())).
		Msg("transfer finished")
}

// closeWith closes c and reports the close error only when err is nil.
func closeWith(c io.Closer, err error, wrap func(error) error) error {
	if cerr := c.Close(); cerr != nil && err == nil {
		return wrap(cerr)
	}
	return err
}

func transferID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
