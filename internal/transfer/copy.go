package transfer

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sftpdesk/sftpdesk/internal/apperr"
	"github.com/sftpdesk/sftpdesk/internal/constants"
	"github.com/sftpdesk/sftpdesk/internal/events"
)

// Status tags a progress sample.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Progress is one sample of a running transfer.
type Progress struct {
	TransferID string
	Direction  Direction
	FileName   string
	Total      int64 // 0 when unknown
	Bytes      int64
	Speed      float64 // bytes/sec, smoothed
	Percent    int
	Status     Status
}

// Event converts the sample to the bus event for its direction.
func (p Progress) Event() *events.ProgressEvent {
	typ := events.EventDownloadProgress
	if p.Direction == Upload {
		typ = events.EventUploadProgress
	}
	return &events.ProgressEvent{
		BaseEvent:   events.BaseEvent{EventType: typ, Time: time.Now()},
		TransferID:  p.TransferID,
		FileName:    p.FileName,
		Direction:   string(p.Direction),
		BytesCopied: p.Bytes,
		TotalSize:   p.Total,
		Percent:     p.Percent,
		Speed:       p.Speed,
		Cancelled:   p.Status == StatusCancelled,
		Completed:   p.Status == StatusCompleted,
	}
}

// Percent is floor(bytes*100/total), capped at 100, or 0 when total is unknown.
func Percent(bytes, total int64) int {
	if total <= 0 {
		return 0
	}
	p := bytes * 100 / total
	if p > 100 {
		p = 100
	}
	return int(p)
}

// Copier runs the chunked copy loop.
type Copier struct {
	ChunkSize int
	Interval  time.Duration
	Step      int64

	// now is replaceable in tests.
	now func() time.Time
}

// NewCopier returns a copier using the default chunk size and throttle.
func NewCopier() *Copier {
	return &Copier{
		ChunkSize: constants.ChunkSize,
		Interval:  constants.ProgressInterval,
		Step:      constants.ProgressStepBytes,
	}
}

// Job describes one copy. ReadErr and WriteErr classify failures of the
// source and destination sides; nil leaves the error untouched.
type Job struct {
	ID        string
	Direction Direction
	FileName  string
	Total     int64

	Src    io.Reader
	Dst    io.Writer
	Signal *Signal

	ReadErr  func(error) error
	WriteErr func(error) error
}

// Copy moves Src to Dst in ChunkSize pieces. Before every chunk it checks the
// job's signal and ctx; when either is set it emits a final cancelled sample
// and returns a cancelled error, leaving whatever was written in place. On
// success the final sample has Percent 100 and StatusCompleted. emit is
// called from the calling goroutine only, in byte order.
func (c *Copier) Copy(ctx context.Context, job Job, emit func(Progress)) (int64, error) {
	chunk := c.ChunkSize
	if chunk <= 0 {
		chunk = constants.ChunkSize
	}
	clock := c.now
	if clock == nil {
		clock = time.Now
	}

	buf := make([]byte, chunk)
	throttle := NewThrottle(c.Interval, c.Step, clock())
	var total int64

	sample := func(status Status, percent int) Progress {
		return Progress{
			TransferID: job.ID,
			Direction:  job.Direction,
			FileName:   job.FileName,
			Total:      job.Total,
			Bytes:      total,
			Speed:      throttle.Speed(),
			Percent:    percent,
			Status:     status,
		}
	}

	for {
		if cancelled(ctx, job.Signal) {
			throttle.Mark(total, clock())
			emit(sample(StatusCancelled, Percent(total, job.Total)))
			return total, apperr.Cancelled(string(job.Direction), job.ID)
		}

		n, rerr := job.Src.Read(buf)
		if n > 0 {
			if _, werr := job.Dst.Write(buf[:n]); werr != nil {
				return total, classify(job.WriteErr, werr)
			}
			total += int64(n)

			if now := clock(); throttle.Due(total, now) {
				throttle.Mark(total, now)
				emit(sample(StatusActive, Percent(total, job.Total)))
			}
		}

		if errors.Is(rerr, io.EOF) || (n == 0 && rerr == nil) {
			break
		}
		if rerr != nil {
			return total, classify(job.ReadErr, rerr)
		}
	}

	throttle.Mark(total, clock())
	emit(sample(StatusCompleted, 100))
	return total, nil
}

func cancelled(ctx context.Context, sig *Signal) bool {
	if sig != nil && sig.Cancelled() {
		return true
	}
	return ctx.Err() != nil
}

func classify(fn func(error) error, err error) error {
	if fn == nil {
		return err
	}
	return fn(err)
}
