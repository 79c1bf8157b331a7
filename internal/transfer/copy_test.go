package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sftpdesk/sftpdesk/internal/apperr"
	"github.com/sftpdesk/sftpdesk/internal/events"
)

// fakeClock advances by step on every call.
func fakeClock(step time.Duration) func() time.Time {
	now := time.Unix(1000, 0)
	return func() time.Time {
		now = now.Add(step)
		return now
	}
}

func collect() (*[]Progress, func(Progress)) {
	var got []Progress
	return &got, func(p Progress) { got = append(got, p) }
}

func TestCopyCompletesWithFinalSample(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 3*1024*1024+17)
	var dst bytes.Buffer
	c := &Copier{ChunkSize: 8192, Interval: time.Hour, Step: 1 << 20, now: fakeClock(time.Millisecond)}

	got, emit := collect()
	n, err := c.Copy(context.Background(), Job{
		ID: "t-1", Direction: Download, FileName: "big.bin", Total: int64(len(data)),
		Src: bytes.NewReader(data), Dst: &dst, Signal: newSignal(),
	}, emit)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if n != int64(len(data)) || !bytes.Equal(dst.Bytes(), data) {
		t.Fatalf("copied %d bytes, content equal=%v", n, bytes.Equal(dst.Bytes(), data))
	}

	samples := *got
	// One sample per MiB crossed plus the final one
	if len(samples) != 4 {
		t.Fatalf("Expected 4 samples, got %d", len(samples))
	}
	var prev int64
	for _, s := range samples {
		if s.Bytes < prev {
			t.Errorf("bytes went backwards: %d after %d", s.Bytes, prev)
		}
		prev = s.Bytes
	}
	last := samples[len(samples)-1]
	if last.Status != StatusCompleted || last.Percent != 100 || last.Bytes != int64(len(data)) {
		t.Errorf("unexpected final sample: %+v", last)
	}
	if last.Speed <= 0 {
		t.Errorf("speed should be computed, got %f", last.Speed)
	}
	for _, s := range samples[:len(samples)-1] {
		if s.Status != StatusActive {
			t.Errorf("intermediate sample should be active: %+v", s)
		}
	}
}

func TestCopyIntervalEmitsForSlowTransfers(t *testing.T) {
	data := make([]byte, 10*8192)
	c := &Copier{ChunkSize: 8192, Interval: 100 * time.Millisecond, Step: 1 << 20, now: fakeClock(100 * time.Millisecond)}

	got, emit := collect()
	_, err := c.Copy(context.Background(), Job{ID: "t", Src: bytes.NewReader(data), Dst: io.Discard, Total: int64(len(data))}, emit)
	if err != nil {
		t.Fatal(err)
	}
	// Every chunk is 100ms apart, so each emits, plus the final sample
	if len(*got) != 11 {
		t.Errorf("Expected 11 samples, got %d", len(*got))
	}
	if (*got)[0].Percent != 10 {
		t.Errorf("Expected 10%% after first chunk, got %d", (*got)[0].Percent)
	}
}

func TestCopyEmptySource(t *testing.T) {
	c := NewCopier()
	got, emit := collect()
	n, err := c.Copy(context.Background(), Job{ID: "t", Src: bytes.NewReader(nil), Dst: io.Discard}, emit)
	if err != nil || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if len(*got) != 1 || (*got)[0].Status != StatusCompleted || (*got)[0].Percent != 100 {
		t.Errorf("unexpected samples: %+v", *got)
	}
}

// cancellingReader requests cancellation once limit bytes have been read.
type cancellingReader struct {
	r      io.Reader
	read   int64
	limit  int64
	cancel func()
}

func (c *cancellingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += int64(n)
	if c.read >= c.limit && c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	return n, err
}

func TestCopyStopsOnSignal(t *testing.T) {
	reg := NewCancelRegistry()
	sig := reg.Register("t-1")
	data := make([]byte, 100*8192)
	var dst bytes.Buffer
	src := &cancellingReader{r: bytes.NewReader(data), limit: 3 * 8192, cancel: func() { _ = reg.RequestCancel("t-1") }}

	got, emit := collect()
	n, err := NewCopier().Copy(context.Background(), Job{ID: "t-1", Direction: Upload, Src: src, Dst: &dst, Signal: sig, Total: int64(len(data))}, emit)

	if !apperr.IsCancelled(err) {
		t.Fatalf("Expected cancelled error, got %v", err)
	}
	if n != 3*8192 || int64(dst.Len()) != n {
		t.Errorf("Expected partial output of %d bytes, got n=%d written=%d", 3*8192, n, dst.Len())
	}
	last := (*got)[len(*got)-1]
	if last.Status != StatusCancelled || last.Bytes != n {
		t.Errorf("unexpected final sample: %+v", last)
	}
	if !last.Event().Cancelled || last.Event().Type() != events.EventUploadProgress {
		t.Errorf("unexpected event conversion: %+v", last.Event())
	}
}

func TestCopyStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, emit := collect()
	n, err := NewCopier().Copy(ctx, Job{ID: "t", Src: bytes.NewReader([]byte("abc")), Dst: io.Discard}, emit)
	if !apperr.IsCancelled(err) || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if len(*got) != 1 || (*got)[0].Status != StatusCancelled {
		t.Errorf("unexpected samples: %+v", *got)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestCopyClassifiesSideErrors(t *testing.T) {
	c := NewCopier()
	job := Job{
		ID:       "t",
		Src:      bytes.NewReader([]byte("data")),
		Dst:      failingWriter{},
		ReadErr:  func(err error) error { return apperr.Remote("read", "/r", err) },
		WriteErr: func(err error) error { return apperr.Filesystem("write", "/l", err) },
	}
	got, emit := collect()
	_, err := c.Copy(context.Background(), job, emit)
	if apperr.KindOf(err) != apperr.KindFilesystem {
		t.Errorf("write failure should be filesystem, got %v", err)
	}
	if len(*got) != 0 {
		t.Errorf("failed copy should emit no final sample, got %+v", *got)
	}

	job.Src, job.Dst = failingReader{}, io.Discard
	_, err = c.Copy(context.Background(), job, emit)
	if apperr.KindOf(err) != apperr.KindRemoteOp {
		t.Errorf("read failure should be remote_op, got %v", err)
	}
}
