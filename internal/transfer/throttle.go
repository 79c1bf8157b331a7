package transfer

import (
	"time"

	"github.com/sftpdesk/sftpdesk/internal/constants"
)

// Throttle decides when the copy loop emits a progress sample and measures
// speed between samples. A sample is due once Interval has elapsed since the
// last one, or as soon as the running total crosses a Step boundary the last
// sample had not reached. Not safe for concurrent use; one per transfer.
type Throttle struct {
	Interval time.Duration
	Step     int64
	Alpha    float64 // EMA weight of the newest rate sample

	lastEmit  time.Time
	lastBytes int64
	speed     float64
}

// NewThrottle creates a throttle whose first interval starts at now.
func NewThrottle(interval time.Duration, step int64, now time.Time) *Throttle {
	if interval <= 0 {
		interval = constants.ProgressInterval
	}
	if step <= 0 {
		step = constants.ProgressStepBytes
	}
	return &Throttle{
		Interval: interval,
		Step:     step,
		Alpha:    constants.SpeedSmoothingAlpha,
		lastEmit: now,
	}
}

// Due reports whether a sample should be emitted for total bytes at now.
func (t *Throttle) Due(total int64, now time.Time) bool {
	if now.Sub(t.lastEmit) >= t.Interval {
		return true
	}
	return total/t.Step > t.lastBytes/t.Step
}

// Mark records an emission at now and returns the smoothed speed in bytes/sec.
// The instantaneous rate is the byte delta over the time since the previous
// emission; a zero interval keeps the previous estimate.
func (t *Throttle) Mark(total int64, now time.Time) float64 {
	elapsed := now.Sub(t.lastEmit).Seconds()
	if elapsed > 0 && total >= t.lastBytes {
		rate := float64(total-t.lastBytes) / elapsed
		if t.speed > 0 {
			t.speed = t.Alpha*rate + (1-t.Alpha)*t.speed
		} else {
			t.speed = rate
		}
	}
	t.lastEmit = now
	t.lastBytes = total
	return t.speed
}

// Speed returns the last smoothed estimate.
func (t *Throttle) Speed() float64 { return t.speed }
