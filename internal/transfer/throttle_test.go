package transfer

import (
	"testing"
	"time"
)

func TestThrottleIntervalGate(t *testing.T) {
	start := time.Unix(1000, 0)
	th := NewThrottle(100*time.Millisecond, 1<<20, start)

	if th.Due(8192, start.Add(50*time.Millisecond)) {
		t.Error("should not emit inside the interval below a step boundary")
	}
	if !th.Due(8192, start.Add(100*time.Millisecond)) {
		t.Error("should emit once the interval has elapsed")
	}
}

func TestThrottleStepCrossingInsideInterval(t *testing.T) {
	start := time.Unix(1000, 0)
	th := NewThrottle(100*time.Millisecond, 1<<20, start)
	at := start.Add(10 * time.Millisecond)

	if !th.Due(1<<20, at) {
		t.Error("crossing 1 MiB should emit even inside the interval")
	}
	th.Mark(1<<20, at)

	if th.Due(1<<20+8192, at.Add(time.Millisecond)) {
		t.Error("no new boundary crossed, interval not elapsed")
	}
	if !th.Due(3<<20, at.Add(time.Millisecond)) {
		t.Error("crossing further boundaries should emit")
	}
}

func TestThrottleSpeedSmoothing(t *testing.T) {
	start := time.Unix(1000, 0)
	th := NewThrottle(100*time.Millisecond, 1<<20, start)

	// 1000 bytes in 1s: first measurement seeds the estimate
	if got := th.Mark(1000, start.Add(time.Second)); got != 1000 {
		t.Errorf("Expected 1000 B/s, got %f", got)
	}
	// 3000 more bytes in 1s: 0.25*3000 + 0.75*1000
	if got := th.Mark(4000, start.Add(2*time.Second)); got != 1500 {
		t.Errorf("Expected 1500 B/s, got %f", got)
	}
	// Zero elapsed keeps the estimate
	if got := th.Mark(5000, start.Add(2*time.Second)); got != 1500 {
		t.Errorf("Expected 1500 B/s, got %f", got)
	}
}

func TestPercent(t *testing.T) {
	cases := []struct {
		bytes, total int64
		want         int
	}{
		{0, 0, 0},
		{500, 0, 0},
		{0, 1000, 0},
		{999, 1000, 99},
		{1000, 1000, 100},
		{1500, 1000, 100},
		{1, 3, 33},
	}
	for _, c := range cases {
		if got := Percent(c.bytes, c.total); got != c.want {
			t.Errorf("Percent(%d, %d) = %d, want %d", c.bytes, c.total, got, c.want)
		}
	}
}
