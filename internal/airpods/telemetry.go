package airpods

import (
	"slices"
	"time"

	"github.com/kairpods/kairpodsd/internal/ringbuf"
)

// defaultHistorySize retains roughly half a day of one-minute samples.
const defaultHistorySize = 720

// BatterySample is one point of retained battery telemetry.
type BatterySample struct {
	At      time.Time
	Battery Battery
}

// BatteryHistory keeps a sliding window of battery samples. It carries
// no locking of its own; Device serializes access for the shared
// per-device history.
type BatteryHistory struct {
	ring *ringbuf.Ring[BatterySample]
}

// NewBatteryHistory constructs a history window. A non-positive
// capacity selects the default.
func NewBatteryHistory(capacity int) *BatteryHistory {
	if capacity <= 0 {
		capacity = defaultHistorySize
	}
	return &BatteryHistory{ring: ringbuf.New[BatterySample](capacity)}
}

func (h *BatteryHistory) Len() int {
	return h.ring.Len()
}

// Record appends a sample, displacing the oldest once the window is
// full.
func (h *BatteryHistory) Record(at time.Time, b Battery) {
	h.ring.Push(BatterySample{At: at, Battery: b})
}

// Latest returns the most recent sample.
func (h *BatteryHistory) Latest() (BatterySample, bool) {
	return h.ring.Last()
}

// Samples copies the retained window, oldest first.
func (h *BatteryHistory) Samples() []BatterySample {
	return slices.Collect(h.ring.All())
}

// Compact drops everything but the most recent keep samples.
func (h *BatteryHistory) Compact(keep int) {
	h.ring.TruncateFront(keep)
}

// DrainRate estimates earbud percent drained per hour across the
// samples inside the window ending at the newest sample. It reports
// false when fewer than two usable samples span the window.
func (h *BatteryHistory) DrainRate(window time.Duration) (float64, bool) {
	newest, ok := h.ring.Last()
	if !ok {
		return 0, false
	}
	cutoff := newest.At.Add(-window)
	var first, last BatterySample
	have := false
	for s := range h.ring.All() {
		if s.At.Before(cutoff) {
			continue
		}
		if !have {
			first = s
			have = true
		}
		last = s
	}
	if !have || !last.At.After(first.At) {
		return 0, false
	}
	startLevel, ok := budLevel(first.Battery)
	if !ok {
		return 0, false
	}
	endLevel, ok := budLevel(last.Battery)
	if !ok {
		return 0, false
	}
	return (startLevel - endLevel) / last.At.Sub(first.At).Hours(), true
}

// budLevel averages the known earbud levels, ignoring the case.
func budLevel(b Battery) (float64, bool) {
	var sum, n float64
	if b.Left.Known() {
		sum += float64(b.Left.Level)
		n++
	}
	if b.Right.Known() {
		sum += float64(b.Right.Level)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / n, true
}
