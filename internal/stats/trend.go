package stats

import (
	"strings"
	"sync"
)

// RingBuffer holds a sliding window of data points.
type RingBuffer struct {
	data     []float64
	head     int
	capacity int
	isFull   bool
}

// NewRingBuffer creates a new ring buffer with the specified capacity.
func NewRingBuffer(size int) *RingBuffer {
	if size < 1 {
		size = 1
	}
	return &RingBuffer{
		data:     make([]float64, size),
		capacity: size,
	}
}

// Add inserts a new value, overwriting the oldest if full.
func (r *RingBuffer) Add(val float64) {
	r.data[r.head] = val
	r.head = (r.head + 1) % r.capacity
	if r.head == 0 {
		r.isFull = true
	}
}

// Snapshot returns the data ordered from oldest to newest.
func (r *RingBuffer) Snapshot() []float64 {
	result := make([]float64, 0, r.capacity)
	if r.isFull {
		result = append(result, r.data[r.head:]...)
		result = append(result, r.data[:r.head]...)
	} else {
		result = append(result, r.data[:r.head]...)
	}
	return result
}

// Len returns the number of data points currently in the buffer.
func (r *RingBuffer) Len() int {
	if r.isFull {
		return r.capacity
	}
	return r.head
}

// Trend records the risk score at every dashboard refresh.
type Trend struct {
	mu  sync.Mutex
	buf *RingBuffer
}

// NewTrend keeps the last n scores.
func NewTrend(n int) *Trend {
	return &Trend{buf: NewRingBuffer(n)}
}

// Record appends a score.
func (t *Trend) Record(score float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Add(score)
}

// Values returns the recorded scores oldest first.
func (t *Trend) Values() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.Snapshot()
}

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders the trend as block characters scaled to the maximum.
func (t *Trend) Sparkline() string {
	return Sparkline(t.Values())
}

// Sparkline renders values as block characters scaled to their maximum.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	max := 0.0
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	var b strings.Builder
	for _, v := range values {
		idx := 0
		if max > 0 && v > 0 {
			idx = int(v / max * float64(len(sparkBlocks)-1))
		}
		b.WriteRune(sparkBlocks[idx])
	}
	return b.String()
}
