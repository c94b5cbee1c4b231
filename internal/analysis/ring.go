// SPDX-License-Identifier: MIT
package analysis

// ring is a fixed-capacity FIFO of float64 values. Once full, each Push
// evicts the oldest value. The backing array is allocated once and the
// running sum is maintained incrementally, so Push and Mean are O(1) and
// allocation free on the audio callback.
type ring struct {
	data  []float64
	head  int // index of the next write
	count int
	sum   float64
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{data: make([]float64, capacity)}
}

// Push appends v, evicting the oldest value when the ring is full.
func (r *ring) Push(v float64) {
	if r.count == len(r.data) {
		r.sum -= r.data[r.head]
	} else {
		r.count++
	}
	r.data[r.head] = v
	r.sum += v
	r.head++
	if r.head == len(r.data) {
		r.head = 0
		// Re-sum on each wrap to keep floating-point drift bounded.
		r.resum()
	}
}

func (r *ring) resum() {
	var s float64
	for i := 0; i < r.count; i++ {
		s += r.data[i]
	}
	r.sum = s
}

// Mean returns the average of the stored values, or 0 when empty.
func (r *ring) Mean() float64 {
	if r.count == 0 {
		return 0
	}
	return r.sum / float64(r.count)
}

// Len returns the number of stored values.
func (r *ring) Len() int { return r.count }

// Cap returns the fixed capacity.
func (r *ring) Cap() int { return len(r.data) }

// Oldest returns the value that the next Push would evict when full.
func (r *ring) Oldest() float64 {
	if r.count < len(r.data) {
		return r.data[0]
	}
	return r.data[r.head]
}

// Reset empties the ring without releasing its storage.
func (r *ring) Reset() {
	for i := range r.data {
		r.data[i] = 0
	}
	r.head, r.count, r.sum = 0, 0, 0
}
