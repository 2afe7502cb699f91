package plate

import (
	"sync"

	"checkpoint-gate/internal/domain/gate"
)

const DefaultCapacity = 6

// Aggregator buffers accepted plates, one buffer per plate length, and
// resolves a plate once any buffer holds capacity samples. It is written
// by a single pipeline loop; the mutex only protects concurrent Pending
// readers.
type Aggregator struct {
	mu            sync.Mutex
	capacity      int
	minConfidence float64
	buffers       map[int][]string
}

func NewAggregator(capacity int, minConfidence float64) *Aggregator {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Aggregator{
		capacity:      capacity,
		minConfidence: minConfidence,
		buffers:       make(map[int][]string),
	}
}

// Add buffers p. It returns the resolved plate when p filled its buffer;
// every buffer is cleared at that point.
func (a *Aggregator) Add(p gate.NormalizedPlate) (gate.ResolvedPlate, bool) {
	if !Complies(p.Plate) || p.Confidence < a.minConfidence {
		return gate.ResolvedPlate{}, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(p.Plate)
	buf := append(a.buffers[n], p.Plate)
	if len(buf) < a.capacity {
		a.buffers[n] = buf
		return gate.ResolvedPlate{}, false
	}

	resolved, votes := Vote(buf)
	a.buffers = make(map[int][]string)
	return gate.ResolvedPlate{
		Plate:   resolved,
		Samples: buf,
		Votes:   votes,
	}, true
}

// Pending returns how many samples are buffered for each plate length.
func (a *Aggregator) Pending() map[int]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[int]int, len(a.buffers))
	for n, buf := range a.buffers {
		out[n] = len(buf)
	}
	return out
}

func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.buffers = make(map[int][]string)
	a.mu.Unlock()
}

// Vote picks the most frequent byte at every position of equal-length
// samples. Ties go to the byte seen first in sample order. It returns ""
// when samples is empty or lengths differ.
func Vote(samples []string) (string, []int) {
	if len(samples) == 0 {
		return "", nil
	}
	width := len(samples[0])
	for _, s := range samples[1:] {
		if len(s) != width {
			return "", nil
		}
	}

	out := make([]byte, width)
	votes := make([]int, width)
	for i := 0; i < width; i++ {
		var counts [256]int
		order := make([]byte, 0, len(samples))
		for _, s := range samples {
			c := s[i]
			if counts[c] == 0 {
				order = append(order, c)
			}
			counts[c]++
		}
		best := order[0]
		for _, c := range order[1:] {
			if counts[c] > counts[best] {
				best = c
			}
		}
		out[i] = best
		votes[i] = counts[best]
	}
	return string(out), votes
}
