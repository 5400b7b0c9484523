package ratelimit

import "time"

// window is a sliding window of request timestamps, ordered oldest first.
// Append is amortized O(1); evict reslices from the front so a cleanup
// pass never leaves a timestamp older than the window size.
type window struct {
	size time.Duration
	ts   []time.Time
}

func newWindow(size time.Duration) *window {
	return &window{size: size}
}

func (w *window) evict(now time.Time) {
	cutoff := now.Add(-w.size)
	i := 0
	for i < len(w.ts) && !w.ts[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.ts = w.ts[i:]
	}
}

func (w *window) add(now time.Time) {
	w.ts = append(w.ts, now)
}

func (w *window) count() int {
	return len(w.ts)
}
