package pipeline

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Window remembers the fingerprints of recently applied messages. It is
// safe for concurrent use.
type Window struct {
	entries *lru.Cache[string, struct{}]
	retain  int
}

// NewWindow creates a window holding up to capacity fingerprints. Prune
// trims it to the retain most recently marked.
func NewWindow(capacity, retain int) (*Window, error) {
	if retain <= 0 || retain > capacity {
		return nil, fmt.Errorf("window retain %d must be in [1, %d]", retain, capacity)
	}
	entries, err := lru.New[string, struct{}](capacity)
	if err != nil {
		return nil, fmt.Errorf("create window: %w", err)
	}
	return &Window{entries: entries, retain: retain}, nil
}

// Seen reports whether fingerprint was marked and not yet evicted.
func (w *Window) Seen(fingerprint string) bool {
	return w.entries.Contains(fingerprint)
}

// Mark records fingerprint as applied.
func (w *Window) Mark(fingerprint string) {
	w.entries.Add(fingerprint, struct{}{})
}

// Len returns the number of remembered fingerprints.
func (w *Window) Len() int {
	return w.entries.Len()
}

// Prune evicts the oldest fingerprints beyond the retain limit and returns
// how many were evicted.
func (w *Window) Prune() int {
	evicted := 0
	for w.entries.Len() > w.retain {
		if _, _, ok := w.entries.RemoveOldest(); !ok {
			break
		}
		evicted++
	}
	return evicted
}
