// Package telemetry provides in-process counters for operator visibility.
// Counts are informational only; the sync engine's correctness never depends
// on them.
package telemetry

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Labels represents a set of dimensional labels for metrics.
type Labels map[string]string

// String returns a string representation of labels for map keys.
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	result := ""
	for i, k := range keys {
		if i > 0 {
			result += ","
		}
		result += fmt.Sprintf("%s=%s", k, l[k])
	}
	return result
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name   string
	labels Labels
	value  atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	if c == nil {
		return
	}
	c.value.Add(1)
}

// Add adds the given value to the counter.
func (c *Counter) Add(delta int64) {
	if c == nil {
		return
	}
	if delta < 0 {
		return // counters don't decrease
	}
	c.value.Add(delta)
}

// Get returns the current value.
func (c *Counter) Get() int64 {
	if c == nil {
		return 0
	}
	return c.value.Load()
}

// Registry holds every counter for one run.
type Registry struct {
	mu       sync.Mutex
	counters map[string]*Counter
}

// NewRegistry creates an empty metrics registry.
func NewRegistry() *Registry {
	return &Registry{counters: make(map[string]*Counter)}
}

// Counter returns the counter for name+labels, creating it on first use.
func (r *Registry) Counter(name string, labels Labels) *Counter {
	if r == nil {
		return nil
	}
	key := name
	if ls := labels.String(); ls != "" {
		key = name + "{" + ls + "}"
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counters[key]
	if !ok {
		c = &Counter{name: name, labels: labels}
		r.counters[key] = c
	}
	return c
}

// Snapshot returns the current value of every counter, keyed by
// name{labels}, for end-of-run logging.
func (r *Registry) Snapshot() map[string]int64 {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := make(map[string]int64, len(r.counters))
	for key, c := range r.counters {
		snap[key] = c.Get()
	}
	return snap
}
