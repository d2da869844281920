// Package stats counts masking operations. Only the kind, field and outcome
// of each operation are recorded, never the value itself.
package stats

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Event describes one value passed through a masking function
type Event struct {
	Kind   string    `json:"kind"`
	Field  string    `json:"field,omitempty"`
	Source string    `json:"source,omitempty"` // api, batch, ...
	Masked bool      `json:"masked"`
	At     time.Time `json:"at"`
}

// KindCounts holds counters for one kind
type KindCounts struct {
	Seen   int64 `json:"seen"`
	Masked int64 `json:"masked"`
}

// Snapshot is a point-in-time view of the counters
type Snapshot struct {
	Total  int64                 `json:"total"`
	Masked int64                 `json:"masked"`
	ByKind map[string]KindCounts `json:"by_kind"`
}

// Kinds returns the kinds present in the snapshot, sorted
func (s Snapshot) Kinds() []string {
	kinds := make([]string, 0, len(s.ByKind))
	for k := range s.ByKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Recorder stores masking events
type Recorder interface {
	Record(ctx context.Context, event Event) error
	Snapshot(ctx context.Context) (Snapshot, error)
	Close() error
}

// Resetter is implemented by recorders whose counters can be cleared
type Resetter interface {
	Reset(ctx context.Context) error
}

var _ Resetter = (*MemoryRecorder)(nil)

// MemoryRecorder keeps counters in process memory
type MemoryRecorder struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// NewMemoryRecorder creates an empty in-memory recorder
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		snapshot: Snapshot{ByKind: make(map[string]KindCounts)},
	}
}

// Record implements Recorder
func (m *MemoryRecorder) Record(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := m.snapshot.ByKind[event.Kind]
	counts.Seen++
	m.snapshot.Total++
	if event.Masked {
		counts.Masked++
		m.snapshot.Masked++
	}
	m.snapshot.ByKind[event.Kind] = counts
	return nil
}

// Snapshot implements Recorder
func (m *MemoryRecorder) Snapshot(_ context.Context) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := Snapshot{
		Total:  m.snapshot.Total,
		Masked: m.snapshot.Masked,
		ByKind: make(map[string]KindCounts, len(m.snapshot.ByKind)),
	}
	for k, v := range m.snapshot.ByKind {
		out.ByKind[k] = v
	}
	return out, nil
}

// Reset implements Resetter
func (m *MemoryRecorder) Reset(_ context.Context) error {
	m.mu.Lock()
	m.snapshot = Snapshot{ByKind: make(map[string]KindCounts)}
	m.mu.Unlock()
	return nil
}

// Close implements Recorder
func (m *MemoryRecorder) Close() error {
	return nil
}

// Nop discards all events
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

func (Nop) Snapshot(context.Context) (Snapshot, error) {
	return Snapshot{ByKind: map[string]KindCounts{}}, nil
}

func (Nop) Close() error { return nil }
