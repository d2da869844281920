package stats

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRecorder(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRecorder()

	require.NoError(t, r.Record(ctx, Event{Kind: "email", Masked: true}))
	require.NoError(t, r.Record(ctx, Event{Kind: "email", Masked: false}))
	require.NoError(t, r.Record(ctx, Event{Kind: "ssn", Masked: true}))

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.Total)
	assert.Equal(t, int64(2), snap.Masked)
	assert.Equal(t, KindCounts{Seen: 2, Masked: 1}, snap.ByKind["email"])
	assert.Equal(t, KindCounts{Seen: 1, Masked: 1}, snap.ByKind["ssn"])
	assert.Equal(t, []string{"email", "ssn"}, snap.Kinds())

	// snapshots are copies
	snap.ByKind["email"] = KindCounts{}
	again, _ := r.Snapshot(ctx)
	assert.Equal(t, int64(2), again.ByKind["email"].Seen)

	assert.NoError(t, r.Close())
}

func TestMemoryRecorderConcurrent(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRecorder()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = r.Record(ctx, Event{Kind: "payment_card", Masked: j%2 == 0})
			}
		}()
	}
	wg.Wait()

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), snap.Total)
	assert.Equal(t, int64(500), snap.Masked)
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	require.NoError(t, r.Record(context.Background(), Event{Kind: "email"}))
	snap, err := r.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Zero(t, snap.Total)
}

func TestMemoryRecorderReset(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRecorder()
	require.NoError(t, r.Record(ctx, Event{Kind: "ssn", Masked: true}))

	require.NoError(t, r.Reset(ctx))

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Zero(t, snap.Total)
	assert.Empty(t, snap.ByKind)

	require.NoError(t, r.Record(ctx, Event{Kind: "email"}))
	snap, err = r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Total)
}
