package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/cinema-bridge/internal/journal"
)

func TestHub_RingKeepsNewest(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish("tick", map[string]int{"n": i})
	}

	snap := h.SnapshotSince(0)
	require.Len(t, snap, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{snap[0].ID, snap[1].ID, snap[2].ID})

	later := h.SnapshotSince(4)
	require.Len(t, later, 1)
	assert.Equal(t, int64(5), later[0].ID)
	assert.JSONEq(t, `{"n":4}`, string(later[0].Data))
}

func TestHub_SubscribeAndCancel(t *testing.T) {
	h := NewHub(0)
	ch, cancel := h.Subscribe()
	assert.Equal(t, 1, h.Subscribers())

	h.Publish("ping", nil)

	select {
	case ev := <-ch:
		assert.Equal(t, "ping", ev.Type)
		assert.JSONEq(t, `{}`, string(ev.Data))
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	cancel()
	cancel()
	assert.Equal(t, 0, h.Subscribers())
	_, open := <-ch
	assert.False(t, open)
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(10)
	_, cancel := h.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.Publish("flood", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on an undrained subscriber")
	}
}

func TestHub_Record(t *testing.T) {
	h := NewHub(10)
	err := h.Record(context.Background(), journal.Entry{
		CallID:    "call-1",
		Method:    "processAudio",
		InputPath: "/sdcard/a.wav",
		OK:        true,
		Message:   "processing started",
	})
	require.NoError(t, err)

	snap := h.SnapshotSince(0)
	require.Len(t, snap, 1)
	assert.Equal(t, TypeCallReported, snap[0].Type)

	var got journal.Entry
	require.NoError(t, json.Unmarshal(snap[0].Data, &got))
	assert.Equal(t, "call-1", got.CallID)
	assert.True(t, got.OK)
	assert.False(t, got.CreatedAt.IsZero())
}
