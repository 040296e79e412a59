package crawler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvinsingh/fictech-harvester/internal/model"
)

func task(name string) pageTask {
	return pageTask{item: model.FrontierItem{Kind: model.KindPage, Name: name, Depth: 1}}
}

func TestQueue_FIFO(t *testing.T) {
	q := newQueue(8)

	require.NoError(t, q.Push(task("a")))
	require.NoError(t, q.Push(task("b")))
	require.NoError(t, q.Push(task("c")))
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, want, got.item.Name)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_PushBlocksWhenFull(t *testing.T) {
	q := newQueue(1)
	require.NoError(t, q.Push(task("a")))

	pushed := make(chan error, 1)
	go func() { pushed <- q.Push(task("b")) }()

	select {
	case <-pushed:
		t.Fatal("push should block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	_, ok := q.Pop()
	require.True(t, ok)

	select {
	case err := <-pushed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("push did not unblock after pop")
	}
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := newQueue(4)

	popped := make(chan pageTask, 1)
	go func() {
		got, ok := q.Pop()
		require.True(t, ok)
		popped <- got
	}()

	select {
	case <-popped:
		t.Fatal("pop should block while the queue is empty")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, q.Push(task("a")))

	select {
	case got := <-popped:
		assert.Equal(t, "a", got.item.Name)
	case <-time.After(time.Second):
		t.Fatal("pop did not unblock after push")
	}
}

func TestQueue_CloseUnblocksPush(t *testing.T) {
	q := newQueue(1)
	require.NoError(t, q.Push(task("a")))

	pushed := make(chan error, 1)
	go func() { pushed <- q.Push(task("b")) }()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-pushed:
		assert.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("push did not unblock after close")
	}
}

func TestQueue_DrainsAfterClose(t *testing.T) {
	q := newQueue(4)
	require.NoError(t, q.Push(task("a")))
	require.NoError(t, q.Push(task("b")))
	q.Close()

	got, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", got.item.Name)

	got, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", got.item.Name)

	_, ok = q.Pop()
	assert.False(t, ok)

	assert.ErrorIs(t, q.Push(task("c")), ErrQueueClosed)
}

func TestQueue_Snapshot(t *testing.T) {
	q := newQueue(4)
	require.NoError(t, q.Push(task("a")))
	require.NoError(t, q.Push(task("b")))

	snap := q.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].Name)
	assert.Equal(t, model.KindPage, snap[0].Kind)

	// Snapshot does not consume.
	assert.Equal(t, 2, q.Len())
}
