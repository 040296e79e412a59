package crawler

import (
	"sync"

	"github.com/rotisserie/eris"

	"github.com/arvinsingh/fictech-harvester/internal/model"
)

// ErrQueueClosed is returned by Push after Close. Closing unblocks every
// waiting producer and consumer.
var ErrQueueClosed = eris.New("crawler: queue closed")

// pageTask is one page awaiting fetch+classify. Source is the category the
// page was discovered in; it is not part of the persisted frontier, so
// tasks rehydrated from a checkpoint carry an empty source.
type pageTask struct {
	item   model.FrontierItem
	source string
}

// queue is a bounded FIFO of page tasks. Push blocks while the queue is
// full (backpressure against the expanding producer) and Pop blocks while
// it is empty. Unlike a channel, pending items can be snapshotted for a
// consistent checkpoint.
type queue struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond
	items    []pageTask
	capacity int
	closed   bool
}

func newQueue(capacity int) *queue {
	q := &queue{capacity: capacity}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Push appends a task, blocking while the queue is at capacity.
func (q *queue) Push(task pageTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) >= q.capacity && !q.closed {
		q.notFull.Wait()
	}
	if q.closed {
		return ErrQueueClosed
	}

	q.items = append(q.items, task)
	q.notEmpty.Signal()
	return nil
}

// Pop removes the oldest task, blocking while the queue is empty. After
// Close, remaining tasks are still drained; ok is false once the queue is
// both closed and empty.
func (q *queue) Pop() (pageTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.items) == 0 {
		return pageTask{}, false
	}

	task := q.items[0]
	q.items = q.items[1:]
	q.notFull.Signal()
	return task, true
}

// Close marks the queue closed and wakes all waiters.
func (q *queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
}

// Snapshot copies the pending frontier items for checkpointing.
func (q *queue) Snapshot() []model.FrontierItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := make([]model.FrontierItem, 0, len(q.items))
	for _, t := range q.items {
		items = append(items, t.item)
	}
	return items
}

// Len returns the number of pending tasks.
func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
