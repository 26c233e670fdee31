package modules

import (
	"time"

	"github.com/google/uuid"
)

// OutboundRequest is a send captured while no live session exists. It only
// lives in memory: queued sends are session-scoped and are abandoned (never
// replayed) on cleanup or process exit.
type OutboundRequest struct {
	ID         string
	To         string
	Content    Content
	Options    *SendOptions
	EnqueuedAt time.Time
}

// pendingQueue is the FIFO buffer drained on reconnect. Not safe for
// concurrent use by itself; the manager guards it with its own mutex.
type pendingQueue struct {
	items []*OutboundRequest
}

func (q *pendingQueue) push(to string, content Content, opts *SendOptions) *OutboundRequest {
	req := &OutboundRequest{
		ID:         uuid.NewString(),
		To:         to,
		Content:    content,
		Options:    opts,
		EnqueuedAt: time.Now(),
	}
	q.items = append(q.items, req)
	return req
}

// takeAll hands over every queued item in arrival order and empties the queue.
func (q *pendingQueue) takeAll() []*OutboundRequest {
	items := q.items
	q.items = nil
	return items
}

func (q *pendingQueue) size() int {
	return len(q.items)
}
