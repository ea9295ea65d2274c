package amd

import "fmt"

// DequeueOrder decides which pending registration a finished script load
// is paired with.
type DequeueOrder int

const (
	// FIFO pairs a finished load with the oldest pending registration.
	// Scripts execute in the order their loads complete, so each load's
	// own registration is the oldest one left.
	FIFO DequeueOrder = iota

	// LIFO pairs a finished load with the newest pending registration.
	// Use it when inline definitions are known to run before external
	// scripts have registered.
	LIFO
)

func (o DequeueOrder) String() string {
	switch o {
	case FIFO:
		return "fifo"
	case LIFO:
		return "lifo"
	}
	return fmt.Sprintf("DequeueOrder(%d)", int(o))
}

// ParseDequeueOrder parses "fifo" or "lifo".
func ParseDequeueOrder(s string) (DequeueOrder, error) {
	switch s {
	case "fifo", "FIFO", "":
		return FIFO, nil
	case "lifo", "LIFO":
		return LIFO, nil
	}
	return FIFO, fmt.Errorf("unknown dequeue order %q", s)
}

// importQueue buffers registrations made by executing scripts until a
// script load completes and claims one.
type importQueue struct {
	order DequeueOrder
	items []*registration
}

func newImportQueue(order DequeueOrder) *importQueue {
	return &importQueue{order: order}
}

func (q *importQueue) Len() int {
	return len(q.items)
}

func (q *importQueue) Enqueue(r *registration) {
	q.items = append(q.items, r)
}

// Dequeue removes and returns the next registration per the queue's
// order, or nil when empty.
func (q *importQueue) Dequeue() *registration {
	if len(q.items) == 0 {
		return nil
	}
	var r *registration
	if q.order == LIFO {
		r = q.items[len(q.items)-1]
		q.items = q.items[:len(q.items)-1]
	} else {
		r = q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
	}
	return r
}

func (q *importQueue) Contains(r *registration) bool {
	for _, item := range q.items {
		if item == r {
			return true
		}
	}
	return false
}

// Remove deletes r and reports whether it was queued.
func (q *importQueue) Remove(r *registration) bool {
	for i, item := range q.items {
		if item == r {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}
