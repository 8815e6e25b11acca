package storage

import (
	"container/list"
	"sync"
)

const DefaultRecentSize = 5

// RecentQueue holds the last N distinct identifiers, most recent first.
// order keeps recency; index gives O(1) lookup for dedup-and-promote.
type RecentQueue struct {
	order    *list.List
	index    map[string]*list.Element
	capacity int
	mu       sync.Mutex
}

// NewRecentQueue creates a queue holding at most capacity identifiers.
// A capacity below 1 falls back to DefaultRecentSize.
func NewRecentQueue(capacity int) *RecentQueue {
	if capacity < 1 {
		capacity = DefaultRecentSize
	}
	return &RecentQueue{
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
		capacity: capacity,
	}
}

// Touch moves id to the front, inserting it if absent. When inserting into a
// full queue the tail is dropped first. Returns the contents front to back.
func (q *RecentQueue) Touch(id string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	if elem, found := q.index[id]; found {
		q.order.MoveToFront(elem)
		return q.itemsLocked()
	}

	if q.order.Len() >= q.capacity {
		q.dropTailLocked()
	}

	q.index[id] = q.order.PushFront(id)
	return q.itemsLocked()
}

func (q *RecentQueue) Items() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.itemsLocked()
}

func (q *RecentQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.order.Len()
}

func (q *RecentQueue) Capacity() int {
	return q.capacity
}

func (q *RecentQueue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.order.Init()
	q.index = make(map[string]*list.Element, q.capacity)
}

func (q *RecentQueue) dropTailLocked() {
	tail := q.order.Back()
	if tail == nil {
		return
	}
	q.order.Remove(tail)
	delete(q.index, tail.Value.(string))
}

func (q *RecentQueue) itemsLocked() []string {
	items := make([]string, 0, q.order.Len())
	for elem := q.order.Front(); elem != nil; elem = elem.Next() {
		items = append(items, elem.Value.(string))
	}
	return items
}
