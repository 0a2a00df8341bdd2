package cache

// recencyList is an intrusive doubly-linked list of entries in access order.
// The head is the most recently used entry, the tail the least.
// The list is not thread-safe; the owning Tier synchronizes access.
type recencyList[K comparable, V any] struct {
	head *entry[K, V]
	tail *entry[K, V]
	len  int
}

// pushFront links e as the most recently used entry.
func (l *recencyList[K, V]) pushFront(e *entry[K, V]) {
	e.prev = nil
	e.next = l.head
	if l.head != nil {
		l.head.prev = e
	} else {
		l.tail = e
	}
	l.head = e
	l.len++
}

// moveToFront marks e as the most recently used entry.
func (l *recencyList[K, V]) moveToFront(e *entry[K, V]) {
	if e == l.head {
		return
	}
	l.remove(e)
	l.pushFront(e)
}

// remove unlinks e.
func (l *recencyList[K, V]) remove(e *entry[K, V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		l.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		l.tail = e.prev
	}
	e.prev = nil
	e.next = nil
	l.len--
}

// back returns the least recently used entry, or nil.
func (l *recencyList[K, V]) back() *entry[K, V] {
	return l.tail
}

// reset empties the list without touching the entries.
func (l *recencyList[K, V]) reset() {
	l.head = nil
	l.tail = nil
	l.len = 0
}
