package session

import "math/rand"

// Queue is an ordered sequence of pending entries. It carries no lock of
// its own; inside a Session the session mutex guards it.
type Queue struct {
	entries []QueueEntry
}

func (q *Queue) Len() int { return len(q.entries) }

// Enqueue appends entries in order.
func (q *Queue) Enqueue(entries ...QueueEntry) {
	q.entries = append(q.entries, entries...)
}

// DequeueFront pops the head entry. The second return is false when the
// queue is empty.
func (q *Queue) DequeueFront() (QueueEntry, bool) {
	if len(q.entries) == 0 {
		return QueueEntry{}, false
	}
	head := q.entries[0]
	q.entries = q.entries[1:]
	return head, true
}

// RemoveAt removes the entry at a 1-based position. Out-of-range positions
// return false and leave the queue untouched.
func (q *Queue) RemoveAt(pos int) (QueueEntry, bool) {
	if pos < 1 || pos > len(q.entries) {
		return QueueEntry{}, false
	}
	i := pos - 1
	removed := q.entries[i]
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	return removed, true
}

// Shuffle randomizes the order in place. Returns false without touching
// anything when there are fewer than two entries.
func (q *Queue) Shuffle() bool {
	if len(q.entries) < 2 {
		return false
	}
	rand.Shuffle(len(q.entries), func(i, j int) {
		q.entries[i], q.entries[j] = q.entries[j], q.entries[i]
	})
	return true
}

// RemoveLastMatch drops the newest entry with the given query, scanning
// from the tail. Returns false when no entry matches.
func (q *Queue) RemoveLastMatch(query string) bool {
	for i := len(q.entries) - 1; i >= 0; i-- {
		if q.entries[i].Query == query {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Clear drops every entry.
func (q *Queue) Clear() {
	q.entries = nil
}

// Snapshot copies the current entries for display.
func (q *Queue) Snapshot() []QueueEntry {
	out := make([]QueueEntry, len(q.entries))
	copy(out, q.entries)
	return out
}
