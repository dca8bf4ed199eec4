package bufferpool

// fifoQueue is a fixed-capacity ring buffer of frame indices, ported
// from the original C buffer manager's fifoQ/fifoHead/fifoCount
// (original_source/Assign2/buffer_mgr.c). The teacher has no FIFO
// policy of its own — only RandomEvictor/BottomEvictor — so this is
// new code, written in the teacher's idiom (plain slice + head/count,
// no generics needed since frame indices are always int).
//
// spec.md §4.2 / §9: the queue records insertion order, not hits — a
// hit on an already-resident page never re-enqueues. Victim selection
// pops entries off the front; a pinned entry is dropped (not
// re-enqueued) and scanning continues, so pinned pages permanently
// lose their FIFO slot. This matches the original's documented
// behavior exactly, for deterministic eviction-order tests.
type fifoQueue struct {
	slots []int
	head  int
	count int
}

func newFIFOQueue(capacity int) *fifoQueue {
	return &fifoQueue{slots: make([]int, capacity)}
}

func (q *fifoQueue) enqueue(frameIdx int) {
	tail := (q.head + q.count) % len(q.slots)
	q.slots[tail] = frameIdx
	q.count++
}

// victim scans from the front, dropping (not re-enqueueing) any
// pinned entry, and returns the first unpinned one. It returns
// (0, false) if every enqueued entry is pinned.
func (q *fifoQueue) victim(pinned func(frameIdx int) bool) (int, bool) {
	scan := q.count
	for i := 0; i < scan; i++ {
		idx := q.slots[q.head]
		q.head = (q.head + 1) % len(q.slots)
		q.count--
		if !pinned(idx) {
			return idx, true
		}
	}
	return 0, false
}
