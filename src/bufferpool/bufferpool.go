// Package bufferpool implements the Buffer Manager: a fixed-capacity
// cache of pages from a single file, with pin/unpin, dirty tracking,
// and FIFO/LRU replacement. See spec.md §4.2.
package bufferpool

import (
	"sync"

	"go.uber.org/zap"

	"gitlab.com/dbkernel/pagestore/src/errcode"
	"gitlab.com/dbkernel/pagestore/src/storage"
)

// Strategy selects the replacement policy. LRUK is accepted but
// treated identically to LRU (spec.md §9): the original C enum
// exposes RS_LRU_K without ever implementing a distinct policy, and
// this resolves that the friendlier way — LRUK is a real value a
// client can request and later read back via Pool.Strategy(), rather
// than failing init outright.
type Strategy int

const (
	FIFO Strategy = iota
	LRU
	LRUK
)

func (s Strategy) String() string {
	switch s {
	case FIFO:
		return "FIFO"
	case LRU:
		return "LRU"
	case LRUK:
		return "LRU-K"
	default:
		return "unknown"
	}
}

// Frame is one buffer pool slot (spec.md §3).
type Frame struct {
	pageID   int
	buf      []byte
	dirty    bool
	pinCount int
}

// PageHandle is the client's view of a pinned page: valid only
// between a successful PinPage and the matching UnpinPage. Data
// borrows the frame's buffer directly; writes must be followed by
// MarkDirty to be persisted on eviction/flush (spec.md §3).
type PageHandle struct {
	PageNum int
	Data    []byte
}

// policy is the internal replacement-policy contract. FIFO and LRU
// are the only implementations (spec.md §1 non-goals), but the
// interface keeps pinPage/victim selection uniform between them.
type policy interface {
	onPin(frameIdx int, hit bool)
	onRemove(frameIdx int)
	victim(frames []*Frame) (int, bool)
}

type fifoPolicy struct {
	q *fifoQueue
}

func newFIFOPolicy(capacity int) *fifoPolicy {
	return &fifoPolicy{q: newFIFOQueue(capacity)}
}

func (p *fifoPolicy) onPin(frameIdx int, hit bool) {
	// spec.md §4.2: "A hit on an already-resident page does not
	// re-enqueue." Only newly-resident frames (misses) are enqueued.
	if !hit {
		p.q.enqueue(frameIdx)
	}
}

func (p *fifoPolicy) onRemove(int) {
	// Victims are popped off the queue during victim() itself; nothing
	// further to do here. Entries for frames that are cleared without
	// going through victim() (there are none in this implementation)
	// would otherwise leak a stale slot, but every removal in Pool goes
	// through victim() first.
}

func (p *fifoPolicy) victim(frames []*Frame) (int, bool) {
	return p.q.victim(func(idx int) bool {
		return frames[idx].pinCount > 0
	})
}

type lruPolicy struct {
	order *UniqueStack[int]
}

func newLRUPolicy() *lruPolicy {
	return &lruPolicy{order: NewUniqueStack[int]()}
}

func (p *lruPolicy) onPin(frameIdx int, _ bool) {
	// spec.md §4.2: "Every successful pin (hit or miss) moves the frame
	// to the head."
	p.order.Push(frameIdx)
}

func (p *lruPolicy) onRemove(frameIdx int) {
	_ = p.order.Delete(frameIdx)
}

func (p *lruPolicy) victim(frames []*Frame) (int, bool) {
	return p.order.FindEvictable(func(idx int) bool {
		return frames[idx].pinCount == 0
	})
}

// Pool is the in-memory frame pool over one open storage file
// (spec.md §3). A single mutex protects every operation; spec.md §5
// permits exactly this as the whole of the concurrency contract.
type Pool struct {
	mu sync.Mutex

	mgr *storage.Manager
	fh  *storage.FileHandle

	capacity int
	strategy Strategy
	frames   []*Frame
	byPageID map[int]int // pageID -> frame index, for O(1) hit lookup

	pol policy

	readIO  uint64
	writeIO uint64

	log *zap.SugaredLogger
}

// Option configures InitBufferPool beyond its required arguments.
type Option func(*Pool)

// WithLogger attaches a logger for eviction/flush/growth events. If
// omitted, a no-op logger is used.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(p *Pool) { p.log = l }
}

// InitBufferPool opens pageFile via mgr, allocates n empty frames, and
// initializes the chosen replacement structure (spec.md §4.2).
// stratData is reserved for future use and ignored for FIFO and LRU,
// matching the original contract.
func InitBufferPool(mgr *storage.Manager, pageFile string, n int, strategy Strategy, stratData any, opts ...Option) (*Pool, error) {
	fh, err := mgr.OpenPageFile(pageFile)
	if err != nil {
		return nil, err
	}

	frames := make([]*Frame, n)
	for i := range frames {
		frames[i] = &Frame{pageID: storage.NoPage, buf: make([]byte, storage.PageSize)}
	}

	p := &Pool{
		mgr:      mgr,
		fh:       fh,
		capacity: n,
		strategy: strategy,
		frames:   frames,
		byPageID: make(map[int]int, n),
		log:      zap.NewNop().Sugar(),
	}

	for _, o := range opts {
		o(p)
	}

	switch strategy {
	case FIFO:
		p.pol = newFIFOPolicy(n)
	case LRU, LRUK:
		if strategy == LRUK {
			p.log.Warn("LRU-K requested, falling back to LRU (no distinct LRU-K policy is implemented)")
		}
		p.pol = newLRUPolicy()
	default:
		p.pol = newLRUPolicy()
	}
	return p, nil
}

// Strategy reports the replacement policy the pool was initialized
// with, including LRUK even though it runs as LRU internally.
func (p *Pool) Strategy() Strategy {
	return p.strategy
}

// ShutdownBufferPool writes every resident, dirty, unpinned frame back
// to disk, closes the file, and releases the pool's memory. A dirty
// frame that is still pinned at shutdown is a client bug and is
// skipped rather than written (spec.md §4.2, §9).
func (p *Pool) ShutdownBufferPool() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.flushLocked(); err != nil {
		return err
	}
	if err := p.mgr.ClosePageFile(p.fh); err != nil {
		return err
	}

	p.frames = nil
	p.byPageID = nil
	return nil
}

// ForceFlushPool runs the same write loop as shutdown but does not
// close or free the pool; it clears the dirty flag on each frame it
// writes (spec.md §4.2).
func (p *Pool) ForceFlushPool() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked()
}

func (p *Pool) flushLocked() error {
	for _, f := range p.frames {
		if f.pageID != storage.NoPage && f.dirty && f.pinCount == 0 {
			if err := p.mgr.WriteBlock(f.pageID, p.fh, f.buf); err != nil {
				return err
			}
			p.writeIO++
			f.dirty = false
			p.log.Debugw("flushed dirty frame", "pageID", f.pageID)
		}
	}
	return nil
}

// PinPage implements the hit/miss lookup of spec.md §4.2: a hit bumps
// the pin count (and, for LRU, moves the frame to the head); a miss
// first tries an empty slot, then a policy victim, growing the file
// via EnsureCapacity if the requested page is beyond its current end.
func (p *Pool) PinPage(pageNum int) (*PageHandle, error) {
	if pageNum < 0 {
		return nil, errcode.New(errcode.ReadNonExistingPage, "pinPage", nil)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, ok := p.byPageID[pageNum]; ok {
		f := p.frames[idx]
		f.pinCount++
		p.pol.onPin(idx, true)
		return &PageHandle{PageNum: pageNum, Data: f.buf}, nil
	}

	freeIdx := -1
	for i, f := range p.frames {
		if f.pageID == storage.NoPage {
			freeIdx = i
			break
		}
	}

	var targetIdx int
	if freeIdx >= 0 {
		targetIdx = freeIdx
	} else {
		victimIdx, ok := p.pol.victim(p.frames)
		if !ok {
			return nil, errcode.NewNoVictim("pinPage")
		}
		victim := p.frames[victimIdx]
		if victim.dirty {
			if err := p.mgr.WriteBlock(victim.pageID, p.fh, victim.buf); err != nil {
				return nil, err
			}
			p.writeIO++
			p.log.Debugw("wrote back victim frame", "pageID", victim.pageID, "frame", victimIdx)
		}
		p.log.Debugw("evicted frame", "pageID", victim.pageID, "frame", victimIdx)
		delete(p.byPageID, victim.pageID)
		p.pol.onRemove(victimIdx)
		victim.pageID = storage.NoPage
		victim.dirty = false
		targetIdx = victimIdx
	}

	if pageNum >= p.fh.Total {
		if err := p.mgr.EnsureCapacity(pageNum+1, p.fh); err != nil {
			return nil, err
		}
		p.log.Debugw("grew page file to satisfy pin", "pageNum", pageNum, "newTotal", p.fh.Total)
	}

	f := p.frames[targetIdx]
	if err := p.mgr.ReadBlock(pageNum, p.fh, f.buf); err != nil {
		return nil, err
	}
	p.readIO++

	f.pageID = pageNum
	f.dirty = false
	f.pinCount = 1
	p.byPageID[pageNum] = targetIdx
	p.pol.onPin(targetIdx, false)

	return &PageHandle{PageNum: pageNum, Data: f.buf}, nil
}

// UnpinPage decrements the frame's pin count. Fails ReadNonExistingPage
// if the page is not resident or already at a zero pin count
// (spec.md §4.2).
func (p *Pool) UnpinPage(ph *PageHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.byPageID[ph.PageNum]
	if !ok {
		return errcode.New(errcode.ReadNonExistingPage, "unpinPage", nil)
	}
	f := p.frames[idx]
	if f.pinCount <= 0 {
		return errcode.New(errcode.ReadNonExistingPage, "unpinPage", nil)
	}
	f.pinCount--
	return nil
}

// MarkDirty sets the frame's dirty flag. Fails ReadNonExistingPage if
// the page is not resident (spec.md §4.2).
func (p *Pool) MarkDirty(ph *PageHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.byPageID[ph.PageNum]
	if !ok {
		return errcode.New(errcode.ReadNonExistingPage, "markDirty", nil)
	}
	p.frames[idx].dirty = true
	return nil
}

// ForcePage writes the frame's bytes (even if clean), clears dirty,
// and counts the write. Fails ReadNonExistingPage if not resident
// (spec.md §4.2).
func (p *Pool) ForcePage(ph *PageHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.byPageID[ph.PageNum]
	if !ok {
		return errcode.New(errcode.ReadNonExistingPage, "forcePage", nil)
	}
	f := p.frames[idx]
	if err := p.mgr.WriteBlock(f.pageID, p.fh, f.buf); err != nil {
		return err
	}
	p.writeIO++
	f.dirty = false
	return nil
}

// GetFrameContents returns a fresh slice of capacity page ids (-1 for
// empty slots), in frame index order (spec.md §4.2).
func (p *Pool) GetFrameContents() []int {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]int, p.capacity)
	for i, f := range p.frames {
		out[i] = f.pageID
	}
	return out
}

// GetDirtyFlags mirrors GetFrameContents' layout with dirty flags.
func (p *Pool) GetDirtyFlags() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]bool, p.capacity)
	for i, f := range p.frames {
		out[i] = f.dirty
	}
	return out
}

// GetFixCounts mirrors GetFrameContents' layout with pin counts.
func (p *Pool) GetFixCounts() []int {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]int, p.capacity)
	for i, f := range p.frames {
		out[i] = f.pinCount
	}
	return out
}

// GetNumReadIO returns the monotonically increasing read-I/O counter.
func (p *Pool) GetNumReadIO() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readIO
}

// GetNumWriteIO returns the monotonically increasing write-I/O counter.
func (p *Pool) GetNumWriteIO() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeIO
}
