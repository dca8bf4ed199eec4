package bufferpool

import (
	"bytes"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/dbkernel/pagestore/src/errcode"
	"gitlab.com/dbkernel/pagestore/src/storage"
)

func newTestPool(t *testing.T, capacity int, strategy Strategy) (*Pool, *storage.Manager) {
	t.Helper()
	fs := afero.NewMemMapFs()
	mgr := storage.NewManager(fs)
	require.NoError(t, mgr.CreatePageFile("pool.db"))
	pool, err := InitBufferPool(mgr, "pool.db", capacity, strategy, nil)
	require.NoError(t, err)
	return pool, mgr
}

func fill(b []byte, pattern byte) {
	for i := range b {
		b[i] = pattern
	}
}

// S3 — FIFO eviction order.
func TestFIFOEvictionOrder(t *testing.T) {
	pool, _ := newTestPool(t, 3, FIFO)

	for _, pageNum := range []int{1, 2, 3, 4} {
		ph, err := pool.PinPage(pageNum)
		require.NoError(t, err)
		require.NoError(t, pool.UnpinPage(ph))
	}

	assert.Equal(t, []int{4, 2, 3}, pool.GetFrameContents())
}

// S4 — LRU eviction order.
func TestLRUEvictionOrder(t *testing.T) {
	pool, _ := newTestPool(t, 3, LRU)

	for _, pageNum := range []int{1, 2, 3, 1, 4} {
		ph, err := pool.PinPage(pageNum)
		require.NoError(t, err)
		require.NoError(t, pool.UnpinPage(ph))
	}

	assert.Equal(t, []int{1, 4, 3}, pool.GetFrameContents())
}

// S5 — dirty flush.
func TestDirtyFlushRoundTrip(t *testing.T) {
	pool, mgr := newTestPool(t, 3, LRU)

	ph, err := pool.PinPage(0)
	require.NoError(t, err)
	fill(ph.Data, 0xAB)
	require.NoError(t, pool.MarkDirty(ph))
	require.NoError(t, pool.UnpinPage(ph))

	// Evict page 0 via three other pins.
	for _, pageNum := range []int{1, 2, 3} {
		p, err := pool.PinPage(pageNum)
		require.NoError(t, err)
		require.NoError(t, pool.UnpinPage(p))
	}

	assert.EqualValues(t, 1, pool.GetNumWriteIO())

	fh, err := mgr.OpenPageFile("pool.db")
	require.NoError(t, err)
	out := make([]byte, storage.PageSize)
	require.NoError(t, mgr.ReadBlock(0, fh, out))

	want := make([]byte, storage.PageSize)
	fill(want, 0xAB)
	assert.True(t, bytes.Equal(want, out))
}

// S6 — pin all, then miss.
func TestPinAllThenMissFails(t *testing.T) {
	pool, _ := newTestPool(t, 3, FIFO)

	for _, pageNum := range []int{1, 2, 3} {
		_, err := pool.PinPage(pageNum)
		require.NoError(t, err)
	}

	before := pool.GetNumReadIO()
	_, err := pool.PinPage(4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errcode.ErrReadNonExistingPage))
	assert.True(t, errors.Is(err, errcode.ErrNoFreeBuffer))
	assert.Equal(t, before, pool.GetNumReadIO())
}

// Invariant 5: a page pinned and never unpinned is never evicted.
func TestPinnedPageNeverEvicted(t *testing.T) {
	pool, _ := newTestPool(t, 3, LRU)

	pinned, err := pool.PinPage(0)
	require.NoError(t, err)

	for _, pageNum := range []int{1, 2} {
		ph, err := pool.PinPage(pageNum)
		require.NoError(t, err)
		require.NoError(t, pool.UnpinPage(ph))
	}

	contents := pool.GetFrameContents()
	assert.Contains(t, contents, 0)
	require.NoError(t, pool.UnpinPage(pinned))
}

func TestUnpinNonResidentPageFails(t *testing.T) {
	pool, _ := newTestPool(t, 2, FIFO)
	err := pool.UnpinPage(&PageHandle{PageNum: 99})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errcode.ErrReadNonExistingPage))
}

func TestMarkDirtyNonResidentPageFails(t *testing.T) {
	pool, _ := newTestPool(t, 2, FIFO)
	err := pool.MarkDirty(&PageHandle{PageNum: 99})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errcode.ErrReadNonExistingPage))
}

func TestShutdownFlushesDirtyUnpinnedFrames(t *testing.T) {
	pool, mgr := newTestPool(t, 2, LRU)

	ph, err := pool.PinPage(0)
	require.NoError(t, err)
	fill(ph.Data, 0xCD)
	require.NoError(t, pool.MarkDirty(ph))
	require.NoError(t, pool.UnpinPage(ph))

	require.NoError(t, pool.ShutdownBufferPool())

	fh, err := mgr.OpenPageFile("pool.db")
	require.NoError(t, err)
	out := make([]byte, storage.PageSize)
	require.NoError(t, mgr.ReadBlock(0, fh, out))

	want := make([]byte, storage.PageSize)
	fill(want, 0xCD)
	assert.True(t, bytes.Equal(want, out))
}

func TestShutdownSkipsDirtyPinnedFrame(t *testing.T) {
	pool, mgr := newTestPool(t, 2, LRU)

	ph, err := pool.PinPage(0)
	require.NoError(t, err)
	fill(ph.Data, 0xEF)
	require.NoError(t, pool.MarkDirty(ph))
	// Deliberately not unpinned: a dirty pinned frame at shutdown is a
	// client bug, skipped rather than written (spec.md §4.2, §9).

	require.NoError(t, pool.ShutdownBufferPool())

	fh, err := mgr.OpenPageFile("pool.db")
	require.NoError(t, err)
	out := make([]byte, storage.PageSize)
	require.NoError(t, mgr.ReadBlock(0, fh, out))
	assert.True(t, bytes.Equal(make([]byte, storage.PageSize), out))
}

func TestForcePageWritesEvenWhenClean(t *testing.T) {
	pool, _ := newTestPool(t, 2, FIFO)

	ph, err := pool.PinPage(0)
	require.NoError(t, err)
	before := pool.GetNumWriteIO()
	require.NoError(t, pool.ForcePage(ph))
	assert.Equal(t, before+1, pool.GetNumWriteIO())
	assert.False(t, pool.GetDirtyFlags()[0])
}

func TestLRUKFallsBackToLRU(t *testing.T) {
	pool, _ := newTestPool(t, 3, LRUK)
	assert.Equal(t, LRUK, pool.Strategy())

	for _, pageNum := range []int{1, 2, 3, 1, 4} {
		ph, err := pool.PinPage(pageNum)
		require.NoError(t, err)
		require.NoError(t, pool.UnpinPage(ph))
	}
	// Same eviction order as LRU (S4), since LRUK runs as LRU internally.
	assert.Equal(t, []int{1, 4, 3}, pool.GetFrameContents())
}
