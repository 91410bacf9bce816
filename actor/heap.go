// Grounded on original_source/crates/snow-rt/src/actor/heap.rs: a per-actor
// bump allocator built from page-sized chunks, reset wholesale on
// termination. Page *reuse* across resets is new here: rather than letting
// Go's GC reclaim and re-allocate a fresh []byte per actor (expensive under
// spec.md §8 S8's 100k-spawn churn), freed pages go back into a bounded LRU
// pool (github.com/hashicorp/golang-lru/v2, also used for bounded caching by
// webitel-im-delivery-service in the example pack) keyed by size class.
package actor

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultPageSize is the default per-actor heap page size (spec.md §3/§6:
// "page-sized chunks (default 64 KiB)").
const DefaultPageSize = 64 * 1024

// DefaultStackSize documents the coroutine stack size spec.md assigns to
// each actor. Go goroutines don't take a fixed stack size argument; this
// constant exists for ABI parity (see SPEC_FULL.md) and is not otherwise
// consumed.
const DefaultStackSize = 64 * 1024

// pagePoolCapacity bounds how many standard-size pages are kept per size
// class; pagePoolSizeClasses bounds the number of distinct size-class keys
// the LRU tracks. Oversized pages (from a single allocation bigger than a
// page) are never pooled.
const (
	pagePoolCapacity    = 256
	pagePoolSizeClasses = 8
)

var globalPagePool = newPagePool()

type pagePool struct {
	mu    sync.Mutex
	cache *lru.Cache[int, [][]byte]
}

func newPagePool() *pagePool {
	c, err := lru.New[int, [][]byte](pagePoolSizeClasses)
	if err != nil {
		// lru.New only errors on a non-positive size; the constant above is
		// always positive, so this is unreachable in practice.
		panic(err)
	}
	return &pagePool{cache: c}
}

// get returns a zeroed page of exactly size bytes, reusing a pooled page of
// that exact size when one is available.
func (pp *pagePool) get(size int) []byte {
	pp.mu.Lock()
	if pages, ok := pp.cache.Get(size); ok && len(pages) > 0 {
		page := pages[len(pages)-1]
		pages = pages[:len(pages)-1]
		if len(pages) == 0 {
			pp.cache.Remove(size)
		} else {
			pp.cache.Add(size, pages)
		}
		pp.mu.Unlock()
		for i := range page {
			page[i] = 0
		}
		return page
	}
	pp.mu.Unlock()
	return make([]byte, size)
}

// put returns a page to the pool for reuse, bounded by pagePoolCapacity
// pages per size class.
func (pp *pagePool) put(page []byte) {
	if len(page) != DefaultPageSize {
		// Only standard-size pages are worth pooling; oversized pages from a
		// single large allocation are left for the Go GC.
		return
	}
	pp.mu.Lock()
	defer pp.mu.Unlock()
	pages, _ := pp.cache.Get(len(page))
	if len(pages) >= pagePoolCapacity {
		return
	}
	pp.cache.Add(len(page), append(pages, page))
}

// ActorHeap is a per-actor bump allocator built from page-sized chunks. It
// owns its pages, allocates by bumping an offset, and never frees individual
// objects; Reset reclaims everything at once (actor termination, or a future
// mark-compact GC pass hung off CompactHook).
type ActorHeap struct {
	// mu guards every field below. spec.md §4.1/§5 describes the heap as
	// single-writer, owned by the process's worker while the PCB lock is
	// held — but message delivery (runtime.go's deliverBuffer) deep-copies
	// into the *receiver's* heap from whichever goroutine is sending, so
	// two concurrent senders (or a sender racing the owning process's own
	// exit-time Reset) need their own lock rather than relying on callers
	// to serialize via the PCB.
	mu     sync.Mutex
	pages  [][]byte
	offset int
	total  int

	// CompactHook, if set, is invoked by TriggerGC when total crosses
	// GCThreshold. Left nil by default: spec.md §4.2/§9 explicitly permits
	// deferring the real collector and shipping an empty hook, since nothing
	// else in the runtime may depend on collection happening.
	CompactHook func(h *ActorHeap)
	GCThreshold int
}

// NewActorHeap creates an empty per-actor heap. The first page is allocated
// lazily on first Alloc.
func NewActorHeap() *ActorHeap {
	return &ActorHeap{GCThreshold: DefaultPageSize * 16}
}

// Alloc bump-allocates size bytes aligned to align (align must be a power of
// two; 0 means unaligned) and returns a zeroed slice backed by the heap's
// current page.
func (h *ActorHeap) Alloc(size, align int) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	if align <= 0 {
		align = 1
	}
	if len(h.pages) == 0 {
		h.pages = append(h.pages, globalPagePool.get(DefaultPageSize))
		h.offset = 0
	}

	current := h.pages[len(h.pages)-1]
	aligned := (h.offset + align - 1) &^ (align - 1)

	if aligned+size <= len(current) {
		h.offset = aligned + size
		h.total += size
		return current[aligned : aligned+size : aligned+size]
	}

	newSize := DefaultPageSize
	if size > DefaultPageSize {
		newSize = size + align
	}
	var page []byte
	if newSize == DefaultPageSize {
		page = globalPagePool.get(DefaultPageSize)
	} else {
		page = make([]byte, newSize)
	}
	h.pages = append(h.pages, page)
	h.offset = size
	h.total += size
	return page[:size:size]
}

// Reset drops all pages (returning standard-size ones to the shared pool)
// and zeroes the heap's accounting, reclaiming everything in one shot.
func (h *ActorHeap) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, page := range h.pages {
		globalPagePool.put(page)
	}
	h.pages = nil
	h.offset = 0
	h.total = 0
}

// TotalBytes reports the number of bytes bump-allocated since the last
// Reset; used as the GC-trigger heuristic spec.md §4.2 describes.
func (h *ActorHeap) TotalBytes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

// TriggerGC runs CompactHook if total bytes have crossed GCThreshold. It is
// a no-op when CompactHook is nil (the default), per spec.md §4.2/§9.
func (h *ActorHeap) TriggerGC() {
	h.mu.Lock()
	hook := h.CompactHook
	trigger := hook != nil && h.total >= h.GCThreshold
	h.mu.Unlock()
	if trigger {
		hook(h)
	}
}

// MessageBuffer is the serialized form of a message payload, produced by the
// sender's codec and deep-copied into the receiver's ActorHeap on delivery
// (spec.md §4.3 step 1, §9: "deep copy uses the receiver's allocator").
type MessageBuffer struct {
	Data    []byte
	TypeTag uint64
}

// NewMessageBuffer wraps pre-encoded bytes with their type tag.
func NewMessageBuffer(data []byte, typeTag uint64) MessageBuffer {
	return MessageBuffer{Data: data, TypeTag: typeTag}
}

// DeepCopyToHeap allocates space in h, copies this buffer's bytes into it,
// and returns the copy. An empty buffer returns nil, matching snow-rt's
// MessageBuffer::deep_copy_to_heap behavior for zero-length payloads.
func (b MessageBuffer) DeepCopyToHeap(h *ActorHeap) []byte {
	if len(b.Data) == 0 {
		return nil
	}
	dst := h.Alloc(len(b.Data), 8)
	copy(dst, b.Data)
	return dst
}
