// SPDX-License-Identifier: AGPL-3.0-or-later

// Package audioindex implements the Audio-Cluster Index (C3): HDBSCAN
// cluster labels plus a brute-force Euclidean KNN search over dense audio
// embeddings, with cluster-scoped and global query modes. Per-cluster
// sub-indices are built lazily, coalesced with singleflight so concurrent
// callers share one build, and held in a bounded LRU.
package audioindex

import (
	"container/heap"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sonora-audio/sonora/internal/metrics"
	"github.com/sonora-audio/sonora/internal/recommend/artifacts"
)

// Neighbor is one result of a KNN query (spec §4.3).
type Neighbor struct {
	TrackID  artifacts.TrackRef
	Distance float64
}

// NotFoundError reports that a query named a track_id outside the active index.
type NotFoundError struct {
	TrackID artifacts.TrackRef
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("audioindex: track %q not found", e.TrackID)
}

// Handle is a read-only, shared-immutable view over one loaded audio
// variant, plus mutable-but-internally-synchronized lazy per-cluster caches.
// A Handle is safe for concurrent use; it is what the Model Registry (C5)
// hands out to readers.
type Handle struct {
	variant    *artifacts.AudioVariant
	rowByTrack map[artifacts.TrackRef]int

	clusterRows map[int][]int // cluster label -> row indices, precomputed once at build (cheap, O(N))

	clusters   *clusterLRU
	building   singleflight.Group
	maxPerCall int // hard ceiling on k to bound brute-force cost per call
}

// NewHandle builds a Handle over variant. maxClusterCacheSize bounds how
// many per-cluster sub-indices stay warm in memory at once (spec §5).
func NewHandle(variant *artifacts.AudioVariant, maxClusterCacheSize int) *Handle {
	rowByTrack := make(map[artifacts.TrackRef]int, len(variant.TrackIDs))
	for i, id := range variant.TrackIDs {
		rowByTrack[id] = i
	}

	clusterRows := make(map[int][]int)
	for row, label := range variant.ClusterLabels {
		clusterRows[label] = append(clusterRows[label], row)
	}

	if maxClusterCacheSize <= 0 {
		maxClusterCacheSize = 32
	}

	return &Handle{
		variant:     variant,
		rowByTrack:  rowByTrack,
		clusterRows: clusterRows,
		clusters:    newClusterLRU(maxClusterCacheSize),
		maxPerCall:  10000,
	}
}

// Descriptor returns the variant descriptor this handle serves.
func (h *Handle) Descriptor() artifacts.VariantDescriptor {
	return h.variant.Descriptor
}

// ClusterOf returns the cluster label of trackID, or false if unknown.
func (h *Handle) ClusterOf(trackID artifacts.TrackRef) (int, bool) {
	row, ok := h.rowByTrack[trackID]
	if !ok {
		return 0, false
	}
	return h.variant.ClusterLabels[row], true
}

// KNNByTrack returns the k nearest neighbors of trackID across the whole
// variant (global search), excluding trackID itself (spec §4.3).
func (h *Handle) KNNByTrack(trackID artifacts.TrackRef, k int) ([]Neighbor, error) {
	row, ok := h.rowByTrack[trackID]
	if !ok {
		return nil, &NotFoundError{TrackID: trackID}
	}
	allRows := make([]int, h.variant.Embeddings.Rows)
	for i := range allRows {
		allRows[i] = i
	}
	return h.knnWithinRows(row, allRows, k), nil
}

// KNNClusterScoped restricts the search to rows sharing trackID's cluster
// label. It falls back to global search when the track is in the noise
// cluster (-1) or the cluster has fewer than k+1 members (spec §4.3).
func (h *Handle) KNNClusterScoped(trackID artifacts.TrackRef, k int) ([]Neighbor, error) {
	row, ok := h.rowByTrack[trackID]
	if !ok {
		return nil, &NotFoundError{TrackID: trackID}
	}
	label := h.variant.ClusterLabels[row]
	if label == -1 {
		return h.KNNByTrack(trackID, k)
	}

	sub, err := h.clusterSubIndex(label)
	if err != nil {
		// IndexError: query falls back to global (spec §4.3 failure semantics).
		return h.KNNByTrack(trackID, k)
	}
	if len(sub.rows) < k+1 {
		return h.KNNByTrack(trackID, k)
	}
	return h.knnWithinRows(row, sub.rows, k), nil
}

// clusterSubIndex returns the (possibly cached) row set for a cluster
// label, building it through a singleflight call so concurrent callers for
// the same label coalesce onto one build (spec §4.3, §5).
func (h *Handle) clusterSubIndex(label int) (*clusterSubIndex, error) {
	if sub, ok := h.clusters.get(label); ok {
		return sub, nil
	}

	key := fmt.Sprintf("%d", label)
	v, err, _ := h.building.Do(key, func() (interface{}, error) {
		if sub, ok := h.clusters.get(label); ok {
			return sub, nil
		}
		start := time.Now()
		rows, ok := h.clusterRows[label]
		if !ok {
			return nil, &IndexError{Reason: "unknown cluster label"}
		}
		sub := &clusterSubIndex{rows: rows}
		h.clusters.put(label, sub)
		variant := h.variant.Descriptor.Name
		metrics.AudioIndexBuildDuration.WithLabelValues(variant).Observe(time.Since(start).Seconds())
		metrics.AudioIndexClustersLoaded.WithLabelValues(variant).Set(float64(h.clusters.size()))
		return sub, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*clusterSubIndex), nil
}

// IndexError reports an internal neighbor-index build failure (spec §7).
type IndexError struct {
	Reason string
}

func (e *IndexError) Error() string {
	return "audioindex: " + e.Reason
}

// knnWithinRows computes brute-force Euclidean KNN of queryRow among
// candidateRows (excluding queryRow itself), tie-broken by ascending row
// index (spec §4.3).
func (h *Handle) knnWithinRows(queryRow int, candidateRows []int, k int) []Neighbor {
	if k > h.maxPerCall {
		k = h.maxPerCall
	}
	query := h.variant.Embeddings.Row(queryRow)

	pq := make(farHeap, 0, k+1)
	heap.Init(&pq)

	for _, row := range candidateRows {
		if row == queryRow {
			continue
		}
		d := euclidean(query, h.variant.Embeddings.Row(row))
		entry := heapEntry{row: row, distance: d}
		if pq.Len() < k {
			heap.Push(&pq, entry)
		} else if better(entry, pq[0]) {
			heap.Pop(&pq)
			heap.Push(&pq, entry)
		}
	}

	entries := make([]heapEntry, pq.Len())
	copy(entries, pq)
	sortEntries(entries)

	out := make([]Neighbor, len(entries))
	for i, e := range entries {
		out[i] = Neighbor{TrackID: h.variant.TrackIDs[e.row], Distance: e.distance}
	}
	return out
}

// better reports whether a should be kept over b when the max-heap is full:
// a is "better" (closer) if its distance is smaller, tie-broken by smaller
// row index so the heap evicts the farthest/highest-row-index entry first.
func better(a, b heapEntry) bool {
	if a.distance != b.distance {
		return a.distance < b.distance
	}
	return a.row < b.row
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// sortEntries sorts ascending by (distance, row) — the tie-break policy
// spec §4.3 requires for the final result ordering.
func sortEntries(entries []heapEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && better(entries[j], entries[j-1]); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

// heapEntry is one candidate held in the bounded max-heap used to track the
// k closest rows seen so far.
type heapEntry struct {
	row      int
	distance float64
}

// farHeap is a max-heap by distance (ties broken by larger row index first)
// so the farthest candidate is always at the root and gets evicted when a
// closer one arrives.
type farHeap []heapEntry

func (f farHeap) Len() int { return len(f) }
func (f farHeap) Less(i, j int) bool {
	if f[i].distance != f[j].distance {
		return f[i].distance > f[j].distance
	}
	return f[i].row > f[j].row
}
func (f farHeap) Swap(i, j int) { f[i], f[j] = f[j], f[i] }
func (f *farHeap) Push(x interface{}) {
	*f = append(*f, x.(heapEntry))
}
func (f *farHeap) Pop() interface{} {
	old := *f
	n := len(old)
	item := old[n-1]
	*f = old[:n-1]
	return item
}

// clusterSubIndex is the lazily-built row set for one cluster label.
type clusterSubIndex struct {
	rows []int
}

// clusterLRU is a thread-safe, bounded, doubly-linked-list LRU cache
// mapping cluster label -> *clusterSubIndex, adapted from this codebase's
// general-purpose LRU cache design (same O(1) get/put/evict shape)
// generalized from string keys and time.Time values to int cluster labels
// and sub-index pointers.
type clusterLRU struct {
	mu       sync.Mutex
	capacity int
	items    map[int]*lruNode
	head     *lruNode // most recently used
	tail     *lruNode // least recently used
}

type lruNode struct {
	key   int
	value *clusterSubIndex
	prev  *lruNode
	next  *lruNode
}

func newClusterLRU(capacity int) *clusterLRU {
	return &clusterLRU{capacity: capacity, items: make(map[int]*lruNode)}
}

func (c *clusterLRU) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *clusterLRU) get(key int) (*clusterSubIndex, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	node, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(node)
	return node.value, true
}

func (c *clusterLRU) put(key int, value *clusterSubIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.items[key]; ok {
		node.value = value
		c.moveToFront(node)
		return
	}

	node := &lruNode{key: key, value: value}
	c.items[key] = node
	c.pushFront(node)

	if len(c.items) > c.capacity {
		c.evictTail()
	}
}

func (c *clusterLRU) pushFront(node *lruNode) {
	node.prev = nil
	node.next = c.head
	if c.head != nil {
		c.head.prev = node
	}
	c.head = node
	if c.tail == nil {
		c.tail = node
	}
}

func (c *clusterLRU) moveToFront(node *lruNode) {
	if c.head == node {
		return
	}
	c.unlink(node)
	c.pushFront(node)
}

func (c *clusterLRU) unlink(node *lruNode) {
	if node.prev != nil {
		node.prev.next = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	}
	if c.tail == node {
		c.tail = node.prev
	}
	if c.head == node {
		c.head = node.next
	}
}

func (c *clusterLRU) evictTail() {
	if c.tail == nil {
		return
	}
	evicted := c.tail
	c.unlink(evicted)
	delete(c.items, evicted.key)
}
