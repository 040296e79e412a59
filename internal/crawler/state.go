package crawler

import (
	"sort"
	"sync"
	"time"

	"github.com/arvinsingh/fictech-harvester/internal/checkpoint"
	"github.com/arvinsingh/fictech-harvester/internal/model"
)

// state is the shared mutable state of one run: visited sets, the category
// frontier, accepted entries, and counters. One mutex guards all of it;
// every update is small, so contention stays low even with many workers.
//
// Visited marking happens at enqueue time, never at processing time. A unit
// present in a visited set is scheduled or done, so it is never enqueued
// again, which keeps the sets monotonic and the output free of duplicates.
type state struct {
	mu sync.Mutex

	runID        string
	runStartedAt time.Time

	visitedCategories map[string]bool
	visitedPages      map[string]bool

	// categories is the FIFO frontier of categories awaiting expansion.
	// Only the producer pops from it; workers never touch it.
	categories []model.FrontierItem

	// requeued collects units a shutdown interrupted mid-processing. They
	// are already marked visited, so they must re-enter the frontier through
	// the checkpoint or their pages would be lost on resume.
	requeued []model.FrontierItem

	entries    []model.DatasetEntry
	rejections map[model.RejectReason]int

	failedFetches   int
	entriesEmitted  int
	sinceCheckpoint int
}

func newState() *state {
	return &state{
		visitedCategories: make(map[string]bool),
		visitedPages:      make(map[string]bool),
		rejections:        make(map[model.RejectReason]int),
	}
}

// markCategory records the category as scheduled. It returns false when the
// category was already visited.
func (st *state) markCategory(name string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.visitedCategories[name] {
		return false
	}
	st.visitedCategories[name] = true
	return true
}

// markPage records the page as scheduled. It returns false when the page
// was already visited.
func (st *state) markPage(name string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.visitedPages[name] {
		return false
	}
	st.visitedPages[name] = true
	return true
}

func (st *state) pushCategory(item model.FrontierItem) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.categories = append(st.categories, item)
}

// nextCategory pops the oldest pending category.
func (st *state) nextCategory() (model.FrontierItem, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.categories) == 0 {
		return model.FrontierItem{}, false
	}
	item := st.categories[0]
	st.categories = st.categories[1:]
	return item, true
}

// requeueCategory puts an interrupted category back at the head of the
// frontier so the next run re-expands it. Already-visited members are
// skipped on re-expansion, so no duplicates result.
func (st *state) requeueCategory(item model.FrontierItem) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.categories = append([]model.FrontierItem{item}, st.categories...)
}

// requeue records an interrupted unit for the final checkpoint.
func (st *state) requeue(item model.FrontierItem) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.requeued = append(st.requeued, item)
}

func (st *state) countRejection(reason model.RejectReason) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.rejections[reason]++
}

func (st *state) countFetchFailure() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.failedFetches++
}

// admit records an accepted entry. When checkpointInterval entries have
// accumulated since the last snapshot, it returns a checkpoint snapshot
// taken under the same lock, so the persisted entry count always matches
// the accepted set at that instant. reachedMax reports whether the entry
// cap was hit by this admission.
func (st *state) admit(entry model.DatasetEntry, checkpointInterval, maxEntries int, q *queue) (snap *checkpoint.State, reachedMax bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.entries = append(st.entries, entry)
	st.entriesEmitted++
	st.sinceCheckpoint++

	if st.sinceCheckpoint >= checkpointInterval {
		st.sinceCheckpoint = 0
		snap = st.snapshotLocked(q)
	}
	reachedMax = maxEntries > 0 && st.entriesEmitted >= maxEntries
	return snap, reachedMax
}

// snapshot builds a checkpoint of the current progress.
func (st *state) snapshot(q *queue) *checkpoint.State {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snapshotLocked(q)
}

func (st *state) snapshotLocked(q *queue) *checkpoint.State {
	pending := q.Snapshot()
	frontier := make([]model.FrontierItem, 0, len(st.categories)+len(st.requeued)+len(pending))
	frontier = append(frontier, st.categories...)
	frontier = append(frontier, st.requeued...)
	frontier = append(frontier, pending...)

	return &checkpoint.State{
		RunID:             st.runID,
		VisitedCategories: sortedKeys(st.visitedCategories),
		VisitedPages:      sortedKeys(st.visitedPages),
		Frontier:          frontier,
		EntriesEmitted:    st.entriesEmitted,
		RunStartedAt:      st.runStartedAt,
	}
}

func (st *state) entriesSnapshot() []model.DatasetEntry {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]model.DatasetEntry, len(st.entries))
	copy(out, st.entries)
	return out
}

func (st *state) buildStats() *model.RunStats {
	st.mu.Lock()
	defer st.mu.Unlock()

	stats := &model.RunStats{
		Rejections:        make(map[model.RejectReason]int, len(st.rejections)),
		CategoriesVisited: len(st.visitedCategories),
		PagesVisited:      len(st.visitedPages),
		FailedFetches:     st.failedFetches,
		StartedAt:         st.runStartedAt,
		FinishedAt:        time.Now().UTC(),
	}
	for reason, n := range st.rejections {
		stats.Rejections[reason] = n
	}
	stats.ComputeAverages(st.entries)
	return stats
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
