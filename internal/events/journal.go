package events

import (
	"context"
	"sort"
	"sync"

	"github.com/fairyhunter13/marketplace-ledger/internal/model"
)

// Journal keeps every published event in memory for the query surface.
type Journal struct {
	mu  sync.RWMutex
	evs []model.Event
}

// NewJournal returns an empty journal.
func NewJournal() *Journal { return &Journal{} }

// Publish appends ev.
func (j *Journal) Publish(_ context.Context, ev model.Event) error {
	j.mu.Lock()
	j.evs = append(j.evs, ev)
	j.mu.Unlock()
	return nil
}

// Since returns up to limit events with a sequence greater than after.
// A non-positive limit means no limit.
func (j *Journal) Since(after uint64, limit int) []model.Event {
	j.mu.RLock()
	defer j.mu.RUnlock()
	i := sort.Search(len(j.evs), func(i int) bool { return j.evs[i].Sequence > after })
	rest := j.evs[i:]
	if limit > 0 && len(rest) > limit {
		rest = rest[:limit]
	}
	out := make([]model.Event, len(rest))
	copy(out, rest)
	return out
}

// Len returns the number of journaled events.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.evs)
}
