package projection

import (
	"sort"
	"time"

	"pitloader/pkg/contracts/domain"
)

// Index is the event history of one asset ordered by knowledge date. When
// several records share a knowledge date only the last supplied survives.
type Index struct {
	knowledge []time.Time
	events    []domain.EventRecord
}

// NewIndex builds an index from records in arrival order. The input slice
// is not modified.
func NewIndex(events []domain.EventRecord) *Index {
	sorted := make([]domain.EventRecord, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].KnowledgeDate.Equal(sorted[j].KnowledgeDate) {
			return sorted[i].KnowledgeDate.Before(sorted[j].KnowledgeDate)
		}
		return sorted[i].Seq < sorted[j].Seq
	})

	ix := &Index{
		knowledge: make([]time.Time, 0, len(sorted)),
		events:    make([]domain.EventRecord, 0, len(sorted)),
	}
	for _, e := range sorted {
		n := len(ix.events)
		if n > 0 && ix.knowledge[n-1].Equal(e.KnowledgeDate) {
			ix.events[n-1] = e
			continue
		}
		ix.knowledge = append(ix.knowledge, e.KnowledgeDate)
		ix.events = append(ix.events, e)
	}
	return ix
}

// Len returns the number of distinct knowledge dates
func (ix *Index) Len() int { return len(ix.events) }

// Events returns the surviving records in knowledge order
func (ix *Index) Events() []domain.EventRecord {
	out := make([]domain.EventRecord, len(ix.events))
	copy(out, ix.events)
	return out
}

// AsOf returns the record with the latest knowledge date not after day
func (ix *Index) AsOf(day time.Time) (domain.EventRecord, bool) {
	i := ix.search(domain.TruncateDay(day))
	if i < 0 {
		return domain.EventRecord{}, false
	}
	return ix.events[i], true
}

// search returns the position of the last record known on or before day
func (ix *Index) search(day time.Time) int {
	return sort.Search(len(ix.knowledge), func(i int) bool {
		return ix.knowledge[i].After(day)
	}) - 1
}

// cursor walks an index forward over ascending days
type cursor struct {
	ix  *Index
	pos int
}

func (ix *Index) cursor() *cursor {
	return &cursor{ix: ix, pos: -1}
}

// advance moves to day, which must not precede the previous call
func (c *cursor) advance(day time.Time) (domain.EventRecord, bool) {
	for c.pos+1 < len(c.ix.knowledge) && !c.ix.knowledge[c.pos+1].After(day) {
		c.pos++
	}
	if c.pos < 0 {
		return domain.EventRecord{}, false
	}
	return c.ix.events[c.pos], true
}
