// Package naming allocates output filenames of the form
// {date}-{typeName}-{counter}.pdf.
//
// Counters live in an Allocator owned by a single scrape run. A new run
// starts every counter at zero again, so re-running against the same portal
// data produces the same names and overwrites files from the previous run.
package naming

import (
	"fmt"
	"sync"

	"wellbin/pkg/models"
)

type key struct {
	typeTag string
	date    string
}

type Allocator struct {
	counters map[key]int
	mu       sync.Mutex
}

func NewAllocator() *Allocator {
	return &Allocator{counters: make(map[key]int)}
}

// Generate returns the next filename for the (typeTag, date) pair and
// advances its counter.
func (a *Allocator) Generate(typeTag, date string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	k := key{typeTag: typeTag, date: date}
	n := a.counters[k]
	a.counters[k] = n + 1

	st, _ := models.LookupStudyType(typeTag)
	return fmt.Sprintf("%s-%s-%d.pdf", date, st.Name, n)
}

// Count reports how many names were handed out for the pair.
func (a *Allocator) Count(typeTag, date string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counters[key{typeTag: typeTag, date: date}]
}
