package report

import (
	"sync"
	"time"

	"github.com/pb33f/pagecycle/motor/model"
)

// Aggregator accumulates samples for one run. Pages keep the order their
// first sample was recorded in, samples keep recording order.
type Aggregator struct {
	mu      sync.Mutex
	pages   []*model.PageSamples
	byName  map[string]*model.PageSamples
	ccTotal float64
	hasCC   bool
	now     func() time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		byName: make(map[string]*model.PageSamples),
		now:    time.Now,
	}
}

func (a *Aggregator) RecordTiming(page string, sample model.Sample) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ps, ok := a.byName[page]
	if !ok {
		ps = &model.PageSamples{Name: page}
		a.byName[page] = ps
		a.pages = append(a.pages, ps)
	}
	ps.Samples = append(ps.Samples, sample)
}

func (a *Aggregator) RecordCycleCollectionTime(ms float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ccTotal += ms
	a.hasCC = true
}

// BuildReport snapshots the samples recorded so far. Display names have the
// prefix shared by every page stripped; the recorded names are untouched.
func (a *Aggregator) BuildReport() *model.Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	names := make([]string, len(a.pages))
	for i, p := range a.pages {
		names[i] = p.Name
	}
	prefix := CommonPrefixLength(names)

	rep := &model.Report{
		Pages:              make([]*model.PageSamples, len(a.pages)),
		CycleCollectionMs:  a.ccTotal,
		HasCycleCollection: a.hasCC,
		CompletedAt:        a.now(),
	}
	for i, p := range a.pages {
		rep.Pages[i] = &model.PageSamples{
			Name:        p.Name,
			DisplayName: p.Name[prefix:],
			Samples:     append([]model.Sample(nil), p.Samples...),
		}
	}
	return rep
}

// CommonPrefixLength is the length in bytes of the longest prefix shared by
// all of names. Fewer than two names share nothing.
func CommonPrefixLength(names []string) int {
	if len(names) < 2 {
		return 0
	}

	n := len(names[0])
	for _, s := range names[1:] {
		n = min(n, len(s))
		for i := 0; i < n; i++ {
			if s[i] != names[0][i] {
				n = i
				break
			}
		}
	}
	return n
}
