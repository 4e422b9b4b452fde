package model

import "time"

// Sample is one accepted page load.
type Sample struct {
	// Cycle the sample was taken in, zero based.
	Cycle int `json:"cycle"`

	// ElapsedMs is the load latency in milliseconds.
	ElapsedMs float64 `json:"elapsedMs"`

	// Start is the wall-clock start of the measured interval. For own-timing
	// pages it is the start stamp the page reported.
	Start time.Time `json:"start"`

	// Stop is the wall-clock instant the completion signal was accepted.
	Stop time.Time `json:"stop"`
}

// PageSamples holds every sample recorded for one page name, in recording
// order (cycle 0 first).
type PageSamples struct {
	// Name is the page's full URL, the key samples are recorded under.
	Name string `json:"name"`

	// DisplayName is Name with the prefix shared by all pages stripped. It is
	// only used for presentation.
	DisplayName string `json:"displayName"`

	Samples []Sample `json:"samples"`
}

// Elapsed returns the elapsed milliseconds of each sample in recording order.
func (p *PageSamples) Elapsed() []float64 {
	out := make([]float64, len(p.Samples))
	for i, s := range p.Samples {
		out[i] = s.ElapsedMs
	}
	return out
}

// Report is the final result of a run.
type Report struct {
	// Pages in the order their first sample was recorded.
	Pages []*PageSamples `json:"pages"`

	// CycleCollectionMs is the accumulated duration of forced collection passes.
	CycleCollectionMs float64 `json:"cycleCollectionMs"`

	// HasCycleCollection flips to true on the first recorded collection pass.
	HasCycleCollection bool `json:"hasCycleCollection"`

	Cycles      int       `json:"cycles"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
}

// Page returns the samples recorded under name, or nil.
func (r *Report) Page(name string) *PageSamples {
	for _, p := range r.Pages {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// SamplesByPage returns the elapsed times keyed by page name.
func (r *Report) SamplesByPage() map[string][]float64 {
	out := make(map[string][]float64, len(r.Pages))
	for _, p := range r.Pages {
		out[p.Name] = p.Elapsed()
	}
	return out
}

// SampleCount is the total number of samples across pages.
func (r *Report) SampleCount() int {
	n := 0
	for _, p := range r.Pages {
		n += len(p.Samples)
	}
	return n
}
