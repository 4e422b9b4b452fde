package history

import "time"

// Run is one saved benchmark run.
type Run struct {
	ID                int64     `json:"id"`
	Fingerprint       string    `json:"fingerprint"`
	StartedAt         time.Time `json:"startedAt"`
	FinishedAt        time.Time `json:"finishedAt"`
	Cycles            int       `json:"cycles"`
	CycleCollectionMs float64   `json:"cycleCollectionMs"`
	Samples           int       `json:"samples"`
}

// Comparison sets the latest run against the one before it with the same
// fingerprint.
type Comparison struct {
	Current      Run         `json:"current"`
	Previous     Run         `json:"previous"`
	Pages        []PageDelta `json:"pages"`
	Degradation  bool        `json:"degradation"`
	ThresholdPct float64     `json:"thresholdPct"`
}

// PageDelta compares the median load time of one page across two runs.
type PageDelta struct {
	Page           string  `json:"page"`
	PreviousMedian float64 `json:"previousMedian"`
	CurrentMedian  float64 `json:"currentMedian"`
	ChangePct      float64 `json:"changePct"`
	Degradation    bool    `json:"degradation"`
}
