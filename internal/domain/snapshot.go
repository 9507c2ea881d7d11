package domain

import "time"

// FeedState is the display state of one feed.
type FeedState string

const (
	StateLoading FeedState = "loading"
	StateReady   FeedState = "ready"
	StateNoData  FeedState = "no_data"
	StateError   FeedState = "error"
)

// Terminal reports whether the state ends a refresh cycle.
func (s FeedState) Terminal() bool {
	return s == StateReady || s == StateNoData || s == StateError
}

// Snapshot is the committed outcome of one refresh cycle, as published to
// downstream consumers.
type Snapshot struct {
	Feed        string     `json:"feed"`
	Name        string     `json:"name"`
	Unit        string     `json:"unit"`
	State       FeedState  `json:"state"`
	Message     string     `json:"message,omitempty"`
	Range       string     `json:"range"`
	Generation  uint64     `json:"generation"`
	Projection  Projection `json:"projection"`
	GeneratedAt time.Time  `json:"generated_at"`
}
