package models

import "time"

// TimelinePoint is one bucket of the connectivity timeline.
// Checks and Failures count the statuses that fell inside the bucket.
type TimelinePoint struct {
	ClassName string           `json:"className"`
	Label     string           `json:"label"`
	Start     time.Time        `json:"start"`
	End       time.Time        `json:"end"`
	Checks    int              `json:"checks"`
	Failures  int              `json:"failures"`
	Details   []TimelineDetail `json:"details,omitempty"`
}

// TimelineDetail describes a failed check inside a bucket.
type TimelineDetail struct {
	Timestamp time.Time `json:"timestamp"`
	State     string    `json:"state,omitempty"`
	Target    string    `json:"target,omitempty"`
	Error     string    `json:"error,omitempty"`
}
