package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"sosinternet/internal/models"
	"sosinternet/internal/watchdog"
)

const (
	overviewBucketMinutes = 10
	overviewBucketCount   = 3
	overviewBucketSeconds = overviewBucketMinutes * 60
	overviewStateUnknown  = "unknown"
	overviewStateOK       = "ok"
	overviewStateIssue    = "issue"
)

// overviewSnapshot is the compact "last half hour" view pushed to dashboards.
type overviewSnapshot struct {
	GeneratedAt   time.Time        `json:"generated_at"`
	RangeStart    time.Time        `json:"range_start"`
	RangeEnd      time.Time        `json:"range_end"`
	BucketSeconds int              `json:"bucket_seconds"`
	State         watchdog.State   `json:"state"`
	Buckets       []overviewBucket `json:"buckets"`
}

type overviewBucket struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	State  string    `json:"state"`
	Detail string    `json:"detail,omitempty"`
}

type timeBucket struct {
	Start time.Time
	End   time.Time
}

func (s *Server) handleOverview(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.buildOverviewSnapshot())
}

func (s *Server) buildOverviewSnapshot() overviewSnapshot {
	now := s.clock.Now().UTC()
	bucketDuration := time.Duration(overviewBucketMinutes) * time.Minute
	rangeStart := now.Add(-bucketDuration * overviewBucketCount)
	buckets := buildTimeBuckets(rangeStart, bucketDuration, overviewBucketCount)

	return overviewSnapshot{
		GeneratedAt:   now,
		RangeStart:    rangeStart,
		RangeEnd:      now,
		BucketSeconds: overviewBucketSeconds,
		State:         s.monitor.Snapshot().State,
		Buckets:       buildConnectivityBuckets(buckets, s.recorder.HistorySince(rangeStart)),
	}
}

func buildTimeBuckets(start time.Time, duration time.Duration, count int) []timeBucket {
	result := make([]timeBucket, 0, count)
	current := start
	for i := 0; i < count; i++ {
		end := current.Add(duration)
		result = append(result, timeBucket{Start: current, End: end})
		current = end
	}
	return result
}

// bucketIndex finds the bucket holding ts; the last bucket includes its end.
func bucketIndex(ts time.Time, buckets []timeBucket) int {
	for i, bucket := range buckets {
		if !ts.Before(bucket.Start) && ts.Before(bucket.End) {
			return i
		}
	}
	if n := len(buckets); n > 0 && ts.Equal(buckets[n-1].End) {
		return n - 1
	}
	return -1
}

func buildConnectivityBuckets(buckets []timeBucket, entries []models.ConnectionStatus) []overviewBucket {
	result := make([]overviewBucket, len(buckets))
	for i, bucket := range buckets {
		result[i] = overviewBucket{Start: bucket.Start, End: bucket.End, State: overviewStateUnknown}
	}
	for _, sample := range entries {
		idx := bucketIndex(sample.Timestamp.UTC(), buckets)
		if idx == -1 {
			continue
		}
		if sample.Connected {
			detail := ""
			if ms := sample.LatencyMs(); ms >= 0 {
				detail = fmt.Sprintf("%.0f ms", ms)
			}
			setBucketOK(&result[idx], detail)
			continue
		}
		detail := strings.TrimSpace(sample.Error)
		if detail == "" {
			detail = "offline"
		}
		setBucketIssue(&result[idx], detail)
	}
	return result
}

// setBucketOK never downgrades a bucket that already saw an outage.
func setBucketOK(bucket *overviewBucket, detail string) {
	if bucket.State == overviewStateIssue {
		return
	}
	bucket.State = overviewStateOK
	if detail != "" {
		bucket.Detail = detail
	}
}

func setBucketIssue(bucket *overviewBucket, detail string) {
	bucket.State = overviewStateIssue
	if detail != "" {
		bucket.Detail = detail
	}
}
