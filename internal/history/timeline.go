package history

import (
	"sort"
	"time"

	"sosinternet/internal/models"
)

const (
	// DefaultTimelinePoints controls how many dots a timeline has.
	DefaultTimelinePoints = 80
	maxDetailsPerPoint    = 4
)

// BuildConnectivityTimeline reduces connection statuses into compact timeline points.
func BuildConnectivityTimeline(entries []models.ConnectionStatus, start, end time.Time, points int) []models.TimelinePoint {
	if points <= 0 {
		points = DefaultTimelinePoints
	}
	if !end.After(start) {
		end = start.Add(time.Minute)
	}

	samples := make([]models.ConnectionStatus, 0, len(entries))
	for _, entry := range entries {
		if entry.Timestamp.IsZero() {
			continue
		}
		samples = append(samples, entry)
	}
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})

	bucketDuration := end.Sub(start) / time.Duration(points)
	if bucketDuration <= 0 {
		bucketDuration = time.Minute
	}

	gapThreshold := deriveConnectivityGap(samples)

	result := make([]models.TimelinePoint, 0, points)
	idx := 0
	var last models.ConnectionStatus
	var haveLast bool
	for idx < len(samples) && samples[idx].Timestamp.Before(start) {
		last = samples[idx]
		haveLast = true
		idx++
	}

	for i := 0; i < points; i++ {
		bucketStart := start.Add(time.Duration(i) * bucketDuration)
		bucketEnd := bucketStart.Add(bucketDuration)
		if i == points-1 {
			bucketEnd = end
		}

		point := models.TimelinePoint{
			ClassName: "state-missing",
			Label:     "No data",
			Start:     bucketStart,
			End:       bucketEnd,
		}

		var bucket []models.ConnectionStatus
		for idx < len(samples) && samples[idx].Timestamp.Before(bucketEnd) {
			last = samples[idx]
			haveLast = true
			bucket = append(bucket, samples[idx])
			idx++
		}

		switch {
		case len(bucket) > 0:
			point.Checks = len(bucket)
			point.Failures = countFailures(bucket)
			point.ClassName, point.Label = bucketClass(point.Checks, point.Failures)
			if point.ClassName != "state-success" {
				point.Details = bucketDetails(bucket)
			}
		case haveLast && bucketStart.Sub(last.Timestamp) <= gapThreshold:
			point.ClassName, point.Label = connectivityClass(last)
			if !last.Connected {
				detail := connectivityDetail(last)
				detail.Timestamp = bucketStart
				point.Details = []models.TimelineDetail{detail}
			}
		}

		result = append(result, point)
	}

	return result
}

func countFailures(bucket []models.ConnectionStatus) int {
	n := 0
	for _, s := range bucket {
		if !s.Connected {
			n++
		}
	}
	return n
}

// bucketClass marks a bucket as degraded when it mixes up and down checks.
func bucketClass(checks, failures int) (className, label string) {
	switch {
	case failures == 0:
		return "state-success", "Online"
	case failures == checks:
		return "state-error", "Offline"
	default:
		return "state-warning", "Unstable"
	}
}

func bucketDetails(bucket []models.ConnectionStatus) []models.TimelineDetail {
	details := make([]models.TimelineDetail, 0, maxDetailsPerPoint)
	for _, s := range bucket {
		if s.Connected {
			continue
		}
		details = append(details, connectivityDetail(s))
		if len(details) == maxDetailsPerPoint {
			break
		}
	}
	return details
}

// deriveConnectivityGap estimates how long a sample stays representative:
// twice the median check spacing, clamped to [1m, 2h].
func deriveConnectivityGap(samples []models.ConnectionStatus) time.Duration {
	const defaultGap = 5 * time.Minute
	if len(samples) < 2 {
		return defaultGap
	}
	diffs := make([]time.Duration, 0, len(samples)-1)
	prev := samples[0].Timestamp
	for i := 1; i < len(samples); i++ {
		curr := samples[i].Timestamp
		if curr.After(prev) {
			diffs = append(diffs, curr.Sub(prev))
		}
		prev = curr
	}
	if len(diffs) == 0 {
		return defaultGap
	}
	sort.Slice(diffs, func(i, j int) bool {
		return diffs[i] < diffs[j]
	})
	gap := diffs[len(diffs)/2] * 2
	if gap < time.Minute {
		return time.Minute
	}
	if gap > 2*time.Hour {
		return 2 * time.Hour
	}
	return gap
}

func connectivityDetail(status models.ConnectionStatus) models.TimelineDetail {
	state := "online"
	if !status.Connected {
		state = "offline"
	}
	return models.TimelineDetail{
		Timestamp: status.Timestamp,
		State:     state,
		Target:    status.Target,
		Error:     status.Error,
	}
}

func connectivityClass(status models.ConnectionStatus) (className, label string) {
	if status.Connected {
		return "state-success", "Online"
	}
	return "state-error", "Offline"
}
