package metrics

import (
	"math"
	"time"

	"sosinternet/internal/models"
)

// Uptime summarises connectivity over a window of checks.
type Uptime struct {
	UptimePercent float64 `json:"uptime_percent"`
	TotalChecks   int     `json:"total_checks"`
	Passing       int     `json:"passing"`
	Failing       int     `json:"failing"`
	AvgLatencyMs  float64 `json:"avg_latency_ms,omitempty"`
	// Outages counts transitions from connected to disconnected.
	Outages     int    `json:"outages"`
	LastState   string `json:"last_state,omitempty"`
	LastUpdated string `json:"last_updated,omitempty"`
}

// ComputeUptime aggregates statuses, expected oldest first.
func ComputeUptime(entries []models.ConnectionStatus) Uptime {
	var (
		result     Uptime
		latencySum float64
		latencyN   int
		prevUp     = true
		last       time.Time
	)
	for _, entry := range entries {
		if entry.Connected {
			result.Passing++
			if ms := entry.LatencyMs(); ms >= 0 {
				latencySum += ms
				latencyN++
			}
		} else {
			result.Failing++
			if prevUp {
				result.Outages++
			}
		}
		prevUp = entry.Connected
		if !entry.Timestamp.Before(last) {
			last = entry.Timestamp
			result.LastState = stateName(entry.Connected)
		}
	}

	result.TotalChecks = result.Passing + result.Failing
	if result.TotalChecks > 0 {
		result.UptimePercent = round2(float64(result.Passing) / float64(result.TotalChecks) * 100)
	}
	if latencyN > 0 {
		result.AvgLatencyMs = round2(latencySum / float64(latencyN))
	}
	if !last.IsZero() {
		result.LastUpdated = last.UTC().Format(time.RFC3339)
	}
	return result
}

func stateName(connected bool) string {
	if connected {
		return "online"
	}
	return "offline"
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
