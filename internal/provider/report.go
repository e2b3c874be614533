package provider

import (
	"strings"
	"time"
)

// CallReport is the provider's settlement payload, delivered via webhook
// and also returned by the provider's status query API.
//
// Duration fields are only partially populated depending on how the call
// ended; ResolveDuration picks the authoritative one.
type CallReport struct {
	CallID string `json:"call_id"`
	Status string `json:"status"`

	// ConversationDuration excludes ring time and matches the provider's
	// own dashboards. Preferred source.
	ConversationDuration int `json:"conversation_duration"`

	// Duration (and its legacy alias call_duration) is the raw total and
	// may include ring time.
	Duration     int `json:"duration"`
	CallDuration int `json:"call_duration"`

	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`

	RecordingURL string `json:"recording_url"`
}

// reportTimeLayouts are the timestamp formats observed from the provider.
var reportTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// ResolveDuration derives the call duration in seconds from a report.
//
// Fallback chain, first positive result wins:
//  1. conversation duration (excludes ring time)
//  2. floor(end - start) from the report timestamps
//  3. raw total duration (may include ring time; lower confidence)
//
// A non-positive result means "unknown"; callers must leave any previously
// stored duration untouched rather than writing zero.
func ResolveDuration(r CallReport) int {
	if r.ConversationDuration > 0 {
		return r.ConversationDuration
	}

	if start, ok := parseReportTime(r.StartTime); ok {
		if end, ok := parseReportTime(r.EndTime); ok {
			if secs := int(end.Sub(start) / time.Second); secs > 0 {
				return secs
			}
		}
	}

	if r.Duration > 0 {
		return r.Duration
	}
	if r.CallDuration > 0 {
		return r.CallDuration
	}
	return 0
}

func parseReportTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range reportTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
