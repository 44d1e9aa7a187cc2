package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Well-known engagement counter names.
const (
	MetricLikes     = "like_count"
	MetricRetweets  = "retweet_count"
	MetricReplies   = "reply_count"
	MetricQuotes    = "quote_count"
	MetricFollowers = "followers_count"
)

// Metrics maps an engagement counter name to its value.
type Metrics map[string]int64

// Get returns the named counter, or 0 when absent.
// Safe to call on a nil map.
func (m Metrics) Get(name string) int64 {
	if m == nil {
		return 0
	}
	return m[name]
}

// ParseMetrics decodes a stored JSON mapping leniently.
//
// Counters may be JSON numbers or numeric strings. Entries that cannot be
// read as integers are skipped, and input that is not a JSON object yields a
// nil map rather than an error: missing metrics count as zero everywhere.
func ParseMetrics(raw string) Metrics {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil
	}

	out := make(Metrics, len(fields))
	for k, v := range fields {
		if n, ok := toInt64(v); ok {
			out[k] = n
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0, false
		}
		return int64(val), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(strings.TrimSpace(val), 64)
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return n, true
	case bool:
		return 0, false
	default:
		return 0, false
	}
}
