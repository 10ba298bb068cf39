// Package usage provides per-user cumulative usage records.
// All functions are pure - no side effects.
package usage

import "math"

// Totals holds lifetime-to-date counters for a single user (value type).
// Values are cumulative as of the moment they were read, never per-period.
type Totals struct {
	Cost              float64 `json:"cost"`
	Tokens            int64   `json:"tokens"`
	InputTokens       int64   `json:"inputTokens"`
	OutputTokens      int64   `json:"outputTokens"`
	CacheCreateTokens int64   `json:"cacheCreateTokens"`
	CacheReadTokens   int64   `json:"cacheReadTokens"`
	Requests          int64   `json:"requests"`
}

// Usage wraps the totals the way the upstream admin API nests them.
type Usage struct {
	Total Totals `json:"total"`
}

// Record is one user's cumulative usage (value type).
type Record struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Usage Usage  `json:"usage"`
}

// Totals is shorthand for r.Usage.Total.
func (r Record) Totals() Totals {
	return r.Usage.Total
}

// NewRecord creates a record from its parts.
func NewRecord(id, name string, t Totals) Record {
	return Record{ID: id, Name: name, Usage: Usage{Total: t}}
}

// Sanitize coerces a float to a finite, non-negative value.
// NaN, infinities and negatives become 0.
func Sanitize(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}

// SanitizeCount coerces a counter to a non-negative value.
func SanitizeCount(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

// Normalize returns a copy of r with every numeric field sanitized.
func Normalize(r Record) Record {
	t := r.Usage.Total
	r.Usage.Total = Totals{
		Cost:              Sanitize(t.Cost),
		Tokens:            SanitizeCount(t.Tokens),
		InputTokens:       SanitizeCount(t.InputTokens),
		OutputTokens:      SanitizeCount(t.OutputTokens),
		CacheCreateTokens: SanitizeCount(t.CacheCreateTokens),
		CacheReadTokens:   SanitizeCount(t.CacheReadTokens),
		Requests:          SanitizeCount(t.Requests),
	}
	return r
}

// Index maps records by user ID. Later duplicates overwrite earlier ones.
func Index(records []Record) map[string]Record {
	m := make(map[string]Record, len(records))
	for _, r := range records {
		m[r.ID] = r
	}
	return m
}
