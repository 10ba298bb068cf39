// Package billing computes per-user cost deltas between two usage datasets.
// All functions are pure - no side effects.
package billing

import (
	"sort"

	"github.com/artpar/costboard/domain/usage"
	"github.com/shopspring/decimal"
)

// CostPlaces is the number of decimal places costs are rounded to.
const CostPlaces = 6

// Ranking is one user's share of a period (value type).
//
// ID is empty unless the entry belongs to the caller; IsMe marks the caller's
// entry either way.
type Ranking struct {
	ID                      string        `json:"id"`
	Name                    string        `json:"name"`
	Cost                    float64       `json:"cost"`
	Share                   float64       `json:"share"`
	IsMe                    bool          `json:"isMe"`
	RawStart                *usage.Record `json:"rawStart"`
	RawEnd                  *usage.Record `json:"rawEnd"`
	PeriodTokens            int64         `json:"periodTokens"`
	PeriodInputTokens       int64         `json:"periodInputTokens"`
	PeriodOutputTokens      int64         `json:"periodOutputTokens"`
	PeriodCacheCreateTokens int64         `json:"periodCacheCreateTokens"`
	PeriodCacheReadTokens   int64         `json:"periodCacheReadTokens"`
	PeriodRequests          int64         `json:"periodRequests"`
}

// Result is the outcome of a delta computation (value type).
type Result struct {
	Ranking   []Ranking
	TotalCost float64
}

// ComputeDelta derives each user's usage between start and end.
//
// Users missing from start are treated as starting at zero. Users missing
// from end are left out entirely. Every delta is clamped to be non-negative
// and costs are rounded to CostPlaces. The ranking is ordered by descending
// cost, then by user ID.
func ComputeDelta(start, end []usage.Record, selfID string) Result {
	startByID := usage.Index(start)
	endByID := usage.Index(end)

	type entry struct {
		userID string
		rank   Ranking
		cost   decimal.Decimal
	}

	entries := make([]entry, 0, len(endByID))
	total := decimal.Zero

	for id := range union(startByID, endByID) {
		e, ok := endByID[id]
		if !ok {
			continue
		}

		var st usage.Totals
		var rawStart *usage.Record
		if s, ok := startByID[id]; ok {
			st = s.Totals()
			rawStart = &s
		}
		et := e.Totals()
		rawEnd := e

		cost := RoundCost(decimal.NewFromFloat(usage.Sanitize(et.Cost - st.Cost)))
		total = total.Add(cost)

		r := Ranking{
			Name:                    e.Name,
			Cost:                    cost.InexactFloat64(),
			IsMe:                    selfID != "" && id == selfID,
			RawStart:                rawStart,
			RawEnd:                  &rawEnd,
			PeriodTokens:            countDelta(et.Tokens, st.Tokens),
			PeriodInputTokens:       countDelta(et.InputTokens, st.InputTokens),
			PeriodOutputTokens:      countDelta(et.OutputTokens, st.OutputTokens),
			PeriodCacheCreateTokens: countDelta(et.CacheCreateTokens, st.CacheCreateTokens),
			PeriodCacheReadTokens:   countDelta(et.CacheReadTokens, st.CacheReadTokens),
			PeriodRequests:          countDelta(et.Requests, st.Requests),
		}
		if r.IsMe {
			r.ID = id
		}

		entries = append(entries, entry{userID: id, rank: r, cost: cost})
	}

	total = RoundCost(total)

	sort.Slice(entries, func(i, j int) bool {
		if c := entries[i].cost.Cmp(entries[j].cost); c != 0 {
			return c > 0
		}
		return entries[i].userID < entries[j].userID
	})

	ranking := make([]Ranking, len(entries))
	for i, e := range entries {
		r := e.rank
		if total.IsPositive() {
			r.Share = e.cost.Div(total).InexactFloat64()
		}
		ranking[i] = r
	}

	return Result{
		Ranking:   ranking,
		TotalCost: total.InexactFloat64(),
	}
}

// RoundCost rounds a cost to CostPlaces decimal places.
func RoundCost(d decimal.Decimal) decimal.Decimal {
	return d.Round(CostPlaces)
}

// CountPositive returns how many ranked users have a non-zero cost.
func CountPositive(ranking []Ranking) int {
	n := 0
	for _, r := range ranking {
		if r.Cost > 0 {
			n++
		}
	}
	return n
}

// FindMe returns the caller's entry and its 1-based rank.
func FindMe(ranking []Ranking) (Ranking, int, bool) {
	for i, r := range ranking {
		if r.IsMe {
			return r, i + 1, true
		}
	}
	return Ranking{}, 0, false
}

func countDelta(end, start int64) int64 {
	if d := end - start; d > 0 {
		return d
	}
	return 0
}

func union(a, b map[string]usage.Record) map[string]struct{} {
	ids := make(map[string]struct{}, len(a)+len(b))
	for id := range a {
		ids[id] = struct{}{}
	}
	for id := range b {
		ids[id] = struct{}{}
	}
	return ids
}
