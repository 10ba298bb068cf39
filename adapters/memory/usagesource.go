package memory

import (
	"context"
	"sync"

	"github.com/artpar/costboard/domain/usage"
	"github.com/artpar/costboard/ports"
)

// UsageSource is an in-memory implementation of ports.UsageSource.
type UsageSource struct {
	mu      sync.RWMutex
	records []usage.Record
	err     error
	calls   int
}

// NewUsageSource creates a usage source serving the given records.
func NewUsageSource(records ...usage.Record) *UsageSource {
	return &UsageSource{records: records}
}

// CurrentUsage returns the configured records or error.
func (s *UsageSource) CurrentUsage(ctx context.Context) ([]usage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.err != nil {
		return nil, s.err
	}

	result := make([]usage.Record, len(s.records))
	copy(result, s.records)
	return result, nil
}

// Set replaces the served records.
func (s *UsageSource) Set(records ...usage.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
}

// SetErr makes subsequent calls fail with err. Pass nil to clear.
func (s *UsageSource) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls returns how many times CurrentUsage was invoked.
func (s *UsageSource) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

// Ensure interface compliance.
var _ ports.UsageSource = (*UsageSource)(nil)
