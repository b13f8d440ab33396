package main

import (
	"sync"
	"time"

	"github.com/lucas-128/heladeria-concurrente/common/flavor"
)

// Stock is a robot's local replica of every flavor's remaining grams,
// kept consistent across the ring by UpdateStock broadcasts.
type Stock struct {
	mu                      sync.Mutex
	table                   flavor.Amounts
	lastModificationTime    time.Time
}

// NewStock creates a Stock seeded with flavor.DefaultStock.
func NewStock() *Stock {
	return &Stock{
		table:                flavor.DefaultStock(),
		lastModificationTime: time.Now(),
	}
}

// HasEnough reports whether every flavor in required is available in
// at least the requested amount.
func (s *Stock) HasEnough(required flavor.Amounts) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for f, amount := range required {
		if s.table[f] < amount {
			return false
		}
	}
	return true
}

// Subtract deducts toSubtract from stock, stamps the modification with
// now, and returns that timestamp for the caller to propagate.
func (s *Stock) Subtract(toSubtract flavor.Amounts) time.Time {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for f, amount := range toSubtract {
		s.table[f] -= amount
	}
	s.lastModificationTime = now
	return now
}

// Add restores toAdd into stock (used for compensation) and returns the
// modification timestamp.
func (s *Stock) Add(toAdd flavor.Amounts) time.Time {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for f, amount := range toAdd {
		s.table[f] += amount
	}
	s.lastModificationTime = now
	return now
}

// SubtractWithTimestamp applies a remotely-stamped delta, used when
// replaying another robot's UpdateStock broadcast.
func (s *Stock) SubtractWithTimestamp(toSubtract flavor.Amounts, timestamp time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for f, amount := range toSubtract {
		s.table[f] -= amount
	}
	s.lastModificationTime = timestamp
}

// AddWithTimestamp is the add-side counterpart of SubtractWithTimestamp.
func (s *Stock) AddWithTimestamp(toAdd flavor.Amounts, timestamp time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for f, amount := range toAdd {
		s.table[f] += amount
	}
	s.lastModificationTime = timestamp
}
