// Package testutil provides in-memory lookup sources shared by service and
// adapter tests.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"stitchcore/pkg/domain"
)

// SpecSource serves tolerance entries from an in-memory table.
type SpecSource struct {
	mu     sync.RWMutex
	points map[string][]domain.SpecPoint
	err    error
}

// NewSpecSource constructs an empty spec source.
func NewSpecSource() *SpecSource {
	return &SpecSource{points: make(map[string][]domain.SpecPoint)}
}

// Add registers tolerance entries for a style/size.
func (s *SpecSource) Add(points ...domain.SpecPoint) *SpecSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, point := range points {
		key := specKey(point.Style, point.Size)
		s.points[key] = append(s.points[key], point)
	}
	return s
}

// FailWith makes every lookup return err (nil restores normal behavior).
func (s *SpecSource) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// LookupSpec implements domain.SpecSource.
func (s *SpecSource) LookupSpec(_ context.Context, style, size string) ([]domain.SpecPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	points := s.points[specKey(style, size)]
	out := make([]domain.SpecPoint, len(points))
	copy(out, points)
	return out, nil
}

func specKey(style, size string) string {
	return fmt.Sprintf("%s\x1f%s", style, size)
}

// OrderSource serves order quantities from an in-memory table.
type OrderSource struct {
	mu     sync.RWMutex
	orders map[string]domain.OrderQuantities
	err    error
}

// NewOrderSource constructs an empty order source.
func NewOrderSource() *OrderSource {
	return &OrderSource{orders: make(map[string]domain.OrderQuantities)}
}

// Set registers quantities for a style.
func (s *OrderSource) Set(style string, quantities domain.OrderQuantities) *OrderSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[style] = quantities
	return s
}

// FailWith makes every lookup return err (nil restores normal behavior).
func (s *OrderSource) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// LookupOrder implements domain.OrderSource.
func (s *OrderSource) LookupOrder(_ context.Context, style string) (domain.OrderQuantities, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	quantities, ok := s.orders[style]
	if !ok {
		return domain.OrderQuantities{}, nil
	}
	out := make(domain.OrderQuantities, len(quantities))
	for color, sizes := range quantities {
		cp := make(map[string]int, len(sizes))
		for size, qty := range sizes {
			cp[size] = qty
		}
		out[color] = cp
	}
	return out, nil
}
