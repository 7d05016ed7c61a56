// Package health aggregates dependency checks for the readiness probe.
package health

import (
	"context"
	"fmt"
	"time"
)

// CheckTimeout bounds a single dependency check.
const CheckTimeout = time.Second

// Checker represents a dependency health check.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Service runs every registered Checker in order.
type Service struct {
	checkers []Checker
}

// NewService aggregates dependency checkers.
func NewService(checkers ...Checker) *Service {
	return &Service{checkers: checkers}
}

// Ready returns the first failing check, prefixed with its name.
func (s *Service) Ready(ctx context.Context) error {
	for _, ch := range s.checkers {
		if err := check(ctx, ch); err != nil {
			return fmt.Errorf("%s: %w", ch.Name(), err)
		}
	}
	return nil
}

func check(ctx context.Context, ch Checker) error {
	ctx, cancel := context.WithTimeout(ctx, CheckTimeout)
	defer cancel()
	return ch.Check(ctx)
}
