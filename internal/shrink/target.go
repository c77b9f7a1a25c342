package shrink

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValidateTarget rejects budgets the search cannot compare against.
func ValidateTarget(kb float64) error {
	switch {
	case math.IsNaN(kb), math.IsInf(kb, 0):
		return fmt.Errorf("%w: %v is not a finite number", ErrInvalidTarget, kb)
	case kb <= 0:
		return fmt.Errorf("%w: %v must be greater than zero", ErrInvalidTarget, kb)
	}
	return nil
}

// ParseTarget parses a user-supplied size budget in kilobytes.
func ParseTarget(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: missing", ErrInvalidTarget)
	}
	kb, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidTarget, s)
	}
	if err := ValidateTarget(kb); err != nil {
		return 0, err
	}
	return kb, nil
}
