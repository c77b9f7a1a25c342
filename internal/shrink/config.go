package shrink

import "fmt"

// AutoWidth as Config.InitialWidth starts the search at the source's
// largest dimension instead of a fixed bound.
const AutoWidth = 0

// Config is the parameter policy of the search. Both parameters start at
// their initial value and are stepped down together until a floor is hit.
type Config struct {
	InitialWidth   int // largest output dimension on the first attempt, or AutoWidth
	InitialQuality int // encoder quality on the first attempt (1-100)
	MinWidth       int
	MinQuality     int
	WidthStep      int
	QualityStep    int
}

// DefaultConfig returns the stock policy: 800px/q80 stepping by 50px/5
// down to 100px/q10.
func DefaultConfig() Config {
	return Config{
		InitialWidth:   800,
		InitialQuality: 80,
		MinWidth:       100,
		MinQuality:     10,
		WidthStep:      50,
		QualityStep:    5,
	}
}

// Validate reports whether the policy can drive a terminating search.
func (c Config) Validate() error {
	switch {
	case c.MinWidth < 1:
		return fmt.Errorf("%w: min width %d must be positive", ErrInvalidConfig, c.MinWidth)
	case c.MinQuality < 1 || c.MinQuality > 100:
		return fmt.Errorf("%w: min quality %d out of range 1-100", ErrInvalidConfig, c.MinQuality)
	case c.InitialQuality < c.MinQuality || c.InitialQuality > 100:
		return fmt.Errorf("%w: initial quality %d out of range %d-100", ErrInvalidConfig, c.InitialQuality, c.MinQuality)
	case c.InitialWidth != AutoWidth && c.InitialWidth < c.MinWidth:
		return fmt.Errorf("%w: initial width %d below min width %d", ErrInvalidConfig, c.InitialWidth, c.MinWidth)
	case c.WidthStep < 1:
		return fmt.Errorf("%w: width step %d must be positive", ErrInvalidConfig, c.WidthStep)
	case c.QualityStep < 1:
		return fmt.Errorf("%w: quality step %d must be positive", ErrInvalidConfig, c.QualityStep)
	}
	return nil
}

// MaxAttempts is the trip count of the search when it starts at
// initialWidth: the attempt at which the first floor is reached, plus one.
// It depends only on the policy, never on the target or the image content.
func (c Config) MaxAttempts(initialWidth int) int {
	return min(
		stepsToFloor(initialWidth, c.MinWidth, c.WidthStep),
		stepsToFloor(c.InitialQuality, c.MinQuality, c.QualityStep),
	) + 1
}

func stepsToFloor(start, floor, step int) int {
	if start <= floor {
		return 0
	}
	return (start - floor + step - 1) / step
}

// stepDown lowers v by step, clamped at floor.
func stepDown(v, step, floor int) int {
	return max(v-step, floor)
}
