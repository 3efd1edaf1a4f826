package booking

import (
	"fmt"
	"math"
	"time"
)

// PricingStrategy defines the interface for calculating booking prices.
type PricingStrategy interface {
	// Calculate returns the total price in cents for the given parameters.
	Calculate(params PricingParams) (int64, error)
}

// PricingParams holds the inputs for price calculation.
type PricingParams struct {
	HourlyRateCents int64
	Duration        time.Duration
}

// HourlyPricingStrategy charges the resource's hourly rate pro rata to the second.
type HourlyPricingStrategy struct{}

// NewHourlyPricingStrategy creates a new HourlyPricingStrategy.
func NewHourlyPricingStrategy() *HourlyPricingStrategy {
	return &HourlyPricingStrategy{}
}

// Calculate computes rate * hours in cents. Partial cents round half up.
//
// Examples:
//   - 1000 cents/h for 2h = 2000
//   - 1000 cents/h for 30m = 500
func (s *HourlyPricingStrategy) Calculate(params PricingParams) (int64, error) {
	if params.HourlyRateCents < 0 {
		return 0, fmt.Errorf("hourly rate cannot be negative")
	}
	if params.Duration <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	seconds := int64(params.Duration / time.Second)
	if seconds > 0 && params.HourlyRateCents > (math.MaxInt64-1800)/seconds {
		return 0, fmt.Errorf("price overflows for rate %d over %s", params.HourlyRateCents, params.Duration)
	}
	return (params.HourlyRateCents*seconds + 1800) / 3600, nil
}
