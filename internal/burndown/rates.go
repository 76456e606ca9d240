package burndown

import (
	"math"
	"time"
)

// Rates holds per-user weekly throughput for each capacity pool.
type Rates struct {
	BackOfficePerWeek float64 `yaml:"back_office_per_week" mapstructure:"back_office_per_week"`
	FieldPerWeek      float64 `yaml:"field_per_week" mapstructure:"field_per_week"`
}

// DefaultRates returns the standard throughput: 100 poles/week per
// back-office user and 80 poles/week per field user.
func DefaultRates() Rates {
	return Rates{
		BackOfficePerWeek: 100,
		FieldPerWeek:      80,
	}
}

// Effective returns the weekly rate for an entity staffed with the given
// pool sizes. The slower pool bounds throughput.
func (r Rates) Effective(backOfficeUsers, fieldUsers int) float64 {
	bo := float64(backOfficeUsers) * r.BackOfficePerWeek
	field := float64(fieldUsers) * r.FieldPerWeek
	return math.Min(bo, field)
}

// EstimateCompletion projects when remaining poles finish at weeklyRate.
// A non-positive rate means the date is unknown and nil is returned.
func EstimateCompletion(now time.Time, remaining int, weeklyRate float64) *time.Time {
	if weeklyRate <= 0 || math.IsNaN(weeklyRate) || math.IsInf(weeklyRate, 0) {
		return nil
	}
	if remaining < 0 {
		remaining = 0
	}
	days := float64(remaining) / (weeklyRate / 7)
	t := now.Add(time.Duration(days * float64(24*time.Hour)))
	return &t
}
