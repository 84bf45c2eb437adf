package service

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

type WithdrawalConfig struct {
	MinAmount    decimal.Decimal
	MaxPerWindow int
	Window       time.Duration
	// Commission is the percentage charged on approval, taken from frozen funds.
	Commission decimal.Decimal
}

func DefaultWithdrawalConfig() WithdrawalConfig {
	return WithdrawalConfig{
		MinAmount:    decimal.NewFromInt(5000),
		MaxPerWindow: 3,
		Window:       7 * day,
		Commission:   decimal.Zero,
	}
}

func (c WithdrawalConfig) windowDays() int {
	return int(math.Ceil(c.Window.Hours() / 24))
}

// remainingDays reports whether another withdrawal is blocked and for how many whole days.
// completed holds submission times of completed withdrawals; ones outside the window are ignored.
func remainingDays(completed []time.Time, limit int, window time.Duration, now time.Time) (int, bool) {
	if limit <= 0 {
		return 0, false
	}

	inWindow := make([]time.Time, 0, len(completed))
	for _, ts := range completed {
		if ts.After(now.Add(-window)) {
			inWindow = append(inWindow, ts)
		}
	}
	if len(inWindow) < limit {
		return 0, false
	}
	sort.Slice(inWindow, func(i, j int) bool { return inWindow[i].Before(inWindow[j]) })

	// the window frees a slot once this one ages out
	freesAt := inWindow[len(inWindow)-limit].Add(window)
	days := int(math.Ceil(float64(freesAt.Sub(now)) / float64(day)))
	if days < 1 {
		days = 1
	}
	return days, true
}
