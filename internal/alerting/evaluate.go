package alerting

import (
	"time"

	"github.com/shopspring/decimal"

	"fuelwatch/internal/storage"
)

const (
	// minHistory is the cold-start guard: with fewer samples than this no
	// rule triggers, whatever its method.
	minHistory = 10
	// lookback restricts statistics to the trailing window.
	lookback = 90 * 24 * time.Hour
	// DefaultWindow is the moving-average sample count when the rule does
	// not set one.
	DefaultWindow = 240
	// DefaultCeiling is the fixed-method threshold when the rule does not
	// set one, in the same unit as prices (¢/L).
	DefaultCeiling = 140
)

var (
	maDiscount  = decimal.NewFromFloat(0.95)
	drawdownMin = decimal.NewFromFloat(0.10)
)

// Stats carries everything the notifier needs to render an alert, so
// callers never recompute.
type Stats struct {
	Highest   int64
	Lowest    int64
	AlertLine decimal.Decimal
	Threshold int64
	ChangePct decimal.Decimal
	Samples   int
}

// Evaluate decides whether the candidate price satisfies the rule against
// the fuel type's history. It is a pure function: no clock reads, no I/O.
//
// Guards applied to every method: fewer than ten history points never
// triggers, and only records within the trailing 90 days of now count.
func Evaluate(history []storage.PriceRecord, candidate storage.PriceRecord, rule storage.AlertRule, now time.Time) (bool, Stats) {
	if len(history) < minHistory {
		return false, Stats{}
	}

	cutoff := now.Add(-lookback)
	recent := make([]int64, 0, len(history))
	for _, rec := range history {
		if rec.Timestamp.After(cutoff) {
			recent = append(recent, rec.Price)
		}
	}
	if len(recent) == 0 {
		return false, Stats{}
	}

	price := candidate.Price
	highest := recent[0]
	lowest := recent[0]
	for _, p := range recent {
		if p > highest {
			highest = p
		}
		if p < lowest {
			lowest = p
		}
	}

	stats := Stats{
		Highest:   highest,
		Lowest:    lowest,
		ChangePct: changePct(highest, price),
		Samples:   len(recent),
	}

	switch rule.Method {
	case storage.MethodMovingAverage:
		window := rule.Window
		if window <= 0 {
			window = DefaultWindow
		}
		if window > len(recent) {
			window = len(recent)
		}
		stats.AlertLine = movingAverage(recent, window).Mul(maDiscount).Round(2)

		belowLine := decimal.NewFromInt(price).LessThan(stats.AlertLine)
		drawdown := false
		if highest > 0 {
			drawdown = decimal.NewFromInt(highest - price).
				Div(decimal.NewFromInt(highest)).
				GreaterThanOrEqual(drawdownMin)
		}
		return belowLine && drawdown, stats

	case storage.MethodLowest:
		return price <= lowest, stats

	case storage.MethodFixed:
		threshold := rule.Threshold
		if threshold <= 0 {
			threshold = DefaultCeiling
		}
		stats.Threshold = threshold
		return price < threshold, stats

	default:
		// Unknown methods must not crash dispatch; they simply never fire.
		return false, stats
	}
}

// Summarize computes the trailing-90-day statistics for a series without
// the evaluator's cold-start guard. Reporting surfaces (the weekly digest,
// the evaluate command) want the numbers even when there is too little
// history to alert on.
func Summarize(history []storage.PriceRecord, window int, now time.Time) Stats {
	cutoff := now.Add(-lookback)
	recent := make([]int64, 0, len(history))
	for _, rec := range history {
		if rec.Timestamp.After(cutoff) {
			recent = append(recent, rec.Price)
		}
	}
	if len(recent) == 0 {
		return Stats{}
	}

	highest := recent[0]
	lowest := recent[0]
	for _, p := range recent {
		if p > highest {
			highest = p
		}
		if p < lowest {
			lowest = p
		}
	}

	if window <= 0 {
		window = DefaultWindow
	}
	if window > len(recent) {
		window = len(recent)
	}

	return Stats{
		Highest:   highest,
		Lowest:    lowest,
		AlertLine: movingAverage(recent, window).Mul(maDiscount).Round(2),
		ChangePct: changePct(highest, recent[len(recent)-1]),
		Samples:   len(recent),
	}
}

// movingAverage is the simple mean over the trailing window samples.
func movingAverage(prices []int64, window int) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range prices[len(prices)-window:] {
		sum = sum.Add(decimal.NewFromInt(p))
	}
	return sum.Div(decimal.NewFromInt(int64(window)))
}

// changePct is the candidate's percentage change versus the 90-day high,
// negative for a drop, rounded to two places.
func changePct(highest, price int64) decimal.Decimal {
	if highest == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(price - highest).
		Div(decimal.NewFromInt(highest)).
		Mul(decimal.NewFromInt(100)).
		Round(2)
}
