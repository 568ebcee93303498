package alerting

import (
	"testing"
	"time"

	"fuelwatch/internal/storage"
)

// flatHistory builds n records for the fuel type, one per hour going
// backwards from now, all at the same price.
func flatHistory(n int, price int64, now time.Time) []storage.PriceRecord {
	out := make([]storage.PriceRecord, 0, n)
	for i := n - 1; i >= 0; i-- {
		out = append(out, storage.PriceRecord{
			FuelType:  "U91",
			Price:     price,
			Timestamp: storage.NewTimestamp(now.Add(-time.Duration(i) * time.Hour)),
		})
	}
	return out
}

func candidateAt(price int64, now time.Time) storage.PriceRecord {
	return storage.PriceRecord{FuelType: "U91", Price: price, Timestamp: storage.NewTimestamp(now)}
}

func TestEvaluateColdStart(t *testing.T) {
	now := time.Now()
	history := flatHistory(9, 150, now)
	rule := storage.AlertRule{FuelType: "U91", Method: storage.MethodFixed, Threshold: 140}

	// 9 条样本不足以触发任何规则。
	triggered, _ := Evaluate(history, candidateAt(100, now), rule, now)
	if triggered {
		t.Fatal("fewer than ten samples must never trigger")
	}

	triggered, _ = Evaluate(flatHistory(10, 150, now), candidateAt(100, now), rule, now)
	if !triggered {
		t.Fatal("ten samples is enough for a clear fixed-threshold breach")
	}
}

func TestEvaluateIgnoresOldHistory(t *testing.T) {
	now := time.Now()
	history := flatHistory(20, 150, now.AddDate(0, 0, -120))
	rule := storage.AlertRule{FuelType: "U91", Method: storage.MethodFixed, Threshold: 140}

	triggered, _ := Evaluate(history, candidateAt(100, now), rule, now)
	if triggered {
		t.Fatal("history entirely older than 90 days leaves nothing to evaluate")
	}
}

func TestEvaluateMovingAverage(t *testing.T) {
	now := time.Now()

	// 239 samples at 100 plus one early spike at 105: the 240-sample mean
	// is 100.02, so the alert line lands at 95.02 and the 90-day high is
	// 105.
	history := flatHistory(240, 100, now)
	history[0].Price = 105
	rule := storage.AlertRule{FuelType: "U91", Method: storage.MethodMovingAverage}

	triggered, stats := Evaluate(history, candidateAt(93, now), rule, now)
	if !triggered {
		t.Fatal("93 is below the alert line with an 11.4% drawdown; it must trigger")
	}
	if got := stats.AlertLine.StringFixed(2); got != "95.02" {
		t.Fatalf("alert line: want 95.02 got %s", got)
	}
	if stats.Highest != 105 || stats.Lowest != 100 {
		t.Fatalf("stats high/low: got %d/%d", stats.Highest, stats.Lowest)
	}

	triggered, _ = Evaluate(history, candidateAt(96, now), rule, now)
	if triggered {
		t.Fatal("96 is above the alert line; it must not trigger")
	}
}

func TestEvaluateMovingAverageNeedsDrawdown(t *testing.T) {
	now := time.Now()
	// Flat history at 100: alert line 95, but a candidate at 94 is only a
	// 6% drop from the high.
	history := flatHistory(240, 100, now)
	rule := storage.AlertRule{FuelType: "U91", Method: storage.MethodMovingAverage}

	triggered, stats := Evaluate(history, candidateAt(94, now), rule, now)
	if triggered {
		t.Fatal("below the line but under a 10% drawdown must not trigger")
	}
	if got := stats.AlertLine.StringFixed(2); got != "95.00" {
		t.Fatalf("alert line: want 95.00 got %s", got)
	}

	// 89 is both below the line and an 11% drawdown.
	triggered, _ = Evaluate(history, candidateAt(89, now), rule, now)
	if !triggered {
		t.Fatal("89 satisfies both conditions and must trigger")
	}
}

func TestEvaluateMovingAverageWindow(t *testing.T) {
	now := time.Now()
	// 210 old samples at 100, then 30 recent samples at 90. A 30-sample
	// window averages only the recent block: line = 90 * 0.95 = 85.50.
	history := flatHistory(240, 100, now)
	for i := 210; i < 240; i++ {
		history[i].Price = 90
	}
	rule := storage.AlertRule{FuelType: "U91", Method: storage.MethodMovingAverage, Window: 30}

	triggered, stats := Evaluate(history, candidateAt(84, now), rule, now)
	if !triggered {
		t.Fatal("84 is below the windowed line with a 16% drawdown")
	}
	if got := stats.AlertLine.StringFixed(2); got != "85.50" {
		t.Fatalf("windowed alert line: want 85.50 got %s", got)
	}

	triggered, _ = Evaluate(history, candidateAt(86, now), rule, now)
	if triggered {
		t.Fatal("86 is above the windowed line")
	}
}

func TestEvaluateLowest(t *testing.T) {
	now := time.Now()
	history := flatHistory(20, 100, now)
	history[5].Price = 95
	rule := storage.AlertRule{FuelType: "U91", Method: storage.MethodLowest}

	triggered, _ := Evaluate(history, candidateAt(95, now), rule, now)
	if !triggered {
		t.Fatal("matching the 90-day low must trigger")
	}
	triggered, _ = Evaluate(history, candidateAt(96, now), rule, now)
	if triggered {
		t.Fatal("above the 90-day low must not trigger")
	}
}

func TestEvaluateFixed(t *testing.T) {
	now := time.Now()
	history := flatHistory(20, 150, now)

	rule := storage.AlertRule{FuelType: "U91", Method: storage.MethodFixed, Threshold: 140}
	triggered, stats := Evaluate(history, candidateAt(139, now), rule, now)
	if !triggered {
		t.Fatal("139 < 140 must trigger")
	}
	if stats.Threshold != 140 {
		t.Fatalf("stats threshold: got %d", stats.Threshold)
	}

	// The comparison is strict.
	triggered, _ = Evaluate(history, candidateAt(140, now), rule, now)
	if triggered {
		t.Fatal("140 is not below 140")
	}

	// Zero threshold falls back to the default ceiling.
	defaulted := storage.AlertRule{FuelType: "U91", Method: storage.MethodFixed}
	triggered, stats = Evaluate(history, candidateAt(139, now), defaulted, now)
	if !triggered || stats.Threshold != DefaultCeiling {
		t.Fatalf("default threshold: triggered=%v threshold=%d", triggered, stats.Threshold)
	}
}

func TestEvaluateUnknownMethod(t *testing.T) {
	now := time.Now()
	history := flatHistory(20, 150, now)
	rule := storage.AlertRule{FuelType: "U91", Method: storage.Method("percentile")}

	triggered, _ := Evaluate(history, candidateAt(1, now), rule, now)
	if triggered {
		t.Fatal("unknown methods never fire")
	}
}

func TestEvaluateZeroPricesDoNotPanic(t *testing.T) {
	now := time.Now()
	history := flatHistory(12, 0, now)
	rule := storage.AlertRule{FuelType: "U91", Method: storage.MethodMovingAverage}

	// 全零历史不能让除法崩溃。
	triggered, stats := Evaluate(history, candidateAt(0, now), rule, now)
	if triggered {
		t.Fatal("a degenerate all-zero window must not trigger")
	}
	if stats.Highest != 0 || stats.Lowest != 0 {
		t.Fatalf("stats over zero prices: got %d/%d", stats.Highest, stats.Lowest)
	}
}

func TestSummarize(t *testing.T) {
	now := time.Now()

	// Five samples is below the alert cold-start bar but the summary still
	// reports.
	history := flatHistory(5, 150, now)
	history[2].Price = 142

	stats := Summarize(history, 0, now)
	if stats.Samples != 5 {
		t.Fatalf("samples: want 5 got %d", stats.Samples)
	}
	if stats.Highest != 150 || stats.Lowest != 142 {
		t.Fatalf("high/low: got %d/%d", stats.Highest, stats.Lowest)
	}
	// Mean (4*150+142)/5 = 148.4, line 148.4*0.95 = 140.98.
	if got := stats.AlertLine.StringFixed(2); got != "140.98" {
		t.Fatalf("alert line: want 140.98 got %s", got)
	}
}

func TestSummarizeEmptyWindow(t *testing.T) {
	now := time.Now()

	if stats := Summarize(nil, 0, now); stats.Samples != 0 {
		t.Fatalf("empty history: got %+v", stats)
	}
	old := flatHistory(5, 150, now.AddDate(0, 0, -120))
	if stats := Summarize(old, 0, now); stats.Samples != 0 {
		t.Fatalf("stale history: got %+v", stats)
	}
}

func TestEvaluateChangePct(t *testing.T) {
	now := time.Now()
	history := flatHistory(20, 200, now)
	rule := storage.AlertRule{FuelType: "U91", Method: storage.MethodFixed, Threshold: 300}

	_, stats := Evaluate(history, candidateAt(180, now), rule, now)
	if got := stats.ChangePct.StringFixed(2); got != "-10.00" {
		t.Fatalf("change pct: want -10.00 got %s", got)
	}
}
