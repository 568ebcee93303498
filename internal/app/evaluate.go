package app

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"fuelwatch/internal/alerting"
	"fuelwatch/internal/storage"
)

// EvaluateRule 在存储的历史数据上离线运行一条告警规则并打印统计结果。
func (a *App) EvaluateRule(opts EvaluateOptions) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}

	history := store.History(opts.FuelType, time.Time{})
	if len(history) == 0 {
		return errors.New("no history for fuel type " + opts.FuelType)
	}
	candidate := history[len(history)-1]

	rule := storage.AlertRule{
		FuelType:  opts.FuelType,
		Method:    storage.Method(opts.Method),
		Threshold: opts.Threshold,
		Window:    opts.Window,
	}

	now := time.Now()
	triggered, _ := alerting.Evaluate(history, candidate, rule, now)
	stats := alerting.Summarize(history, opts.Window, now)
	if rule.Method == storage.MethodFixed {
		stats.Threshold = opts.Threshold
		if stats.Threshold <= 0 {
			stats.Threshold = alerting.DefaultCeiling
		}
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Fuel\t%s\n", opts.FuelType)
	fmt.Fprintf(writer, "Method\t%s\n", opts.Method)
	fmt.Fprintf(writer, "Candidate\t%d¢/L (%s)\n", candidate.Price, candidate.Timestamp.Format(storage.TimeLayout))
	fmt.Fprintf(writer, "Triggered\t%v\n", triggered)
	fmt.Fprintf(writer, "90d High\t%d¢/L\n", stats.Highest)
	fmt.Fprintf(writer, "90d Low\t%d¢/L\n", stats.Lowest)
	if !stats.AlertLine.IsZero() {
		fmt.Fprintf(writer, "Alert Line\t%s¢/L\n", stats.AlertLine.StringFixed(2))
	}
	if stats.Threshold > 0 {
		fmt.Fprintf(writer, "Threshold\t%d¢/L\n", stats.Threshold)
	}
	fmt.Fprintf(writer, "Change\t%s%%\n", stats.ChangePct.StringFixed(2))
	fmt.Fprintf(writer, "Samples\t%d\n", stats.Samples)
	return writer.Flush()
}
