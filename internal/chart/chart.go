// Package chart renders a price series with its alert line as a PNG, for
// the weekly digest and the export command.
package chart

import (
	"bytes"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	chartlib "github.com/wcharczuk/go-chart/v2"

	"fuelwatch/internal/storage"
)

// ErrNotEnoughData means the series has fewer than two points, which the
// renderer cannot plot.
var ErrNotEnoughData = errors.New("chart: need at least two data points")

var discount = decimal.NewFromFloat(0.95)

// Render plots the records' prices over time together with the rolling
// alert line (95 % of the trailing moving average, same window policy as
// the evaluator) and returns the encoded PNG.
func Render(title string, records []storage.PriceRecord, window int) ([]byte, error) {
	if len(records) < 2 {
		return nil, ErrNotEnoughData
	}
	if window <= 0 {
		window = 240
	}

	x := make([]time.Time, len(records))
	prices := make([]float64, len(records))
	alertLine := make([]float64, len(records))

	sum := decimal.Zero
	for i, rec := range records {
		x[i] = rec.Timestamp.Time
		prices[i] = float64(rec.Price)

		sum = sum.Add(decimal.NewFromInt(rec.Price))
		n := i + 1
		if n > window {
			sum = sum.Sub(decimal.NewFromInt(records[i-window].Price))
			n = window
		}
		ma := sum.Div(decimal.NewFromInt(int64(n)))
		alertLine[i], _ = ma.Mul(discount).Round(2).Float64()
	}

	graph := chartlib.Chart{
		Title:  title,
		Width:  1280,
		Height: 720,
		XAxis: chartlib.XAxis{
			ValueFormatter: chartlib.TimeValueFormatter,
		},
		YAxis: chartlib.YAxis{
			Name: "Price (¢/L)",
			ValueFormatter: func(v interface{}) string {
				return chartlib.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Series: []chartlib.Series{
			chartlib.TimeSeries{
				Name:    "Lowest Price",
				XValues: x,
				YValues: prices,
			},
			chartlib.TimeSeries{
				Name:    "Alert Line",
				XValues: x,
				YValues: alertLine,
				Style: chartlib.Style{
					StrokeDashArray: []float64{5.0, 5.0},
				},
			},
		},
	}
	graph.Elements = []chartlib.Renderable{chartlib.Legend(&graph)}

	buf := &bytes.Buffer{}
	if err := graph.Render(chartlib.PNG, buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
