package notifier

import (
	"fmt"
	"sort"
	"strings"

	"fuelwatch/internal/alerting"
	"fuelwatch/internal/storage"
)

// chartFilename is the inline attachment name; the digest HTML references
// it as cid:weekly_chart.png.
const chartFilename = "weekly_chart.png"

func renderAlertHTML(rec storage.PriceRecord, stats alerting.Stats, dashboardURL string) string {
	b := strings.Builder{}
	b.WriteString("<div style='font-family:Arial,sans-serif;font-size:16px;'>")
	b.WriteString("<h2 style='color:#333'>Now is a good time to fill up</h2>")
	b.WriteString("<div style='background:#fff;border-left:4px solid #2196F3;padding:12px;margin-bottom:16px'>")
	b.WriteString(fmt.Sprintf("<b>%s</b><br>", rec.Station))
	b.WriteString(fmt.Sprintf("%s, %s %s<br>", rec.Suburb, rec.State, rec.Postcode))
	b.WriteString(fmt.Sprintf("%s</div>", rec.Timestamp.Format(storage.TimeLayout)))
	b.WriteString("<table style='border-collapse:collapse;text-align:left'>")
	writeRow(&b, "Current Price", fmt.Sprintf("%d¢/L", rec.Price))
	writeRow(&b, "90 Day High", fmt.Sprintf("%d¢/L", stats.Highest))
	writeRow(&b, "Change", fmt.Sprintf("%s%%", stats.ChangePct.StringFixed(2)))
	if !stats.AlertLine.IsZero() {
		writeRow(&b, "Alert Line", fmt.Sprintf("%s¢/L", stats.AlertLine.StringFixed(2)))
	}
	if stats.Threshold > 0 {
		writeRow(&b, "Ceiling", fmt.Sprintf("%d¢/L", stats.Threshold))
	}
	b.WriteString("</table>")
	if dashboardURL != "" {
		b.WriteString(fmt.Sprintf("<p style='margin-top:12px'>See the <a href='%s'>dashboard</a> for the full trend.</p>", dashboardURL))
	}
	b.WriteString("<p style='color:#777;font-size:12px'>This email was sent automatically. Unsubscribe from the website.</p>")
	b.WriteString("</div>")
	return b.String()
}

func renderDigestHTML(digest Digest, dashboardURL string) string {
	types := make([]string, 0, len(digest.Prices))
	for t := range digest.Prices {
		types = append(types, t)
	}
	sort.Strings(types)

	b := strings.Builder{}
	b.WriteString("<div style='font-family:Arial,sans-serif;font-size:16px;'>")
	b.WriteString("<h2 style='color:#333;margin-bottom:10px'>Current Fuel Prices</h2>")
	b.WriteString("<table style='border-collapse:collapse;text-align:left;'>")
	b.WriteString("<thead><tr style='background:#f4f6f8'>")
	b.WriteString("<th style='padding:8px 12px;border:1px solid #ddd'>Fuel</th>")
	b.WriteString("<th style='padding:8px 12px;border:1px solid #ddd'>Price</th>")
	b.WriteString("</tr></thead><tbody>")
	for _, t := range types {
		b.WriteString(fmt.Sprintf("<tr><td style='padding:8px 12px;border:1px solid #ddd'>%s</td>", t))
		b.WriteString(fmt.Sprintf("<td style='padding:8px 12px;border:1px solid #ddd'>%d¢/L</td></tr>", digest.Prices[t]))
	}
	b.WriteString("</tbody></table>")

	if digest.Samples > 0 {
		b.WriteString(fmt.Sprintf("<h3 style='color:#333;margin-top:20px'>%s · last 90 days</h3>", digest.Primary))
		b.WriteString("<table style='border-collapse:collapse;text-align:left;'>")
		writeRow(&b, "Current", fmt.Sprintf("%d¢/L", digest.Current))
		writeRow(&b, "90 Day High", fmt.Sprintf("%d¢/L", digest.Highest))
		writeRow(&b, "90 Day Low", fmt.Sprintf("%d¢/L", digest.Lowest))
		if !digest.AlertLine.IsZero() {
			writeRow(&b, "Alert Line", fmt.Sprintf("%s¢/L", digest.AlertLine.StringFixed(2)))
		}
		writeRow(&b, "Data Points", fmt.Sprintf("%d", digest.Samples))
		b.WriteString("</table>")
	}

	if len(digest.ChartPNG) > 0 {
		b.WriteString(fmt.Sprintf("<div style='margin:20px 0'><img src='cid:%s' alt='price trend' style='max-width:100%%;height:auto'></div>", chartFilename))
	}
	if dashboardURL != "" {
		b.WriteString(fmt.Sprintf("<p style='margin-top:10px'>Visit the <a href='%s'>dashboard</a> for details.</p>", dashboardURL))
	}
	b.WriteString("<p style='color:#777;font-size:12px'>Sent weekly. Unsubscribe from the website.</p>")
	b.WriteString("</div>")
	return b.String()
}

func renderVerificationHTML(code string) string {
	return fmt.Sprintf(
		"<div style='font-family:Arial,sans-serif;font-size:16px;'>"+
			"<p>Your verification code is <b style='font-size:24px'>%s</b></p>"+
			"<p style='color:#555'>This code expires in 1 minute.</p>"+
			"</div>",
		code,
	)
}

func writeRow(b *strings.Builder, label, value string) {
	b.WriteString(fmt.Sprintf(
		"<tr><td style='padding:8px 12px;border:1px solid #ddd'>%s</td>"+
			"<td style='padding:8px 12px;border:1px solid #ddd'>%s</td></tr>",
		label, value,
	))
}
