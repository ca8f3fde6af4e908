package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/kalambet/offerjourney/internal/config"
	"github.com/kalambet/offerjourney/internal/journey"
	"github.com/kalambet/offerjourney/internal/storage"
)

// Status notices go to stderr so that journey output on stdout stays
// pipeable.

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// dateLayout is the dashboard's date format.
const dateLayout = "Jan 02, 2006"

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func notice(color, symbol, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(color, symbol+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { notice(colorGreen, "✓", format, args...) }
func printError(format string, args ...any)   { notice(colorRed, "✗", format, args...) }
func printWarning(format string, args ...any) { notice(colorYellow, "⚠", format, args...) }
func printStep(format string, args ...any)    { notice(colorCyan, "→", format, args...) }

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}

// outcome labels a step the way the dashboard timeline does.
func outcome(converted bool) string {
	if converted {
		return colorize(colorGreen, "Converted")
	}
	return colorize(colorRed, "No Convert")
}

func outcomeMark(converted bool) string {
	if converted {
		return colorize(colorGreen, "✓")
	}
	return colorize(colorRed, "✗")
}

func conversions(n, total int) string {
	return fmt.Sprintf("%d/%d conversions", n, total)
}

// improvement is green when the transformer wins and red when it loses.
func improvement(pct float64) string {
	color := colorGreen
	if pct < 0 {
		color = colorRed
	}
	return colorize(color, fmt.Sprintf("%.0f%%", pct))
}

func printJourney(w io.Writer, j journey.Journey) {
	kind := "derived"
	if j.Synthetic {
		kind = "synthetic"
	}
	fmt.Fprintf(w, "%s (%s): %s\n", colorize(colorBold, j.Strategy.Label()), kind, conversions(j.Conversions(), j.Len()))
	for i, s := range j.Steps {
		fmt.Fprintf(w, "  %2d  %s  %s  %-28s via %s\n", i, s.Date.Format(dateLayout), outcomeMark(s.Converted), s.Offer, s.Channel)
	}
}

func printFrame(w io.Writer, f journey.Frame) {
	fmt.Fprintf(w, "Step %d of %d\n", f.Index, f.MaxStep)
	for _, v := range []journey.StepView{f.Rule, f.Transformer} {
		label := colorize(colorBold, fmt.Sprintf("%-12s", v.Strategy.Label()))
		if v.Exhausted {
			fmt.Fprintf(w, "  %s %s\n", label, colorize(colorYellow, v.Message))
			continue
		}
		fmt.Fprintf(w, "  %s %s  %s via %s  %s\n", label, v.Step.Date.Format(dateLayout), v.Step.Offer, v.Step.Channel, outcome(v.Step.Converted))
	}
}

func printComparison(w io.Writer, c customerSummary) {
	fmt.Fprintln(w, colorize(colorBold, fmt.Sprintf("Customer %d", c.Key)))
	if c.Known {
		fmt.Fprintf(w, "  FICO %d | Income $%.0f | Loan $%.0f | MOB %d months\n", c.CreditScore, c.Income, c.LoanBalance, c.MonthsOnBook)
	} else {
		fmt.Fprintln(w, "  no interaction history, showing the demo journeys")
	}
	cmp := c.Comparison
	fmt.Fprintf(w, "  Rule-Based:   %s\n", conversions(cmp.RuleConversions, cmp.RuleSteps))
	fmt.Fprintf(w, "  Transformer:  %s\n", conversions(cmp.TransformerConversions, cmp.TransformerSteps))
	fmt.Fprintf(w, "  Improvement:  %s\n", improvement(cmp.ImprovementPct))
}

func importStatus(status string) string {
	switch status {
	case storage.ImportCompleted:
		return colorize(colorGreen, status)
	case storage.ImportFailed:
		return colorize(colorRed, status)
	default:
		return colorize(colorYellow, status)
	}
}

func printImport(w io.Writer, imp storage.Import) {
	id := imp.ID
	if len(id) > 8 {
		id = id[:8]
	}
	fmt.Fprintf(w, "%s  %s  %-9s  %6d rows  %s\n",
		colorize(colorCyan, id),
		imp.StartedAt.Local().Format("2006-01-02 15:04"),
		importStatus(imp.Status),
		imp.Rows,
		imp.Location,
	)
	if imp.LastError != "" {
		fmt.Fprintf(w, "          %s\n", imp.LastError)
	}
}

func printCustomerKey(w io.Writer, key int64, isDefault bool) {
	if isDefault {
		fmt.Fprintf(w, "%s  (default)\n", colorize(colorCyan, strconv.FormatInt(key, 10)))
		return
	}
	fmt.Fprintln(w, key)
}

func printConfigKey(w io.Writer, k config.KeyInfo) {
	fmt.Fprintf(w, "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "$"+k.EnvVar))
}
