package main

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"tally/internal/ledger"
)

var numbers = message.NewPrinter(language.English)

func formatCount(n int64) string {
	return numbers.Sprintf("%d", n)
}

func formatPercent(pct float64) string {
	return numbers.Sprintf("%.1f%%", pct)
}

func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// formatProgress renders "processed / total".
func formatProgress(processed, total int64) string {
	return formatBytes(processed) + " / " + formatBytes(total)
}

func formatAmount(code string, amount decimal.Decimal) string {
	return ledger.FormatAmount(code, amount)
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}
