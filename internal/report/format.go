package report

import (
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/deeplydigital/pole-burndown/internal/model"
)

// Printer returns a number-formatting printer for locale, falling back to
// American English when locale does not parse.
func Printer(locale string) *message.Printer {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.AmericanEnglish
	}
	return message.NewPrinter(tag)
}

// DailySummary renders the plain-text body for the daily report.
func DailySummary(p *message.Printer, d Daily) string {
	var total, completed int
	for _, j := range d.Jobs {
		total += j.TotalPoles
		completed += j.CompletedPoles
	}

	var b strings.Builder
	b.WriteString(p.Sprintf("Aerial status as of %s\n\n", d.Generated.Format("01/02/2006 03:04 PM")))
	b.WriteString(p.Sprintf("Jobs: %d\nPoles: %d total, %d field complete\n", len(d.Jobs), total, completed))
	for _, r := range d.Burndown {
		if r.EntityType != model.EntityUtility {
			continue
		}
		b.WriteString(p.Sprintf("  %s: %d of %d poles, %.1f poles/week, ETA %s\n",
			r.Entity, r.CompletedPoles, r.TotalPoles, r.RunRate, eta(r.EstimatedCompletion)))
	}
	return b.String()
}

// WeeklySummary renders the plain-text body for the weekly report.
func WeeklySummary(p *message.Printer, ws *model.WeeklyStatus) string {
	var b strings.Builder
	b.WriteString(p.Sprintf("Weekly status %s to %s\n\n", ws.Start.Format(dateLayout), ws.End.Format(dateLayout)))
	for _, d := range ws.Utilities {
		b.WriteString(p.Sprintf("  %s: %d of %d poles (%+d this week)\n",
			d.Entity, d.CompletedPoles, d.TotalPoles, d.CompletedDelta))
	}
	b.WriteString("\nTransitions:\n")
	for _, c := range model.StatusCategories {
		b.WriteString(p.Sprintf("  %s: %d\n", string(c), ws.Transitions[c]))
	}
	b.WriteString(p.Sprintf("\nBacklog: %d field, %d back office, %d awaiting approval\n",
		ws.Backlog.Field, ws.Backlog.BackOffice, ws.Backlog.ApproveConstruction))
	return b.String()
}

func eta(t *time.Time) string {
	if t == nil {
		return "unknown"
	}
	return t.Format(dateLayout)
}
