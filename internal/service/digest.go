package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gasto-obra/backend/internal/domain"
	"github.com/gasto-obra/backend/internal/parser"
)

// DailyDigestMessage builds the end-of-day summary sent to a project's
// client: the day's entries, the day's total and the project's running
// total, with a link into the web app when the project has a share token.
func DailyDigestMessage(project *domain.Project, entries []domain.LedgerEntry, accumulated decimal.Decimal, day time.Time, appURL string) string {
	dayTotal := decimal.Zero
	var lines []string
	for _, e := range entries {
		dayTotal = dayTotal.Add(e.Amount)
		category := ""
		if e.Category != "" {
			category = fmt.Sprintf(" (%s)", parser.CapitalizeFirst(string(e.Category)))
		}
		lines = append(lines, fmt.Sprintf("  %s - %s%s", parser.FormatAmount(e.Amount), e.Title, category))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Resumen del dia - %s*\nFecha: %s\n\n", project.Name, day.Format("02/01/2006"))
	b.WriteString("*Gastos de hoy:*\n")
	b.WriteString(strings.Join(lines, "\n"))
	fmt.Fprintf(&b, "\n\n*Total del dia:* %s", parser.FormatAmount(dayTotal))
	fmt.Fprintf(&b, "\n*Total acumulado del proyecto:* %s", parser.FormatAmount(accumulated))
	if project.ShareToken != "" {
		fmt.Fprintf(&b, "\n\nVer detalle: %s/view/%s", appURL, project.ShareToken)
	}
	return b.String()
}
