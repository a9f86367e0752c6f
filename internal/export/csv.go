// Package export renders portfolio holdings as tabular text.
package export

import (
	"encoding/csv"
	"io"
	"time"

	"coinfolio/internal/service"

	"github.com/shopspring/decimal"
)

// WriteCSV writes a portfolio's holdings in display order with the
// derived profit/loss column. Unknown prices render as zero to keep
// the table numeric.
func WriteCSV(w io.Writer, view *service.PortfolioView, now time.Time) error {
	cw := csv.NewWriter(w)

	rows := [][]string{
		{"Portfolio:", view.Name},
		{"Export Date:", now.Format(time.RFC3339)},
		{},
		{"Symbol", "Name", "Amount", "Price", "Value", "Avg Buy", "P/L"},
	}
	for _, r := range rows {
		if err := cw.Write(r); err != nil {
			return err
		}
	}

	for _, h := range view.Holdings {
		row := []string{
			h.Symbol,
			h.Name,
			h.Amount.String(),
			decOrZero(h.CurrentPrice),
			h.CurrentValue.String(),
			decOrZero(h.AverageBuyPrice),
			h.ProfitLoss.String(),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func decOrZero(d *decimal.Decimal) string {
	if d == nil {
		return "0"
	}
	return d.String()
}
