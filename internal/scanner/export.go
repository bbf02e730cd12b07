package scanner

import (
	"encoding/csv"
	"io"
	"strconv"

	"boxscan/internal/model"
)

var csvHeader = []string{
	"id", "underlying", "exchange", "lower", "higher", "expiry",
	"net_premium", "theoretical_value", "slippage", "fees", "margin",
	"roi_percent", "profitability_score", "max_loss", "max_profit",
}

// WriteCSV writes candidates ranked as given, one row per candidate, to w.
// This is the supplemented trade-blotter export named in spec.md's
// Non-goals as the one persistence form kept in scope.
func WriteCSV(w io.Writer, candidates []*model.Candidate) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, c := range candidates {
		row := []string{
			c.ID,
			c.Underlying,
			c.Exchange,
			strconv.FormatFloat(c.Lower, 'f', -1, 64),
			strconv.FormatFloat(c.Higher, 'f', -1, 64),
			c.Expiry.Format("2006-01-02"),
			strconv.FormatFloat(c.NetPremium, 'f', -1, 64),
			strconv.FormatFloat(c.TheoreticalValue, 'f', -1, 64),
			strconv.FormatFloat(c.Slippage, 'f', -1, 64),
			strconv.FormatFloat(c.Fees, 'f', -1, 64),
			strconv.FormatFloat(c.Margin, 'f', -1, 64),
			strconv.FormatFloat(c.ROIPercent, 'f', -1, 64),
			strconv.FormatFloat(c.ProfitabilityScore, 'f', -1, 64),
			strconv.FormatFloat(c.MaxLoss, 'f', -1, 64),
			strconv.FormatFloat(c.MaxProfit, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
