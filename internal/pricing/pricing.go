// Package pricing computes box-spread economics (Component F): theoretical
// value, net premium, depth-walk slippage, and the statutory/brokerage fee
// table. Every function is pure — no I/O, no shared state — so the
// combination evaluator can call them from any worker without locking.
package pricing

import (
	"boxscan/internal/config"
	"boxscan/internal/model"
)

// DefaultWorstCaseSlippagePct is used when a ladder is empty or exhausts
// before filling the requested quantity.
const DefaultWorstCaseSlippagePct = 5.0

// TheoreticalValue is higher minus lower, per spec.md §4.F.
func TheoreticalValue(lower, higher float64) float64 {
	return higher - lower
}

// NetPremium is the signed cash flow on entry: positive is a net credit.
func NetPremium(legs [4]*model.Instrument) float64 {
	lcLo, scHi, lpHi, spLo := legs[0], legs[1], legs[2], legs[3]
	return -lcLo.Snapshot.Last + scHi.Snapshot.Last - lpHi.Snapshot.Last + spLo.Snapshot.Last
}

// RawPL is the per-unit profit and loss before slippage and fees.
func RawPL(theoretical, netPremium float64) float64 {
	return theoretical - netPremium
}

// Side identifies whether a leg is being bought or sold on entry.
type Side int

const (
	Buy Side = iota
	Sell
)

// LegSlippage walks ladder (sell side for a buy leg, buy side for a sell
// leg) consuming min(remaining, level.Quantity) at each level, and returns
// the per-leg slippage per spec.md §4.F. last is the leg's last traded
// price; q is the requested quantity; worstCasePct is applied (as a
// percentage, e.g. 5 for 5%) when the ladder is empty or exhausts early.
func LegSlippage(ladder model.DepthLadder, last float64, q int64, side Side, worstCasePct float64) float64 {
	if len(ladder) == 0 || q <= 0 {
		return last * float64(q) * worstCasePct / 100
	}

	remaining := q
	var sum float64
	for _, lvl := range ladder {
		if remaining <= 0 {
			break
		}
		consumed := lvl.Quantity
		if consumed > remaining {
			consumed = remaining
		}
		sum += float64(consumed) * lvl.Price
		remaining -= consumed
	}

	if remaining > 0 {
		return last * float64(q) * worstCasePct / 100
	}

	vwap := sum / float64(q)
	if side == Buy {
		return (vwap - last) * float64(q)
	}
	return (last - vwap) * float64(q)
}

// TotalSlippage sums the per-leg slippage across all four legs of a
// candidate: LC_lo and LP_hi are buy legs priced off the sell ladder;
// SC_hi and SP_lo are sell legs priced off the buy ladder.
func TotalSlippage(legs [4]*model.Instrument, q int64, worstCasePct float64) float64 {
	lcLo, scHi, lpHi, spLo := legs[0], legs[1], legs[2], legs[3]
	total := LegSlippage(lcLo.Snapshot.Sell, lcLo.Snapshot.Last, q, Buy, worstCasePct)
	total += LegSlippage(scHi.Snapshot.Buy, scHi.Snapshot.Last, q, Sell, worstCasePct)
	total += LegSlippage(lpHi.Snapshot.Sell, lpHi.Snapshot.Last, q, Buy, worstCasePct)
	total += LegSlippage(spLo.Snapshot.Buy, spLo.Snapshot.Last, q, Sell, worstCasePct)
	return total
}

// Fees is the statutory/brokerage fee breakdown for one candidate at
// quantity q, computed per spec.md §4.F's FeeCalculator formulas.
type Fees struct {
	Turnover         float64
	Brokerage        float64
	STT              float64
	ExchangeCharges  float64
	GST              float64
	SEBI             float64
	StampDuty        float64
	Total            float64
}

// ComputeFees applies cfg's percentages to legs at quantity q.
func ComputeFees(legs [4]*model.Instrument, q int64, cfg config.FeesConfig) Fees {
	lcLo, scHi, lpHi, spLo := legs[0], legs[1], legs[2], legs[3]
	qf := float64(q)

	turnover := (lcLo.Snapshot.Last + scHi.Snapshot.Last + lpHi.Snapshot.Last + spLo.Snapshot.Last) * qf

	brokerage := turnover * cfg.BrokeragePercentage
	maxBrokerage := 4 * cfg.MaxBrokeragePerOrder
	if brokerage > maxBrokerage {
		brokerage = maxBrokerage
	}

	stt := (scHi.Snapshot.Last + spLo.Snapshot.Last) * qf * cfg.STTPercentage
	exchangeCharges := turnover * cfg.ExchangeChargesPct
	gst := (brokerage + exchangeCharges) * cfg.GSTPercentage
	sebi := turnover * cfg.SEBIChargesPerCrore / 1e7
	stamp := (lcLo.Snapshot.Last + lpHi.Snapshot.Last) * qf * cfg.StampDutyPercentage

	total := brokerage + stt + exchangeCharges + gst + sebi + stamp

	return Fees{
		Turnover:        turnover,
		Brokerage:       brokerage,
		STT:             stt,
		ExchangeCharges: exchangeCharges,
		GST:             gst,
		SEBI:            sebi,
		StampDuty:       stamp,
		Total:           total,
	}
}

// AdjustedPL is raw P/L per unit minus per-candidate slippage and fees.
func AdjustedPL(rawPL, slippage, fees float64) float64 {
	return rawPL - slippage - fees
}

// Price fills in a Candidate's theoretical value, net premium, slippage,
// and fee fields from its legs. Risk/margin fields are left to
// internal/risk, which consumes this output.
func Price(c *model.Candidate, q int64, worstCasePct float64, feeCfg config.FeesConfig) {
	legs := c.Legs()
	c.TheoreticalValue = TheoreticalValue(c.Lower, c.Higher)
	c.NetPremium = NetPremium(legs)
	c.Slippage = TotalSlippage(legs, q, worstCasePct)
	fees := ComputeFees(legs, q, feeCfg)
	c.Fees = fees.Total
}
