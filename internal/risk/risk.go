// Package risk computes margin, ROI, and profitability for a priced box
// candidate (Component G). Like internal/pricing, every function here is
// pure: margin/ROI depend only on a Candidate's already-priced fields plus
// the configured quantity and risk percentages.
package risk

import (
	"math"

	"boxscan/internal/config"
	"boxscan/internal/model"
)

// RawPL recovers the per-unit profit before slippage and fees from a priced
// candidate's theoretical value and net premium.
func RawPL(c *model.Candidate) float64 {
	return c.TheoreticalValue - c.NetPremium
}

// AdjustedPL is the position's total profit and loss at quantity q:
// per-unit raw P/L scaled to q, minus the candidate's already-total
// slippage and fees (both computed by internal/pricing at quantity q).
func AdjustedPL(c *model.Candidate, q int64) float64 {
	return RawPL(c)*float64(q) - c.Slippage - c.Fees
}

// MaxLoss is the worst-case loss on the position at quantity q: when the
// entry was a net debit, the per-unit debit scaled to q; otherwise the
// already-total transaction costs.
func MaxLoss(c *model.Candidate, q int64) float64 {
	if c.NetPremium < 0 {
		return -c.NetPremium * float64(q)
	}
	return c.Fees + c.Slippage
}

// SpanMargin pads maxLoss by the configured buffer percentage.
func SpanMargin(maxLoss float64, bufferPct float64) float64 {
	return maxLoss * (1 + bufferPct/100)
}

// ExposureMargin is a percentage of the candidate's turnover.
func ExposureMargin(turnover float64, exposurePct float64) float64 {
	return turnover * exposurePct / 100
}

// MarginRequired is span plus exposure margin.
func MarginRequired(span, exposure float64) float64 {
	return span + exposure
}

// ROIPercent is adjustedPL over marginRequired, expressed as a percentage;
// 0 when margin is non-positive.
func ROIPercent(adjustedPL, marginRequired float64) float64 {
	if marginRequired <= 0 {
		return 0
	}
	return adjustedPL / marginRequired * 100
}

// ProfitabilityScore is ROI scaled by the log of the magnitude of
// adjustedPL, used only for ranking.
func ProfitabilityScore(roi, adjustedPL float64) float64 {
	return roi * math.Log(1+math.Abs(adjustedPL))
}

// MaxQuantity caps position size by available capital: floor(capital /
// marginForOne) scaled by the safety factor, clamped to at least 1.
func MaxQuantity(capital, marginForOne, safetyFactor float64) int64 {
	if marginForOne <= 0 {
		return 1
	}
	n := math.Floor(capital/marginForOne) * safetyFactor
	if n < 1 {
		return 1
	}
	return int64(n)
}

// MeetsRisk reports whether roi clears minROI and maxLoss stays within
// maxLossPct of capital.
func MeetsRisk(roi, maxLoss, capital, minROI, maxLossPct float64) bool {
	if roi < minROI {
		return false
	}
	if capital <= 0 {
		return maxLoss <= 0
	}
	return maxLoss/capital*100 <= maxLossPct
}

// Assess fills in a priced Candidate's Margin, ROIPercent, ProfitabilityScore,
// MaxLoss, and MaxProfit fields at quantity q.
func Assess(c *model.Candidate, q int64, turnover float64, cfg config.RiskConfig) {
	maxLoss := MaxLoss(c, q)
	span := SpanMargin(maxLoss, cfg.MarginBufferPct)
	exposure := ExposureMargin(turnover, cfg.ExposureMarginPct)
	margin := MarginRequired(span, exposure)
	adjustedPL := AdjustedPL(c, q)
	roi := ROIPercent(adjustedPL, margin)

	c.MaxLoss = maxLoss
	c.Margin = margin
	c.ROIPercent = roi
	c.ProfitabilityScore = ProfitabilityScore(roi, adjustedPL)
	c.MaxProfit = math.Max(c.TheoreticalValue*float64(q)-maxLoss, 0)
}
