package risk

import (
	"math"
	"testing"

	"boxscan/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestMaxLoss_NetDebit_UsesDebitMagnitude(t *testing.T) {
	c := &model.Candidate{NetPremium: -30}
	assert.Equal(t, 300.0, MaxLoss(c, 10))
}

func TestMaxLoss_NetCredit_UsesTransactionCosts(t *testing.T) {
	// Fees/Slippage are already totals for the configured quantity (see
	// internal/pricing), so MaxLoss must not re-scale them by q.
	c := &model.Candidate{NetPremium: 10, Fees: 2, Slippage: 3}
	assert.Equal(t, 5.0, MaxLoss(c, 10))
}

func TestSpanMargin_AppliesBufferPercent(t *testing.T) {
	assert.Equal(t, 125.0, SpanMargin(100, 25))
}

func TestROIPercent_ZeroMargin_ReturnsZero(t *testing.T) {
	assert.Equal(t, 0.0, ROIPercent(50, 0))
}

func TestProfitabilityScore_MatchesFormula(t *testing.T) {
	got := ProfitabilityScore(10, 9)
	assert.InDelta(t, 10*math.Log(10), got, 1e-9)
}

func TestMaxQuantity_ClampsToAtLeastOne(t *testing.T) {
	assert.Equal(t, int64(1), MaxQuantity(1000, 10000, 0.9))
}

func TestMaxQuantity_ScalesBySafetyFactor(t *testing.T) {
	assert.Equal(t, int64(90), MaxQuantity(100000, 1000, 0.9))
}

func TestMeetsRisk_FailsBelowMinROI(t *testing.T) {
	assert.False(t, MeetsRisk(5, 100, 100000, 10, 100))
}

func TestMeetsRisk_FailsWhenLossExceedsCapitalPct(t *testing.T) {
	assert.False(t, MeetsRisk(20, 60000, 100000, 10, 50))
}

func TestMeetsRisk_PassesWithinBounds(t *testing.T) {
	assert.True(t, MeetsRisk(20, 1000, 100000, 10, 50))
}
