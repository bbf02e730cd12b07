package pricing

import (
	"testing"

	"boxscan/internal/config"
	"boxscan/internal/model"

	"github.com/stretchr/testify/assert"
)

func leg(last float64, sell, buy model.DepthLadder) *model.Instrument {
	return &model.Instrument{Snapshot: model.Snapshot{Last: last, Sell: sell, Buy: buy}}
}

// scenario 1 from spec.md §8: single viable box.
func TestSingleViableBox_TheoreticalAndNetPremium(t *testing.T) {
	lcLo := leg(30, nil, nil)
	scHi := leg(50, nil, nil)
	lpHi := leg(90, nil, nil)
	spLo := leg(40, nil, nil)
	legs := [4]*model.Instrument{lcLo, scHi, lpHi, spLo}

	assert.Equal(t, 100.0, TheoreticalValue(18000, 18100))
	assert.Equal(t, -30.0, NetPremium(legs))
	assert.Equal(t, 130.0, RawPL(100, -30))
}

// scenario 2 from spec.md §8: depth exhaustion.
func TestLegSlippage_ExhaustedLadder_UsesWorstCase(t *testing.T) {
	ladder := model.DepthLadder{{Price: 30, Quantity: 3, Orders: 1}}
	got := LegSlippage(ladder, 30, 10, Sell, DefaultWorstCaseSlippagePct)
	assert.Equal(t, 15.0, got)
}

func TestLegSlippage_EmptyLadder_UsesWorstCase(t *testing.T) {
	got := LegSlippage(nil, 30, 10, Buy, DefaultWorstCaseSlippagePct)
	assert.Equal(t, 15.0, got)
}

func TestLegSlippage_FullyFilled_ComputesVWAP(t *testing.T) {
	ladder := model.DepthLadder{
		{Price: 30.1, Quantity: 5, Orders: 1},
		{Price: 30.3, Quantity: 5, Orders: 1},
	}
	got := LegSlippage(ladder, 30, 10, Buy, DefaultWorstCaseSlippagePct)
	assert.InDelta(t, 2.0, got, 1e-9) // vwap=30.2, (30.2-30)*10=2.0
}

func TestComputeFees_MatchesFeeCalculatorFormulas(t *testing.T) {
	lcLo := leg(30, nil, nil)
	scHi := leg(50, nil, nil)
	lpHi := leg(90, nil, nil)
	spLo := leg(40, nil, nil)
	legs := [4]*model.Instrument{lcLo, scHi, lpHi, spLo}

	fees := ComputeFees(legs, 1, config.DefaultFees())
	assert.Equal(t, 210.0, fees.Turnover)
	assert.InDelta(t, 0.063, fees.Brokerage, 1e-9)
	assert.InDelta(t, 0.045, fees.STT, 1e-9) // (50+40)*1*0.0005
	assert.InDelta(t, 0.0011130, fees.ExchangeCharges, 1e-6)
	assert.InDelta(t, 0.0036, fees.StampDuty, 1e-9) // (30+90)*1*0.00003
}

func TestComputeFees_BrokerageCapsAtFourOrders(t *testing.T) {
	big := leg(1_000_000, nil, nil)
	legs := [4]*model.Instrument{big, big, big, big}
	fees := ComputeFees(legs, 1, config.DefaultFees())
	assert.Equal(t, 80.0, fees.Brokerage) // 4 * 20.0 cap
}
