package combo

import (
	"context"
	"testing"
	"time"

	"boxscan/internal/config"
	"boxscan/internal/model"
	"boxscan/internal/workerpool"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInstruments struct {
	byExchange map[string][]*model.Instrument
}

func (f *fakeInstruments) ByExchange(exchange string) ([]*model.Instrument, error) {
	return f.byExchange[exchange], nil
}

func (f *fakeInstruments) ByToken(token uint64) (*model.Instrument, bool) {
	for _, list := range f.byExchange {
		for _, inst := range list {
			if inst.Token == token {
				return inst, true
			}
		}
	}
	return nil, false
}

type fakeQuotes struct {
	snapshots map[uint64]model.Snapshot
}

func (f *fakeQuotes) Quotes(ctx context.Context, tokens []uint64) (map[uint64]model.Snapshot, error) {
	out := map[uint64]model.Snapshot{}
	for _, tok := range tokens {
		if s, ok := f.snapshots[tok]; ok {
			out[tok] = s
		}
	}
	return out, nil
}

var expiry = time.Date(2024, 6, 27, 0, 0, 0, 0, time.UTC)

func optLeg(token uint64, strike float64, kind model.OptionKind, symbol string) *model.Instrument {
	return &model.Instrument{
		Token:      token,
		Symbol:     symbol,
		Exchange:   "NFO",
		Underlying: "NIFTY",
		Kind:       model.KindOption,
		Option:     &model.OptionDetail{Strike: strike, Kind: kind, Expiry: expiry},
	}
}

func fullLadder(price float64) model.DepthLadder {
	return model.DepthLadder{{Price: price, Quantity: 1000, Orders: 1}}
}

func buildUniverse() *fakeInstruments {
	return &fakeInstruments{byExchange: map[string][]*model.Instrument{
		"NFO": {
			optLeg(1, 18000, model.Call, "NIFTY24JUN27C18000CE"),
			optLeg(2, 18000, model.Put, "NIFTY24JUN27C18000PE"),
			optLeg(3, 18100, model.Call, "NIFTY24JUN27C18100CE"),
			optLeg(4, 18100, model.Put, "NIFTY24JUN27C18100PE"),
		},
	}}
}

func buildQuotes() *fakeQuotes {
	return &fakeQuotes{snapshots: map[uint64]model.Snapshot{
		1: {Last: 30, Sell: fullLadder(30), Buy: fullLadder(29)},
		2: {Last: 40, Sell: fullLadder(41), Buy: fullLadder(40)},
		3: {Last: 50, Sell: fullLadder(51), Buy: fullLadder(50)},
		4: {Last: 90, Sell: fullLadder(91), Buy: fullLadder(90)},
	}}
}

func testParams() Params {
	return Params{
		Quantity:             1,
		Capital:              100000,
		MinROI:               -1e9,
		MinProfitability:     -1e9,
		MaxSlippage:          1e9,
		MinStrikeDiff:        0,
		MaxStrikeDiff:        1e9,
		WorstCaseSlippagePct: 5,
		StrikeRangePercent:   5,
		Fees:                 config.DefaultFees(),
		Risk:                 config.DefaultRisk(),
	}
}

func TestEvaluate_SingleViableBox_AppearsInOutput(t *testing.T) {
	e := New(buildUniverse(), buildQuotes(), workerpool.New(2), nil)
	got, err := e.Evaluate(context.Background(), "NIFTY", "NFO", expiry, 18050, testParams())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 100.0, got[0].TheoreticalValue)
	assert.Equal(t, -30.0, got[0].NetPremium)
}

func TestEvaluate_FilterEliminatesBySlippage(t *testing.T) {
	p := testParams()
	p.MaxSlippage = 0 // no real quote produces exactly 0 slippage here
	e := New(buildUniverse(), buildQuotes(), workerpool.New(2), nil)
	got, err := e.Evaluate(context.Background(), "NIFTY", "NFO", expiry, 18050, p)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEvaluate_FewerThanTwoStrikes_ReturnsEmpty(t *testing.T) {
	universe := &fakeInstruments{byExchange: map[string][]*model.Instrument{
		"NFO": {optLeg(1, 18000, model.Call, "X"), optLeg(2, 18000, model.Put, "Y")},
	}}
	e := New(universe, buildQuotes(), workerpool.New(1), nil)
	got, err := e.Evaluate(context.Background(), "NIFTY", "NFO", expiry, 18050, testParams())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStrikeSet_IsCachedUntilClear(t *testing.T) {
	universe := buildUniverse()
	e := New(universe, buildQuotes(), workerpool.New(1), nil)

	first, err := e.strikeSet("NIFTY", "NFO", expiry, 18050, 5)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	universe.byExchange["NFO"] = append(universe.byExchange["NFO"], optLeg(5, 20000, model.Call, "Z"))
	second, err := e.strikeSet("NIFTY", "NFO", expiry, 18050, 5)
	require.NoError(t, err)
	assert.Len(t, second, 2) // still cached

	e.Clear()
	third, err := e.strikeSet("NIFTY", "NFO", expiry, 18050, 5)
	require.NoError(t, err)
	assert.Len(t, third, 2) // 20000 outside the 5% band around 18050, still excluded
}

type fakePersistentCache struct {
	strikes map[string][]float64
	legs    map[string]map[float64][2]uint64
	cleared bool
}

func newFakePersistentCache() *fakePersistentCache {
	return &fakePersistentCache{
		strikes: map[string][]float64{},
		legs:    map[string]map[float64][2]uint64{},
	}
}

func (c *fakePersistentCache) StrikeSet(comboKey string) ([]float64, bool, error) {
	s, ok := c.strikes[comboKey]
	return s, ok, nil
}

func (c *fakePersistentCache) PutStrikeSet(comboKey string, strikes []float64) error {
	c.strikes[comboKey] = strikes
	return nil
}

func (c *fakePersistentCache) LegTokens(comboKey string, strike float64) (uint64, uint64, bool, error) {
	m, ok := c.legs[comboKey]
	if !ok {
		return 0, 0, false, nil
	}
	pair, ok := m[strike]
	if !ok {
		return 0, 0, false, nil
	}
	return pair[0], pair[1], true, nil
}

func (c *fakePersistentCache) PutLegPair(comboKey string, strike float64, callToken, putToken uint64) error {
	m, ok := c.legs[comboKey]
	if !ok {
		m = map[float64][2]uint64{}
		c.legs[comboKey] = m
	}
	m[strike] = [2]uint64{callToken, putToken}
	return nil
}

func (c *fakePersistentCache) Clear() error {
	c.cleared = true
	c.strikes = map[string][]float64{}
	c.legs = map[string]map[float64][2]uint64{}
	return nil
}

func TestStrikeSet_PersistsToCacheAndSurvivesNewEvaluator(t *testing.T) {
	persist := newFakePersistentCache()
	universe := buildUniverse()
	e := New(universe, buildQuotes(), workerpool.New(1), persist)

	_, err := e.strikeSet("NIFTY", "NFO", expiry, 18050, 5)
	require.NoError(t, err)

	key := comboKey("NIFTY", "NFO", expiry)
	require.Contains(t, persist.strikes, key)

	// A fresh evaluator over the same persistent cache, with an instrument
	// source that has gone empty, still resolves strikes from persistence.
	empty := &fakeInstruments{byExchange: map[string][]*model.Instrument{}}
	e2 := New(empty, buildQuotes(), workerpool.New(1), persist)
	strikes, err := e2.strikeSet("NIFTY", "NFO", expiry, 18050, 5)
	require.NoError(t, err)
	assert.Len(t, strikes, 2)
}

func TestResolveLegs_PersistsTokensAndRebuildsFromCache(t *testing.T) {
	persist := newFakePersistentCache()
	universe := buildUniverse()
	e := New(universe, buildQuotes(), workerpool.New(1), persist)

	legs, err := e.resolveLegs("NIFTY", "NFO", expiry, []float64{18000, 18100})
	require.NoError(t, err)
	require.Len(t, legs, 2)

	key := comboKey("NIFTY", "NFO", expiry)
	require.Contains(t, persist.legs, key)

	e2 := New(universe, buildQuotes(), workerpool.New(1), persist)
	legs2, err := e2.resolveLegs("NIFTY", "NFO", expiry, []float64{18000, 18100})
	require.NoError(t, err)
	require.Len(t, legs2, 2)
	assert.Equal(t, uint64(1), legs2[18000].call.Token)
	assert.Equal(t, uint64(2), legs2[18000].put.Token)
}

func TestClear_AlsoClearsPersistentCache(t *testing.T) {
	persist := newFakePersistentCache()
	e := New(buildUniverse(), buildQuotes(), workerpool.New(1), persist)

	_, err := e.strikeSet("NIFTY", "NFO", expiry, 18050, 5)
	require.NoError(t, err)

	e.Clear()
	assert.True(t, persist.cleared)
}

func TestEnumeratePairs_RespectsDiffBounds(t *testing.T) {
	pairs := enumeratePairs([]float64{100, 150, 300}, 40, 60)
	require.Len(t, pairs, 1)
	assert.Equal(t, pair{lower: 100, higher: 150}, pairs[0])
}
