package expiry

import (
	"testing"
	"time"

	"boxscan/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_MonthlyWeeklyNeither(t *testing.T) {
	assert.Equal(t, Monthly, Classify(time.Date(2024, 6, 27, 0, 0, 0, 0, time.UTC))) // last Thursday of June 2024
	assert.Equal(t, Weekly, Classify(time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC)))  // earlier Thursday
	assert.Equal(t, Neither, Classify(time.Date(2024, 6, 26, 0, 0, 0, 0, time.UTC))) // Wednesday
}

type fakeSource struct {
	instruments []*model.Instrument
}

func (f *fakeSource) ByExchange(exchange string) ([]*model.Instrument, error) {
	return f.instruments, nil
}

func opt(symbol, underlying string, expiry time.Time) *model.Instrument {
	return &model.Instrument{
		Symbol:     symbol,
		Underlying: underlying,
		Kind:       model.KindOption,
		Option:     &model.OptionDetail{Expiry: expiry},
	}
}

func TestExpiries_FiltersToFutureOptionsMatchingUnderlying(t *testing.T) {
	src := &fakeSource{instruments: []*model.Instrument{
		opt("NIFTY24JUN27CE", "NIFTY", time.Date(2024, 6, 27, 0, 0, 0, 0, time.UTC)),
		opt("NIFTY24JUN20PE", "NIFTY", time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC)),
		opt("BANKNIFTY24JUN27CE", "BANKNIFTY", time.Date(2024, 6, 27, 0, 0, 0, 0, time.UTC)),
		{Symbol: "NIFTY-FUT", Kind: model.KindFuture},
	}}
	c := New(src, time.UTC)
	c.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	weekly, monthly, err := c.Expiries("NIFTY", "NFO", true, true)
	require.NoError(t, err)
	require.Len(t, monthly, 1)
	require.Len(t, weekly, 1)
	assert.True(t, monthly[0].Equal(time.Date(2024, 6, 27, 0, 0, 0, 0, time.UTC)))
}

func TestFilter_DropsOutsideWindowAndTruncates(t *testing.T) {
	src := &fakeSource{}
	c := New(src, time.UTC)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	expiries := []time.Time{
		now.AddDate(0, 0, 5),
		now.AddDate(0, 0, 20),
		now.AddDate(0, 0, 60),
	}
	got := c.Filter("NIFTY", "NFO", expiries, 0, 45, 10)
	assert.Len(t, got, 2)

	c.Clear()
	got2 := c.Filter("NIFTY", "NFO", expiries, 0, 45, 1)
	assert.Len(t, got2, 1)
}
