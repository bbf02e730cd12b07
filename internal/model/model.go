// Package model holds the data types shared across the scan pipeline:
// instruments, depth ladders, and box-spread candidates.
package model

import (
	"fmt"
	"strconv"
	"time"
)

// InstrumentKind discriminates the tagged variants of Instrument.
type InstrumentKind int

const (
	KindUnknown InstrumentKind = iota
	KindIndex
	KindEquity
	KindFuture
	KindOption
	KindCurrency
	KindCommodity
)

func (k InstrumentKind) String() string {
	switch k {
	case KindIndex:
		return "index"
	case KindEquity:
		return "equity"
	case KindFuture:
		return "future"
	case KindOption:
		return "option"
	case KindCurrency:
		return "currency"
	case KindCommodity:
		return "commodity"
	default:
		return "unknown"
	}
}

// OptionKind distinguishes calls from puts. Zero value means "not an option".
type OptionKind int

const (
	OptionNone OptionKind = iota
	Call
	Put
)

// DepthLevel is one rung of an order-book ladder.
type DepthLevel struct {
	Price    float64
	Quantity int64
	Orders   int
}

// DepthLadder is an ordered, best-first sequence of price levels for one side
// of the book.
type DepthLadder []DepthLevel

// TotalQuantity sums the quantity available across the whole ladder.
func (d DepthLadder) TotalQuantity() int64 {
	var total int64
	for _, lvl := range d {
		total += lvl.Quantity
	}
	return total
}

// OptionDetail holds fields only meaningful for an option instrument.
type OptionDetail struct {
	Strike float64
	Kind   OptionKind
	Expiry time.Time
}

// FutureDetail holds fields only meaningful for a future instrument.
type FutureDetail struct {
	Expiry time.Time
}

// Snapshot is the live-quote portion of an Instrument: last traded price,
// OHLC, volume/OI, and the two depth ladders. Zero value means "no quote
// has arrived yet".
type Snapshot struct {
	Last           float64
	Open           float64
	High           float64
	Low            float64
	Close          float64
	Average        float64
	Volume         int64
	BuyPressure    int64
	SellPressure   int64
	OpenInterest   int64
	Buy            DepthLadder
	Sell           DepthLadder
	LastUpdated    time.Time
}

// Instrument is one exchange-traded contract. Token is the sole identity;
// (Symbol, Exchange) is a secondary unique key. Option and Future carry
// variant-only detail structs, left nil for every other kind.
type Instrument struct {
	Token      uint64
	Symbol     string
	Exchange   string
	Name       string
	Segment    string
	Kind       InstrumentKind
	Underlying string

	Option *OptionDetail
	Future *FutureDetail

	Snapshot Snapshot
}

// Strike returns the option strike price, or 0 for non-options.
func (i *Instrument) Strike() float64 {
	if i.Option == nil {
		return 0
	}
	return i.Option.Strike
}

// OptionKind returns the option kind, or OptionNone for non-options.
func (i *Instrument) OptionKind() OptionKind {
	if i.Option == nil {
		return OptionNone
	}
	return i.Option.Kind
}

// Expiry returns the option or future expiry instant, or the zero time.
func (i *Instrument) Expiry() time.Time {
	if i.Option != nil {
		return i.Option.Expiry
	}
	if i.Future != nil {
		return i.Future.Expiry
	}
	return time.Time{}
}

// Candidate is a 4-leg box spread synthesized from a lower and higher strike
// sharing underlying, exchange, and expiry.
type Candidate struct {
	ID         string
	Underlying string
	Exchange   string
	Lower      float64
	Higher     float64
	Expiry     time.Time

	LongCallLower  *Instrument // LC_lo: long call at the lower strike
	ShortCallUpper *Instrument // SC_hi: short call at the higher strike
	LongPutUpper   *Instrument // LP_hi: long put at the higher strike
	ShortPutLower  *Instrument // SP_lo: short put at the lower strike

	NetPremium          float64
	TheoreticalValue    float64
	Slippage            float64
	Fees                float64
	Margin              float64
	ROIPercent          float64
	ProfitabilityScore  float64
	MaxLoss             float64
	MaxProfit           float64

	Executed bool
}

// Legs returns the four instruments in a fixed order: LC_lo, SC_hi, LP_hi, SP_lo.
func (c *Candidate) Legs() [4]*Instrument {
	return [4]*Instrument{c.LongCallLower, c.ShortCallUpper, c.LongPutUpper, c.ShortPutLower}
}

// CandidateID computes the deterministic id
// underlying|exchange|lowerStrike|higherStrike|expiry.
func CandidateID(underlying, exchange string, lower, higher float64, expiry time.Time) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s",
		underlying, exchange,
		strconv.FormatFloat(lower, 'f', -1, 64),
		strconv.FormatFloat(higher, 'f', -1, 64),
		expiry.UTC().Format("2006-01-02"))
}
