// Package quotes batches level-2 quote retrieval for the instrument store
// (Component D): tokens are chunked to the upstream batch limit, each chunk
// rate-limited once, and per-token JSON payloads parsed into snapshot
// updates merged back into the instrument cache.
package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"boxscan/internal/auth"
	"boxscan/internal/logger"
	"boxscan/internal/model"
	"boxscan/internal/ratelimit"
	"boxscan/internal/transport"
)

const tag = "QUOTE"

// Store is the subset of internal/instruments.Store the fetcher needs to
// read the current snapshot from and merge fetched results back into.
type Store interface {
	ByToken(token uint64) (*model.Instrument, bool)
	MergeSnapshot(token uint64, snap model.Snapshot)
}

// Fetcher retrieves quotes/LTPs/OHLCs in upstream-sized batches.
type Fetcher struct {
	transport transport.Transport
	limiter   *ratelimit.Limiter
	store     Store
	batchSize int
}

// New creates a Fetcher. A batchSize below 1 falls back to 250.
func New(t transport.Transport, limiter *ratelimit.Limiter, store Store, batchSize int) *Fetcher {
	if batchSize < 1 {
		batchSize = 250
	}
	return &Fetcher{transport: t, limiter: limiter, store: store, batchSize: batchSize}
}

type envelope struct {
	Status  string                     `json:"status"`
	Data    map[string]json.RawMessage `json:"data"`
	Message string                     `json:"message,omitempty"`
}

type depthLevel struct {
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
	Orders   int     `json:"orders"`
}

type quotePayload struct {
	LastPrice    float64 `json:"last_price"`
	Volume       int64   `json:"volume"`
	BuyQuantity  int64   `json:"buy_quantity"`
	SellQuantity int64   `json:"sell_quantity"`
	OI           int64   `json:"oi"`
	OHLC         struct {
		Open  float64 `json:"open"`
		High  float64 `json:"high"`
		Low   float64 `json:"low"`
		Close float64 `json:"close"`
	} `json:"ohlc"`
	Depth struct {
		Buy  []depthLevel `json:"buy"`
		Sell []depthLevel `json:"sell"`
	} `json:"depth"`
}

func chunk(tokens []uint64, size int) [][]uint64 {
	var out [][]uint64
	for i := 0; i < len(tokens); i += size {
		end := i + size
		if end > len(tokens) {
			end = len(tokens)
		}
		out = append(out, tokens[i:end])
	}
	return out
}

// Quotes fetches full quote payloads for tokens, merging depth, OHLC, and
// volume/OI into the instrument store. Returns the merged snapshots keyed
// by token; tokens missing from an upstream response are silently omitted.
func (f *Fetcher) Quotes(ctx context.Context, tokens []uint64) (map[uint64]model.Snapshot, error) {
	return f.fetch(ctx, "/quote", tokens, f.applyQuote, true)
}

// LTPs fetches only last-traded prices. It does not merge into the
// instrument store: an ltp-only payload carries no depth/OHLC/volume
// fields, and merging it back would overwrite an instrument's
// previously-fetched depth ladders with zero values.
func (f *Fetcher) LTPs(ctx context.Context, tokens []uint64) (map[uint64]float64, error) {
	snapshots, err := f.fetch(ctx, "/quote/ltp", tokens, f.applyQuote, false)
	if err != nil {
		return nil, err
	}
	out := make(map[uint64]float64, len(snapshots))
	for tok, snap := range snapshots {
		out[tok] = snap.Last
	}
	return out, nil
}

// OHLC is the open/high/low/close payload returned by Ohlcs.
type OHLC struct {
	Open, High, Low, Close float64
}

// Ohlcs fetches OHLC bars only. Like LTPs, it does not merge into the
// instrument store, for the same reason.
func (f *Fetcher) Ohlcs(ctx context.Context, tokens []uint64) (map[uint64]OHLC, error) {
	snapshots, err := f.fetch(ctx, "/quote/ohlc", tokens, f.applyQuote, false)
	if err != nil {
		return nil, err
	}
	out := make(map[uint64]OHLC, len(snapshots))
	for tok, snap := range snapshots {
		out[tok] = OHLC{Open: snap.Open, High: snap.High, Low: snap.Low, Close: snap.Close}
	}
	return out, nil
}

func (f *Fetcher) fetch(ctx context.Context, path string, tokens []uint64, apply func(model.Snapshot, quotePayload) model.Snapshot, merge bool) (map[uint64]model.Snapshot, error) {
	merged := make(map[uint64]model.Snapshot, len(tokens))
	for _, batch := range chunk(tokens, f.batchSize) {
		if f.limiter != nil {
			f.limiter.Acquire(path)
		}
		query := url.Values{}
		for _, tok := range batch {
			query.Add("i", strconv.FormatUint(tok, 10))
		}
		status, body, _, err := f.transport.Do(ctx, "GET", path, query, nil)
		if err != nil {
			if errors.Is(err, auth.ErrAuthInvalid) {
				return merged, fmt.Errorf("%s: %w", path, err)
			}
			logger.Warn(tag, fmt.Sprintf("%s batch failed: %v", path, err))
			continue
		}
		if status == 429 {
			if f.limiter != nil {
				f.limiter.Throttle(path)
			}
			logger.Warn(tag, fmt.Sprintf("%s rate limited", path))
			continue
		}
		if status < 200 || status >= 300 {
			logger.Warn(tag, fmt.Sprintf("%s upstream status %d", path, status))
			continue
		}

		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			logger.Warn(tag, fmt.Sprintf("%s malformed envelope: %v", path, err))
			continue
		}

		for key, raw := range env.Data {
			tok, err := strconv.ParseUint(strings.TrimSpace(key), 10, 64)
			if err != nil {
				logger.Warn(tag, fmt.Sprintf("%s malformed token key %q", path, key))
				continue
			}
			var payload quotePayload
			if err := json.Unmarshal(raw, &payload); err != nil {
				logger.Warn(tag, fmt.Sprintf("%s malformed payload for token %d: %v", path, tok, err))
				continue
			}
			var base model.Snapshot
			if inst, ok := f.store.ByToken(tok); ok {
				base = inst.Snapshot
			}
			snap := apply(base, payload)
			merged[tok] = snap
			if merge {
				f.store.MergeSnapshot(tok, snap)
			}
		}
	}
	return merged, nil
}

func (f *Fetcher) applyQuote(base model.Snapshot, p quotePayload) model.Snapshot {
	base.Last = p.LastPrice
	base.Open = p.OHLC.Open
	base.High = p.OHLC.High
	base.Low = p.OHLC.Low
	base.Close = p.OHLC.Close
	base.Volume = p.Volume
	base.BuyPressure = p.BuyQuantity
	base.SellPressure = p.SellQuantity
	base.OpenInterest = p.OI
	base.Buy = toLadder(p.Depth.Buy)
	base.Sell = toLadder(p.Depth.Sell)
	return base
}

func toLadder(levels []depthLevel) model.DepthLadder {
	if len(levels) == 0 {
		return nil
	}
	out := make(model.DepthLadder, len(levels))
	for i, l := range levels {
		out[i] = model.DepthLevel{Price: l.Price, Quantity: l.Quantity, Orders: l.Orders}
	}
	return out
}
