// Package combo is the combination evaluator (Component H): for one
// (underlying, exchange, expiry) it resolves the strike set, enumerates
// admissible strike pairs, pre-loads and prices their legs in parallel on
// the shared worker pool, and returns ranked survivors.
package combo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"boxscan/internal/config"
	"boxscan/internal/logger"
	"boxscan/internal/model"
	"boxscan/internal/pricing"
	"boxscan/internal/risk"
	"boxscan/internal/workerpool"
)

const tag = "COMBO"

// InstrumentSource is the slice of the instrument store the evaluator needs
// to resolve a strike set and its call/put legs.
type InstrumentSource interface {
	ByExchange(exchange string) ([]*model.Instrument, error)
	ByToken(token uint64) (*model.Instrument, bool)
}

// QuoteSource is the slice of the quote fetcher the evaluator needs.
type QuoteSource interface {
	Quotes(ctx context.Context, tokens []uint64) (map[uint64]model.Snapshot, error)
}

// PersistentCache is the slice of internal/cache.DB the evaluator uses to
// back its strike-set/leg-pair memoization with sqlite, per spec.md §4.H's
// "cached under composite keys" requirement, so a process restart doesn't
// cold-start combination resolution. Nil disables persistence; only the
// process-local maps are used.
type PersistentCache interface {
	StrikeSet(comboKey string) ([]float64, bool, error)
	PutStrikeSet(comboKey string, strikes []float64) error
	LegTokens(comboKey string, strike float64) (callToken, putToken uint64, ok bool, err error)
	PutLegPair(comboKey string, strike float64, callToken, putToken uint64) error
	Clear() error
}

// Params bundles the strategy/risk/fee knobs one Evaluate call needs.
type Params struct {
	Quantity             int64
	Capital              float64
	MinROI               float64
	MinProfitability     float64
	MaxSlippage          float64
	MinStrikeDiff        float64
	MaxStrikeDiff        float64
	WorstCaseSlippagePct float64
	StrikeRangePercent   float64
	BatchSizeHint        int
	Fees                 config.FeesConfig
	Risk                 config.RiskConfig
}

type legPair struct {
	call *model.Instrument
	put  *model.Instrument
}

// Evaluator runs one (underlying, exchange, expiry) combination pass.
type Evaluator struct {
	instruments InstrumentSource
	quotes      QuoteSource
	pool        *workerpool.Pool
	persist     PersistentCache

	mu         sync.Mutex
	strikeSets map[string][]float64
	legCache   map[string]map[float64]legPair
}

// New creates an Evaluator over the given instrument/quote sources and
// shared worker pool. persist may be nil, disabling cross-restart caching.
func New(instruments InstrumentSource, quotes QuoteSource, pool *workerpool.Pool, persist PersistentCache) *Evaluator {
	return &Evaluator{
		instruments: instruments,
		quotes:      quotes,
		pool:        pool,
		persist:     persist,
		strikeSets:  map[string][]float64{},
		legCache:    map[string]map[float64]legPair{},
	}
}

func comboKey(underlying, exchange string, expiry time.Time) string {
	return strings.ToUpper(underlying) + "|" + strings.ToUpper(exchange) + "|" + expiry.UTC().Format("2006-01-02")
}

// Clear invalidates every cached strike set and leg resolution, including
// the persistent cache's if one is configured.
func (e *Evaluator) Clear() {
	e.mu.Lock()
	e.strikeSets = map[string][]float64{}
	e.legCache = map[string]map[float64]legPair{}
	e.mu.Unlock()
	if e.persist != nil {
		if err := e.persist.Clear(); err != nil {
			logger.Warn(tag, fmt.Sprintf("clear persistent cache: %v", err))
		}
	}
}

// Evaluate runs the full protocol of spec.md §4.H for one expiry and
// returns ranked survivors, highest profitability first.
func (e *Evaluator) Evaluate(ctx context.Context, underlying, exchange string, expiry time.Time, spot float64, p Params) ([]*model.Candidate, error) {
	strikes, err := e.strikeSet(underlying, exchange, expiry, spot, p.StrikeRangePercent)
	if err != nil {
		return nil, fmt.Errorf("strike set: %w", err)
	}
	if len(strikes) < 2 {
		return nil, nil
	}

	pairs := enumeratePairs(strikes, p.MinStrikeDiff, p.MaxStrikeDiff)
	if len(pairs) == 0 {
		return nil, nil
	}

	legs, err := e.resolveLegs(underlying, exchange, expiry, strikes)
	if err != nil {
		return nil, fmt.Errorf("resolve legs: %w", err)
	}

	tokens := tokensFor(legs, pairs)
	quoteMap, err := e.quotes.Quotes(ctx, tokens)
	if err != nil {
		return nil, fmt.Errorf("fetch quotes: %w", err)
	}

	total := len(pairs)
	var processed int64
	stopMonitor := e.startProgressMonitor(&processed, int64(total))
	defer stopMonitor()

	survivors := e.evaluatePairs(pairs, legs, quoteMap, p, &processed)

	sort.Slice(survivors, func(i, j int) bool {
		if survivors[i].ProfitabilityScore != survivors[j].ProfitabilityScore {
			return survivors[i].ProfitabilityScore > survivors[j].ProfitabilityScore
		}
		return survivors[i].ID < survivors[j].ID
	})
	return survivors, nil
}

// strikeSet returns the strikes for (underlying, exchange, expiry) within a
// spot-relative band [spot*(1-r%), spot*(1+r%)]; unbounded when spot<=0.
func (e *Evaluator) strikeSet(underlying, exchange string, expiry time.Time, spot, bandPct float64) ([]float64, error) {
	key := comboKey(underlying, exchange, expiry)
	e.mu.Lock()
	if cached, ok := e.strikeSets[key]; ok {
		e.mu.Unlock()
		return cached, nil
	}
	e.mu.Unlock()

	if e.persist != nil {
		if strikes, ok, err := e.persist.StrikeSet(key); err != nil {
			logger.Warn(tag, fmt.Sprintf("query strike set cache: %v", err))
		} else if ok {
			e.mu.Lock()
			e.strikeSets[key] = strikes
			e.mu.Unlock()
			return strikes, nil
		}
	}

	instruments, err := e.instruments.ByExchange(exchange)
	if err != nil {
		return nil, err
	}

	var lo, hi float64
	bounded := spot > 0
	if bounded {
		lo = spot * (1 - bandPct/100)
		hi = spot * (1 + bandPct/100)
	}

	seen := map[float64]bool{}
	var strikes []float64
	underlyingLower := strings.ToLower(underlying)
	for _, inst := range instruments {
		if inst.Kind != model.KindOption || inst.Option == nil {
			continue
		}
		if strings.ToLower(inst.Underlying) != underlyingLower {
			continue
		}
		if !inst.Expiry().Equal(expiry) {
			continue
		}
		strike := inst.Option.Strike
		if bounded && (strike < lo || strike > hi) {
			continue
		}
		if seen[strike] {
			continue
		}
		seen[strike] = true
		strikes = append(strikes, strike)
	}
	sort.Float64s(strikes)

	if e.persist != nil {
		if err := e.persist.PutStrikeSet(key, strikes); err != nil {
			logger.Warn(tag, fmt.Sprintf("persist strike set: %v", err))
		}
	}

	e.mu.Lock()
	e.strikeSets[key] = strikes
	e.mu.Unlock()
	return strikes, nil
}

type pair struct {
	lower, higher float64
}

// enumeratePairs returns every (lo, hi) with lo < hi and minDiff <= hi-lo <=
// maxDiff.
func enumeratePairs(strikes []float64, minDiff, maxDiff float64) []pair {
	var pairs []pair
	for i := 0; i < len(strikes); i++ {
		for j := i + 1; j < len(strikes); j++ {
			diff := strikes[j] - strikes[i]
			if diff < minDiff || diff > maxDiff {
				continue
			}
			pairs = append(pairs, pair{lower: strikes[i], higher: strikes[j]})
		}
	}
	return pairs
}

// resolveLegs finds, for each strike, the call and put instrument at that
// strike (ties broken by lexical trading-symbol order), caching the result.
func (e *Evaluator) resolveLegs(underlying, exchange string, expiry time.Time, strikes []float64) (map[float64]legPair, error) {
	key := comboKey(underlying, exchange, expiry)
	e.mu.Lock()
	if cached, ok := e.legCache[key]; ok {
		e.mu.Unlock()
		return cached, nil
	}
	e.mu.Unlock()

	if e.persist != nil {
		if legs, ok := e.legsFromPersist(key, strikes); ok {
			e.mu.Lock()
			e.legCache[key] = legs
			e.mu.Unlock()
			return legs, nil
		}
	}

	instruments, err := e.instruments.ByExchange(exchange)
	if err != nil {
		return nil, err
	}

	wanted := make(map[float64]bool, len(strikes))
	for _, s := range strikes {
		wanted[s] = true
	}

	byStrike := map[float64]legPair{}
	underlyingLower := strings.ToLower(underlying)
	for _, inst := range instruments {
		if inst.Kind != model.KindOption || inst.Option == nil {
			continue
		}
		if strings.ToLower(inst.Underlying) != underlyingLower {
			continue
		}
		if !inst.Expiry().Equal(expiry) || !wanted[inst.Option.Strike] {
			continue
		}
		lp := byStrike[inst.Option.Strike]
		switch inst.Option.Kind {
		case model.Call:
			if lp.call == nil || inst.Symbol < lp.call.Symbol {
				lp.call = inst
			}
		case model.Put:
			if lp.put == nil || inst.Symbol < lp.put.Symbol {
				lp.put = inst
			}
		}
		byStrike[inst.Option.Strike] = lp
	}

	if e.persist != nil {
		for strike, lp := range byStrike {
			if lp.call == nil || lp.put == nil {
				continue
			}
			if err := e.persist.PutLegPair(key, strike, lp.call.Token, lp.put.Token); err != nil {
				logger.Warn(tag, fmt.Sprintf("persist leg pair: %v", err))
			}
		}
	}

	e.mu.Lock()
	e.legCache[key] = byStrike
	e.mu.Unlock()
	return byStrike, nil
}

// legsFromPersist rebuilds a legPair map entirely from the persistent
// cache's token pairs, resolved back to instruments via e.instruments. It
// reports ok=false (a full cache miss) if any strike is absent or its
// tokens no longer resolve, so the caller falls back to the network path.
func (e *Evaluator) legsFromPersist(key string, strikes []float64) (map[float64]legPair, bool) {
	out := make(map[float64]legPair, len(strikes))
	for _, strike := range strikes {
		callTok, putTok, ok, err := e.persist.LegTokens(key, strike)
		if err != nil {
			logger.Warn(tag, fmt.Sprintf("query leg pair cache: %v", err))
			return nil, false
		}
		if !ok {
			return nil, false
		}
		call, callOK := e.instruments.ByToken(callTok)
		put, putOK := e.instruments.ByToken(putTok)
		if !callOK || !putOK {
			return nil, false
		}
		out[strike] = legPair{call: call, put: put}
	}
	return out, true
}

func tokensFor(legs map[float64]legPair, pairs []pair) []uint64 {
	seen := map[uint64]bool{}
	var tokens []uint64
	add := func(inst *model.Instrument) {
		if inst == nil || seen[inst.Token] {
			return
		}
		seen[inst.Token] = true
		tokens = append(tokens, inst.Token)
	}
	for _, pr := range pairs {
		lo, hi := legs[pr.lower], legs[pr.higher]
		add(lo.call)
		add(lo.put)
		add(hi.call)
		add(hi.put)
	}
	return tokens
}

// withQuote returns a shallow copy of inst with its snapshot merged from
// quoteMap, leaving the instrument store's own copy untouched.
func withQuote(inst *model.Instrument, quoteMap map[uint64]model.Snapshot) *model.Instrument {
	if inst == nil {
		return nil
	}
	clone := *inst
	if snap, ok := quoteMap[inst.Token]; ok {
		clone.Snapshot = snap
	}
	return &clone
}

// hasCompleteMarketData is the validity predicate from spec.md §3: each leg
// needs a positive last price and a non-empty relevant depth ladder.
func hasCompleteMarketData(legs [4]*model.Instrument) bool {
	checks := []struct {
		inst   *model.Instrument
		ladder model.DepthLadder
	}{
		{legs[0], legs[0].Snapshot.Sell}, // LC_lo: buy leg, needs sell ladder
		{legs[1], legs[1].Snapshot.Buy},  // SC_hi: sell leg, needs buy ladder
		{legs[2], legs[2].Snapshot.Sell}, // LP_hi: buy leg, needs sell ladder
		{legs[3], legs[3].Snapshot.Buy},  // SP_lo: sell leg, needs buy ladder
	}
	for _, c := range checks {
		if c.inst == nil || c.inst.Snapshot.Last <= 0 || len(c.ladder) == 0 {
			return false
		}
	}
	return true
}

// evaluatePairs prices every pair, sharded across the worker pool in
// adaptive batches, and returns the survivors that clear p's thresholds.
func (e *Evaluator) evaluatePairs(pairs []pair, legs map[float64]legPair, quoteMap map[uint64]model.Snapshot, p Params, processed *int64) []*model.Candidate {
	var queueMu sync.Mutex
	next := 0

	var resultsMu sync.Mutex
	var survivors []*model.Candidate

	var processedMu sync.Mutex

	threadCount := 1
	if e.pool != nil {
		if n := e.pool.Workers(); n > 0 {
			threadCount = n
		}
	}

	work := func() error {
		for {
			queueMu.Lock()
			remaining := len(pairs) - next
			if remaining <= 0 {
				queueMu.Unlock()
				return nil
			}
			batchSize := remaining / threadCount
			if batchSize < 1 {
				batchSize = 1
			}
			if batchSize > 50 {
				batchSize = 50
			}
			start := next
			end := start + batchSize
			if end > len(pairs) {
				end = len(pairs)
			}
			next = end
			queueMu.Unlock()

			for _, pr := range pairs[start:end] {
				cand := e.evaluateOne(pr, legs, quoteMap, p)
				processedMu.Lock()
				*processed++
				processedMu.Unlock()
				if cand == nil {
					continue
				}
				resultsMu.Lock()
				survivors = append(survivors, cand)
				resultsMu.Unlock()
			}
		}
	}

	if e.pool == nil {
		_ = work()
		return survivors
	}

	handles := make([]*workerpool.Handle, 0, threadCount)
	for i := 0; i < threadCount; i++ {
		h, err := e.pool.Submit(work)
		if err != nil {
			continue
		}
		handles = append(handles, h)
	}
	for _, h := range handles {
		h.Wait()
	}
	return survivors
}

func (e *Evaluator) evaluateOne(pr pair, legs map[float64]legPair, quoteMap map[uint64]model.Snapshot, p Params) *model.Candidate {
	lo, hi := legs[pr.lower], legs[pr.higher]
	if lo.call == nil || lo.put == nil || hi.call == nil || hi.put == nil {
		return nil
	}

	legArr := [4]*model.Instrument{
		withQuote(lo.call, quoteMap),
		withQuote(hi.call, quoteMap),
		withQuote(hi.put, quoteMap),
		withQuote(lo.put, quoteMap),
	}
	if !hasCompleteMarketData(legArr) {
		return nil
	}

	expiry := legArr[0].Expiry()
	c := &model.Candidate{
		ID:             model.CandidateID(legArr[0].Underlying, legArr[0].Exchange, pr.lower, pr.higher, expiry),
		Underlying:     legArr[0].Underlying,
		Exchange:       legArr[0].Exchange,
		Lower:          pr.lower,
		Higher:         pr.higher,
		Expiry:         expiry,
		LongCallLower:  legArr[0],
		ShortCallUpper: legArr[1],
		LongPutUpper:   legArr[2],
		ShortPutLower:  legArr[3],
	}

	pricing.Price(c, p.Quantity, p.WorstCaseSlippagePct, p.Fees)
	turnover := pricing.ComputeFees(c.Legs(), p.Quantity, p.Fees).Turnover
	risk.Assess(c, p.Quantity, turnover, p.Risk)

	if c.ROIPercent < p.MinROI || c.ProfitabilityScore < p.MinProfitability || c.Slippage > p.MaxSlippage {
		return nil
	}
	return c
}

func (e *Evaluator) startProgressMonitor(processed *int64, total int64) func() {
	if total <= 0 {
		return func() {}
	}
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		start := time.Now()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				done := *processed
				if done >= total {
					return
				}
				pct := float64(done) / float64(total) * 100
				elapsed := time.Since(start)
				var eta time.Duration
				if done > 0 {
					eta = time.Duration(float64(elapsed) / float64(done) * float64(total-done))
				}
				logger.Info(tag, fmt.Sprintf("progress %.1f%% (%d/%d) eta %s", pct, done, total, eta.Round(time.Second)))
			}
		}
	}()
	return func() { close(stop) }
}
