// Package scanner is the scan orchestrator (Component I): it drives one
// scan cycle across the configured expiries, concatenates and ranks their
// candidates, and absorbs per-expiry failures so the cycle always completes.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"boxscan/internal/auth"
	"boxscan/internal/combo"
	"boxscan/internal/config"
	"boxscan/internal/logger"
	"boxscan/internal/model"
	"boxscan/internal/workerpool"

	"github.com/google/uuid"
)

const tag = "SCAN"

// ExpirySource is the slice of the expiry classifier the scanner needs.
type ExpirySource interface {
	Expiries(underlying, exchange string, includeWeekly, includeMonthly bool) (weekly, monthly []time.Time, err error)
	Filter(underlying, exchange string, expiries []time.Time, minDays, maxDays, maxCount int) []time.Time
}

// SpotSource resolves the current spot price for an underlying, used to
// band the strike set. A zero or error result means "unbounded".
type SpotSource interface {
	Spot(underlying, exchange string) (float64, error)
}

// Evaluator is the slice of the combination evaluator the scanner needs.
type Evaluator interface {
	Evaluate(ctx context.Context, underlying, exchange string, expiry time.Time, spot float64, p combo.Params) ([]*model.Candidate, error)
}

// InstrumentSource is the slice of internal/instruments.Store the scanner
// needs to keep the universe fresh across a long-running process.
type InstrumentSource interface {
	Ensure(ctx context.Context) error
}

// Scanner drives scan cycles. Cooperative stop() is checked between
// expiries and between cycles.
type Scanner struct {
	expiry      ExpirySource
	spot        SpotSource
	evaluator   Evaluator
	pool        *workerpool.Pool
	instruments InstrumentSource

	stopped int32
}

// New creates a Scanner. instruments is refreshed at the top of every cycle
// (per spec.md §4.C), not just once at startup.
func New(expiry ExpirySource, spot SpotSource, evaluator Evaluator, pool *workerpool.Pool, instruments InstrumentSource) *Scanner {
	return &Scanner{expiry: expiry, spot: spot, evaluator: evaluator, pool: pool, instruments: instruments}
}

// Stop sets the cooperative stop flag, checked between expiries/cycles.
func (s *Scanner) Stop() { atomic.StoreInt32(&s.stopped, 1) }

func (s *Scanner) stopRequested() bool { return atomic.LoadInt32(&s.stopped) != 0 }

// Result is the outcome of one scan cycle.
type Result struct {
	CycleID    string
	Candidates []*model.Candidate
	Expiries   int
	Errors     []error
}

// Cycle runs one scan: select expiries, evaluate each, concatenate and
// globally rank survivors.
func (s *Scanner) Cycle(ctx context.Context, strategy config.StrategyConfig, expiryCfg config.ExpiryConfig, pipeline config.PipelineConfig, params combo.Params) Result {
	cycleID := uuid.NewString()
	logger.Info(tag, fmt.Sprintf("cycle %s starting for %s/%s", cycleID, strategy.Underlying, strategy.Exchange))

	if s.instruments != nil {
		if err := s.instruments.Ensure(ctx); err != nil {
			logger.Error(tag, fmt.Sprintf("cycle %s: refresh instrument universe: %v", cycleID, err))
			return Result{CycleID: cycleID, Errors: []error{err}}
		}
	}

	weekly, monthly, err := s.expiry.Expiries(strategy.Underlying, strategy.Exchange, expiryCfg.IncludeWeekly, expiryCfg.IncludeMonthly)
	if err != nil {
		logger.Error(tag, fmt.Sprintf("cycle %s: fetch expiries: %v", cycleID, err))
		return Result{CycleID: cycleID, Errors: []error{err}}
	}
	all := append(append([]time.Time{}, weekly...), monthly...)
	expiries := s.expiry.Filter(strategy.Underlying, strategy.Exchange, all, expiryCfg.MinDays, expiryCfg.MaxDays, expiryCfg.MaxCount)

	spot, err := s.spotOrZero(strategy.Underlying, strategy.Exchange)
	if err != nil {
		logger.Warn(tag, fmt.Sprintf("cycle %s: spot lookup failed, proceeding unbounded: %v", cycleID, err))
	}

	var candidates []*model.Candidate
	var errs []error

	sequential := !expiryCfg.ProcessInParallel
	if pipeline.ProcessExpiriesSequentially {
		sequential = true
	}

	if sequential {
		candidates, errs = s.runSequential(ctx, cycleID, expiries, strategy, pipeline, params, spot)
	} else {
		candidates, errs = s.runParallel(ctx, cycleID, expiries, strategy, params, spot)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].ProfitabilityScore != candidates[j].ProfitabilityScore {
			return candidates[i].ProfitabilityScore > candidates[j].ProfitabilityScore
		}
		return candidates[i].ID < candidates[j].ID
	})

	logger.Success(tag, fmt.Sprintf("cycle %s done: %d expiries, %d candidates", cycleID, len(expiries), len(candidates)))
	return Result{CycleID: cycleID, Candidates: candidates, Expiries: len(expiries), Errors: errs}
}

func (s *Scanner) spotOrZero(underlying, exchange string) (float64, error) {
	if s.spot == nil {
		return 0, nil
	}
	return s.spot.Spot(underlying, exchange)
}

func (s *Scanner) runSequential(ctx context.Context, cycleID string, expiries []time.Time, strategy config.StrategyConfig, pipeline config.PipelineConfig, params combo.Params, spot float64) ([]*model.Candidate, []error) {
	var candidates []*model.Candidate
	var errs []error
	for i, exp := range expiries {
		if s.stopRequested() {
			break
		}
		got, err := s.evaluator.Evaluate(ctx, strategy.Underlying, strategy.Exchange, exp, spot, params)
		if err != nil {
			logger.Error(tag, fmt.Sprintf("cycle %s: expiry %s: %v", cycleID, exp.Format("2006-01-02"), err))
			errs = append(errs, err)
			if errors.Is(err, auth.ErrAuthInvalid) {
				logger.Error(tag, fmt.Sprintf("cycle %s: aborting, credential invalid", cycleID))
				break
			}
			continue
		}
		candidates = append(candidates, got...)
		if i < len(expiries)-1 && pipeline.DelayBetweenExpiriesMs > 0 {
			time.Sleep(time.Duration(pipeline.DelayBetweenExpiriesMs) * time.Millisecond)
		}
	}
	return candidates, errs
}

func (s *Scanner) runParallel(ctx context.Context, cycleID string, expiries []time.Time, strategy config.StrategyConfig, params combo.Params, spot float64) ([]*model.Candidate, []error) {
	var mu sync.Mutex
	var candidates []*model.Candidate
	var errs []error
	var authAborted int32

	var wg sync.WaitGroup
	for _, exp := range expiries {
		if s.stopRequested() || atomic.LoadInt32(&authAborted) != 0 {
			break
		}
		exp := exp
		wg.Add(1)
		submit := func() error {
			defer wg.Done()
			if atomic.LoadInt32(&authAborted) != 0 {
				return nil
			}
			got, err := s.evaluator.Evaluate(ctx, strategy.Underlying, strategy.Exchange, exp, spot, params)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Error(tag, fmt.Sprintf("cycle %s: expiry %s: %v", cycleID, exp.Format("2006-01-02"), err))
				errs = append(errs, err)
				if errors.Is(err, auth.ErrAuthInvalid) {
					if atomic.CompareAndSwapInt32(&authAborted, 0, 1) {
						logger.Error(tag, fmt.Sprintf("cycle %s: aborting, credential invalid", cycleID))
					}
				}
				return nil
			}
			candidates = append(candidates, got...)
			return nil
		}
		if s.pool != nil {
			if _, err := s.pool.Submit(submit); err != nil {
				wg.Done()
				logger.Error(tag, fmt.Sprintf("cycle %s: submit expiry %s: %v", cycleID, exp.Format("2006-01-02"), err))
			}
		} else {
			submit()
		}
	}
	wg.Wait()
	return candidates, errs
}
