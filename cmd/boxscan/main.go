// Command boxscan drives the box-spread scan loop: load config, build the
// pipeline, then scan on an interval until stopped.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"boxscan/internal/auth"
	"boxscan/internal/cache"
	"boxscan/internal/combo"
	"boxscan/internal/config"
	"boxscan/internal/expiry"
	"boxscan/internal/instruments"
	"boxscan/internal/logger"
	"boxscan/internal/metrics"
	"boxscan/internal/model"
	"boxscan/internal/quotes"
	"boxscan/internal/ratelimit"
	"boxscan/internal/scanner"
	"boxscan/internal/transport"
	"boxscan/internal/workerpool"

	"github.com/joho/godotenv"
)

var version = "dev"

// noopSpot always reports "unbounded" — a real spot feed is an external
// collaborator spec.md does not cover.
type noopSpot struct{}

func (noopSpot) Spot(underlying, exchange string) (float64, error) { return 0, nil }

func main() {
	godotenv.Load()

	flag.Parse()
	configPath := flag.Arg(0)
	if configPath == "" {
		configPath = "config.yml"
	}

	logger.Banner(version)

	store, err := config.Load(configPath)
	if err != nil {
		logger.Error("CONFIG", fmt.Sprintf("failed to load %s: %v", configPath, err))
		os.Exit(1)
	}

	strategy := config.LoadStrategy(store, config.DefaultStrategy())
	expiryCfg := config.LoadExpiry(store, config.DefaultExpiry())
	feesCfg := config.LoadFees(store, config.DefaultFees())
	riskCfg := config.LoadRisk(store, config.DefaultRisk())
	apiCfg := config.LoadAPI(store, config.DefaultAPI())
	pipelineCfg := config.LoadPipeline(store, config.DefaultPipeline())

	db, err := cache.Open("boxscan.db")
	if err != nil {
		logger.Error("CACHE", fmt.Sprintf("failed to open cache db: %v", err))
		os.Exit(1)
	}
	defer db.Close()

	credStore := auth.NewStore(db.SQL())
	token, err := credStore.Token()
	if err != nil {
		logger.Warn("AUTH", fmt.Sprintf("no valid credential at startup: %v", err))
	}

	baseURL := store.String("api/base_url", "https://api.example.com")
	httpClient := transport.NewClient(transport.DefaultConfig(baseURL))

	limiter := ratelimit.New(apiCfg.RateLimits, apiCfg.RateLimits["default"])

	instrumentStore := instruments.New(instruments.Config{
		Path:       "/instruments",
		CacheFile:  apiCfg.InstrumentsCacheFile,
		CacheTTL:   time.Duration(apiCfg.InstrumentsCacheTTLMin) * time.Minute,
		Underlying: strategy.Underlying,
		Location:   time.UTC,
	}, authenticated(httpClient, token, credStore), limiter)

	quoteFetcher := quotes.New(authenticated(httpClient, token, credStore), limiter, instrumentStore, apiCfg.QuoteBatchSize)
	expiryClassifier := expiry.New(instrumentStore, time.UTC)

	pool := workerpool.New(numThreads(store))
	defer pool.Stop()

	evaluator := combo.New(instrumentStore, quoteFetcher, pool, db)
	scan := scanner.New(expiryClassifier, noopSpot{}, evaluator, pool, instrumentStore)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info("MAIN", "shutdown signal received")
		scan.Stop()
	}()

	if err := instrumentStore.Ensure(ctx); err != nil {
		logger.Error("MAIN", fmt.Sprintf("initial instrument load failed: %v", err))
		os.Exit(1)
	}

	params := combo.Params{
		Quantity:             int64(strategy.Quantity),
		Capital:              strategy.Capital,
		MinROI:               strategy.MinROI,
		MinProfitability:     strategy.MinProfitability,
		MaxSlippage:          strategy.MaxSlippage,
		MinStrikeDiff:        strategy.MinStrikeDiff,
		MaxStrikeDiff:        strategy.MaxStrikeDiff,
		WorstCaseSlippagePct: strategy.WorstCaseSlippagePct,
		StrikeRangePercent:   pipelineCfg.StrikeRangePercent,
		Fees:                 feesCfg,
		Risk:                 riskCfg,
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("MAIN", "clean shutdown")
			return
		default:
		}

		result := scan.Cycle(ctx, strategy, expiryCfg, pipelineCfg, params)
		logger.Section("scan cycle " + result.CycleID)
		logger.Stats("expiries", result.Expiries)
		logger.Stats("candidates", len(result.Candidates))
		logger.Stats("errors", len(result.Errors))

		var cycleErr error
		if len(result.Errors) > 0 {
			cycleErr = result.Errors[0]
		}
		metrics.ObserveCycle(strategy.Underlying, len(result.Candidates), cycleErr)
		metrics.ObservePool(pool.ActiveCount(), pool.QueueLen())

		if exportPath := store.String("output/csv_path", ""); exportPath != "" {
			if err := exportCSV(exportPath, result.Candidates); err != nil {
				logger.Warn("MAIN", fmt.Sprintf("cycle %s: csv export failed: %v", result.CycleID, err))
			}
		}

		select {
		case <-ctx.Done():
			logger.Info("MAIN", "clean shutdown")
			return
		case <-time.After(time.Duration(strategy.ScanIntervalSeconds) * time.Second):
		}
	}
}

// exportCSV writes the cycle's ranked candidates to path, overwriting
// whatever the previous cycle left there.
func exportCSV(path string, candidates []*model.Candidate) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return scanner.WriteCSV(f, candidates)
}

func numThreads(store *config.Store) int {
	n := store.Int("system/num_threads", 4)
	if n < 1 {
		return 1
	}
	return n
}

// authenticated wraps t so every request carries the given bearer token and
// a 401/403 invalidates the credential store, per spec.md §7.
func authenticated(t transport.Transport, token string, credStore *auth.Store) transport.Transport {
	return &authTransport{inner: t, token: token, credStore: credStore}
}

type authTransport struct {
	inner     transport.Transport
	token     string
	credStore *auth.Store
}

func (a *authTransport) Do(ctx context.Context, method, path string, query url.Values, headers http.Header) (int, []byte, http.Header, error) {
	if headers == nil {
		headers = http.Header{}
	}
	if a.token != "" {
		headers.Set("Authorization", "Bearer "+a.token)
	}
	status, body, respHeaders, err := a.inner.Do(ctx, method, path, query, headers)
	if status == 401 || status == 403 {
		if invalidateErr := a.credStore.Invalidate(); invalidateErr != nil {
			logger.Warn("AUTH", fmt.Sprintf("failed to invalidate credential: %v", invalidateErr))
		}
		if err != nil {
			return status, body, respHeaders, fmt.Errorf("%w: %v", auth.ErrAuthInvalid, err)
		}
		return status, body, respHeaders, fmt.Errorf("%w: status %d", auth.ErrAuthInvalid, status)
	}
	return status, body, respHeaders, err
}
