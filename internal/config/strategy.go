package config

// StrategyConfig mirrors the strategy/* keys from spec.md §6.
type StrategyConfig struct {
	Underlying              string
	Exchange                string
	Quantity                int
	Capital                 float64
	MinROI                  float64
	MinProfitability        float64
	MaxSlippage             float64
	MinStrikeDiff           float64
	MaxStrikeDiff           float64
	ScanIntervalSeconds     int
	PaperTrading            bool
	WorstCaseSlippagePct    float64
}

// DefaultStrategy returns the documented strategy defaults.
func DefaultStrategy() StrategyConfig {
	return StrategyConfig{
		Underlying:           "NIFTY",
		Exchange:             "NFO",
		Quantity:             1,
		Capital:              100000,
		MinROI:               0,
		MinProfitability:     0,
		MaxSlippage:          1e18,
		MinStrikeDiff:        0,
		MaxStrikeDiff:        1e18,
		ScanIntervalSeconds:  60,
		PaperTrading:         true,
		WorstCaseSlippagePct: 5,
	}
}

// LoadStrategy reads strategy/* keys from s, falling back to d for any
// missing or wrong-typed key.
func LoadStrategy(s *Store, d StrategyConfig) StrategyConfig {
	return StrategyConfig{
		Underlying:           s.String("strategy/underlying", d.Underlying),
		Exchange:             s.String("strategy/exchange", d.Exchange),
		Quantity:             s.Int("strategy/quantity", d.Quantity),
		Capital:              s.Float("strategy/capital", d.Capital),
		MinROI:               s.Float("strategy/min_roi", d.MinROI),
		MinProfitability:     s.Float("strategy/min_profitability", d.MinProfitability),
		MaxSlippage:          s.Float("strategy/max_slippage", d.MaxSlippage),
		MinStrikeDiff:        s.Float("strategy/min_strike_diff", d.MinStrikeDiff),
		MaxStrikeDiff:        s.Float("strategy/max_strike_diff", d.MaxStrikeDiff),
		ScanIntervalSeconds:  s.Int("strategy/scan_interval_seconds", d.ScanIntervalSeconds),
		PaperTrading:         s.Bool("strategy/paper_trading", d.PaperTrading),
		WorstCaseSlippagePct: s.Float("strategy/worst_case_slippage_percent", d.WorstCaseSlippagePct),
	}
}

// ExpiryConfig mirrors the expiry/* keys.
type ExpiryConfig struct {
	IncludeWeekly        bool
	IncludeMonthly       bool
	MaxCount             int
	MinDays              int
	MaxDays              int
	ProcessInParallel    bool
}

// DefaultExpiry returns the documented expiry defaults.
func DefaultExpiry() ExpiryConfig {
	return ExpiryConfig{
		IncludeWeekly:     true,
		IncludeMonthly:    true,
		MaxCount:          4,
		MinDays:           0,
		MaxDays:           45,
		ProcessInParallel: false,
	}
}

// LoadExpiry reads expiry/* keys from s.
func LoadExpiry(s *Store, d ExpiryConfig) ExpiryConfig {
	return ExpiryConfig{
		IncludeWeekly:     s.Bool("expiry/include_weekly", d.IncludeWeekly),
		IncludeMonthly:    s.Bool("expiry/include_monthly", d.IncludeMonthly),
		MaxCount:          s.Int("expiry/max_count", d.MaxCount),
		MinDays:           s.Int("expiry/min_days", d.MinDays),
		MaxDays:           s.Int("expiry/max_days", d.MaxDays),
		ProcessInParallel: s.Bool("expiry/process_in_parallel", d.ProcessInParallel),
	}
}

// FeesConfig mirrors the fees/* keys.
type FeesConfig struct {
	BrokeragePercentage     float64
	MaxBrokeragePerOrder    float64
	STTPercentage           float64
	ExchangeChargesPct      float64
	GSTPercentage           float64
	SEBIChargesPerCrore     float64
	StampDutyPercentage     float64
}

// DefaultFees returns the documented fee-table defaults from spec.md §4.F.
func DefaultFees() FeesConfig {
	return FeesConfig{
		BrokeragePercentage:  0.0003,
		MaxBrokeragePerOrder: 20.0,
		STTPercentage:        0.0005,
		ExchangeChargesPct:   0.0000053,
		GSTPercentage:        0.18,
		SEBIChargesPerCrore:  10,
		StampDutyPercentage:  0.00003,
	}
}

// LoadFees reads fees/* keys from s.
func LoadFees(s *Store, d FeesConfig) FeesConfig {
	return FeesConfig{
		BrokeragePercentage:  s.Float("fees/brokerage_percentage", d.BrokeragePercentage),
		MaxBrokeragePerOrder: s.Float("fees/max_brokerage_per_order", d.MaxBrokeragePerOrder),
		STTPercentage:        s.Float("fees/stt_percentage", d.STTPercentage),
		ExchangeChargesPct:   s.Float("fees/exchange_charges_percentage", d.ExchangeChargesPct),
		GSTPercentage:        s.Float("fees/gst_percentage", d.GSTPercentage),
		SEBIChargesPerCrore:  s.Float("fees/sebi_charges_per_crore", d.SEBIChargesPerCrore),
		StampDutyPercentage:  s.Float("fees/stamp_duty_percentage", d.StampDutyPercentage),
	}
}

// RiskConfig mirrors the risk/* keys.
type RiskConfig struct {
	CapitalSafetyFactor     float64
	ExposureMarginPct       float64
	MarginBufferPct         float64
	MaxLossPercentage       float64
}

// DefaultRisk returns the documented risk defaults.
func DefaultRisk() RiskConfig {
	return RiskConfig{
		CapitalSafetyFactor: 0.9,
		ExposureMarginPct:   3,
		MarginBufferPct:     25,
		MaxLossPercentage:   100,
	}
}

// LoadRisk reads risk/* keys from s.
func LoadRisk(s *Store, d RiskConfig) RiskConfig {
	return RiskConfig{
		CapitalSafetyFactor: s.Float("risk/capital_safety_factor", d.CapitalSafetyFactor),
		ExposureMarginPct:   s.Float("risk/exposure_margin_percentage", d.ExposureMarginPct),
		MarginBufferPct:     s.Float("risk/margin_buffer_percentage", d.MarginBufferPct),
		MaxLossPercentage:   s.Float("risk/max_loss_percentage", d.MaxLossPercentage),
	}
}

// APIConfig mirrors the api/* keys.
type APIConfig struct {
	Key                       string
	Secret                    string
	QuoteBatchSize            int
	InstrumentsCacheTTLMin    int
	InstrumentsCacheFile      string
	RateLimits                map[string]int
}

// DefaultAPI returns the documented api defaults.
func DefaultAPI() APIConfig {
	return APIConfig{
		QuoteBatchSize:         250,
		InstrumentsCacheTTLMin: 1440,
		InstrumentsCacheFile:   "instruments.csv",
		RateLimits: map[string]int{
			"default":     1,
			"/instruments": 1,
			"/quote/ltp":  1,
			"/quote/ohlc": 1,
			"/quote":      1,
		},
	}
}

// LoadAPI reads api/* keys from s.
func LoadAPI(s *Store, d APIConfig) APIConfig {
	rl := map[string]int{}
	for k, v := range d.RateLimits {
		rl[k] = v
	}
	rl["default"] = s.Int("api/rate_limits/default", rl["default"])
	rl["/instruments"] = s.Int("api/rate_limits/instruments", rl["/instruments"])
	rl["/quote/ltp"] = s.Int("api/rate_limits/ltp", rl["/quote/ltp"])
	rl["/quote/ohlc"] = s.Int("api/rate_limits/ohlc", rl["/quote/ohlc"])
	rl["/quote"] = s.Int("api/rate_limits/quote", rl["/quote"])
	return APIConfig{
		Key:                    s.String("api/key", d.Key),
		Secret:                 s.String("api/secret", d.Secret),
		QuoteBatchSize:         s.Int("api/quote_batch_size", d.QuoteBatchSize),
		InstrumentsCacheTTLMin: s.Int("api/instruments_cache_ttl_minutes", d.InstrumentsCacheTTLMin),
		InstrumentsCacheFile:   s.String("api/instruments_cache_file", d.InstrumentsCacheFile),
		RateLimits:             rl,
	}
}

// PipelineConfig mirrors option_chain/* keys.
type PipelineConfig struct {
	StrikeRangePercent          float64
	BatchSize                   int
	DelayBetweenBatchesMs       int
	DelayBetweenExpiriesMs      int
	ProcessExpiriesSequentially bool
}

// DefaultPipeline returns the documented option_chain/pipeline defaults.
func DefaultPipeline() PipelineConfig {
	return PipelineConfig{
		StrikeRangePercent:          5,
		BatchSize:                   50,
		DelayBetweenBatchesMs:       0,
		DelayBetweenExpiriesMs:      0,
		ProcessExpiriesSequentially: true,
	}
}

// LoadPipeline reads option_chain/* keys from s.
func LoadPipeline(s *Store, d PipelineConfig) PipelineConfig {
	return PipelineConfig{
		StrikeRangePercent:          s.Float("option_chain/strike_range_percent", d.StrikeRangePercent),
		BatchSize:                   s.Int("option_chain/pipeline/batch_size", d.BatchSize),
		DelayBetweenBatchesMs:       s.Int("option_chain/pipeline/delay_between_batches_ms", d.DelayBetweenBatchesMs),
		DelayBetweenExpiriesMs:      s.Int("option_chain/pipeline/delay_between_expiries_ms", d.DelayBetweenExpiriesMs),
		ProcessExpiriesSequentially: s.Bool("option_chain/pipeline/process_expiries_sequentially", d.ProcessExpiriesSequentially),
	}
}
