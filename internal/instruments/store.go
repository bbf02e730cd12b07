// Package instruments is the authoritative, refreshable store of tradeable
// instruments (Component C): one CSV fetch feeds an in-memory index keyed by
// token and by (exchange, symbol), refreshed on a TTL with concurrent
// refreshes coalesced into one upstream call.
package instruments

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"boxscan/internal/logger"
	"boxscan/internal/model"
	"boxscan/internal/ratelimit"
	"boxscan/internal/transport"

	"golang.org/x/sync/singleflight"
)

const tag = "INSTR"

// Config controls where the universe CSV comes from and how long a cached
// copy is considered fresh.
type Config struct {
	Path               string // GET path on the upstream transport, e.g. "/instruments"
	CacheFile          string // on-disk path the fetched CSV is persisted to
	CacheTTL           time.Duration
	Underlying         string
	Location           *time.Location
}

// Store holds the current instrument universe and refreshes it on demand.
type Store struct {
	cfg       Config
	transport transport.Transport
	limiter   *ratelimit.Limiter
	group     singleflight.Group

	mu        sync.RWMutex
	byToken   map[uint64]*model.Instrument
	bySymbol  map[string]*model.Instrument // "EXCHANGE|SYMBOL"
	byExchange map[string][]*model.Instrument
	fetchedAt time.Time
}

// New creates a Store. loc defaults to UTC if cfg.Location is nil.
func New(cfg Config, t transport.Transport, limiter *ratelimit.Limiter) *Store {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Store{
		cfg:        cfg,
		transport:  t,
		limiter:    limiter,
		byToken:    map[uint64]*model.Instrument{},
		bySymbol:   map[string]*model.Instrument{},
		byExchange: map[string][]*model.Instrument{},
	}
}

func symbolKey(exchange, symbol string) string {
	return strings.ToUpper(exchange) + "|" + strings.ToUpper(symbol)
}

// All returns every instrument currently indexed.
func (s *Store) All() []*model.Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Instrument, 0, len(s.byToken))
	for _, inst := range s.byToken {
		out = append(out, inst)
	}
	return out
}

// ByToken looks up one instrument by its numeric token.
func (s *Store) ByToken(token uint64) (*model.Instrument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.byToken[token]
	return inst, ok
}

// BySymbol looks up one instrument by (exchange, trading symbol).
func (s *Store) BySymbol(exchange, symbol string) (*model.Instrument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.bySymbol[symbolKey(exchange, symbol)]
	return inst, ok
}

// ByExchange returns every instrument listed under exchange. Satisfies
// internal/expiry.InstrumentSource.
func (s *Store) ByExchange(exchange string) ([]*model.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.byExchange[strings.ToUpper(exchange)]
	out := make([]*model.Instrument, len(list))
	copy(out, list)
	return out, nil
}

// MergeSnapshot writes snap into the indexed instrument for token, per
// spec.md §4.D ("merge result fields into the cache entry for each
// token"). A token with no indexed instrument is a no-op — quotes for
// instruments outside the current universe are silently dropped.
func (s *Store) MergeSnapshot(token uint64, snap model.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst, ok := s.byToken[token]; ok {
		inst.Snapshot = snap
	}
}

// Ensure refreshes the store if the in-memory copy is older than cfg.CacheTTL,
// or if nothing has been loaded yet.
func (s *Store) Ensure(ctx context.Context) error {
	s.mu.RLock()
	stale := time.Since(s.fetchedAt) > s.cfg.CacheTTL || s.fetchedAt.IsZero()
	s.mu.RUnlock()
	if !stale {
		return nil
	}
	return s.Refresh(ctx)
}

// Refresh reloads the universe, preferring a fresh on-disk cache file over a
// network fetch, and coalesces concurrent callers into one upstream call.
func (s *Store) Refresh(ctx context.Context) error {
	_, err, _ := s.group.Do("refresh", func() (interface{}, error) {
		data, err := s.load(ctx)
		if err != nil {
			return nil, err
		}
		instruments := parseCSV(data, s.cfg.Underlying, s.cfg.Location)
		s.index(instruments)
		logger.Success(tag, fmt.Sprintf("loaded %d instruments", len(instruments)))
		return nil, nil
	})
	return err
}

func (s *Store) load(ctx context.Context) ([]byte, error) {
	if s.cfg.CacheFile != "" {
		if data, ok := s.readFreshCache(); ok {
			return data, nil
		}
	}

	if s.limiter != nil {
		s.limiter.Acquire(s.cfg.Path)
	}
	status, body, _, err := s.transport.Do(ctx, "GET", s.cfg.Path, url.Values{}, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch instruments: %w", err)
	}
	if status == 429 {
		if s.limiter != nil {
			s.limiter.Throttle(s.cfg.Path)
		}
		return nil, fmt.Errorf("fetch instruments: rate limited (status 429)")
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("fetch instruments: upstream status %d", status)
	}

	if s.cfg.CacheFile != "" {
		if err := s.persist(body); err != nil {
			logger.Warn(tag, fmt.Sprintf("failed to persist cache file: %v", err))
		}
	}
	return body, nil
}

func (s *Store) readFreshCache() ([]byte, bool) {
	info, err := os.Stat(s.cfg.CacheFile)
	if err != nil {
		return nil, false
	}
	if time.Since(info.ModTime()) > s.cfg.CacheTTL {
		return nil, false
	}
	data, err := os.ReadFile(s.cfg.CacheFile)
	if err != nil {
		return nil, false
	}
	return data, true
}

// persist writes body to a temp file in the same directory and renames it
// into place, so a concurrent reader never observes a partial write.
func (s *Store) persist(body []byte) error {
	dir := filepath.Dir(s.cfg.CacheFile)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(dir, ".instruments-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.cfg.CacheFile)
}

func (s *Store) index(instruments []*model.Instrument) {
	byToken := make(map[uint64]*model.Instrument, len(instruments))
	bySymbol := make(map[string]*model.Instrument, len(instruments))
	byExchange := make(map[string][]*model.Instrument)

	for _, inst := range instruments {
		byToken[inst.Token] = inst
		bySymbol[symbolKey(inst.Exchange, inst.Symbol)] = inst
		ex := strings.ToUpper(inst.Exchange)
		byExchange[ex] = append(byExchange[ex], inst)
	}

	s.mu.Lock()
	s.byToken = byToken
	s.bySymbol = bySymbol
	s.byExchange = byExchange
	s.fetchedAt = time.Now()
	s.mu.Unlock()
}

// Clear drops the in-memory index and removes the on-disk cache file,
// forcing the next Ensure to refetch from upstream.
func (s *Store) Clear() {
	s.mu.Lock()
	s.byToken = map[uint64]*model.Instrument{}
	s.bySymbol = map[string]*model.Instrument{}
	s.byExchange = map[string][]*model.Instrument{}
	s.fetchedAt = time.Time{}
	s.mu.Unlock()
	if s.cfg.CacheFile != "" {
		if err := os.Remove(s.cfg.CacheFile); err != nil && !os.IsNotExist(err) {
			logger.Warn(tag, fmt.Sprintf("failed to remove cache file: %v", err))
		}
	}
}
