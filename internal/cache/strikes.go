package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PutStrikeSet persists the strike set for combo_key, replacing any prior
// entry.
func (d *DB) PutStrikeSet(comboKey string, strikes []float64) error {
	parts := make([]string, len(strikes))
	for i, s := range strikes {
		parts[i] = strconv.FormatFloat(s, 'f', -1, 64)
	}
	_, err := d.sql.Exec(
		`INSERT INTO strike_set (combo_key, strikes, cached_at) VALUES (?, ?, ?)
		 ON CONFLICT(combo_key) DO UPDATE SET strikes = excluded.strikes, cached_at = excluded.cached_at`,
		comboKey, strings.Join(parts, ","), unixNow(),
	)
	if err != nil {
		return fmt.Errorf("put strike set: %w", err)
	}
	return nil
}

// StrikeSet returns the persisted strike set for combo_key, if any.
func (d *DB) StrikeSet(comboKey string) ([]float64, bool, error) {
	var raw string
	err := d.sql.QueryRow(`SELECT strikes FROM strike_set WHERE combo_key = ?`, comboKey).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("query strike set: %w", err)
	}
	if raw == "" {
		return nil, true, nil
	}
	fields := strings.Split(raw, ",")
	strikes := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			continue
		}
		strikes = append(strikes, v)
	}
	return strikes, true, nil
}

// PutLegPair persists the resolved call/put tokens for one strike within
// combo_key.
func (d *DB) PutLegPair(comboKey string, strike float64, callToken, putToken uint64) error {
	_, err := d.sql.Exec(
		`INSERT INTO leg_pair (combo_key, strike, call_token, put_token, cached_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(combo_key, strike) DO UPDATE SET call_token = excluded.call_token, put_token = excluded.put_token, cached_at = excluded.cached_at`,
		comboKey, strike, callToken, putToken, unixNow(),
	)
	if err != nil {
		return fmt.Errorf("put leg pair: %w", err)
	}
	return nil
}

// LegTokens returns the persisted (call, put) token pair for one strike.
func (d *DB) LegTokens(comboKey string, strike float64) (callToken, putToken uint64, ok bool, err error) {
	row := d.sql.QueryRow(`SELECT call_token, put_token FROM leg_pair WHERE combo_key = ? AND strike = ?`, comboKey, strike)
	if scanErr := row.Scan(&callToken, &putToken); scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			return 0, 0, false, nil
		}
		return 0, 0, false, fmt.Errorf("query leg pair: %w", scanErr)
	}
	return callToken, putToken, true, nil
}

// Clear wipes every cached strike set and leg pair, mirroring the
// evaluator's in-memory clear() so a cold start and an explicit clear
// behave identically.
func (d *DB) Clear() error {
	if _, err := d.sql.Exec(`DELETE FROM strike_set`); err != nil {
		return fmt.Errorf("clear strike_set: %w", err)
	}
	if _, err := d.sql.Exec(`DELETE FROM leg_pair`); err != nil {
		return fmt.Errorf("clear leg_pair: %w", err)
	}
	return nil
}

// PutQuoteSnapshot persists the last traded price observed for token.
func (d *DB) PutQuoteSnapshot(token uint64, lastPrice float64) error {
	_, err := d.sql.Exec(
		`INSERT INTO quote_snapshot (token, last_price, fetched_at) VALUES (?, ?, ?)
		 ON CONFLICT(token) DO UPDATE SET last_price = excluded.last_price, fetched_at = excluded.fetched_at`,
		token, lastPrice, unixNow(),
	)
	if err != nil {
		return fmt.Errorf("put quote snapshot: %w", err)
	}
	return nil
}

// QuoteSnapshot returns the last persisted price for token, if any.
func (d *DB) QuoteSnapshot(token uint64) (float64, bool, error) {
	var last float64
	err := d.sql.QueryRow(`SELECT last_price FROM quote_snapshot WHERE token = ?`, token).Scan(&last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("query quote snapshot: %w", err)
	}
	return last, true, nil
}
