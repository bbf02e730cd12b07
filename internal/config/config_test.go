package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) *Store {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	s, err := Load(path)
	require.NoError(t, err)
	return s
}

func TestLoad_MissingFile_FallsBackToDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	got := LoadStrategy(s, DefaultStrategy())
	assert.Equal(t, DefaultStrategy(), got)
}

func TestLoadStrategy_ReadsNestedDottedKeys(t *testing.T) {
	s := writeConfig(t, `
strategy:
  underlying: BANKNIFTY
  quantity: 25
  min_roi: 12.5
  paper_trading: false
`)
	got := LoadStrategy(s, DefaultStrategy())
	assert.Equal(t, "BANKNIFTY", got.Underlying)
	assert.Equal(t, 25, got.Quantity)
	assert.Equal(t, 12.5, got.MinROI)
	assert.False(t, got.PaperTrading)
	// Unset fields keep the default.
	assert.Equal(t, DefaultStrategy().Exchange, got.Exchange)
}

func TestWrongType_FallsBackToDefaultWithWarning(t *testing.T) {
	s := writeConfig(t, `
strategy:
  quantity: "not-a-number"
`)
	got := LoadStrategy(s, DefaultStrategy())
	assert.Equal(t, DefaultStrategy().Quantity, got.Quantity)
}

func TestLoadAPI_RateLimitsMergeOverDefaults(t *testing.T) {
	s := writeConfig(t, `
api:
  rate_limits:
    quote: 3
`)
	got := LoadAPI(s, DefaultAPI())
	assert.Equal(t, 3, got.RateLimits["/quote"])
	assert.Equal(t, DefaultAPI().RateLimits["/instruments"], got.RateLimits["/instruments"])
}
