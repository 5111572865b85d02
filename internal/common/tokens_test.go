package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTokens(t *testing.T) {
	catalog, err := ParseTokens([]byte(`
tokens:
  - symbol: cUSD
    decimals: 18
    contract: "0x765DE816845861e75A25fCA122bb6898B8B1282a"
    usd_price: "1"
  - symbol: CELO
    decimals: 18
    usd_price: "0.62"
    prime_symbol: CELO
    network: celo-mainnet
`))
	require.NoError(t, err)
	require.Len(t, catalog, 2)

	cusd, ok := catalog.Lookup("cusd")
	require.True(t, ok)
	assert.Equal(t, "cUSD", cusd.PrimeSymbol, "prime symbol defaults to the symbol")

	usd, ok := catalog.UsdValue("CELO", decimal.NewFromInt(10))
	require.True(t, ok)
	assert.True(t, usd.Equal(decimal.RequireFromString("6.2")))
}

func TestParseTokens_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "tokens: []"},
		{"missing symbol", "tokens:\n  - decimals: 18\n    usd_price: \"1\""},
		{"missing decimals", "tokens:\n  - symbol: X\n    usd_price: \"1\""},
		{"bad price", "tokens:\n  - symbol: X\n    decimals: 6\n    usd_price: abc"},
		{"zero price", "tokens:\n  - symbol: X\n    decimals: 6\n    usd_price: \"0\""},
		{"duplicate", "tokens:\n  - {symbol: X, decimals: 6, usd_price: \"1\"}\n  - {symbol: X, decimals: 6, usd_price: \"1\"}"},
		{"not yaml", "tokens: [:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTokens([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadTokens_MissingFileUsesDefaults(t *testing.T) {
	catalog, err := LoadTokens(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Contains(t, catalog, "CELO")
	assert.Contains(t, catalog, "cUSD")
}

func TestLoadTokens_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tokens:\n  - {symbol: cUSD, decimals: 18, usd_price: \"1\"}\n"), 0o600))

	catalog, err := LoadTokens(path)
	require.NoError(t, err)
	assert.Len(t, catalog, 1)
}
