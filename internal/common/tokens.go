package common

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"clenja-agent-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

type tokenConfig struct {
	Symbol      string `yaml:"symbol"`
	Name        string `yaml:"name"`
	Decimals    int32  `yaml:"decimals"`
	Contract    string `yaml:"contract"`
	UsdPrice    string `yaml:"usd_price"`
	PrimeSymbol string `yaml:"prime_symbol"`
	Network     string `yaml:"network"`
}

type tokensConfig struct {
	Tokens []tokenConfig `yaml:"tokens"`
}

// DefaultTokens is the catalog used when no tokens file exists
func DefaultTokens() models.TokenCatalog {
	return models.TokenCatalog{
		"CELO": {
			Symbol:      "CELO",
			Name:        "Celo",
			Decimals:    18,
			Contract:    "0x471EcE3750Da237f93B8E339c536989b8978a438",
			UsdPrice:    decimal.RequireFromString("0.5"),
			PrimeSymbol: "CELO",
			Network:     "celo-mainnet",
		},
		"cUSD": {
			Symbol:      "cUSD",
			Name:        "Celo Dollar",
			Decimals:    18,
			Contract:    "0x765DE816845861e75A25fCA122bb6898B8B1282a",
			UsdPrice:    decimal.NewFromInt(1),
			PrimeSymbol: "CUSD",
			Network:     "celo-mainnet",
		},
	}
}

// LoadTokens reads the token catalog from YAML. A missing file yields the
// built-in CELO and cUSD catalog.
func LoadTokens(tokensFile string) (models.TokenCatalog, error) {
	tokensPath := tokensFile
	if !filepath.IsAbs(tokensFile) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		tokensPath = filepath.Join(wd, tokensFile)
	}

	data, err := os.ReadFile(tokensPath)
	if errors.Is(err, os.ErrNotExist) {
		zap.L().Info("No tokens file, using built-in catalog", zap.String("path", tokensPath))
		return DefaultTokens(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", tokensFile, err)
	}

	return ParseTokens(data)
}

func ParseTokens(data []byte) (models.TokenCatalog, error) {
	var config tokensConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse tokens: %w", err)
	}
	if len(config.Tokens) == 0 {
		return nil, errors.New("tokens file lists no tokens")
	}

	catalog := make(models.TokenCatalog, len(config.Tokens))
	for i, t := range config.Tokens {
		if t.Symbol == "" {
			return nil, fmt.Errorf("token at index %d missing symbol", i)
		}
		if t.Decimals <= 0 {
			return nil, fmt.Errorf("token %s missing decimals", t.Symbol)
		}
		price, err := decimal.NewFromString(t.UsdPrice)
		if err != nil || !price.IsPositive() {
			return nil, fmt.Errorf("token %s has invalid usd_price %q", t.Symbol, t.UsdPrice)
		}
		if _, dup := catalog[t.Symbol]; dup {
			return nil, fmt.Errorf("token %s listed twice", t.Symbol)
		}

		primeSymbol := t.PrimeSymbol
		if primeSymbol == "" {
			primeSymbol = t.Symbol
		}
		catalog[t.Symbol] = models.Token{
			Symbol:      t.Symbol,
			Name:        t.Name,
			Decimals:    t.Decimals,
			Contract:    t.Contract,
			UsdPrice:    price,
			PrimeSymbol: primeSymbol,
			Network:     t.Network,
		}
	}
	return catalog, nil
}
