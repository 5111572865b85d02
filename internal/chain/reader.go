package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"clenja-agent-go/internal/models"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const erc20BalanceOfABI = `[{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`

// Backend is the subset of an EVM node client the reader needs.
type Backend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Reader reads token balances straight from the chain. Tokens without a
// contract address are treated as the native asset.
type Reader struct {
	backend Backend
	tokens  models.TokenCatalog
	erc20   abi.ABI
	closer  func()
}

func NewReader(backend Backend, tokens models.TokenCatalog) (*Reader, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20BalanceOfABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return &Reader{backend: backend, tokens: tokens, erc20: parsed, closer: func() {}}, nil
}

// Dial connects to an RPC endpoint.
func Dial(ctx context.Context, rpcURL string, tokens models.TokenCatalog) (*Reader, error) {
	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" {
		return nil, errors.New("chain rpc url is required")
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}

	r, err := NewReader(client, tokens)
	if err != nil {
		client.Close()
		return nil, err
	}
	r.closer = client.Close
	return r, nil
}

func (r *Reader) Close() {
	r.closer()
}

// IsAddress reports whether s is a 0x-prefixed 20 byte hex address.
func IsAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

// Balances reads every catalog token for address in parallel.
func (r *Reader) Balances(ctx context.Context, address string) ([]models.TokenBalance, error) {
	if !IsAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}
	owner := common.HexToAddress(address)

	symbols := make([]string, 0, len(r.tokens))
	for symbol := range r.tokens {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	out := make([]models.TokenBalance, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	for i, symbol := range symbols {
		token := r.tokens[symbol]
		g.Go(func() error {
			raw, err := r.rawBalance(gctx, owner, token)
			if err != nil {
				return fmt.Errorf("balance of %s: %w", token.Symbol, err)
			}
			amount := decimal.NewFromBigInt(raw, -token.Decimals)
			out[i] = models.TokenBalance{
				Token:    token.Symbol,
				Amount:   amount,
				UsdValue: amount.Mul(token.UsdPrice).Round(2),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	zap.L().Debug("Read on-chain balances", zap.String("address", owner.Hex()), zap.Int("tokens", len(out)))
	return out, nil
}

func (r *Reader) rawBalance(ctx context.Context, owner common.Address, token models.Token) (*big.Int, error) {
	if token.Contract == "" {
		return r.backend.BalanceAt(ctx, owner, nil)
	}

	data, err := r.erc20.Pack("balanceOf", owner)
	if err != nil {
		return nil, err
	}
	contract := common.HexToAddress(token.Contract)
	res, err := r.backend.CallContract(ctx, gethcore.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, err
	}

	values, err := r.erc20.Unpack("balanceOf", res)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected balanceOf result")
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf type %T", values[0])
	}
	return balance, nil
}
