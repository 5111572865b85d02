package formance

import (
	"context"
	"fmt"
	"math/big"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Outflows returns the total journaled out of a user's account per token.
func (s *Service) Outflows(ctx context.Context, userId string) (map[string]decimal.Decimal, error) {
	zap.L().Debug("Getting journaled outflows from Formance", zap.String("user_id", userId))

	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: "users:" + userId,
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get account volumes: %w", err)
	}
	return outflows(resp.V2AccountResponse.Data.Volumes), nil
}

func outflows(vols map[string]shared.V2Volume) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(vols))
	for fAsset, vol := range vols {
		if vol.Output == nil || vol.Output.Sign() == 0 {
			continue
		}
		symbol := assetSymbol(fAsset)
		out[symbol] = bigIntToDecimal(vol.Output, symbol)
	}
	return out
}

// bigIntToDecimal converts a Formance smallest-unit amount back to a decimal.
func bigIntToDecimal(raw *big.Int, symbol string) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(precisionFor(symbol)))
}

// assetSymbol extracts the symbol from a Formance asset like "CUSD/18".
func assetSymbol(fAsset string) string {
	for i, c := range fAsset {
		if c == '/' {
			return fAsset[:i]
		}
	}
	return fAsset
}
