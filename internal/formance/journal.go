package formance

import (
	"context"
	"fmt"

	"clenja-agent-go/internal/models"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

// Numscript templates. Users fund from world since deposits are not mirrored;
// each receipt moves value out of @users:$user_id.
const numscriptReceipt = `vars {
  asset $asset
  number $amount
  account $user_id
  account $destination
  string $receipt_id
  string $kind
  string $ref
  string $token
  string $amount_human
}

send [$asset $amount] (
  source = @users:$user_id allowing unbounded overdraft
  destination = $destination
)

set_tx_meta("event_type", $kind)
set_tx_meta("receipt_id", $receipt_id)
set_tx_meta("ref", $ref)
set_tx_meta("token", $token)
set_tx_meta("amount_human", $amount_human)
`

// destinationFor names the counter account a receipt kind settles into.
func destinationFor(receipt *models.Receipt) string {
	switch receipt.Kind {
	case models.ReceiptSend:
		return "onchain:transfers"
	case models.ReceiptCashout:
		return "offramp:payouts"
	case models.ReceiptSwap:
		return "swaps:pool"
	}
	return "unclassified"
}

func receiptVars(receipt *models.Receipt) map[string]string {
	return map[string]string{
		"asset":        formanceAsset(receipt.Token),
		"amount":       receipt.Amount.Shift(int32(precisionFor(receipt.Token))).BigInt().String(),
		"user_id":      receipt.UserId,
		"destination":  destinationFor(receipt),
		"receipt_id":   receipt.Id,
		"kind":         string(receipt.Kind),
		"ref":          receipt.Ref,
		"token":        receipt.Token,
		"amount_human": receipt.Amount.String(),
	}
}

// RecordReceipt posts a receipt keyed by its id. Posting the same receipt
// twice is a no-op.
func (s *Service) RecordReceipt(ctx context.Context, receipt *models.Receipt) error {
	createdAt := receipt.CreatedAt
	postTx := shared.V2PostTransaction{
		Reference: strPtr(receipt.Id),
		Script: &shared.V2PostTransactionScript{
			Plain: numscriptReceipt,
			Vars:  receiptVars(receipt),
		},
	}
	if !createdAt.IsZero() {
		postTx.Timestamp = &createdAt
	}

	_, err := s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Debug("Receipt already journaled", zap.String("receipt_id", receipt.Id))
			return nil
		}
		return fmt.Errorf("error journaling receipt: %w", err)
	}

	zap.L().Info("Receipt journaled in Formance",
		zap.String("receipt_id", receipt.Id),
		zap.String("user_id", receipt.UserId),
		zap.String("kind", string(receipt.Kind)),
		zap.String("amount", receipt.Amount.String()),
		zap.String("token", receipt.Token))
	return nil
}
