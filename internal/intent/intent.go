// Package intent turns free text into a typed Intent.
package intent

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindBalance          Kind = "balance"
	KindHistory          Kind = "history"
	KindStatus           Kind = "status"
	KindAddress          Kind = "address"
	KindGreeting         Kind = "greeting"
	KindHelp             Kind = "help"
	KindShowLimits       Kind = "show_limits"
	KindSetDailyLimit    Kind = "set_daily_limit"
	KindSetPerTxLimit    Kind = "set_per_tx_limit"
	KindPauseSending     Kind = "pause_sending"
	KindResumeSending    Kind = "resume_sending"
	KindListRecipients   Kind = "list_recipients"
	KindSaveRecipient    Kind = "save_recipient"
	KindUpdateRecipient  Kind = "update_recipient"
	KindDeleteRecipient  Kind = "delete_recipient"
	KindConfirmYes       Kind = "confirm_yes"
	KindCancel           Kind = "cancel"
	KindSendabilityCheck Kind = "sendability_check"
	KindSend             Kind = "send"
	KindSendToRecipient  Kind = "send_to_recipient"
	KindSwap             Kind = "swap"
	KindCashout          Kind = "cashout"
	KindCashoutStatus    Kind = "cashout_status"
	KindUnknown          Kind = "unknown"
)

const (
	TokenCELO = "CELO"
	TokenCUSD = "cUSD"
)

// Intent is a tagged variant; only the fields relevant to Kind are set.
type Intent struct {
	Kind    Kind            `json:"kind"`
	Amount  decimal.Decimal `json:"amount,omitempty"`
	Token   string          `json:"token,omitempty"`
	ToToken string          `json:"toToken,omitempty"`
	To      string          `json:"to,omitempty"`
	Name    string          `json:"name,omitempty"`
	OrderId string          `json:"orderId,omitempty"`
	Raw     string          `json:"raw,omitempty"`
}

// MovesFunds reports whether the intent needs a policy check before anything else.
func (i Intent) MovesFunds() bool {
	switch i.Kind {
	case KindSend, KindSendToRecipient, KindCashout, KindSwap:
		return true
	}
	return false
}

func Unknown(raw string) Intent {
	return Intent{Kind: KindUnknown, Raw: raw}
}

// NormalizeToken maps a case-insensitive token symbol to its canonical form.
func NormalizeToken(token string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "cusd":
		return TokenCUSD, true
	case "celo":
		return TokenCELO, true
	}
	return "", false
}

// ParseAmount accepts a strictly positive decimal.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, false
	}
	return amount, true
}

// IsAddress reports whether s is a 0x-prefixed 40-hex-digit address.
func IsAddress(s string) bool {
	return addressPattern.MatchString(s)
}
