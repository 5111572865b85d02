package intent

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

const testAddr = "0xABCDEF0123456789abcdef0123456789ABCD1234"

func TestParse(t *testing.T) {
	tests := []struct {
		text string
		want Intent
	}{
		{"help", Intent{Kind: KindHelp}},
		{"what can you do?", Intent{Kind: KindHelp}},
		{"What's my balance", Intent{Kind: KindBalance}},
		{"show my receipts history", Intent{Kind: KindHistory}},
		{"system status", Intent{Kind: KindStatus}},
		{"hey there", Intent{Kind: KindGreeting}},
		{"YES", Intent{Kind: KindConfirmYes}},
		{"  ok  ", Intent{Kind: KindConfirmYes}},
		{"never mind", Intent{Kind: KindCancel}},
		{"show limits", Intent{Kind: KindShowLimits}},
		{"pause sending", Intent{Kind: KindPauseSending}},
		{"resume   sending", Intent{Kind: KindResumeSending}},
		{"list recipients", Intent{Kind: KindListRecipients}},
		{"set daily limit 150", Intent{Kind: KindSetDailyLimit, Amount: decimal.NewFromInt(150)}},
		{"set per-tx limit to $25.5", Intent{Kind: KindSetPerTxLimit, Amount: decimal.RequireFromString("25.5")}},
		{"save recipient Gabriel " + testAddr, Intent{Kind: KindSaveRecipient, Name: "Gabriel", To: testAddr}},
		{"update beneficiary mum " + testAddr, Intent{Kind: KindUpdateRecipient, Name: "mum", To: testAddr}},
		{"remove recipient Gabriel", Intent{Kind: KindDeleteRecipient, Name: "Gabriel"}},
		{"send 5 cUSD to " + testAddr, Intent{Kind: KindSend, Amount: decimal.NewFromInt(5), Token: TokenCUSD, To: testAddr}},
		{"transfer 0.25 celo this address: " + testAddr, Intent{Kind: KindSend, Amount: decimal.RequireFromString("0.25"), Token: TokenCELO, To: testAddr}},
		{"send 3 CUSD to Gabriel", Intent{Kind: KindSendToRecipient, Amount: decimal.NewFromInt(3), Token: TokenCUSD, Name: "Gabriel"}},
		{"swap 10 CELO to cUSD", Intent{Kind: KindSwap, Amount: decimal.NewFromInt(10), Token: TokenCELO, ToToken: TokenCUSD}},
		{"my address", Intent{Kind: KindAddress}},
		{"can i send?", Intent{Kind: KindSendabilityCheck}},
		{"cashout 50 cUSD", Intent{Kind: KindCashout, Amount: decimal.NewFromInt(50), Token: TokenCUSD}},
		{"cashout 50 cUSD to Gabriel", Intent{Kind: KindCashout, Amount: decimal.NewFromInt(50), Token: TokenCUSD, Name: "Gabriel"}},
		{"cashout status po_123_abcd", Intent{Kind: KindCashoutStatus, OrderId: "po_123_abcd"}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := Parse(tt.text)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.text, diff)
			}
		})
	}
}

func TestParse_Unknown(t *testing.T) {
	inputs := []string{
		"",
		"1234",
		"123456",
		"send 5 cUSD to 0x123",
		"swap 5 cUSD to cUSD",
		"send five dollars to mum",
		"\x00\xff garbage",
	}

	for _, text := range inputs {
		got := Parse(text)
		if got.Kind != KindUnknown {
			t.Errorf("Parse(%q) = %s, want unknown", text, got.Kind)
		}
	}
}

func TestParse_ZeroAmountIsKeptForPolicy(t *testing.T) {
	got := Parse("send 0 cUSD to " + testAddr)
	if got.Kind != KindSend || !got.Amount.IsZero() {
		t.Errorf("Expected send with zero amount, got %+v", got)
	}
}

func TestMovesFunds(t *testing.T) {
	if !(Intent{Kind: KindCashout}).MovesFunds() {
		t.Errorf("cashout moves funds")
	}
	if (Intent{Kind: KindBalance}).MovesFunds() {
		t.Errorf("balance does not move funds")
	}
}
