package intent

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	amountExpr = `(\d+(?:\.\d+)?)`
	tokenExpr  = `(cusd|celo)`
	nameExpr   = `([a-zA-Z][a-zA-Z0-9 _-]{1,40})`
	hexAddr    = `(0x[a-fA-F0-9]{40})`
)

var (
	addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	whitespace     = regexp.MustCompile(`\s+`)

	cashoutStatusRe   = regexp.MustCompile(`(?i)^(?:cashout|payout)\s+status\s+([A-Za-z0-9_-]{3,80})$`)
	helpRe            = regexp.MustCompile(`(?i)help|what can you do|commands`)
	balanceRe         = regexp.MustCompile(`(?i)balance|what'?s my balance|my balance`)
	historyRe         = regexp.MustCompile(`(?i)history|my transactions|receipts`)
	statusRe          = regexp.MustCompile(`(?i)status|system status|readiness`)
	greetingRe        = regexp.MustCompile(`(?i)^(hi|hello|hey)\b|how are you`)
	confirmYesRe      = regexp.MustCompile(`(?i)^(yes|confirm|ok)$`)
	cancelRe          = regexp.MustCompile(`(?i)^(cancel|nevermind|never mind|abort)$`)
	showLimitsRe      = regexp.MustCompile(`(?i)show limits|my limits|limits`)
	pauseRe           = regexp.MustCompile(`(?i)pause sending|pause transfers|stop sending`)
	resumeRe          = regexp.MustCompile(`(?i)resume sending|resume transfers|enable sending`)
	listRecipientsRe  = regexp.MustCompile(`(?i)list recipients|list beneficiaries|my recipients|saved recipients`)
	setDailyLimitRe   = regexp.MustCompile(`(?i)set\s+daily\s+limit\s+(?:to\s+)?\$?` + amountExpr)
	setPerTxLimitRe   = regexp.MustCompile(`(?i)set\s+(?:per[- ]?tx|transaction)\s+limit\s+(?:to\s+)?\$?` + amountExpr)
	saveRecipientRe   = regexp.MustCompile(`(?i)(?:save\s+recipient|save\s+beneficiary)\s+` + nameExpr + `\s+` + hexAddr)
	updateRecipientRe = regexp.MustCompile(`(?i)(?:update\s+recipient|update\s+beneficiary)\s+` + nameExpr + `\s+` + hexAddr)
	deleteRecipientRe = regexp.MustCompile(`(?i)(?:delete|remove)\s+(?:recipient|beneficiary)\s+` + nameExpr)
	sendRe            = regexp.MustCompile(`(?i)(send|transfer)\s+` + amountExpr + `\s*` + tokenExpr + `\s+(?:to\s+)?(?:this\s+address\s*:?\s*)?` + hexAddr)
	sendToNameRe      = regexp.MustCompile(`(?i)(send|transfer)\s+` + amountExpr + `\s*` + tokenExpr + `\s+to\s+` + nameExpr)
	swapRe            = regexp.MustCompile(`(?i)\bswap\s+` + amountExpr + `\s*` + tokenExpr + `\s+(?:to|for|into)\s+` + tokenExpr + `\b`)
	addressRe         = regexp.MustCompile(`(?i)address|wallet address|my address`)
	sendabilityRe     = regexp.MustCompile(`(?i)do i have enough celo|enough celo to send|can i send`)
	cashoutRe         = regexp.MustCompile(`(?i)cashout\s+` + amountExpr + `\s+` + tokenExpr + `(?:\s+to\s+(.+))?`)
)

type rule func(c string) (Intent, bool)

func keyword(re *regexp.Regexp, kind Kind) rule {
	return func(c string) (Intent, bool) {
		if re.MatchString(c) {
			return Intent{Kind: kind}, true
		}
		return Intent{}, false
	}
}

// rules are tried in order; the first match wins.
var rules = []rule{
	func(c string) (Intent, bool) {
		if m := cashoutStatusRe.FindStringSubmatch(c); m != nil {
			return Intent{Kind: KindCashoutStatus, OrderId: m[1]}, true
		}
		return Intent{}, false
	},
	keyword(helpRe, KindHelp),
	keyword(balanceRe, KindBalance),
	keyword(historyRe, KindHistory),
	keyword(statusRe, KindStatus),
	keyword(greetingRe, KindGreeting),
	keyword(confirmYesRe, KindConfirmYes),
	keyword(cancelRe, KindCancel),
	keyword(showLimitsRe, KindShowLimits),
	keyword(pauseRe, KindPauseSending),
	keyword(resumeRe, KindResumeSending),
	keyword(listRecipientsRe, KindListRecipients),
	func(c string) (Intent, bool) {
		if m := setDailyLimitRe.FindStringSubmatch(c); m != nil {
			return Intent{Kind: KindSetDailyLimit, Amount: mustAmount(m[1])}, true
		}
		if m := setPerTxLimitRe.FindStringSubmatch(c); m != nil {
			return Intent{Kind: KindSetPerTxLimit, Amount: mustAmount(m[1])}, true
		}
		return Intent{}, false
	},
	func(c string) (Intent, bool) {
		if m := saveRecipientRe.FindStringSubmatch(c); m != nil {
			return Intent{Kind: KindSaveRecipient, Name: strings.TrimSpace(m[1]), To: m[2]}, true
		}
		if m := updateRecipientRe.FindStringSubmatch(c); m != nil {
			return Intent{Kind: KindUpdateRecipient, Name: strings.TrimSpace(m[1]), To: m[2]}, true
		}
		if m := deleteRecipientRe.FindStringSubmatch(c); m != nil {
			return Intent{Kind: KindDeleteRecipient, Name: strings.TrimSpace(m[1])}, true
		}
		return Intent{}, false
	},
	func(c string) (Intent, bool) {
		if m := sendRe.FindStringSubmatch(c); m != nil {
			token, _ := NormalizeToken(m[3])
			return Intent{Kind: KindSend, Amount: mustAmount(m[2]), Token: token, To: m[4]}, true
		}
		if m := sendToNameRe.FindStringSubmatch(c); m != nil {
			token, _ := NormalizeToken(m[3])
			return Intent{Kind: KindSendToRecipient, Amount: mustAmount(m[2]), Token: token, Name: strings.TrimSpace(m[4])}, true
		}
		return Intent{}, false
	},
	func(c string) (Intent, bool) {
		m := swapRe.FindStringSubmatch(c)
		if m == nil {
			return Intent{}, false
		}
		from, _ := NormalizeToken(m[2])
		to, _ := NormalizeToken(m[3])
		if from == to {
			return Intent{}, false
		}
		return Intent{Kind: KindSwap, Amount: mustAmount(m[1]), Token: from, ToToken: to}, true
	},
	keyword(addressRe, KindAddress),
	keyword(sendabilityRe, KindSendabilityCheck),
	func(c string) (Intent, bool) {
		if m := cashoutRe.FindStringSubmatch(c); m != nil {
			token, _ := NormalizeToken(m[2])
			return Intent{Kind: KindCashout, Amount: mustAmount(m[1]), Token: token, Name: strings.TrimSpace(m[3])}, true
		}
		return Intent{}, false
	},
}

// Parse applies the deterministic rules only. It never fails: text no rule
// matches comes back as KindUnknown carrying the trimmed input.
func Parse(text string) Intent {
	raw := strings.TrimSpace(text)
	c := whitespace.ReplaceAllString(raw, " ")

	for _, r := range rules {
		if in, ok := r(c); ok {
			return in
		}
	}
	return Unknown(raw)
}

// mustAmount parses a string the amount pattern already accepted.
func mustAmount(s string) decimal.Decimal {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return amount
}
