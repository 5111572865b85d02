package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"clenja-agent-go/internal/models"

	"github.com/google/uuid"
)

var (
	numberFirstRe = regexp.MustCompile(`^(\d{6,20})\s+([A-Za-z][A-Za-z0-9 .&'-]{1,60}?)\s*(?:,\s*(.{2,80}))?$`)
	bankFirstRe   = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9 .&'-]{1,60}?)\s+(\d{6,20})\s*(?:,\s*(.{2,80}))?$`)
	nonAlnum      = regexp.MustCompile(`[^a-z0-9]`)
)

// ParseBankDetails reads "<account number> <bank name>[, <account name>]"
// or "<bank name> <account number>[, <account name>]".
func ParseBankDetails(text, country string) (models.BankDetails, bool) {
	c := strings.Join(strings.Fields(text), " ")

	if m := numberFirstRe.FindStringSubmatch(c); m != nil {
		return models.BankDetails{
			Country:       strings.ToUpper(country),
			AccountNumber: m[1],
			BankName:      strings.TrimSpace(m[2]),
			AccountName:   strings.TrimSpace(m[3]),
		}, true
	}
	if m := bankFirstRe.FindStringSubmatch(c); m != nil {
		return models.BankDetails{
			Country:       strings.ToUpper(country),
			BankName:      strings.TrimSpace(m[1]),
			AccountNumber: m[2],
			AccountName:   strings.TrimSpace(m[3]),
		}, true
	}
	return models.BankDetails{}, false
}

func fold(s string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(s), "")
}

// matchBeneficiaries returns saved beneficiaries whose account name contains
// the query, or is contained by it, ignoring case and punctuation.
func matchBeneficiaries(saved []models.Beneficiary, query string) []models.Beneficiary {
	q := fold(query)
	if q == "" {
		return nil
	}
	var out []models.Beneficiary
	for _, b := range saved {
		name := fold(b.AccountName)
		if name == "" {
			continue
		}
		if strings.Contains(name, q) || strings.Contains(q, name) {
			out = append(out, b)
		}
	}
	return out
}

// NewBeneficiary builds a beneficiary record with a masked account number.
func NewBeneficiary(userId string, details models.BankDetails) (*models.Beneficiary, error) {
	number := strings.TrimSpace(details.AccountNumber)
	switch {
	case userId == "":
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	case len(number) < 6:
		return nil, fmt.Errorf("%w: account number must have at least 6 digits", ErrInvalidRequest)
	case strings.TrimSpace(details.BankName) == "":
		return nil, fmt.Errorf("%w: bank name is required", ErrInvalidRequest)
	}

	last4 := number[len(number)-4:]
	country := strings.ToUpper(strings.TrimSpace(details.Country))
	return &models.Beneficiary{
		Id:                  "bnf_" + uuid.New().String(),
		UserId:              userId,
		Country:             country,
		BankName:            strings.TrimSpace(details.BankName),
		AccountName:         strings.TrimSpace(details.AccountName),
		AccountNumber:       number,
		AccountNumberMasked: strings.Repeat("*", len(number)-4) + last4,
		AccountNumberLast4:  last4,
	}, nil
}

// SaveBeneficiary validates and stores a bank account for later cashouts.
func (h *Handler) SaveBeneficiary(ctx context.Context, userId string, details models.BankDetails) (*models.Beneficiary, error) {
	if details.Country == "" {
		details.Country = h.cfg.Country
	}
	b, err := NewBeneficiary(userId, details)
	if err != nil {
		return nil, err
	}
	b.CreatedAt = h.now().UTC()
	if err := h.store.AddBeneficiary(ctx, b); err != nil {
		return nil, fmt.Errorf("save beneficiary: %w", err)
	}
	h.record(ctx, userId, "beneficiary.save", nil, map[string]string{"beneficiaryId": b.Id, "bank": b.BankName})
	return b, nil
}
