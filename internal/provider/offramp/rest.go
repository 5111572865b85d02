package offramp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"clenja-agent-go/internal/models"
	"clenja-agent-go/internal/provider"

	"go.uber.org/zap"
)

const Name = "live"

var _ provider.Offramp = (*Client)(nil)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to a fiat payout provider over its REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, provider.NewError(Name, "init", provider.CategoryNotConfigured, errors.New("offramp base url and api key are required"))
	}

	httpClient, err := provider.NewHTTPClient(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create offramp http client: %w", err)
	}

	return &Client{baseURL: baseURL, apiKey: strings.TrimSpace(cfg.APIKey), httpClient: httpClient}, nil
}

func (c *Client) Name() string        { return Name }
func (c *Client) Mode() provider.Mode { return provider.ModeLive }

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, op, method, path string, headers map[string]string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return provider.NewError(Name, op, provider.CategoryInvalidRequest, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return provider.NewError(Name, op, provider.CategoryInvalidRequest, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return provider.Classify(Name, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return provider.Classify(Name, op, err)
	}

	if resp.StatusCode >= 400 {
		var ae apiError
		_ = json.Unmarshal(data, &ae)
		msg := ae.Message
		if msg == "" {
			msg = ae.Error
		}
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		category := provider.CategoryForStatus(resp.StatusCode)
		if ae.Error == "quote_expired" || ae.Error == "quote_not_found" {
			category = provider.CategoryQuoteExpired
		}
		zap.L().Debug("Offramp request rejected",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg))
		return provider.NewError(Name, op, category, fmt.Errorf("http_%d: %s", resp.StatusCode, msg))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return provider.NewError(Name, op, provider.CategoryUpstream, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) Quote(ctx context.Context, req models.CashoutQuoteRequest) (*models.CashoutQuote, error) {
	var q models.CashoutQuote
	if err := c.do(ctx, "quote", http.MethodPost, "/quotes", nil, req, &q); err != nil {
		return nil, err
	}
	if q.QuoteId == "" {
		return nil, provider.NewError(Name, "quote", provider.CategoryUpstream, errors.New("response missing quoteId"))
	}
	q.Backend = Name
	return &q, nil
}

// CreatePayout keys the request on the quote id so a retried create can not
// pay out twice.
func (c *Client) CreatePayout(ctx context.Context, req models.CreatePayoutRequest) (*models.Payout, error) {
	var p models.Payout
	headers := map[string]string{"Idempotency-Key": req.QuoteId}
	if err := c.do(ctx, "create_payout", http.MethodPost, "/payouts", headers, req, &p); err != nil {
		return nil, err
	}
	if p.PayoutId == "" {
		return nil, provider.NewError(Name, "create_payout", provider.CategoryUpstream, errors.New("response missing payoutId"))
	}
	if p.Status == "" {
		p.Status = models.PayoutPending
	}
	p.Backend = Name

	zap.L().Info("Payout created",
		zap.String("payout_id", p.PayoutId),
		zap.String("user_id", req.UserId),
		zap.String("status", string(p.Status)))
	return &p, nil
}

func (c *Client) PayoutStatus(ctx context.Context, payoutId string) (*models.PayoutState, error) {
	var st models.PayoutState
	if err := c.do(ctx, "payout_status", http.MethodGet, "/payouts/"+url.PathEscape(payoutId), nil, nil, &st); err != nil {
		return nil, err
	}
	if st.PayoutId == "" {
		st.PayoutId = payoutId
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	return &st, nil
}

func (c *Client) NotifyDeposit(ctx context.Context, payoutId, txRef string) (*models.PayoutState, error) {
	in := map[string]string{"txHash": txRef}
	var st models.PayoutState
	if err := c.do(ctx, "notify_deposit", http.MethodPost, "/payouts/"+url.PathEscape(payoutId)+"/deposit", nil, in, &st); err != nil {
		return nil, err
	}
	if st.PayoutId == "" {
		st.PayoutId = payoutId
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	return &st, nil
}

func (c *Client) ListBanks(ctx context.Context, country string) ([]models.Bank, error) {
	var out struct {
		Banks []models.Bank `json:"banks"`
	}
	path := "/banks?country=" + url.QueryEscape(country)
	if err := c.do(ctx, "list_banks", http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Banks, nil
}

func (c *Client) ResolveRecipient(ctx context.Context, details models.BankDetails) (*models.RecipientCheck, error) {
	var out models.RecipientCheck
	if err := c.do(ctx, "resolve_recipient", http.MethodPost, "/recipients/resolve", nil, details, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
