package broker

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"securities-trader/internal/errors"
	"securities-trader/internal/logging"
	"securities-trader/internal/models"
)

// RESTBroker implements Brokerage and PhoneVerifier against the brokerage
// REST API. Reads (balances, rates) are retried on transient failures;
// money-movement calls are never retried automatically.
type RESTBroker struct {
	client *resty.Client
}

// RESTConfig holds configuration for the REST broker.
type RESTConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Logger  zerolog.Logger
}

// NewRESTBroker creates a new REST-backed brokerage client.
func NewRESTBroker(cfg RESTConfig) *RESTBroker {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetAuthToken(cfg.APIKey).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			// Only idempotent reads are safe to retry.
			if resp != nil && resp.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || (resp != nil && resp.StatusCode() >= 500)
		}).
		OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
			logging.LogAPICall(cfg.Logger, resp.Request.Method, resp.Request.URL, resp.Time(), nil)
			return nil
		}).
		OnError(func(req *resty.Request, err error) {
			logging.LogAPICall(cfg.Logger, req.Method, req.URL, 0, err)
		})

	return &RESTBroker{client: client}
}

type balanceDTO struct {
	AccountID     int64  `json:"account_id"`
	Currency      string `json:"currency"`
	FreeAmount    string `json:"free_amount"`
	BlockedAmount string `json:"blocked_amount"`
	HoldingPlace  string `json:"holding_place"`
	SubAccount    string `json:"sub_account"`
	IBAN          string `json:"iban"`
}

type balancesResponse struct {
	Balances []balanceDTO `json:"balances"`
}

// FetchBalances returns the free-balance snapshot for all sub-accounts.
func (b *RESTBroker) FetchBalances(ctx context.Context, userID string) ([]models.AccountBalance, error) {
	var out balancesResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetPathParam("userID", userID).
		SetResult(&out).
		Get("/api/v1/accounts/{userID}/balances")
	if err := checkResponse("fetch balances", resp, err); err != nil {
		return nil, err
	}

	balances := make([]models.AccountBalance, 0, len(out.Balances))
	for _, dto := range out.Balances {
		free, err := decimal.NewFromString(dto.FreeAmount)
		if err != nil {
			return nil, fmt.Errorf("parsing free amount for account %d: %w", dto.AccountID, err)
		}
		blocked, err := decimal.NewFromString(dto.BlockedAmount)
		if err != nil {
			return nil, fmt.Errorf("parsing blocked amount for account %d: %w", dto.AccountID, err)
		}
		balances = append(balances, models.AccountBalance{
			AccountID:    dto.AccountID,
			Currency:     dto.Currency,
			Free:         free,
			Blocked:      blocked,
			HoldingPlace: dto.HoldingPlace,
			SubAccount:   dto.SubAccount,
			IBAN:         dto.IBAN,
		})
	}
	return balances, nil
}

type rateResponse struct {
	Rate string `json:"rate"`
}

// ExchangeRate fetches the conversion rate between two currencies over a date
// range. It returns 1 for same-currency requests and degrades to 1 when the
// rate service fails.
func (b *RESTBroker) ExchangeRate(ctx context.Context, from, to string, fromDate, toDate time.Time) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	var out rateResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"from":      from,
			"to":        to,
			"from_date": fromDate.Format("2006-01-02"),
			"to_date":   toDate.Format("2006-01-02"),
		}).
		SetResult(&out).
		Get("/api/v1/rates")
	if err := checkResponse("fetch rate", resp, err); err != nil {
		return decimal.NewFromInt(1), nil
	}

	rate, perr := decimal.NewFromString(out.Rate)
	if perr != nil || rate.LessThanOrEqual(decimal.Zero) {
		return decimal.NewFromInt(1), nil
	}
	return rate, nil
}

type orderPayload struct {
	ISIN     string `json:"isin"`
	Side     string `json:"side"`
	Type     string `json:"type"`
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
	Currency string `json:"currency"`
	Expiry   string `json:"expiry"`
	DryRun   bool   `json:"dry_run,omitempty"`
	Pending  bool   `json:"pending,omitempty"`
}

type orderResponse struct {
	OrderID    string `json:"order_id"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	Commission string `json:"commission"`
}

func toOrderPayload(req *models.OrderRequest) orderPayload {
	return orderPayload{
		ISIN:     req.ISIN,
		Side:     string(req.Side),
		Type:     string(req.Type),
		Price:    req.Price.String(),
		Quantity: req.Quantity,
		Currency: req.Currency,
		Expiry:   req.Expiry.Format("2006-01-02"),
	}
}

// EstimateCommission issues a dry-run order submission that returns the
// estimated commission instead of executing.
func (b *RESTBroker) EstimateCommission(ctx context.Context, req *models.OrderRequest) (decimal.Decimal, error) {
	payload := toOrderPayload(req)
	payload.DryRun = true

	var out orderResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&out).
		Post("/api/v1/orders")
	if err := checkResponse("estimate commission", resp, err); err != nil {
		return decimal.Zero, err
	}

	commission, perr := decimal.NewFromString(out.Commission)
	if perr != nil {
		return decimal.Zero, fmt.Errorf("parsing commission %q: %w", out.Commission, perr)
	}
	return commission, nil
}

// SubmitOrder submits the order for execution.
func (b *RESTBroker) SubmitOrder(ctx context.Context, req *models.OrderRequest) (*models.OrderResult, error) {
	return b.submitOrder(ctx, req, false)
}

// SubmitPendingOrder submits the order marked as awaiting a money transfer.
func (b *RESTBroker) SubmitPendingOrder(ctx context.Context, req *models.OrderRequest) (*models.OrderResult, error) {
	return b.submitOrder(ctx, req, true)
}

func (b *RESTBroker) submitOrder(ctx context.Context, req *models.OrderRequest, pending bool) (*models.OrderResult, error) {
	payload := toOrderPayload(req)
	payload.Pending = pending

	var out orderResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", uuid.NewString()).
		SetBody(payload).
		SetResult(&out).
		Post("/api/v1/orders")
	if err := checkResponse("submit order", resp, err); err != nil {
		return nil, err
	}

	return &models.OrderResult{
		OrderID: out.OrderID,
		Status:  out.Status,
		Message: out.Message,
	}, nil
}

type transferPayload struct {
	FromAccountID    int64  `json:"from_account_id"`
	ToAccountID      int64  `json:"to_account_id"`
	Currency         string `json:"currency"`
	Amount           string `json:"amount"`
	ConversionNeeded bool   `json:"conversion_needed"`
	SubAccount       string `json:"sub_account"`
	IBAN             string `json:"iban"`
	PendingOrderID   string `json:"pending_order_id,omitempty"`
}

// SubmitTransfer executes one inter-account money-transfer order.
func (b *RESTBroker) SubmitTransfer(ctx context.Context, step models.TransferStep, pendingOrderID string) error {
	payload := transferPayload{
		FromAccountID:    step.FromAccountID,
		ToAccountID:      step.ToAccountID,
		Currency:         step.Currency,
		Amount:           step.Amount.String(),
		ConversionNeeded: step.ConversionNeeded,
		SubAccount:       step.SubAccount,
		IBAN:             step.IBAN,
		PendingOrderID:   pendingOrderID,
	}

	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", uuid.NewString()).
		SetBody(payload).
		Post("/api/v1/transfers")
	return checkResponse("submit transfer", resp, err)
}

type phonePayload struct {
	Phone string `json:"phone"`
	Code  string `json:"code,omitempty"`
}

type verifyResponse struct {
	Verified bool `json:"verified"`
}

// SendCode requests a one-time confirmation code for the given phone number.
func (b *RESTBroker) SendCode(ctx context.Context, phone string) error {
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(phonePayload{Phone: phone}).
		Post("/api/v1/phone/send")
	return checkResponse("send code", resp, err)
}

// VerifyCode validates a one-time confirmation code.
func (b *RESTBroker) VerifyCode(ctx context.Context, phone, code string) (bool, error) {
	var out verifyResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(phonePayload{Phone: phone, Code: code}).
		SetResult(&out).
		Post("/api/v1/phone/verify")
	if err := checkResponse("verify code", resp, err); err != nil {
		return false, err
	}
	return out.Verified, nil
}

func checkResponse(operation string, resp *resty.Response, err error) error {
	if err != nil {
		return errors.NewRemoteError(operation, 0, "request failed", err)
	}
	if resp.IsError() {
		return errors.NewRemoteError(operation, resp.StatusCode(), strings.TrimSpace(resp.String()), nil)
	}
	return nil
}
