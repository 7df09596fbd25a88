package payment

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/coffee-order/internal/adapter/resilience"
	"github.com/rl1809/coffee-order/internal/core/domain"
	"github.com/rl1809/coffee-order/internal/port"
)

const (
	paymentPath      = "/api/v1/payment"
	lockKeyPrefix    = "payment:lock:"
	DefaultLockLease = 60 * time.Second
)

// ErrPaymentInProgress is returned when another charge holds the order's lock.
var ErrPaymentInProgress = errors.New("payment is already being processed for this order")

type chargeBody struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
	OrderID  string          `json:"order_id"`
	UserID   string          `json:"user_id"`
}

type refundBody struct {
	Value                 decimal.Decimal `json:"value"`
	Currency              string          `json:"currency"`
	OriginalTransactionID string          `json:"original_transaction_id"`
}

type gatewayReply struct {
	TransactionID string `json:"transaction_id"`
}

// Client talks to the payment gateway. Charges for the same order are
// serialized across instances through locker.
type Client struct {
	baseURL   string
	http      *http.Client
	policy    *resilience.Policy
	locker    port.Locker
	lockLease time.Duration
	logger    *slog.Logger
}

func NewClient(baseURL string, httpClient *http.Client, policy *resilience.Policy, locker port.Locker, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      httpClient,
		policy:    policy,
		locker:    locker,
		lockLease: DefaultLockLease,
		logger:    logger,
	}
}

// WithLockLease overrides how long a charge may hold the order lock.
func (c *Client) WithLockLease(d time.Duration) *Client {
	c.lockLease = d
	return c
}

func (c *Client) Charge(ctx context.Context, req port.ChargeRequest) (port.PaymentResult, error) {
	key := lockKeyPrefix + req.OrderID.String()
	token, acquired, err := c.locker.TryAcquire(ctx, key, c.lockLease)
	if err != nil {
		return port.PaymentResult{}, domain.External("acquire payment lock", err)
	}
	if !acquired {
		c.logger.WarnContext(ctx, "failed to acquire payment lock", "order_id", req.OrderID)
		return port.PaymentResult{}, &domain.Error{Kind: domain.KindBusinessRule, Err: ErrPaymentInProgress}
	}
	defer func() {
		if err := c.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			c.logger.WarnContext(ctx, "failed to release payment lock", "order_id", req.OrderID, "error", err)
		}
	}()

	reply, err := c.post(ctx, chargeBody{
		Value:    req.Amount.Amount(),
		Currency: req.Amount.Currency(),
		OrderID:  req.OrderID.String(),
		UserID:   req.UserID,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "payment failed", "order_id", req.OrderID, "error", err)
		return port.PaymentResult{}, domain.External("charge payment", err)
	}

	txID := transactionID(reply)
	c.logger.InfoContext(ctx, "payment processed",
		"order_id", req.OrderID, "amount", req.Amount.String(), "transaction_id", txID)
	return port.PaymentResult{TransactionID: txID}, nil
}

// Refund posts a negative amount against the original transaction. It does
// not take the order lock.
func (c *Client) Refund(ctx context.Context, req port.RefundRequest) (port.PaymentResult, error) {
	reply, err := c.post(ctx, refundBody{
		Value:                 req.Amount.Amount().Neg(),
		Currency:              req.Amount.Currency(),
		OriginalTransactionID: req.TransactionID,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "refund failed", "transaction_id", req.TransactionID, "error", err)
		return port.PaymentResult{}, domain.External("refund payment", err)
	}

	txID := transactionID(reply)
	c.logger.InfoContext(ctx, "refund processed",
		"transaction_id", req.TransactionID, "refund_transaction_id", txID, "amount", req.Amount.String())
	return port.PaymentResult{TransactionID: txID}, nil
}

func (c *Client) post(ctx context.Context, body any) (resilience.Reply, error) {
	call, err := resilience.PostJSON(c.http, c.baseURL+paymentPath, body)
	if err != nil {
		return resilience.Reply{}, err
	}
	return c.policy.Do(ctx, call)
}

// transactionID prefers the gateway's reference and mints one when the
// gateway does not return it.
func transactionID(reply resilience.Reply) string {
	var r gatewayReply
	if err := json.Unmarshal(reply.Body, &r); err == nil && r.TransactionID != "" {
		return r.TransactionID
	}
	return uuid.NewString()
}
