package notification

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/rl1809/coffee-order/internal/adapter/resilience"
	"github.com/rl1809/coffee-order/internal/core/domain"
)

const notificationPath = "/api/v1/notification"

type notifyBody struct {
	Status  string `json:"status"`
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
}

// Client tells users about order status changes through the notification service.
type Client struct {
	baseURL string
	http    *http.Client
	policy  *resilience.Policy
	logger  *slog.Logger
}

func NewClient(baseURL string, httpClient *http.Client, policy *resilience.Policy, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient, policy: policy, logger: logger}
}

func (c *Client) Notify(ctx context.Context, userID string, orderID uuid.UUID, status domain.OrderStatus) error {
	call, err := resilience.PostJSON(c.http, c.baseURL+notificationPath, notifyBody{
		Status:  string(status),
		OrderID: orderID.String(),
		UserID:  userID,
	})
	if err != nil {
		return domain.External("build notification", err)
	}

	if _, err := c.policy.Do(ctx, call); err != nil {
		return domain.External("send notification", err)
	}
	c.logger.InfoContext(ctx, "notification sent", "order_id", orderID, "user_id", userID, "status", status)
	return nil
}
