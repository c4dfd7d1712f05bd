// Package notification предоставляет клиент внешнего сервиса уведомлений.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Client инкапсулирует HTTP-взаимодействие с сервисом уведомлений.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// OrderCreated описывает уведомление об оформленном заказе.
type OrderCreated struct {
	OrderNumber string  `json:"order_number"`
	Email       string  `json:"email"`
	TotalAmount float64 `json:"total_amount"`
	CreatedAt   string  `json:"created_at"`
}

// PasswordReset описывает уведомление с токеном сброса пароля.
type PasswordReset struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

// NewClient создаёт клиент сервиса уведомлений по указанному адресу.
// Временные сетевые ошибки повторяются клиентом самостоятельно.
func NewClient(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc,
	}
}

// SendOrderCreated отправляет уведомление об оформленном заказе.
func (c *Client) SendOrderCreated(ctx context.Context, n OrderCreated) error {
	return c.post(ctx, "/api/notifications/order", n)
}

// SendPasswordReset отправляет пользователю токен сброса пароля.
func (c *Client) SendPasswordReset(ctx context.Context, n PasswordReset) error {
	return c.post(ctx, "/api/notifications/password-reset", n)
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("notification client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
