package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client ходит в платёжный шлюз по HTTP. Сессия оплаты создаётся один раз
// на заказ; дальнейшие статусы приходят вебхуками.
type Client struct {
	baseURL    string
	serverKey  string
	httpClient *http.Client
}

// NewClient создаёт экземпляр клиента шлюза.
func NewClient(baseURL, serverKey string) *Client {
	return &Client{
		baseURL:   baseURL,
		serverKey: serverKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SessionItem описывает позицию в платёжной сессии.
type SessionItem struct {
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

// Session результат создания платёжной сессии у шлюза.
type Session struct {
	ExternalID  string
	Token       string
	RedirectURL string
}

// CreateSession создаёт платёжную сессию в шлюзе и возвращает токен оплаты.
func (c *Client) CreateSession(ctx context.Context, orderID uuid.UUID, amount int64, buyerEmail string, items []SessionItem) (*Session, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("gateway: baseURL не задан")
	}

	externalID := fmt.Sprintf("order-%s-%d", orderID, time.Now().Unix())

	payload := map[string]any{
		"transaction_details": map[string]any{
			"order_id":     externalID,
			"gross_amount": amount,
		},
		"customer_details": map[string]any{
			"email": buyerEmail,
		},
		"item_details": items,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := c.baseURL
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	url += "v1/transactions"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.serverKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: запрос сессии %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errorBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errorBody)
		return nil, fmt.Errorf("gateway: код ответа %d: %v", resp.StatusCode, errorBody)
	}

	var result struct {
		Token       string `json:"token"`
		RedirectURL string `json:"redirect_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if result.Token == "" {
		return nil, fmt.Errorf("gateway: пустой токен в ответе")
	}

	return &Session{
		ExternalID:  externalID,
		Token:       result.Token,
		RedirectURL: result.RedirectURL,
	}, nil
}

// VerifyNotification проверяет подпись входящего уведомления.
func (c *Client) VerifyNotification(externalOrderID, statusCode string, grossAmount int64, signature string) bool {
	return VerifySignature(c.serverKey, externalOrderID, statusCode, grossAmount, signature)
}
