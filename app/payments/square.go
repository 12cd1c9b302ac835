package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"tracklnd/app/monitoring"
	"tracklnd/app/purse"
)

const (
	// ProductionBaseURL is Square's live Payments API host.
	ProductionBaseURL = "https://connect.squareup.com"
	squareVersion     = "2024-01-18"
	requestTimeout    = 15 * time.Second
)

// Client talks to the Square Payments API. It only ever sees opaque card
// tokens produced by client-side tokenization, never raw card data, and it
// is the single place where decimal dollars become integer cents.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// NewClient creates a Square client. baseURL is overridable so tests can
// point it at a stub server.
func NewClient(baseURL, accessToken string) *Client {
	if baseURL == "" {
		baseURL = ProductionBaseURL
	}
	return &Client{
		baseURL:     baseURL,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: requestTimeout},
	}
}

type money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type squareError struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

type squareResponse struct {
	Payment *struct {
		ID string `json:"id"`
	} `json:"payment"`
	Refund *struct {
		ID string `json:"id"`
	} `json:"refund"`
	Errors []squareError `json:"errors"`
}

// Capture charges a tokenized card and returns Square's payment ID. The
// idempotency key makes client retries safe: Square deduplicates repeat
// requests carrying the same key.
func (c *Client) Capture(ctx context.Context, cardToken string, amountCents int64, idempotencyKey string) (string, error) {
	body := map[string]interface{}{
		"source_id":       cardToken,
		"idempotency_key": idempotencyKey,
		"amount_money":    money{Amount: amountCents, Currency: "USD"},
	}

	resp, err := c.post(ctx, "/v2/payments", body)
	if err != nil {
		return "", err
	}
	if resp.Payment == nil {
		return "", &purse.GatewayError{Status: http.StatusBadGateway, Message: "square returned no payment"}
	}
	return resp.Payment.ID, nil
}

// Refund reverses a previously captured payment and returns Square's
// refund ID.
func (c *Client) Refund(ctx context.Context, paymentID string, amountCents int64, idempotencyKey string) (string, error) {
	body := map[string]interface{}{
		"payment_id":      paymentID,
		"idempotency_key": idempotencyKey,
		"amount_money":    money{Amount: amountCents, Currency: "USD"},
	}

	resp, err := c.post(ctx, "/v2/refunds", body)
	if err != nil {
		return "", err
	}
	if resp.Refund == nil {
		return "", &purse.GatewayError{Status: http.StatusBadGateway, Message: "square returned no refund"}
	}
	return resp.Refund.ID, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (*squareResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode square request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Square-Version", squareVersion)
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		monitoring.GatewayRequestDuration.WithLabelValues(path, "error").Observe(time.Since(start).Seconds())
		// Timeouts and transport failures are ambiguous: the charge may or
		// may not have landed. Treat as failure and record nothing; the
		// idempotency key keeps an eventual retry from double-charging.
		return nil, &purse.GatewayError{Status: http.StatusGatewayTimeout, Message: fmt.Sprintf("square request failed: %v", err)}
	}
	defer httpResp.Body.Close()
	monitoring.GatewayRequestDuration.WithLabelValues(path, strconv.Itoa(httpResp.StatusCode)).Observe(time.Since(start).Seconds())

	var resp squareResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, &purse.GatewayError{Status: http.StatusBadGateway, Message: fmt.Sprintf("invalid square response: %v", err)}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		msg := "square request rejected"
		if len(resp.Errors) > 0 && resp.Errors[0].Detail != "" {
			msg = resp.Errors[0].Detail
		}
		return nil, &purse.GatewayError{Status: httpResp.StatusCode, Message: msg}
	}

	return &resp, nil
}

// ToCents converts a decimal dollar amount to integer cents for the wire.
func ToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
