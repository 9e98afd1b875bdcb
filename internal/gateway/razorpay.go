package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultRazorpayBaseURL = "https://api.razorpay.com"
	defaultRequestTimeout  = 10 * time.Second
	maxResponseBytes       = 1 << 20
)

// RazorpayClient creates orders through the Razorpay orders API.
type RazorpayClient struct {
	baseURL   string
	keyID     string
	keySecret string
	timeout   time.Duration
	client    *http.Client
}

// NewRazorpayClient constructs a RazorpayClient.
func NewRazorpayClient(baseURL, keyID, keySecret string, timeout time.Duration) *RazorpayClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultRazorpayBaseURL
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &RazorpayClient{
		baseURL:   baseURL,
		keyID:     strings.TrimSpace(keyID),
		keySecret: strings.TrimSpace(keySecret),
		timeout:   timeout,
		client:    &http.Client{Timeout: timeout},
	}
}

type razorpayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type razorpayErrorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateIntent creates an order at the processor within the configured timeout.
func (c *RazorpayClient) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if c == nil {
		return Intent{}, fmt.Errorf("%w: client not configured", ErrUnavailable)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	currency := normalizeCurrency(req.Currency)
	amountMinor, err := ToMinorUnits(req.AmountUnits)
	if err != nil {
		return Intent{}, err
	}

	payload, err := json.Marshal(razorpayOrderRequest{
		Amount:   amountMinor,
		Currency: currency,
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	})
	if err != nil {
		return Intent{}, fmt.Errorf("gateway: marshal order: %w", err)
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(payload))
	if err != nil {
		return Intent{}, fmt.Errorf("gateway: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Intent{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Warn("gateway: close response body failed")
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Intent{}, fmt.Errorf("%w: read response: %w", ErrUnavailable, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr razorpayErrorResponse
		if errUnmarshal := json.Unmarshal(body, &apiErr); errUnmarshal == nil && apiErr.Error.Description != "" {
			return Intent{}, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, apiErr.Error.Description)
		}
		return Intent{}, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	var order razorpayOrderResponse
	if errUnmarshal := json.Unmarshal(body, &order); errUnmarshal != nil {
		return Intent{}, fmt.Errorf("%w: decode response: %w", ErrUnavailable, errUnmarshal)
	}
	if strings.TrimSpace(order.ID) == "" {
		return Intent{}, fmt.Errorf("%w: response missing order id", ErrUnavailable)
	}
	if order.Currency == "" {
		order.Currency = currency
	}

	return Intent{
		OrderRef:    order.ID,
		AmountUnits: req.AmountUnits,
		AmountMinor: order.Amount,
		Currency:    normalizeCurrency(order.Currency),
	}, nil
}
