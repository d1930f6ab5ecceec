// REST API CLIENT FOR THE FRACTIONAL-SHARE EXECUTION VENUE
// RESTY ONLY + INTERNAL RETRY
package brokerage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const (
	// Default retry configuration
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second

	requestTimeout = 15 * time.Second
)

// APIResponse is the venue's generic envelope.
type APIResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Fill is the venue's answer to a fractional order.
type Fill struct {
	ExecutionID   string
	Ticker        string
	DollarAmount  decimal.Decimal
	Shares        decimal.Decimal
	PricePerShare decimal.Decimal
	FilledAt      time.Time
}

// OrderError carries the venue's error code and whether a retry can
// possibly succeed.
type OrderError struct {
	Code      int
	Msg       string
	Retryable bool
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("venue error %d (%s): %s", e.Code, GetErrorMsg(e.Code), e.Msg)
}

// Client is the authenticated venue client.
type Client struct {
	apiKey    string
	apiSecret string
	baseURL   string
	http      *resty.Client
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

func NewClient(apiKey, apiSecret, baseURL string) *Client {
	retryCount := defaultRetryAttempts - 1

	if baseURL == "" {
		baseURL = "https://sandbox-api.fracshares.example.com"
		logger.Warnf("No base URL provided, using default: %s", baseURL)
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(requestTimeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &Client{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		http:      httpClient,
	}
}

func signRequest(path, body string, expiry int64, secret string) string {
	base := path + body + fmt.Sprintf("%d", expiry)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))
}

type orderRequest struct {
	Account       string `json:"account"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Notional      string `json:"notional"`
	ClientOrderID string `json:"clientOrderId"`
}

type orderResponse struct {
	ExecutionID string `json:"executionId"`
	Symbol      string `json:"symbol"`
	Notional    string `json:"notional"`
	Shares      string `json:"shares"`
	FillPrice   string `json:"fillPrice"`
	FilledAtMs  int64  `json:"filledAt"`
}

// PlaceFractionalOrder buys a dollar-denominated fractional position.
// The client order id lets the venue dedupe a resubmission of the same
// logical order.
func (c *Client) PlaceFractionalOrder(
	ctx context.Context,
	account string,
	ticker string,
	dollarAmount decimal.Decimal,
) (*Fill, error) {

	path := "/v1/orders/fractional"
	clientOrderID := uuid.NewString()

	reqBody := orderRequest{
		Account:       account,
		Symbol:        ticker,
		Side:          "buy",
		Notional:      dollarAmount.StringFixed(2),
		ClientOrderID: clientOrderID,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	expiry := time.Now().Add(1 * time.Minute).Unix()
	signature := signRequest(path, string(bodyBytes), expiry, c.apiSecret)

	logger.WithFields(map[string]interface{}{
		"component":       "BrokerageClient",
		"account":         account,
		"ticker":          ticker,
		"notional":        reqBody.Notional,
		"client_order_id": clientOrderID,
	}).Info("Placing fractional order")

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-api-key", c.apiKey).
		SetHeader("x-api-expiry", fmt.Sprintf("%d", expiry)).
		SetHeader("x-api-signature", signature).
		SetBody(bodyBytes).
		Post(path)

	if err != nil {
		return nil, &OrderError{Code: -1, Msg: err.Error(), Retryable: true}
	}

	var envelope APIResponse
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return nil, &OrderError{Code: -1, Msg: fmt.Sprintf("decode response: %v", err), Retryable: true}
	}

	if envelope.Code != 20000 {
		orderErr := &OrderError{
			Code:      envelope.Code,
			Msg:       envelope.Msg,
			Retryable: !IsFatalCode(envelope.Code),
		}

		logger.WithFields(map[string]interface{}{
			"component": "BrokerageClient",
			"ticker":    ticker,
			"code":      envelope.Code,
			"code_msg":  GetErrorMsg(envelope.Code),
			"retryable": orderErr.Retryable,
		}).Warn("Venue rejected fractional order")

		return nil, orderErr
	}

	var order orderResponse
	if err := json.Unmarshal(envelope.Data, &order); err != nil {
		return nil, &OrderError{Code: -1, Msg: fmt.Sprintf("decode order: %v", err), Retryable: true}
	}

	shares, err := decimal.NewFromString(order.Shares)
	if err != nil {
		return nil, &OrderError{Code: -1, Msg: fmt.Sprintf("bad shares %q", order.Shares), Retryable: false}
	}
	price, err := decimal.NewFromString(order.FillPrice)
	if err != nil {
		return nil, &OrderError{Code: -1, Msg: fmt.Sprintf("bad fill price %q", order.FillPrice), Retryable: false}
	}

	fill := &Fill{
		ExecutionID:   order.ExecutionID,
		Ticker:        ticker,
		DollarAmount:  dollarAmount,
		Shares:        shares,
		PricePerShare: price,
		FilledAt:      time.UnixMilli(order.FilledAtMs).UTC(),
	}

	logger.WithFields(map[string]interface{}{
		"component":    "BrokerageClient",
		"ticker":       ticker,
		"execution_id": fill.ExecutionID,
		"shares":       fill.Shares.String(),
		"fill_price":   fill.PricePerShare.String(),
	}).Info("Fractional order filled")

	return fill, nil
}
