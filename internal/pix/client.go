// Package pix talks to the external PIX payment API and tracks payments
// until the provider reports a terminal settlement status.
package pix

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
)

// IsTerminal reports whether the provider will never change the status again.
func IsTerminal(status string) bool {
	switch status {
	case StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

type Payer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type Metadata struct {
	RegistrationID string `json:"registrationId"`
	EventID        string `json:"eventId"`
	EventName      string `json:"eventName"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
}

type PaymentRequest struct {
	TransactionAmount float64  `json:"transaction_amount"`
	Description       string   `json:"description"`
	PaymentMethodID   string   `json:"payment_method_id"`
	Payer             Payer    `json:"payer"`
	Metadata          Metadata `json:"metadata"`
}

type PaymentData struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	QRCode            string `json:"qr_code"`
	QRCodeBase64      string `json:"qr_code_base64"`
	TicketURL         string `json:"ticket_url"`
	ExternalReference string `json:"external_reference"`
}

// HasQRPayload reports whether the payload can be shown for payment.
func (p *PaymentData) HasQRPayload() bool {
	return p != nil && p.ID != "" && p.QRCode != ""
}

type StatusResponse struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

type apiError struct {
	Error string `json:"error"`
}

// Client is the slice of the payment API this service consumes.
type Client interface {
	CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentData, error)
	GetStatus(ctx context.Context, paymentID, registrationID string) (*StatusResponse, error)
	GetPayment(ctx context.Context, paymentID string) (*PaymentData, error)
	CancelPayment(ctx context.Context, paymentID string) error
}

type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentData, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal payment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/pix/create", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build payment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var data PaymentData
	if err := c.do(httpReq, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (c *HTTPClient) GetStatus(ctx context.Context, paymentID, registrationID string) (*StatusResponse, error) {
	q := url.Values{}
	q.Set("paymentId", paymentID)
	q.Set("registrationId", registrationID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/pix/status?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}

	var status StatusResponse
	if err := c.do(httpReq, &status); err != nil {
		return nil, err
	}
	if status.PaymentID == "" {
		status.PaymentID = paymentID
	}
	return &status, nil
}

func (c *HTTPClient) GetPayment(ctx context.Context, paymentID string) (*PaymentData, error) {
	q := url.Values{}
	q.Set("paymentId", paymentID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/pix/get-payment?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build get-payment request: %w", err)
	}

	var data PaymentData
	if err := c.do(httpReq, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (c *HTTPClient) CancelPayment(ctx context.Context, paymentID string) error {
	q := url.Values{}
	q.Set("paymentId", paymentID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/pix/cancel?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build cancel request: %w", err)
	}

	return c.do(httpReq, nil)
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("payment API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		if body, readErr := io.ReadAll(resp.Body); readErr == nil {
			_ = json.Unmarshal(body, &apiErr)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("payment API error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("payment API error (%d)", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode payment API response: %w", err)
	}
	return nil
}

// FillQRBase64 renders the copy-and-paste PIX code into a base64 PNG when
// the provider did not include the image payload itself.
func FillQRBase64(p *PaymentData) error {
	if p == nil || p.QRCodeBase64 != "" || p.QRCode == "" {
		return nil
	}
	png, err := qrcode.Encode(p.QRCode, qrcode.Medium, 256)
	if err != nil {
		return fmt.Errorf("render qr code: %w", err)
	}
	p.QRCodeBase64 = base64.StdEncoding.EncodeToString(png)
	return nil
}
