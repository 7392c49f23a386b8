package pix

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePayment(t *testing.T) {
	var got PaymentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/pix/create", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_ = json.NewEncoder(w).Encode(PaymentData{
			ID:     "pay-1",
			Status: StatusPending,
			QRCode: "00020126pix-code",
		})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, 0)
	data, err := client.CreatePayment(context.Background(), PaymentRequest{
		TransactionAmount: 50,
		Description:       "Inscrição: Retiro - Maria Souza",
		PaymentMethodID:   "pix",
		Payer:             Payer{Email: "maria@example.com", FirstName: "Maria", LastName: "Souza"},
		Metadata:          Metadata{RegistrationID: "reg-1", EventID: "ev-1"},
	})

	require.NoError(t, err)
	assert.Equal(t, "pay-1", data.ID)
	assert.Equal(t, "00020126pix-code", data.QRCode)
	assert.Equal(t, 50.0, got.TransactionAmount)
	assert.Equal(t, "pix", got.PaymentMethodID)
	assert.Equal(t, "reg-1", got.Metadata.RegistrationID)
}

func TestCreatePaymentUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "issuer offline"})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, 0)
	_, err := client.CreatePayment(context.Background(), PaymentRequest{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "issuer offline")
}

func TestGetStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pix/status", r.URL.Path)
		assert.Equal(t, "pay-1", r.URL.Query().Get("paymentId"))
		assert.Equal(t, "reg-1", r.URL.Query().Get("registrationId"))
		_ = json.NewEncoder(w).Encode(map[string]string{"status": StatusApproved})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, 0)
	status, err := client.GetStatus(context.Background(), "pay-1", "reg-1")

	require.NoError(t, err)
	assert.Equal(t, StatusApproved, status.Status)
	assert.Equal(t, "pay-1", status.PaymentID, "payment id is filled in when the provider omits it")
}

func TestGetPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pix/get-payment", r.URL.Path)
		_ = json.NewEncoder(w).Encode(PaymentData{ID: "pay-1", QRCode: "qr", QRCodeBase64: "img"})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, 0)
	data, err := client.GetPayment(context.Background(), "pay-1")

	require.NoError(t, err)
	assert.True(t, data.HasQRPayload())
}

func TestCancelPayment(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/pix/cancel", r.URL.Path)
		assert.Equal(t, "pay-1", r.URL.Query().Get("paymentId"))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, 0)
	assert.NoError(t, client.CancelPayment(context.Background(), "pay-1"))
	assert.True(t, called)
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(StatusPending))
	assert.True(t, IsTerminal(StatusApproved))
	assert.True(t, IsTerminal(StatusRejected))
	assert.True(t, IsTerminal(StatusCancelled))
}

func TestFillQRBase64(t *testing.T) {
	p := &PaymentData{ID: "pay-1", QRCode: "00020126pix-code"}
	require.NoError(t, FillQRBase64(p))
	assert.NotEmpty(t, p.QRCodeBase64)

	// An existing image payload is left alone.
	p2 := &PaymentData{ID: "pay-2", QRCode: "qr", QRCodeBase64: "already-there"}
	require.NoError(t, FillQRBase64(p2))
	assert.Equal(t, "already-there", p2.QRCodeBase64)

	// Nothing to render without a code.
	p3 := &PaymentData{ID: "pay-3"}
	require.NoError(t, FillQRBase64(p3))
	assert.Empty(t, p3.QRCodeBase64)
}
