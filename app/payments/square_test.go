package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tracklnd/app/purse"
)

func TestCaptureSendsSquarePaymentRequest(t *testing.T) {
	var got map[string]interface{}
	var gotHeaders http.Header
	var gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeaders = r.Header
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"payment": map[string]string{"id": "pay_123"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")
	paymentID, err := client.Capture(context.Background(), "cnon:card-nonce", 2500, "idem-key-1")
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if paymentID != "pay_123" {
		t.Errorf("payment ID = %q, want pay_123", paymentID)
	}

	if gotPath != "/v2/payments" {
		t.Errorf("request path = %q, want /v2/payments", gotPath)
	}
	if auth := gotHeaders.Get("Authorization"); auth != "Bearer test-token" {
		t.Errorf("Authorization = %q", auth)
	}
	if v := gotHeaders.Get("Square-Version"); v != "2024-01-18" {
		t.Errorf("Square-Version = %q", v)
	}

	if got["source_id"] != "cnon:card-nonce" {
		t.Errorf("source_id = %v", got["source_id"])
	}
	if got["idempotency_key"] != "idem-key-1" {
		t.Errorf("idempotency_key = %v", got["idempotency_key"])
	}
	amount := got["amount_money"].(map[string]interface{})
	if amount["amount"] != float64(2500) {
		t.Errorf("amount = %v, want 2500", amount["amount"])
	}
	if amount["currency"] != "USD" {
		t.Errorf("currency = %v, want USD", amount["currency"])
	}
}

func TestRefundSendsSquareRefundRequest(t *testing.T) {
	var got map[string]interface{}
	var gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"refund": map[string]string{"id": "ref_456"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")
	refundID, err := client.Refund(context.Background(), "pay_123", 2500, "contribution-uuid")
	if err != nil {
		t.Fatalf("Refund failed: %v", err)
	}
	if refundID != "ref_456" {
		t.Errorf("refund ID = %q, want ref_456", refundID)
	}

	if gotPath != "/v2/refunds" {
		t.Errorf("request path = %q, want /v2/refunds", gotPath)
	}
	if got["payment_id"] != "pay_123" {
		t.Errorf("payment_id = %v", got["payment_id"])
	}
	if got["idempotency_key"] != "contribution-uuid" {
		t.Errorf("idempotency_key = %v", got["idempotency_key"])
	}
}

func TestCaptureSurfacesSquareErrorDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": []map[string]string{
				{"code": "CARD_DECLINED", "detail": "Card was declined."},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")
	_, err := client.Capture(context.Background(), "cnon:bad-card", 2500, "idem-key-2")
	if err == nil {
		t.Fatal("expected error for declined card")
	}

	gatewayErr, ok := err.(*purse.GatewayError)
	if !ok {
		t.Fatalf("expected *purse.GatewayError, got %T", err)
	}
	if gatewayErr.Status != http.StatusPaymentRequired {
		t.Errorf("status = %d, want 402", gatewayErr.Status)
	}
	if gatewayErr.Message != "Card was declined." {
		t.Errorf("message = %q", gatewayErr.Message)
	}
}

func TestCaptureTransportFailureIsGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	client := NewClient(server.URL, "test-token")
	_, err := client.Capture(context.Background(), "cnon:card-nonce", 2500, "idem-key-3")
	if err == nil {
		t.Fatal("expected error for unreachable gateway")
	}

	gatewayErr, ok := err.(*purse.GatewayError)
	if !ok {
		t.Fatalf("expected *purse.GatewayError, got %T", err)
	}
	if gatewayErr.Status != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", gatewayErr.Status)
	}
}

func TestCaptureRejectsMissingPayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")
	_, err := client.Capture(context.Background(), "cnon:card-nonce", 2500, "idem-key-4")
	if err == nil {
		t.Fatal("expected error when square returns no payment")
	}
}

func TestToCents(t *testing.T) {
	cases := []struct {
		in   float64
		want int64
	}{
		{25.00, 2500},
		{2.00, 200},
		{0.01, 1},
		{19.99, 1999},
		{29.985, 2999}, // float artifacts round, never truncate
	}
	for _, c := range cases {
		if got := ToCents(c.in); got != c.want {
			t.Errorf("ToCents(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}
