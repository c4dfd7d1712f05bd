package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendOrderCreated(t *testing.T) {
	var gotPath string
	var gotPayload OrderCreated

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)

	err := c.SendOrderCreated(context.Background(), OrderCreated{
		OrderNumber: "order-1",
		Email:       "user@shop.ru",
		TotalAmount: 200,
	})
	if err != nil {
		t.Fatalf("SendOrderCreated error: %v", err)
	}

	if gotPath != "/api/notifications/order" {
		t.Fatalf("path = %s, want /api/notifications/order", gotPath)
	}
	if gotPayload.OrderNumber != "order-1" || gotPayload.Email != "user@shop.ru" {
		t.Fatalf("unexpected payload: %+v", gotPayload)
	}
}

func TestSendPasswordReset(t *testing.T) {
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)

	err := c.SendPasswordReset(context.Background(), PasswordReset{Email: "user@shop.ru", Token: "tok"})
	if err != nil {
		t.Fatalf("SendPasswordReset error: %v", err)
	}
	if gotPath != "/api/notifications/password-reset" {
		t.Fatalf("path = %s, want /api/notifications/password-reset", gotPath)
	}
}

func TestSendOrderCreated_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)

	if err := c.SendOrderCreated(context.Background(), OrderCreated{OrderNumber: "x"}); err == nil {
		t.Fatalf("expected error for non-2xx status")
	}
}

func TestSendOrderCreated_NotConfigured(t *testing.T) {
	c := &Client{}
	if err := c.SendOrderCreated(context.Background(), OrderCreated{}); err == nil {
		t.Fatalf("expected error for unconfigured client")
	}
}
