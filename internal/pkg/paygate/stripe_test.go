package paygate

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"agrimandi/internal/config"
	"agrimandi/internal/market"

	"github.com/stripe/stripe-go/v76/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func newTestClient() *Client {
	return NewClient(config.StripeConfig{
		WebhookSecret: testWebhookSecret,
		Currency:      "inr",
	}, nil)
}

func signedHeader(t *testing.T, payload []byte) string {
	t.Helper()
	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, testWebhookSecret)
	return fmt.Sprintf("t=%d,v1=%x", now.Unix(), sig)
}

func TestVerifyEvent_CheckoutCompleted(t *testing.T) {
	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_test_1",
				"amount_total": 95000,
				"metadata": {"bid_id": "7", "user_id": "3"}
			}
		}
	}`)

	evt, err := newTestClient().VerifyEvent(payload, signedHeader(t, payload))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if evt.ID != "evt_1" {
		t.Fatalf("unexpected event id: %s", evt.ID)
	}
	if evt.BidID != 7 {
		t.Fatalf("unexpected bid id: %d", evt.BidID)
	}
	if evt.AmountPaid != 950 {
		t.Fatalf("expected amount 950, got %.2f", evt.AmountPaid)
	}
}

func TestVerifyEvent_BadSignature(t *testing.T) {
	payload := []byte(`{"id": "evt_2", "type": "checkout.session.completed"}`)

	_, err := newTestClient().VerifyEvent(payload, "t=1,v1=deadbeef")
	if !errors.Is(err, market.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyEvent_IgnoresOtherEventTypes(t *testing.T) {
	payload := []byte(`{
		"id": "evt_3",
		"type": "payment_intent.created",
		"data": {"object": {}}
	}`)

	evt, err := newTestClient().VerifyEvent(payload, signedHeader(t, payload))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if evt.Type != "payment_intent.created" {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.BidID != 0 {
		t.Fatalf("expected zero bid id for ignored event, got %d", evt.BidID)
	}
}

func TestVerifyEvent_ToleratesAPIVersionDrift(t *testing.T) {
	// 端点可能固定在与 SDK 不同的 API 版本上，
	// 只要签名合法就必须接受事件。
	payload := []byte(`{
		"id": "evt_5",
		"api_version": "2022-08-01",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_test_5",
				"amount_total": 212500,
				"metadata": {"bid_id": "9", "user_id": "4"}
			}
		}
	}`)

	evt, err := newTestClient().VerifyEvent(payload, signedHeader(t, payload))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if evt.BidID != 9 {
		t.Fatalf("unexpected bid id: %d", evt.BidID)
	}
	if evt.AmountPaid != 2125 {
		t.Fatalf("expected amount 2125, got %.2f", evt.AmountPaid)
	}
}

func TestVerifyEvent_MissingBidID(t *testing.T) {
	payload := []byte(`{
		"id": "evt_4",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_test_4", "amount_total": 100, "metadata": {}}}
	}`)

	_, err := newTestClient().VerifyEvent(payload, signedHeader(t, payload))
	if !errors.Is(err, market.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		in   float64
		want int64
	}{
		{950, 95000},
		{2125.5, 212550},
		{0.01, 1},
		{99.999, 10000},
	}
	for _, tc := range cases {
		if got := toMinorUnits(tc.in); got != tc.want {
			t.Fatalf("toMinorUnits(%.3f) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
