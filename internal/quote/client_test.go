package quote

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"dca-engine-go/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(models.QuoteConfig{BaseURL: server.URL + "/", APIKey: "test-key", RatePerSec: 100}, 8453, server.Client())
}

func testRequest() Request {
	return Request{
		SellToken:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		BuyToken:   "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE",
		SellAmount: big.NewInt(2_500_000),
		Taker:      "0x1111111111111111111111111111111111111111",
	}
}

func TestGetQuote_V2Response(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != quotePath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("chainId") != "8453" || q.Get("sellAmount") != "2500000" || q.Get("taker") == "" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if r.Header.Get("0x-api-key") != "test-key" || r.Header.Get("0x-version") != "v2" {
			t.Errorf("missing 0x headers: %v", r.Header)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"liquidityAvailable": true,
			"buyAmount": "1000000000000000",
			"sellAmount": "2500000",
			"price": "0.0004",
			"issues": {"allowance": {"spender": "0x0000000000001fF3684f28c67538d4D072C22734", "actual": "0"}},
			"transaction": {"to": "0x0000000000001fF3684f28c67538d4D072C22734", "data": "0xdeadbeef", "value": "0"}
		}`))
	})

	quote, err := client.GetQuote(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("GetQuote failed: %v", err)
	}
	if quote.Transaction.To != "0x0000000000001fF3684f28c67538d4D072C22734" || quote.Transaction.Data != "0xdeadbeef" {
		t.Errorf("unexpected transaction %+v", quote.Transaction)
	}
	if quote.Transaction.Value != "0x0" {
		t.Errorf("expected normalized value 0x0, got %s", quote.Transaction.Value)
	}
	if quote.AllowanceTarget != "0x0000000000001fF3684f28c67538d4D072C22734" {
		t.Errorf("expected allowance target from issues, got %q", quote.AllowanceTarget)
	}
	if quote.BuyAmount == nil || quote.BuyAmount.String() != "1000000000000000" {
		t.Errorf("unexpected buy amount %v", quote.BuyAmount)
	}
	if quote.Price != "0.0004" {
		t.Errorf("unexpected price %q", quote.Price)
	}
}

func TestGetQuote_TopLevelFallback(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"allowanceTarget": "0x2222222222222222222222222222222222222222",
			"to": "0x3333333333333333333333333333333333333333",
			"data": "0xabcdef",
			"value": "1000"
		}`))
	})

	quote, err := client.GetQuote(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("GetQuote failed: %v", err)
	}
	if quote.Transaction.To != "0x3333333333333333333333333333333333333333" || quote.Transaction.Data != "0xabcdef" {
		t.Errorf("top-level fields not used: %+v", quote.Transaction)
	}
	if quote.Transaction.Value != "0x3e8" {
		t.Errorf("expected decimal value converted to hex, got %s", quote.Transaction.Value)
	}
	if quote.AllowanceTarget != "0x2222222222222222222222222222222222222222" {
		t.Errorf("unexpected allowance target %q", quote.AllowanceTarget)
	}
	if quote.SellAmount.Int64() != 2_500_000 {
		t.Errorf("expected requested sell amount, got %v", quote.SellAmount)
	}
}

func TestGetQuote_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"name":"INTERNAL"}`},
		{"bad request", http.StatusBadRequest, `{"name":"INPUT_INVALID"}`},
		{"no liquidity", http.StatusOK, `{"liquidityAvailable": false}`},
		{"missing calldata", http.StatusOK, `{"transaction": {"to": "0x3333333333333333333333333333333333333333"}}`},
		{"malformed", http.StatusOK, `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := client.GetQuote(context.Background(), testRequest())
			if err == nil {
				t.Fatal("expected error")
			}
			var apiErr *APIError
			if tt.status != http.StatusOK {
				if !errors.As(err, &apiErr) || apiErr.StatusCode != tt.status {
					t.Errorf("expected *APIError with status %d, got %v", tt.status, err)
				}
			}
		})
	}
}

func TestGetQuote_RejectsNonPositiveAmount(t *testing.T) {
	client := NewClient(models.QuoteConfig{BaseURL: "http://unused"}, 8453, nil)
	req := testRequest()
	req.SellAmount = big.NewInt(0)
	if _, err := client.GetQuote(context.Background(), req); err == nil {
		t.Error("expected error for zero sell amount")
	}
}
