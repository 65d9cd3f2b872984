package engine

import (
	"math/big"
	"testing"

	"dca-engine-go/internal/models"
)

func TestAllocate(t *testing.T) {
	tests := []struct {
		name      string
		balance   int64
		remaining int
		want      int64
	}{
		{"even split", 10_000_000, 4, 2_500_000},
		{"floors remainder", 10, 3, 3},
		{"last period takes all", 7_654_321, 1, 7_654_321},
		{"dust", 3, 52, 0},
		{"zero balance", 0, 10, 0},
		{"nothing remaining", 1_000, 0, 0},
		{"negative remaining", 1_000, -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Allocate(big.NewInt(tt.balance), tt.remaining)
			if got.Cmp(big.NewInt(tt.want)) != 0 {
				t.Errorf("Allocate(%d, %d) = %s, want %d", tt.balance, tt.remaining, got, tt.want)
			}
		})
	}

	if got := Allocate(nil, 3); got.Sign() != 0 {
		t.Errorf("Allocate(nil) = %s, want 0", got)
	}
}

func TestAllocate_NeverExceedsBalance(t *testing.T) {
	balance := big.NewInt(1_000_003)
	total := new(big.Int)
	for remaining := 52; remaining > 0; remaining-- {
		amount := Allocate(balance, remaining)
		total.Add(total, amount)
		balance.Sub(balance, amount)
		if balance.Sign() < 0 {
			t.Fatalf("balance went negative with %d remaining", remaining)
		}
	}
	if balance.Sign() != 0 {
		t.Errorf("final period should drain the balance, %s left", balance)
	}
	if total.Cmp(big.NewInt(1_000_003)) != 0 {
		t.Errorf("total sold %s, want 1000003", total)
	}
}

func TestFormatAmount(t *testing.T) {
	usdc := models.Token{Symbol: "USDC", Decimals: 6}
	eth := models.Token{Symbol: "ETH", Decimals: 18}

	tests := []struct {
		amount string
		token  models.Token
		want   string
	}{
		{"2500000", usdc, "2.50 USDC"},
		{"1000000", usdc, "1.00 USDC"},
		{"0", usdc, "0.00 USDC"},
		{"1", usdc, "0.000001 USDC"},
		{"1234567", usdc, "1.234567 USDC"},
		{"1500000000000000000", eth, "1.50 ETH"},
		{"250", models.Token{Decimals: 2}, "2.50"},
	}
	for _, tt := range tests {
		amount, _ := new(big.Int).SetString(tt.amount, 10)
		if got := FormatAmount(amount, tt.token); got != tt.want {
			t.Errorf("FormatAmount(%s) = %q, want %q", tt.amount, got, tt.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	usdc := models.Token{Symbol: "USDC", Decimals: 6}

	tests := []struct {
		text    string
		want    string
		wantErr bool
	}{
		{"2.5", "2500000", false},
		{"100", "100000000", false},
		{"0.000001", "1", false},
		{"0.0000001", "", true},
		{"0", "", true},
		{"-1", "", true},
		{"abc", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := ParseAmount(tt.text, usdc)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount failed: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}
