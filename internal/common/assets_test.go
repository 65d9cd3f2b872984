package common

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeAssets(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assets.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write assets file: %v", err)
	}
	return path
}

func TestLoadAssetConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadAssetConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Chain.Id != 8453 || cfg.Stable.Symbol != "USDC" || cfg.Volatile.Symbol != "ETH" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadAssetConfig_Override(t *testing.T) {
	path := writeAssets(t, `
chain:
  id: 84532
  name: base-sepolia
stable:
  symbol: USDC
  address: "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
  decimals: 6
  network: base-sepolia
`)
	cfg, err := LoadAssetConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Chain.Id != 84532 || cfg.Chain.Caip2 != "eip155:84532" {
		t.Errorf("chain not overridden: %+v", cfg.Chain)
	}
	if cfg.Stable.Address != "0x036CbD53842c5426634e7929541eC2318f3dCF7e" {
		t.Errorf("stable address not overridden: %s", cfg.Stable.Address)
	}
	if cfg.Volatile.Symbol != "ETH" {
		t.Errorf("volatile token should keep its default, got %+v", cfg.Volatile)
	}
	if got := cfg.Stable.PrimeAsset(); got != "USDC-base-sepolia" {
		t.Errorf("PrimeAsset = %q", got)
	}
}

func TestLoadAssetConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad yaml", "chain: [", "unable to parse"},
		{"bad address", "stable:\n  address: nope\n", "stable token"},
		{"negative chain", "chain:\n  id: -1\n", "chain id"},
		{"native stable", "stable:\n  address: \"0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE\"\n", "ERC-20"},
		{"same tokens", "volatile:\n  address: \"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913\"\n", "must differ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadAssetConfig(writeAssets(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
