package common

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"dca-engine-go/internal/chain"
	"dca-engine-go/internal/models"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

type ChainAssetConfig struct {
	Id    int64  `yaml:"id"`
	Caip2 string `yaml:"caip2"`
	Name  string `yaml:"name"`
}

type TokenConfig struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	Decimals int32  `yaml:"decimals"`
	// Network is the Prime network used when funding a wallet with this token.
	Network string `yaml:"network"`
}

type AssetsConfig struct {
	Chain    ChainAssetConfig `yaml:"chain"`
	Stable   TokenConfig      `yaml:"stable"`
	Volatile TokenConfig      `yaml:"volatile"`
}

// DefaultAssets is USDC -> ETH on Base mainnet.
func DefaultAssets() *AssetsConfig {
	return &AssetsConfig{
		Chain: ChainAssetConfig{Id: 8453, Caip2: "eip155:8453", Name: "base"},
		Stable: TokenConfig{
			Symbol:   "USDC",
			Address:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			Decimals: 6,
			Network:  "base-mainnet",
		},
		Volatile: TokenConfig{
			Symbol:   "ETH",
			Address:  chain.NativeTokenAddress,
			Decimals: 18,
			Network:  "base-mainnet",
		},
	}
}

// LoadAssetConfig reads the chain and token definitions. A missing file
// falls back to DefaultAssets; fields left out of the file keep their defaults.
func LoadAssetConfig(assetsFile string) (*AssetsConfig, error) {
	config := DefaultAssets()
	if assetsFile == "" {
		return config, nil
	}

	var assetsPath string
	if filepath.IsAbs(assetsFile) {
		assetsPath = assetsFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		assetsPath = filepath.Join(wd, assetsFile)
	}

	data, err := os.ReadFile(assetsPath)
	if errors.Is(err, os.ErrNotExist) {
		zap.L().Info("Assets file not found, using built-in defaults", zap.String("file", assetsFile))
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", assetsFile, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", assetsFile, err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", assetsFile, err)
	}
	return config, nil
}

func (a *AssetsConfig) validate() error {
	if a.Chain.Id <= 0 {
		return fmt.Errorf("chain id must be positive, got %d", a.Chain.Id)
	}
	if a.Chain.Caip2 == "" {
		a.Chain.Caip2 = fmt.Sprintf("eip155:%d", a.Chain.Id)
	}
	for name, token := range map[string]TokenConfig{"stable": a.Stable, "volatile": a.Volatile} {
		if token.Symbol == "" {
			return fmt.Errorf("%s token missing symbol", name)
		}
		if err := chain.ValidateAddress(token.Address); err != nil {
			return fmt.Errorf("%s token: %w", name, err)
		}
		if token.Decimals < 0 || token.Decimals > 36 {
			return fmt.Errorf("%s token decimals out of range: %d", name, token.Decimals)
		}
	}
	if chain.SameAddress(a.Stable.Address, a.Volatile.Address) {
		return fmt.Errorf("stable and volatile tokens must differ")
	}
	if chain.IsNativeToken(a.Stable.Address) {
		return fmt.Errorf("stable token must be an ERC-20 contract")
	}
	return nil
}

func (t TokenConfig) Token() models.Token {
	return models.Token{Symbol: t.Symbol, Address: t.Address, Decimals: t.Decimals}
}

// PrimeAsset returns the Prime withdrawal asset, e.g. "USDC-base-mainnet".
func (t TokenConfig) PrimeAsset() string {
	if t.Network == "" {
		return t.Symbol
	}
	return fmt.Sprintf("%s-%s", t.Symbol, t.Network)
}
