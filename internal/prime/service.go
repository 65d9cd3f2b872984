package prime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dca-engine-go/internal/models"
	"dca-engine-go/internal/transport"

	"github.com/coinbase-samples/prime-sdk-go/client"
	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/coinbase-samples/prime-sdk-go/model"
	"github.com/coinbase-samples/prime-sdk-go/portfolios"
	"github.com/coinbase-samples/prime-sdk-go/transactions"
	"github.com/coinbase-samples/prime-sdk-go/wallets"
	"go.uber.org/zap"
)

type Service struct {
	client          client.RestClient
	portfoliosSvc   portfolios.PortfoliosService
	walletsSvc      wallets.WalletsService
	transactionsSvc transactions.TransactionsService
}

func NewService(creds *credentials.Credentials) (*Service, error) {
	httpClient, err := transport.NewHTTPClient(60 * time.Second)
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	restClient := client.NewRestClient(creds, *httpClient)

	return &Service{
		client:          restClient,
		portfoliosSvc:   portfolios.NewPortfoliosService(restClient),
		walletsSvc:      wallets.NewWalletsService(restClient),
		transactionsSvc: transactions.NewTransactionsService(restClient),
	}, nil
}

func (s *Service) ListPortfolios(ctx context.Context) ([]models.Portfolio, error) {
	request := &portfolios.ListPortfoliosRequest{}

	response, err := s.portfoliosSvc.ListPortfolios(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("unable to list portfolios: %w", err)
	}

	portfolioList := make([]models.Portfolio, len(response.Portfolios))
	for i, p := range response.Portfolios {
		portfolioList[i] = models.Portfolio{
			Id:   p.Id,
			Name: p.Name,
		}
	}

	return portfolioList, nil
}

func (s *Service) FindDefaultPortfolio(ctx context.Context) (*models.Portfolio, error) {
	portfolioList, err := s.ListPortfolios(ctx)
	if err != nil {
		return nil, err
	}

	for _, portfolio := range portfolioList {
		if portfolio.Name == "Default Portfolio" {
			return &portfolio, nil
		}
	}

	return nil, fmt.Errorf("default portfolio not found")
}

func (s *Service) ListWallets(ctx context.Context, portfolioId, walletType string, symbols []string) ([]models.Wallet, error) {
	request := &wallets.ListWalletsRequest{
		PortfolioId: portfolioId,
		Type:        walletType,
		Symbols:     symbols,
	}

	response, err := s.walletsSvc.ListWallets(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("unable to list wallets: %w", err)
	}

	walletList := make([]models.Wallet, len(response.Wallets))
	for i, w := range response.Wallets {
		walletList[i] = models.Wallet{
			Id:     w.Id,
			Name:   w.Name,
			Symbol: w.Symbol,
			Type:   w.Type,
		}
	}

	return walletList, nil
}

// FindWallet returns the portfolio's wallet of walletType holding symbol.
func (s *Service) FindWallet(ctx context.Context, portfolioId, walletType, symbol string) (*models.Wallet, error) {
	walletList, err := s.ListWallets(ctx, portfolioId, walletType, []string{symbol})
	if err != nil {
		return nil, err
	}
	for _, w := range walletList {
		if strings.EqualFold(w.Symbol, symbol) {
			return &w, nil
		}
	}
	return nil, fmt.Errorf("no %s wallet found for %s", walletType, symbol)
}

// CreateWithdrawalParams contains parameters for creating a withdrawal
type CreateWithdrawalParams struct {
	PortfolioId        string
	WalletId           string
	DestinationAddress string
	Amount             string
	Asset              string
	IdempotencyKey     string
}

// CreateWithdrawal sends funds from a Prime wallet to a blockchain address.
// Used to fund a schedule's custody wallet.
func (s *Service) CreateWithdrawal(ctx context.Context, params CreateWithdrawalParams) (*models.Withdrawal, error) {
	request, err := withdrawalRequest(params)
	if err != nil {
		return nil, err
	}
	logger := zap.L().With(
		zap.String("wallet_id", params.WalletId),
		zap.String("asset", params.Asset),
		zap.String("amount", params.Amount),
		zap.String("destination", params.DestinationAddress))

	response, err := s.transactionsSvc.CreateWalletWithdrawal(ctx, request)
	if err != nil {
		logger.Error("Prime withdrawal rejected", zap.Error(err))
		return nil, fmt.Errorf("unable to create withdrawal: %w", err)
	}
	logger.Info("Prime withdrawal accepted", zap.String("activity_id", response.ActivityId))

	return &models.Withdrawal{
		ActivityId:     response.ActivityId,
		Asset:          params.Asset,
		Amount:         params.Amount,
		Destination:    params.DestinationAddress,
		IdempotencyKey: params.IdempotencyKey,
	}, nil
}

// withdrawalRequest maps the funding parameters onto a blockchain-destination
// withdrawal. The idempotency key is required so a retried funding run cannot
// pay twice.
func withdrawalRequest(params CreateWithdrawalParams) (*transactions.CreateWalletWithdrawalRequest, error) {
	switch {
	case params.PortfolioId == "" || params.WalletId == "":
		return nil, fmt.Errorf("withdrawal needs a portfolio and source wallet")
	case params.DestinationAddress == "":
		return nil, fmt.Errorf("withdrawal needs a destination address")
	case params.IdempotencyKey == "":
		return nil, fmt.Errorf("withdrawal needs an idempotency key")
	}

	symbol, network := ParseAsset(params.Asset)
	return &transactions.CreateWalletWithdrawalRequest{
		PortfolioId:     params.PortfolioId,
		SourceWalletId:  params.WalletId,
		Amount:          params.Amount,
		IdempotencyKey:  params.IdempotencyKey,
		Symbol:          symbol,
		DestinationType: "DESTINATION_BLOCKCHAIN",
		BlockchainAddress: &model.BlockchainAddress{
			Address: params.DestinationAddress,
			Network: network,
		},
	}, nil
}

// ParseAsset splits "USDC-base-mainnet" into the symbol and network. A bare
// symbol leaves the network to Prime's default for the asset.
func ParseAsset(asset string) (string, *model.NetworkDetails) {
	parts := strings.Split(asset, "-")
	if len(parts) < 3 {
		return parts[0], nil
	}
	return parts[0], &model.NetworkDetails{
		Id:   parts[1],
		Type: strings.Join(parts[2:], "-"),
	}
}
