package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// caller is the subset of ethclient.Client used for balance reads.
type caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Client reads token balances over JSON-RPC.
type Client struct {
	rpc   caller
	close func()
}

func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("chain rpc url cannot be empty")
	}

	zap.L().Info("Connecting to chain RPC", zap.String("rpc_url", rpcURL))
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("unable to dial chain rpc: %w", err)
	}
	return &Client{rpc: ec, close: ec.Close}, nil
}

func newClientWithCaller(rpc caller) *Client {
	return &Client{rpc: rpc, close: func() {}}
}

// BalanceOf returns owner's balance of token in smallest units. The native
// placeholder address reads the account balance instead of calling a contract.
func (c *Client) BalanceOf(ctx context.Context, token, owner string) (*big.Int, error) {
	if err := ValidateAddress(owner); err != nil {
		return nil, err
	}

	if IsNativeToken(token) {
		balance, err := c.rpc.BalanceAt(ctx, common.HexToAddress(owner), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read native balance of %s: %w", owner, err)
		}
		return balance, nil
	}

	if err := ValidateAddress(token); err != nil {
		return nil, err
	}
	data, err := EncodeBalanceOf(owner)
	if err != nil {
		return nil, err
	}

	to := common.HexToAddress(token)
	ret, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call failed for %s on %s: %w", owner, token, err)
	}

	balance, err := DecodeUint256(ret)
	if err != nil {
		return nil, fmt.Errorf("unable to decode balanceOf result: %w", err)
	}

	zap.L().Debug("Balance read",
		zap.String("token", token),
		zap.String("owner", owner),
		zap.String("balance", balance.String()))
	return balance, nil
}

func (c *Client) Close() {
	c.close()
}
