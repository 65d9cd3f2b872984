package custody

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"dca-engine-go/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// APIError is a non-2xx response from the custody service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("custody api error: status %d: %s", e.StatusCode, e.Body)
}

// Client submits transactions from server-controlled wallets through the
// Privy wallet RPC API. Requests carry an authorization signature so the
// wallet's policy accepts them without a user session.
type Client struct {
	baseURL   string
	appID     string
	appSecret string
	authKey   *ecdsa.PrivateKey
	sponsor   bool
	chainId   int64
	caip2     string
	http      *http.Client
}

func NewClient(cfg models.CustodyConfig, chainId int64, caip2 string, httpClient *http.Client) (*Client, error) {
	key, err := ParseAuthorizationKey(cfg.AuthorizationPrivateKey)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
		authKey:   key,
		sponsor:   cfg.Sponsor,
		chainId:   chainId,
		caip2:     caip2,
		http:      httpClient,
	}, nil
}

type rpcTransaction struct {
	To      string `json:"to"`
	Data    string `json:"data,omitempty"`
	Value   string `json:"value"`
	ChainId int64  `json:"chain_id"`
}

type rpcRequest struct {
	Method    string `json:"method"`
	Caip2     string `json:"caip2"`
	ChainType string `json:"chain_type"`
	Sponsor   bool   `json:"sponsor"`
	Params    struct {
		Transaction rpcTransaction `json:"transaction"`
	} `json:"params"`
}

type rpcResponse struct {
	Method string `json:"method"`
	Data   struct {
		Hash          string `json:"hash"`
		TransactionId string `json:"transaction_id"`
	} `json:"data"`
}

// SendTransaction signs and broadcasts tx from walletId. The returned hash is
// the only success signal; inclusion is not awaited.
func (c *Client) SendTransaction(ctx context.Context, walletId string, tx models.ChainTransaction) (*models.SubmittedTransaction, error) {
	if walletId == "" {
		return nil, fmt.Errorf("wallet id cannot be empty")
	}

	var req rpcRequest
	req.Method = "eth_sendTransaction"
	req.Caip2 = c.caip2
	req.ChainType = "ethereum"
	req.Sponsor = c.sponsor
	req.Params.Transaction = rpcTransaction{
		To:      tx.To,
		Data:    tx.Data,
		Value:   tx.Value,
		ChainId: c.chainId,
	}
	if req.Params.Transaction.Value == "" {
		req.Params.Transaction.Value = "0x0"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("unable to encode rpc request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/wallets/%s/rpc", c.baseURL, walletId)
	idempotencyKey := tx.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = uuid.New().String()
	}
	signedHeaders := map[string]string{
		"privy-app-id":          c.appID,
		"privy-idempotency-key": idempotencyKey,
	}

	payload, err := buildSignaturePayload(http.MethodPost, endpoint, body, signedHeaders)
	if err != nil {
		return nil, fmt.Errorf("unable to build signature payload: %w", err)
	}
	signature, err := sign(c.authKey, payload)
	if err != nil {
		return nil, fmt.Errorf("unable to sign request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("unable to build rpc request: %w", err)
	}
	httpReq.SetBasicAuth(c.appID, c.appSecret)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("privy-app-id", c.appID)
	httpReq.Header.Set("privy-idempotency-key", idempotencyKey)
	httpReq.Header.Set("privy-authorization-signature", signature)

	zap.L().Debug("Submitting transaction to custody",
		zap.String("wallet_id", walletId),
		zap.String("to", tx.To),
		zap.String("value", req.Params.Transaction.Value),
		zap.Bool("sponsor", c.sponsor))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("custody request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("unable to read custody response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var rr rpcResponse
	if err := json.Unmarshal(respBody, &rr); err != nil {
		return nil, fmt.Errorf("unable to decode custody response: %w", err)
	}
	if rr.Data.Hash == "" {
		return nil, fmt.Errorf("custody response did not include a transaction hash")
	}

	zap.L().Info("Transaction submitted",
		zap.String("wallet_id", walletId),
		zap.String("tx_hash", rr.Data.Hash),
		zap.String("transaction_id", rr.Data.TransactionId))

	return &models.SubmittedTransaction{
		Hash:          rr.Data.Hash,
		TransactionId: rr.Data.TransactionId,
	}, nil
}
