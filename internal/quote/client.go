package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"dca-engine-go/internal/chain"
	"dca-engine-go/internal/models"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const quotePath = "/swap/allowance-holder/quote"

// APIError is a non-2xx response from the quote service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("quote api error: status %d: %s", e.StatusCode, e.Body)
}

// Request describes the swap to price.
type Request struct {
	SellToken  string
	BuyToken   string
	SellAmount *big.Int
	Taker      string
}

// Client talks to the 0x Swap API (v2, allowance-holder flow).
type Client struct {
	baseURL string
	apiKey  string
	chainId int64
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(cfg models.QuoteConfig, chainId int64, httpClient *http.Client) *Client {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		chainId: chainId,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
}

type quoteTransaction struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

type quoteResponse struct {
	LiquidityAvailable *bool             `json:"liquidityAvailable"`
	AllowanceTarget    string            `json:"allowanceTarget"`
	Price              string            `json:"price"`
	BuyAmount          string            `json:"buyAmount"`
	SellAmount         string            `json:"sellAmount"`
	Transaction        *quoteTransaction `json:"transaction"`
	To                 string            `json:"to"`
	Data               string            `json:"data"`
	Value              string            `json:"value"`
	Issues             struct {
		Allowance *struct {
			Spender string `json:"spender"`
			Actual  string `json:"actual"`
		} `json:"allowance"`
	} `json:"issues"`
}

// GetQuote fetches an executable swap for req. Any non-2xx status is returned
// as *APIError.
func (c *Client) GetQuote(ctx context.Context, req Request) (*models.Quote, error) {
	if req.SellAmount == nil || req.SellAmount.Sign() <= 0 {
		return nil, fmt.Errorf("sell amount must be positive")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("quote rate limiter: %w", err)
	}

	params := url.Values{}
	params.Set("chainId", strconv.FormatInt(c.chainId, 10))
	params.Set("sellToken", req.SellToken)
	params.Set("buyToken", req.BuyToken)
	params.Set("sellAmount", req.SellAmount.String())
	params.Set("taker", req.Taker)

	endpoint := c.baseURL + quotePath + "?" + params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to build quote request: %w", err)
	}
	httpReq.Header.Set("0x-api-key", c.apiKey)
	httpReq.Header.Set("0x-version", "v2")
	httpReq.Header.Set("Accept", "application/json")

	zap.L().Debug("Requesting swap quote",
		zap.String("sell_token", req.SellToken),
		zap.String("buy_token", req.BuyToken),
		zap.String("sell_amount", req.SellAmount.String()),
		zap.String("taker", req.Taker))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("unable to read quote response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var qr quoteResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return nil, fmt.Errorf("unable to decode quote response: %w", err)
	}

	return toQuote(&qr, req.SellAmount)
}

func toQuote(qr *quoteResponse, requested *big.Int) (*models.Quote, error) {
	if qr.LiquidityAvailable != nil && !*qr.LiquidityAvailable {
		return nil, fmt.Errorf("no liquidity available for swap")
	}

	tx := models.ChainTransaction{To: qr.To, Data: qr.Data, Value: qr.Value}
	if qr.Transaction != nil {
		if qr.Transaction.To != "" {
			tx.To = qr.Transaction.To
		}
		if qr.Transaction.Data != "" {
			tx.Data = qr.Transaction.Data
		}
		if qr.Transaction.Value != "" {
			tx.Value = qr.Transaction.Value
		}
	}
	if tx.To == "" || tx.Data == "" {
		return nil, fmt.Errorf("quote response missing transaction target or calldata")
	}

	value, err := chain.NormalizeValue(tx.Value)
	if err != nil {
		return nil, fmt.Errorf("quote transaction value: %w", err)
	}
	tx.Value = value

	allowanceTarget := qr.AllowanceTarget
	if allowanceTarget == "" && qr.Issues.Allowance != nil {
		allowanceTarget = qr.Issues.Allowance.Spender
	}

	sellAmount := requested
	if n, ok := new(big.Int).SetString(qr.SellAmount, 10); ok {
		sellAmount = n
	}
	var buyAmount *big.Int
	if n, ok := new(big.Int).SetString(qr.BuyAmount, 10); ok {
		buyAmount = n
	}

	return &models.Quote{
		Transaction:     tx,
		AllowanceTarget: allowanceTarget,
		Price:           qr.Price,
		SellAmount:      sellAmount,
		BuyAmount:       buyAmount,
	}, nil
}
