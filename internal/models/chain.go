package models

import "math/big"

// Token describes an ERC-20 (or native) asset on the configured chain.
type Token struct {
	Symbol   string
	Address  string
	Decimals int32
}

// ChainTransaction is an EVM call submitted through the custody service.
type ChainTransaction struct {
	To    string
	Data  string
	Value string // 0x-prefixed hex

	// IdempotencyKey lets the custody service drop a repeated submission.
	// Empty means a fresh key per request.
	IdempotencyKey string
}

// Quote is a swap transaction payload returned by the quote service.
type Quote struct {
	Transaction     ChainTransaction
	AllowanceTarget string
	Price           string
	SellAmount      *big.Int
	BuyAmount       *big.Int
}

// SubmittedTransaction is the custody service's acknowledgement.
type SubmittedTransaction struct {
	Hash          string
	TransactionId string
}
