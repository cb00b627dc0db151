// Package types holds the JSON views of chain data shared by the RPC
// server, its client and the CLI.
package types

import (
	"time"

	"github.com/yourusername/minichain/internal/block"
	"github.com/yourusername/minichain/internal/merkle"
	"github.com/yourusername/minichain/internal/pow"
	"github.com/yourusername/minichain/internal/tx"
)

// BlockSummary describes a mined block
type BlockSummary struct {
	Hash         string            `json:"hash"`
	PrevHash     string            `json:"prevHash"`
	Height       uint64            `json:"height"`
	Timestamp    int64             `json:"timestamp"`
	Nonce        uint64            `json:"nonce"`
	Difficulty   int               `json:"difficulty"`
	MerkleRoot   string            `json:"merkleRoot"`
	Transactions []TransactionView `json:"transactions"`
}

// TransactionView describes a transaction
type TransactionView struct {
	ID       string       `json:"id"`
	Coinbase bool         `json:"coinbase"`
	Inputs   []InputView  `json:"inputs"`
	Outputs  []OutputView `json:"outputs"`
}

// InputView describes a transaction input
type InputView struct {
	Txid          string `json:"txid"`
	Vout          int32  `json:"vout"`
	Authorization string `json:"authorization"`
}

// OutputView describes a transaction output
type OutputView struct {
	Value int64  `json:"value"`
	Owner string `json:"owner"`
}

// ChainInfo summarizes the state of a node
type ChainInfo struct {
	Height      uint64 `json:"height"`
	TipHash     string `json:"tipHash"`
	Difficulty  int    `json:"difficulty"`
	MempoolSize int    `json:"mempoolSize"`
	UTXOCount   int    `json:"utxoCount"`
	Mining      bool   `json:"mining"`
	BlocksMined int64  `json:"blocksMined"`
}

// SendRequest asks a node to queue a transfer
type SendRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

// Mempool lists the transactions waiting for a block
type Mempool struct {
	Transactions []TransactionView `json:"transactions"`
}

// NewBlockSummary builds the view of b, merkle root included
func NewBlockSummary(b *block.Block) (*BlockSummary, error) {
	transactions := b.Transactions()

	ids := make([]string, 0, len(transactions))
	views := make([]TransactionView, 0, len(transactions))
	for _, t := range transactions {
		ids = append(ids, t.ID)
		views = append(views, NewTransactionView(t))
	}

	root, err := merkle.Root(ids)
	if err != nil {
		return nil, err
	}

	return &BlockSummary{
		Hash:         b.Hash(),
		PrevHash:     b.PrevHash(),
		Height:       b.Height(),
		Timestamp:    b.Timestamp(),
		Nonce:        b.Nonce(),
		Difficulty:   pow.Difficulty,
		MerkleRoot:   root,
		Transactions: views,
	}, nil
}

// Time returns the block timestamp as a time.Time
func (s *BlockSummary) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// NewTransactionView builds the view of t
func NewTransactionView(t *tx.Transaction) TransactionView {
	view := TransactionView{
		ID:       t.ID,
		Coinbase: t.IsCoinbase(),
		Inputs:   make([]InputView, 0, len(t.Vin)),
		Outputs:  make([]OutputView, 0, len(t.Vout)),
	}
	for _, in := range t.Vin {
		view.Inputs = append(view.Inputs, InputView{
			Txid:          in.Txid,
			Vout:          in.Vout,
			Authorization: in.Authorization,
		})
	}
	for _, out := range t.Vout {
		view.Outputs = append(view.Outputs, OutputView{Value: out.Value, Owner: out.Owner})
	}
	return view
}

// NewMempool builds the view of the pending transactions
func NewMempool(transactions []*tx.Transaction) *Mempool {
	mempool := &Mempool{Transactions: make([]TransactionView, 0, len(transactions))}
	for _, t := range transactions {
		mempool.Transactions = append(mempool.Transactions, NewTransactionView(t))
	}
	return mempool
}
