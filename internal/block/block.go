package block

import (
	"bytes"
	"context"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"

	"github.com/yourusername/minichain/internal/encoding"
	"github.com/yourusername/minichain/internal/logger"
	"github.com/yourusername/minichain/internal/pow"
	"github.com/yourusername/minichain/internal/tx"
)

var log, _ = logger.Get(logger.SubsystemTags.MINR)

var (
	// ErrClock is returned when the system clock reports a time before the
	// Unix epoch.
	ErrClock = errors.New("system clock is before the unix epoch")

	// ErrInvalidProof is returned when a block hash does not meet the
	// difficulty target.
	ErrInvalidProof = errors.New("invalid proof-of-work")

	// ErrHashMismatch is returned when the stored hash differs from the
	// hash recomputed from the block's fields.
	ErrHashMismatch = errors.New("block hash mismatch")
)

// now is replaced in tests
var now = time.Now

// Block is a mined, hash-stamped set of transactions. It is immutable once
// returned by NewBlock, NewGenesisBlock or Mine.
type Block struct {
	timestamp    int64
	transactions []*tx.Transaction
	prevHash     string
	hash         string
	height       uint64
	nonce        uint64
}

// MineOptions bounds a mining run. The zero value searches forever.
type MineOptions struct {
	// MaxAttempts stops the search after this many nonces. Zero means no bound.
	MaxAttempts uint64
}

// NewGenesisBlock creates the first block of a chain around its coinbase
func NewGenesisBlock(coinbase *tx.Transaction) (*Block, error) {
	return NewBlock([]*tx.Transaction{coinbase}, "", 0)
}

// NewBlock mines a block on top of prevHash. It blocks the caller until a
// nonce meeting the target is found.
func NewBlock(transactions []*tx.Transaction, prevHash string, height uint64) (*Block, error) {
	return Mine(context.Background(), transactions, prevHash, height, MineOptions{})
}

// Mine is NewBlock with cancellation and an optional attempt bound. No
// block is returned unless the search succeeded.
func Mine(ctx context.Context, transactions []*tx.Transaction, prevHash string, height uint64,
	opts MineOptions) (*Block, error) {

	timestamp, err := currentMillis()
	if err != nil {
		return nil, err
	}

	target, err := pow.DefaultTarget()
	if err != nil {
		return nil, err
	}

	shell := &Block{
		timestamp:    timestamp,
		transactions: cloneTransactions(transactions),
		prevHash:     prevHash,
		height:       height,
	}

	// Catch encoding failures before the search starts
	if _, err := shell.payload(0); err != nil {
		return nil, err
	}

	log.Infof("Mining the block at height %d", height)
	start := time.Now()
	result, err := pow.Search(ctx, shell.payload, target, opts.MaxAttempts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mine block at height %d", height)
	}

	shell.nonce = result.Nonce
	shell.hash = result.Hash
	log.Debugf("Found nonce %d for block %s after %d attempts in %s",
		result.Nonce, result.Hash, result.Attempts, time.Since(start))
	log.Tracef("%s", logger.NewLogClosure(func() string {
		return spew.Sdump(shell)
	}))
	return shell, nil
}

func currentMillis() (int64, error) {
	t := now()
	if t.Before(time.Unix(0, 0)) {
		return 0, errors.Wrapf(ErrClock, "clock reports %s", t)
	}
	return t.UnixMilli(), nil
}

// payload returns the hash pre-image for nonce:
// prevHash, transactions, timestamp, difficulty, nonce
func (b *Block) payload(nonce uint64) ([]byte, error) {
	var buf bytes.Buffer
	if err := encoding.WriteElement(&buf, b.prevHash); err != nil {
		return nil, err
	}
	if err := encoding.WriteSequenceLength(&buf, len(b.transactions)); err != nil {
		return nil, err
	}
	for _, transaction := range b.transactions {
		if transaction == nil {
			return nil, errors.Wrap(encoding.ErrEncoding, "nil transaction")
		}
		if err := encoding.WriteElement(&buf, transaction); err != nil {
			return nil, errors.Wrapf(err, "failed to encode transaction %s", transaction.ID)
		}
	}
	if err := encoding.WriteElements(&buf, b.timestamp, uint64(pow.Difficulty), nonce); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Validate recomputes the hash from the current fields and checks it
// against the difficulty target.
func (b *Block) Validate() (bool, error) {
	target, err := pow.DefaultTarget()
	if err != nil {
		return false, err
	}
	_, ok, err := pow.Check(b.payload, b.nonce, target)
	return ok, err
}

// Verify checks the proof-of-work and that the stored hash matches the
// block's contents.
func (b *Block) Verify() error {
	target, err := pow.DefaultTarget()
	if err != nil {
		return err
	}
	hash, ok, err := pow.Check(b.payload, b.nonce, target)
	if err != nil {
		return err
	}
	if hash != b.hash {
		return errors.Wrapf(ErrHashMismatch, "stored %s, computed %s", b.hash, hash)
	}
	if !ok {
		return errors.Wrapf(ErrInvalidProof, "hash %s", hash)
	}
	return nil
}

// Hash returns the block hash
func (b *Block) Hash() string {
	return b.hash
}

// PrevHash returns the hash of the parent block, empty for genesis
func (b *Block) PrevHash() string {
	return b.prevHash
}

// Transactions returns deep copies of the block's transactions in order
func (b *Block) Transactions() []*tx.Transaction {
	return cloneTransactions(b.transactions)
}

func cloneTransactions(transactions []*tx.Transaction) []*tx.Transaction {
	clones := make([]*tx.Transaction, len(transactions))
	for i, t := range transactions {
		clones[i] = t.Clone()
	}
	return clones
}

// Height returns the block height
func (b *Block) Height() uint64 {
	return b.height
}

// Timestamp returns the block creation time in milliseconds since epoch
func (b *Block) Timestamp() int64 {
	return b.timestamp
}

// Nonce returns the winning nonce
func (b *Block) Nonce() uint64 {
	return b.nonce
}

// IsGenesis reports whether the block starts a chain
func (b *Block) IsGenesis() bool {
	return b.height == 0 && b.prevHash == ""
}
