package blockchain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/yourusername/minichain/internal/block"
	"github.com/yourusername/minichain/internal/logger"
	"github.com/yourusername/minichain/internal/metrics"
	"github.com/yourusername/minichain/internal/storage"
	"github.com/yourusername/minichain/internal/tx"
	"github.com/yourusername/minichain/internal/utxo"
)

var log, _ = logger.Get(logger.SubsystemTags.CHAN)

// GenesisMemo is the coinbase memo of every genesis block
const GenesisMemo = "The Times 03/Jan/2009 Chancellor on brink of second bailout for banks"

var (
	// ErrChainExists is returned by Create when the store already holds a chain
	ErrChainExists = errors.New("blockchain already exists")

	// ErrNoChain is returned by Open when the store holds no chain
	ErrNoChain = errors.New("no existing blockchain found")

	// ErrInvalidAmount is returned when a send amount is not positive
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidBlock is returned when a block cannot extend the chain
	ErrInvalidBlock = errors.New("invalid block")

	// ErrInvalidTransaction is returned when a transaction fails verification
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrTransactionNotFound is returned by FindTransaction
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Options configures a Blockchain. The zero value is usable.
type Options struct {
	// MaxAttempts bounds every mining run. Zero means unbounded.
	MaxAttempts uint64

	// Authorizer decides who may spend an output. Defaults to
	// tx.OwnerAuthorizer.
	Authorizer tx.Authorizer

	// Metrics is updated on every block when set
	Metrics *metrics.Metrics
}

// pending is a mempool entry together with the outputs it holds
type pending struct {
	tx          *tx.Transaction
	reservation *utxo.Reservation
}

// Blockchain is a single-node chain persisted in storage. Spend
// construction and block commits are serialized by one mutex.
type Blockchain struct {
	mu      sync.RWMutex
	store   *storage.Storage
	utxoSet *utxo.Set
	tip     *block.Block
	mempool []pending
	opts    Options
}

func newBlockchain(store *storage.Storage, opts Options) *Blockchain {
	if opts.Authorizer == nil {
		opts.Authorizer = tx.OwnerAuthorizer{}
	}
	return &Blockchain{
		store:   store,
		utxoSet: utxo.NewSet(),
		opts:    opts,
	}
}

// Create mines a genesis block paying genesisAddress and persists it
func Create(store *storage.Storage, genesisAddress string, opts Options) (*Blockchain, error) {
	if genesisAddress == "" {
		return nil, errors.New("genesis address is required")
	}

	_, err := store.GetChainTip()
	if err == nil {
		return nil, ErrChainExists
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	coinbase, err := tx.NewCoinbase(genesisAddress, GenesisMemo)
	if err != nil {
		return nil, err
	}

	bc := newBlockchain(store, opts)
	start := time.Now()
	genesis, err := block.Mine(context.Background(), []*tx.Transaction{coinbase}, "", 0,
		block.MineOptions{MaxAttempts: opts.MaxAttempts})
	if err != nil {
		return nil, errors.Wrap(err, "failed to mine genesis block")
	}

	if err := bc.store.SaveBlock(genesis); err != nil {
		return nil, err
	}
	if err := bc.utxoSet.ApplyBlock(genesis); err != nil {
		return nil, err
	}
	bc.tip = genesis
	bc.observeMined(genesis, time.Since(start))
	bc.watch()

	log.Infof("Created blockchain with genesis block %s", genesis.Hash())
	return bc, nil
}

// Open loads the chain in store, verifying every block from genesis to tip
// and rebuilding the UTXO set.
func Open(store *storage.Storage, opts Options) (*Blockchain, error) {
	bc := newBlockchain(store, opts)

	blocks, err := bc.loadBlocks()
	if err != nil {
		return nil, err
	}

	set, err := bc.replay(blocks)
	if err != nil {
		return nil, err
	}

	bc.utxoSet = set
	bc.tip = blocks[len(blocks)-1]
	bc.updateGauges()
	bc.watch()

	log.Infof("Loaded blockchain: tip %s at height %d, %d unspent outputs",
		bc.tip.Hash(), bc.tip.Height(), set.Count())
	return bc, nil
}

// loadBlocks walks from the stored tip back to genesis and returns the
// blocks in height order. Linkage is checked on the way.
func (bc *Blockchain) loadBlocks() ([]*block.Block, error) {
	tipHash, err := bc.store.GetChainTip()
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoChain
	}
	if err != nil {
		return nil, err
	}

	var blocks []*block.Block
	var child *block.Block
	hash := tipHash
	for {
		b, err := bc.store.GetBlock(hash)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load block %s", hash)
		}
		if child != nil && child.Height() != b.Height()+1 {
			return nil, errors.Wrapf(ErrInvalidBlock, "block %s at height %d has parent at height %d",
				child.Hash(), child.Height(), b.Height())
		}
		blocks = append(blocks, b)

		if b.PrevHash() == "" {
			if !b.IsGenesis() {
				return nil, errors.Wrapf(ErrInvalidBlock, "block %s has no parent but height %d",
					b.Hash(), b.Height())
			}
			break
		}
		child = b
		hash = b.PrevHash()
	}

	for i, j := 0, len(blocks)-1; i < j; i, j = i+1, j-1 {
		blocks[i], blocks[j] = blocks[j], blocks[i]
	}
	return blocks, nil
}

// replay validates the transactions of blocks in order against a fresh
// UTXO set
func (bc *Blockchain) replay(blocks []*block.Block) (*utxo.Set, error) {
	set := utxo.NewSet()
	for _, b := range blocks {
		if err := bc.checkTransactions(b, set); err != nil {
			return nil, err
		}
		if err := set.ApplyBlock(b); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// ValidateChain re-verifies the stored chain from genesis to tip
func (bc *Blockchain) ValidateChain() error {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	blocks, err := bc.loadBlocks()
	if err != nil {
		return err
	}
	if last := blocks[len(blocks)-1]; last.Hash() != bc.tip.Hash() {
		return errors.Wrapf(ErrInvalidBlock, "stored tip %s differs from %s", last.Hash(), bc.tip.Hash())
	}

	_, err = bc.replay(blocks)
	return err
}

// Send builds a transaction moving amount from one owner to another and
// queues it for the next block. The spent outputs stay reserved until the
// transaction is mined or dropped.
func (bc *Blockchain) Send(from, to string, amount int64) (*tx.Transaction, error) {
	if amount <= 0 {
		return nil, errors.Wrapf(ErrInvalidAmount, "got %d", amount)
	}

	bc.mu.Lock()
	defer bc.mu.Unlock()

	reservation, err := bc.utxoSet.Reserve(from, amount)
	if err != nil {
		return nil, err
	}

	spend, err := tx.NewSpend(from, to, amount, reservation)
	if err != nil {
		reservation.Release()
		return nil, err
	}

	if err := bc.verifyTransaction(spend, newView(bc.utxoSet)); err != nil {
		reservation.Release()
		return nil, err
	}

	bc.mempool = append(bc.mempool, pending{tx: spend, reservation: reservation})
	bc.updateGauges()

	log.Infof("Queued transaction %s: %s sends %d to %s", spend.ID, from, amount, to)
	return spend, nil
}

// MineBlock mines the queued transactions into a new block paying miner.
// On failure the mempool is left untouched.
func (bc *Blockchain) MineBlock(ctx context.Context, miner string) (*block.Block, error) {
	if miner == "" {
		return nil, errors.New("miner address is required")
	}

	bc.mu.Lock()
	defer bc.mu.Unlock()

	height := bc.tip.Height() + 1
	coinbase, err := tx.NewCoinbase(miner, fmt.Sprintf("Reward to '%s' at height %d", miner, height))
	if err != nil {
		return nil, err
	}

	transactions := []*tx.Transaction{coinbase}
	for _, p := range bc.mempool {
		transactions = append(transactions, p.tx)
	}

	start := time.Now()
	b, err := block.Mine(ctx, transactions, bc.tip.Hash(), height,
		block.MineOptions{MaxAttempts: bc.opts.MaxAttempts})
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	if err := bc.addBlockLocked(b); err != nil {
		return nil, err
	}
	bc.observeMined(b, elapsed)

	log.Infof("Mined block %s at height %d with %d transactions in %s",
		b.Hash(), b.Height(), len(transactions), elapsed)
	return b, nil
}

// AddBlock validates b against the tip and commits it
func (bc *Blockchain) AddBlock(b *block.Block) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.addBlockLocked(b)
}

func (bc *Blockchain) addBlockLocked(b *block.Block) error {
	if b.Height() != bc.tip.Height()+1 {
		return errors.Wrapf(ErrInvalidBlock, "height %d does not extend tip at height %d",
			b.Height(), bc.tip.Height())
	}
	if b.PrevHash() != bc.tip.Hash() {
		return errors.Wrapf(ErrInvalidBlock, "parent %s is not the tip %s", b.PrevHash(), bc.tip.Hash())
	}
	if err := b.Verify(); err != nil {
		return errors.Wrapf(ErrInvalidBlock, "block %s: %s", b.Hash(), err)
	}
	if err := bc.checkTransactions(b, bc.utxoSet); err != nil {
		return err
	}

	if err := bc.store.SaveBlock(b); err != nil {
		return err
	}
	if err := bc.utxoSet.ApplyBlock(b); err != nil {
		return err
	}
	bc.tip = b
	bc.pruneMempool(b)
	bc.updateGauges()
	return nil
}

// checkTransactions verifies the transaction list of b against set without
// changing it
func (bc *Blockchain) checkTransactions(b *block.Block, set *utxo.Set) error {
	transactions := b.Transactions()
	if len(transactions) == 0 {
		return errors.Wrapf(ErrInvalidBlock, "block %s has no transactions", b.Hash())
	}

	v := newView(set)
	for i, t := range transactions {
		if t == nil {
			return errors.Wrapf(ErrInvalidBlock, "block %s: nil transaction at %d", b.Hash(), i)
		}
		if i == 0 && !t.IsCoinbase() {
			return errors.Wrapf(ErrInvalidBlock, "block %s: first transaction is not coinbase", b.Hash())
		}
		if i > 0 && t.IsCoinbase() {
			return errors.Wrapf(ErrInvalidBlock, "block %s: multiple coinbase transactions", b.Hash())
		}
		if err := bc.verifyTransaction(t, v); err != nil {
			return errors.Wrapf(err, "block %s", b.Hash())
		}
		for index := range t.Vout {
			if _, ok := v.lookup(utxo.Outpoint{Txid: t.ID, Index: int32(index)}); ok {
				return errors.Wrapf(ErrInvalidBlock, "block %s: transaction %s already has unspent outputs",
					b.Hash(), t.ID)
			}
		}
		v.apply(t)
	}
	return nil
}

// pruneMempool drops mined transactions and those whose inputs are gone
func (bc *Blockchain) pruneMempool(b *block.Block) {
	mined := make(map[string]struct{})
	for _, t := range b.Transactions() {
		mined[t.ID] = struct{}{}
	}

	kept := bc.mempool[:0]
	for _, p := range bc.mempool {
		if _, ok := mined[p.tx.ID]; ok {
			p.reservation.Release()
			continue
		}
		if err := bc.verifyTransaction(p.tx, newView(bc.utxoSet)); err != nil {
			log.Warnf("Dropping transaction %s from the mempool: %s", p.tx.ID, err)
			p.reservation.Release()
			continue
		}
		kept = append(kept, p)
	}
	bc.mempool = kept
}

// VerifyTransaction checks t against the confirmed UTXO set
func (bc *Blockchain) VerifyTransaction(t *tx.Transaction) error {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.verifyTransaction(t, newView(bc.utxoSet))
}

func (bc *Blockchain) verifyTransaction(t *tx.Transaction, v *view) error {
	if t == nil {
		return errors.Wrap(ErrInvalidTransaction, "nil transaction")
	}
	if err := t.VerifyID(); err != nil {
		return errors.Wrapf(ErrInvalidTransaction, "%s: %s", t.ID, err)
	}

	if t.IsCoinbase() {
		if len(t.Vout) != 1 || t.Vout[0].Value != tx.Subsidy {
			return errors.Wrapf(ErrInvalidTransaction, "coinbase %s must pay exactly %d", t.ID, tx.Subsidy)
		}
		return nil
	}

	if len(t.Vin) == 0 {
		return errors.Wrapf(ErrInvalidTransaction, "%s has no inputs", t.ID)
	}

	seen := make(map[utxo.Outpoint]struct{})
	inputTotal := int64(0)
	for _, in := range t.Vin {
		outpoint := utxo.Outpoint{Txid: in.Txid, Index: in.Vout}
		if _, ok := seen[outpoint]; ok {
			return errors.Wrapf(ErrInvalidTransaction, "%s spends %s:%d twice", t.ID, in.Txid, in.Vout)
		}
		seen[outpoint] = struct{}{}

		spent, ok := v.lookup(outpoint)
		if !ok {
			return errors.Wrapf(ErrInvalidTransaction, "%s spends unknown output %s:%d", t.ID, in.Txid, in.Vout)
		}
		if err := bc.opts.Authorizer.Authorize(in, spent); err != nil {
			return errors.Wrapf(ErrInvalidTransaction, "%s: %s", t.ID, err)
		}
		inputTotal += spent.Value
	}

	if outputTotal := t.OutputTotal(); inputTotal != outputTotal {
		return errors.Wrapf(ErrInvalidTransaction, "%s spends %d but creates %d", t.ID, inputTotal, outputTotal)
	}
	return nil
}

// Tip returns the latest block
func (bc *Blockchain) Tip() *block.Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.tip
}

// Height returns the height of the tip
func (bc *Blockchain) Height() uint64 {
	return bc.Tip().Height()
}

// Balance returns the confirmed balance of owner
func (bc *Blockchain) Balance(owner string) int64 {
	return bc.utxoSet.Balance(owner)
}

// UTXOCount returns the number of unspent outputs
func (bc *Blockchain) UTXOCount() int {
	return bc.utxoSet.Count()
}

// Mempool returns the queued transactions in arrival order
func (bc *Blockchain) Mempool() []*tx.Transaction {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	transactions := make([]*tx.Transaction, 0, len(bc.mempool))
	for _, p := range bc.mempool {
		transactions = append(transactions, p.tx)
	}
	return transactions
}

// Block returns the block with the given hash
func (bc *Blockchain) Block(hash string) (*block.Block, error) {
	return bc.store.GetBlock(hash)
}

// BlockAtHeight returns the block at height on the main chain
func (bc *Blockchain) BlockAtHeight(height uint64) (*block.Block, error) {
	return bc.store.GetBlockByHeight(height)
}

// FindTransaction finds a confirmed transaction by id and returns it with
// the block holding it
func (bc *Blockchain) FindTransaction(id string) (*tx.Transaction, *block.Block, error) {
	it := bc.Iterator()
	for it.Next() {
		b := it.Block()
		for _, t := range b.Transactions() {
			if t.ID == id {
				return t, b, nil
			}
		}
	}
	if err := it.Err(); err != nil {
		return nil, nil, err
	}
	return nil, nil, errors.Wrapf(ErrTransactionNotFound, "%s", id)
}

// Store returns the storage holding the chain
func (bc *Blockchain) Store() *storage.Storage {
	return bc.store
}

// Close drops the mempool and closes the storage
func (bc *Blockchain) Close() error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	for _, p := range bc.mempool {
		p.reservation.Release()
	}
	bc.mempool = nil
	return bc.store.Close()
}

func (bc *Blockchain) observeMined(b *block.Block, elapsed time.Duration) {
	if bc.opts.Metrics == nil {
		return
	}
	// Search stops at the first match, so the nonce counts the attempts
	bc.opts.Metrics.ObserveMinedBlock(b.Nonce()+1, elapsed)
	bc.updateGauges()
}

func (bc *Blockchain) updateGauges() {
	if bc.opts.Metrics == nil {
		return
	}
	bc.opts.Metrics.SetChainHeight(bc.tip.Height())
	bc.opts.Metrics.SetMempoolSize(len(bc.mempool))
}

func (bc *Blockchain) watch() {
	if bc.opts.Metrics == nil {
		return
	}
	if err := bc.opts.Metrics.WatchUTXO(bc.utxoSet); err != nil {
		log.Warnf("UTXO metrics unavailable: %s", err)
	}
}
