package blockchain

import (
	"github.com/yourusername/minichain/internal/block"
	"github.com/yourusername/minichain/internal/storage"
)

// Iterator walks the chain from the tip back to genesis
type Iterator struct {
	store       *storage.Storage
	currentHash string
	current     *block.Block
	done        bool
	err         error
}

// Iterator returns an iterator starting at the current tip
func (bc *Blockchain) Iterator() *Iterator {
	return &Iterator{
		store:       bc.store,
		currentHash: bc.Tip().Hash(),
	}
}

// Next advances to the next older block. It returns false at the end of
// the chain or on error; check Err afterwards.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}

	b, err := it.store.GetBlock(it.currentHash)
	if err != nil {
		it.err = err
		it.done = true
		return false
	}

	it.current = b
	it.currentHash = b.PrevHash()
	if it.currentHash == "" {
		it.done = true
	}
	return true
}

// Block returns the block the iterator stopped at
func (it *Iterator) Block() *block.Block {
	return it.current
}

// Err returns the error that ended the iteration, if any
func (it *Iterator) Err() error {
	return it.err
}
