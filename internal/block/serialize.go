package block

import (
	"bytes"
	"encoding/gob"

	"github.com/pkg/errors"

	"github.com/yourusername/minichain/internal/tx"
)

// serializedBlock is the storage form of a Block
type serializedBlock struct {
	Timestamp    int64
	Transactions []*tx.Transaction
	PrevHash     string
	Hash         string
	Height       uint64
	Nonce        uint64
}

// Serialize serializes the block for storage
func (b *Block) Serialize() ([]byte, error) {
	var buffer bytes.Buffer
	encoder := gob.NewEncoder(&buffer)

	err := encoder.Encode(serializedBlock{
		Timestamp:    b.timestamp,
		Transactions: b.transactions,
		PrevHash:     b.prevHash,
		Hash:         b.hash,
		Height:       b.height,
		Nonce:        b.nonce,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize block")
	}

	return buffer.Bytes(), nil
}

// Deserialize decodes a stored block and verifies its proof-of-work, so a
// corrupted record never becomes a Block.
func Deserialize(data []byte) (*Block, error) {
	var sb serializedBlock
	decoder := gob.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&sb); err != nil {
		return nil, errors.Wrap(err, "failed to deserialize block")
	}

	b := &Block{
		timestamp:    sb.Timestamp,
		transactions: sb.Transactions,
		prevHash:     sb.PrevHash,
		hash:         sb.Hash,
		height:       sb.Height,
		nonce:        sb.Nonce,
	}
	if err := b.Verify(); err != nil {
		return nil, errors.Wrapf(err, "stored block %s is invalid", sb.Hash)
	}
	return b, nil
}
