package storage

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	lvlstorage "github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/yourusername/minichain/internal/block"
	"github.com/yourusername/minichain/internal/logger"
)

var log, _ = logger.Get(logger.SubsystemTags.STOR)

const (
	// Database prefixes
	blockPrefix  = "block_"
	heightPrefix = "height_"
	tipKey       = "chain_tip"
	heightKey    = "chain_height"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// Storage represents the LevelDB storage layer
type Storage struct {
	db *leveldb.DB
}

// NewStorage opens or creates the database at path
func NewStorage(path string) (*Storage, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", path)
	}

	log.Debugf("Opened database at %s", path)
	return &Storage{db: db}, nil
}

// NewMemStorage creates a storage backed by memory only
func NewMemStorage() (*Storage, error) {
	db, err := leveldb.Open(lvlstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open in-memory database")
	}
	return &Storage{db: db}, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func blockKey(hash string) []byte {
	return []byte(blockPrefix + hash)
}

func heightIndexKey(height uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", heightPrefix, height))
}

// SaveBlock stores b, indexes it by height and makes it the chain tip in
// one atomic write.
func (s *Storage) SaveBlock(b *block.Block) error {
	serialized, err := b.Serialize()
	if err != nil {
		return err
	}

	height, err := encodeHeight(b.Height())
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	batch.Put(blockKey(b.Hash()), serialized)
	batch.Put(heightIndexKey(b.Height()), []byte(b.Hash()))
	batch.Put([]byte(tipKey), []byte(b.Hash()))
	batch.Put([]byte(heightKey), height)

	if err := s.db.Write(batch, nil); err != nil {
		return errors.Wrapf(err, "failed to save block %s", b.Hash())
	}

	log.Debugf("Saved block %s at height %d", b.Hash(), b.Height())
	return nil
}

// get reads key and maps a missing record to ErrNotFound
func (s *Storage) get(key []byte) ([]byte, error) {
	data, err := s.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, errors.Wrapf(ErrNotFound, "key %s", key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", key)
	}
	return data, nil
}

// GetBlock retrieves a block by hash. The block's proof-of-work is
// verified on the way out.
func (s *Storage) GetBlock(hash string) (*block.Block, error) {
	data, err := s.get(blockKey(hash))
	if err != nil {
		return nil, err
	}
	return block.Deserialize(data)
}

// GetBlockByHeight retrieves the block stored at height
func (s *Storage) GetBlockByHeight(height uint64) (*block.Block, error) {
	hash, err := s.get(heightIndexKey(height))
	if err != nil {
		return nil, err
	}
	return s.GetBlock(string(hash))
}

// GetChainTip retrieves the hash of the latest block
func (s *Storage) GetChainTip() (string, error) {
	hash, err := s.get([]byte(tipKey))
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// GetChainHeight retrieves the height of the latest block
func (s *Storage) GetChainHeight() (uint64, error) {
	data, err := s.get([]byte(heightKey))
	if err != nil {
		return 0, err
	}
	return decodeHeight(data)
}

// BlockExists checks if a block exists in the database
func (s *Storage) BlockExists(hash string) (bool, error) {
	exists, err := s.db.Has(blockKey(hash), nil)
	if err != nil {
		return false, errors.Wrapf(err, "failed to look up block %s", hash)
	}
	return exists, nil
}

func encodeHeight(height uint64) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(height); err != nil {
		return nil, errors.Wrap(err, "failed to encode height")
	}
	return buf.Bytes(), nil
}

func decodeHeight(data []byte) (uint64, error) {
	var height uint64
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&height); err != nil {
		return 0, errors.Wrap(err, "failed to decode height")
	}
	return height, nil
}
