package storage

import (
	"bytes"
	"encoding/gob"
	"strings"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/yourusername/minichain/internal/crypto"
)

const walletPrefix = "wallet_"

// walletData represents serializable key pair information
type walletData struct {
	Address    string
	PrivateKey []byte
}

// SaveKeyPair stores a key pair under its address
func (s *Storage) SaveKeyPair(keyPair *crypto.KeyPair) error {
	address := keyPair.Address()

	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(walletData{
		Address:    address,
		PrivateKey: keyPair.PrivateKey.Serialize(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode key pair")
	}

	if err := s.db.Put([]byte(walletPrefix+address), buf.Bytes(), nil); err != nil {
		return errors.Wrapf(err, "failed to save key pair for %s", address)
	}
	return nil
}

// GetKeyPair retrieves the key pair of address
func (s *Storage) GetKeyPair(address string) (*crypto.KeyPair, error) {
	data, err := s.get([]byte(walletPrefix + address))
	if err != nil {
		return nil, err
	}

	var wd walletData
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&wd); err != nil {
		return nil, errors.Wrapf(err, "failed to decode key pair for %s", address)
	}

	keyPair, err := crypto.KeyPairFromBytes(wd.PrivateKey)
	if err != nil {
		return nil, err
	}
	if keyPair.Address() != address {
		return nil, errors.Errorf("stored key pair derives %s, not %s", keyPair.Address(), address)
	}
	return keyPair, nil
}

// Addresses returns all stored addresses in key order
func (s *Storage) Addresses() ([]string, error) {
	var addresses []string

	iter := s.db.NewIterator(util.BytesPrefix([]byte(walletPrefix)), nil)
	defer iter.Release()

	for iter.Next() {
		addresses = append(addresses, strings.TrimPrefix(string(iter.Key()), walletPrefix))
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "failed to list addresses")
	}
	return addresses, nil
}
