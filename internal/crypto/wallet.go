package crypto

import (
	"bytes"
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ripemd160"
)

const (
	// AddressVersion is the version byte prefixed to every address payload
	AddressVersion = 0x00

	// ChecksumLength is the length of address checksum
	ChecksumLength = 4

	pubKeyHashLength = ripemd160.Size
)

// ErrInvalidAddress is returned when an address fails Base58Check decoding.
var ErrInvalidAddress = errors.New("invalid address")

// KeyPair is a secp256k1 key pair used to derive an owner identity.
// Ledger ownership is still an opaque string comparison; the address
// is only a collision-resistant way to mint such strings.
type KeyPair struct {
	PrivateKey *btcec.PrivateKey
	PublicKey  []byte
}

// NewKeyPair generates a fresh secp256k1 key pair
func NewKeyPair() (*KeyPair, error) {
	privateKey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate private key")
	}

	return &KeyPair{
		PrivateKey: privateKey,
		PublicKey:  privateKey.PubKey().SerializeCompressed(),
	}, nil
}

// KeyPairFromBytes restores a key pair from a serialized private key
func KeyPairFromBytes(privateKey []byte) (*KeyPair, error) {
	if len(privateKey) != btcec.PrivKeyBytesLen {
		return nil, errors.Errorf("private key must be %d bytes, got %d",
			btcec.PrivKeyBytesLen, len(privateKey))
	}

	priv, pub := btcec.PrivKeyFromBytes(privateKey)
	return &KeyPair{
		PrivateKey: priv,
		PublicKey:  pub.SerializeCompressed(),
	}, nil
}

// Address returns the Base58Check address of the key pair
func (k *KeyPair) Address() string {
	return EncodeAddress(PublicKeyHash(k.PublicKey))
}

// PublicKeyHash returns the RIPEMD160(SHA256(pubKey))
func PublicKeyHash(pubKey []byte) []byte {
	sha256Hash := sha256.Sum256(pubKey)
	hasher := ripemd160.New()
	hasher.Write(sha256Hash[:])
	return hasher.Sum(nil)
}

// EncodeAddress encodes a public key hash as Base58(version || hash || checksum)
func EncodeAddress(pubKeyHash []byte) string {
	versionedPayload := append([]byte{AddressVersion}, pubKeyHash...)
	fullPayload := append(versionedPayload, Checksum(versionedPayload)...)
	return base58.Encode(fullPayload)
}

// DecodeAddress decodes an address back to its public key hash
func DecodeAddress(address string) ([]byte, error) {
	decoded, err := base58.Decode(address)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidAddress, "%q: %v", address, err)
	}

	if len(decoded) != 1+pubKeyHashLength+ChecksumLength {
		return nil, errors.Wrapf(ErrInvalidAddress, "%q: bad length %d", address, len(decoded))
	}

	payload := decoded[:len(decoded)-ChecksumLength]
	checksum := decoded[len(decoded)-ChecksumLength:]
	if !bytes.Equal(Checksum(payload), checksum) {
		return nil, errors.Wrapf(ErrInvalidAddress, "%q: checksum mismatch", address)
	}
	if payload[0] != AddressVersion {
		return nil, errors.Wrapf(ErrInvalidAddress, "%q: unknown version %d", address, payload[0])
	}

	return payload[1:], nil
}

// IsAddress reports whether s is a well-formed address
func IsAddress(s string) bool {
	_, err := DecodeAddress(s)
	return err == nil
}

// Checksum generates a 4-byte checksum for address encoding
func Checksum(payload []byte) []byte {
	firstHash := sha256.Sum256(payload)
	secondHash := sha256.Sum256(firstHash[:])
	return secondHash[:ChecksumLength]
}
