package crypto

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyPair(t *testing.T) {
	keyPair, err := NewKeyPair()
	require.NoError(t, err)

	assert.NotNil(t, keyPair.PrivateKey)
	// Compressed secp256k1 public key
	assert.Len(t, keyPair.PublicKey, 33)
}

func TestAddress(t *testing.T) {
	keyPair, err := NewKeyPair()
	require.NoError(t, err)

	address := keyPair.Address()
	assert.NotEmpty(t, address)
	assert.True(t, len(address) >= 26 && len(address) <= 35, "address length %d", len(address))
	assert.True(t, IsAddress(address))
}

func TestAddressEncodeDecode(t *testing.T) {
	keyPair, _ := NewKeyPair()
	address := keyPair.Address()

	decoded, err := DecodeAddress(address)
	require.NoError(t, err)
	assert.Equal(t, PublicKeyHash(keyPair.PublicKey), decoded)
	assert.Equal(t, address, EncodeAddress(decoded))
}

func TestDecodeAddressInvalid(t *testing.T) {
	keyPair, _ := NewKeyPair()
	valid := keyPair.Address()

	// flip the last character to break the checksum
	last := valid[len(valid)-1]
	replacement := byte('2')
	if last == replacement {
		replacement = '3'
	}
	tampered := valid[:len(valid)-1] + string(replacement)

	tests := []struct {
		name    string
		address string
	}{
		{name: "Opaque identity", address: "Alice"},
		{name: "Empty", address: ""},
		{name: "Not base58", address: "0OIl"},
		{name: "Bad checksum", address: tampered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeAddress(tt.address)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidAddress))
			assert.False(t, IsAddress(tt.address))
		})
	}
}

func TestPublicKeyHash(t *testing.T) {
	keyPair, _ := NewKeyPair()

	hash := PublicKeyHash(keyPair.PublicKey)
	assert.Len(t, hash, 20)
	assert.Equal(t, hash, PublicKeyHash(keyPair.PublicKey))
}

func TestUniqueAddresses(t *testing.T) {
	keyPair1, _ := NewKeyPair()
	keyPair2, _ := NewKeyPair()

	assert.NotEqual(t, keyPair1.Address(), keyPair2.Address())
}

func TestChecksum(t *testing.T) {
	data := []byte("test data")
	checksum := Checksum(data)

	assert.Len(t, checksum, ChecksumLength)
	assert.Equal(t, checksum, Checksum(data))
	assert.NotEqual(t, checksum, Checksum([]byte("different data")))
}

func BenchmarkNewKeyPair(b *testing.B) {
	for i := 0; i < b.N; i++ {
		NewKeyPair()
	}
}

func TestKeyPairFromBytes(t *testing.T) {
	keyPair, err := NewKeyPair()
	require.NoError(t, err)

	restored, err := KeyPairFromBytes(keyPair.PrivateKey.Serialize())
	require.NoError(t, err)
	assert.Equal(t, keyPair.PublicKey, restored.PublicKey)
	assert.Equal(t, keyPair.Address(), restored.Address())

	_, err = KeyPairFromBytes([]byte{1, 2, 3})
	assert.Error(t, err)
}
