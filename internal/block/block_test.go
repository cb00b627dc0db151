package block

import (
	"bytes"
	"context"
	"encoding/gob"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/minichain/internal/crypto"
	"github.com/yourusername/minichain/internal/encoding"
	"github.com/yourusername/minichain/internal/pow"
	"github.com/yourusername/minichain/internal/tx"
)

func newCoinbase(t *testing.T, to string) *tx.Transaction {
	t.Helper()
	coinbase, err := tx.NewCoinbase(to, "")
	require.NoError(t, err)
	return coinbase
}

func withClock(t *testing.T, clock func() time.Time) {
	t.Helper()
	previous := now
	now = clock
	t.Cleanup(func() { now = previous })
}

func TestNewGenesisBlock(t *testing.T) {
	coinbase := newCoinbase(t, "Alice")

	genesis, err := NewGenesisBlock(coinbase)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), genesis.Height())
	assert.Equal(t, "", genesis.PrevHash())
	assert.True(t, strings.HasPrefix(genesis.Hash(), "0000"), genesis.Hash())
	assert.Equal(t, []*tx.Transaction{coinbase}, genesis.Transactions())
	assert.True(t, genesis.IsGenesis())
}

func TestNewBlockLinksToParent(t *testing.T) {
	genesis, err := NewGenesisBlock(newCoinbase(t, "Alice"))
	require.NoError(t, err)

	next, err := NewBlock([]*tx.Transaction{newCoinbase(t, "Bob")}, genesis.Hash(), genesis.Height()+1)
	require.NoError(t, err)

	assert.Equal(t, genesis.Hash(), next.PrevHash())
	assert.Equal(t, uint64(1), next.Height())
	assert.True(t, strings.HasPrefix(next.Hash(), "0000"))
	assert.False(t, next.IsGenesis())
	assert.NotEqual(t, genesis.Hash(), next.Hash())
}

func TestBlockHashIsPreImageDigest(t *testing.T) {
	b, err := NewBlock([]*tx.Transaction{newCoinbase(t, "Alice")}, "abc", 3)
	require.NoError(t, err)

	payload, err := b.payload(b.Nonce())
	require.NoError(t, err)
	assert.Equal(t, crypto.HashHex(payload), b.Hash())

	expected, err := encoding.Marshal(
		"abc", uint64(1), b.Transactions()[0], b.Timestamp(), uint64(pow.Difficulty), b.Nonce())
	require.NoError(t, err)
	assert.Equal(t, expected, payload)

	again, err := b.payload(b.Nonce())
	require.NoError(t, err)
	assert.Equal(t, payload, again, "pre-image is not deterministic")
}

func TestValidate(t *testing.T) {
	b, err := NewBlock([]*tx.Transaction{newCoinbase(t, "Alice")}, "", 0)
	require.NoError(t, err)

	ok, err := b.Validate()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, b.Verify())
}

func TestVerifyDetectsTampering(t *testing.T) {
	coinbase := newCoinbase(t, "Alice")
	b, err := NewBlock([]*tx.Transaction{coinbase}, "", 0)
	require.NoError(t, err)

	t.Run("nonce", func(t *testing.T) {
		tampered := *b
		tampered.nonce++
		assert.True(t, errors.Is(tampered.Verify(), ErrHashMismatch))
	})

	t.Run("timestamp", func(t *testing.T) {
		tampered := *b
		tampered.timestamp++
		assert.True(t, errors.Is(tampered.Verify(), ErrHashMismatch))
	})

	t.Run("prev hash", func(t *testing.T) {
		tampered := *b
		tampered.prevHash = "ff"
		assert.True(t, errors.Is(tampered.Verify(), ErrHashMismatch))
	})

	t.Run("forged hash", func(t *testing.T) {
		tampered := *b
		tampered.hash = "0000" + strings.Repeat("a", 60)
		assert.True(t, errors.Is(tampered.Verify(), ErrHashMismatch))
	})

	t.Run("transaction order", func(t *testing.T) {
		other := newCoinbase(t, "Bob")
		tampered := *b
		tampered.transactions = []*tx.Transaction{other}
		assert.True(t, errors.Is(tampered.Verify(), ErrHashMismatch))
	})
}

func TestTransactionsAccessorReturnsCopy(t *testing.T) {
	coinbase := newCoinbase(t, "Alice")
	b, err := NewGenesisBlock(coinbase)
	require.NoError(t, err)

	txs := b.Transactions()
	txs[0] = newCoinbase(t, "Mallory")

	assert.Equal(t, coinbase, b.Transactions()[0])
	assert.NoError(t, b.Verify())
}

func TestInputSliceIsNotShared(t *testing.T) {
	txs := []*tx.Transaction{newCoinbase(t, "Alice")}
	b, err := NewBlock(txs, "", 0)
	require.NoError(t, err)

	txs[0] = newCoinbase(t, "Mallory")
	assert.NoError(t, b.Verify())
}

func TestTransactionContentsAreNotShared(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(caller *tx.Transaction, b *Block)
	}{
		{
			name:   "through the caller's transaction",
			mutate: func(caller *tx.Transaction, b *Block) { caller.Vout[0].Owner = "Mallory" },
		},
		{
			name:   "through the accessor",
			mutate: func(caller *tx.Transaction, b *Block) { b.Transactions()[0].Vout[0].Value = 1000000 },
		},
		{
			name:   "through an input",
			mutate: func(caller *tx.Transaction, b *Block) { b.Transactions()[0].Vin[0].Authorization = "Mallory" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coinbase := newCoinbase(t, "Alice")
			b, err := NewGenesisBlock(coinbase)
			require.NoError(t, err)

			tt.mutate(coinbase, b)

			require.NoError(t, b.Verify())
			mined := b.Transactions()[0]
			assert.Equal(t, []tx.TXOutput{{Value: tx.Subsidy, Owner: "Alice"}}, mined.Vout)
			assert.NotEqual(t, "Mallory", mined.Vin[0].Authorization)
		})
	}
}

func TestNewBlockClockBeforeEpoch(t *testing.T) {
	withClock(t, func() time.Time { return time.Unix(-60, 0) })

	b, err := NewBlock([]*tx.Transaction{newCoinbase(t, "Alice")}, "", 0)
	require.Error(t, err)
	assert.Nil(t, b)
	assert.True(t, errors.Is(err, ErrClock))
}

func TestNewBlockUsesClock(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	withClock(t, func() time.Time { return fixed })

	b, err := NewBlock([]*tx.Transaction{newCoinbase(t, "Alice")}, "", 0)
	require.NoError(t, err)
	assert.Equal(t, fixed.UnixMilli(), b.Timestamp())
}

func TestNewBlockEncodingFailure(t *testing.T) {
	broken := &tx.Transaction{
		Vin:  []tx.TXInput{{Txid: "a", Vout: 0, Authorization: "Bob"}},
		Vout: []tx.TXOutput{{Value: -1, Owner: "Eve"}},
	}

	tests := []struct {
		name string
		txs  []*tx.Transaction
	}{
		{name: "negative output", txs: []*tx.Transaction{broken}},
		{name: "nil transaction", txs: []*tx.Transaction{nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBlock(tt.txs, "", 0)
			require.Error(t, err)
			assert.Nil(t, b)
			assert.True(t, errors.Is(err, encoding.ErrEncoding))
		})
	}
}

func TestMineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b, err := Mine(ctx, []*tx.Transaction{newCoinbase(t, "Alice")}, "", 0, MineOptions{})
	require.Error(t, err)
	assert.Nil(t, b)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestMineBounded(t *testing.T) {
	b, err := Mine(context.Background(), []*tx.Transaction{newCoinbase(t, "Alice")}, "", 0,
		MineOptions{MaxAttempts: 1})
	if err == nil {
		// nonce 0 happened to meet the target
		assert.Equal(t, uint64(0), b.Nonce())
		return
	}
	assert.Nil(t, b)
	assert.True(t, errors.Is(err, pow.ErrAttemptsExhausted))
}

func TestSerializeDeserialize(t *testing.T) {
	b, err := NewBlock([]*tx.Transaction{newCoinbase(t, "Alice")}, "", 0)
	require.NoError(t, err)

	data, err := b.Serialize()
	require.NoError(t, err)

	decoded, err := Deserialize(data)
	require.NoError(t, err)

	assert.Equal(t, b.Hash(), decoded.Hash())
	assert.Equal(t, b.PrevHash(), decoded.PrevHash())
	assert.Equal(t, b.Height(), decoded.Height())
	assert.Equal(t, b.Timestamp(), decoded.Timestamp())
	assert.Equal(t, b.Nonce(), decoded.Nonce())
	require.Len(t, decoded.Transactions(), 1)
	assert.Equal(t, b.Transactions()[0].ID, decoded.Transactions()[0].ID)
}

func TestDeserializeRejectsInvalidBlock(t *testing.T) {
	b, err := NewBlock([]*tx.Transaction{newCoinbase(t, "Alice")}, "", 0)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(serializedBlock{
		Timestamp:    b.timestamp,
		Transactions: b.transactions,
		PrevHash:     b.prevHash,
		Hash:         b.hash,
		Height:       b.height,
		Nonce:        b.nonce + 1,
	}))

	_, err = Deserialize(buf.Bytes())
	assert.True(t, errors.Is(err, ErrHashMismatch))

	_, err = Deserialize([]byte("garbage"))
	assert.Error(t, err)
}

func BenchmarkNewBlock(b *testing.B) {
	coinbase, _ := tx.NewCoinbase("bench", "")
	for i := 0; i < b.N; i++ {
		NewBlock([]*tx.Transaction{coinbase}, "", 0)
	}
}

func BenchmarkValidate(b *testing.B) {
	coinbase, _ := tx.NewCoinbase("bench", "")
	mined, _ := NewBlock([]*tx.Transaction{coinbase}, "", 0)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mined.Validate()
	}
}
