package merkle

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/minichain/internal/crypto"
)

func parent(t *testing.T, left, right string) string {
	t.Helper()
	l, err := hex.DecodeString(left)
	require.NoError(t, err)
	r, err := hex.DecodeString(right)
	require.NoError(t, err)
	return hex.EncodeToString(crypto.HashBytes(append(l, r...)))
}

func TestRoot(t *testing.T) {
	ids := make([]string, 4)
	for i := range ids {
		ids[i] = crypto.HashHex([]byte{byte(i)})
	}

	h01 := parent(t, ids[0], ids[1])
	h23 := parent(t, ids[2], ids[3])
	h22 := parent(t, ids[2], ids[2])

	tests := []struct {
		name string
		ids  []string
		want string
	}{
		{name: "Empty", ids: nil, want: EmptyRoot},
		{name: "Single", ids: ids[:1], want: ids[0]},
		{name: "Two", ids: ids[:2], want: h01},
		{name: "Odd duplicates last", ids: ids[:3], want: parent(t, h01, h22)},
		{name: "Four", ids: ids, want: parent(t, h01, h23)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, err := Root(tt.ids)
			require.NoError(t, err)
			assert.Equal(t, tt.want, root)
		})
	}
}

func TestRootDoesNotModifyInput(t *testing.T) {
	ids := []string{crypto.HashHex([]byte("a")), crypto.HashHex([]byte("b")), crypto.HashHex([]byte("c"))}
	original := append([]string(nil), ids...)

	_, err := Root(ids)
	require.NoError(t, err)
	assert.Equal(t, original, ids)
}

func TestRootOrderMatters(t *testing.T) {
	a, b := crypto.HashHex([]byte("a")), crypto.HashHex([]byte("b"))

	ab, err := Root([]string{a, b})
	require.NoError(t, err)
	ba, err := Root([]string{b, a})
	require.NoError(t, err)
	assert.NotEqual(t, ab, ba)
}

func TestRootInvalidID(t *testing.T) {
	_, err := Root([]string{"not hex"})
	assert.Error(t, err)
}

func BenchmarkRoot(b *testing.B) {
	ids := make([]string, 1000)
	for i := range ids {
		ids[i] = crypto.HashHex([]byte{byte(i), byte(i >> 8)})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Root(ids)
	}
}
