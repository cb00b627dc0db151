package merkle

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"

	"github.com/yourusername/minichain/internal/crypto"
)

// EmptyRoot is the root of a block without transactions
var EmptyRoot = strings.Repeat("0", 64)

// Root constructs a merkle root from hex transaction ids.
// If a level has an odd number of nodes, the last one is duplicated.
func Root(ids []string) (string, error) {
	if len(ids) == 0 {
		return EmptyRoot, nil
	}

	level := make([][]byte, 0, len(ids))
	for _, id := range ids {
		decoded, err := hex.DecodeString(id)
		if err != nil {
			return "", errors.Wrapf(err, "transaction id %q is not hex", id)
		}
		level = append(level, decoded)
	}

	// Build the tree bottom-up
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}

		next := make([][]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			combined := make([]byte, 0, len(level[i])+len(level[i+1]))
			combined = append(combined, level[i]...)
			combined = append(combined, level[i+1]...)
			next = append(next, crypto.HashBytes(combined))
		}
		level = next
	}

	return hex.EncodeToString(level[0]), nil
}
