package tx

import "github.com/pkg/errors"

// OutputGroup lists the output indexes of one transaction that a UTXO
// source offers for spending.
type OutputGroup struct {
	Txid    string
	Indexes []int32
}

// UTXOSource is the query side of a UTXO index.
//
// FindSpendableOutputs returns the total value and the outputs owned by
// owner that are currently unspent. When the total reaches minAmount the
// groups sum to exactly that total; otherwise the owner's complete set is
// returned so the caller can report the real shortfall. The order of the
// groups, and of the indexes inside a group, is the order inputs are
// built in.
type UTXOSource interface {
	FindSpendableOutputs(owner string, minAmount int64) (int64, []OutputGroup, error)
}

// Authorizer decides whether an input may spend the output it references.
type Authorizer interface {
	Authorize(in TXInput, spent TXOutput) error
}

// OwnerAuthorizer accepts an input whose authorization string equals the
// owner of the referenced output. It carries no cryptographic proof.
type OwnerAuthorizer struct{}

// Authorize implements Authorizer
func (OwnerAuthorizer) Authorize(in TXInput, spent TXOutput) error {
	if in.Authorization != spent.Owner {
		return errors.Wrapf(ErrUnauthorized, "%s:%d owned by %q, claimed by %q",
			in.Txid, in.Vout, spent.Owner, in.Authorization)
	}
	return nil
}
