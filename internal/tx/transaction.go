package tx

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/yourusername/minichain/internal/crypto"
	"github.com/yourusername/minichain/internal/encoding"
)

// Subsidy is the value minted by every coinbase transaction
const Subsidy int64 = 100

// coinbaseVout marks the single input of a coinbase transaction
const coinbaseVout int32 = -1

// Transaction represents a ledger transaction. It is built with ID empty,
// finalized exactly once, and must not be mutated afterwards.
type Transaction struct {
	ID   string
	Vin  []TXInput
	Vout []TXOutput
}

// TXInput references an output of a previous transaction
type TXInput struct {
	Txid          string // Hex id of the transaction holding the output
	Vout          int32  // Index of the output in that transaction
	Authorization string // Identity of the spender; the memo for coinbase
}

// TXOutput is a value assigned to an owner
type TXOutput struct {
	Value int64
	Owner string
}

// NewCoinbase creates the reward transaction for a block producer
func NewCoinbase(recipient, memo string) (*Transaction, error) {
	if memo == "" {
		memo = fmt.Sprintf("Reward to '%s'", recipient)
	}

	t := &Transaction{
		Vin: []TXInput{{
			Txid:          "",
			Vout:          coinbaseVout,
			Authorization: memo,
		}},
		Vout: []TXOutput{{
			Value: Subsidy,
			Owner: recipient,
		}},
	}

	if err := t.finalize(); err != nil {
		return nil, err
	}
	return t, nil
}

// NewSpend moves amount from spender to recipient using the outputs the
// source reports as spendable. Every reported output is consumed; the
// surplus goes back to spender as change. Inputs follow the source's
// order exactly. The source is not told which outputs were used.
func NewSpend(spender, recipient string, amount int64, source UTXOSource) (*Transaction, error) {
	if amount < 0 {
		return nil, errors.Wrapf(ErrNegativeAmount, "amount %d", amount)
	}

	available, groups, err := source.FindSpendableOutputs(spender, amount)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to find spendable outputs of %s", spender)
	}
	if available < amount {
		return nil, &InsufficientBalanceError{Available: available, Requested: amount}
	}

	var vin []TXInput
	for _, group := range groups {
		for _, index := range group.Indexes {
			vin = append(vin, TXInput{
				Txid:          group.Txid,
				Vout:          index,
				Authorization: spender,
			})
		}
	}

	vout := []TXOutput{{Value: amount, Owner: recipient}}
	if available > amount {
		vout = append(vout, TXOutput{Value: available - amount, Owner: spender})
	}

	t := &Transaction{Vin: vin, Vout: vout}
	if err := t.finalize(); err != nil {
		return nil, err
	}
	return t, nil
}

// Clone returns a deep copy of t. A nil transaction clones to nil.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	c := &Transaction{ID: t.ID}
	if t.Vin != nil {
		c.Vin = make([]TXInput, len(t.Vin))
		copy(c.Vin, t.Vin)
	}
	if t.Vout != nil {
		c.Vout = make([]TXOutput, len(t.Vout))
		copy(c.Vout, t.Vout)
	}
	return c
}

// IsCoinbase checks whether the transaction is a coinbase transaction
func (t *Transaction) IsCoinbase() bool {
	return len(t.Vin) == 1 && t.Vin[0].Txid == "" && t.Vin[0].Vout == coinbaseVout
}

// Hash computes the transaction id from the current inputs and outputs
// without touching ID.
func (t *Transaction) Hash() (string, error) {
	txCopy := *t
	txCopy.ID = ""

	var buf bytes.Buffer
	if err := txCopy.EncodeCanonical(&buf); err != nil {
		return "", errors.Wrap(err, "failed to encode transaction")
	}
	return crypto.HashHex(buf.Bytes()), nil
}

// VerifyID checks that ID matches the current contents
func (t *Transaction) VerifyID() error {
	id, err := t.Hash()
	if err != nil {
		return err
	}
	if id != t.ID {
		return errors.Wrapf(ErrIDMismatch, "have %s, computed %s", t.ID, id)
	}
	return nil
}

// finalize sets ID. It runs once, after Vin and Vout are complete.
func (t *Transaction) finalize() error {
	id, err := t.Hash()
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

// OutputTotal sums the values of all outputs
func (t *Transaction) OutputTotal() int64 {
	total := int64(0)
	for _, out := range t.Vout {
		total += out.Value
	}
	return total
}

// EncodeCanonical writes id, inputs and outputs in that order
func (t *Transaction) EncodeCanonical(w io.Writer) error {
	if err := encoding.WriteElement(w, t.ID); err != nil {
		return err
	}

	if err := encoding.WriteSequenceLength(w, len(t.Vin)); err != nil {
		return err
	}
	for _, in := range t.Vin {
		if err := encoding.WriteElement(w, in); err != nil {
			return err
		}
	}

	if err := encoding.WriteSequenceLength(w, len(t.Vout)); err != nil {
		return err
	}
	for _, out := range t.Vout {
		if err := encoding.WriteElement(w, out); err != nil {
			return err
		}
	}
	return nil
}

// EncodeCanonical writes txid, output index and authorization
func (in TXInput) EncodeCanonical(w io.Writer) error {
	return encoding.WriteElements(w, in.Txid, in.Vout, in.Authorization)
}

// EncodeCanonical writes value and owner. Negative values have no
// encoding.
func (out TXOutput) EncodeCanonical(w io.Writer) error {
	if out.Value < 0 {
		return errors.Wrapf(encoding.ErrEncoding, "negative output value %d", out.Value)
	}
	return encoding.WriteElements(w, out.Value, out.Owner)
}

// IsLockedWith checks if the output belongs to owner
func (out *TXOutput) IsLockedWith(owner string) bool {
	return out.Owner == owner
}
