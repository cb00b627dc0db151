package utxo

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/yourusername/minichain/internal/block"
	"github.com/yourusername/minichain/internal/logger"
	"github.com/yourusername/minichain/internal/tx"
)

var log, _ = logger.Get(logger.SubsystemTags.UTXO)

var (
	// ErrMissingOutput is returned when an input references an output that
	// is not in the set.
	ErrMissingOutput = errors.New("referenced output is not unspent")

	// ErrDoubleSpend is returned when the same output is spent twice in one
	// batch of transactions.
	ErrDoubleSpend = errors.New("output spent twice")

	// ErrDuplicateOutput is returned when a transaction would recreate an
	// output that is already unspent.
	ErrDuplicateOutput = errors.New("output already exists")

	// ErrReservationClosed is returned when a released or consumed
	// reservation is used.
	ErrReservationClosed = errors.New("reservation is closed")

	// ErrOwnerMismatch is returned when a reservation is queried for an
	// owner other than the one it was made for.
	ErrOwnerMismatch = errors.New("reservation belongs to another owner")
)

// Outpoint identifies a single transaction output
type Outpoint struct {
	Txid  string
	Index int32
}

func (o Outpoint) less(other Outpoint) bool {
	if o.Txid != other.Txid {
		return o.Txid < other.Txid
	}
	return o.Index < other.Index
}

// Entry is an unspent output together with its location
type Entry struct {
	Outpoint Outpoint
	Output   tx.TXOutput
}

// Set is the unspent transaction output set. It is safe for concurrent use.
//
// Outputs of one owner are always visited in outpoint order, txid ascending
// then index ascending, so selection is deterministic.
type Set struct {
	mu       sync.RWMutex
	outputs  map[Outpoint]tx.TXOutput
	reserved map[Outpoint]*Reservation
}

// NewSet creates an empty UTXO set
func NewSet() *Set {
	return &Set{
		outputs:  make(map[Outpoint]tx.TXOutput),
		reserved: make(map[Outpoint]*Reservation),
	}
}

// FindSpendableOutputs implements tx.UTXOSource over the unreserved outputs
// of owner.
func (s *Set) FindSpendableOutputs(owner string, minAmount int64) (int64, []tx.OutputGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total, selected := s.selectOutputs(owner, minAmount)
	return total, group(selected), nil
}

// selectOutputs accumulates unreserved outputs of owner until minAmount is
// reached. Callers hold the lock.
func (s *Set) selectOutputs(owner string, minAmount int64) (int64, []Outpoint) {
	total := int64(0)
	var selected []Outpoint
	for _, entry := range s.ownedLocked(owner) {
		if total >= minAmount {
			break
		}
		if _, ok := s.reserved[entry.Outpoint]; ok {
			continue
		}
		total += entry.Output.Value
		selected = append(selected, entry.Outpoint)
	}
	return total, selected
}

// ownedLocked returns the outputs of owner in outpoint order
func (s *Set) ownedLocked(owner string) []Entry {
	var entries []Entry
	for outpoint, output := range s.outputs {
		if output.IsLockedWith(owner) {
			entries = append(entries, Entry{Outpoint: outpoint, Output: output})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Outpoint.less(entries[j].Outpoint)
	})
	return entries
}

// group folds sorted outpoints into per-transaction groups
func group(outpoints []Outpoint) []tx.OutputGroup {
	var groups []tx.OutputGroup
	for _, outpoint := range outpoints {
		last := len(groups) - 1
		if last >= 0 && groups[last].Txid == outpoint.Txid {
			groups[last].Indexes = append(groups[last].Indexes, outpoint.Index)
			continue
		}
		groups = append(groups, tx.OutputGroup{Txid: outpoint.Txid, Indexes: []int32{outpoint.Index}})
	}
	return groups
}

// Balance sums every unspent output of owner, reserved or not
func (s *Set) Balance(owner string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	balance := int64(0)
	for _, output := range s.outputs {
		if output.IsLockedWith(owner) {
			balance += output.Value
		}
	}
	return balance
}

// Outputs returns all unspent outputs of owner in outpoint order
func (s *Set) Outputs(owner string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ownedLocked(owner)
}

// Count returns the total number of unspent outputs
func (s *Set) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.outputs)
}

// Lookup finds a specific unspent output
func (s *Set) Lookup(outpoint Outpoint) (tx.TXOutput, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	output, ok := s.outputs[outpoint]
	return output, ok
}

// IsReserved reports whether outpoint is held by an open reservation
func (s *Set) IsReserved(outpoint Outpoint) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.reserved[outpoint]
	return ok
}

// Reserve selects unreserved outputs of owner worth at least amount and
// locks them until the reservation is released or the outputs are spent.
// Nothing is reserved when the owner cannot cover amount.
func (s *Set) Reserve(owner string, amount int64) (*Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total, selected := s.selectOutputs(owner, amount)
	if total < amount {
		return nil, &tx.InsufficientBalanceError{Available: total, Requested: amount}
	}

	r := &Reservation{
		set:       s,
		owner:     owner,
		total:     total,
		outpoints: selected,
	}
	for _, outpoint := range selected {
		s.reserved[outpoint] = r
	}
	log.Debugf("Reserved %d outputs worth %d for %s", len(selected), total, owner)
	return r, nil
}

// ApplyTransaction spends the inputs of t and adds its outputs
func (s *Set) ApplyTransaction(t *tx.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked([]*tx.Transaction{t})
}

// ApplyBlock applies every transaction of b in order. Either all of them
// are applied or none is.
func (s *Set) ApplyBlock(b *block.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.applyLocked(b.Transactions()); err != nil {
		return errors.Wrapf(err, "failed to apply block %s", b.Hash())
	}
	log.Debugf("Applied block %s at height %d, %d unspent outputs", b.Hash(), b.Height(), len(s.outputs))
	return nil
}

func (s *Set) applyLocked(transactions []*tx.Transaction) error {
	spent := make(map[Outpoint]struct{})
	created := make(map[Outpoint]tx.TXOutput)

	for _, t := range transactions {
		if t == nil {
			return errors.New("nil transaction")
		}

		if !t.IsCoinbase() {
			for _, in := range t.Vin {
				outpoint := Outpoint{Txid: in.Txid, Index: in.Vout}
				if _, ok := spent[outpoint]; ok {
					return errors.Wrapf(ErrDoubleSpend, "%s:%d in %s", in.Txid, in.Vout, t.ID)
				}
				if _, ok := created[outpoint]; ok {
					delete(created, outpoint)
				} else if _, ok := s.outputs[outpoint]; !ok {
					return errors.Wrapf(ErrMissingOutput, "%s:%d in %s", in.Txid, in.Vout, t.ID)
				}
				spent[outpoint] = struct{}{}
			}
		}

		for index, out := range t.Vout {
			outpoint := Outpoint{Txid: t.ID, Index: int32(index)}
			_, pending := created[outpoint]
			_, existing := s.outputs[outpoint]
			if _, ok := spent[outpoint]; ok {
				existing = false
			}
			if pending || existing {
				return errors.Wrapf(ErrDuplicateOutput, "%s:%d", t.ID, index)
			}
			created[outpoint] = out
		}
	}

	for outpoint := range spent {
		delete(s.outputs, outpoint)
		delete(s.reserved, outpoint)
	}
	for outpoint, out := range created {
		s.outputs[outpoint] = out
	}
	return nil
}

// Reservation is a set of outputs locked for one spend. It implements
// tx.UTXOSource and always reports exactly the reserved outputs.
type Reservation struct {
	set       *Set
	owner     string
	total     int64
	outpoints []Outpoint
	released  bool
}

// FindSpendableOutputs implements tx.UTXOSource. minAmount is not
// consulted; the reserved total is reported and the builder decides.
func (r *Reservation) FindSpendableOutputs(owner string, minAmount int64) (int64, []tx.OutputGroup, error) {
	if owner != r.owner {
		return 0, nil, errors.Wrapf(ErrOwnerMismatch, "reserved for %q, asked for %q", r.owner, owner)
	}

	r.set.mu.RLock()
	defer r.set.mu.RUnlock()
	if !r.openLocked() {
		return 0, nil, ErrReservationClosed
	}
	return r.total, group(r.outpoints), nil
}

// openLocked reports whether every reserved output is still held by r
func (r *Reservation) openLocked() bool {
	if r.released {
		return false
	}
	for _, outpoint := range r.outpoints {
		if r.set.reserved[outpoint] != r {
			return false
		}
	}
	return true
}

// Total returns the value of the reserved outputs
func (r *Reservation) Total() int64 {
	return r.total
}

// Outpoints returns the reserved outputs in selection order
func (r *Reservation) Outpoints() []Outpoint {
	return append([]Outpoint(nil), r.outpoints...)
}

// Release unlocks the outputs that are still reserved. It is safe to call
// more than once.
func (r *Reservation) Release() {
	r.set.mu.Lock()
	defer r.set.mu.Unlock()

	if r.released {
		return
	}
	r.released = true
	for _, outpoint := range r.outpoints {
		if r.set.reserved[outpoint] == r {
			delete(r.set.reserved, outpoint)
		}
	}
}
