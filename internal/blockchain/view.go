package blockchain

import (
	"github.com/yourusername/minichain/internal/tx"
	"github.com/yourusername/minichain/internal/utxo"
)

// view overlays the effects of not yet committed transactions on a UTXO
// set. It lets a block spend outputs created earlier in the same block.
type view struct {
	base    *utxo.Set
	spent   map[utxo.Outpoint]struct{}
	created map[utxo.Outpoint]tx.TXOutput
}

func newView(base *utxo.Set) *view {
	return &view{
		base:    base,
		spent:   make(map[utxo.Outpoint]struct{}),
		created: make(map[utxo.Outpoint]tx.TXOutput),
	}
}

func (v *view) lookup(outpoint utxo.Outpoint) (tx.TXOutput, bool) {
	if _, ok := v.spent[outpoint]; ok {
		return tx.TXOutput{}, false
	}
	if out, ok := v.created[outpoint]; ok {
		return out, true
	}
	return v.base.Lookup(outpoint)
}

func (v *view) apply(t *tx.Transaction) {
	if !t.IsCoinbase() {
		for _, in := range t.Vin {
			v.spent[utxo.Outpoint{Txid: in.Txid, Index: in.Vout}] = struct{}{}
		}
	}
	for index, out := range t.Vout {
		outpoint := utxo.Outpoint{Txid: t.ID, Index: int32(index)}
		delete(v.spent, outpoint)
		v.created[outpoint] = out
	}
}
