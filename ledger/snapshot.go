package ledger

import (
	"bytes"
	"sort"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-allowance-ledger/inter"
	"github.com/rony4d/go-allowance-ledger/utils/cser"
)

// Snapshot is the portable form of the engine's ledgers: the consumed
// windows, the investment records and the epoch totals. Entries are
// ordered canonically so the same state always encodes to the same
// bytes.
type Snapshot struct {
	Consumed []ConsumedEntry
	Accounts []AccountEntry
	Totals   []TotalsEntry
}

type ConsumedEntry struct {
	Entitlement inter.EntitlementID
	Offset      idx.Block
}

type AccountEntry struct {
	Epoch   idx.Epoch
	Addr    common.Address
	Account AccountRecord
}

type TotalsEntry struct {
	Epoch  idx.Epoch
	Totals EpochTotals
}

// Snapshot exports the engine's current state.
func (e *Engine) Snapshot() *Snapshot {
	s := &Snapshot{}
	for id, w := range e.consumed {
		s.Consumed = append(s.Consumed, ConsumedEntry{Entitlement: id, Offset: w.Offset()})
	}
	for key, acc := range e.accounts {
		s.Accounts = append(s.Accounts, AccountEntry{Epoch: key.epoch, Addr: key.addr, Account: acc.Copy()})
	}
	for epoch, t := range e.totals {
		s.Totals = append(s.Totals, TotalsEntry{Epoch: epoch, Totals: t.Copy()})
	}

	sort.Slice(s.Consumed, func(i, j int) bool {
		return s.Consumed[i].Entitlement < s.Consumed[j].Entitlement
	})
	sort.Slice(s.Accounts, func(i, j int) bool {
		a, b := s.Accounts[i], s.Accounts[j]
		if a.Epoch != b.Epoch {
			return a.Epoch < b.Epoch
		}
		return bytes.Compare(a.Addr[:], b.Addr[:]) < 0
	})
	sort.Slice(s.Totals, func(i, j int) bool {
		return s.Totals[i].Epoch < s.Totals[j].Epoch
	})
	return s
}

// Restore replaces the engine's ledgers with the snapshot's state. It is
// meant for loading a persisted state into a freshly constructed engine.
func (e *Engine) Restore(s *Snapshot) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()

	consumed := make(map[inter.EntitlementID]*inter.ConsumedWindow, len(s.Consumed))
	for _, entry := range s.Consumed {
		w := new(inter.ConsumedWindow)
		w.AdvanceTo(entry.Offset)
		consumed[entry.Entitlement] = w
	}
	accounts := make(map[accountKey]*AccountRecord, len(s.Accounts))
	for _, entry := range s.Accounts {
		acc := entry.Account.Copy()
		accounts[accountKey{epoch: entry.Epoch, addr: entry.Addr}] = &acc
	}
	totals := make(map[idx.Epoch]*EpochTotals, len(s.Totals))
	for _, entry := range s.Totals {
		t := entry.Totals.Copy()
		totals[entry.Epoch] = &t
	}

	e.consumed = consumed
	e.accounts = accounts
	e.totals = totals
	return nil
}

// maxSnapshotEntries bounds decoded slice sizes against malformed input.
const maxSnapshotEntries = 1 << 20

// MarshalCSER serializes the snapshot into the canonical compact format.
func (s *Snapshot) MarshalCSER(w *cser.Writer) error {
	w.VarUint(uint64(len(s.Consumed)))
	for _, entry := range s.Consumed {
		w.U64(uint64(entry.Entitlement))
		w.U64(uint64(entry.Offset))
	}

	w.VarUint(uint64(len(s.Accounts)))
	for _, entry := range s.Accounts {
		w.U32(uint32(entry.Epoch))
		w.FixedBytes(entry.Addr[:])
		w.BigInt(entry.Account.RatePerBlock)
		w.U64(uint64(entry.Account.LastSettledOffset))
	}

	w.VarUint(uint64(len(s.Totals)))
	for _, entry := range s.Totals {
		w.U32(uint32(entry.Epoch))
		w.BigInt(entry.Totals.SupplyClaimed)
		w.BigInt(entry.Totals.SupplyWithdrawn)
		w.BigInt(entry.Totals.SupplySettledQ64)
		w.BigInt(entry.Totals.ValueInvested)
		w.BigInt(entry.Totals.ValueSettled)
		w.BigInt(entry.Totals.ValueWithdrawnQ64)
	}
	return nil
}

// UnmarshalCSER deserializes a snapshot.
func (s *Snapshot) UnmarshalCSER(r *cser.Reader) error {
	nConsumed := r.VarUint()
	if nConsumed > maxSnapshotEntries {
		return cser.ErrTooLargeAlloc
	}
	s.Consumed = make([]ConsumedEntry, nConsumed)
	for i := range s.Consumed {
		s.Consumed[i].Entitlement = inter.EntitlementID(r.U64())
		s.Consumed[i].Offset = idx.Block(r.U64())
	}

	nAccounts := r.VarUint()
	if nAccounts > maxSnapshotEntries {
		return cser.ErrTooLargeAlloc
	}
	s.Accounts = make([]AccountEntry, nAccounts)
	for i := range s.Accounts {
		s.Accounts[i].Epoch = idx.Epoch(r.U32())
		r.FixedBytes(s.Accounts[i].Addr[:])
		s.Accounts[i].Account.RatePerBlock = r.BigInt()
		s.Accounts[i].Account.LastSettledOffset = idx.Block(r.U64())
	}

	nTotals := r.VarUint()
	if nTotals > maxSnapshotEntries {
		return cser.ErrTooLargeAlloc
	}
	s.Totals = make([]TotalsEntry, nTotals)
	for i := range s.Totals {
		s.Totals[i].Epoch = idx.Epoch(r.U32())
		s.Totals[i].Totals.SupplyClaimed = r.BigInt()
		s.Totals[i].Totals.SupplyWithdrawn = r.BigInt()
		s.Totals[i].Totals.SupplySettledQ64 = r.BigInt()
		s.Totals[i].Totals.ValueInvested = r.BigInt()
		s.Totals[i].Totals.ValueSettled = r.BigInt()
		s.Totals[i].Totals.ValueWithdrawnQ64 = r.BigInt()
	}
	return nil
}

// Bytes encodes the snapshot into a single blob.
func (s *Snapshot) Bytes() ([]byte, error) {
	return cser.MarshalBinaryAdapter(s.MarshalCSER)
}

// DecodeSnapshot parses a blob produced by Bytes.
func DecodeSnapshot(raw []byte) (*Snapshot, error) {
	s := new(Snapshot)
	err := cser.UnmarshalBinaryAdapter(raw, s.UnmarshalCSER)
	if err != nil {
		return nil, err
	}
	return s, nil
}
