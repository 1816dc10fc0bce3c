package inter

import (
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/rlp"
)

// EpochRecord is the exportable snapshot of one epoch's aggregate
// accounting state. It is what external indexers persist to reconstruct
// epoch state without replaying every operation. Fixed-point fields
// carry Q64 precision; the others are plain integer units.
type EpochRecord struct {
	Epoch             idx.Epoch
	TotalSupply       *big.Int
	SupplyClaimed     *big.Int
	SupplyWithdrawn   *big.Int
	SupplySettledQ64  *big.Int
	ValueInvested     *big.Int
	ValueSettled      *big.Int
	ValueWithdrawnQ64 *big.Int
}

// Bytes serializes the record with RLP, the canonical encoding used for
// everything that leaves this subsystem.
func (r *EpochRecord) Bytes() ([]byte, error) {
	return rlp.EncodeToBytes(r)
}

// DecodeEpochRecord decodes an RLP-encoded epoch record.
func DecodeEpochRecord(b []byte) (*EpochRecord, error) {
	r := new(EpochRecord)
	if err := rlp.DecodeBytes(b, r); err != nil {
		return nil, err
	}
	return r, nil
}
