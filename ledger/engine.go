// Package ledger implements the epoch-scoped allocation engine: the
// claim, buy, settle and withdraw operations that reconcile entitlement
// holders and investors against each epoch's allowance supply.
//
// The engine is the sole mutator of three ledgers: the per-entitlement
// consumed-window counters, the per-(epoch, account) investment
// records, and the per-epoch aggregate totals. Every public operation
// is atomic: it either commits all of its mutations or none of them.
// Time is read from a height source and never advanced here.
//
// Calls are serialized by the platform; the engine only defends against
// reentrancy, rejecting any call that arrives while another operation
// is between its external callouts.

package ledger

import (
	"fmt"
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-allowance-ledger/inter"
	"github.com/rony4d/go-allowance-ledger/issuance"
	"github.com/rony4d/go-allowance-ledger/registry"
	"github.com/rony4d/go-allowance-ledger/utils/fixedpoint"
)

// Config carries the construction-time parameters of the engine.
type Config struct {
	// Rules is the ledger configuration. The epoch length is immutable
	// afterwards; the curve seeds the mutable runtime curve.
	Rules issuance.Rules

	// Admin is the only identity allowed to update the issuance curve.
	Admin common.Address
}

// Engine is the allocation engine. It owns its ledgers exclusively;
// external collaborators are only reached through the registry
// interfaces.
type Engine struct {
	rules issuance.Rules
	curve issuance.Curve
	admin common.Address

	chain        registry.HeightSource
	entitlements registry.EntitlementRegistry
	credits      registry.CreditLedger
	vault        registry.ValueVault

	accounts map[accountKey]*AccountRecord
	consumed map[inter.EntitlementID]*inter.ConsumedWindow
	totals   map[idx.Epoch]*EpochTotals

	entered bool
	feeds   feeds
	log     *logrus.Entry
}

// New creates an engine over the given collaborators.
func New(cfg Config, chain registry.HeightSource, entitlements registry.EntitlementRegistry, credits registry.CreditLedger, vault registry.ValueVault) (*Engine, error) {
	if err := cfg.Rules.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		rules:        cfg.Rules.Copy(),
		curve:        cfg.Rules.Curve.Copy(),
		admin:        cfg.Admin,
		chain:        chain,
		entitlements: entitlements,
		credits:      credits,
		vault:        vault,
		accounts:     make(map[accountKey]*AccountRecord),
		consumed:     make(map[inter.EntitlementID]*inter.ConsumedWindow),
		totals:       make(map[idx.Epoch]*EpochTotals),
		log:          logrus.WithField("module", "ledger"),
	}, nil
}

// enter takes the call-in-progress guard.
func (e *Engine) enter() error {
	if e.entered {
		return ErrReentrantCall
	}
	e.entered = true
	return nil
}

func (e *Engine) leave() {
	e.entered = false
}

// CurrentEpoch returns the epoch of the current height.
func (e *Engine) CurrentEpoch() idx.Epoch {
	return inter.EpochOf(e.chain.CurrentHeight(), e.rules.EpochLength)
}

// BlockOffset returns the offset of the current height within the live
// epoch, in [0, epochLength).
func (e *Engine) BlockOffset() idx.Block {
	return inter.OffsetOf(e.chain.CurrentHeight(), e.rules.EpochLength)
}

// Rules returns a copy of the ledger configuration.
func (e *Engine) Rules() issuance.Rules {
	return e.rules.Copy()
}

// Curve returns a copy of the current issuance curve.
func (e *Engine) Curve() issuance.Curve {
	return e.curve.Copy()
}

// UpdateCurve replaces the issuance curve. Only the administrator may
// call it. A nonzero pinHeight pins the update to that exact height;
// the call fails if it executes at any other height.
func (e *Engine) UpdateCurve(caller common.Address, slope, intercept *big.Int, pinHeight idx.Block) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()

	if caller != e.admin {
		return ErrNotAdmin
	}
	height := e.chain.CurrentHeight()
	if pinHeight != 0 && height != pinHeight {
		return ErrWrongHeight
	}

	e.curve = issuance.NewCurve(slope, intercept)

	e.feeds.curve.Send(CurveRecord{
		Slope:     new(big.Int).Set(slope),
		Intercept: new(big.Int).Set(intercept),
		Height:    height,
	})
	// The curve drives the live epoch's total supply, so observers get
	// a fresh aggregate snapshot as after any other mutation.
	now := inter.EpochOf(height, e.rules.EpochLength)
	e.emitLiveSnapshot(now, now)
	e.log.WithFields(logrus.Fields{
		"slope":     slope,
		"intercept": intercept,
		"height":    height,
	}).Info("issuance curve updated")
	return nil
}

// Claim converts `duration` blocks of an entitlement's allowance into
// minted credit for `recipient`. The caller must be the entitlement's
// owner or an approved delegate, and the entitlement's mint epoch must
// not have elapsed. When the mint epoch is live, the entitlement's
// pending withdrawal window is settled first so the shared consumed
// counter cannot be accounted twice. A claim that no longer fits the
// epoch's remaining unallocated supply is rejected. A zero recipient
// records the amount as burn-tracked credit for the caller instead of
// minting.
//
// Returns the minted (or burn-tracked) credit amount.
func (e *Engine) Claim(caller common.Address, id inter.EntitlementID, recipient common.Address, duration idx.Block) (*big.Int, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.leave()

	if duration == 0 {
		return nil, ErrZeroDuration
	}
	if duration > e.rules.EpochLength {
		return nil, ErrWindowExceeded
	}
	ok, err := e.entitlements.IsApprovedOrOwner(caller, id)
	if err != nil {
		return nil, fmt.Errorf("entitlement lookup failed: %w", err)
	}
	if !ok {
		return nil, ErrNotAuthorized
	}
	_, mintHeight, err := e.entitlements.OwnerAndMintHeight(id)
	if err != nil {
		return nil, fmt.Errorf("entitlement lookup failed: %w", err)
	}

	mintEpoch := inter.EpochOf(mintHeight, e.rules.EpochLength)
	now := e.CurrentEpoch()
	if mintEpoch < now {
		return nil, ErrPastEpoch
	}

	w := e.consumedOf(id)

	// Bounds are checked against the post-withdrawal offset before any
	// side effect, so a failed claim leaves the pending withdrawal
	// untouched as well.
	projected := w.Offset()
	if mintEpoch == now && projected < e.BlockOffset() {
		projected = e.BlockOffset()
	}
	if projected+duration > e.rules.EpochLength {
		return nil, ErrWindowExceeded
	}

	// Settlements may already have allocated part of the pool. The
	// claim must fit what remains of it once the pending window below
	// has been force-withdrawn, checked before any side effect.
	amount := issuance.AllowanceForWindow(e.curve, e.rules.EpochLength, mintEpoch, duration)
	pool, err := e.remainingSupplyQ64(mintEpoch, now, e.totalsView(mintEpoch))
	if err != nil {
		return nil, err
	}
	if mintEpoch == now && w.Offset() < e.BlockOffset() {
		pending := issuance.AllowanceForWindow(e.curve, e.rules.EpochLength, mintEpoch, e.BlockOffset()-w.Offset())
		pool.Sub(pool, fixedpoint.FromUnits(pending))
	}
	if pool.Cmp(fixedpoint.FromUnits(amount)) < 0 {
		return nil, ErrSupplyExhausted
	}

	if mintEpoch == now {
		if _, _, err := e.withdrawInternal(caller, id, mintEpoch, now, w); err != nil {
			return nil, err
		}
	}

	if err := w.Advance(duration, e.rules.EpochLength); err != nil {
		return nil, err
	}

	t := e.totalsOf(mintEpoch)
	t.SupplyClaimed.Add(t.SupplyClaimed, amount)

	if recipient == (common.Address{}) {
		e.credits.RecordBurnCredit(caller, amount)
	} else {
		e.credits.Mint(recipient, amount)
	}

	e.feeds.claim.Send(ClaimRecord{
		Caller:         caller,
		Entitlement:    id,
		Recipient:      recipient,
		Amount:         new(big.Int).Set(amount),
		ConsumedOffset: w.Offset(),
	})
	e.emitLiveSnapshot(mintEpoch, now)
	e.log.WithFields(logrus.Fields{
		"caller":   caller,
		"id":       id,
		"epoch":    mintEpoch,
		"amount":   amount,
		"consumed": w.Offset(),
	}).Info("allowance claimed")
	return amount, nil
}

// Buy deposits value into an epoch to acquire a pro-rata rate of claim
// on its unclaimed allowance. The deposit spreads evenly over the
// epoch's remaining blocks (the full epoch for future epochs); the
// division remainder stays with the caller and is reported as the
// refund. Buying into the live epoch settles the caller's pending
// window first, so the new rate only applies from the current block.
//
// Returns the acquired rate per block and the refunded remainder.
func (e *Engine) Buy(caller common.Address, epoch idx.Epoch, deposit *big.Int) (*big.Int, *big.Int, error) {
	if err := e.enter(); err != nil {
		return nil, nil, err
	}
	defer e.leave()

	if deposit == nil || deposit.Sign() <= 0 {
		return nil, nil, ErrZeroDeposit
	}
	now := e.CurrentEpoch()
	if epoch < now {
		return nil, nil, ErrPastEpoch
	}

	duration := e.rules.EpochLength
	if epoch == now {
		duration -= e.BlockOffset()
	}
	if issuance.AllowanceForWindow(e.curve, e.rules.EpochLength, epoch, duration).Sign() == 0 {
		return nil, nil, ErrNothingToBuy
	}

	durBig := new(big.Int).SetUint64(uint64(duration))
	rate, refund := new(big.Int).QuoRem(deposit, durBig, new(big.Int))
	if rate.Sign() == 0 {
		return nil, nil, ErrRateTooSmall
	}
	invested := new(big.Int).Sub(deposit, refund)

	// The refund never leaves the caller: only the invested portion is
	// collected, so the investment record and the refund cannot come
	// apart. A failed collect aborts before any ledger mutation.
	if err := e.vault.Collect(caller, invested); err != nil {
		return nil, nil, fmt.Errorf("deposit transfer failed: %w", err)
	}

	// The record is created before the force-settlement so a fresh
	// mid-epoch position starts settled up to the current block.
	acc := e.accountOf(epoch, caller)
	if epoch == now {
		if _, _, _, err := e.settleInternal(caller, epoch, now, e.BlockOffset()); err != nil {
			return nil, nil, err
		}
	}
	acc.RatePerBlock.Add(acc.RatePerBlock, rate)
	t := e.totalsOf(epoch)
	t.ValueInvested.Add(t.ValueInvested, invested)

	e.feeds.buy.Send(BuyRecord{
		Caller:       caller,
		Epoch:        epoch,
		RatePerBlock: new(big.Int).Set(rate),
		Refund:       new(big.Int).Set(refund),
	})
	e.emitLiveSnapshot(epoch, now)
	e.log.WithFields(logrus.Fields{
		"caller": caller,
		"epoch":  epoch,
		"rate":   rate,
		"refund": refund,
	}).Info("allowance bought")
	return rate, refund, nil
}

// Settle converts the caller's accrued deposit-time in an epoch into
// minted credit at the prevailing proportional price. Settling an
// already-settled window returns zero without failing.
//
// Returns the settled supply in Q64 fixed-point.
func (e *Engine) Settle(caller common.Address, epoch idx.Epoch) (*big.Int, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.leave()

	now := e.CurrentEpoch()
	if epoch > now {
		return nil, ErrFutureEpoch
	}
	settleOffset := e.rules.EpochLength
	if epoch == now {
		settleOffset = e.BlockOffset()
	}

	amountQ64, _, elapsed, err := e.settleInternal(caller, epoch, now, settleOffset)
	if err != nil {
		return nil, err
	}
	if elapsed > 0 {
		e.emitLiveSnapshot(epoch, now)
	}
	return amountQ64, nil
}

// Withdraw converts an entitlement's unconsumed allowance window into a
// value payout funded by the epoch's investors. The caller must be the
// owner or an approved delegate and the entitlement's mint epoch must
// have started. An already-consumed window returns zero without
// failing.
//
// Returns the retired allowance amount and the payout in Q64.
func (e *Engine) Withdraw(caller common.Address, id inter.EntitlementID) (*big.Int, *big.Int, error) {
	if err := e.enter(); err != nil {
		return nil, nil, err
	}
	defer e.leave()

	ok, err := e.entitlements.IsApprovedOrOwner(caller, id)
	if err != nil {
		return nil, nil, fmt.Errorf("entitlement lookup failed: %w", err)
	}
	if !ok {
		return nil, nil, ErrNotAuthorized
	}
	_, mintHeight, err := e.entitlements.OwnerAndMintHeight(id)
	if err != nil {
		return nil, nil, fmt.Errorf("entitlement lookup failed: %w", err)
	}

	mintEpoch := inter.EpochOf(mintHeight, e.rules.EpochLength)
	now := e.CurrentEpoch()
	if mintEpoch > now {
		return nil, nil, ErrFutureEpoch
	}

	amount, valueQ64, err := e.withdrawInternal(caller, id, mintEpoch, now, e.consumedOf(id))
	if err != nil {
		return nil, nil, err
	}
	e.emitLiveSnapshot(mintEpoch, now)
	return amount, valueQ64, nil
}

// settleInternal settles the caller's window of `epoch` up to
// settleOffset. It is the helper shared by Settle and by Buy's
// force-settlement; the caller holds the reentrancy guard. A caller
// without an investment record is a no-op: records only come into
// being through a buy. The settled offset advances unconditionally,
// even when the priced amount rounds to zero, so the same window is
// never re-priced.
func (e *Engine) settleInternal(caller common.Address, epoch, now idx.Epoch, settleOffset idx.Block) (amountQ64, valueDue *big.Int, elapsed idx.Block, err error) {
	acc, ok := e.accounts[accountKey{epoch: epoch, addr: caller}]
	if !ok || acc.LastSettledOffset >= settleOffset {
		return new(big.Int), new(big.Int), 0, nil
	}
	elapsed = settleOffset - acc.LastSettledOffset
	valueDue = new(big.Int).Mul(acc.RatePerBlock, new(big.Int).SetUint64(uint64(elapsed)))

	t := e.totalsOf(epoch)
	remSupplyQ64, err := e.remainingSupplyQ64(epoch, now, t)
	if err != nil {
		return nil, nil, 0, err
	}
	// Value already paid out to withdrawing holders is gone from the
	// pool: a settlement draws no more than what is left of it.
	remValueQ64 := remainingValueQ64(t)
	if charged := fixedpoint.Truncate(remValueQ64); valueDue.Cmp(charged) > 0 {
		valueDue = charged
	}
	amountQ64 = settleAmountQ64(remSupplyQ64, fixedpoint.FromUnits(valueDue), remValueQ64)

	if amountQ64.Sign() > 0 {
		if minted := fixedpoint.Truncate(amountQ64); minted.Sign() > 0 {
			e.credits.Mint(caller, minted)
		}
		t.SupplySettledQ64.Add(t.SupplySettledQ64, amountQ64)
		t.ValueSettled.Add(t.ValueSettled, valueDue)

		e.feeds.settle.Send(SettleRecord{
			Caller:    caller,
			Epoch:     epoch,
			ValueDue:  new(big.Int).Set(valueDue),
			AmountQ64: new(big.Int).Set(amountQ64),
			Elapsed:   elapsed,
		})
		e.log.WithFields(logrus.Fields{
			"caller":  caller,
			"epoch":   epoch,
			"due":     valueDue,
			"elapsed": elapsed,
		}).Info("investment settled")
	}
	acc.LastSettledOffset = settleOffset
	return amountQ64, valueDue, elapsed, nil
}

// withdrawInternal settles the entitlement's pending withdrawal window
// up to the live offset (or the epoch end once the mint epoch closed).
// It is the helper shared by Withdraw and by Claim's force-withdrawal;
// the caller holds the reentrancy guard. The payout transfer runs
// before any ledger mutation: a failed transfer aborts the whole call
// with nothing committed. The consumed offset advances unconditionally.
func (e *Engine) withdrawInternal(caller common.Address, id inter.EntitlementID, mintEpoch, now idx.Epoch, w *inter.ConsumedWindow) (amount, valueQ64 *big.Int, err error) {
	withdrawOffset := e.rules.EpochLength
	if mintEpoch == now {
		withdrawOffset = e.BlockOffset()
	}
	if w.Offset() >= withdrawOffset {
		return new(big.Int), new(big.Int), nil
	}
	window := withdrawOffset - w.Offset()
	pending := issuance.AllowanceForWindow(e.curve, e.rules.EpochLength, mintEpoch, window)

	t := e.totalsOf(mintEpoch)
	remSupplyQ64, err := e.remainingSupplyQ64(mintEpoch, now, t)
	if err != nil {
		return nil, nil, err
	}
	effQ64, valueQ64 := withdrawValueQ64(remSupplyQ64, remainingValueQ64(t), pending)
	amount = fixedpoint.Truncate(effQ64)

	if payout := fixedpoint.Truncate(valueQ64); payout.Sign() > 0 {
		if err := e.vault.Payout(caller, payout); err != nil {
			return nil, nil, fmt.Errorf("withdrawal payout failed: %w", err)
		}
	}

	w.AdvanceTo(withdrawOffset)
	t.SupplyWithdrawn.Add(t.SupplyWithdrawn, amount)
	t.ValueWithdrawnQ64.Add(t.ValueWithdrawnQ64, valueQ64)

	e.feeds.withdraw.Send(WithdrawRecord{
		Caller:      caller,
		Entitlement: id,
		Epoch:       mintEpoch,
		Amount:      new(big.Int).Set(amount),
		ValueQ64:    new(big.Int).Set(valueQ64),
	})
	e.log.WithFields(logrus.Fields{
		"caller": caller,
		"id":     id,
		"epoch":  mintEpoch,
		"amount": amount,
	}).Info("allowance withdrawn")
	return amount, valueQ64, nil
}

// consumedOf returns the entitlement's consumed-window counter,
// creating it lazily.
func (e *Engine) consumedOf(id inter.EntitlementID) *inter.ConsumedWindow {
	w, ok := e.consumed[id]
	if !ok {
		w = new(inter.ConsumedWindow)
		e.consumed[id] = w
	}
	return w
}

// accountOf returns the (epoch, account) investment record, creating it
// lazily. Records are never deleted.
func (e *Engine) accountOf(epoch idx.Epoch, addr common.Address) *AccountRecord {
	key := accountKey{epoch: epoch, addr: addr}
	acc, ok := e.accounts[key]
	if !ok {
		acc = newAccountRecord()
		e.accounts[key] = acc
	}
	return acc
}

// totalsOf returns the epoch's aggregate totals, creating them lazily.
// Only mutating operations may call it; reads go through totalsView.
func (e *Engine) totalsOf(epoch idx.Epoch) *EpochTotals {
	t, ok := e.totals[epoch]
	if !ok {
		t = newEpochTotals()
		e.totals[epoch] = t
	}
	return t
}

// totalsView returns the epoch's totals without inserting an entry for
// an untouched epoch.
func (e *Engine) totalsView(epoch idx.Epoch) *EpochTotals {
	if t, ok := e.totals[epoch]; ok {
		return t
	}
	return newEpochTotals()
}

// emitLiveSnapshot re-emits the epoch's aggregate record when the
// mutated epoch is the live one, so observers can track epoch state
// without replaying history.
func (e *Engine) emitLiveSnapshot(epoch, now idx.Epoch) {
	if epoch != now {
		return
	}
	rec, err := e.EpochRecordOf(epoch)
	if err != nil {
		return
	}
	e.feeds.totals.Send(*rec)
}

// EpochRecordOf builds the exportable aggregate record of an epoch,
// including its total allowance supply.
func (e *Engine) EpochRecordOf(epoch idx.Epoch) (*inter.EpochRecord, error) {
	supply, err := e.totalAllowanceSupply(epoch, e.CurrentEpoch())
	if err != nil {
		return nil, err
	}
	t := e.totalsView(epoch).Copy()
	return &inter.EpochRecord{
		Epoch:             epoch,
		TotalSupply:       supply,
		SupplyClaimed:     t.SupplyClaimed,
		SupplyWithdrawn:   t.SupplyWithdrawn,
		SupplySettledQ64:  t.SupplySettledQ64,
		ValueInvested:     t.ValueInvested,
		ValueSettled:      t.ValueSettled,
		ValueWithdrawnQ64: t.ValueWithdrawnQ64,
	}, nil
}

// AccountOf returns a copy of the (epoch, account) investment record.
// The second return reports whether the record exists.
func (e *Engine) AccountOf(epoch idx.Epoch, addr common.Address) (AccountRecord, bool) {
	acc, ok := e.accounts[accountKey{epoch: epoch, addr: addr}]
	if !ok {
		return AccountRecord{RatePerBlock: new(big.Int)}, false
	}
	return acc.Copy(), true
}

// ConsumedOffsetOf returns the entitlement's consumed allowance offset.
func (e *Engine) ConsumedOffsetOf(id inter.EntitlementID) idx.Block {
	if w, ok := e.consumed[id]; ok {
		return w.Offset()
	}
	return 0
}
