package ledger

import (
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/rony4d/go-allowance-ledger/inter"
)

// Observable records emitted by the engine. External indexers subscribe
// to reconstruct epoch state without replaying history.

// CurveRecord is emitted on every issuance curve update.
type CurveRecord struct {
	Slope     *big.Int
	Intercept *big.Int
	Height    idx.Block
}

// BuyRecord is emitted on every successful buy.
type BuyRecord struct {
	Caller       common.Address
	Epoch        idx.Epoch
	RatePerBlock *big.Int
	Refund       *big.Int
}

// ClaimRecord is emitted on every successful claim.
type ClaimRecord struct {
	Caller         common.Address
	Entitlement    inter.EntitlementID
	Recipient      common.Address
	Amount         *big.Int
	ConsumedOffset idx.Block
}

// SettleRecord is emitted when a settlement converts accrued value into
// credit. AmountQ64 is the settled supply in Q64 fixed-point.
type SettleRecord struct {
	Caller    common.Address
	Epoch     idx.Epoch
	ValueDue  *big.Int
	AmountQ64 *big.Int
	Elapsed   idx.Block
}

// WithdrawRecord is emitted when an entitlement's unconsumed allowance
// is converted into a value payout. ValueQ64 is the payout in Q64
// fixed-point.
type WithdrawRecord struct {
	Caller      common.Address
	Entitlement inter.EntitlementID
	Epoch       idx.Epoch
	Amount      *big.Int
	ValueQ64    *big.Int
}

// feeds fans the records out to subscribers, one typed feed per record
// kind plus the epoch snapshot feed.
type feeds struct {
	curve    event.Feed
	buy      event.Feed
	claim    event.Feed
	settle   event.Feed
	withdraw event.Feed
	totals   event.Feed
	scope    event.SubscriptionScope
}

// SubscribeCurve subscribes to curve update records.
func (e *Engine) SubscribeCurve(ch chan<- CurveRecord) event.Subscription {
	return e.feeds.scope.Track(e.feeds.curve.Subscribe(ch))
}

// SubscribeBuys subscribes to buy records.
func (e *Engine) SubscribeBuys(ch chan<- BuyRecord) event.Subscription {
	return e.feeds.scope.Track(e.feeds.buy.Subscribe(ch))
}

// SubscribeClaims subscribes to claim records.
func (e *Engine) SubscribeClaims(ch chan<- ClaimRecord) event.Subscription {
	return e.feeds.scope.Track(e.feeds.claim.Subscribe(ch))
}

// SubscribeSettlements subscribes to settlement records.
func (e *Engine) SubscribeSettlements(ch chan<- SettleRecord) event.Subscription {
	return e.feeds.scope.Track(e.feeds.settle.Subscribe(ch))
}

// SubscribeWithdrawals subscribes to withdrawal records.
func (e *Engine) SubscribeWithdrawals(ch chan<- WithdrawRecord) event.Subscription {
	return e.feeds.scope.Track(e.feeds.withdraw.Subscribe(ch))
}

// SubscribeEpochRecords subscribes to aggregate epoch snapshots. A
// snapshot is re-emitted after every mutation that touches the live
// epoch, so a subscriber always holds the current epoch state.
func (e *Engine) SubscribeEpochRecords(ch chan<- inter.EpochRecord) event.Subscription {
	return e.feeds.scope.Track(e.feeds.totals.Subscribe(ch))
}

// Close unsubscribes all record subscribers.
func (e *Engine) Close() {
	e.feeds.scope.Close()
}
