package ledger

import (
	"errors"
	"math/big"
	"testing"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-allowance-ledger/inter"
	"github.com/rony4d/go-allowance-ledger/issuance"
	"github.com/rony4d/go-allowance-ledger/registry"
	"github.com/rony4d/go-allowance-ledger/utils/fixedpoint"
)

var (
	admin = common.HexToAddress("0xad0000000000000000000000000000000000000d")
	alice = common.HexToAddress("0xa11ce00000000000000000000000000000000000")
	bob   = common.HexToAddress("0xb0b0000000000000000000000000000000000000")
	carol = common.HexToAddress("0xca40100000000000000000000000000000000000")
)

// testEnv wires an engine to the in-memory collaborators with the fake
// network rules: 100-block epochs, flat curve of 1000 credit units per
// entitlement per epoch.
type testEnv struct {
	chain   *registry.FakeChain
	reg     *registry.MemoryRegistry
	credits *registry.MemoryCreditLedger
	vault   *registry.MemoryVault
	eng     *Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	chain := new(registry.FakeChain)
	reg := registry.NewMemoryRegistry(chain)
	credits := registry.NewMemoryCreditLedger()
	vault := registry.NewMemoryVault()

	eng, err := New(Config{Rules: issuance.FakeNetRules(), Admin: admin}, chain, reg, credits, vault)
	require.NoError(t, err)
	return &testEnv{chain: chain, reg: reg, credits: credits, vault: vault, eng: eng}
}

// checkInvariants asserts the two conservation properties for an epoch:
// allocated supply never exceeds total supply, and spent value never
// exceeds invested value (both compared in Q64 to avoid rounding slack).
func (env *testEnv) checkInvariants(t *testing.T, epoch idx.Epoch) {
	t.Helper()
	rec, err := env.eng.EpochRecordOf(epoch)
	require.NoError(t, err)

	allocated := fixedpoint.FromUnits(new(big.Int).Add(rec.SupplyClaimed, rec.SupplyWithdrawn))
	allocated.Add(allocated, rec.SupplySettledQ64)
	supply := fixedpoint.FromUnits(rec.TotalSupply)
	if allocated.Cmp(supply) > 0 {
		t.Fatalf("epoch %d over-allocated: claimed=%s withdrawn=%s settledQ64=%s supply=%s",
			epoch, rec.SupplyClaimed, rec.SupplyWithdrawn, rec.SupplySettledQ64, rec.TotalSupply)
	}

	spent := fixedpoint.FromUnits(rec.ValueSettled)
	spent.Add(spent, rec.ValueWithdrawnQ64)
	invested := fixedpoint.FromUnits(rec.ValueInvested)
	if spent.Cmp(invested) > 0 {
		t.Fatalf("epoch %d value leak: settled=%s withdrawnQ64=%s invested=%s",
			epoch, rec.ValueSettled, rec.ValueWithdrawnQ64, rec.ValueInvested)
	}
}

// TestBuySettleScenario replays the reference scenario: epoch length
// 100, flat curve 1000, one entitlement. Buying 1000 at offset 0 yields
// rate 10 with no refund; settling at offset 50 yields half the epoch
// allowance.
func TestBuySettleScenario(t *testing.T) {
	env := newTestEnv(t)
	env.reg.MintEntitlement(alice)
	env.vault.Fund(bob, big.NewInt(1000))

	env.chain.SetHeight(0)
	rate, refund, err := env.eng.Buy(bob, 0, big.NewInt(1000))
	require.NoError(t, err)
	assert.EqualValues(t, 10, rate.Int64())
	assert.EqualValues(t, 0, refund.Int64())
	env.checkInvariants(t, 0)

	env.chain.SetHeight(50)
	amountQ64, err := env.eng.Settle(bob, 0)
	require.NoError(t, err)

	// Half the 1000-unit allowance, in Q64.
	want := fixedpoint.FromUnits(big.NewInt(500))
	assert.Equal(t, 0, amountQ64.Cmp(want), "amountQ64 = %s, want %s", amountQ64, want)
	assert.EqualValues(t, 500, env.credits.BalanceOf(bob).Int64())

	rec, err := env.eng.EpochRecordOf(0)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, rec.TotalSupply.Int64())
	assert.EqualValues(t, 1000, rec.ValueInvested.Int64())
	assert.EqualValues(t, 500, rec.ValueSettled.Int64())
	assert.Equal(t, 0, rec.SupplySettledQ64.Cmp(want))
	env.checkInvariants(t, 0)
}

// TestSettleIdempotent verifies that a second settle at the same offset
// yields zero and does not move the settled offset further.
func TestSettleIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.reg.MintEntitlement(alice)
	env.vault.Fund(bob, big.NewInt(1000))

	_, _, err := env.eng.Buy(bob, 0, big.NewInt(1000))
	require.NoError(t, err)

	env.chain.SetHeight(50)
	first, err := env.eng.Settle(bob, 0)
	require.NoError(t, err)
	assert.True(t, first.Sign() > 0)

	acc, ok := env.eng.AccountOf(0, bob)
	require.True(t, ok)
	assert.EqualValues(t, 50, acc.LastSettledOffset)

	second, err := env.eng.Settle(bob, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, second.Sign(), "second settle must yield zero")

	acc, _ = env.eng.AccountOf(0, bob)
	assert.EqualValues(t, 50, acc.LastSettledOffset, "offset must not move on a no-op settle")
}

// TestTwoInvestorsNeverExceedCombined verifies that two equal investors
// settling in sequence never mint more than a single investor with the
// combined deposit would.
func TestTwoInvestorsNeverExceedCombined(t *testing.T) {
	single := newTestEnv(t)
	single.reg.MintEntitlement(alice)
	single.vault.Fund(bob, big.NewInt(666))
	_, _, err := single.eng.Buy(bob, 0, big.NewInt(666))
	require.NoError(t, err)
	single.chain.SetHeight(37)
	combined, err := single.eng.Settle(bob, 0)
	require.NoError(t, err)

	split := newTestEnv(t)
	split.reg.MintEntitlement(alice)
	split.vault.Fund(bob, big.NewInt(333))
	split.vault.Fund(carol, big.NewInt(333))
	_, _, err = split.eng.Buy(bob, 0, big.NewInt(333))
	require.NoError(t, err)
	_, _, err = split.eng.Buy(carol, 0, big.NewInt(333))
	require.NoError(t, err)

	split.chain.SetHeight(37)
	a, err := split.eng.Settle(bob, 0)
	require.NoError(t, err)
	b, err := split.eng.Settle(carol, 0)
	require.NoError(t, err)

	sum := new(big.Int).Add(a, b)
	if sum.Cmp(combined) > 0 {
		t.Fatalf("split settlements %s exceed combined %s", sum, combined)
	}
	split.checkInvariants(t, 0)
}

// TestClaimFullWindow claims an entire epoch's allowance up front.
func TestClaimFullWindow(t *testing.T) {
	env := newTestEnv(t)
	id := env.reg.MintEntitlement(alice)

	amount, err := env.eng.Claim(alice, id, alice, 100)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, amount.Int64())
	assert.EqualValues(t, 1000, env.credits.BalanceOf(alice).Int64())
	assert.EqualValues(t, 100, env.eng.ConsumedOffsetOf(id))
	env.checkInvariants(t, 0)

	// The window is exhausted: no further claim, nothing to withdraw.
	_, err = env.eng.Claim(alice, id, alice, 1)
	assert.Equal(t, ErrWindowExceeded, err)

	wAmount, wValue, err := env.eng.Withdraw(alice, id)
	require.NoError(t, err)
	assert.EqualValues(t, 0, wAmount.Sign())
	assert.EqualValues(t, 0, wValue.Sign())
}

// TestClaimValidation covers the claim error taxonomy.
func TestClaimValidation(t *testing.T) {
	env := newTestEnv(t)
	id := env.reg.MintEntitlement(alice)

	_, err := env.eng.Claim(alice, id, alice, 0)
	assert.Equal(t, ErrZeroDuration, err)

	_, err = env.eng.Claim(alice, id, alice, 101)
	assert.Equal(t, ErrWindowExceeded, err)

	_, err = env.eng.Claim(bob, id, bob, 10)
	assert.Equal(t, ErrNotAuthorized, err)

	// A delegate may claim on the owner's behalf.
	require.NoError(t, env.reg.Approve(alice, bob, id))
	_, err = env.eng.Claim(bob, id, bob, 10)
	require.NoError(t, err)

	// Once the mint epoch has elapsed, claiming is rejected.
	env.chain.SetHeight(150)
	_, err = env.eng.Claim(alice, id, alice, 10)
	assert.Equal(t, ErrPastEpoch, err)
}

// TestClaimBurnCredit verifies the zero-recipient accounting path.
func TestClaimBurnCredit(t *testing.T) {
	env := newTestEnv(t)
	id := env.reg.MintEntitlement(alice)

	amount, err := env.eng.Claim(alice, id, common.Address{}, 40)
	require.NoError(t, err)
	assert.EqualValues(t, 400, amount.Int64())
	assert.EqualValues(t, 400, env.credits.BurnCreditOf(alice).Int64())
	assert.EqualValues(t, 0, env.credits.BalanceOf(alice).Int64(), "burn credit must not mint")
	assert.EqualValues(t, 0, env.credits.TotalMinted().Int64())
}

// TestClaimForceWithdrawsPendingWindow verifies that a mid-epoch claim
// first converts the elapsed unclaimed window into a payout, so the
// shared counter never double-accounts.
func TestClaimForceWithdrawsPendingWindow(t *testing.T) {
	env := newTestEnv(t)
	id := env.reg.MintEntitlement(alice)
	env.vault.Fund(bob, big.NewInt(1000))
	_, _, err := env.eng.Buy(bob, 0, big.NewInt(1000))
	require.NoError(t, err)

	env.chain.SetHeight(50)
	amount, err := env.eng.Claim(alice, id, alice, 50)
	require.NoError(t, err)
	assert.EqualValues(t, 500, amount.Int64(), "claimed second half")

	// The first 50 blocks were force-withdrawn: alice sold them to the
	// investor pool for half the invested value.
	assert.EqualValues(t, 500, env.vault.BalanceOf(alice).Int64())
	assert.EqualValues(t, 100, env.eng.ConsumedOffsetOf(id))

	rec, err := env.eng.EpochRecordOf(0)
	require.NoError(t, err)
	assert.EqualValues(t, 500, rec.SupplyClaimed.Int64())
	assert.EqualValues(t, 500, rec.SupplyWithdrawn.Int64())
	env.checkInvariants(t, 0)
}

// TestWithdrawClosedEpoch verifies the frozen-supply pricing: a holder
// who sleeps through the mint epoch withdraws after it closes, priced
// against the closed-epoch snapshot even though the registry has grown
// since.
func TestWithdrawClosedEpoch(t *testing.T) {
	env := newTestEnv(t)
	id := env.reg.MintEntitlement(alice)
	env.vault.Fund(bob, big.NewInt(1000))
	_, _, err := env.eng.Buy(bob, 0, big.NewInt(1000))
	require.NoError(t, err)

	// Epoch 0 closes; a second entitlement appears in epoch 1 and must
	// not dilute epoch 0's frozen supply.
	env.chain.SetHeight(150)
	env.reg.MintEntitlement(carol)

	amount, valueQ64, err := env.eng.Withdraw(alice, id)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, amount.Int64(), "full frozen allowance withdrawn")
	assert.Equal(t, 0, valueQ64.Cmp(fixedpoint.FromUnits(big.NewInt(1000))), "full invested value paid out")
	assert.EqualValues(t, 1000, env.vault.BalanceOf(alice).Int64())

	rec, err := env.eng.EpochRecordOf(0)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, rec.TotalSupply.Int64(), "closed-epoch supply must stay frozen")
	env.checkInvariants(t, 0)

	// Nothing is left for a late settler.
	amountQ64, err := env.eng.Settle(bob, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, amountQ64.Sign())
}

// TestSettleAfterWithdrawSharesRemainingValue verifies the settlement
// value pool nets out payouts already made to withdrawing holders: a
// settler after a withdrawal draws only what is left of the invested
// value, never re-spending it.
func TestSettleAfterWithdrawSharesRemainingValue(t *testing.T) {
	env := newTestEnv(t)
	idA := env.reg.MintEntitlement(alice)
	env.reg.MintEntitlement(carol)
	env.vault.Fund(bob, big.NewInt(1000))
	_, _, err := env.eng.Buy(bob, 0, big.NewInt(1000))
	require.NoError(t, err)

	// The epoch closes with a supply of 2000 and alice withdraws her
	// half first, taking half the invested value with her.
	env.chain.SetHeight(150)
	amount, valueQ64, err := env.eng.Withdraw(alice, idA)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, amount.Int64())
	assert.Equal(t, 0, valueQ64.Cmp(fixedpoint.FromUnits(big.NewInt(500))))
	env.checkInvariants(t, 0)

	// Bob's settlement gets the remaining 1000 supply units, but it can
	// only be charged against the 500 value still in the pool.
	amountQ64, err := env.eng.Settle(bob, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, amountQ64.Cmp(fixedpoint.FromUnits(big.NewInt(1000))))
	assert.EqualValues(t, 1000, env.credits.BalanceOf(bob).Int64())

	rec, err := env.eng.EpochRecordOf(0)
	require.NoError(t, err)
	assert.EqualValues(t, 500, rec.ValueSettled.Int64())
	assert.Equal(t, 0, rec.ValueWithdrawnQ64.Cmp(fixedpoint.FromUnits(big.NewInt(500))))
	env.checkInvariants(t, 0)
}

// TestClaimAfterSettleRespectsPool verifies a claim cannot take supply
// that a settlement has already allocated: once the pool cannot cover
// both the pending window and the claim, the claim is rejected with no
// side effects, and withdrawing stays the holder's remaining option.
func TestClaimAfterSettleRespectsPool(t *testing.T) {
	env := newTestEnv(t)
	id := env.reg.MintEntitlement(alice)
	env.vault.Fund(bob, big.NewInt(1000))
	_, _, err := env.eng.Buy(bob, 0, big.NewInt(1000))
	require.NoError(t, err)

	env.chain.SetHeight(50)
	amountQ64, err := env.eng.Settle(bob, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, amountQ64.Cmp(fixedpoint.FromUnits(big.NewInt(500))))

	// Half the supply is settled and half is alice's pending window:
	// nothing is left for her to claim on top.
	_, err = env.eng.Claim(alice, id, alice, 50)
	assert.Equal(t, ErrSupplyExhausted, err)
	assert.EqualValues(t, 0, env.eng.ConsumedOffsetOf(id), "rejected claim must not consume")
	assert.EqualValues(t, 0, env.vault.BalanceOf(alice).Sign(), "rejected claim must not force-withdraw")
	env.checkInvariants(t, 0)

	// The pending window can still be sold to the investors instead.
	amount, valueQ64, err := env.eng.Withdraw(alice, id)
	require.NoError(t, err)
	assert.EqualValues(t, 500, amount.Int64())
	assert.Equal(t, 0, valueQ64.Cmp(fixedpoint.FromUnits(big.NewInt(500))))
	assert.EqualValues(t, 500, env.vault.BalanceOf(alice).Int64())

	rec, err := env.eng.EpochRecordOf(0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, rec.SupplyClaimed.Sign())
	assert.EqualValues(t, 500, rec.SupplyWithdrawn.Int64())
	env.checkInvariants(t, 0)
}

// TestReadPathsCreateNoState verifies reads and no-op settles leave the
// ledgers untouched: no investment record without a buy, no totals
// entry from reading an untouched epoch's record.
func TestReadPathsCreateNoState(t *testing.T) {
	env := newTestEnv(t)
	env.reg.MintEntitlement(alice)
	env.vault.Fund(bob, big.NewInt(1000))
	_, _, err := env.eng.Buy(bob, 0, big.NewInt(1000))
	require.NoError(t, err)

	env.chain.SetHeight(50)
	got, err := env.eng.Settle(carol, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, got.Sign())
	_, ok := env.eng.AccountOf(0, carol)
	assert.False(t, ok, "settling without a position must not create a record")

	_, err = env.eng.EpochRecordOf(7)
	require.NoError(t, err)
	snap := env.eng.Snapshot()
	require.Len(t, snap.Totals, 1)
	assert.EqualValues(t, 0, snap.Totals[0].Epoch)
}

// TestWithdrawValidation covers authorization and temporal rejects.
func TestWithdrawValidation(t *testing.T) {
	env := newTestEnv(t)
	id := env.reg.MintEntitlement(alice)

	_, _, err := env.eng.Withdraw(bob, id)
	assert.Equal(t, ErrNotAuthorized, err)

	// An entitlement minted in a later epoch cannot be withdrawn yet.
	env.chain.SetHeight(250)
	future := env.reg.MintEntitlement(alice)
	env.chain.SetHeight(50)
	_, _, err = env.eng.Withdraw(alice, future)
	assert.Equal(t, ErrFutureEpoch, err)
}

// TestBuyValidation covers the buy error taxonomy, including the
// deposit-too-small boundary.
func TestBuyValidation(t *testing.T) {
	env := newTestEnv(t)
	env.reg.MintEntitlement(alice)
	env.vault.Fund(bob, big.NewInt(10000))

	_, _, err := env.eng.Buy(bob, 0, big.NewInt(0))
	assert.Equal(t, ErrZeroDeposit, err)

	// A deposit smaller than the remaining duration truncates to a
	// zero rate and must be rejected, not silently accepted.
	_, _, err = env.eng.Buy(bob, 0, big.NewInt(99))
	assert.Equal(t, ErrRateTooSmall, err)

	env.chain.SetHeight(150)
	_, _, err = env.eng.Buy(bob, 0, big.NewInt(1000))
	assert.Equal(t, ErrPastEpoch, err)

	// A dead curve leaves nothing to buy.
	require.NoError(t, env.eng.UpdateCurve(admin, new(big.Int), new(big.Int), 0))
	_, _, err = env.eng.Buy(bob, 2, big.NewInt(1000))
	assert.Equal(t, ErrNothingToBuy, err)
}

// TestBuyRefundsRemainder verifies only the evenly divisible portion is
// collected.
func TestBuyRefundsRemainder(t *testing.T) {
	env := newTestEnv(t)
	env.reg.MintEntitlement(alice)
	env.vault.Fund(bob, big.NewInt(1005))

	rate, refund, err := env.eng.Buy(bob, 0, big.NewInt(1005))
	require.NoError(t, err)
	assert.EqualValues(t, 10, rate.Int64())
	assert.EqualValues(t, 5, refund.Int64())
	assert.EqualValues(t, 5, env.vault.BalanceOf(bob).Int64(), "remainder stays with the caller")
	assert.EqualValues(t, 1000, env.vault.Escrowed().Int64())

	rec, err := env.eng.EpochRecordOf(0)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, rec.ValueInvested.Int64())
}

// TestBuyFailedDepositLeavesNoTrace verifies atomicity of a failed buy.
func TestBuyFailedDepositLeavesNoTrace(t *testing.T) {
	env := newTestEnv(t)
	env.reg.MintEntitlement(alice)
	// bob has no funds at all.

	_, _, err := env.eng.Buy(bob, 0, big.NewInt(1000))
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrInsufficientFunds))

	_, exists := env.eng.AccountOf(0, bob)
	assert.False(t, exists, "failed buy must not create an account record")
	rec, err := env.eng.EpochRecordOf(0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, rec.ValueInvested.Sign())
}

// TestBuyMidEpochProRates verifies the duration shrinks to the epoch's
// remaining blocks and a prior position is settled first.
func TestBuyMidEpochProRates(t *testing.T) {
	env := newTestEnv(t)
	env.reg.MintEntitlement(alice)
	env.vault.Fund(bob, big.NewInt(2000))

	_, _, err := env.eng.Buy(bob, 0, big.NewInt(1000))
	require.NoError(t, err)

	env.chain.SetHeight(50)
	rate, refund, err := env.eng.Buy(bob, 0, big.NewInt(1000))
	require.NoError(t, err)
	assert.EqualValues(t, 20, rate.Int64(), "1000 over the remaining 50 blocks")
	assert.EqualValues(t, 0, refund.Int64())

	// The force-settlement priced the first 50 blocks at the old rate.
	assert.EqualValues(t, 500, env.credits.BalanceOf(bob).Int64())
	acc, ok := env.eng.AccountOf(0, bob)
	require.True(t, ok)
	assert.EqualValues(t, 50, acc.LastSettledOffset)
	assert.EqualValues(t, 30, acc.RatePerBlock.Int64(), "rates accumulate")
	env.checkInvariants(t, 0)
}

// TestBuyFutureEpoch verifies future epochs use the full epoch length
// and settle only once their epoch has started.
func TestBuyFutureEpoch(t *testing.T) {
	env := newTestEnv(t)
	env.reg.MintEntitlement(alice)
	env.vault.Fund(bob, big.NewInt(1000))

	env.chain.SetHeight(50)
	rate, _, err := env.eng.Buy(bob, 1, big.NewInt(1000))
	require.NoError(t, err)
	assert.EqualValues(t, 10, rate.Int64(), "future epoch uses the full length")

	// Settling a future epoch is rejected.
	_, err = env.eng.Settle(bob, 1)
	assert.Equal(t, ErrFutureEpoch, err)

	// Once epoch 1 is live, settlement prices from its offset 0.
	env.chain.SetHeight(150)
	amountQ64, err := env.eng.Settle(bob, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, amountQ64.Cmp(fixedpoint.FromUnits(big.NewInt(500))))
	env.checkInvariants(t, 1)
}

// TestWithdrawFailedPayoutLeavesNoTrace verifies a vetoed payout aborts
// the whole withdrawal.
func TestWithdrawFailedPayoutLeavesNoTrace(t *testing.T) {
	env := newTestEnv(t)
	id := env.reg.MintEntitlement(alice)
	env.vault.Fund(bob, big.NewInt(1000))
	_, _, err := env.eng.Buy(bob, 0, big.NewInt(1000))
	require.NoError(t, err)

	env.chain.SetHeight(50)
	boom := errors.New("transfer rejected")
	env.vault.PayoutHook = func(common.Address, *big.Int) error { return boom }

	_, _, err = env.eng.Withdraw(alice, id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.EqualValues(t, 0, env.eng.ConsumedOffsetOf(id), "failed withdrawal must not advance the counter")

	rec, err := env.eng.EpochRecordOf(0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, rec.SupplyWithdrawn.Sign())
	assert.EqualValues(t, 0, rec.ValueWithdrawnQ64.Sign())
}

// TestReentrancyRejected verifies the call-in-progress guard: a callout
// re-entering the engine is rejected while the outer call still
// completes.
func TestReentrancyRejected(t *testing.T) {
	env := newTestEnv(t)
	id := env.reg.MintEntitlement(alice)
	env.vault.Fund(bob, big.NewInt(1000))
	_, _, err := env.eng.Buy(bob, 0, big.NewInt(1000))
	require.NoError(t, err)

	env.chain.SetHeight(50)
	var nested error
	env.vault.PayoutHook = func(common.Address, *big.Int) error {
		_, nested = env.eng.Settle(bob, 0)
		return nil
	}

	_, _, err = env.eng.Withdraw(alice, id)
	require.NoError(t, err, "outer call must complete")
	assert.Equal(t, ErrReentrantCall, nested)
}

// TestUpdateCurve covers admin authorization, height pinning and the
// aggregate snapshot a successful update re-emits.
func TestUpdateCurve(t *testing.T) {
	env := newTestEnv(t)
	defer env.eng.Close()
	slope := new(big.Int)
	intercept := fixedpoint.FromUnits(big.NewInt(500))

	snapshots := make(chan inter.EpochRecord, 4)
	env.eng.SubscribeEpochRecords(snapshots)

	err := env.eng.UpdateCurve(bob, slope, intercept, 0)
	assert.Equal(t, ErrNotAdmin, err)

	env.chain.SetHeight(42)
	err = env.eng.UpdateCurve(admin, slope, intercept, 43)
	assert.Equal(t, ErrWrongHeight, err)
	assert.Len(t, snapshots, 0, "rejected updates must not emit")

	require.NoError(t, env.eng.UpdateCurve(admin, slope, intercept, 42))
	got := env.eng.Curve()
	assert.Equal(t, 0, got.Intercept.Cmp(intercept))

	// The update changes the live epoch's total supply, so observers
	// get a fresh aggregate record.
	snapRec := <-snapshots
	assert.EqualValues(t, 0, snapRec.Epoch)

	// The new curve drives subsequent allowance math.
	env.chain.SetHeight(0)
	id := env.reg.MintEntitlement(alice)
	amount, err := env.eng.Claim(alice, id, alice, 100)
	require.NoError(t, err)
	assert.EqualValues(t, 500, amount.Int64())
}

// TestRecordsEmitted verifies the observable record feeds.
func TestRecordsEmitted(t *testing.T) {
	env := newTestEnv(t)
	defer env.eng.Close()

	buys := make(chan BuyRecord, 8)
	claims := make(chan ClaimRecord, 8)
	settles := make(chan SettleRecord, 8)
	withdraws := make(chan WithdrawRecord, 8)
	snapshots := make(chan inter.EpochRecord, 32)
	env.eng.SubscribeBuys(buys)
	env.eng.SubscribeClaims(claims)
	env.eng.SubscribeSettlements(settles)
	env.eng.SubscribeWithdrawals(withdraws)
	env.eng.SubscribeEpochRecords(snapshots)

	id := env.reg.MintEntitlement(alice)
	env.vault.Fund(bob, big.NewInt(1000))
	_, _, err := env.eng.Buy(bob, 0, big.NewInt(1000))
	require.NoError(t, err)

	buyRec := <-buys
	assert.Equal(t, bob, buyRec.Caller)
	assert.EqualValues(t, 10, buyRec.RatePerBlock.Int64())

	env.chain.SetHeight(50)
	_, err = env.eng.Claim(alice, id, alice, 25)
	require.NoError(t, err)
	withdrawRec := <-withdraws
	assert.Equal(t, id, withdrawRec.Entitlement, "claim force-withdraws first")
	claimRec := <-claims
	assert.EqualValues(t, 250, claimRec.Amount.Int64())
	assert.EqualValues(t, 75, claimRec.ConsumedOffset)

	_, err = env.eng.Settle(bob, 0)
	require.NoError(t, err)
	settleRec := <-settles
	assert.EqualValues(t, 500, settleRec.ValueDue.Int64())
	assert.EqualValues(t, 50, settleRec.Elapsed)

	// Every live-epoch mutation re-emits a snapshot; the latest one
	// reflects the current aggregate state.
	var last inter.EpochRecord
	for len(snapshots) > 0 {
		last = <-snapshots
	}
	assert.EqualValues(t, 0, last.Epoch)
	assert.Equal(t, 0, last.SupplyClaimed.Cmp(big.NewInt(250)))
}

// TestNewRejectsBadRules verifies construction-time validation.
func TestNewRejectsBadRules(t *testing.T) {
	chain := new(registry.FakeChain)
	rules := issuance.FakeNetRules()
	rules.EpochLength = 1
	_, err := New(Config{Rules: rules, Admin: admin}, chain,
		registry.NewMemoryRegistry(chain), registry.NewMemoryCreditLedger(), registry.NewMemoryVault())
	assert.Equal(t, issuance.ErrBadEpochLength, err)
}
