package registry

import (
	"errors"
	"math/big"
	"sort"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-allowance-ledger/inter"
)

// Errors returned by the memory collaborators.
var (
	ErrUnknownEntitlement = errors.New("unknown entitlement")
	ErrInsufficientFunds  = errors.New("insufficient funds")
)

// FakeChain is a settable height source for tests and the simulator.
type FakeChain struct {
	mu     sync.RWMutex
	height idx.Block
}

// CurrentHeight implements HeightSource.
func (c *FakeChain) CurrentHeight() idx.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}

// SetHeight moves the chain to an absolute height.
func (c *FakeChain) SetHeight(h idx.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height = h
}

// Advance moves the chain forward by n blocks.
func (c *FakeChain) Advance(n idx.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height += n
}

type entitlement struct {
	owner      common.Address
	mintHeight idx.Block
	approved   common.Address
}

// countCheckpoint records the entitlement count as of a height. The
// checkpoint list is append-only and height-ordered, so historical
// count queries are a binary search.
type countCheckpoint struct {
	height idx.Block
	count  uint64
}

// MemoryRegistry is an in-memory entitlement registry with
// height-checkpointed supply history.
type MemoryRegistry struct {
	mu           sync.RWMutex
	chain        HeightSource
	next         inter.EntitlementID
	entitlements map[inter.EntitlementID]*entitlement
	operators    map[common.Address]map[common.Address]bool
	checkpoints  []countCheckpoint
}

// NewMemoryRegistry creates an empty registry reading time from chain.
func NewMemoryRegistry(chain HeightSource) *MemoryRegistry {
	return &MemoryRegistry{
		chain:        chain,
		entitlements: make(map[inter.EntitlementID]*entitlement),
		operators:    make(map[common.Address]map[common.Address]bool),
	}
}

// MintEntitlement creates a new entitlement owned by `owner` at the
// current height and returns its id. A count checkpoint is recorded so
// closed-epoch supply queries see the state as it stood back then.
func (r *MemoryRegistry) MintEntitlement(owner common.Address) inter.EntitlementID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.next
	r.next++
	r.entitlements[id] = &entitlement{
		owner:      owner,
		mintHeight: r.chain.CurrentHeight(),
	}
	r.checkpoint()
	return id
}

// Approve grants `operator` control over one entitlement. Only the
// owner may approve; the zero address clears the approval.
func (r *MemoryRegistry) Approve(owner, operator common.Address, id inter.EntitlementID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entitlements[id]
	if !ok {
		return ErrUnknownEntitlement
	}
	if e.owner != owner {
		return errors.New("approve caller is not the owner")
	}
	e.approved = operator
	return nil
}

// SetOperator grants or revokes `operator` control over all of
// `owner`'s entitlements.
func (r *MemoryRegistry) SetOperator(owner, operator common.Address, approved bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ops := r.operators[owner]
	if ops == nil {
		ops = make(map[common.Address]bool)
		r.operators[owner] = ops
	}
	ops[operator] = approved
}

// OwnerAndMintHeight implements EntitlementRegistry.
func (r *MemoryRegistry) OwnerAndMintHeight(id inter.EntitlementID) (common.Address, idx.Block, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entitlements[id]
	if !ok {
		return common.Address{}, 0, ErrUnknownEntitlement
	}
	return e.owner, e.mintHeight, nil
}

// IsApprovedOrOwner implements EntitlementRegistry.
func (r *MemoryRegistry) IsApprovedOrOwner(caller common.Address, id inter.EntitlementID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entitlements[id]
	if !ok {
		return false, ErrUnknownEntitlement
	}
	if caller == e.owner || caller == e.approved {
		return true, nil
	}
	return r.operators[e.owner][caller], nil
}

// CurrentCount implements EntitlementRegistry.
func (r *MemoryRegistry) CurrentCount() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(len(r.entitlements))
}

// CountAsOf implements EntitlementRegistry. It returns the count from
// the newest checkpoint at or before `height`, zero if none exists.
func (r *MemoryRegistry) CountAsOf(height idx.Block) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// First checkpoint strictly after `height`.
	i := sort.Search(len(r.checkpoints), func(i int) bool {
		return r.checkpoints[i].height > height
	})
	if i == 0 {
		return 0
	}
	return r.checkpoints[i-1].count
}

// checkpoint records the current count at the current height, replacing
// a same-height checkpoint in place. Callers hold the write lock.
func (r *MemoryRegistry) checkpoint() {
	h := r.chain.CurrentHeight()
	count := uint64(len(r.entitlements))
	if n := len(r.checkpoints); n > 0 && r.checkpoints[n-1].height == h {
		r.checkpoints[n-1].count = count
		return
	}
	r.checkpoints = append(r.checkpoints, countCheckpoint{height: h, count: count})
}

// MemoryCreditLedger is an in-memory fungible credit ledger with
// burn-credit tracking.
type MemoryCreditLedger struct {
	mu          sync.RWMutex
	balances    map[common.Address]*big.Int
	burnCredits map[common.Address]*big.Int
	minted      *big.Int
	burnTracked *big.Int
}

// NewMemoryCreditLedger creates an empty credit ledger.
func NewMemoryCreditLedger() *MemoryCreditLedger {
	return &MemoryCreditLedger{
		balances:    make(map[common.Address]*big.Int),
		burnCredits: make(map[common.Address]*big.Int),
		minted:      new(big.Int),
		burnTracked: new(big.Int),
	}
}

// Mint implements CreditLedger.
func (l *MemoryCreditLedger) Mint(to common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[to] = add(l.balances[to], amount)
	l.minted.Add(l.minted, amount)
}

// RecordBurnCredit implements CreditLedger.
func (l *MemoryCreditLedger) RecordBurnCredit(account common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.burnCredits[account] = add(l.burnCredits[account], amount)
	l.burnTracked.Add(l.burnTracked, amount)
}

// BalanceOf returns the credit balance of an account.
func (l *MemoryCreditLedger) BalanceOf(account common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return get(l.balances[account])
}

// BurnCreditOf returns the burn-tracked credit of an account.
func (l *MemoryCreditLedger) BurnCreditOf(account common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return get(l.burnCredits[account])
}

// TotalMinted returns the sum of all minted credit.
func (l *MemoryCreditLedger) TotalMinted() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.minted)
}

// TotalBurnTracked returns the sum of all burn-tracked credit.
func (l *MemoryCreditLedger) TotalBurnTracked() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.burnTracked)
}

// MemoryVault is an in-memory value vault. Deposited value moves from
// account balances into a single escrow pool and back out on payouts.
type MemoryVault struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
	escrow   *big.Int

	// PayoutHook, when set, runs before every payout and may veto it by
	// returning an error. Tests use it to simulate transfer failures
	// and reentrant call-ins.
	PayoutHook func(to common.Address, amount *big.Int) error
}

// NewMemoryVault creates an empty vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{
		balances: make(map[common.Address]*big.Int),
		escrow:   new(big.Int),
	}
}

// Fund credits free value to an account, outside of escrow.
func (v *MemoryVault) Fund(account common.Address, amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[account] = add(v.balances[account], amount)
}

// Collect implements ValueVault.
func (v *MemoryVault) Collect(from common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	bal := get(v.balances[from])
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	v.balances[from] = bal.Sub(bal, amount)
	v.escrow.Add(v.escrow, amount)
	return nil
}

// Payout implements ValueVault.
func (v *MemoryVault) Payout(to common.Address, amount *big.Int) error {
	if v.PayoutHook != nil {
		if err := v.PayoutHook(to, amount); err != nil {
			return err
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.escrow.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	v.escrow.Sub(v.escrow, amount)
	v.balances[to] = add(v.balances[to], amount)
	return nil
}

// BalanceOf returns the free (non-escrowed) value of an account.
func (v *MemoryVault) BalanceOf(account common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return get(v.balances[account])
}

// Escrowed returns the total value held in escrow.
func (v *MemoryVault) Escrowed() *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.escrow)
}

func add(cur, amount *big.Int) *big.Int {
	if cur == nil {
		return new(big.Int).Set(amount)
	}
	return cur.Add(cur, amount)
}

func get(cur *big.Int) *big.Int {
	if cur == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(cur)
}
