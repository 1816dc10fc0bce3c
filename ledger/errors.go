package ledger

import (
	"errors"

	"github.com/rony4d/go-allowance-ledger/inter"
)

// Errors returned by the allocation engine. Every one of them is a hard
// failure: the call aborts with no ledger mutation.
var (
	// ErrNotAdmin rejects curve updates from anyone but the
	// administrator.
	ErrNotAdmin = errors.New("ledger: caller is not the administrator")

	// ErrNotAuthorized rejects claim/withdraw calls from accounts that
	// are neither the entitlement's owner nor an approved delegate.
	ErrNotAuthorized = errors.New("ledger: caller is not owner or delegate")

	// ErrReentrantCall rejects a nested call into the engine while
	// another operation is still in progress.
	ErrReentrantCall = errors.New("ledger: reentrant call")

	// ErrPastEpoch rejects claims and buys targeting an epoch that has
	// already elapsed.
	ErrPastEpoch = errors.New("ledger: epoch already elapsed")

	// ErrFutureEpoch rejects settles and withdrawals targeting an
	// epoch that has not started yet.
	ErrFutureEpoch = errors.New("ledger: epoch not started")

	// ErrWrongHeight rejects a curve update pinned to a height other
	// than the current one.
	ErrWrongHeight = errors.New("ledger: update pinned to a different height")

	// ErrZeroDuration rejects claims over an empty window.
	ErrZeroDuration = errors.New("ledger: claim duration is zero")

	// ErrZeroDeposit rejects buys without value attached.
	ErrZeroDeposit = errors.New("ledger: deposit is zero")

	// ErrRateTooSmall rejects deposits too small to spread over the
	// remaining blocks of the epoch.
	ErrRateTooSmall = errors.New("ledger: deposit too small for a nonzero rate")

	// ErrNothingToBuy rejects buys into an epoch whose allowance
	// window computes to zero.
	ErrNothingToBuy = errors.New("ledger: no allowance to buy in epoch")

	// ErrWindowExceeded rejects claims that would consume more than
	// the epoch's allowance window.
	ErrWindowExceeded = inter.ErrWindowExceeded

	// ErrSupplyExhausted rejects claims whose amount no longer fits
	// the epoch's remaining unallocated supply.
	ErrSupplyExhausted = errors.New("ledger: epoch allowance supply exhausted")
)
