package loan

import "errors"

// Named failure conditions shared by the engines and the manager.
// Every operation that fails does so with exactly one of these wrapped
// in context; no partial effects are ever committed alongside an error.
var (
	// ErrUnauthorized rejects a non-administrator calling an admin-only
	// operation, or an unregistered engine reporting exposure.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMustBePositive rejects a zero or negative parameter where a
	// strictly positive value is required.
	ErrMustBePositive = errors.New("must be positive")

	// ErrInvalidCollateralRatio rejects an open whose initial ratio is
	// below the minimum.
	ErrInvalidCollateralRatio = errors.New("invalid collateral ratio")

	// ErrDrawTooMuch rejects a draw that would breach the minimum ratio.
	ErrDrawTooMuch = errors.New("draw too much")

	// ErrBelowMinCollateralRatio rejects a withdrawal that would breach
	// the minimum ratio.
	ErrBelowMinCollateralRatio = errors.New("below minimum collateral ratio")

	// ErrDebtCeilingExceeded rejects a debt increase that would push the
	// system past maxDebt.
	ErrDebtCeilingExceeded = errors.New("debt ceiling exceeded")

	// ErrNotLiquidatable rejects liquidation of a healthy loan.
	ErrNotLiquidatable = errors.New("not liquidatable")

	// ErrTooSoon rejects a withdrawal inside the interaction delay.
	ErrTooSoon = errors.New("too soon after last interaction")

	// ErrInsufficientBalance is surfaced from the currency capability.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientAllowance is surfaced from the currency capability.
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// ErrInvalidRate rejects any ratio-dependent operation when the
	// oracle price for an involved currency is stale or unset.
	ErrInvalidRate = errors.New("invalid or stale rate")

	// ErrSystemPaused rejects mutations while the system is suspended.
	ErrSystemPaused = errors.New("system paused")

	// ErrReentrant rejects a nested invocation on an engine that already
	// has an operation in flight.
	ErrReentrant = errors.New("reentrant engine operation")

	// ErrLoanNotFound rejects an operation on an unknown (account, id).
	ErrLoanNotFound = errors.New("loan not found")

	// ErrLoanClosed rejects mutation of a closed loan.
	ErrLoanClosed = errors.New("loan closed")

	// ErrUnsupportedCurrency rejects borrowing a currency the engine does
	// not issue.
	ErrUnsupportedCurrency = errors.New("unsupported currency")

	// ErrBelowMinimumSize rejects an open below the engine's minimum
	// borrow size.
	ErrBelowMinimumSize = errors.New("below minimum loan size")
)
