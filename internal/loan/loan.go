package loan

import (
	"SynthLoans/internal/fixed"

	"github.com/google/uuid"
)

// Loan is one open (or historical) collateralized-debt position.
// Fields follow the lifecycle: created by open, mutated by every other
// operation after an interest accrual, terminated by close or by a
// liquidation that extinguishes the principal.
type Loan struct {
	// ID is unique per account, assigned monotonically by the Book.
	ID uint64

	// Account owns the loan.
	Account uuid.UUID

	// Collateral is the amount of the locked asset, in that asset's units.
	Collateral fixed.Dec

	// Currency is the synthetic currency borrowed (or shorted).
	Currency string

	// Principal is the amount of Currency owed, excluding interest.
	Principal fixed.Dec

	// AccruedInterest is owed on top of Principal; repayments target it
	// first so the two are tracked separately.
	AccruedInterest fixed.Dec

	// LastInteraction is the unix timestamp of the last accrual.
	LastInteraction int64

	// IsShort marks a position whose debt is denominated in a foreign
	// currency against stablecoin collateral.
	IsShort bool

	// Open is false once the loan is closed or fully liquidated; a
	// closed loan is immutable and excluded from all aggregates.
	Open bool
}

// Debt returns principal + accrued interest, in units of Currency.
func (l *Loan) Debt() fixed.Dec {
	return l.Principal.Add(l.AccruedInterest)
}

// Clone returns an independent copy. Engines mutate a clone and swap it
// in only when the whole operation commits.
func (l *Loan) Clone() *Loan {
	c := *l
	return &c
}
