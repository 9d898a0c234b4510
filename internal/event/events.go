package event

import (
	"SynthLoans/internal/fixed"

	"github.com/google/uuid"
)

// Type discriminates notification payloads.
type Type int32

const (
	TypeUnknown Type = iota
	TypeLoanCreated
	TypeCollateralDeposited
	TypeCollateralWithdrawn
	TypeLoanDrawnDown
	TypeLoanRepaid
	TypeLoanClosed
	TypeLoanPartiallyLiquidated
	TypeLoanLiquidated
)

func (t Type) String() string {
	switch t {
	case TypeLoanCreated:
		return "LoanCreated"
	case TypeCollateralDeposited:
		return "CollateralDeposited"
	case TypeCollateralWithdrawn:
		return "CollateralWithdrawn"
	case TypeLoanDrawnDown:
		return "LoanDrawnDown"
	case TypeLoanRepaid:
		return "LoanRepaid"
	case TypeLoanClosed:
		return "LoanClosed"
	case TypeLoanPartiallyLiquidated:
		return "LoanPartiallyLiquidated"
	case TypeLoanLiquidated:
		return "LoanLiquidated"
	default:
		return "Unknown"
	}
}

// Event is a read-only notification emitted on successful completion of
// a loan operation. Observability only — never control flow.
type Event interface {
	EventType() Type
	LoanCurrency() string
}

type LoanCreated struct {
	Engine     string    `json:"engine"`
	Account    uuid.UUID `json:"account"`
	ID         uint64    `json:"id"`
	Amount     fixed.Dec `json:"amount"`
	Collateral fixed.Dec `json:"collateral"`
	Currency   string    `json:"currency"`
	IsShort    bool      `json:"is_short"`
}

func (e LoanCreated) EventType() Type      { return TypeLoanCreated }
func (e LoanCreated) LoanCurrency() string { return e.Currency }

type CollateralDeposited struct {
	Engine          string    `json:"engine"`
	Account         uuid.UUID `json:"account"`
	ID              uint64    `json:"id"`
	Amount          fixed.Dec `json:"amount"`
	CollateralAfter fixed.Dec `json:"collateral_after"`
	Currency        string    `json:"currency"`
}

func (e CollateralDeposited) EventType() Type      { return TypeCollateralDeposited }
func (e CollateralDeposited) LoanCurrency() string { return e.Currency }

type CollateralWithdrawn struct {
	Engine          string    `json:"engine"`
	Account         uuid.UUID `json:"account"`
	ID              uint64    `json:"id"`
	Amount          fixed.Dec `json:"amount"`
	CollateralAfter fixed.Dec `json:"collateral_after"`
	Currency        string    `json:"currency"`
}

func (e CollateralWithdrawn) EventType() Type      { return TypeCollateralWithdrawn }
func (e CollateralWithdrawn) LoanCurrency() string { return e.Currency }

type LoanDrawnDown struct {
	Engine         string    `json:"engine"`
	Account        uuid.UUID `json:"account"`
	ID             uint64    `json:"id"`
	Amount         fixed.Dec `json:"amount"`
	PrincipalAfter fixed.Dec `json:"principal_after"`
	Currency       string    `json:"currency"`
}

func (e LoanDrawnDown) EventType() Type      { return TypeLoanDrawnDown }
func (e LoanDrawnDown) LoanCurrency() string { return e.Currency }

type LoanRepaid struct {
	Engine    string    `json:"engine"`
	Account   uuid.UUID `json:"account"`
	ID        uint64    `json:"id"`
	Payer     uuid.UUID `json:"payer"`
	Amount    fixed.Dec `json:"amount"`
	DebtAfter fixed.Dec `json:"debt_after"`
	Currency  string    `json:"currency"`
}

func (e LoanRepaid) EventType() Type      { return TypeLoanRepaid }
func (e LoanRepaid) LoanCurrency() string { return e.Currency }

type LoanClosed struct {
	Engine   string    `json:"engine"`
	Account  uuid.UUID `json:"account"`
	ID       uint64    `json:"id"`
	Currency string    `json:"currency"`
}

func (e LoanClosed) EventType() Type      { return TypeLoanClosed }
func (e LoanClosed) LoanCurrency() string { return e.Currency }

type LoanPartiallyLiquidated struct {
	Engine               string    `json:"engine"`
	Account              uuid.UUID `json:"account"`
	ID                   uint64    `json:"id"`
	Liquidator           uuid.UUID `json:"liquidator"`
	AmountLiquidated     fixed.Dec `json:"amount_liquidated"`
	CollateralLiquidated fixed.Dec `json:"collateral_liquidated"`
	Currency             string    `json:"currency"`
}

func (e LoanPartiallyLiquidated) EventType() Type      { return TypeLoanPartiallyLiquidated }
func (e LoanPartiallyLiquidated) LoanCurrency() string { return e.Currency }

type LoanLiquidated struct {
	Engine               string    `json:"engine"`
	Account              uuid.UUID `json:"account"`
	ID                   uint64    `json:"id"`
	Liquidator           uuid.UUID `json:"liquidator"`
	AmountLiquidated     fixed.Dec `json:"amount_liquidated"`
	CollateralLiquidated fixed.Dec `json:"collateral_liquidated"`
	Currency             string    `json:"currency"`
}

func (e LoanLiquidated) EventType() Type      { return TypeLoanLiquidated }
func (e LoanLiquidated) LoanCurrency() string { return e.Currency }

// Notifier receives events after an operation commits.
type Notifier interface {
	Notify(evt Event)
}

// Recorder collects events in memory. Test substitute for the NATS
// publisher.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Notify(evt Event) {
	r.Events = append(r.Events, evt)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Notify(Event) {}
