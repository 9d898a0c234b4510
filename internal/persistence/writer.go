package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"SynthLoans/internal/fixed"
	"SynthLoans/internal/loan"

	"github.com/google/uuid"
)

// LoanRow is one row in loans.loans — the latest committed state of a
// loan. Amounts are stored as raw 18-digit base units in NUMERIC(78,0)
// so no precision is lost round-tripping the database.
type LoanRow struct {
	EngineID        string
	Account         uuid.UUID
	LoanID          uint64
	Currency        string
	Collateral      string // raw base units
	Principal       string
	AccruedInterest string
	LastInteraction int64
	IsShort         bool
	Open            bool
}

// NewLoanRow snapshots a committed loan for storage.
func NewLoanRow(engineID string, l *loan.Loan) LoanRow {
	return LoanRow{
		EngineID:        engineID,
		Account:         l.Account,
		LoanID:          l.ID,
		Currency:        l.Currency,
		Collateral:      l.Collateral.RawString(),
		Principal:       l.Principal.RawString(),
		AccruedInterest: l.AccruedInterest.RawString(),
		LastInteraction: l.LastInteraction,
		IsShort:         l.IsShort,
		Open:            l.Open,
	}
}

// ToLoan rebuilds the domain loan from a stored row.
func (r LoanRow) ToLoan() (*loan.Loan, error) {
	collateral, err := fixed.ParseRaw(r.Collateral)
	if err != nil {
		return nil, fmt.Errorf("loan %s/%d collateral: %w", r.Account, r.LoanID, err)
	}
	principal, err := fixed.ParseRaw(r.Principal)
	if err != nil {
		return nil, fmt.Errorf("loan %s/%d principal: %w", r.Account, r.LoanID, err)
	}
	interest, err := fixed.ParseRaw(r.AccruedInterest)
	if err != nil {
		return nil, fmt.Errorf("loan %s/%d interest: %w", r.Account, r.LoanID, err)
	}
	return &loan.Loan{
		ID:              r.LoanID,
		Account:         r.Account,
		Collateral:      collateral,
		Currency:        r.Currency,
		Principal:       principal,
		AccruedInterest: interest,
		LastInteraction: r.LastInteraction,
		IsShort:         r.IsShort,
		Open:            r.Open,
	}, nil
}

// AggregateRow is one row in loans.aggregates — per (currency, side)
// open interest.
type AggregateRow struct {
	Currency string
	IsShort  bool
	Amount   string // raw base units
}

// Writer upserts loan and aggregate state using multi-row INSERT ... ON
// CONFLICT DO UPDATE. Rows carry the latest state, so replaying a batch
// is harmless.
type Writer struct {
	db *sql.DB
}

func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

func (w *Writer) UpsertLoans(ctx context.Context, tx *sql.Tx, rows []LoanRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO loans.loans
		(engine_id, account, loan_id, currency, collateral, principal, accrued_interest, last_interaction, is_short, open, updated_at)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*11)
	now := time.Now().UTC()

	for i, r := range rows {
		base := i * 11
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10, base+11,
		))
		args = append(args,
			r.EngineID, r.Account, int64(r.LoanID), r.Currency,
			r.Collateral, r.Principal, r.AccruedInterest,
			r.LastInteraction, r.IsShort, r.Open, now,
		)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (engine_id, account, loan_id) DO UPDATE SET
		collateral = EXCLUDED.collateral,
		principal = EXCLUDED.principal,
		accrued_interest = EXCLUDED.accrued_interest,
		last_interaction = EXCLUDED.last_interaction,
		open = EXCLUDED.open,
		updated_at = EXCLUDED.updated_at`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func (w *Writer) UpsertAggregates(ctx context.Context, tx *sql.Tx, rows []AggregateRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO loans.aggregates
		(currency, is_short, amount, updated_at)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*4)
	now := time.Now().UTC()

	for i, r := range rows {
		base := i * 4
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4))
		args = append(args, r.Currency, r.IsShort, r.Amount, now)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (currency, is_short) DO UPDATE SET
		amount = EXCLUDED.amount,
		updated_at = EXCLUDED.updated_at`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
