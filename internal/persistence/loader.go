package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

// Loader reads durable state back at startup. Open loans go into the
// engines' books; aggregates are restored on the manager before any
// operation is served.
type Loader struct {
	db *sql.DB
}

func NewLoader(db *sql.DB) *Loader {
	return &Loader{db: db}
}

// LoadOpenLoans returns every open loan row, keyed by engine.
func (l *Loader) LoadOpenLoans(ctx context.Context) (map[string][]LoanRow, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT engine_id, account, loan_id, currency, collateral::TEXT, principal::TEXT,
		       accrued_interest::TEXT, last_interaction, is_short, open
		FROM loans.loans
		WHERE open
		ORDER BY engine_id, account, loan_id`)
	if err != nil {
		return nil, fmt.Errorf("load open loans: %w", err)
	}
	defer rows.Close()

	byEngine := make(map[string][]LoanRow)
	for rows.Next() {
		var r LoanRow
		var loanID int64
		if err := rows.Scan(
			&r.EngineID, &r.Account, &loanID, &r.Currency,
			&r.Collateral, &r.Principal, &r.AccruedInterest,
			&r.LastInteraction, &r.IsShort, &r.Open,
		); err != nil {
			return nil, fmt.Errorf("scan loan row: %w", err)
		}
		r.LoanID = uint64(loanID)
		byEngine[r.EngineID] = append(byEngine[r.EngineID], r)
	}
	return byEngine, rows.Err()
}

// LoadAggregates returns every stored (currency, side) aggregate.
func (l *Loader) LoadAggregates(ctx context.Context) ([]AggregateRow, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT currency, is_short, amount::TEXT
		FROM loans.aggregates`)
	if err != nil {
		return nil, fmt.Errorf("load aggregates: %w", err)
	}
	defer rows.Close()

	var out []AggregateRow
	for rows.Next() {
		var r AggregateRow
		if err := rows.Scan(&r.Currency, &r.IsShort, &r.Amount); err != nil {
			return nil, fmt.Errorf("scan aggregate row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
