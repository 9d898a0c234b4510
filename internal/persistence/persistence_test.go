package persistence_test

import (
	"context"
	"testing"
	"time"

	"SynthLoans/internal/fixed"
	"SynthLoans/internal/loan"
	"SynthLoans/internal/persistence"
	"SynthLoans/internal/testutil"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestLoanRowRoundTrip(t *testing.T) {
	original := &loan.Loan{
		ID:              3,
		Account:         uuid.New(),
		Collateral:      fixed.MustParse("130.5"),
		Currency:        "sBTC",
		Principal:       fixed.One(),
		AccruedInterest: fixed.MustParse("0.333333333333333333"),
		LastInteraction: 1_700_000_000,
		IsShort:         true,
		Open:            true,
	}

	row := persistence.NewLoanRow("loans-short", original)
	if row.Collateral != "130500000000000000000" {
		t.Errorf("raw collateral: got %s", row.Collateral)
	}

	restored, err := row.ToLoan()
	if err != nil {
		t.Fatalf("ToLoan: %v", err)
	}
	if restored.ID != original.ID || restored.Account != original.Account {
		t.Errorf("identity: got %d/%s", restored.ID, restored.Account)
	}
	if !restored.Collateral.Equal(original.Collateral) ||
		!restored.Principal.Equal(original.Principal) ||
		!restored.AccruedInterest.Equal(original.AccruedInterest) {
		t.Errorf("amounts: got %+v", restored)
	}
	if restored.LastInteraction != original.LastInteraction ||
		restored.IsShort != original.IsShort || !restored.Open {
		t.Errorf("flags: got %+v", restored)
	}
}

func TestLoanRowRejectsCorruptAmount(t *testing.T) {
	row := persistence.LoanRow{
		Account:    uuid.New(),
		Collateral: "not-a-number",
		Principal:  "0",
	}
	if _, err := row.ToLoan(); err == nil {
		t.Error("corrupt raw amount should not parse")
	}
}

func TestWorkerFlushAndLoaderRestore(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	migrator := persistence.NewMigrator(db, "../../migrations", zerolog.Nop())
	if err := migrator.Up(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	worker := persistence.NewWorker(db, 64, 100, 10*time.Millisecond, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	account := uuid.New()
	open := &loan.Loan{
		ID:              1,
		Account:         account,
		Collateral:      fixed.FromInt64(130),
		Currency:        "sBTC",
		Principal:       fixed.One(),
		AccruedInterest: fixed.MustParse("0.1"),
		LastInteraction: 1_700_000_000,
		Open:            true,
	}
	closed := &loan.Loan{ID: 2, Account: account, Currency: "sETH", Open: false}

	worker.EnqueueLoan("loans-native", open)
	worker.EnqueueLoan("loans-native", closed)
	// Two writes for the same key coalesce to the latest state.
	worker.EnqueueAggregate("sBTC", false, fixed.FromInt64(5))
	worker.EnqueueAggregate("sBTC", false, fixed.MustParse("1.1"))

	// Cancellation forces the final flush.
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	loader := persistence.NewLoader(db)
	byEngine, err := loader.LoadOpenLoans(context.Background())
	if err != nil {
		t.Fatalf("LoadOpenLoans: %v", err)
	}
	rows := byEngine["loans-native"]
	if len(rows) != 1 {
		t.Fatalf("open rows: got %d, want 1 (closed loans are not restored)", len(rows))
	}
	restored, err := rows[0].ToLoan()
	if err != nil {
		t.Fatalf("ToLoan: %v", err)
	}
	if restored.ID != 1 || !restored.Collateral.Equal(fixed.FromInt64(130)) ||
		!restored.AccruedInterest.Equal(fixed.MustParse("0.1")) {
		t.Errorf("restored loan: %+v", restored)
	}

	aggregates, err := loader.LoadAggregates(context.Background())
	if err != nil {
		t.Fatalf("LoadAggregates: %v", err)
	}
	if len(aggregates) != 1 {
		t.Fatalf("aggregates: got %d, want 1", len(aggregates))
	}
	amount, err := fixed.ParseRaw(aggregates[0].Amount)
	if err != nil {
		t.Fatalf("parse aggregate: %v", err)
	}
	if !amount.Equal(fixed.MustParse("1.1")) {
		t.Errorf("coalesced aggregate: got %s, want 1.1", amount)
	}
}

func TestUpsertOverwritesPriorState(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	migrator := persistence.NewMigrator(db, "../../migrations", zerolog.Nop())
	if err := migrator.Up(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	writer := persistence.NewWriter(db)
	account := uuid.New()
	write := func(principal string, open bool) {
		t.Helper()
		tx, err := db.Begin()
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		row := persistence.NewLoanRow("loans-native", &loan.Loan{
			ID: 1, Account: account, Currency: "sBTC",
			Principal: fixed.MustParse(principal), Open: open,
		})
		if err := writer.UpsertLoans(context.Background(), tx, []persistence.LoanRow{row}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	write("10", true)
	write("4", true)
	write("0", false)

	loader := persistence.NewLoader(db)
	byEngine, err := loader.LoadOpenLoans(context.Background())
	if err != nil {
		t.Fatalf("LoadOpenLoans: %v", err)
	}
	if len(byEngine["loans-native"]) != 0 {
		t.Errorf("closed loan should no longer load: %+v", byEngine)
	}
}
