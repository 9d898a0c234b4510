package engine

import (
	"errors"
	"fmt"
	"time"

	"SynthLoans/internal/event"
	"SynthLoans/internal/fixed"
	"SynthLoans/internal/guard"
	"SynthLoans/internal/loan"
	"SynthLoans/internal/manager"
	"SynthLoans/internal/observability"
	"SynthLoans/internal/oracle"
	"SynthLoans/internal/rates"
	"SynthLoans/internal/synth"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Variant selects the position flavor an Engine serves.
type Variant int

const (
	VariantNativeCollateral Variant = iota
	VariantTokenCollateral
	VariantShort
)

func (v Variant) String() string {
	switch v {
	case VariantNativeCollateral:
		return "native"
	case VariantTokenCollateral:
		return "token"
	case VariantShort:
		return "short"
	default:
		return "unknown"
	}
}

// Clock supplies the accrual timestamp. The engine never reads
// wall-clock time directly.
type Clock interface {
	Now() int64
}

// SystemClock is the production clock.
type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().Unix() }

// CollateralAsset is the custody surface for the locked asset.
// CanPull is checked during validation so that Pull cannot fail once an
// operation starts committing; nothing interleaves under the ledger
// lock between the two.
type CollateralAsset interface {
	CanPull(account uuid.UUID, amount fixed.Dec) error
	Pull(account uuid.UUID, amount fixed.Dec) error
	Release(account uuid.UUID, amount fixed.Dec) error
}

// LoanSink receives committed loan states for durable storage.
type LoanSink interface {
	EnqueueLoan(engineID string, l *loan.Loan)
}

// Config carries an engine's static parameters.
type Config struct {
	// ID is the engine's identifier in the manager's registry.
	ID string

	Variant Variant

	// CollateralCurrency keys the oracle price of the locked asset.
	CollateralCurrency string

	// MinCollateralRatio is the health threshold (e.g. 1.5).
	MinCollateralRatio fixed.Dec

	// MinSize is the smallest borrowable amount.
	MinSize fixed.Dec

	// LiquidationPenalty is the extra collateral fraction seized per
	// unit of debt repaid by a liquidator (e.g. 0.1).
	LiquidationPenalty fixed.Dec

	// InteractionDelay rate-limits withdrawals, in seconds.
	InteractionDelay int64
}

// Deps are the injected collaborators shared by all variants.
type Deps struct {
	Book     *loan.Book
	Manager  *manager.Manager
	Oracle   oracle.Oracle
	Guard    guard.Guard
	Clock    Clock
	Issuers  map[string]synth.Issuer // per borrowable currency
	Stable   synth.Issuer            // reference currency, short proceeds
	Notifier event.Notifier
	Sink     LoanSink
	Log      zerolog.Logger
	Metrics  *observability.Metrics
}

// Engine runs the loan lifecycle state machine for one position
// variant. All state-mutating operations execute inside the manager's
// Serialize, validate completely, then commit; a failed operation
// leaves every piece of state untouched. Exposure deltas reported to
// the manager are computed as debt-after minus debt-before, so the
// aggregate invariant holds operation by operation.
type Engine struct {
	cfg        Config
	book       *loan.Book
	manager    *manager.Manager
	oracle     oracle.Oracle
	guard      guard.Guard
	clock      Clock
	collateral CollateralAsset
	issuers    map[string]synth.Issuer
	stable     synth.Issuer
	notifier   event.Notifier
	sink       LoanSink
	log        zerolog.Logger
	metrics    *observability.Metrics

	// inFlight guards against reentrant invocation; only ever touched
	// under the manager lock.
	inFlight bool
}

func newEngine(cfg Config, asset CollateralAsset, deps Deps) *Engine {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Notifier == nil {
		deps.Notifier = event.Discard{}
	}
	return &Engine{
		cfg:        cfg,
		book:       deps.Book,
		manager:    deps.Manager,
		oracle:     deps.Oracle,
		guard:      deps.Guard,
		clock:      deps.Clock,
		collateral: asset,
		issuers:    deps.Issuers,
		stable:     deps.Stable,
		notifier:   deps.Notifier,
		sink:       deps.Sink,
		log:        deps.Log,
		metrics:    deps.Metrics,
	}
}

// ID returns the engine's registry identifier.
func (e *Engine) ID() string { return e.cfg.ID }

// run executes one operation under the global ledger lock with the
// reentrancy guard and the pause check applied.
func (e *Engine) run(op string, fn func(now int64) error) error {
	// A reentrant call arrives on the goroutine already holding the
	// ledger lock; checking before Serialize turns a deadlock into the
	// named error.
	if e.inFlight {
		return fmt.Errorf("engine %s op %s: %w", e.cfg.ID, op, loan.ErrReentrant)
	}

	start := time.Now()
	err := e.manager.Serialize(func() error {
		if e.inFlight {
			return fmt.Errorf("engine %s op %s: %w", e.cfg.ID, op, loan.ErrReentrant)
		}
		e.inFlight = true
		defer func() { e.inFlight = false }()

		if e.guard.IsPaused() {
			return fmt.Errorf("engine %s op %s: %w", e.cfg.ID, op, loan.ErrSystemPaused)
		}
		return fn(e.clock.Now())
	})

	if e.metrics != nil {
		if err != nil {
			e.metrics.LoanOpsRejected.WithLabelValues(e.cfg.ID, op, reason(err)).Inc()
		} else {
			e.metrics.LoanOpsApplied.WithLabelValues(e.cfg.ID, op).Inc()
			e.metrics.LoanOpDuration.WithLabelValues(e.cfg.ID, op).Observe(time.Since(start).Seconds())
		}
	}
	return err
}

// Open creates a loan: locks collateralIn, issues borrowAmount of
// currency (shorts issue the reference currency instead), and reports
// the new exposure to the manager.
func (e *Engine) Open(account uuid.UUID, collateralIn, borrowAmount fixed.Dec, currency string) (created *loan.Loan, err error) {
	err = e.run("open", func(now int64) error {
		if !collateralIn.IsPositive() || !borrowAmount.IsPositive() {
			return fmt.Errorf("open: amounts %s/%s: %w", collateralIn, borrowAmount, loan.ErrMustBePositive)
		}
		if err := e.checkBorrowable(currency); err != nil {
			return err
		}
		if borrowAmount.LessThan(e.cfg.MinSize) {
			return fmt.Errorf("open: %s < minimum %s: %w", borrowAmount, e.cfg.MinSize, loan.ErrBelowMinimumSize)
		}
		if err := e.requireValidRates(currency); err != nil {
			return err
		}

		ratio := e.collateralRatio(collateralIn, borrowAmount, currency)
		if ratio.LessThan(e.cfg.MinCollateralRatio) {
			return fmt.Errorf("open: ratio %s < minimum %s: %w",
				ratio, e.cfg.MinCollateralRatio, loan.ErrInvalidCollateralRatio)
		}
		if err := e.collateral.CanPull(account, collateralIn); err != nil {
			return fmt.Errorf("open: %w", err)
		}

		if err := e.manager.ReportExposureChange(
			e.cfg.ID, currency, e.isShort(), borrowAmount, manager.ChangeOpen,
		); err != nil {
			return fmt.Errorf("open: %w", err)
		}

		// Committed from here on; nothing below can fail.
		if err := e.collateral.Pull(account, collateralIn); err != nil {
			panic(fmt.Sprintf("collateral pull failed after CanPull: %v", err))
		}

		created = &loan.Loan{
			ID:              e.book.NextID(account),
			Account:         account,
			Collateral:      collateralIn,
			Currency:        currency,
			Principal:       borrowAmount,
			AccruedInterest: fixed.Zero(),
			LastInteraction: now,
			IsShort:         e.isShort(),
			Open:            true,
		}
		e.book.Put(created)
		e.issueProceeds(account, borrowAmount, currency)
		e.commit(created, event.LoanCreated{
			Engine:     e.cfg.ID,
			Account:    account,
			ID:         created.ID,
			Amount:     borrowAmount,
			Collateral: collateralIn,
			Currency:   currency,
			IsShort:    created.IsShort,
		})
		return nil
	})
	return created, err
}

// Deposit adds collateral to an open loan.
func (e *Engine) Deposit(account uuid.UUID, id uint64, amount fixed.Dec) error {
	return e.run("deposit", func(now int64) error {
		if !amount.IsPositive() {
			return fmt.Errorf("deposit: amount %s: %w", amount, loan.ErrMustBePositive)
		}
		working, err := e.workingCopy(account, id)
		if err != nil {
			return err
		}
		accrual := e.accrue(working, now)

		if err := e.collateral.CanPull(account, amount); err != nil {
			return fmt.Errorf("deposit: %w", err)
		}
		if err := e.reportDelta(working, accrual, manager.ChangeAccrual); err != nil {
			return err
		}

		if err := e.collateral.Pull(account, amount); err != nil {
			panic(fmt.Sprintf("collateral pull failed after CanPull: %v", err))
		}
		working.Collateral = working.Collateral.Add(amount)
		e.commit(working, event.CollateralDeposited{
			Engine:          e.cfg.ID,
			Account:         account,
			ID:              id,
			Amount:          amount,
			CollateralAfter: working.Collateral,
			Currency:        working.Currency,
		})
		return nil
	})
}

// Withdraw removes collateral, subject to the interaction delay and the
// minimum ratio.
func (e *Engine) Withdraw(account uuid.UUID, id uint64, amount fixed.Dec) error {
	return e.run("withdraw", func(now int64) error {
		if !amount.IsPositive() {
			return fmt.Errorf("withdraw: amount %s: %w", amount, loan.ErrMustBePositive)
		}
		working, err := e.workingCopy(account, id)
		if err != nil {
			return err
		}
		if now-working.LastInteraction < e.cfg.InteractionDelay {
			return fmt.Errorf("withdraw: %ds since last interaction, need %ds: %w",
				now-working.LastInteraction, e.cfg.InteractionDelay, loan.ErrTooSoon)
		}
		if err := e.requireValidRates(working.Currency); err != nil {
			return err
		}

		accrual := e.accrue(working, now)
		if working.Collateral.LessThan(amount) {
			return fmt.Errorf("withdraw: %s > collateral %s: %w",
				amount, working.Collateral, loan.ErrInsufficientBalance)
		}

		remaining := working.Collateral.Sub(amount)
		ratio := e.collateralRatio(remaining, working.Debt(), working.Currency)
		if ratio.LessThan(e.cfg.MinCollateralRatio) {
			return fmt.Errorf("withdraw: resulting ratio %s < minimum %s: %w",
				ratio, e.cfg.MinCollateralRatio, loan.ErrBelowMinCollateralRatio)
		}
		if err := e.reportDelta(working, accrual, manager.ChangeAccrual); err != nil {
			return err
		}

		working.Collateral = remaining
		e.collateral.Release(account, amount)
		e.commit(working, event.CollateralWithdrawn{
			Engine:          e.cfg.ID,
			Account:         account,
			ID:              id,
			Amount:          amount,
			CollateralAfter: working.Collateral,
			Currency:        working.Currency,
		})
		return nil
	})
}

// Draw increases the principal against existing collateral.
func (e *Engine) Draw(account uuid.UUID, id uint64, amount fixed.Dec) error {
	return e.run("draw", func(now int64) error {
		if !amount.IsPositive() {
			return fmt.Errorf("draw: amount %s: %w", amount, loan.ErrMustBePositive)
		}
		working, err := e.workingCopy(account, id)
		if err != nil {
			return err
		}
		if err := e.requireValidRates(working.Currency); err != nil {
			return err
		}

		accrual := e.accrue(working, now)
		newDebt := working.Debt().Add(amount)
		ratio := e.collateralRatio(working.Collateral, newDebt, working.Currency)
		if ratio.LessThan(e.cfg.MinCollateralRatio) {
			return fmt.Errorf("draw: resulting ratio %s < minimum %s: %w",
				ratio, e.cfg.MinCollateralRatio, loan.ErrDrawTooMuch)
		}

		// Accrual and draw report together so the ceiling sees the full
		// debt increase.
		delta := accrual.Add(amount)
		if err := e.manager.ReportExposureChange(
			e.cfg.ID, working.Currency, working.IsShort, delta, manager.ChangeDraw,
		); err != nil {
			return fmt.Errorf("draw: %w", err)
		}

		working.Principal = working.Principal.Add(amount)
		e.issueProceeds(account, amount, working.Currency)
		e.commit(working, event.LoanDrawnDown{
			Engine:         e.cfg.ID,
			Account:        account,
			ID:             id,
			Amount:         amount,
			PrincipalAfter: working.Principal,
			Currency:       working.Currency,
		})
		return nil
	})
}

// Repay burns up to amount of the debt currency from payer, reducing
// accrued interest first, then principal; principal never goes below
// zero.
func (e *Engine) Repay(payer, account uuid.UUID, id uint64, amount fixed.Dec) error {
	return e.run("repay", func(now int64) error {
		if !amount.IsPositive() {
			return fmt.Errorf("repay: amount %s: %w", amount, loan.ErrMustBePositive)
		}
		working, err := e.workingCopy(account, id)
		if err != nil {
			return err
		}
		accrual := e.accrue(working, now)

		toPay := fixed.Min(amount, working.Debt())
		issuer := e.issuers[working.Currency]
		if issuer.BalanceOf(payer).LessThan(toPay) {
			return fmt.Errorf("repay: payer balance %s < %s: %w",
				issuer.BalanceOf(payer), toPay, loan.ErrInsufficientBalance)
		}
		if err := e.reportDelta(working, accrual.Sub(toPay), manager.ChangeRepay); err != nil {
			return err
		}

		fromInterest := fixed.Min(toPay, working.AccruedInterest)
		working.AccruedInterest = working.AccruedInterest.Sub(fromInterest)
		working.Principal = working.Principal.Sub(toPay.Sub(fromInterest))
		if err := issuer.Burn(payer, toPay); err != nil {
			panic(fmt.Sprintf("burn failed after balance check: %v", err))
		}

		e.commit(working, event.LoanRepaid{
			Engine:    e.cfg.ID,
			Account:   account,
			ID:        id,
			Payer:     payer,
			Amount:    toPay,
			DebtAfter: working.Debt(),
			Currency:  working.Currency,
		})
		return nil
	})
}

// Close burns the full debt from the borrower, releases all collateral,
// and marks the loan closed.
func (e *Engine) Close(account uuid.UUID, id uint64) error {
	return e.run("close", func(now int64) error {
		working, err := e.workingCopy(account, id)
		if err != nil {
			return err
		}
		accrual := e.accrue(working, now)

		total := working.Debt()
		issuer := e.issuers[working.Currency]
		if issuer.BalanceOf(account).LessThan(total) {
			return fmt.Errorf("close: balance %s < debt %s: %w",
				issuer.BalanceOf(account), total, loan.ErrInsufficientBalance)
		}
		if err := e.reportDelta(working, accrual.Sub(total), manager.ChangeClose); err != nil {
			return err
		}

		if !total.IsZero() {
			if err := issuer.Burn(account, total); err != nil {
				panic(fmt.Sprintf("burn failed after balance check: %v", err))
			}
		}
		collateralOut := working.Collateral
		working.Principal = fixed.Zero()
		working.AccruedInterest = fixed.Zero()
		working.Collateral = fixed.Zero()
		working.Open = false
		e.collateral.Release(account, collateralOut)

		e.commit(working, event.LoanClosed{
			Engine:   e.cfg.ID,
			Account:  account,
			ID:       id,
			Currency: working.Currency,
		})
		return nil
	})
}

// Liquidate restores an unhealthy loan to the minimum ratio. The
// liquidator supplies debt currency (burned) and receives seized
// collateral including the penalty. Reaching zero principal closes the
// loan: residual interest is forgiven and leftover collateral returns
// to the borrower.
func (e *Engine) Liquidate(liquidator, account uuid.UUID, id uint64, maxAmount fixed.Dec) (liquidated fixed.Dec, err error) {
	err = e.run("liquidate", func(now int64) error {
		if !maxAmount.IsPositive() {
			return fmt.Errorf("liquidate: max amount %s: %w", maxAmount, loan.ErrMustBePositive)
		}
		working, err := e.workingCopy(account, id)
		if err != nil {
			return err
		}
		if err := e.requireValidRates(working.Currency); err != nil {
			return err
		}

		accrual := e.accrue(working, now)
		ratio := e.collateralRatio(working.Collateral, working.Debt(), working.Currency)
		if !ratio.LessThan(e.cfg.MinCollateralRatio) {
			return fmt.Errorf("liquidate: ratio %s >= minimum %s: %w",
				ratio, e.cfg.MinCollateralRatio, loan.ErrNotLiquidatable)
		}

		amount := e.liquidationAmount(working)
		amount = fixed.Min(fixed.Min(amount, maxAmount), working.Principal)
		if !amount.IsPositive() {
			return fmt.Errorf("liquidate: nothing to liquidate: %w", loan.ErrNotLiquidatable)
		}

		exRate := e.oracle.Rate(working.Currency)
		colRate := e.oracle.Rate(e.cfg.CollateralCurrency)
		seized := amount.Mul(exRate).Mul(fixed.One().Add(e.cfg.LiquidationPenalty)).Div(colRate)
		seized = fixed.Min(seized, working.Collateral)

		issuer := e.issuers[working.Currency]
		if issuer.BalanceOf(liquidator).LessThan(amount) {
			return fmt.Errorf("liquidate: liquidator balance %s < %s: %w",
				issuer.BalanceOf(liquidator), amount, loan.ErrInsufficientBalance)
		}

		newPrincipal := working.Principal.Sub(amount)
		full := newPrincipal.IsZero()

		// Full liquidation closes the loan, removing residual interest
		// from the aggregates along with the principal.
		delta := accrual.Sub(amount)
		if full {
			delta = delta.Sub(working.AccruedInterest)
		}
		if err := e.reportDelta(working, delta, manager.ChangeLiquidation); err != nil {
			return err
		}

		if err := issuer.Burn(liquidator, amount); err != nil {
			panic(fmt.Sprintf("burn failed after balance check: %v", err))
		}
		working.Principal = newPrincipal
		working.Collateral = working.Collateral.Sub(seized)
		e.collateral.Release(liquidator, seized)
		liquidated = amount

		if full {
			remainder := working.Collateral
			working.Collateral = fixed.Zero()
			working.AccruedInterest = fixed.Zero()
			working.Open = false
			if !remainder.IsZero() {
				e.collateral.Release(account, remainder)
			}
			if e.metrics != nil {
				e.metrics.LoansLiquidated.WithLabelValues(e.cfg.ID, "full").Inc()
				e.metrics.CollateralLiquidated.WithLabelValues(e.cfg.ID).Add(seized.Float64())
			}
			e.commit(working, event.LoanLiquidated{
				Engine:               e.cfg.ID,
				Account:              account,
				ID:                   id,
				Liquidator:           liquidator,
				AmountLiquidated:     amount,
				CollateralLiquidated: seized,
				Currency:             working.Currency,
			})
			return nil
		}

		if e.metrics != nil {
			e.metrics.LoansLiquidated.WithLabelValues(e.cfg.ID, "partial").Inc()
			e.metrics.CollateralLiquidated.WithLabelValues(e.cfg.ID).Add(seized.Float64())
		}
		e.commit(working, event.LoanPartiallyLiquidated{
			Engine:               e.cfg.ID,
			Account:              account,
			ID:                   id,
			Liquidator:           liquidator,
			AmountLiquidated:     amount,
			CollateralLiquidated: seized,
			Currency:             working.Currency,
		})
		return nil
	})
	return liquidated, err
}

// --- reads ---

// Loan returns a copy of the loan for (account, id), or nil.
func (e *Engine) Loan(account uuid.UUID, id uint64) *loan.Loan {
	var result *loan.Loan
	e.manager.Serialize(func() error {
		if l := e.book.Get(account, id); l != nil {
			result = l.Clone()
		}
		return nil
	})
	return result
}

// AccountLoans returns copies of every loan held by an account.
func (e *Engine) AccountLoans(account uuid.UUID) []*loan.Loan {
	var result []*loan.Loan
	e.manager.Serialize(func() error {
		for _, l := range e.book.AccountLoans(account) {
			result = append(result, l.Clone())
		}
		return nil
	})
	return result
}

// OpenLoans returns copies of every open loan on this engine.
func (e *Engine) OpenLoans() []*loan.Loan {
	var result []*loan.Loan
	e.manager.Serialize(func() error {
		for _, l := range e.book.OpenLoans() {
			result = append(result, l.Clone())
		}
		return nil
	})
	return result
}

// --- internals ---

func (e *Engine) isShort() bool { return e.cfg.Variant == VariantShort }

func (e *Engine) checkBorrowable(currency string) error {
	if _, ok := e.issuers[currency]; !ok {
		return fmt.Errorf("open: currency %q not issued here: %w", currency, loan.ErrUnsupportedCurrency)
	}
	if e.isShort() {
		if _, ok := e.manager.InverseOf(currency); !ok {
			return fmt.Errorf("open: currency %q not shortable: %w", currency, loan.ErrUnsupportedCurrency)
		}
		return nil
	}
	if !e.manager.IsSynth(currency) {
		return fmt.Errorf("open: currency %q not borrowable: %w", currency, loan.ErrUnsupportedCurrency)
	}
	return nil
}

// workingCopy loads the loan and clones it; mutations land on the
// clone and reach the book only through commit.
func (e *Engine) workingCopy(account uuid.UUID, id uint64) (*loan.Loan, error) {
	l := e.book.Get(account, id)
	if l == nil {
		return nil, fmt.Errorf("loan %s/%d: %w", account, id, loan.ErrLoanNotFound)
	}
	if !l.Open {
		return nil, fmt.Errorf("loan %s/%d: %w", account, id, loan.ErrLoanClosed)
	}
	return l.Clone(), nil
}

// accrue brings the working copy's interest up to now and returns the
// newly accrued amount. Accruing twice at the same timestamp is a
// no-op.
func (e *Engine) accrue(working *loan.Loan, now int64) fixed.Dec {
	elapsed := now - working.LastInteraction
	if elapsed <= 0 {
		return fixed.Zero()
	}
	rate := e.manager.CurrentRate(working.Currency, working.IsShort)
	interest := rates.Accrue(working.Principal, rate, elapsed)
	working.AccruedInterest = working.AccruedInterest.Add(interest)
	working.LastInteraction = now

	if e.metrics != nil && !interest.IsZero() {
		e.metrics.InterestAccrued.WithLabelValues(working.Currency).Add(interest.Float64())
	}
	return interest
}

// reportDelta forwards a non-enforced exposure delta. The engine checks
// its own registration in run, so the only failure left is operator
// deregistration mid-flight.
func (e *Engine) reportDelta(working *loan.Loan, delta fixed.Dec, kind manager.ChangeKind) error {
	if err := e.manager.ReportExposureChange(e.cfg.ID, working.Currency, working.IsShort, delta, kind); err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	return nil
}

// collateralRatio is collateral value over debt value, both converted
// to the reference currency.
func (e *Engine) collateralRatio(collateral, debt fixed.Dec, currency string) fixed.Dec {
	debtValue := debt.Mul(e.oracle.Rate(currency))
	if !debtValue.IsPositive() {
		return fixed.FromInt64(1 << 62)
	}
	return collateral.Mul(e.oracle.Rate(e.cfg.CollateralCurrency)).Div(debtValue)
}

// liquidationAmount computes the minimal debt reduction that restores
// the minimum ratio under the liquidation penalty, in debt currency
// units:
//
//	amount = (debtValue - collValue/r) / (1 - (1+P)/r) / exRate
//
// which is the value-terms form of
// (collValue - r*debtValue)/(1 + P - r). When the penalty exceeds what
// the ratio can absorb (r <= 1+P) no partial amount can restore health
// and the full principal is liquidatable.
func (e *Engine) liquidationAmount(l *loan.Loan) fixed.Dec {
	exRate := e.oracle.Rate(l.Currency)
	colRate := e.oracle.Rate(e.cfg.CollateralCurrency)
	unit := fixed.One()

	debtValue := l.Debt().Mul(exRate)
	collValue := l.Collateral.Mul(colRate)

	divisor := unit.Sub(unit.Add(e.cfg.LiquidationPenalty).Div(e.cfg.MinCollateralRatio))
	if !divisor.IsPositive() {
		return l.Principal
	}
	dividend := debtValue.Sub(collValue.Div(e.cfg.MinCollateralRatio))
	return dividend.Div(divisor).Div(exRate)
}

// requireValidRates hard-fails ratio computations on stale prices.
func (e *Engine) requireValidRates(currencies ...string) error {
	for _, c := range append(currencies, e.cfg.CollateralCurrency) {
		if e.oracle.IsInvalid(c) {
			if e.metrics != nil {
				e.metrics.StaleRateSightings.WithLabelValues(c).Inc()
			}
			return fmt.Errorf("rate for %q: %w", c, loan.ErrInvalidRate)
		}
	}
	return nil
}

// issueProceeds hands the borrower the borrowed currency; shorts
// receive the equivalent value in the reference currency.
func (e *Engine) issueProceeds(account uuid.UUID, amount fixed.Dec, currency string) {
	if e.isShort() {
		value := amount.Mul(e.oracle.Rate(currency))
		if err := e.stable.Issue(account, value); err != nil {
			panic(fmt.Sprintf("stable issue failed: %v", err))
		}
		return
	}
	if err := e.issuers[currency].Issue(account, amount); err != nil {
		panic(fmt.Sprintf("issue failed: %v", err))
	}
}

// commit writes the working copy back, enqueues it for persistence,
// and emits the notification.
func (e *Engine) commit(working *loan.Loan, evt event.Event) {
	e.book.Put(working)
	if e.sink != nil {
		e.sink.EnqueueLoan(e.cfg.ID, working.Clone())
	}
	e.notifier.Notify(evt)

	if e.metrics != nil {
		e.metrics.OpenLoans.WithLabelValues(e.cfg.ID).Set(float64(len(e.book.OpenLoans())))
	}
}

// reason maps an operation error onto its sentinel's metric label.
func reason(err error) string {
	for _, sentinel := range []struct {
		err  error
		name string
	}{
		{loan.ErrUnauthorized, "unauthorized"},
		{loan.ErrMustBePositive, "must_be_positive"},
		{loan.ErrInvalidCollateralRatio, "invalid_collateral_ratio"},
		{loan.ErrDrawTooMuch, "draw_too_much"},
		{loan.ErrBelowMinCollateralRatio, "below_min_collateral_ratio"},
		{loan.ErrDebtCeilingExceeded, "debt_ceiling_exceeded"},
		{loan.ErrNotLiquidatable, "not_liquidatable"},
		{loan.ErrTooSoon, "too_soon"},
		{loan.ErrInsufficientBalance, "insufficient_balance"},
		{loan.ErrInsufficientAllowance, "insufficient_allowance"},
		{loan.ErrInvalidRate, "invalid_rate"},
		{loan.ErrSystemPaused, "paused"},
		{loan.ErrReentrant, "reentrant"},
		{loan.ErrLoanNotFound, "not_found"},
		{loan.ErrLoanClosed, "closed"},
		{loan.ErrUnsupportedCurrency, "unsupported_currency"},
		{loan.ErrBelowMinimumSize, "below_minimum_size"},
	} {
		if errors.Is(err, sentinel.err) {
			return sentinel.name
		}
	}
	return "other"
}
