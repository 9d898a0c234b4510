package synth

import (
	"fmt"

	"SynthLoans/internal/fixed"
	"SynthLoans/internal/loan"

	"github.com/google/uuid"
)

// Issuer is the issuance capability for a single synthetic currency:
// the ledger issues on open/draw and burns on repay/close/liquidate.
type Issuer interface {
	Issue(account uuid.UUID, amount fixed.Dec) error
	Burn(account uuid.UUID, amount fixed.Dec) error
	BalanceOf(account uuid.UUID) fixed.Dec
}

// Token is an in-memory currency with the ERC20-like surface the
// token-collateral engine needs on top of Issuer. Balances never go
// negative; all failures are named conditions.
type Token struct {
	symbol     string
	balances   map[uuid.UUID]fixed.Dec
	allowances map[allowanceKey]fixed.Dec
	supply     fixed.Dec
}

type allowanceKey struct {
	Owner   uuid.UUID
	Spender uuid.UUID
}

func NewToken(symbol string) *Token {
	return &Token{
		symbol:     symbol,
		balances:   make(map[uuid.UUID]fixed.Dec),
		allowances: make(map[allowanceKey]fixed.Dec),
	}
}

// Symbol returns the currency identifier this token issues.
func (t *Token) Symbol() string { return t.symbol }

// TotalSupply returns the outstanding issued amount.
func (t *Token) TotalSupply() fixed.Dec { return t.supply }

func (t *Token) Issue(account uuid.UUID, amount fixed.Dec) error {
	if amount.IsNegative() {
		return fmt.Errorf("issue %s %s: %w", t.symbol, amount, loan.ErrMustBePositive)
	}
	t.balances[account] = t.BalanceOf(account).Add(amount)
	t.supply = t.supply.Add(amount)
	return nil
}

func (t *Token) Burn(account uuid.UUID, amount fixed.Dec) error {
	if amount.IsNegative() {
		return fmt.Errorf("burn %s %s: %w", t.symbol, amount, loan.ErrMustBePositive)
	}
	bal := t.BalanceOf(account)
	if bal.LessThan(amount) {
		return fmt.Errorf("burn %s %s from %s (balance %s): %w",
			t.symbol, amount, account, bal, loan.ErrInsufficientBalance)
	}
	t.balances[account] = bal.Sub(amount)
	t.supply = t.supply.Sub(amount)
	return nil
}

func (t *Token) BalanceOf(account uuid.UUID) fixed.Dec {
	return t.balances[account]
}

// Transfer moves amount from one account to another.
func (t *Token) Transfer(from, to uuid.UUID, amount fixed.Dec) error {
	bal := t.BalanceOf(from)
	if bal.LessThan(amount) {
		return fmt.Errorf("transfer %s %s: %w", t.symbol, amount, loan.ErrInsufficientBalance)
	}
	t.balances[from] = bal.Sub(amount)
	t.balances[to] = t.BalanceOf(to).Add(amount)
	return nil
}

// Approve grants spender the right to pull up to amount from owner.
func (t *Token) Approve(owner, spender uuid.UUID, amount fixed.Dec) {
	t.allowances[allowanceKey{Owner: owner, Spender: spender}] = amount
}

// Allowance returns the remaining approved amount.
func (t *Token) Allowance(owner, spender uuid.UUID) fixed.Dec {
	return t.allowances[allowanceKey{Owner: owner, Spender: spender}]
}

// TransferFrom pulls amount from owner into to, consuming spender's
// allowance.
func (t *Token) TransferFrom(spender, owner, to uuid.UUID, amount fixed.Dec) error {
	key := allowanceKey{Owner: owner, Spender: spender}
	allowed := t.allowances[key]
	if allowed.LessThan(amount) {
		return fmt.Errorf("transferFrom %s %s (allowance %s): %w",
			t.symbol, amount, allowed, loan.ErrInsufficientAllowance)
	}
	if err := t.Transfer(owner, to, amount); err != nil {
		return err
	}
	t.allowances[key] = allowed.Sub(amount)
	return nil
}
