package synth_test

import (
	"errors"
	"testing"

	"SynthLoans/internal/fixed"
	"SynthLoans/internal/loan"
	"SynthLoans/internal/synth"

	"github.com/google/uuid"
)

func TestIssueAndBurn(t *testing.T) {
	token := synth.NewToken("sBTC")
	alice := uuid.New()

	if err := token.Issue(alice, fixed.FromInt64(10)); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if got := token.BalanceOf(alice); !got.Equal(fixed.FromInt64(10)) {
		t.Errorf("balance: got %s, want 10", got)
	}
	if got := token.TotalSupply(); !got.Equal(fixed.FromInt64(10)) {
		t.Errorf("supply: got %s, want 10", got)
	}

	if err := token.Burn(alice, fixed.FromInt64(4)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := token.BalanceOf(alice); !got.Equal(fixed.FromInt64(6)) {
		t.Errorf("balance after burn: got %s, want 6", got)
	}
	if got := token.TotalSupply(); !got.Equal(fixed.FromInt64(6)) {
		t.Errorf("supply after burn: got %s, want 6", got)
	}
}

func TestBurnInsufficientBalance(t *testing.T) {
	token := synth.NewToken("sETH")
	alice := uuid.New()
	token.Issue(alice, fixed.FromInt64(1))

	err := token.Burn(alice, fixed.FromInt64(2))
	if !errors.Is(err, loan.ErrInsufficientBalance) {
		t.Errorf("got %v, want ErrInsufficientBalance", err)
	}
	if got := token.BalanceOf(alice); !got.Equal(fixed.FromInt64(1)) {
		t.Errorf("failed burn must not change balance: got %s", got)
	}
}

func TestTransfer(t *testing.T) {
	token := synth.NewToken("sUSD")
	alice, bob := uuid.New(), uuid.New()
	token.Issue(alice, fixed.FromInt64(100))

	if err := token.Transfer(alice, bob, fixed.FromInt64(30)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := token.BalanceOf(bob); !got.Equal(fixed.FromInt64(30)) {
		t.Errorf("bob: got %s, want 30", got)
	}

	err := token.Transfer(bob, alice, fixed.FromInt64(31))
	if !errors.Is(err, loan.ErrInsufficientBalance) {
		t.Errorf("overdraw: got %v, want ErrInsufficientBalance", err)
	}
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	token := synth.NewToken("renBTC")
	owner, spender, custody := uuid.New(), uuid.New(), uuid.New()
	token.Issue(owner, fixed.FromInt64(10))

	// No allowance yet.
	err := token.TransferFrom(spender, owner, custody, fixed.FromInt64(1))
	if !errors.Is(err, loan.ErrInsufficientAllowance) {
		t.Fatalf("got %v, want ErrInsufficientAllowance", err)
	}

	token.Approve(owner, spender, fixed.FromInt64(5))
	if err := token.TransferFrom(spender, owner, custody, fixed.FromInt64(3)); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	if got := token.Allowance(owner, spender); !got.Equal(fixed.FromInt64(2)) {
		t.Errorf("allowance: got %s, want 2", got)
	}
	if got := token.BalanceOf(custody); !got.Equal(fixed.FromInt64(3)) {
		t.Errorf("custody: got %s, want 3", got)
	}

	err = token.TransferFrom(spender, owner, custody, fixed.FromInt64(3))
	if !errors.Is(err, loan.ErrInsufficientAllowance) {
		t.Errorf("exceeding allowance: got %v, want ErrInsufficientAllowance", err)
	}
}
