package engine

import (
	"fmt"

	"SynthLoans/internal/fixed"
	"SynthLoans/internal/loan"
	"SynthLoans/internal/synth"

	"github.com/google/uuid"
)

// nativeAsset is the custody surface for the chain-native asset. The
// value moves with the call itself in the hosting environment, so the
// ledger only tracks it on the loan record.
type nativeAsset struct{}

func (nativeAsset) CanPull(uuid.UUID, fixed.Dec) error { return nil }
func (nativeAsset) Pull(uuid.UUID, fixed.Dec) error    { return nil }
func (nativeAsset) Release(uuid.UUID, fixed.Dec) error { return nil }

// tokenAsset locks an ERC20-style token in a custody account. Pulls go
// through the allowance the owner granted to the custody account.
type tokenAsset struct {
	token   *synth.Token
	custody uuid.UUID
}

func (a tokenAsset) CanPull(account uuid.UUID, amount fixed.Dec) error {
	if a.token.Allowance(account, a.custody).LessThan(amount) {
		return fmt.Errorf("pull %s %s: %w", a.token.Symbol(), amount, loan.ErrInsufficientAllowance)
	}
	if a.token.BalanceOf(account).LessThan(amount) {
		return fmt.Errorf("pull %s %s: %w", a.token.Symbol(), amount, loan.ErrInsufficientBalance)
	}
	return nil
}

func (a tokenAsset) Pull(account uuid.UUID, amount fixed.Dec) error {
	return a.token.TransferFrom(a.custody, account, a.custody, amount)
}

func (a tokenAsset) Release(account uuid.UUID, amount fixed.Dec) error {
	return a.token.Transfer(a.custody, account, amount)
}

// NewNativeCollateral builds an engine whose collateral is the
// chain-native asset.
func NewNativeCollateral(cfg Config, deps Deps) *Engine {
	cfg.Variant = VariantNativeCollateral
	return newEngine(cfg, nativeAsset{}, deps)
}

// NewTokenCollateral builds an engine whose collateral is an
// ERC20-style token; borrowers must approve the custody account first.
func NewTokenCollateral(cfg Config, token *synth.Token, custody uuid.UUID, deps Deps) *Engine {
	cfg.Variant = VariantTokenCollateral
	cfg.CollateralCurrency = token.Symbol()
	return newEngine(cfg, tokenAsset{token: token, custody: custody}, deps)
}

// NewShort builds a short engine: collateral is the reference stable
// token, proceeds are issued in it, and the debt tracks the shorted
// currency.
func NewShort(cfg Config, stable *synth.Token, custody uuid.UUID, deps Deps) *Engine {
	cfg.Variant = VariantShort
	cfg.CollateralCurrency = stable.Symbol()
	if deps.Stable == nil {
		deps.Stable = stable
	}
	return newEngine(cfg, tokenAsset{token: stable, custody: custody}, deps)
}
