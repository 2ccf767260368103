package ledger

import (
	"context"
	"fmt"
	"math"
)

// Credit increases owner's balance by amount inside tx.
func Credit(ctx context.Context, tx Store, owner string, amount int64) error {
	if owner == "" {
		return ErrInvalidIdentity
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}

	balance, err := tx.GetBalance(ctx, owner)
	if err != nil {
		return fmt.Errorf("failed to read balance: %w", err)
	}
	if balance > math.MaxInt64-amount {
		return ErrAmountOverflow
	}

	return tx.SetBalance(ctx, owner, balance+amount)
}

// Debit decreases owner's balance by amount inside tx. It fails with
// ErrInsufficientBalance when the owner holds less than amount.
func Debit(ctx context.Context, tx Store, owner string, amount int64) error {
	if owner == "" {
		return ErrInvalidIdentity
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}

	balance, err := tx.GetBalance(ctx, owner)
	if err != nil {
		return fmt.Errorf("failed to read balance: %w", err)
	}
	if balance < amount {
		return ErrInsufficientBalance
	}

	return tx.SetBalance(ctx, owner, balance-amount)
}

// Move debits from and credits to by the same amount. Callers run it inside
// the unit of work of the operation that needs it.
func Move(ctx context.Context, tx Store, from, to string, amount int64) error {
	if err := Debit(ctx, tx, from, amount); err != nil {
		return err
	}
	return Credit(ctx, tx, to, amount)
}
