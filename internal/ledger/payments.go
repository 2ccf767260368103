package ledger

import (
	"context"
	"fmt"
	"math"
)

// PaymentRail moves payment value between parties. Transfer runs inside the
// caller's unit of work and must leave no partial transfer behind when it
// fails.
type PaymentRail interface {
	Transfer(ctx context.Context, tx Store, from, to string, amount int64) error
}

// AccountRail settles payments against payment accounts kept in the same
// store as the credit ledger, so a purchase commits both legs together.
type AccountRail struct{}

// NewAccountRail creates the default payment rail
func NewAccountRail() *AccountRail {
	return &AccountRail{}
}

func (r *AccountRail) Transfer(ctx context.Context, tx Store, from, to string, amount int64) error {
	if from == "" || to == "" {
		return ErrInvalidIdentity
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}

	fromBalance, err := tx.GetPaymentBalance(ctx, from)
	if err != nil {
		return fmt.Errorf("failed to read payment balance: %w", err)
	}
	if fromBalance < amount {
		return ErrInsufficientFunds
	}
	if err := tx.SetPaymentBalance(ctx, from, fromBalance-amount); err != nil {
		return err
	}

	toBalance, err := tx.GetPaymentBalance(ctx, to)
	if err != nil {
		return fmt.Errorf("failed to read payment balance: %w", err)
	}
	if toBalance > math.MaxInt64-amount {
		return ErrAmountOverflow
	}
	return tx.SetPaymentBalance(ctx, to, toBalance+amount)
}

// Deposit adds amount to a payment account inside tx.
func Deposit(ctx context.Context, tx Store, account string, amount int64) error {
	if account == "" {
		return ErrInvalidIdentity
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}

	balance, err := tx.GetPaymentBalance(ctx, account)
	if err != nil {
		return fmt.Errorf("failed to read payment balance: %w", err)
	}
	if balance > math.MaxInt64-amount {
		return ErrAmountOverflow
	}
	return tx.SetPaymentBalance(ctx, account, balance+amount)
}
