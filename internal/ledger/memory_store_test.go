package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepositoryCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	err := repo.Atomic(ctx, func(tx Store) error {
		id, err := tx.NextSequence(ctx, SequenceCreditID)
		if err != nil {
			return err
		}
		if err := tx.CreateCredit(ctx, &CreditRecord{CreditID: id, Issuer: "owner", Amount: 100}); err != nil {
			return err
		}
		return Credit(ctx, tx, "owner", 100)
	})
	require.NoError(t, err)

	balance, err := repo.GetBalance(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	credit, err := repo.GetCredit(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, credit)
	assert.Equal(t, int64(100), credit.Amount)

	next, err := repo.PeekSequence(ctx, SequenceCreditID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), next)
}

func TestMemoryRepositoryRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	boom := errors.New("boom")

	err := repo.Atomic(ctx, func(tx Store) error {
		if _, err := tx.NextSequence(ctx, SequenceListingID); err != nil {
			return err
		}
		if err := Credit(ctx, tx, "alice", 50); err != nil {
			return err
		}
		if err := Deposit(ctx, tx, "alice", 10); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	balance, _ := repo.GetBalance(ctx, "alice")
	assert.Equal(t, int64(0), balance)

	funds, _ := repo.GetPaymentBalance(ctx, "alice")
	assert.Equal(t, int64(0), funds)

	next, _ := repo.PeekSequence(ctx, SequenceListingID)
	assert.Equal(t, uint64(1), next)
}

func TestMemoryRepositoryReadsStagedWrites(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	err := repo.Atomic(ctx, func(tx Store) error {
		require.NoError(t, Credit(ctx, tx, "alice", 30))
		balance, err := tx.GetBalance(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(30), balance)

		first, _ := tx.NextSequence(ctx, SequenceCreditID)
		second, _ := tx.NextSequence(ctx, SequenceCreditID)
		assert.Equal(t, uint64(1), first)
		assert.Equal(t, uint64(2), second)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryRepositoryListingCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	buyer := "bob"
	err := repo.Atomic(ctx, func(tx Store) error {
		return tx.CreateListing(ctx, &Listing{ListingID: 1, Seller: "alice", CreditID: 1, Amount: 5, PricePerCredit: 2, Active: true, Status: ListingStatusActive, Buyer: &buyer})
	})
	require.NoError(t, err)

	listing, err := repo.GetListing(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, listing)

	// mutating the returned value must not leak into the store
	listing.Amount = 99
	*listing.Buyer = "mallory"

	stored, _ := repo.GetListing(ctx, 1)
	assert.Equal(t, int64(5), stored.Amount)
	assert.Equal(t, "bob", *stored.Buyer)
}

func TestMemoryRepositoryListListingsFilter(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	err := repo.Atomic(ctx, func(tx Store) error {
		for i, seller := range []string{"alice", "bob", "alice"} {
			listing := &Listing{ListingID: uint64(i + 1), Seller: seller, CreditID: 1, Amount: 1, PricePerCredit: 1, Active: i != 2, Status: ListingStatusActive}
			if err := tx.CreateListing(ctx, listing); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	all, _ := repo.ListListings(ctx, ListingFilter{})
	assert.Len(t, all, 3)

	alice, _ := repo.ListListings(ctx, ListingFilter{Seller: "alice"})
	assert.Len(t, alice, 2)

	active, _ := repo.ListListings(ctx, ListingFilter{Seller: "alice", ActiveOnly: true})
	require.Len(t, active, 1)
	assert.Equal(t, uint64(1), active[0].ListingID)

	page, _ := repo.ListListings(ctx, ListingFilter{Offset: 1, Limit: 1})
	require.Len(t, page, 1)
	assert.Equal(t, uint64(2), page[0].ListingID)
}

func TestMemoryRepositoryClosed(t *testing.T) {
	repo := NewMemoryRepository()
	require.NoError(t, repo.Close())

	err := repo.Atomic(context.Background(), func(tx Store) error { return nil })
	assert.ErrorIs(t, err, ErrStoreClosed)
}
