package ledger

import (
	"context"
)

// Store is the read/write surface available inside a unit of work. Lookups
// of missing credits or listings return (nil, nil); missing balances read
// as zero.
type Store interface {
	GetBalance(ctx context.Context, owner string) (int64, error)
	SetBalance(ctx context.Context, owner string, amount int64) error

	GetCredit(ctx context.Context, creditID uint64) (*CreditRecord, error)
	CreateCredit(ctx context.Context, credit *CreditRecord) error

	GetListing(ctx context.Context, listingID uint64) (*Listing, error)
	CreateListing(ctx context.Context, listing *Listing) error
	UpdateListing(ctx context.Context, listing *Listing) error

	GetPaymentBalance(ctx context.Context, account string) (int64, error)
	SetPaymentBalance(ctx context.Context, account string, amount int64) error

	// NextSequence returns the current value of the named sequence and
	// advances it. The advance commits or rolls back with the unit of work.
	NextSequence(ctx context.Context, name string) (uint64, error)
}

// Reader is the read-only query surface used outside units of work.
type Reader interface {
	GetBalance(ctx context.Context, owner string) (int64, error)
	GetCredit(ctx context.Context, creditID uint64) (*CreditRecord, error)
	GetListing(ctx context.Context, listingID uint64) (*Listing, error)
	GetPaymentBalance(ctx context.Context, account string) (int64, error)

	ListBalances(ctx context.Context) ([]CreditBalance, error)
	ListCredits(ctx context.Context) ([]CreditRecord, error)
	ListListings(ctx context.Context, filter ListingFilter) ([]Listing, error)
	ListPaymentAccounts(ctx context.Context) ([]PaymentAccount, error)

	TotalBalances(ctx context.Context) (int64, error)
	TotalMinted(ctx context.Context) (int64, error)

	// PeekSequence returns the value NextSequence would hand out without
	// advancing it.
	PeekSequence(ctx context.Context, name string) (uint64, error)
}

// Repository owns ledger state. Atomic runs fn as one serializable unit of
// work: every write fn makes through tx commits together if fn returns nil,
// and none of them is visible if fn returns an error.
type Repository interface {
	Reader

	Atomic(ctx context.Context, fn func(tx Store) error) error
	Migrate(ctx context.Context) error
	Close() error
}
