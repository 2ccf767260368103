package ledger

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository is an in-process Repository. Units of work are serialized
// by a single writer lock and stage their writes in an overlay that is merged
// into the committed state only when the unit succeeds.
type MemoryRepository struct {
	mu     sync.RWMutex
	state  *memoryState
	closed bool
}

type memoryState struct {
	balances  map[string]int64
	payments  map[string]int64
	credits   map[uint64]CreditRecord
	listings  map[uint64]Listing
	sequences map[string]uint64
}

func newMemoryState() *memoryState {
	return &memoryState{
		balances:  make(map[string]int64),
		payments:  make(map[string]int64),
		credits:   make(map[uint64]CreditRecord),
		listings:  make(map[uint64]Listing),
		sequences: make(map[string]uint64),
	}
}

// NewMemoryRepository creates an empty in-memory repository with both
// sequences starting at 1.
func NewMemoryRepository() *MemoryRepository {
	state := newMemoryState()
	state.sequences[SequenceCreditID] = 1
	state.sequences[SequenceListingID] = 1
	return &MemoryRepository{state: state}
}

// Atomic runs fn against a staged view of the state.
func (r *MemoryRepository) Atomic(ctx context.Context, fn func(tx Store) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{base: r.state, staged: newMemoryState()}
	if err := fn(tx); err != nil {
		return err
	}

	tx.commit()
	return nil
}

func (r *MemoryRepository) Migrate(ctx context.Context) error {
	return nil
}

func (r *MemoryRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// view returns a read-only transaction over the committed state. Callers
// must hold r.mu.
func (r *MemoryRepository) view() *memoryTx {
	return &memoryTx{base: r.state, staged: newMemoryState()}
}

func (r *MemoryRepository) GetBalance(ctx context.Context, owner string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.view().GetBalance(ctx, owner)
}

func (r *MemoryRepository) GetCredit(ctx context.Context, creditID uint64) (*CreditRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.view().GetCredit(ctx, creditID)
}

func (r *MemoryRepository) GetListing(ctx context.Context, listingID uint64) (*Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.view().GetListing(ctx, listingID)
}

func (r *MemoryRepository) GetPaymentBalance(ctx context.Context, account string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.view().GetPaymentBalance(ctx, account)
}

func (r *MemoryRepository) ListBalances(ctx context.Context) ([]CreditBalance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	balances := make([]CreditBalance, 0, len(r.state.balances))
	for owner, amount := range r.state.balances {
		balances = append(balances, CreditBalance{Owner: owner, Amount: amount})
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].Owner < balances[j].Owner })
	return balances, nil
}

func (r *MemoryRepository) ListCredits(ctx context.Context) ([]CreditRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	credits := make([]CreditRecord, 0, len(r.state.credits))
	for _, credit := range r.state.credits {
		credits = append(credits, credit)
	}
	sort.Slice(credits, func(i, j int) bool { return credits[i].CreditID < credits[j].CreditID })
	return credits, nil
}

func (r *MemoryRepository) ListListings(ctx context.Context, filter ListingFilter) ([]Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	listings := make([]Listing, 0)
	for _, listing := range r.state.listings {
		if filter.Seller != "" && listing.Seller != filter.Seller {
			continue
		}
		if filter.CreditID != 0 && listing.CreditID != filter.CreditID {
			continue
		}
		if filter.ActiveOnly && !listing.Active {
			continue
		}
		listings = append(listings, listing)
	}
	sort.Slice(listings, func(i, j int) bool { return listings[i].ListingID < listings[j].ListingID })

	if filter.Offset > 0 {
		if filter.Offset >= len(listings) {
			return []Listing{}, nil
		}
		listings = listings[filter.Offset:]
	}
	if filter.Limit > 0 && len(listings) > filter.Limit {
		listings = listings[:filter.Limit]
	}
	return listings, nil
}

func (r *MemoryRepository) ListPaymentAccounts(ctx context.Context) ([]PaymentAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	accounts := make([]PaymentAccount, 0, len(r.state.payments))
	for account, balance := range r.state.payments {
		accounts = append(accounts, PaymentAccount{Account: account, Balance: balance})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Account < accounts[j].Account })
	return accounts, nil
}

func (r *MemoryRepository) TotalBalances(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	for _, amount := range r.state.balances {
		total += amount
	}
	return total, nil
}

func (r *MemoryRepository) TotalMinted(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	for _, credit := range r.state.credits {
		total += credit.Amount
	}
	return total, nil
}

func (r *MemoryRepository) PeekSequence(ctx context.Context, name string) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.view().currentSequence(name), nil
}

// memoryTx reads through staged writes to the committed base.
type memoryTx struct {
	base   *memoryState
	staged *memoryState
}

func (t *memoryTx) GetBalance(ctx context.Context, owner string) (int64, error) {
	if amount, ok := t.staged.balances[owner]; ok {
		return amount, nil
	}
	return t.base.balances[owner], nil
}

func (t *memoryTx) SetBalance(ctx context.Context, owner string, amount int64) error {
	if amount < 0 {
		return ErrInsufficientBalance
	}
	t.staged.balances[owner] = amount
	return nil
}

func (t *memoryTx) GetCredit(ctx context.Context, creditID uint64) (*CreditRecord, error) {
	if credit, ok := t.staged.credits[creditID]; ok {
		return &credit, nil
	}
	if credit, ok := t.base.credits[creditID]; ok {
		return &credit, nil
	}
	return nil, nil
}

func (t *memoryTx) CreateCredit(ctx context.Context, credit *CreditRecord) error {
	if existing, _ := t.GetCredit(ctx, credit.CreditID); existing != nil {
		return ErrTransactionFailed
	}
	t.staged.credits[credit.CreditID] = *credit
	return nil
}

func (t *memoryTx) GetListing(ctx context.Context, listingID uint64) (*Listing, error) {
	if listing, ok := t.staged.listings[listingID]; ok {
		return copyListing(listing), nil
	}
	if listing, ok := t.base.listings[listingID]; ok {
		return copyListing(listing), nil
	}
	return nil, nil
}

func (t *memoryTx) CreateListing(ctx context.Context, listing *Listing) error {
	if existing, _ := t.GetListing(ctx, listing.ListingID); existing != nil {
		return ErrTransactionFailed
	}
	t.staged.listings[listing.ListingID] = *copyListing(*listing)
	return nil
}

func (t *memoryTx) UpdateListing(ctx context.Context, listing *Listing) error {
	if existing, _ := t.GetListing(ctx, listing.ListingID); existing == nil {
		return ErrListingNotFound
	}
	t.staged.listings[listing.ListingID] = *copyListing(*listing)
	return nil
}

func (t *memoryTx) GetPaymentBalance(ctx context.Context, account string) (int64, error) {
	if balance, ok := t.staged.payments[account]; ok {
		return balance, nil
	}
	return t.base.payments[account], nil
}

func (t *memoryTx) SetPaymentBalance(ctx context.Context, account string, amount int64) error {
	if amount < 0 {
		return ErrInsufficientFunds
	}
	t.staged.payments[account] = amount
	return nil
}

func (t *memoryTx) NextSequence(ctx context.Context, name string) (uint64, error) {
	value := t.currentSequence(name)
	t.staged.sequences[name] = value + 1
	return value, nil
}

func (t *memoryTx) currentSequence(name string) uint64 {
	if value, ok := t.staged.sequences[name]; ok {
		return value
	}
	if value, ok := t.base.sequences[name]; ok {
		return value
	}
	return 1
}

func (t *memoryTx) commit() {
	for owner, amount := range t.staged.balances {
		t.base.balances[owner] = amount
	}
	for account, balance := range t.staged.payments {
		t.base.payments[account] = balance
	}
	for id, credit := range t.staged.credits {
		t.base.credits[id] = credit
	}
	for id, listing := range t.staged.listings {
		t.base.listings[id] = listing
	}
	for name, value := range t.staged.sequences {
		t.base.sequences[name] = value
	}
}

func copyListing(listing Listing) *Listing {
	out := listing
	if listing.Buyer != nil {
		buyer := *listing.Buyer
		out.Buyer = &buyer
	}
	if listing.ClosedAt != nil {
		closedAt := *listing.ClosedAt
		out.ClosedAt = &closedAt
	}
	return &out
}
