package market

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/credit-market/internal/ledger"
	"carbon-scribe/credit-market/internal/notifications"
)

const (
	owner  = "registry-owner"
	buyer  = "buyer"
	seller = "seller"
)

// MockRail is a mock implementation of the PaymentRail interface
type MockRail struct {
	mock.Mock
}

func (m *MockRail) Transfer(ctx context.Context, tx ledger.Store, from, to string, amount int64) error {
	args := m.Called(ctx, tx, from, to, amount)
	return args.Error(0)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []*notifications.Event
}

func (r *recordingEmitter) Emit(_ context.Context, event *notifications.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEmitter) kinds() []notifications.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]notifications.EventKind, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

type fixture struct {
	repo    *ledger.MemoryRepository
	events  *recordingEmitter
	service Service
}

func newFixture(t *testing.T, rail ledger.PaymentRail, policy RecipientPolicy) *fixture {
	t.Helper()
	repo := ledger.NewMemoryRepository()
	events := &recordingEmitter{}
	svc, err := NewService(repo, rail, policy, events, Config{OwnerID: owner, MaxVintageYear: 2030}, zap.NewNop())
	require.NoError(t, err)
	return &fixture{repo: repo, events: events, service: svc}
}

func scenarioMint() MintRequest {
	return MintRequest{
		Amount:               100,
		VintageYear:          2023,
		VerificationStandard: "Gold Standard",
		ProjectType:          "Reforestation",
	}
}

func (f *fixture) balance(t *testing.T, who string) int64 {
	t.Helper()
	b, err := f.repo.GetBalance(context.Background(), who)
	require.NoError(t, err)
	return b
}

func (f *fixture) funds(t *testing.T, who string) int64 {
	t.Helper()
	b, err := f.repo.GetPaymentBalance(context.Background(), who)
	require.NoError(t, err)
	return b
}

func (f *fixture) assertConserved(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	total, err := f.repo.TotalBalances(ctx)
	require.NoError(t, err)
	minted, err := f.repo.TotalMinted(ctx)
	require.NoError(t, err)
	assert.Equal(t, minted, total, "balances must sum to minted supply")
}

func TestNewServiceRequiresOwner(t *testing.T) {
	_, err := NewService(ledger.NewMemoryRepository(), nil, nil, nil, Config{}, zap.NewNop())
	assert.Error(t, err)
}

func TestMintByOwner(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	record, err := f.service.Mint(ctx, owner, scenarioMint())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), record.CreditID)
	assert.Equal(t, int64(100), f.balance(t, owner))

	info, err := f.service.GetCreditInfo(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, owner, info.Issuer)
	assert.Equal(t, 2023, info.VintageYear)
	assert.Equal(t, "Gold Standard", info.VerificationStandard)
	assert.Equal(t, "Reforestation", info.ProjectType)
	assert.Equal(t, []notifications.EventKind{notifications.EventCreditMinted}, f.events.kinds())
}

func TestMintByNonOwnerLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	_, err := f.service.Mint(ctx, "mallory", scenarioMint())
	assert.ErrorIs(t, err, ledger.ErrOwnerOnly)

	next, err := f.repo.PeekSequence(ctx, ledger.SequenceCreditID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)
	assert.Zero(t, f.balance(t, "mallory"))
	assert.Zero(t, f.balance(t, owner))
	assert.Empty(t, f.events.kinds())
}

func TestMintValidation(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	cases := map[string]struct {
		mutate func(*MintRequest)
		want   error
	}{
		"zero amount":       {func(r *MintRequest) { r.Amount = 0 }, ledger.ErrInvalidAmount},
		"ancient vintage":   {func(r *MintRequest) { r.VintageYear = 1900 }, ledger.ErrInvalidVintageYear},
		"future vintage":    {func(r *MintRequest) { r.VintageYear = 2031 }, ledger.ErrInvalidVintageYear},
		"empty standard":    {func(r *MintRequest) { r.VerificationStandard = "" }, ledger.ErrInvalidVerificationStandard},
		"bad standard":      {func(r *MintRequest) { r.VerificationStandard = "<script>" }, ledger.ErrInvalidVerificationStandard},
		"empty projecttype": {func(r *MintRequest) { r.ProjectType = "" }, ledger.ErrInvalidProjectType},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := scenarioMint()
			tc.mutate(&req)
			_, err := f.service.Mint(ctx, owner, req)
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, ledger.IsValidation(err))
		})
	}

	next, err := f.repo.PeekSequence(ctx, ledger.SequenceCreditID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next, "rejected mints must not advance the counter")
}

func TestCreateListingAndPurchase(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	_, err := f.service.Mint(ctx, owner, scenarioMint())
	require.NoError(t, err)
	_, err = f.service.DepositFunds(ctx, owner, DepositRequest{Account: buyer, Amount: 1000})
	require.NoError(t, err)

	listing, err := f.service.CreateListing(ctx, owner, CreateListingRequest{CreditID: 1, Amount: 40, PricePerCredit: 5})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), listing.ListingID)
	assert.True(t, listing.Active)
	assert.Equal(t, ledger.ListingStatusActive, listing.Status)

	receipt, err := f.service.Purchase(ctx, buyer, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(200), receipt.TotalPrice)
	assert.Equal(t, owner, receipt.Seller)

	assert.Equal(t, int64(40), f.balance(t, buyer))
	assert.Equal(t, int64(60), f.balance(t, owner))
	assert.Equal(t, int64(800), f.funds(t, buyer))
	assert.Equal(t, int64(200), f.funds(t, owner))

	stored, err := f.service.GetListing(ctx, 1)
	require.NoError(t, err)
	assert.False(t, stored.Active)
	assert.Equal(t, ledger.ListingStatusPurchased, stored.Status)
	require.NotNil(t, stored.Buyer)
	assert.Equal(t, buyer, *stored.Buyer)
	f.assertConserved(t)

	// A second purchase must fail without moving anything
	_, err = f.service.Purchase(ctx, "late-buyer", 1)
	assert.ErrorIs(t, err, ledger.ErrListingNotActive)
	assert.Equal(t, int64(40), f.balance(t, buyer))
	assert.Equal(t, int64(60), f.balance(t, owner))
	assert.Zero(t, f.balance(t, "late-buyer"))
	f.assertConserved(t)

	assert.Equal(t, []notifications.EventKind{
		notifications.EventCreditMinted,
		notifications.EventFundsDeposited,
		notifications.EventListingCreated,
		notifications.EventListingPurchased,
	}, f.events.kinds())
}

func TestCreateListingPreconditions(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	_, err := f.service.Mint(ctx, owner, scenarioMint())
	require.NoError(t, err)

	_, err = f.service.CreateListing(ctx, owner, CreateListingRequest{CreditID: 1, Amount: 0, PricePerCredit: 5})
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = f.service.CreateListing(ctx, owner, CreateListingRequest{CreditID: 1, Amount: 10, PricePerCredit: 0})
	assert.ErrorIs(t, err, ledger.ErrInvalidPrice)

	_, err = f.service.CreateListing(ctx, owner, CreateListingRequest{CreditID: 9, Amount: 10, PricePerCredit: 5})
	assert.ErrorIs(t, err, ledger.ErrCreditNotFound)

	_, err = f.service.CreateListing(ctx, owner, CreateListingRequest{CreditID: 1, Amount: 101, PricePerCredit: 5})
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	next, err := f.repo.PeekSequence(ctx, ledger.SequenceListingID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)
}

func TestUpdateListingBySomeoneElse(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	_, err := f.service.Mint(ctx, owner, scenarioMint())
	require.NoError(t, err)
	_, err = f.service.CreateListing(ctx, owner, CreateListingRequest{CreditID: 1, Amount: 40, PricePerCredit: 5})
	require.NoError(t, err)

	_, err = f.service.UpdateListing(ctx, "mallory", 1, UpdateListingRequest{Amount: 1, PricePerCredit: 1})
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)

	listing, err := f.service.GetListing(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(40), listing.Amount)
	assert.Equal(t, int64(5), listing.PricePerCredit)
}

func TestUpdateListing(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	_, err := f.service.Mint(ctx, owner, scenarioMint())
	require.NoError(t, err)
	_, err = f.service.CreateListing(ctx, owner, CreateListingRequest{CreditID: 1, Amount: 40, PricePerCredit: 5})
	require.NoError(t, err)

	updated, err := f.service.UpdateListing(ctx, owner, 1, UpdateListingRequest{Amount: 30, PricePerCredit: 7})
	require.NoError(t, err)
	assert.Equal(t, int64(30), updated.Amount)
	assert.Equal(t, int64(7), updated.PricePerCredit)
	assert.True(t, updated.Active)
	assert.Equal(t, owner, updated.Seller)

	_, err = f.service.UpdateListing(ctx, owner, 1, UpdateListingRequest{Amount: 30, PricePerCredit: 0})
	assert.ErrorIs(t, err, ledger.ErrInvalidPrice)

	_, err = f.service.UpdateListing(ctx, owner, 42, UpdateListingRequest{Amount: 1, PricePerCredit: 1})
	assert.ErrorIs(t, err, ledger.ErrListingNotFound)

	_, err = f.service.CancelListing(ctx, owner, 1)
	require.NoError(t, err)
	_, err = f.service.UpdateListing(ctx, owner, 1, UpdateListingRequest{Amount: 1, PricePerCredit: 1})
	assert.ErrorIs(t, err, ledger.ErrListingNotActive)
}

func TestCancelListing(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	_, err := f.service.Mint(ctx, owner, scenarioMint())
	require.NoError(t, err)
	_, err = f.service.CreateListing(ctx, owner, CreateListingRequest{CreditID: 1, Amount: 40, PricePerCredit: 5})
	require.NoError(t, err)

	_, err = f.service.CancelListing(ctx, "mallory", 1)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)

	cancelled, err := f.service.CancelListing(ctx, owner, 1)
	require.NoError(t, err)
	assert.False(t, cancelled.Active)
	assert.Equal(t, ledger.ListingStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.ClosedAt)

	_, err = f.service.CancelListing(ctx, owner, 1)
	assert.ErrorIs(t, err, ledger.ErrListingNotActive, "second cancel must fail")

	_, err = f.service.Purchase(ctx, buyer, 1)
	assert.ErrorIs(t, err, ledger.ErrListingNotActive)

	_, err = f.service.CancelListing(ctx, owner, 7)
	assert.ErrorIs(t, err, ledger.ErrListingNotFound)
}

func TestPurchaseUnknownListing(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, err := f.service.Purchase(context.Background(), buyer, 1)
	assert.ErrorIs(t, err, ledger.ErrListingNotFound)
}

func TestPurchaseRollsBackWhenPaymentFails(t *testing.T) {
	rail := new(MockRail)
	rail.On("Transfer", mock.Anything, mock.Anything, buyer, owner, int64(200)).Return(ledger.ErrInsufficientFunds)

	f := newFixture(t, rail, nil)
	ctx := context.Background()
	_, err := f.service.Mint(ctx, owner, scenarioMint())
	require.NoError(t, err)
	_, err = f.service.CreateListing(ctx, owner, CreateListingRequest{CreditID: 1, Amount: 40, PricePerCredit: 5})
	require.NoError(t, err)

	_, err = f.service.Purchase(ctx, buyer, 1)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	assert.Zero(t, f.balance(t, buyer))
	assert.Equal(t, int64(100), f.balance(t, owner))
	listing, err := f.service.GetListing(ctx, 1)
	require.NoError(t, err)
	assert.True(t, listing.Active)
	rail.AssertExpectations(t)
}

func TestPurchaseWithoutFundsUsesAccountRail(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	_, err := f.service.Mint(ctx, owner, scenarioMint())
	require.NoError(t, err)
	_, err = f.service.CreateListing(ctx, owner, CreateListingRequest{CreditID: 1, Amount: 40, PricePerCredit: 5})
	require.NoError(t, err)
	_, err = f.service.DepositFunds(ctx, owner, DepositRequest{Account: buyer, Amount: 199})
	require.NoError(t, err)

	_, err = f.service.Purchase(ctx, buyer, 1)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Equal(t, int64(199), f.funds(t, buyer))
	assert.Zero(t, f.funds(t, owner))
}

// A seller can drain their balance after listing. The purchase re-check is
// the only guard, and it must undo the payment leg too.
func TestPurchaseOfStaleListingRollsBackPayment(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	_, err := f.service.Mint(ctx, owner, scenarioMint())
	require.NoError(t, err)
	_, err = f.service.CreateListing(ctx, owner, CreateListingRequest{CreditID: 1, Amount: 40, PricePerCredit: 5})
	require.NoError(t, err)
	_, err = f.service.Transfer(ctx, owner, TransferRequest{Recipient: seller, Amount: 80})
	require.NoError(t, err)
	_, err = f.service.DepositFunds(ctx, owner, DepositRequest{Account: buyer, Amount: 500})
	require.NoError(t, err)

	_, err = f.service.Purchase(ctx, buyer, 1)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	assert.Equal(t, int64(500), f.funds(t, buyer))
	assert.Zero(t, f.funds(t, owner))
	assert.Equal(t, int64(20), f.balance(t, owner))
	assert.Zero(t, f.balance(t, buyer))
	listing, err := f.service.GetListing(ctx, 1)
	require.NoError(t, err)
	assert.True(t, listing.Active)
	f.assertConserved(t)
}

func TestUpdateMayExceedLiveBalance(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	_, err := f.service.Mint(ctx, owner, scenarioMint())
	require.NoError(t, err)
	_, err = f.service.CreateListing(ctx, owner, CreateListingRequest{CreditID: 1, Amount: 40, PricePerCredit: 5})
	require.NoError(t, err)

	listing, err := f.service.UpdateListing(ctx, owner, 1, UpdateListingRequest{Amount: 500, PricePerCredit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(500), listing.Amount)

	_, err = f.service.DepositFunds(ctx, owner, DepositRequest{Account: buyer, Amount: 500})
	require.NoError(t, err)
	_, err = f.service.Purchase(ctx, buyer, 1)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
}

func TestPurchaseOverflowIsRejected(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	_, err := f.service.Mint(ctx, owner, scenarioMint())
	require.NoError(t, err)
	_, err = f.service.CreateListing(ctx, owner, CreateListingRequest{CreditID: 1, Amount: 100, PricePerCredit: 1 << 62})
	require.NoError(t, err)

	_, err = f.service.Purchase(ctx, buyer, 1)
	assert.ErrorIs(t, err, ledger.ErrAmountOverflow)
}

func TestTransfer(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	_, err := f.service.Mint(ctx, owner, scenarioMint())
	require.NoError(t, err)

	receipt, err := f.service.Transfer(ctx, owner, TransferRequest{Recipient: seller, Amount: 30})
	require.NoError(t, err)
	assert.Equal(t, int64(70), receipt.SenderBalance)
	assert.Equal(t, int64(30), receipt.RecipientBalance)

	_, err = f.service.Transfer(ctx, seller, TransferRequest{Recipient: buyer, Amount: 31})
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.Equal(t, int64(30), f.balance(t, seller))
	assert.Zero(t, f.balance(t, buyer))

	_, err = f.service.Transfer(ctx, seller, TransferRequest{Recipient: "", Amount: 1})
	assert.ErrorIs(t, err, ledger.ErrInvalidIdentity)

	_, err = f.service.Transfer(ctx, seller, TransferRequest{Recipient: buyer, Amount: -1})
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	f.assertConserved(t)
}

func TestTransferRespectsRecipientPolicy(t *testing.T) {
	f := newFixture(t, nil, NewDenyList([]string{"sanctioned"}))
	ctx := context.Background()
	_, err := f.service.Mint(ctx, owner, scenarioMint())
	require.NoError(t, err)

	_, err = f.service.Transfer(ctx, owner, TransferRequest{Recipient: "sanctioned", Amount: 10})
	assert.ErrorIs(t, err, ledger.ErrRecipientRejected)
	assert.Equal(t, int64(100), f.balance(t, owner))
}

func TestReportIssue(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	_, err := f.service.Mint(ctx, owner, scenarioMint())
	require.NoError(t, err)

	receipt, err := f.service.ReportIssue(ctx, "auditor", 1, ReportIssueRequest{Description: "vintage appears double counted"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), receipt.CreditID)

	_, err = f.service.ReportIssue(ctx, "auditor", 2, ReportIssueRequest{Description: "unknown batch"})
	assert.ErrorIs(t, err, ledger.ErrCreditNotFound)

	_, err = f.service.ReportIssue(ctx, "auditor", 1, ReportIssueRequest{Description: "   "})
	assert.ErrorIs(t, err, ledger.ErrInvalidMetadata)

	kinds := f.events.kinds()
	assert.Equal(t, notifications.EventIssueReported, kinds[len(kinds)-1])
	f.assertConserved(t)
}

func TestDepositFundsIsOwnerOnly(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	_, err := f.service.DepositFunds(ctx, buyer, DepositRequest{Account: buyer, Amount: 10})
	assert.ErrorIs(t, err, ledger.ErrOwnerOnly)

	balance, err := f.service.DepositFunds(ctx, owner, DepositRequest{Account: buyer, Amount: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)

	got, err := f.service.GetPaymentBalance(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got)
}

func TestIdentifiersAreMonotonicWithoutGaps(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	var creditIDs []uint64
	for i := 0; i < 5; i++ {
		if i%2 == 1 {
			_, err := f.service.Mint(ctx, "mallory", scenarioMint())
			require.Error(t, err)
		}
		record, err := f.service.Mint(ctx, owner, scenarioMint())
		require.NoError(t, err)
		creditIDs = append(creditIDs, record.CreditID)
	}
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, creditIDs)

	var listingIDs []uint64
	for i := 0; i < 4; i++ {
		_, err := f.service.CreateListing(ctx, owner, CreateListingRequest{CreditID: 1, Amount: 10_000, PricePerCredit: 1})
		require.Error(t, err)
		listing, err := f.service.CreateListing(ctx, owner, CreateListingRequest{CreditID: uint64(i + 1), Amount: 10, PricePerCredit: 1})
		require.NoError(t, err)
		listingIDs = append(listingIDs, listing.ListingID)
	}
	assert.Equal(t, []uint64{1, 2, 3, 4}, listingIDs)
}

func TestConcurrentPurchasesFirstCommitWins(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	_, err := f.service.Mint(ctx, owner, scenarioMint())
	require.NoError(t, err)
	_, err = f.service.CreateListing(ctx, owner, CreateListingRequest{CreditID: 1, Amount: 40, PricePerCredit: 5})
	require.NoError(t, err)

	buyers := []string{"b1", "b2", "b3", "b4", "b5", "b6", "b7", "b8"}
	for _, b := range buyers {
		_, err := f.service.DepositFunds(ctx, owner, DepositRequest{Account: b, Amount: 200})
		require.NoError(t, err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for _, b := range buyers {
		wg.Add(1)
		go func(who string) {
			defer wg.Done()
			_, err := f.service.Purchase(ctx, who, 1)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}(b)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	for _, err := range failures {
		assert.True(t, errors.Is(err, ledger.ErrListingNotActive))
	}
	assert.Equal(t, int64(60), f.balance(t, owner))
	assert.Equal(t, int64(200), f.funds(t, owner))
	f.assertConserved(t)
}

func TestConservationAcrossMixedOperations(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.service.Mint(ctx, owner, scenarioMint())
		require.NoError(t, err)
	}
	_, err := f.service.DepositFunds(ctx, owner, DepositRequest{Account: buyer, Amount: 10_000})
	require.NoError(t, err)

	steps := []func() error{
		func() error { _, err := f.service.Transfer(ctx, owner, TransferRequest{Recipient: seller, Amount: 120}); return err },
		func() error {
			_, err := f.service.CreateListing(ctx, seller, CreateListingRequest{CreditID: 2, Amount: 50, PricePerCredit: 3})
			return err
		},
		func() error { _, err := f.service.Purchase(ctx, buyer, 1); return err },
		func() error { _, err := f.service.Purchase(ctx, buyer, 1); return err },
		func() error { _, err := f.service.Transfer(ctx, buyer, TransferRequest{Recipient: owner, Amount: 500}); return err },
		func() error {
			_, err := f.service.CreateListing(ctx, buyer, CreateListingRequest{CreditID: 2, Amount: 20, PricePerCredit: 9})
			return err
		},
		func() error { _, err := f.service.CancelListing(ctx, buyer, 2); return err },
		func() error { _, err := f.service.Mint(ctx, seller, scenarioMint()); return err },
	}
	for _, step := range steps {
		_ = step()
		f.assertConserved(t)
	}

	assert.Equal(t, int64(50), f.balance(t, buyer))
	assert.Equal(t, int64(70), f.balance(t, seller))
	assert.Equal(t, int64(180), f.balance(t, owner))
}
