package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"carbon-scribe/credit-market/internal/ledger"
	"carbon-scribe/credit-market/internal/notifications"
	"carbon-scribe/credit-market/pkg/workflows"
)

// Service is the listing market: credit issuance, the listing lifecycle,
// purchases and direct transfers. Every mutating method runs as a single
// unit of work against the ledger repository.
type Service interface {
	Mint(ctx context.Context, caller string, req MintRequest) (*ledger.CreditRecord, error)
	GetCreditInfo(ctx context.Context, creditID uint64) (*ledger.CreditRecord, error)
	ListCredits(ctx context.Context) ([]ledger.CreditRecord, error)

	CreateListing(ctx context.Context, seller string, req CreateListingRequest) (*ledger.Listing, error)
	UpdateListing(ctx context.Context, caller string, listingID uint64, req UpdateListingRequest) (*ledger.Listing, error)
	CancelListing(ctx context.Context, caller string, listingID uint64) (*ledger.Listing, error)
	Purchase(ctx context.Context, buyer string, listingID uint64) (*PurchaseReceipt, error)
	GetListing(ctx context.Context, listingID uint64) (*ledger.Listing, error)
	ListListings(ctx context.Context, filter ledger.ListingFilter) ([]ledger.Listing, error)

	Transfer(ctx context.Context, sender string, req TransferRequest) (*TransferReceipt, error)
	ReportIssue(ctx context.Context, reporter string, creditID uint64, req ReportIssueRequest) (*IssueReceipt, error)
	GetBalance(ctx context.Context, owner string) (int64, error)

	DepositFunds(ctx context.Context, caller string, req DepositRequest) (int64, error)
	GetPaymentBalance(ctx context.Context, account string) (int64, error)
}

// Config holds the market settings injected at startup
type Config struct {
	OwnerID        string
	MinVintageYear int
	MaxVintageYear int
}

type marketService struct {
	repo      ledger.Repository
	rail      ledger.PaymentRail
	policy    RecipientPolicy
	validator *Validator
	lifecycle *workflows.StateMachine
	events    notifications.Emitter
	ownerID   string
	now       func() time.Time
	logger    *zap.Logger
}

// NewService creates the market service. A nil rail, policy or emitter
// falls back to the account rail, AllowAll and no events.
func NewService(
	repo ledger.Repository,
	rail ledger.PaymentRail,
	policy RecipientPolicy,
	events notifications.Emitter,
	cfg Config,
	logger *zap.Logger,
) (Service, error) {
	if cfg.OwnerID == "" {
		return nil, fmt.Errorf("market owner identity is required")
	}
	if rail == nil {
		rail = ledger.NewAccountRail()
	}
	if policy == nil {
		policy = AllowAll{}
	}
	if events == nil {
		events = discardEmitter{}
	}

	return &marketService{
		repo:      repo,
		rail:      rail,
		policy:    policy,
		validator: NewValidator(cfg.MinVintageYear, cfg.MaxVintageYear),
		lifecycle: workflows.NewListingStateMachine(),
		events:    events,
		ownerID:   cfg.OwnerID,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}, nil
}

type discardEmitter struct{}

func (discardEmitter) Emit(context.Context, *notifications.Event) {}

// =====================================================
// Credit Registry
// =====================================================

func (s *marketService) Mint(ctx context.Context, caller string, req MintRequest) (*ledger.CreditRecord, error) {
	if caller == "" {
		return nil, ledger.ErrInvalidIdentity
	}
	if caller != s.ownerID {
		s.logger.Warn("Rejected mint from non-owner", zap.String("caller", caller))
		return nil, ledger.ErrOwnerOnly
	}
	if err := s.validator.ValidateMint(req); err != nil {
		return nil, err
	}

	var record *ledger.CreditRecord
	err := s.repo.Atomic(ctx, func(tx ledger.Store) error {
		creditID, err := tx.NextSequence(ctx, ledger.SequenceCreditID)
		if err != nil {
			return err
		}

		record = &ledger.CreditRecord{
			CreditID:             creditID,
			Issuer:               caller,
			VintageYear:          req.VintageYear,
			VerificationStandard: req.VerificationStandard,
			ProjectType:          req.ProjectType,
			Amount:               req.Amount,
			CreatedAt:            s.now(),
		}
		if err := tx.CreateCredit(ctx, record); err != nil {
			return err
		}
		return ledger.Credit(ctx, tx, caller, req.Amount)
	})
	if err != nil {
		return nil, fmt.Errorf("mint failed: %w", err)
	}

	s.logger.Info("Credits minted",
		zap.Uint64("credit_id", record.CreditID),
		zap.Int64("amount", record.Amount),
		zap.Int("vintage_year", record.VintageYear))

	event := notifications.NewEvent(notifications.EventCreditMinted)
	event.Actor = caller
	event.CreditID = record.CreditID
	event.Amount = record.Amount
	event.Attributes["vintage_year"] = record.VintageYear
	event.Attributes["verification_standard"] = record.VerificationStandard
	event.Attributes["project_type"] = record.ProjectType
	s.events.Emit(ctx, event)

	return record, nil
}

func (s *marketService) GetCreditInfo(ctx context.Context, creditID uint64) (*ledger.CreditRecord, error) {
	record, err := s.repo.GetCredit(ctx, creditID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ledger.ErrCreditNotFound
	}
	return record, nil
}

func (s *marketService) ListCredits(ctx context.Context) ([]ledger.CreditRecord, error) {
	return s.repo.ListCredits(ctx)
}

// =====================================================
// Listing lifecycle
// =====================================================

func (s *marketService) CreateListing(ctx context.Context, seller string, req CreateListingRequest) (*ledger.Listing, error) {
	if seller == "" {
		return nil, ledger.ErrInvalidIdentity
	}
	if err := s.validator.ValidateAmount("amount", req.Amount); err != nil {
		return nil, err
	}
	if err := s.validator.ValidatePrice(req.PricePerCredit); err != nil {
		return nil, err
	}

	var listing *ledger.Listing
	err := s.repo.Atomic(ctx, func(tx ledger.Store) error {
		credit, err := tx.GetCredit(ctx, req.CreditID)
		if err != nil {
			return err
		}
		if credit == nil {
			return ledger.ErrCreditNotFound
		}

		balance, err := tx.GetBalance(ctx, seller)
		if err != nil {
			return err
		}
		if balance < req.Amount {
			return ledger.ErrInsufficientBalance
		}

		listingID, err := tx.NextSequence(ctx, ledger.SequenceListingID)
		if err != nil {
			return err
		}

		now := s.now()
		listing = &ledger.Listing{
			ListingID:      listingID,
			Seller:         seller,
			CreditID:       req.CreditID,
			Amount:         req.Amount,
			PricePerCredit: req.PricePerCredit,
			Active:         true,
			Status:         ledger.ListingStatusActive,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return tx.CreateListing(ctx, listing)
	})
	if err != nil {
		return nil, fmt.Errorf("create listing failed: %w", err)
	}

	s.logger.Info("Listing created",
		zap.Uint64("listing_id", listing.ListingID),
		zap.Uint64("credit_id", listing.CreditID),
		zap.String("seller", seller),
		zap.Int64("amount", listing.Amount),
		zap.Int64("price_per_credit", listing.PricePerCredit))

	s.emitListing(ctx, notifications.EventListingCreated, seller, "", listing)
	return listing, nil
}

// UpdateListing does not re-check the seller's balance; purchase does.
func (s *marketService) UpdateListing(ctx context.Context, caller string, listingID uint64, req UpdateListingRequest) (*ledger.Listing, error) {
	if caller == "" {
		return nil, ledger.ErrInvalidIdentity
	}

	var (
		listing       *ledger.Listing
		previousPrice int64
		previousAmt   int64
	)
	err := s.repo.Atomic(ctx, func(tx ledger.Store) error {
		var err error
		listing, err = tx.GetListing(ctx, listingID)
		if err != nil {
			return err
		}
		if listing == nil {
			return ledger.ErrListingNotFound
		}
		if !listing.Active || !s.lifecycle.CanTransition(string(listing.Status), workflows.ListingActive) {
			return ledger.ErrListingNotActive
		}
		if listing.Seller != caller {
			return ledger.ErrUnauthorized
		}
		if err := s.validator.ValidateAmount("amount", req.Amount); err != nil {
			return err
		}
		if err := s.validator.ValidatePrice(req.PricePerCredit); err != nil {
			return err
		}

		previousAmt, previousPrice = listing.Amount, listing.PricePerCredit
		listing.Amount = req.Amount
		listing.PricePerCredit = req.PricePerCredit
		listing.UpdatedAt = s.now()
		return tx.UpdateListing(ctx, listing)
	})
	if err != nil {
		return nil, fmt.Errorf("update listing failed: %w", err)
	}

	s.logger.Info("Listing updated",
		zap.Uint64("listing_id", listingID),
		zap.Int64("amount", listing.Amount),
		zap.Int64("price_per_credit", listing.PricePerCredit))

	event := s.listingEvent(notifications.EventListingUpdated, caller, "", listing)
	event.Attributes["previous_amount"] = previousAmt
	event.Attributes["previous_price"] = previousPrice
	s.events.Emit(ctx, event)

	return listing, nil
}

func (s *marketService) CancelListing(ctx context.Context, caller string, listingID uint64) (*ledger.Listing, error) {
	if caller == "" {
		return nil, ledger.ErrInvalidIdentity
	}

	var listing *ledger.Listing
	err := s.repo.Atomic(ctx, func(tx ledger.Store) error {
		var err error
		listing, err = tx.GetListing(ctx, listingID)
		if err != nil {
			return err
		}
		if listing == nil {
			return ledger.ErrListingNotFound
		}
		if listing.Seller != caller {
			return ledger.ErrUnauthorized
		}
		if !listing.Active || !s.lifecycle.CanTransition(string(listing.Status), workflows.ListingCancelled) {
			return ledger.ErrListingNotActive
		}

		now := s.now()
		listing.Active = false
		listing.Status = ledger.ListingStatusCancelled
		listing.UpdatedAt = now
		listing.ClosedAt = &now
		return tx.UpdateListing(ctx, listing)
	})
	if err != nil {
		return nil, fmt.Errorf("cancel listing failed: %w", err)
	}

	s.logger.Info("Listing cancelled", zap.Uint64("listing_id", listingID), zap.String("seller", caller))

	s.emitListing(ctx, notifications.EventListingCancelled, caller, "", listing)
	return listing, nil
}

// Purchase settles payment from buyer to seller and moves the listed
// credits the other way. All four effects commit together or not at all.
func (s *marketService) Purchase(ctx context.Context, buyer string, listingID uint64) (*PurchaseReceipt, error) {
	if buyer == "" {
		return nil, ledger.ErrInvalidIdentity
	}

	var (
		listing *ledger.Listing
		total   int64
	)
	err := s.repo.Atomic(ctx, func(tx ledger.Store) error {
		var err error
		listing, err = tx.GetListing(ctx, listingID)
		if err != nil {
			return err
		}
		if listing == nil {
			return ledger.ErrListingNotFound
		}
		if !listing.Active || !s.lifecycle.CanTransition(string(listing.Status), workflows.ListingPurchased) {
			return ledger.ErrListingNotActive
		}

		total, err = totalPrice(listing.PricePerCredit, listing.Amount)
		if err != nil {
			return err
		}

		if err := s.rail.Transfer(ctx, tx, buyer, listing.Seller, total); err != nil {
			return fmt.Errorf("payment failed: %w", err)
		}
		// The seller may have moved credits since listing
		if err := ledger.Debit(ctx, tx, listing.Seller, listing.Amount); err != nil {
			return err
		}
		if err := ledger.Credit(ctx, tx, buyer, listing.Amount); err != nil {
			return err
		}

		now := s.now()
		listing.Active = false
		listing.Status = ledger.ListingStatusPurchased
		listing.Buyer = &buyer
		listing.UpdatedAt = now
		listing.ClosedAt = &now
		return tx.UpdateListing(ctx, listing)
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			s.logger.Warn("Purchase rejected, seller no longer holds listed credits",
				zap.Uint64("listing_id", listingID),
				zap.String("buyer", buyer))
		}
		return nil, fmt.Errorf("purchase failed: %w", err)
	}

	s.logger.Info("Listing purchased",
		zap.Uint64("listing_id", listingID),
		zap.Uint64("credit_id", listing.CreditID),
		zap.String("buyer", buyer),
		zap.String("seller", listing.Seller),
		zap.Int64("amount", listing.Amount),
		zap.Int64("total_price", total))

	event := s.listingEvent(notifications.EventListingPurchased, buyer, listing.Seller, listing)
	event.Attributes["total_price"] = total
	s.events.Emit(ctx, event)

	return &PurchaseReceipt{
		Listing:     listing,
		Buyer:       buyer,
		Seller:      listing.Seller,
		Amount:      listing.Amount,
		TotalPrice:  total,
		PurchasedAt: *listing.ClosedAt,
	}, nil
}

func (s *marketService) GetListing(ctx context.Context, listingID uint64) (*ledger.Listing, error) {
	listing, err := s.repo.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, ledger.ErrListingNotFound
	}
	return listing, nil
}

func (s *marketService) ListListings(ctx context.Context, filter ledger.ListingFilter) ([]ledger.Listing, error) {
	return s.repo.ListListings(ctx, filter)
}

// =====================================================
// Direct transfer and issues
// =====================================================

func (s *marketService) Transfer(ctx context.Context, sender string, req TransferRequest) (*TransferReceipt, error) {
	if sender == "" || req.Recipient == "" {
		return nil, ledger.ErrInvalidIdentity
	}
	if err := s.validator.ValidateAmount("amount", req.Amount); err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(ctx, sender, req.Recipient); err != nil {
		return nil, err
	}

	receipt := &TransferReceipt{Sender: sender, Recipient: req.Recipient, Amount: req.Amount}
	err := s.repo.Atomic(ctx, func(tx ledger.Store) error {
		if err := ledger.Move(ctx, tx, sender, req.Recipient, req.Amount); err != nil {
			return err
		}
		var err error
		if receipt.SenderBalance, err = tx.GetBalance(ctx, sender); err != nil {
			return err
		}
		receipt.RecipientBalance, err = tx.GetBalance(ctx, req.Recipient)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("transfer failed: %w", err)
	}
	receipt.TransferredAt = s.now()

	s.logger.Info("Credits transferred",
		zap.String("sender", sender),
		zap.String("recipient", req.Recipient),
		zap.Int64("amount", req.Amount))

	event := notifications.NewEvent(notifications.EventCreditsTransferred)
	event.Actor = sender
	event.Counterparty = req.Recipient
	event.Amount = req.Amount
	s.events.Emit(ctx, event)

	return receipt, nil
}

// ReportIssue records nothing in the ledger. The issue.reported event is
// its only effect.
func (s *marketService) ReportIssue(ctx context.Context, reporter string, creditID uint64, req ReportIssueRequest) (*IssueReceipt, error) {
	if err := s.validator.ValidateDescription(req.Description); err != nil {
		return nil, err
	}

	credit, err := s.repo.GetCredit(ctx, creditID)
	if err != nil {
		return nil, err
	}
	if credit == nil {
		return nil, ledger.ErrCreditNotFound
	}

	receipt := &IssueReceipt{CreditID: creditID, Reporter: reporter, ReportedAt: s.now()}

	s.logger.Info("Issue reported", zap.Uint64("credit_id", creditID), zap.String("reporter", reporter))

	event := notifications.NewEvent(notifications.EventIssueReported)
	event.Actor = reporter
	event.CreditID = creditID
	event.Attributes["description"] = req.Description
	s.events.Emit(ctx, event)

	return receipt, nil
}

func (s *marketService) GetBalance(ctx context.Context, owner string) (int64, error) {
	return s.repo.GetBalance(ctx, owner)
}

// =====================================================
// Payment accounts
// =====================================================

func (s *marketService) DepositFunds(ctx context.Context, caller string, req DepositRequest) (int64, error) {
	if caller != s.ownerID {
		return 0, ledger.ErrOwnerOnly
	}
	if req.Account == "" {
		return 0, ledger.ErrInvalidIdentity
	}
	if err := s.validator.ValidateAmount("amount", req.Amount); err != nil {
		return 0, err
	}

	var balance int64
	err := s.repo.Atomic(ctx, func(tx ledger.Store) error {
		if err := ledger.Deposit(ctx, tx, req.Account, req.Amount); err != nil {
			return err
		}
		var err error
		balance, err = tx.GetPaymentBalance(ctx, req.Account)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("deposit failed: %w", err)
	}

	s.logger.Info("Funds deposited", zap.String("account", req.Account), zap.Int64("amount", req.Amount))

	event := notifications.NewEvent(notifications.EventFundsDeposited)
	event.Actor = caller
	event.Counterparty = req.Account
	event.Amount = req.Amount
	s.events.Emit(ctx, event)

	return balance, nil
}

func (s *marketService) GetPaymentBalance(ctx context.Context, account string) (int64, error) {
	return s.repo.GetPaymentBalance(ctx, account)
}

// =====================================================
// Helpers
// =====================================================

func totalPrice(price, amount int64) (int64, error) {
	if price <= 0 || amount <= 0 {
		return 0, ledger.ErrInvalidAmount
	}
	if price > math.MaxInt64/amount {
		return 0, ledger.ErrAmountOverflow
	}
	return price * amount, nil
}

func (s *marketService) listingEvent(kind notifications.EventKind, actor, counterparty string, listing *ledger.Listing) *notifications.Event {
	event := notifications.NewEvent(kind)
	event.Actor = actor
	event.Counterparty = counterparty
	event.CreditID = listing.CreditID
	event.ListingID = listing.ListingID
	event.Amount = listing.Amount
	event.Price = listing.PricePerCredit
	event.Attributes["status"] = string(listing.Status)
	return event
}

func (s *marketService) emitListing(ctx context.Context, kind notifications.EventKind, actor, counterparty string, listing *ledger.Listing) {
	s.events.Emit(ctx, s.listingEvent(kind, actor, counterparty, listing))
}
