package reports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbon-scribe/credit-market/internal/ledger"
	"carbon-scribe/credit-market/internal/notifications"
	"carbon-scribe/credit-market/internal/reports/export"
	"carbon-scribe/credit-market/pkg/storage"
)

// ErrStorageDisabled is returned by UploadHoldings when no bucket is configured
var ErrStorageDisabled = errors.New("reports: export storage is not configured")

// Config contains reports service configuration
type Config struct {
	Bucket     string
	Prefix     string
	PresignTTL time.Duration
}

// Service provides the conservation audit and holdings exports
type Service struct {
	ledger  ledger.Reader
	storage storage.S3Client
	events  notifications.Emitter
	config  Config
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.RWMutex
	latest *ConservationReport
}

// NewService creates a new reports service. storage may be nil, in which
// case uploads fail with ErrStorageDisabled.
func NewService(reader ledger.Reader, store storage.S3Client, events notifications.Emitter, config Config, logger *zap.Logger) *Service {
	if config.PresignTTL == 0 {
		config.PresignTTL = 15 * time.Minute
	}
	return &Service{
		ledger:  reader,
		storage: store,
		events:  events,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// RunConservationAudit compares held credits against minted credits and
// flags active listings the seller can no longer cover. An imbalance is
// logged at error level; it is reported, not returned as an error.
func (s *Service) RunConservationAudit(ctx context.Context) (*ConservationReport, error) {
	report, err := s.conservation(ctx)
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.Int64("total_minted", report.TotalMinted),
		zap.Int64("total_balances", report.TotalBalances),
		zap.Int("active_listings", report.ActiveListings),
		zap.Int("stale_listings", len(report.StaleListings)),
	}
	if report.Balanced {
		s.logger.Info("Conservation audit completed", fields...)
	} else {
		s.logger.Error("Conservation audit found an imbalance", fields...)
	}

	s.mu.Lock()
	s.latest = report
	s.mu.Unlock()

	if s.events != nil {
		event := notifications.NewEvent(notifications.EventAuditCompleted)
		event.Amount = report.TotalBalances
		event.Attributes["total_minted"] = report.TotalMinted
		event.Attributes["total_balances"] = report.TotalBalances
		event.Attributes["balanced"] = report.Balanced
		event.Attributes["stale_listings"] = len(report.StaleListings)
		s.events.Emit(ctx, event)
	}

	return report, nil
}

func (s *Service) conservation(ctx context.Context) (*ConservationReport, error) {
	start := s.now()

	minted, err := s.ledger.TotalMinted(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to total minted credits: %w", err)
	}
	balances, err := s.ledger.ListBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	credits, err := s.ledger.ListCredits(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list credits: %w", err)
	}
	listings, err := s.ledger.ListListings(ctx, ledger.ListingFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list active listings: %w", err)
	}
	accounts, err := s.ledger.ListPaymentAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment accounts: %w", err)
	}

	report := &ConservationReport{
		TotalMinted:     minted,
		Credits:         len(credits),
		ActiveListings:  len(listings),
		StaleListings:   make([]StaleListing, 0),
		PaymentAccounts: len(accounts),
	}

	held := make(map[string]int64, len(balances))
	for _, b := range balances {
		report.TotalBalances += b.Amount
		if b.Amount > 0 {
			report.Holders++
		}
		held[b.Owner] = b.Amount
	}
	report.Balanced = report.TotalBalances == report.TotalMinted

	for _, l := range listings {
		report.ListedAmount += l.Amount
		if held[l.Seller] < l.Amount {
			report.StaleListings = append(report.StaleListings, StaleListing{
				ListingID:     l.ListingID,
				Seller:        l.Seller,
				CreditID:      l.CreditID,
				Amount:        l.Amount,
				SellerBalance: held[l.Seller],
			})
		}
	}
	for _, a := range accounts {
		report.PaymentTotal += a.Balance
	}

	if report.NextCreditID, err = s.ledger.PeekSequence(ctx, ledger.SequenceCreditID); err != nil {
		return nil, fmt.Errorf("failed to read credit sequence: %w", err)
	}
	if report.NextListingID, err = s.ledger.PeekSequence(ctx, ledger.SequenceListingID); err != nil {
		return nil, fmt.Errorf("failed to read listing sequence: %w", err)
	}

	report.GeneratedAt = s.now().UTC()
	report.Duration = report.GeneratedAt.Sub(start)
	return report, nil
}

// LatestAudit returns the most recent audit result, or nil before the first run
func (s *Service) LatestAudit() *ConservationReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// HoldingsTable assembles the holdings report: a summary, every non-zero
// balance, every active listing and every payment account
func (s *Service) HoldingsTable(ctx context.Context) (*export.Table, error) {
	report, err := s.conservation(ctx)
	if err != nil {
		return nil, err
	}
	balances, err := s.ledger.ListBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	listings, err := s.ledger.ListListings(ctx, ledger.ListingFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list active listings: %w", err)
	}
	accounts, err := s.ledger.ListPaymentAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment accounts: %w", err)
	}

	balanceRows := make([]map[string]interface{}, 0, len(balances))
	for _, b := range balances {
		if b.Amount == 0 {
			continue
		}
		balanceRows = append(balanceRows, map[string]interface{}{
			"owner":  b.Owner,
			"amount": b.Amount,
		})
	}

	listingRows := make([]map[string]interface{}, 0, len(listings))
	for _, l := range listings {
		listingRows = append(listingRows, map[string]interface{}{
			"listing_id":       l.ListingID,
			"seller":           l.Seller,
			"credit_id":        l.CreditID,
			"amount":           l.Amount,
			"price_per_credit": l.PricePerCredit,
			"created_at":       l.CreatedAt,
		})
	}

	accountRows := make([]map[string]interface{}, 0, len(accounts))
	for _, a := range accounts {
		accountRows = append(accountRows, map[string]interface{}{
			"account": a.Account,
			"balance": a.Balance,
		})
	}

	return &export.Table{
		Title:       "Credit Holdings",
		GeneratedAt: report.GeneratedAt,
		Summary: []export.SummaryItem{
			{Label: "Total Minted", Value: report.TotalMinted},
			{Label: "Total Held", Value: report.TotalBalances},
			{Label: "Balanced", Value: report.Balanced},
			{Label: "Credit Batches", Value: report.Credits},
			{Label: "Active Listings", Value: report.ActiveListings},
			{Label: "Stale Listings", Value: len(report.StaleListings)},
			{Label: "Payment Total", Value: report.PaymentTotal},
		},
		Sections: []export.Section{
			{
				Name: "Balances",
				Columns: []export.Column{
					{Key: "owner", Label: "Owner"},
					{Key: "amount", Label: "Amount"},
				},
				Rows: balanceRows,
			},
			{
				Name: "Listings",
				Columns: []export.Column{
					{Key: "listing_id", Label: "Listing"},
					{Key: "seller", Label: "Seller"},
					{Key: "credit_id", Label: "Credit"},
					{Key: "amount", Label: "Amount"},
					{Key: "price_per_credit", Label: "Price"},
					{Key: "created_at", Label: "Listed At"},
				},
				Rows: listingRows,
			},
			{
				Name: "Payments",
				Columns: []export.Column{
					{Key: "account", Label: "Account"},
					{Key: "balance", Label: "Balance"},
				},
				Rows: accountRows,
			},
		},
	}, nil
}

// ExportHoldings renders the holdings report to w
func (s *Service) ExportHoldings(ctx context.Context, w io.Writer, format export.Format) error {
	table, err := s.HoldingsTable(ctx)
	if err != nil {
		return err
	}
	if err := export.Render(w, format, table); err != nil {
		return fmt.Errorf("failed to render %s export: %w", format, err)
	}
	return nil
}

// UploadHoldings renders the holdings report and stores it in the
// configured bucket under prefix/holdings/<date>/<uuid>.<ext>
func (s *Service) UploadHoldings(ctx context.Context, format export.Format, requestedBy string) (*ExportReceipt, error) {
	if s.storage == nil || s.config.Bucket == "" {
		return nil, ErrStorageDisabled
	}

	var buf bytes.Buffer
	if err := s.ExportHoldings(ctx, &buf, format); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	key := path.Join(s.config.Prefix, "holdings", now.Format("2006-01-02"), uuid.New().String()+"."+format.Extension())
	size := buf.Len()
	if err := s.storage.Upload(ctx, s.config.Bucket, key, &buf, format.ContentType()); err != nil {
		s.logger.Error("Failed to upload holdings export", zap.Error(err), zap.String("key", key))
		return nil, err
	}

	receipt := &ExportReceipt{
		Bucket:      s.config.Bucket,
		Key:         key,
		Format:      string(format),
		Size:        size,
		RequestedBy: requestedBy,
		CreatedAt:   now,
	}
	if url, err := s.storage.GetPresignedURL(ctx, s.config.Bucket, key, s.config.PresignTTL); err != nil {
		s.logger.Warn("Failed to presign holdings export", zap.Error(err), zap.String("key", key))
	} else {
		receipt.URL = url
	}

	s.logger.Info("Holdings export uploaded",
		zap.String("key", key),
		zap.String("format", string(format)),
		zap.Int("size", size),
		zap.String("requested_by", requestedBy))

	return receipt, nil
}
