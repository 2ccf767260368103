package reports

import (
	"time"
)

// ConservationReport is a point-in-time consistency check of the ledger
type ConservationReport struct {
	TotalMinted   int64 `json:"total_minted"`
	TotalBalances int64 `json:"total_balances"`
	// Balanced reports whether held credits equal minted credits
	Balanced bool `json:"balanced"`

	Credits        int   `json:"credits"`
	Holders        int   `json:"holders"`
	ActiveListings int   `json:"active_listings"`
	ListedAmount   int64 `json:"listed_amount"`

	StaleListings []StaleListing `json:"stale_listings"`

	PaymentAccounts int   `json:"payment_accounts"`
	PaymentTotal    int64 `json:"payment_total"`

	NextCreditID  uint64 `json:"next_credit_id"`
	NextListingID uint64 `json:"next_listing_id"`

	Duration    time.Duration `json:"duration_ns"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// StaleListing is an active listing whose seller no longer holds the listed
// amount. A purchase of it would fail with insufficient balance.
type StaleListing struct {
	ListingID     uint64 `json:"listing_id"`
	Seller        string `json:"seller"`
	CreditID      uint64 `json:"credit_id"`
	Amount        int64  `json:"amount"`
	SellerBalance int64  `json:"seller_balance"`
}

// ExportRequest is the body of POST /reports/holdings/export
type ExportRequest struct {
	Format string `json:"format"`
}

// ExportReceipt describes an uploaded holdings export
type ExportReceipt struct {
	Bucket      string    `json:"bucket"`
	Key         string    `json:"key"`
	Format      string    `json:"format"`
	Size        int       `json:"size"`
	URL         string    `json:"url,omitempty"`
	RequestedBy string    `json:"requested_by"`
	CreatedAt   time.Time `json:"created_at"`
}
