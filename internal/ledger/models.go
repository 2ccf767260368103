package ledger

import (
	"time"

	"carbon-scribe/credit-market/pkg/workflows"
)

// Sequence names for the monotonic id allocators.
const (
	SequenceCreditID  = "credit_id"
	SequenceListingID = "listing_id"
)

// CreditBalance is the amount of credits held by one owner. Owners without a
// row hold zero.
type CreditBalance struct {
	Owner     string    `json:"owner" gorm:"primaryKey;size:128"`
	Amount    int64     `json:"amount" gorm:"not null;check:chk_credit_balances_amount,amount >= 0"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CreditBalance) TableName() string {
	return "credit_balances"
}

// CreditRecord is the immutable issuance metadata of one minted batch.
type CreditRecord struct {
	CreditID             uint64    `json:"credit_id" gorm:"primaryKey;autoIncrement:false"`
	Issuer               string    `json:"issuer" gorm:"size:128;not null;index"`
	VintageYear          int       `json:"vintage_year" gorm:"not null;index"`
	VerificationStandard string    `json:"verification_standard" gorm:"size:64;not null"`
	ProjectType          string    `json:"project_type" gorm:"size:64;not null"`
	Amount               int64     `json:"amount" gorm:"not null"` // minted amount, never changes
	CreatedAt            time.Time `json:"created_at"`
}

func (CreditRecord) TableName() string {
	return "credit_records"
}

// ListingStatus represents the lifecycle status of a listing
type ListingStatus string

const (
	ListingStatusActive    ListingStatus = workflows.ListingActive
	ListingStatusCancelled ListingStatus = workflows.ListingCancelled
	ListingStatusPurchased ListingStatus = workflows.ListingPurchased
)

// Listing is a fixed-price offer to sell an amount of one credit batch.
type Listing struct {
	ListingID      uint64        `json:"listing_id" gorm:"primaryKey;autoIncrement:false"`
	Seller         string        `json:"seller" gorm:"size:128;not null;index"`
	CreditID       uint64        `json:"credit_id" gorm:"not null;index"`
	Amount         int64         `json:"amount" gorm:"not null"`
	PricePerCredit int64         `json:"price_per_credit" gorm:"not null"`
	Active         bool          `json:"active" gorm:"not null;index"`
	Status         ListingStatus `json:"status" gorm:"size:16;not null"`
	Buyer          *string       `json:"buyer,omitempty" gorm:"size:128"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	ClosedAt       *time.Time    `json:"closed_at,omitempty"`
}

func (Listing) TableName() string {
	return "listings"
}

// PaymentAccount holds the payment-rail value of one party.
type PaymentAccount struct {
	Account   string    `json:"account" gorm:"primaryKey;size:128"`
	Balance   int64     `json:"balance" gorm:"not null;check:chk_payment_accounts_balance,balance >= 0"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PaymentAccount) TableName() string {
	return "payment_accounts"
}

// Sequence is a monotonic id allocator row. NextValue is the id the next
// successful creation receives.
type Sequence struct {
	Name      string `gorm:"primaryKey;size:32"`
	NextValue uint64 `gorm:"not null"`
}

func (Sequence) TableName() string {
	return "ledger_sequences"
}

// ListingFilter narrows ListListings results. Zero values match everything.
type ListingFilter struct {
	Seller     string
	CreditID   uint64
	ActiveOnly bool
	Limit      int
	Offset     int
}
