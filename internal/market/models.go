package market

import (
	"time"

	"carbon-scribe/credit-market/internal/ledger"
)

// MintRequest describes a new credit batch
type MintRequest struct {
	Amount               int64  `json:"amount"`
	VintageYear          int    `json:"vintage_year"`
	VerificationStandard string `json:"verification_standard"`
	ProjectType          string `json:"project_type"`
}

// CreateListingRequest offers amount credits of one batch at a unit price
type CreateListingRequest struct {
	CreditID       uint64 `json:"credit_id" binding:"required"`
	Amount         int64  `json:"amount"`
	PricePerCredit int64  `json:"price_per_credit"`
}

// UpdateListingRequest replaces a listing's amount and price
type UpdateListingRequest struct {
	Amount         int64 `json:"amount"`
	PricePerCredit int64 `json:"price_per_credit"`
}

// TransferRequest moves credits directly to another holder
type TransferRequest struct {
	Recipient string `json:"recipient" binding:"required"`
	Amount    int64  `json:"amount"`
}

// DepositRequest funds a payment account
type DepositRequest struct {
	Account string `json:"account" binding:"required"`
	Amount  int64  `json:"amount"`
}

// ReportIssueRequest flags a credit batch for oversight
type ReportIssueRequest struct {
	Description string `json:"description"`
}

// PurchaseReceipt is returned by a successful purchase
type PurchaseReceipt struct {
	Listing     *ledger.Listing `json:"listing"`
	Buyer       string          `json:"buyer"`
	Seller      string          `json:"seller"`
	Amount      int64           `json:"amount"`
	TotalPrice  int64           `json:"total_price"`
	PurchasedAt time.Time       `json:"purchased_at"`
}

// TransferReceipt is returned by a successful direct transfer
type TransferReceipt struct {
	Sender           string    `json:"sender"`
	Recipient        string    `json:"recipient"`
	Amount           int64     `json:"amount"`
	SenderBalance    int64     `json:"sender_balance"`
	RecipientBalance int64     `json:"recipient_balance"`
	TransferredAt    time.Time `json:"transferred_at"`
}

// IssueReceipt acknowledges an issue report
type IssueReceipt struct {
	CreditID   uint64    `json:"credit_id"`
	Reporter   string    `json:"reporter"`
	ReportedAt time.Time `json:"reported_at"`
}

// BalanceResponse is the balance lookup payload
type BalanceResponse struct {
	Owner   string `json:"owner"`
	Balance int64  `json:"balance"`
}

// PaymentBalanceResponse is the payment account lookup payload
type PaymentBalanceResponse struct {
	Account string `json:"account"`
	Balance int64  `json:"balance"`
}

// ListingsResponse wraps a page of listings
type ListingsResponse struct {
	Listings []ledger.Listing `json:"listings"`
	Count    int              `json:"count"`
}
