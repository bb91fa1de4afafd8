package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CardStatus is the lifecycle state of a card.
type CardStatus string

const (
	StatusPendingActive CardStatus = "PENDING_ACTIVE"
	StatusActive        CardStatus = "ACTIVE"
	StatusPendingBlock  CardStatus = "PENDING_BLOCK"
	StatusBlocked       CardStatus = "BLOCKED"
)

// Statuses lists every card status in lifecycle order.
var Statuses = []CardStatus{StatusPendingActive, StatusActive, StatusPendingBlock, StatusBlocked}

// CardValidity is how long an issued card stays valid.
const CardValidity = 5

// Card represents a bank card
type Card struct {
	ID           int64           `json:"id"`
	Number       string          `json:"-"` // Encrypted, hex encoded
	LastDigits   string          `json:"last_digits"`
	NumberDigest string          `json:"-"`
	OwnerID      int64           `json:"owner_id"`
	HolderName   string          `json:"holder_name"`
	Balance      decimal.Decimal `json:"balance"`
	Status       CardStatus      `json:"status"`
	ExpiryDate   time.Time       `json:"expiry_date"`
	Version      int64           `json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// WithStatus returns a copy of the card in the given status.
func (c Card) WithStatus(status CardStatus) Card {
	c.Status = status
	return c
}

// WithBalance returns a copy of the card holding the given balance.
func (c Card) WithBalance(balance decimal.Decimal) Card {
	c.Balance = balance
	return c
}

// CardResponse is the display projection of a card.
type CardResponse struct {
	ID             int64           `json:"id"`
	Masked         string          `json:"masked"`
	CardHolderName string          `json:"card_holder_name"`
	Balance        decimal.Decimal `json:"balance"`
	ExpiryDate     string          `json:"expiry_date"` // Format: YYYY-MM-DD
	Status         CardStatus      `json:"status"`
}

// PageRequest selects one page of a listing, numbered from zero.
type PageRequest struct {
	Number int
	Size   int
}

// Offset returns the number of rows preceding the page.
func (p PageRequest) Offset() int {
	return p.Number * p.Size
}

// Page is one page of card projections.
type Page struct {
	Items  []CardResponse `json:"items"`
	Total  int            `json:"total"`
	Number int            `json:"page"`
	Size   int            `json:"size"`
}
