package models

import "github.com/shopspring/decimal"

// AmountScale is the number of fractional digits a balance can hold.
const AmountScale = 2

// TransferRequest moves Amount from the card named in the call to TargetCardID.
type TransferRequest struct {
	TargetCardID int64           `json:"id"`
	Amount       decimal.Decimal `json:"amount"`
}
