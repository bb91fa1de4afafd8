package models

import "errors"

// Kind classifies an error for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindInvalid
	KindTransient
	KindForbidden
	KindUnauthorized
)

// Error is a domain error with a stable, user visible message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

var (
	ErrUserNotFound          = newError(KindNotFound, "User not found")
	ErrCardNotFound          = newError(KindNotFound, "Card not found")
	ErrSenderCardNotFound    = newError(KindNotFound, "Sender card not found")
	ErrRecipientCardNotFound = newError(KindNotFound, "Recipient card not found")

	ErrCardAlreadyActive    = newError(KindConflict, "Card already activated")
	ErrCardAlreadyBlocked   = newError(KindConflict, "Card already is blocked")
	ErrCardPendingBlock     = newError(KindConflict, "Card waiting be block")
	ErrCardInvalidStatus    = newError(KindConflict, "Card status conflict")
	ErrCardPendingActive    = newError(KindConflict, "Card creation already requested")
	ErrInsufficientFunds    = newError(KindConflict, "There are not enough funds on the sender card")
	ErrCardNotActive        = newError(KindConflict, "One of the cards is not active")
	ErrDifferentCardholders = newError(KindConflict, "One of the cards is not cardholder")
	ErrSameCardTransfer     = newError(KindConflict, "Can't transfer to the same card")
	ErrUserAlreadyExists    = newError(KindConflict, "User already exists")
	ErrDuplicateRequest     = newError(KindConflict, "Request with this idempotency key was already accepted")

	ErrInvalidAmount       = newError(KindInvalid, "Amount must be positive with at most two decimal places")
	ErrInvalidRegistration = newError(KindInvalid, "Username, password, firstname and lastname are required")
	ErrInvalidRequest      = newError(KindInvalid, "Malformed request")

	ErrLockTimeout = newError(KindTransient, "Card is locked by another operation, retry later")
	ErrStaleCard   = newError(KindTransient, "Card was modified concurrently, retry later")

	ErrForbidden          = newError(KindForbidden, "Access denied")
	ErrInvalidCredentials = newError(KindUnauthorized, "Invalid credentials")
)

// KindOf returns the kind of the first domain error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
