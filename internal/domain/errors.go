package domain

import "errors"

// Fill preflight and settlement failure reasons. Each is a distinct
// sentinel so callers can branch on the exact cause with errors.Is.
var (
	ErrStatusInvalid            = errors.New("offer status invalid")
	ErrStatusCancelled          = errors.New("offer cancelled")
	ErrStatusFilled             = errors.New("offer fully filled")
	ErrStatusExpired            = errors.New("offer expired")
	ErrInvalidParameters        = errors.New("invalid offer parameters")
	ErrExceedsFillable          = errors.New("requested amount exceeds remaining fillable")
	ErrInvalidSignature         = errors.New("signature does not recover to maker")
	ErrUnauthorized             = errors.New("taker not authorized for this offer")
	ErrBelowMinimum             = errors.New("first fill below minimum taker amount")
	ErrInsufficientTakerBalance = errors.New("insufficient taker balance")
	ErrInsufficientMakerBalance = errors.New("insufficient maker balance")
	ErrOverflow                 = errors.New("amount overflow")
	ErrAllowanceRequestFailed   = errors.New("allowance increase request failed")
	ErrSettlementRejected       = errors.New("settlement rejected fill")
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrAuthFailed    = errors.New("api authentication failed")
	ErrSigningFailed = errors.New("signing failed")
	ErrWSDisconnect  = errors.New("websocket disconnected")
	ErrLockHeld      = errors.New("lock already held")
)
