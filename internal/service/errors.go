package service

import "errors"

var (
	// ErrSaleExists is returned when attempting to create a sale that already exists.
	ErrSaleExists = errors.New("sale already exists")

	// ErrSaleNotFound is returned when a sale cannot be found.
	ErrSaleNotFound = errors.New("sale not found")

	// ErrInvalidRequest is returned when request data is invalid or incomplete.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrDuplicateOrder is the internal DOL-level signal for a uniqueness-constraint hit
	// on (sale_id, user_id). Step 6a of the admission pipeline translates it to
	// ResultAlreadyPurchased at the service boundary.
	ErrDuplicateOrder = errors.New("duplicate order")

	// ErrTransientDurable signals a recoverable DOL connectivity failure at
	// insert time (step 6b). The admission pipeline compensates fully and maps
	// this to ResultError regardless; the distinction from ErrFatalDurable is
	// for operator-facing logs, not response shaping.
	ErrTransientDurable = errors.New("durable store temporarily unavailable")

	// ErrFatalDurable signals a non-recoverable DOL failure at insert time
	// (constraint violation other than duplicate, data corruption, etc).
	ErrFatalDurable = errors.New("durable store fatal error")
)
