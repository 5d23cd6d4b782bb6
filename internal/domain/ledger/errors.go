package ledger

import "errors"

var (
	ErrEntryNotFound       = errors.New("ledger entry not found")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidEntryType    = errors.New("invalid ledger entry type")
	ErrInvalidMethod       = errors.New("invalid payment method")
	ErrDuplicateKey        = errors.New("idempotency key already used")
	ErrInsufficientFunds   = errors.New("insufficient wallet balance")
	ErrLedgerInconsistency = errors.New("ledger inconsistency detected")
)
