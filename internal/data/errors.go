package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrTxRequired is returned by *Tx methods called without a transaction.
	ErrTxRequired = errors.New("transaction is required")
)
