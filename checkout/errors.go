package checkout

import "errors"

var (
	ErrNotConfigured      = errors.New("beneficiary payment key is not configured")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInvalidTransition  = errors.New("operation not allowed in current state")
	ErrSessionClosed      = errors.New("session is closed")
	ErrSuperseded         = errors.New("payment request superseded by a newer one")
	ErrSessionNotFound    = errors.New("session not found")
	ErrUnknownBeneficiary = errors.New("beneficiary not found")
)
