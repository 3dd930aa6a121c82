package auction

import "errors"

// Errors returned by auction operations. Every one of them is a
// precondition violation: a rejected operation leaves all records
// untouched and is never retried by the core itself.
var (
	ErrProxyClose            = errors.New("close can only be requested through the round authority")
	ErrAuctionEarly          = errors.New("auction has not yet begun")
	ErrAuctionLate           = errors.New("auction has concluded")
	ErrInvalidDateRange      = errors.New("start time must occur before end time")
	ErrInvalidStartDate      = errors.New("start time must occur now or in the future")
	ErrMismatchedGlobalVault = errors.New("global vault must match the config global vault")
	ErrInvalidEscrow         = errors.New("incorrect escrow account")
	ErrInvalidFee            = errors.New("invalid fee")
	ErrInvalidFeeBurn        = errors.New("invalid fee burn")
	ErrIncorrectAuthority    = errors.New("incorrect authority")
	ErrAuctionInvalid        = errors.New("escrow account holds no balance to auction")
	ErrInvalidEscrowAmount   = errors.New("invalid escrow amount")
	ErrPreviousRoundNotEnd   = errors.New("previous auction round has not ended")
)
