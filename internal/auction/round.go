package auction

// Round is one live selling window: a fixed asset quantity per bid, a price
// decay schedule and a bounded number of purchase slots. A config has at most
// one round record, reused across rounds.
type Round struct {
	RoundID       uint64
	Authority     string
	EscrowAccount string
	Amount        uint64
	StartingPrice uint64
	StartingTime  int64
	AuctionPeriod int64
	SlotCount     uint32
}

// Settlement describes the transfers a successful bid must apply as one
// atomic unit together with the round mutation.
type Settlement struct {
	// Price in native units owed by the bidder to the global vault.
	Price uint64
	// Amount of the escrowed asset owed to the bidder.
	Amount uint64
}

// OpenParams are the caller-supplied parameters for OpenRound.
type OpenParams struct {
	Authority     string
	EscrowAccount string
	EscrowBalance uint64
	StartingTime  int64
	Period        int64
	StartingPrice uint64
	Amount        uint64
}

// OpenRound validates the window parameters and the config's schedule gate
// and opens a new round. On success it mutates cfg: the schedule cursor moves
// to now+interval (the anti-snipe spacing for the *next* round, independent
// of how long this one runs) and a round id is consumed. On failure cfg is
// untouched. existing is the previous round record for this config, nil if
// none was ever opened.
func OpenRound(cfg *Config, existing *Round, p OpenParams, now int64) (*Round, error) {
	if p.Period <= 0 {
		return nil, ErrInvalidDateRange
	}
	if now > p.StartingTime {
		return nil, ErrInvalidStartDate
	}
	if p.EscrowBalance == 0 {
		return nil, ErrAuctionInvalid
	}
	if p.Amount == 0 {
		return nil, ErrInvalidEscrowAmount
	}
	if cfg.NextAuctionStart > now {
		return nil, ErrPreviousRoundNotEnd
	}
	if existing != nil && existing.SlotCount > 0 {
		return nil, ErrPreviousRoundNotEnd
	}

	cfg.NextAuctionStart = now + cfg.IntervalSeconds

	return &Round{
		RoundID:       cfg.ConsumeRoundID(),
		Authority:     p.Authority,
		EscrowAccount: p.EscrowAccount,
		Amount:        min(p.Amount, p.EscrowBalance),
		StartingPrice: p.StartingPrice,
		StartingTime:  p.StartingTime,
		AuctionPeriod: p.Period,
		SlotCount:     cfg.MaxAuctionSlots,
	}, nil
}

// Open reports whether the round can still accept bids.
func (r *Round) Open() bool {
	return r.SlotCount > 0
}

// ProcessBid validates the decay window and slot inventory at now, computes
// the charged price and applies the round mutation: one slot is consumed and
// the decay curve re-bases at now. The re-base means the price jumps back to
// StartingPrice for the next bidder after every successful bid; that is the
// product rule, not an accident.
func (r *Round) ProcessBid(now int64) (Settlement, error) {
	if now < r.StartingTime {
		return Settlement{}, ErrAuctionEarly
	}
	if now > r.StartingTime+r.AuctionPeriod {
		return Settlement{}, ErrAuctionLate
	}
	if r.SlotCount == 0 {
		return Settlement{}, ErrAuctionLate
	}

	price := PriceAt(r.StartingPrice, r.StartingTime, r.AuctionPeriod, now)

	r.StartingTime = now
	r.SlotCount--

	return Settlement{Price: price, Amount: r.Amount}, nil
}

// Close verifies the caller owns the round. It is callable at any slot
// count; an owner may abandon remaining slots mid-round. The caller is
// responsible for returning the full remaining escrowed balance and
// releasing the escrow account and the round record.
func (r *Round) Close(caller string) error {
	if caller != r.Authority {
		return ErrIncorrectAuthority
	}
	return nil
}
