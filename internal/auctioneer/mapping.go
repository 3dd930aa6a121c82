package auctioneer

import (
	"github.com/askelund/auctiond/internal/auction"
	"github.com/askelund/auctiond/internal/store"
)

// The store keeps amounts as BIGINT; the domain owns the unsigned
// interpretation. These helpers are the only place the two views meet.

func newConfigRecord(c *auction.Config) *store.Config {
	return &store.Config{
		Version:          c.Version,
		Authority:        c.Authority,
		Moderator:        c.Moderator,
		CurrencyMint:     c.CurrencyMint,
		GlobalVault:      c.GlobalVault,
		FeeAccount:       c.FeeAccount,
		IntervalSeconds:  c.IntervalSeconds,
		NextAuctionStart: c.NextAuctionStart,
		NextRoundID:      int64(c.NextRoundID),
		FeeBps:           int64(c.FeeBps),
		FeeBurnBps:       int64(c.FeeBurnBps),
		MaxAuctionSlots:  int64(c.MaxAuctionSlots),
	}
}

func toDomainConfig(rec *store.Config) *auction.Config {
	return &auction.Config{
		Version:          rec.Version,
		Authority:        rec.Authority,
		Moderator:        rec.Moderator,
		CurrencyMint:     rec.CurrencyMint,
		GlobalVault:      rec.GlobalVault,
		FeeAccount:       rec.FeeAccount,
		IntervalSeconds:  rec.IntervalSeconds,
		NextAuctionStart: rec.NextAuctionStart,
		NextRoundID:      uint64(rec.NextRoundID),
		FeeBps:           uint32(rec.FeeBps),
		FeeBurnBps:       uint32(rec.FeeBurnBps),
		MaxAuctionSlots:  uint32(rec.MaxAuctionSlots),
	}
}

// toDomainRound returns nil for a nil record, which OpenRound reads as "no
// previous round".
func toDomainRound(rec *store.Round) *auction.Round {
	if rec == nil {
		return nil
	}
	return &auction.Round{
		RoundID:       uint64(rec.RoundID),
		Authority:     rec.Authority,
		EscrowAccount: rec.EscrowAccount,
		Amount:        uint64(rec.Amount),
		StartingPrice: uint64(rec.StartingPrice),
		StartingTime:  rec.StartingTime,
		AuctionPeriod: rec.AuctionPeriod,
		SlotCount:     uint32(rec.SlotCount),
	}
}

func fromDomainRound(configID string, prev *store.Round, r *auction.Round) *store.Round {
	rec := &store.Round{
		ConfigID:      configID,
		RoundID:       int64(r.RoundID),
		Authority:     r.Authority,
		EscrowAccount: r.EscrowAccount,
		Amount:        int64(r.Amount),
		StartingPrice: int64(r.StartingPrice),
		StartingTime:  r.StartingTime,
		AuctionPeriod: r.AuctionPeriod,
		SlotCount:     int64(r.SlotCount),
	}
	if prev != nil {
		rec.CreatedAt = prev.CreatedAt
	}
	return rec
}
