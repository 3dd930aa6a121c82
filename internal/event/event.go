package event

import (
	"encoding/json"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	ConfigCreated Type = "config.created"
	RoundOpened   Type = "round.opened"
	BidPlaced     Type = "bid.placed"
	RoundClosed   Type = "round.closed"
)

// Event is a single domain event. The aggregate is the auction config; all
// rounds of a config share its event stream.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Data        json.RawMessage `json:"data" db:"data"`
	Version     int             `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// ConfigCreatedData is the payload for ConfigCreated events.
type ConfigCreatedData struct {
	Authority    string `json:"authority"`
	Moderator    string `json:"moderator"`
	CurrencyMint string `json:"currency_mint"`
	FeeBps       uint32 `json:"fee_bps"`
	FeeBurnBps   uint32 `json:"fee_burn_bps"`
}

// RoundOpenedData is the payload for RoundOpened events.
type RoundOpenedData struct {
	RoundID       uint64 `json:"round_id"`
	StartingPrice uint64 `json:"starting_price"`
	StartingTime  int64  `json:"starting_time"`
	AuctionPeriod int64  `json:"auction_period"`
	Amount        uint64 `json:"amount"`
	SlotCount     uint32 `json:"slot_count"`
}

// BidPlacedData is the payload for BidPlaced events. The bidder is recorded
// so a future refund ledger can be replayed from the stream, even though the
// bid path itself keeps no per-bidder state.
type BidPlacedData struct {
	RoundID        uint64 `json:"round_id"`
	Bidder         string `json:"bidder"`
	Price          uint64 `json:"price"`
	Amount         uint64 `json:"amount"`
	SlotsRemaining uint32 `json:"slots_remaining"`
}

// RoundClosedData is the payload for RoundClosed events.
type RoundClosedData struct {
	RoundID  uint64 `json:"round_id"`
	Released uint64 `json:"released"`
}
