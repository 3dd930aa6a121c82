package store

import (
	"context"
	"errors"
	"time"

	"github.com/askelund/auctiond/internal/event"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrInsufficientBalance is returned when a transfer would overdraw the
// source account.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Config is the persisted auction configuration record, keyed by
// (authority, currency_mint). Amounts and rates are stored as BIGINT; the
// domain layer owns the unsigned interpretation.
type Config struct {
	ID               string    `db:"id"`
	Version          int       `db:"version"`
	Authority        string    `db:"authority"`
	Moderator        string    `db:"moderator"`
	CurrencyMint     string    `db:"currency_mint"`
	GlobalVault      string    `db:"global_vault"`
	FeeAccount       string    `db:"fee_account"`
	IntervalSeconds  int64     `db:"interval_seconds"`
	NextAuctionStart int64     `db:"next_auction_start"`
	NextRoundID      int64     `db:"next_round_id"`
	FeeBps           int64     `db:"fee_bps"`
	FeeBurnBps       int64     `db:"fee_burn_bps"`
	MaxAuctionSlots  int64     `db:"max_auction_slots"`
	EventSeq         int64     `db:"event_seq"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// Round is the persisted round record. A config has at most one row, reused
// across rounds, so the record is keyed by config id.
type Round struct {
	ConfigID      string    `db:"config_id"`
	RoundID       int64     `db:"round_id"`
	Authority     string    `db:"authority"`
	EscrowAccount string    `db:"escrow_account"`
	Amount        int64     `db:"amount"`
	StartingPrice int64     `db:"starting_price"`
	StartingTime  int64     `db:"starting_time"`
	AuctionPeriod int64     `db:"auction_period"`
	SlotCount     int64     `db:"slot_count"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Account is a ledger account holding the platform's native unit.
type Account struct {
	ID        string    `db:"id"`
	Owner     string    `db:"owner"`
	Balance   int64     `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
}

// TokenAccount holds a fungible asset balance for one owner and mint.
type TokenAccount struct {
	ID        string    `db:"id"`
	Owner     string    `db:"owner"`
	Mint      string    `db:"mint"`
	Balance   int64     `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
}

// Tx is the set of record and ledger operations available inside one atomic
// unit. Every record read takes a write lock on its row, so two concurrent
// operations against the same record serialize: the loser re-reads committed
// state and is rejected by the domain preconditions instead of double
// spending a slot.
type Tx interface {
	// Config records.
	GetConfigForUpdate(ctx context.Context, authority, currencyMint string) (*Config, error)
	InsertConfig(ctx context.Context, c *Config) error
	SaveConfig(ctx context.Context, c *Config) error

	// Round records. GetRoundForUpdate returns ErrNotFound when the config
	// never had a round; UpsertRound carries the create-if-absent semantics.
	GetRoundForUpdate(ctx context.Context, configID string) (*Round, error)
	UpsertRound(ctx context.Context, r *Round) error
	DeleteRound(ctx context.Context, configID string) error

	// Native-unit ledger.
	EnsureAccount(ctx context.Context, owner string) (*Account, error)
	TransferNative(ctx context.Context, fromOwner, toOwner string, amount uint64) error

	// Asset ledger. EnsureTokenAccount creates the owner's account for the
	// mint if absent and returns it either way.
	EnsureTokenAccount(ctx context.Context, owner, mint string) (*TokenAccount, error)
	GetTokenAccountForUpdate(ctx context.Context, id string) (*TokenAccount, error)
	TransferToken(ctx context.Context, fromID, toID string, amount uint64) error
	CloseTokenAccount(ctx context.Context, id string) error

	// Domain events, appended as part of the same atomic unit.
	AppendEvents(ctx context.Context, events ...event.Event) error
}

// Store opens atomic units against the hosting ledger. The callback either
// commits entirely or has no effect.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}
