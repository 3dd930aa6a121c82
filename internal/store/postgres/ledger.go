package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/askelund/auctiond/internal/clock"
	"github.com/askelund/auctiond/internal/event"
	"github.com/askelund/auctiond/internal/store"
)

// Ledger implements store.Store on Postgres. Each WithinTx call is one
// atomic unit; records are read with row-level write locks so concurrent
// operations against the same record serialize in the database.
type Ledger struct {
	db  *sqlx.DB
	clk clock.Clock
}

// NewLedger returns a new Ledger.
func NewLedger(db *sqlx.DB, clk clock.Clock) *Ledger {
	return &Ledger{db: db, clk: clk}
}

// WithinTx runs fn inside a transaction, committing only if fn returns nil.
func (l *Ledger) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&ledgerTx{tx: tx, clk: l.clk}); err != nil {
		return err
	}
	return tx.Commit()
}

type ledgerTx struct {
	tx  *sqlx.Tx
	clk clock.Clock
}

func (t *ledgerTx) GetConfigForUpdate(ctx context.Context, authority, currencyMint string) (*store.Config, error) {
	var c store.Config
	err := t.tx.GetContext(ctx, &c,
		`SELECT * FROM auction_configs WHERE authority = $1 AND currency_mint = $2 FOR UPDATE`,
		authority, currencyMint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("config for %s/%s: %w", authority, currencyMint, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting config: %w", err)
	}
	return &c, nil
}

func (t *ledgerTx) InsertConfig(ctx context.Context, c *store.Config) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := t.clk.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := t.tx.NamedExecContext(ctx,
		`INSERT INTO auction_configs
		   (id, version, authority, moderator, currency_mint, global_vault, fee_account,
		    interval_seconds, next_auction_start, next_round_id, fee_bps, fee_burn_bps,
		    max_auction_slots, event_seq, created_at, updated_at)
		 VALUES
		   (:id, :version, :authority, :moderator, :currency_mint, :global_vault, :fee_account,
		    :interval_seconds, :next_auction_start, :next_round_id, :fee_bps, :fee_burn_bps,
		    :max_auction_slots, :event_seq, :created_at, :updated_at)`, c)
	if err != nil {
		return fmt.Errorf("inserting config: %w", err)
	}
	return nil
}

func (t *ledgerTx) SaveConfig(ctx context.Context, c *store.Config) error {
	c.UpdatedAt = t.clk.Now().UTC()
	result, err := t.tx.ExecContext(ctx,
		`UPDATE auction_configs
		 SET next_auction_start = $1, next_round_id = $2, event_seq = $3, updated_at = $4
		 WHERE id = $5`,
		c.NextAuctionStart, c.NextRoundID, c.EventSeq, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("config %s: %w", c.ID, store.ErrNotFound)
	}
	return nil
}

func (t *ledgerTx) GetRoundForUpdate(ctx context.Context, configID string) (*store.Round, error) {
	var r store.Round
	err := t.tx.GetContext(ctx, &r,
		`SELECT * FROM auction_rounds WHERE config_id = $1 FOR UPDATE`, configID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("round for config %s: %w", configID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting round: %w", err)
	}
	return &r, nil
}

func (t *ledgerTx) UpsertRound(ctx context.Context, r *store.Round) error {
	now := t.clk.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	_, err := t.tx.NamedExecContext(ctx,
		`INSERT INTO auction_rounds
		   (config_id, round_id, authority, escrow_account, amount, starting_price,
		    starting_time, auction_period, slot_count, created_at, updated_at)
		 VALUES
		   (:config_id, :round_id, :authority, :escrow_account, :amount, :starting_price,
		    :starting_time, :auction_period, :slot_count, :created_at, :updated_at)
		 ON CONFLICT (config_id) DO UPDATE SET
		   round_id = EXCLUDED.round_id,
		   authority = EXCLUDED.authority,
		   escrow_account = EXCLUDED.escrow_account,
		   amount = EXCLUDED.amount,
		   starting_price = EXCLUDED.starting_price,
		   starting_time = EXCLUDED.starting_time,
		   auction_period = EXCLUDED.auction_period,
		   slot_count = EXCLUDED.slot_count,
		   updated_at = EXCLUDED.updated_at`, r)
	if err != nil {
		return fmt.Errorf("upserting round: %w", err)
	}
	return nil
}

func (t *ledgerTx) DeleteRound(ctx context.Context, configID string) error {
	result, err := t.tx.ExecContext(ctx,
		`DELETE FROM auction_rounds WHERE config_id = $1`, configID)
	if err != nil {
		return fmt.Errorf("deleting round: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("round for config %s: %w", configID, store.ErrNotFound)
	}
	return nil
}

func (t *ledgerTx) EnsureAccount(ctx context.Context, owner string) (*store.Account, error) {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO accounts (id, owner, balance, created_at)
		 VALUES ($1, $2, 0, $3)
		 ON CONFLICT (owner) DO NOTHING`,
		uuid.NewString(), owner, t.clk.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("ensuring account: %w", err)
	}

	var a store.Account
	if err := t.tx.GetContext(ctx, &a,
		`SELECT * FROM accounts WHERE owner = $1 FOR UPDATE`, owner); err != nil {
		return nil, fmt.Errorf("getting account: %w", err)
	}
	return &a, nil
}

func (t *ledgerTx) TransferNative(ctx context.Context, fromOwner, toOwner string, amount uint64) error {
	if _, err := t.EnsureAccount(ctx, fromOwner); err != nil {
		return err
	}
	if _, err := t.EnsureAccount(ctx, toOwner); err != nil {
		return err
	}

	result, err := t.tx.ExecContext(ctx,
		`UPDATE accounts SET balance = balance - $1 WHERE owner = $2 AND balance >= $1`,
		int64(amount), fromOwner)
	if err != nil {
		return fmt.Errorf("debiting account %s: %w", fromOwner, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("account %s: %w", fromOwner, store.ErrInsufficientBalance)
	}

	if _, err := t.tx.ExecContext(ctx,
		`UPDATE accounts SET balance = balance + $1 WHERE owner = $2`,
		int64(amount), toOwner); err != nil {
		return fmt.Errorf("crediting account %s: %w", toOwner, err)
	}
	return nil
}

func (t *ledgerTx) EnsureTokenAccount(ctx context.Context, owner, mint string) (*store.TokenAccount, error) {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO token_accounts (id, owner, mint, balance, created_at)
		 VALUES ($1, $2, $3, 0, $4)
		 ON CONFLICT (owner, mint) DO NOTHING`,
		uuid.NewString(), owner, mint, t.clk.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("ensuring token account: %w", err)
	}

	var a store.TokenAccount
	if err := t.tx.GetContext(ctx, &a,
		`SELECT * FROM token_accounts WHERE owner = $1 AND mint = $2 FOR UPDATE`,
		owner, mint); err != nil {
		return nil, fmt.Errorf("getting token account: %w", err)
	}
	return &a, nil
}

func (t *ledgerTx) GetTokenAccountForUpdate(ctx context.Context, id string) (*store.TokenAccount, error) {
	var a store.TokenAccount
	err := t.tx.GetContext(ctx, &a,
		`SELECT * FROM token_accounts WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("token account %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting token account: %w", err)
	}
	return &a, nil
}

func (t *ledgerTx) TransferToken(ctx context.Context, fromID, toID string, amount uint64) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE token_accounts SET balance = balance - $1 WHERE id = $2 AND balance >= $1`,
		int64(amount), fromID)
	if err != nil {
		return fmt.Errorf("debiting token account %s: %w", fromID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("token account %s: %w", fromID, store.ErrInsufficientBalance)
	}

	result, err = t.tx.ExecContext(ctx,
		`UPDATE token_accounts SET balance = balance + $1 WHERE id = $2`,
		int64(amount), toID)
	if err != nil {
		return fmt.Errorf("crediting token account %s: %w", toID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("token account %s: %w", toID, store.ErrNotFound)
	}
	return nil
}

func (t *ledgerTx) CloseTokenAccount(ctx context.Context, id string) error {
	// Only empty accounts may be released back to the platform.
	result, err := t.tx.ExecContext(ctx,
		`DELETE FROM token_accounts WHERE id = $1 AND balance = 0`, id)
	if err != nil {
		return fmt.Errorf("closing token account %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("token account %s missing or not empty: %w", id, store.ErrNotFound)
	}
	return nil
}

func (t *ledgerTx) AppendEvents(ctx context.Context, events ...event.Event) error {
	stmt, err := t.tx.PreparexContext(ctx,
		`INSERT INTO events (aggregate_id, type, data, version) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.AggregateID, e.Type, e.Data, e.Version); err != nil {
			return fmt.Errorf("inserting event (aggregate=%s, version=%d): %w", e.AggregateID, e.Version, err)
		}
	}
	return nil
}
