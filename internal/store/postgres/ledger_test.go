package postgres_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/askelund/auctiond/internal/clock"
	"github.com/askelund/auctiond/internal/store"
	"github.com/askelund/auctiond/internal/store/postgres"
)

func testConfig() *store.Config {
	return &store.Config{
		Version:          1,
		Authority:        "authority-1",
		Moderator:        "moderator-1",
		CurrencyMint:     "mint-1",
		GlobalVault:      "vault-1",
		FeeAccount:       "fees-1",
		IntervalSeconds:  600,
		NextAuctionStart: 1_700_000_000,
		NextRoundID:      1,
		FeeBps:           250,
		FeeBurnBps:       5000,
		MaxAuctionSlots:  3,
	}
}

func TestLedger_ConfigRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ledger := postgres.NewLedger(db, clock.Real{})
	ctx := context.Background()

	cfg := testConfig()
	if err := ledger.WithinTx(ctx, func(tx store.Tx) error {
		return tx.InsertConfig(ctx, cfg)
	}); err != nil {
		t.Fatalf("InsertConfig: %v", err)
	}
	if cfg.ID == "" {
		t.Fatal("expected ID to be set after insert")
	}

	err := ledger.WithinTx(ctx, func(tx store.Tx) error {
		got, err := tx.GetConfigForUpdate(ctx, "authority-1", "mint-1")
		if err != nil {
			return err
		}
		if got.Moderator != "moderator-1" || got.MaxAuctionSlots != 3 {
			t.Errorf("loaded config mismatch: %+v", got)
		}

		got.NextAuctionStart = 1_700_000_600
		got.NextRoundID = 2
		return tx.SaveConfig(ctx, got)
	})
	if err != nil {
		t.Fatalf("update tx: %v", err)
	}

	_ = ledger.WithinTx(ctx, func(tx store.Tx) error {
		got, err := tx.GetConfigForUpdate(ctx, "authority-1", "mint-1")
		if err != nil {
			return err
		}
		if got.NextAuctionStart != 1_700_000_600 || got.NextRoundID != 2 {
			t.Errorf("saved cursor not persisted: %+v", got)
		}
		return nil
	})

	err = ledger.WithinTx(ctx, func(tx store.Tx) error {
		_, err := tx.GetConfigForUpdate(ctx, "nobody", "mint-1")
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing config error = %v, want ErrNotFound", err)
	}
}

func TestLedger_RoundUpsertAndDelete(t *testing.T) {
	db := newTestDB(t)
	ledger := postgres.NewLedger(db, clock.Real{})
	ctx := context.Background()

	cfg := testConfig()
	round := &store.Round{
		RoundID:       1,
		Authority:     "authority-1",
		EscrowAccount: "escrow-1",
		Amount:        50,
		StartingPrice: 1000,
		StartingTime:  1_700_000_000,
		AuctionPeriod: 1000,
		SlotCount:     3,
	}

	if err := ledger.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertConfig(ctx, cfg); err != nil {
			return err
		}
		round.ConfigID = cfg.ID
		return tx.UpsertRound(ctx, round)
	}); err != nil {
		t.Fatalf("insert tx: %v", err)
	}

	// Upsert over the existing row, as a re-opened round does.
	if err := ledger.WithinTx(ctx, func(tx store.Tx) error {
		got, err := tx.GetRoundForUpdate(ctx, cfg.ID)
		if err != nil {
			return err
		}
		got.RoundID = 2
		got.SlotCount = 5
		return tx.UpsertRound(ctx, got)
	}); err != nil {
		t.Fatalf("upsert tx: %v", err)
	}

	_ = ledger.WithinTx(ctx, func(tx store.Tx) error {
		got, err := tx.GetRoundForUpdate(ctx, cfg.ID)
		if err != nil {
			return err
		}
		if got.RoundID != 2 || got.SlotCount != 5 {
			t.Errorf("upsert not applied: %+v", got)
		}
		return tx.DeleteRound(ctx, cfg.ID)
	})

	err := ledger.WithinTx(ctx, func(tx store.Tx) error {
		_, err := tx.GetRoundForUpdate(ctx, cfg.ID)
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("deleted round error = %v, want ErrNotFound", err)
	}
}

func TestLedger_NativeTransfers(t *testing.T) {
	db := newTestDB(t)
	ledger := postgres.NewLedger(db, clock.Real{})
	ctx := context.Background()

	// Seed the payer.
	if err := ledger.WithinTx(ctx, func(tx store.Tx) error {
		_, err := tx.EnsureAccount(ctx, "payer")
		return err
	}); err != nil {
		t.Fatalf("ensuring payer: %v", err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE accounts SET balance = 1000 WHERE owner = 'payer'`); err != nil {
		t.Fatalf("seeding payer: %v", err)
	}

	if err := ledger.WithinTx(ctx, func(tx store.Tx) error {
		return tx.TransferNative(ctx, "payer", "vault", 400)
	}); err != nil {
		t.Fatalf("TransferNative: %v", err)
	}

	var payerBalance, vaultBalance int64
	_ = db.GetContext(ctx, &payerBalance, `SELECT balance FROM accounts WHERE owner = 'payer'`)
	_ = db.GetContext(ctx, &vaultBalance, `SELECT balance FROM accounts WHERE owner = 'vault'`)
	if payerBalance != 600 || vaultBalance != 400 {
		t.Errorf("balances = %d/%d, want 600/400", payerBalance, vaultBalance)
	}

	err := ledger.WithinTx(ctx, func(tx store.Tx) error {
		return tx.TransferNative(ctx, "payer", "vault", 601)
	})
	if !errors.Is(err, store.ErrInsufficientBalance) {
		t.Errorf("overdraw error = %v, want ErrInsufficientBalance", err)
	}
}

func TestLedger_TokenAccounts(t *testing.T) {
	db := newTestDB(t)
	ledger := postgres.NewLedger(db, clock.Real{})
	ctx := context.Background()

	var escrowID, bidderID string
	if err := ledger.WithinTx(ctx, func(tx store.Tx) error {
		escrow, err := tx.EnsureTokenAccount(ctx, "escrow-owner", "mint-1")
		if err != nil {
			return err
		}
		escrowID = escrow.ID
		// Ensuring again returns the same account.
		again, err := tx.EnsureTokenAccount(ctx, "escrow-owner", "mint-1")
		if err != nil {
			return err
		}
		if again.ID != escrowID {
			t.Errorf("EnsureTokenAccount not idempotent: %s != %s", again.ID, escrowID)
		}

		bidderAcct, err := tx.EnsureTokenAccount(ctx, "bidder", "mint-1")
		if err != nil {
			return err
		}
		bidderID = bidderAcct.ID
		return nil
	}); err != nil {
		t.Fatalf("setup tx: %v", err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE token_accounts SET balance = 500 WHERE id = $1`, escrowID); err != nil {
		t.Fatalf("seeding escrow: %v", err)
	}

	if err := ledger.WithinTx(ctx, func(tx store.Tx) error {
		return tx.TransferToken(ctx, escrowID, bidderID, 50)
	}); err != nil {
		t.Fatalf("TransferToken: %v", err)
	}

	_ = ledger.WithinTx(ctx, func(tx store.Tx) error {
		got, err := tx.GetTokenAccountForUpdate(ctx, escrowID)
		if err != nil {
			return err
		}
		if got.Balance != 450 {
			t.Errorf("escrow balance = %d, want 450", got.Balance)
		}
		return nil
	})

	// A non-empty account cannot be closed.
	err := ledger.WithinTx(ctx, func(tx store.Tx) error {
		return tx.CloseTokenAccount(ctx, escrowID)
	})
	if err == nil {
		t.Error("expected closing a non-empty token account to fail")
	}

	// Drain and close.
	if err := ledger.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.TransferToken(ctx, escrowID, bidderID, 450); err != nil {
			return err
		}
		return tx.CloseTokenAccount(ctx, escrowID)
	}); err != nil {
		t.Fatalf("drain and close: %v", err)
	}

	err = ledger.WithinTx(ctx, func(tx store.Tx) error {
		_, err := tx.GetTokenAccountForUpdate(ctx, escrowID)
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("closed account error = %v, want ErrNotFound", err)
	}
}

// A failing callback rolls the whole unit back.
func TestLedger_WithinTx_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	ledger := postgres.NewLedger(db, clock.Real{})
	ctx := context.Background()

	sentinel := errors.New("abort")
	err := ledger.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertConfig(ctx, testConfig()); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("WithinTx error = %v, want sentinel", err)
	}

	var n int
	if err := db.GetContext(ctx, &n, `SELECT count(*) FROM auction_configs`); err != nil {
		t.Fatalf("counting configs: %v", err)
	}
	if n != 0 {
		t.Errorf("config count after rollback = %d, want 0", n)
	}
}

// Two transactions racing for the last slot serialize on the round's row
// lock: exactly one wins, the loser observes the already-decremented count.
func TestLedger_ConcurrentSlotConsumption(t *testing.T) {
	db := newTestDB(t)
	ledger := postgres.NewLedger(db, clock.Real{})
	ctx := context.Background()

	cfg := testConfig()
	if err := ledger.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertConfig(ctx, cfg); err != nil {
			return err
		}
		return tx.UpsertRound(ctx, &store.Round{
			ConfigID:      cfg.ID,
			RoundID:       1,
			Authority:     "authority-1",
			EscrowAccount: "escrow-1",
			Amount:        50,
			StartingPrice: 1000,
			StartingTime:  0,
			AuctionPeriod: 1000,
			SlotCount:     1,
		})
	}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	noSlots := errors.New("no slots")
	consume := func() error {
		return ledger.WithinTx(ctx, func(tx store.Tx) error {
			r, err := tx.GetRoundForUpdate(ctx, cfg.ID)
			if err != nil {
				return err
			}
			if r.SlotCount == 0 {
				return noSlots
			}
			r.SlotCount--
			return tx.UpsertRound(ctx, r)
		})
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = consume()
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, noSlots):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Errorf("wins/losses = %d/%d, want 1/1", wins, losses)
	}
}
