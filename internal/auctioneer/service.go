// Package auctioneer is the operation layer of the auction ledger. Each
// public method executes as one atomic unit against the hosting store: the
// records it touches are read under write locks, mutated through the domain
// rules in internal/auction, and written back together with the operation's
// domain event, or not at all.
package auctioneer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/askelund/auctiond/internal/auction"
	"github.com/askelund/auctiond/internal/auth"
	"github.com/askelund/auctiond/internal/clock"
	"github.com/askelund/auctiond/internal/event"
	"github.com/askelund/auctiond/internal/feed"
	"github.com/askelund/auctiond/internal/store"
)

// Service coordinates auction lifecycle operations.
type Service struct {
	ledger   store.Store
	events   event.Store
	verifier auth.Verifier
	feed     feed.Publisher
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock
}

// New creates a new auctioneer Service.
func New(ledger store.Store, events event.Store, verifier auth.Verifier, pub feed.Publisher, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Service {
	return &Service{
		ledger:   ledger,
		events:   events,
		verifier: verifier,
		feed:     pub,
		logger:   logger,
		tracer:   tp.Tracer("github.com/askelund/auctiond/internal/auctioneer"),
		clock:    clk,
	}
}

// CreateConfig validates and persists a new auction configuration keyed by
// (authority, currency mint). The caller must control the authority.
func (s *Service) CreateConfig(ctx context.Context, p auction.ConfigParams) (*store.Config, error) {
	ctx, span := s.tracer.Start(ctx, "Service.CreateConfig",
		trace.WithAttributes(
			attribute.String("authority", p.Authority),
			attribute.String("currency_mint", p.CurrencyMint),
		),
	)
	defer span.End()

	if err := s.verifier.Verify(ctx, p.Authority); err != nil {
		return nil, auction.ErrIncorrectAuthority
	}

	cfg, err := auction.NewConfig(p)
	if err != nil {
		return nil, err
	}

	rec := newConfigRecord(cfg)
	var created event.Event
	err = s.ledger.WithinTx(ctx, func(tx store.Tx) error {
		rec.EventSeq = 1
		if err := tx.InsertConfig(ctx, rec); err != nil {
			return err
		}
		created = s.newEvent(rec, event.ConfigCreated, event.ConfigCreatedData{
			Authority:    cfg.Authority,
			Moderator:    cfg.Moderator,
			CurrencyMint: cfg.CurrencyMint,
			FeeBps:       cfg.FeeBps,
			FeeBurnBps:   cfg.FeeBurnBps,
		})
		return tx.AppendEvents(ctx, created)
	})
	if err != nil {
		return nil, fmt.Errorf("creating config: %w", err)
	}

	s.publish(ctx, created)
	s.logger.InfoContext(ctx, "auction config created",
		slog.String("config_id", rec.ID),
		slog.String("authority", rec.Authority),
		slog.String("currency_mint", rec.CurrencyMint),
	)
	return rec, nil
}

// OpenRoundParams are the inputs to OpenRound.
type OpenRoundParams struct {
	Authority     string
	Moderator     string
	CurrencyMint  string
	EscrowAccount string
	StartingTime  int64
	Period        int64
	StartingPrice uint64
	Amount        uint64
}

// OpenRound opens a new selling window from the config's parameters. Both
// the config authority and its moderator must authorize the call. Advancing
// the config's schedule cursor and creating the round commit as one unit.
func (s *Service) OpenRound(ctx context.Context, p OpenRoundParams) (*store.Round, error) {
	ctx, span := s.tracer.Start(ctx, "Service.OpenRound",
		trace.WithAttributes(
			attribute.String("authority", p.Authority),
			attribute.String("currency_mint", p.CurrencyMint),
		),
	)
	defer span.End()

	// Dual-signer gate: two distinct capability checks, not one combined
	// permission.
	if err := s.verifier.Verify(ctx, p.Authority); err != nil {
		return nil, auction.ErrIncorrectAuthority
	}
	if err := s.verifier.Verify(ctx, p.Moderator); err != nil {
		return nil, auction.ErrIncorrectAuthority
	}

	now := s.clock.Now().Unix()
	var (
		roundRec *store.Round
		opened   event.Event
	)
	err := s.ledger.WithinTx(ctx, func(tx store.Tx) error {
		rec, err := tx.GetConfigForUpdate(ctx, p.Authority, p.CurrencyMint)
		if err != nil {
			return err
		}
		if rec.Moderator != p.Moderator {
			return auction.ErrIncorrectAuthority
		}

		existing, err := tx.GetRoundForUpdate(ctx, rec.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		escrowBalance := uint64(0)
		escrow, err := tx.GetTokenAccountForUpdate(ctx, p.EscrowAccount)
		switch {
		case errors.Is(err, store.ErrNotFound):
			// Missing escrow reads as empty and fails the open below.
		case err != nil:
			return err
		case escrow.Mint != rec.CurrencyMint:
			return auction.ErrInvalidEscrow
		default:
			escrowBalance = uint64(escrow.Balance)
		}

		cfg := toDomainConfig(rec)
		round, err := auction.OpenRound(cfg, toDomainRound(existing), auction.OpenParams{
			Authority:     p.Authority,
			EscrowAccount: p.EscrowAccount,
			EscrowBalance: escrowBalance,
			StartingTime:  p.StartingTime,
			Period:        p.Period,
			StartingPrice: p.StartingPrice,
			Amount:        p.Amount,
		}, now)
		if err != nil {
			return err
		}

		rec.NextAuctionStart = cfg.NextAuctionStart
		rec.NextRoundID = int64(cfg.NextRoundID)
		rec.EventSeq++
		if err := tx.SaveConfig(ctx, rec); err != nil {
			return err
		}

		roundRec = fromDomainRound(rec.ID, existing, round)
		if err := tx.UpsertRound(ctx, roundRec); err != nil {
			return err
		}

		opened = s.newEvent(rec, event.RoundOpened, event.RoundOpenedData{
			RoundID:       round.RoundID,
			StartingPrice: round.StartingPrice,
			StartingTime:  round.StartingTime,
			AuctionPeriod: round.AuctionPeriod,
			Amount:        round.Amount,
			SlotCount:     round.SlotCount,
		})
		return tx.AppendEvents(ctx, opened)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, opened)
	s.logger.InfoContext(ctx, "auction round opened",
		slog.String("config_id", roundRec.ConfigID),
		slog.Int64("round_id", roundRec.RoundID),
		slog.Int64("starting_price", roundRec.StartingPrice),
		slog.Int64("slots", roundRec.SlotCount),
	)
	return roundRec, nil
}

// BidParams are the inputs to Bid.
type BidParams struct {
	Bidder        string
	Authority     string
	CurrencyMint  string
	EscrowAccount string
	GlobalVault   string
}

// Bid consumes one slot of the open round at the current decayed price. Any
// caller may bid; the settlement (price to the global vault, asset to the
// bidder) and the round mutation commit as one unit or not at all.
func (s *Service) Bid(ctx context.Context, p BidParams) (uint64, error) {
	ctx, span := s.tracer.Start(ctx, "Service.Bid",
		trace.WithAttributes(
			attribute.String("bidder", p.Bidder),
			attribute.String("authority", p.Authority),
			attribute.String("currency_mint", p.CurrencyMint),
		),
	)
	defer span.End()

	now := s.clock.Now().Unix()
	var (
		settle auction.Settlement
		placed event.Event
	)
	err := s.ledger.WithinTx(ctx, func(tx store.Tx) error {
		rec, err := tx.GetConfigForUpdate(ctx, p.Authority, p.CurrencyMint)
		if err != nil {
			return err
		}
		if p.GlobalVault != rec.GlobalVault {
			return auction.ErrMismatchedGlobalVault
		}

		roundRec, err := tx.GetRoundForUpdate(ctx, rec.ID)
		if err != nil {
			return err
		}
		if p.EscrowAccount != roundRec.EscrowAccount {
			return auction.ErrInvalidEscrow
		}

		round := toDomainRound(roundRec)
		settle, err = round.ProcessBid(now)
		if err != nil {
			return err
		}

		if err := tx.TransferNative(ctx, p.Bidder, rec.GlobalVault, settle.Price); err != nil {
			return err
		}
		bidderAcct, err := tx.EnsureTokenAccount(ctx, p.Bidder, rec.CurrencyMint)
		if err != nil {
			return err
		}
		if err := tx.TransferToken(ctx, roundRec.EscrowAccount, bidderAcct.ID, settle.Amount); err != nil {
			return err
		}

		roundRec.StartingTime = round.StartingTime
		roundRec.SlotCount = int64(round.SlotCount)
		if err := tx.UpsertRound(ctx, roundRec); err != nil {
			return err
		}

		rec.EventSeq++
		if err := tx.SaveConfig(ctx, rec); err != nil {
			return err
		}
		placed = s.newEvent(rec, event.BidPlaced, event.BidPlacedData{
			RoundID:        uint64(roundRec.RoundID),
			Bidder:         p.Bidder,
			Price:          settle.Price,
			Amount:         settle.Amount,
			SlotsRemaining: round.SlotCount,
		})
		return tx.AppendEvents(ctx, placed)
	})
	if err != nil {
		return 0, err
	}

	s.publish(ctx, placed)
	s.logger.InfoContext(ctx, "bid settled",
		slog.String("bidder", p.Bidder),
		slog.Uint64("price", settle.Price),
		slog.Uint64("amount", settle.Amount),
	)
	return settle.Price, nil
}

// CloseParams are the inputs to CloseRound.
type CloseParams struct {
	Caller       string
	Authority    string
	CurrencyMint string
}

// CloseRound returns the round's full remaining escrowed balance to the
// caller, releases the escrow account and deletes the round record. Only the
// round's authority may close, at any slot count.
func (s *Service) CloseRound(ctx context.Context, p CloseParams) (uint64, error) {
	ctx, span := s.tracer.Start(ctx, "Service.CloseRound",
		trace.WithAttributes(
			attribute.String("caller", p.Caller),
			attribute.String("currency_mint", p.CurrencyMint),
		),
	)
	defer span.End()

	if err := s.verifier.Verify(ctx, p.Caller); err != nil {
		return 0, auction.ErrProxyClose
	}

	var (
		released uint64
		closed   event.Event
	)
	err := s.ledger.WithinTx(ctx, func(tx store.Tx) error {
		rec, err := tx.GetConfigForUpdate(ctx, p.Authority, p.CurrencyMint)
		if err != nil {
			return err
		}
		roundRec, err := tx.GetRoundForUpdate(ctx, rec.ID)
		if err != nil {
			return err
		}

		round := toDomainRound(roundRec)
		if err := round.Close(p.Caller); err != nil {
			return err
		}

		escrow, err := tx.GetTokenAccountForUpdate(ctx, roundRec.EscrowAccount)
		if err != nil {
			return err
		}
		released = uint64(escrow.Balance)
		if released > 0 {
			dest, err := tx.EnsureTokenAccount(ctx, p.Caller, rec.CurrencyMint)
			if err != nil {
				return err
			}
			if err := tx.TransferToken(ctx, escrow.ID, dest.ID, released); err != nil {
				return err
			}
		}
		if err := tx.CloseTokenAccount(ctx, escrow.ID); err != nil {
			return err
		}
		if err := tx.DeleteRound(ctx, rec.ID); err != nil {
			return err
		}

		rec.EventSeq++
		if err := tx.SaveConfig(ctx, rec); err != nil {
			return err
		}
		closed = s.newEvent(rec, event.RoundClosed, event.RoundClosedData{
			RoundID:  uint64(roundRec.RoundID),
			Released: released,
		})
		return tx.AppendEvents(ctx, closed)
	})
	if err != nil {
		return 0, err
	}

	s.publish(ctx, closed)
	s.logger.InfoContext(ctx, "auction round closed",
		slog.String("caller", p.Caller),
		slog.Uint64("released", released),
	)
	return released, nil
}

// CurrentPrice returns the decayed price a bid would pay right now, without
// consuming a slot. It fails with the same window errors a bid would.
func (s *Service) CurrentPrice(ctx context.Context, authority, currencyMint string) (uint64, error) {
	now := s.clock.Now().Unix()
	var price uint64
	err := s.ledger.WithinTx(ctx, func(tx store.Tx) error {
		rec, err := tx.GetConfigForUpdate(ctx, authority, currencyMint)
		if err != nil {
			return err
		}
		roundRec, err := tx.GetRoundForUpdate(ctx, rec.ID)
		if err != nil {
			return err
		}
		round := toDomainRound(roundRec)
		settle, err := round.ProcessBid(now)
		if err != nil {
			return err
		}
		// Quote only: the mutation above stays inside this closure and is
		// never written back.
		price = settle.Price
		return nil
	})
	return price, err
}

// History returns the config's event stream, ordered by version.
func (s *Service) History(ctx context.Context, configID string) ([]event.Event, error) {
	events, err := s.events.Load(ctx, configID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	return events, nil
}

func (s *Service) newEvent(rec *store.Config, t event.Type, data any) event.Event {
	payload, _ := json.Marshal(data)
	return event.Event{
		AggregateID: rec.ID,
		Type:        t,
		Data:        payload,
		Version:     int(rec.EventSeq),
	}
}

func (s *Service) publish(ctx context.Context, e event.Event) {
	if err := s.feed.Publish(ctx, e); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish event",
			slog.String("type", string(e.Type)),
			slog.Any("error", err),
		)
	}
}
