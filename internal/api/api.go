// Package api exposes the auction operations over HTTP. It is a thin JSON
// layer: request decoding, domain error mapping, nothing else.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/askelund/auctiond/internal/auction"
	"github.com/askelund/auctiond/internal/auctioneer"
	"github.com/askelund/auctiond/internal/event"
	"github.com/askelund/auctiond/internal/store"
)

// Service is the slice of the auctioneer the HTTP layer needs.
type Service interface {
	CreateConfig(ctx context.Context, p auction.ConfigParams) (*store.Config, error)
	OpenRound(ctx context.Context, p auctioneer.OpenRoundParams) (*store.Round, error)
	Bid(ctx context.Context, p auctioneer.BidParams) (uint64, error)
	CloseRound(ctx context.Context, p auctioneer.CloseParams) (uint64, error)
	CurrentPrice(ctx context.Context, authority, currencyMint string) (uint64, error)
	History(ctx context.Context, configID string) ([]event.Event, error)
}

// Handler contains the HTTP request handlers.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

// NewHandler creates a new HTTP handler around the service.
func NewHandler(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes configures the API routes on a new router.
func (h *Handler) Routes() *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/configs", h.CreateConfig).Methods(http.MethodPost)
	api.HandleFunc("/configs/{id}/events", h.History).Methods(http.MethodGet)
	api.HandleFunc("/rounds/open", h.OpenRound).Methods(http.MethodPost)
	api.HandleFunc("/rounds/close", h.CloseRound).Methods(http.MethodPost)
	api.HandleFunc("/bids", h.Bid).Methods(http.MethodPost)
	api.HandleFunc("/price", h.CurrentPrice).Methods(http.MethodGet)

	return router
}

// CreateConfigRequest is the body for POST /api/v1/configs.
type CreateConfigRequest struct {
	Authority        string `json:"authority"`
	Moderator        string `json:"moderator"`
	CurrencyMint     string `json:"currency_mint"`
	GlobalVault      string `json:"global_vault"`
	FeeAccount       string `json:"fee_account"`
	IntervalSeconds  int64  `json:"interval_seconds"`
	NextAuctionStart int64  `json:"next_auction_start"`
	FeeBps           uint32 `json:"fee_bps"`
	FeeBurnBps       uint32 `json:"fee_burn_bps"`
	MaxAuctionSlots  uint32 `json:"max_auction_slots"`
}

func (h *Handler) CreateConfig(w http.ResponseWriter, r *http.Request) {
	var req CreateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Authority == "" || req.CurrencyMint == "" {
		respondError(w, http.StatusBadRequest, "authority and currency_mint are required")
		return
	}

	cfg, err := h.svc.CreateConfig(r.Context(), auction.ConfigParams{
		Authority:        req.Authority,
		Moderator:        req.Moderator,
		CurrencyMint:     req.CurrencyMint,
		GlobalVault:      req.GlobalVault,
		FeeAccount:       req.FeeAccount,
		IntervalSeconds:  req.IntervalSeconds,
		NextAuctionStart: req.NextAuctionStart,
		FeeBps:           req.FeeBps,
		FeeBurnBps:       req.FeeBurnBps,
		MaxAuctionSlots:  req.MaxAuctionSlots,
	})
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, cfg)
}

// OpenRoundRequest is the body for POST /api/v1/rounds/open.
type OpenRoundRequest struct {
	Authority     string `json:"authority"`
	Moderator     string `json:"moderator"`
	CurrencyMint  string `json:"currency_mint"`
	EscrowAccount string `json:"escrow_account"`
	StartingTime  int64  `json:"starting_time"`
	Period        int64  `json:"period"`
	StartingPrice uint64 `json:"starting_price"`
	Amount        uint64 `json:"amount"`
}

func (h *Handler) OpenRound(w http.ResponseWriter, r *http.Request) {
	var req OpenRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	round, err := h.svc.OpenRound(r.Context(), auctioneer.OpenRoundParams{
		Authority:     req.Authority,
		Moderator:     req.Moderator,
		CurrencyMint:  req.CurrencyMint,
		EscrowAccount: req.EscrowAccount,
		StartingTime:  req.StartingTime,
		Period:        req.Period,
		StartingPrice: req.StartingPrice,
		Amount:        req.Amount,
	})
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, round)
}

// BidRequest is the body for POST /api/v1/bids.
type BidRequest struct {
	Bidder        string `json:"bidder"`
	Authority     string `json:"authority"`
	CurrencyMint  string `json:"currency_mint"`
	EscrowAccount string `json:"escrow_account"`
	GlobalVault   string `json:"global_vault"`
}

// BidResponse reports the price a settled bid paid.
type BidResponse struct {
	Price uint64 `json:"price"`
}

func (h *Handler) Bid(w http.ResponseWriter, r *http.Request) {
	var req BidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Bidder == "" {
		respondError(w, http.StatusBadRequest, "bidder is required")
		return
	}

	price, err := h.svc.Bid(r.Context(), auctioneer.BidParams{
		Bidder:        req.Bidder,
		Authority:     req.Authority,
		CurrencyMint:  req.CurrencyMint,
		EscrowAccount: req.EscrowAccount,
		GlobalVault:   req.GlobalVault,
	})
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, BidResponse{Price: price})
}

// CloseRoundRequest is the body for POST /api/v1/rounds/close.
type CloseRoundRequest struct {
	Caller       string `json:"caller"`
	Authority    string `json:"authority"`
	CurrencyMint string `json:"currency_mint"`
}

// CloseRoundResponse reports the escrow balance returned to the caller.
type CloseRoundResponse struct {
	Released uint64 `json:"released"`
}

func (h *Handler) CloseRound(w http.ResponseWriter, r *http.Request) {
	var req CloseRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	released, err := h.svc.CloseRound(r.Context(), auctioneer.CloseParams{
		Caller:       req.Caller,
		Authority:    req.Authority,
		CurrencyMint: req.CurrencyMint,
	})
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, CloseRoundResponse{Released: released})
}

// PriceResponse reports the current decayed price of the open round.
type PriceResponse struct {
	Price uint64 `json:"price"`
}

func (h *Handler) CurrentPrice(w http.ResponseWriter, r *http.Request) {
	authority := r.URL.Query().Get("authority")
	currencyMint := r.URL.Query().Get("currency_mint")
	if authority == "" || currencyMint == "" {
		respondError(w, http.StatusBadRequest, "authority and currency_mint are required")
		return
	}

	price, err := h.svc.CurrentPrice(r.Context(), authority, currencyMint)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, PriceResponse{Price: price})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	configID := mux.Vars(r)["id"]

	events, err := h.svc.History(r.Context(), configID)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, events)
}

// respondDomainError maps domain sentinels onto HTTP status codes.
func (h *Handler) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var code int
	switch {
	case errors.Is(err, auction.ErrIncorrectAuthority),
		errors.Is(err, auction.ErrProxyClose):
		code = http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, auction.ErrInvalidFee),
		errors.Is(err, auction.ErrInvalidFeeBurn),
		errors.Is(err, auction.ErrInvalidDateRange),
		errors.Is(err, auction.ErrInvalidStartDate),
		errors.Is(err, auction.ErrInvalidEscrowAmount):
		code = http.StatusBadRequest
	case errors.Is(err, auction.ErrAuctionEarly),
		errors.Is(err, auction.ErrAuctionLate),
		errors.Is(err, auction.ErrAuctionInvalid),
		errors.Is(err, auction.ErrPreviousRoundNotEnd),
		errors.Is(err, auction.ErrInvalidEscrow),
		errors.Is(err, auction.ErrMismatchedGlobalVault),
		errors.Is(err, store.ErrInsufficientBalance):
		code = http.StatusConflict
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondError(w, code, err.Error())
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}
