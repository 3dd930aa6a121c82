package auctioneer_test

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/askelund/auctiond/internal/event"
	"github.com/askelund/auctiond/internal/store"
)

// memStore is an in-memory store.Store and event.Store with copy-on-write
// transactions: a failing callback leaves the committed state untouched,
// which is exactly the atomicity the service relies on.
type memStore struct {
	configs  map[string]*store.Config // keyed authority|mint
	rounds   map[string]*store.Round  // keyed config id
	accounts map[string]int64         // native balances by owner
	tokens   map[string]*store.TokenAccount
	events   []event.Event
}

func newMemStore() *memStore {
	return &memStore{
		configs:  map[string]*store.Config{},
		rounds:   map[string]*store.Round{},
		accounts: map[string]int64{},
		tokens:   map[string]*store.TokenAccount{},
	}
}

func configKey(authority, mint string) string { return authority + "|" + mint }

func tokenID(owner, mint string) string { return "tok-" + owner + "-" + mint }

func (m *memStore) clone() *memStore {
	c := &memStore{
		configs:  map[string]*store.Config{},
		rounds:   map[string]*store.Round{},
		accounts: maps.Clone(m.accounts),
		tokens:   map[string]*store.TokenAccount{},
		events:   slices.Clone(m.events),
	}
	for k, v := range m.configs {
		cp := *v
		c.configs[k] = &cp
	}
	for k, v := range m.rounds {
		cp := *v
		c.rounds[k] = &cp
	}
	for k, v := range m.tokens {
		cp := *v
		c.tokens[k] = &cp
	}
	return c
}

func (m *memStore) WithinTx(_ context.Context, fn func(tx store.Tx) error) error {
	work := m.clone()
	if err := fn(&memTx{s: work}); err != nil {
		return err
	}
	*m = *work
	return nil
}

// fundNative seeds a native balance outside any transaction.
func (m *memStore) fundNative(owner string, amount int64) {
	m.accounts[owner] += amount
}

// fundToken seeds an asset balance outside any transaction and returns the
// token account id.
func (m *memStore) fundToken(owner, mint string, amount int64) string {
	id := tokenID(owner, mint)
	if a, ok := m.tokens[id]; ok {
		a.Balance += amount
		return id
	}
	m.tokens[id] = &store.TokenAccount{ID: id, Owner: owner, Mint: mint, Balance: amount}
	return id
}

func (m *memStore) Append(_ context.Context, events ...event.Event) error {
	m.events = append(m.events, events...)
	return nil
}

func (m *memStore) Load(_ context.Context, aggregateID string) ([]event.Event, error) {
	var out []event.Event
	for _, e := range m.events {
		if e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) LoadByType(_ context.Context, t event.Type) ([]event.Event, error) {
	var out []event.Event
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out, nil
}

type memTx struct {
	s *memStore
}

func (t *memTx) GetConfigForUpdate(_ context.Context, authority, mint string) (*store.Config, error) {
	c, ok := t.s.configs[configKey(authority, mint)]
	if !ok {
		return nil, fmt.Errorf("config for %s/%s: %w", authority, mint, store.ErrNotFound)
	}
	return c, nil
}

func (t *memTx) InsertConfig(_ context.Context, c *store.Config) error {
	if c.ID == "" {
		c.ID = "cfg-" + configKey(c.Authority, c.CurrencyMint)
	}
	c.CreatedAt = time.Now().UTC()
	cp := *c
	t.s.configs[configKey(c.Authority, c.CurrencyMint)] = &cp
	return nil
}

func (t *memTx) SaveConfig(_ context.Context, c *store.Config) error {
	cp := *c
	t.s.configs[configKey(c.Authority, c.CurrencyMint)] = &cp
	return nil
}

func (t *memTx) GetRoundForUpdate(_ context.Context, configID string) (*store.Round, error) {
	r, ok := t.s.rounds[configID]
	if !ok {
		return nil, fmt.Errorf("round for config %s: %w", configID, store.ErrNotFound)
	}
	return r, nil
}

func (t *memTx) UpsertRound(_ context.Context, r *store.Round) error {
	cp := *r
	t.s.rounds[r.ConfigID] = &cp
	return nil
}

func (t *memTx) DeleteRound(_ context.Context, configID string) error {
	if _, ok := t.s.rounds[configID]; !ok {
		return fmt.Errorf("round for config %s: %w", configID, store.ErrNotFound)
	}
	delete(t.s.rounds, configID)
	return nil
}

func (t *memTx) EnsureAccount(_ context.Context, owner string) (*store.Account, error) {
	if _, ok := t.s.accounts[owner]; !ok {
		t.s.accounts[owner] = 0
	}
	return &store.Account{ID: "acct-" + owner, Owner: owner, Balance: t.s.accounts[owner]}, nil
}

func (t *memTx) TransferNative(_ context.Context, fromOwner, toOwner string, amount uint64) error {
	if t.s.accounts[fromOwner] < int64(amount) {
		return fmt.Errorf("account %s: %w", fromOwner, store.ErrInsufficientBalance)
	}
	t.s.accounts[fromOwner] -= int64(amount)
	t.s.accounts[toOwner] += int64(amount)
	return nil
}

func (t *memTx) EnsureTokenAccount(_ context.Context, owner, mint string) (*store.TokenAccount, error) {
	id := tokenID(owner, mint)
	if a, ok := t.s.tokens[id]; ok {
		return a, nil
	}
	a := &store.TokenAccount{ID: id, Owner: owner, Mint: mint}
	t.s.tokens[id] = a
	return a, nil
}

func (t *memTx) GetTokenAccountForUpdate(_ context.Context, id string) (*store.TokenAccount, error) {
	a, ok := t.s.tokens[id]
	if !ok {
		return nil, fmt.Errorf("token account %s: %w", id, store.ErrNotFound)
	}
	return a, nil
}

func (t *memTx) TransferToken(_ context.Context, fromID, toID string, amount uint64) error {
	from, ok := t.s.tokens[fromID]
	if !ok || from.Balance < int64(amount) {
		return fmt.Errorf("token account %s: %w", fromID, store.ErrInsufficientBalance)
	}
	to, ok := t.s.tokens[toID]
	if !ok {
		return fmt.Errorf("token account %s: %w", toID, store.ErrNotFound)
	}
	from.Balance -= int64(amount)
	to.Balance += int64(amount)
	return nil
}

func (t *memTx) CloseTokenAccount(_ context.Context, id string) error {
	a, ok := t.s.tokens[id]
	if !ok || a.Balance != 0 {
		return fmt.Errorf("token account %s missing or not empty: %w", id, store.ErrNotFound)
	}
	delete(t.s.tokens, id)
	return nil
}

func (t *memTx) AppendEvents(_ context.Context, events ...event.Event) error {
	t.s.events = append(t.s.events, events...)
	return nil
}
