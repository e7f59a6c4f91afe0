package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-memory Client. Row maps are guarded by a single RWMutex;
// advisory locks are per-key channel semaphores so acquisition respects
// context cancellation, mirroring how a database advisory lock can time out.
type Memory struct {
	mu      sync.RWMutex
	games   map[string]GameRow
	players map[string]map[string]PlayerRow
	cards   map[string]map[string]CardRow
	locks   sync.Map // key -> chan struct{} (capacity 1)
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		games:   make(map[string]GameRow),
		players: make(map[string]map[string]PlayerRow),
		cards:   make(map[string]map[string]CardRow),
	}
}

// View implements Client.
func (m *Memory) View(ctx context.Context, fn func(Tx) error) error {
	return m.run(ctx, fn)
}

// Update implements Client.
func (m *Memory) Update(ctx context.Context, fn func(Tx) error) error {
	return m.run(ctx, fn)
}

func (m *Memory) run(_ context.Context, fn func(Tx) error) error {
	tx := &memTx{m: m, held: make(map[string]chan struct{})}
	defer tx.releaseLocks()
	return fn(tx)
}

type memTx struct {
	m    *Memory
	held map[string]chan struct{}
}

// AdvisoryLock implements Tx. Reentrant within a transaction.
func (tx *memTx) AdvisoryLock(ctx context.Context, key string) error {
	if _, ok := tx.held[key]; ok {
		return nil
	}
	sem, _ := tx.m.locks.LoadOrStore(key, make(chan struct{}, 1))
	ch := sem.(chan struct{})
	select {
	case ch <- struct{}{}:
		tx.held[key] = ch
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (tx *memTx) releaseLocks() {
	for _, ch := range tx.held {
		<-ch
	}
	tx.held = nil
}

func (tx *memTx) GetGame(id string) (GameRow, error) {
	tx.m.mu.RLock()
	defer tx.m.mu.RUnlock()
	row, ok := tx.m.games[id]
	if !ok {
		return GameRow{}, ErrNotFound
	}
	return row, nil
}

func (tx *memTx) PutGame(row GameRow) (GameRow, error) {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	stored, exists := tx.m.games[row.ID]
	if exists && stored.Version != row.Version {
		return GameRow{}, ErrVersionConflict
	}
	if !exists && row.Version != 0 {
		return GameRow{}, ErrVersionConflict
	}
	row.Version++
	tx.m.games[row.ID] = row
	return row, nil
}

func (tx *memTx) PlayersByGame(gameID string) ([]PlayerRow, error) {
	tx.m.mu.RLock()
	defer tx.m.mu.RUnlock()
	rows := make([]PlayerRow, 0, len(tx.m.players[gameID]))
	for _, row := range tx.m.players[gameID] {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Seat < rows[j].Seat })
	return rows, nil
}

func (tx *memTx) PutPlayer(row PlayerRow) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	byID, ok := tx.m.players[row.GameID]
	if !ok {
		byID = make(map[string]PlayerRow)
		tx.m.players[row.GameID] = byID
	}
	byID[row.ID] = row
	return nil
}

func (tx *memTx) DeletePlayer(gameID, playerID string) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	delete(tx.m.players[gameID], playerID)
	return nil
}

func (tx *memTx) CardsByGame(gameID string) ([]CardRow, error) {
	tx.m.mu.RLock()
	defer tx.m.mu.RUnlock()
	rows := make([]CardRow, 0, len(tx.m.cards[gameID]))
	for _, row := range tx.m.cards[gameID] {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Location != b.Location {
			return a.Location < b.Location
		}
		if a.OwnerID != b.OwnerID {
			return a.OwnerID < b.OwnerID
		}
		return a.Position < b.Position
	})
	return rows, nil
}

func (tx *memTx) PutCard(row CardRow) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	byID, ok := tx.m.cards[row.GameID]
	if !ok {
		byID = make(map[string]CardRow)
		tx.m.cards[row.GameID] = byID
	}
	byID[row.ID] = row
	return nil
}

func (tx *memTx) DeleteCard(id string) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	for _, byID := range tx.m.cards {
		if _, ok := byID[id]; ok {
			delete(byID, id)
			return nil
		}
	}
	return nil
}
