// Package store defines the durable row-store boundary the core persists
// through: read-by-id, keyed writes with optimistic version checks, and a
// per-key advisory lock scoped to a transaction. The storage engine itself is
// a collaborator; this package ships an in-memory implementation with the
// same contract for tests and the simulator.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("row not found")

	// ErrVersionConflict indicates a game row write lost a race: the stored
	// version no longer matches the version the caller read.
	ErrVersionConflict = errors.New("game row version conflict")
)

// GameRow is the durable shape of a game's scalar fields. Version increments
// on every write and backs conflict detection.
type GameRow struct {
	ID      string
	Version int64

	HandID            int
	Status            string
	CurrentRound      string
	CurrentHighestBet int
	CurrentPlayerTurn string
	LastAggressorID   string
	Pot               int
	BigBlind          int
	SmallBlind        int
	LastAction        string
	LastBetAmount     int

	// TurnTimeoutAt is milliseconds since the Unix epoch; zero means unset.
	TurnTimeoutAt int64
	TurnMs        int
}

// PlayerRow is the durable shape of one seat.
type PlayerRow struct {
	ID     string // user id; unique within a game
	GameID string

	Seat       int
	Stack      int
	CurrentBet int

	HasFolded bool
	IsButton  bool
	HasWon    bool
	ShowCards bool
	HasActed  bool

	HandRank  int
	HandValue int
	HandName  string

	IsBot       bool
	BotStrategy string

	LeaveAfterHand bool
	Disconnected   bool
}

// CardLocation distinguishes hole cards from community cards.
type CardLocation string

const (
	LocationHole      CardLocation = "hole"
	LocationCommunity CardLocation = "community"
)

// CardRow is one dealt card. Cards are scoped to a hand; rows from earlier
// hands are garbage the adapter cleans up.
type CardRow struct {
	ID     string
	GameID string
	HandID int

	Rank uint8
	Suit uint8

	Location CardLocation
	OwnerID  string // player id for hole cards, empty for community
	Position int    // deal order within its location
}

// Tx is a transaction over the row store. Implementations need not provide
// full ACID semantics; the adapter serializes all writers for a game via
// AdvisoryLock before touching its rows.
type Tx interface {
	// AdvisoryLock acquires a mutual-exclusion lock on an arbitrary key,
	// held until the transaction ends. Two transactions locking the same
	// key are fully serialized; distinct keys never contend.
	AdvisoryLock(ctx context.Context, key string) error

	GetGame(id string) (GameRow, error)
	// PutGame writes the game row if the stored version equals the row's
	// Version field (0 for inserts), then bumps it. Returns
	// ErrVersionConflict otherwise.
	PutGame(row GameRow) (GameRow, error)

	PlayersByGame(gameID string) ([]PlayerRow, error)
	PutPlayer(row PlayerRow) error
	DeletePlayer(gameID, playerID string) error

	CardsByGame(gameID string) ([]CardRow, error)
	PutCard(row CardRow) error
	DeleteCard(id string) error
}

// Client runs transactions against the row store.
type Client interface {
	// View runs fn with a read-only transaction.
	View(ctx context.Context, fn func(Tx) error) error
	// Update runs fn with a read-write transaction.
	Update(ctx context.Context, fn func(Tx) error) error
}
