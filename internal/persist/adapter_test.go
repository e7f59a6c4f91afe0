package persist

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablestakes/holdem-core/internal/deck"
	"github.com/tablestakes/holdem-core/internal/engine"
	"github.com/tablestakes/holdem-core/internal/randutil"
	"github.com/tablestakes/holdem-core/internal/store"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func testAdapter() (*Adapter, *store.Memory) {
	db := store.NewMemory()
	return New(db, log.New(io.Discard)), db
}

// startedGame returns an active 3-player hand with a deterministic shuffle.
func startedGame(t *testing.T) engine.GameState {
	t.Helper()
	s := engine.New("game-1", randutil.New(1))
	for i := 0; i < 3; i++ {
		s.Players = append(s.Players, engine.Player{
			ID:    fmt.Sprintf("p%d", i),
			Seat:  i,
			Stack: 1000,
		})
	}
	started, err := engine.StartHand(s, randutil.New(1), testNow)
	require.NoError(t, err)
	return started
}

func TestCreateAndLoadRoundTrip(t *testing.T) {
	a, _ := testAdapter()
	ctx := context.Background()
	s := startedGame(t)

	snap, err := a.Create(ctx, s)
	require.NoError(t, err)

	loaded := snap.State
	assert.Equal(t, s.ID, loaded.ID)
	assert.Equal(t, s.HandID, loaded.HandID)
	assert.Equal(t, s.Status, loaded.Status)
	assert.Equal(t, s.CurrentRound, loaded.CurrentRound)
	assert.Equal(t, s.Pot, loaded.Pot)
	assert.Equal(t, s.CurrentPlayerTurn, loaded.CurrentPlayerTurn)
	assert.True(t, s.TurnTimeoutAt.Equal(loaded.TurnTimeoutAt))
	require.Len(t, loaded.Players, 3)
	for i, p := range loaded.Players {
		assert.Equal(t, s.Players[i].ID, p.ID)
		assert.Equal(t, s.Players[i].Stack, p.Stack)
		assert.Equal(t, s.Players[i].HoleCards, p.HoleCards)
	}

	// The deck comes back as the universe minus the six dealt hole cards.
	assert.Len(t, loaded.Deck, 52-6)
	for _, c := range loaded.Deck {
		assert.NotContains(t, loaded.DealtCards(), c)
	}
}

func TestCreateExistingGameFails(t *testing.T) {
	a, _ := testAdapter()
	ctx := context.Background()
	s := startedGame(t)

	_, err := a.Create(ctx, s)
	require.NoError(t, err)
	_, err = a.Create(ctx, s)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestLoadMissingGame(t *testing.T) {
	a, _ := testAdapter()
	_, err := a.Load(context.Background(), "missing")
	var nf *engine.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestSaveIdempotentShortCircuit(t *testing.T) {
	a, _ := testAdapter()
	ctx := context.Background()
	s := startedGame(t)

	snap, err := a.Create(ctx, s)
	require.NoError(t, err)

	// Saving an unchanged state against its own snapshot writes nothing.
	after, err := a.Save(ctx, snap.State, &snap)
	require.NoError(t, err)
	assert.Equal(t, snap.Version, after.Version, "no-op save must not bump the version")

	again, err := a.Save(ctx, snap.State, &snap)
	require.NoError(t, err)
	assert.Equal(t, snap.Version, again.Version)
}

func TestSaveWritesChangedState(t *testing.T) {
	a, _ := testAdapter()
	ctx := context.Background()
	s := startedGame(t)

	snap, err := a.Create(ctx, s)
	require.NoError(t, err)

	next, err := engine.ApplyAction(snap.State, engine.Action{
		PlayerID: snap.State.CurrentPlayerTurn,
		Type:     engine.ActionCall,
		Source:   engine.SourceHuman,
	}, testNow)
	require.NoError(t, err)

	after, err := a.Save(ctx, next, &snap)
	require.NoError(t, err)
	assert.Greater(t, after.Version, snap.Version)
	assert.Equal(t, next.Pot, after.State.Pot)
	assert.Equal(t, next.CurrentPlayerTurn, after.State.CurrentPlayerTurn)
}

func TestSaveStaleSnapshotConflicts(t *testing.T) {
	a, _ := testAdapter()
	ctx := context.Background()
	s := startedGame(t)

	snap, err := a.Create(ctx, s)
	require.NoError(t, err)

	next, err := engine.ApplyAction(snap.State, engine.Action{
		PlayerID: snap.State.CurrentPlayerTurn,
		Type:     engine.ActionCall,
	}, testNow)
	require.NoError(t, err)

	// First writer wins.
	_, err = a.Save(ctx, next, &snap)
	require.NoError(t, err)

	// Second writer holding the stale snapshot conflicts.
	_, err = a.Save(ctx, next, &snap)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestSaveCleansUpPreviousHandCards(t *testing.T) {
	a, db := testAdapter()
	ctx := context.Background()
	s := startedGame(t)

	snap, err := a.Create(ctx, s)
	require.NoError(t, err)

	// Next hand: the old hand's card rows must be removed.
	nextHand, err := engine.StartHand(snap.State, randutil.New(2), testNow)
	require.NoError(t, err)
	after, err := a.Save(ctx, nextHand, &snap)
	require.NoError(t, err)

	require.NoError(t, db.View(ctx, func(tx store.Tx) error {
		cards, err := tx.CardsByGame("game-1")
		require.NoError(t, err)
		for _, c := range cards {
			assert.Equal(t, after.State.HandID, c.HandID, "stale card row survived")
		}
		assert.Len(t, cards, 6)
		return nil
	}))
}

func TestSaveNeverDeletesCurrentHandCards(t *testing.T) {
	a, db := testAdapter()
	ctx := context.Background()
	s := startedGame(t)

	snap, err := a.Create(ctx, s)
	require.NoError(t, err)

	// A racing duplicate writer saves a state missing p2's hole cards (e.g.
	// built from a partial read). The stored rows must survive.
	partial := snap.State.Clone()
	partial.Players[2].HoleCards = nil
	forced, err := a.Save(ctx, partial, nil)
	require.NoError(t, err)
	require.Equal(t, snap.State.HandID, forced.State.HandID)

	require.NoError(t, db.View(ctx, func(tx store.Tx) error {
		cards, err := tx.CardsByGame("game-1")
		require.NoError(t, err)
		holeCount := 0
		for _, c := range cards {
			if c.Location == store.LocationHole && c.OwnerID == "p2" {
				holeCount++
			}
		}
		assert.Equal(t, 2, holeCount, "current-hand hole cards must never be deleted")
		return nil
	}))
}

func TestSaveEnforcesCardCaps(t *testing.T) {
	a, db := testAdapter()
	ctx := context.Background()
	s := startedGame(t)

	// Corrupt upstream state: too many hole and community cards.
	s.Players[0].HoleCards = append(s.Players[0].HoleCards, s.Deck[0])
	s.CommunityCards = append(s.CommunityCards, s.Deck[1:7]...)
	s.Deck = s.Deck[7:]

	_, err := a.Create(ctx, s)
	require.NoError(t, err)

	require.NoError(t, db.View(ctx, func(tx store.Tx) error {
		cards, err := tx.CardsByGame("game-1")
		require.NoError(t, err)
		p0Hole, community := 0, 0
		for _, c := range cards {
			switch {
			case c.Location == store.LocationHole && c.OwnerID == "p0":
				p0Hole++
			case c.Location == store.LocationCommunity:
				community++
			}
		}
		assert.Equal(t, 2, p0Hole, "at most 2 hole cards per player")
		assert.Equal(t, 5, community, "at most 5 community cards")
		return nil
	}))
}

func TestSaveRejectsDuplicateCards(t *testing.T) {
	a, _ := testAdapter()
	ctx := context.Background()
	s := startedGame(t)
	s.CommunityCards = append(s.CommunityCards, s.Players[0].HoleCards[0])

	_, err := a.Save(ctx, s, nil)
	assert.Error(t, err)
}

func TestRevealFlagOnlyWrittenAtShowdown(t *testing.T) {
	a, _ := testAdapter()
	ctx := context.Background()
	s := startedGame(t)

	snap, err := a.Create(ctx, s)
	require.NoError(t, err)

	// Mid-hand reveal toggle with nothing else changed: treated as a no-op.
	midHand := snap.State.Clone()
	midHand.Players[0].ShowCards = true
	after, err := a.Save(ctx, midHand, &snap)
	require.NoError(t, err)
	assert.Equal(t, snap.Version, after.Version)
	assert.False(t, after.State.Players[0].ShowCards)
}

func TestDeletePlayers(t *testing.T) {
	a, db := testAdapter()
	ctx := context.Background()
	s := startedGame(t)

	_, err := a.Create(ctx, s)
	require.NoError(t, err)

	require.NoError(t, a.DeletePlayers(ctx, "game-1", []string{"p1"}))

	require.NoError(t, db.View(ctx, func(tx store.Tx) error {
		players, err := tx.PlayersByGame("game-1")
		require.NoError(t, err)
		require.Len(t, players, 2)
		for _, p := range players {
			assert.NotEqual(t, "p1", p.ID)
		}
		return nil
	}))
}

func TestCardKeyDistinguishesOwners(t *testing.T) {
	a := store.CardRow{Location: store.LocationHole, OwnerID: "p0", Rank: uint8(deck.Ace), Suit: uint8(deck.Spades)}
	b := a
	b.OwnerID = "p1"
	assert.NotEqual(t, cardKey(a), cardKey(b))
}
