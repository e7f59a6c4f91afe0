package persist

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tablestakes/holdem-core/internal/deck"
	"github.com/tablestakes/holdem-core/internal/engine"
	"github.com/tablestakes/holdem-core/internal/store"
)

// Defensive caps on card rows, enforced even if upstream logic misbehaves.
const (
	maxHoleCards      = 2
	maxCommunityCards = 5
)

func toGameRow(s engine.GameState, version int64) store.GameRow {
	row := store.GameRow{
		ID:                s.ID,
		Version:           version,
		HandID:            s.HandID,
		Status:            string(s.Status),
		CurrentRound:      string(s.CurrentRound),
		CurrentHighestBet: s.CurrentHighestBet,
		CurrentPlayerTurn: s.CurrentPlayerTurn,
		LastAggressorID:   s.LastAggressorID,
		Pot:               s.Pot,
		BigBlind:          s.BigBlind,
		SmallBlind:        s.SmallBlind,
		LastAction:        string(s.LastAction),
		LastBetAmount:     s.LastBetAmount,
		TurnMs:            s.TurnMs,
	}
	if !s.TurnTimeoutAt.IsZero() {
		row.TurnTimeoutAt = s.TurnTimeoutAt.UnixMilli()
	}
	return row
}

func toPlayerRow(gameID string, p engine.Player) store.PlayerRow {
	return store.PlayerRow{
		ID:             p.ID,
		GameID:         gameID,
		Seat:           p.Seat,
		Stack:          p.Stack,
		CurrentBet:     p.CurrentBet,
		HasFolded:      p.HasFolded,
		IsButton:       p.IsButton,
		HasWon:         p.HasWon,
		ShowCards:      p.ShowCards,
		HasActed:       p.HasActed,
		HandRank:       p.HandRank,
		HandValue:      p.HandValue,
		HandName:       p.HandName,
		IsBot:          p.IsBot,
		BotStrategy:    p.BotStrategy,
		LeaveAfterHand: p.LeaveAfterHand,
		Disconnected:   p.Disconnected,
	}
}

func fromPlayerRow(row store.PlayerRow) engine.Player {
	return engine.Player{
		ID:             row.ID,
		Seat:           row.Seat,
		Stack:          row.Stack,
		CurrentBet:     row.CurrentBet,
		HasFolded:      row.HasFolded,
		IsButton:       row.IsButton,
		HasWon:         row.HasWon,
		ShowCards:      row.ShowCards,
		HasActed:       row.HasActed,
		HandRank:       row.HandRank,
		HandValue:      row.HandValue,
		HandName:       row.HandName,
		IsBot:          row.IsBot,
		BotStrategy:    row.BotStrategy,
		LeaveAfterHand: row.LeaveAfterHand,
		Disconnected:   row.Disconnected,
	}
}

// desiredCardRows flattens the state's dealt cards into row shapes, applying
// the defensive per-player and community caps.
func desiredCardRows(s engine.GameState) []store.CardRow {
	var rows []store.CardRow
	for _, p := range s.Players {
		hole := p.HoleCards
		if len(hole) > maxHoleCards {
			hole = hole[:maxHoleCards]
		}
		for i, c := range hole {
			rows = append(rows, store.CardRow{
				GameID:   s.ID,
				HandID:   s.HandID,
				Rank:     uint8(c.Rank),
				Suit:     uint8(c.Suit),
				Location: store.LocationHole,
				OwnerID:  p.ID,
				Position: i,
			})
		}
	}
	community := s.CommunityCards
	if len(community) > maxCommunityCards {
		community = community[:maxCommunityCards]
	}
	for i, c := range community {
		rows = append(rows, store.CardRow{
			GameID:   s.ID,
			HandID:   s.HandID,
			Rank:     uint8(c.Rank),
			Suit:     uint8(c.Suit),
			Location: store.LocationCommunity,
			Position: i,
		})
	}
	return rows
}

// cardKey identifies a card row independent of its row id, for membership
// checks between desired and stored sets.
func cardKey(row store.CardRow) string {
	return string(row.Location) + "/" + row.OwnerID + "/" + deck.Card{Rank: deck.Rank(row.Rank), Suit: deck.Suit(row.Suit)}.String()
}

func newCardRowID() string {
	return uuid.NewString()
}

// stateFromRows reassembles the pure game state from durable rows. The
// remaining deck is reconstructed as the 52-card universe minus every card
// dealt in the current hand.
func stateFromRows(game store.GameRow, players []store.PlayerRow, cards []store.CardRow) engine.GameState {
	s := engine.GameState{
		ID:                game.ID,
		HandID:            game.HandID,
		Status:            engine.Status(game.Status),
		CurrentRound:      engine.Round(game.CurrentRound),
		CurrentHighestBet: game.CurrentHighestBet,
		CurrentPlayerTurn: game.CurrentPlayerTurn,
		LastAggressorID:   game.LastAggressorID,
		Pot:               game.Pot,
		BigBlind:          game.BigBlind,
		SmallBlind:        game.SmallBlind,
		LastAction:        engine.ActionType(game.LastAction),
		LastBetAmount:     game.LastBetAmount,
		TurnMs:            game.TurnMs,
	}
	if game.TurnTimeoutAt != 0 {
		s.TurnTimeoutAt = time.UnixMilli(game.TurnTimeoutAt)
	}

	holeByOwner := make(map[string][]store.CardRow)
	var community []store.CardRow
	for _, c := range cards {
		if c.HandID != game.HandID {
			continue // stale rows from an earlier hand
		}
		switch c.Location {
		case store.LocationHole:
			holeByOwner[c.OwnerID] = append(holeByOwner[c.OwnerID], c)
		case store.LocationCommunity:
			community = append(community, c)
		}
	}
	byPosition := func(rows []store.CardRow) {
		sort.Slice(rows, func(i, j int) bool { return rows[i].Position < rows[j].Position })
	}
	byPosition(community)

	for _, row := range players {
		p := fromPlayerRow(row)
		hole := holeByOwner[row.ID]
		byPosition(hole)
		for _, c := range hole {
			p.HoleCards = append(p.HoleCards, deck.NewCard(deck.Rank(c.Rank), deck.Suit(c.Suit)))
		}
		s.Players = append(s.Players, p)
	}
	for _, c := range community {
		s.CommunityCards = append(s.CommunityCards, deck.NewCard(deck.Rank(c.Rank), deck.Suit(c.Suit)))
	}

	s.Deck = deck.Remaining(s.DealtCards())
	return s
}
