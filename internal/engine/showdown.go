package engine

import (
	"fmt"
	"time"

	"github.com/tablestakes/holdem-core/internal/deck"
	"github.com/tablestakes/holdem-core/internal/evaluator"
)

// handleShowdown evaluates every remaining player's best hand, marks the
// winner(s) and distributes the pot. Equal category and value is a true tie
// and splits the pot. The caller passes an already-cloned state.
func handleShowdown(next GameState) (GameState, error) {
	next.CurrentRound = RoundShowdown
	next.CurrentPlayerTurn = ""

	var best evaluator.HandValue
	var winners []string
	for i := range next.Players {
		p := &next.Players[i]
		if p.HasFolded {
			continue
		}
		cards := make([]deck.Card, 0, len(p.HoleCards)+len(next.CommunityCards))
		cards = append(cards, p.HoleCards...)
		cards = append(cards, next.CommunityCards...)
		hv, err := evaluator.Evaluate(cards)
		if err != nil {
			// Fewer than five cards at showdown means upstream dealt wrong.
			return next, fmt.Errorf("showdown evaluation for player %s: %w", p.ID, err)
		}
		p.HandRank = int(hv.Category)
		p.HandValue = hv.Value
		p.HandName = hv.Name
		p.ShowCards = true

		switch {
		case len(winners) == 0 || evaluator.Compare(hv, best) > 0:
			best = hv
			winners = []string{p.ID}
		case evaluator.Compare(hv, best) == 0:
			winners = append(winners, p.ID)
		}
	}

	if len(winners) == 0 {
		return next, invalidf("showdown with no eligible players")
	}
	distributeWinnings(&next, winners)
	return next, nil
}

// handleSinglePlayerWin awards the full pot to the sole remaining player
// without evaluating cards.
func handleSinglePlayerWin(next GameState, winnerID string) (GameState, error) {
	next.CurrentRound = RoundShowdown
	next.CurrentPlayerTurn = ""
	distributeWinnings(&next, []string{winnerID})
	return next, nil
}

// distributeWinnings splits the pot evenly across the winners and completes
// the hand. An uneven split leaves remainder chips, which go to the winner
// seated earliest after the button.
func distributeWinnings(s *GameState, winnerIDs []string) {
	share := s.Pot / len(winnerIDs)
	remainder := s.Pot % len(winnerIDs)

	for _, id := range winnerIDs {
		p := s.PlayerByID(id)
		p.Stack += share
		p.HasWon = true
	}

	if remainder > 0 {
		first := firstWinnerAfterButton(s, winnerIDs)
		first.Stack += remainder
	}

	s.Pot = 0
	s.Status = StatusCompleted
	s.TurnTimeoutAt = time.Time{}
}

// firstWinnerAfterButton picks the tied winner whose seat comes up first
// going clockwise from the button.
func firstWinnerAfterButton(s *GameState, winnerIDs []string) *Player {
	isWinner := make(map[string]bool, len(winnerIDs))
	for _, id := range winnerIDs {
		isWinner[id] = true
	}
	n := len(s.Players)
	button := s.buttonIndex()
	for off := 1; off <= n; off++ {
		p := &s.Players[(button+off)%n]
		if isWinner[p.ID] {
			return p
		}
	}
	// Unreachable with a non-empty winner set.
	return s.PlayerByID(winnerIDs[0])
}
