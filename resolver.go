/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

// Outcome is one player's private result for a round.
type Outcome struct {
	Participant string
	Years       int
	Message     string
}

// RoundResult pairs the outcomes of the first and second players to join.
type RoundResult struct {
	A Outcome
	B Outcome
}

// Resolve returns the sentence lengths for two choices.
func Resolve(a, b Choice) (int, int) {
	switch {
	case a == ChoiceSilent && b == ChoiceSilent:
		return 1, 1
	case a == ChoiceTattle && b == ChoiceTattle:
		return 2, 2
	case a == ChoiceTattle && b == ChoiceSilent:
		return 0, 3
	case a == ChoiceSilent && b == ChoiceTattle:
		return 3, 0
	default:
		return 0, 0
	}
}

// MessageFor returns the message shown for a sentence length, or an empty
// string for lengths outside 0-3.
func MessageFor(years int) string {
	switch years {
	case 0:
		return "You're free! Congratulations—but at what moral cost?"
	case 1:
		return "One year — could have been worse. Your trust wasn't misplaced!"
	case 2:
		return "Two years — both tattled, both lost. Snitches get stitches!"
	case 3:
		return "Three years — sorry! Maybe you relied on your partner too much..."
	default:
		return ""
	}
}

// EvaluateRound records a member's choice and, once both members have
// chosen, resolves the round. It returns nil while the round is still
// waiting on a choice. Roles follow join order.
func EvaluateRound(reg *Registry, roomID, participantID string, choice Choice) (*RoundResult, error) {
	room, ok := reg.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if !room.hasPlayer(participantID) {
		return nil, ErrNotInRoom
	}

	if !room.resolved {
		room.pruneChoices()
	}

	if _, err := reg.RecordChoice(roomID, participantID, choice); err != nil {
		return nil, err
	}
	if !room.allChosen() {
		return nil, nil
	}

	a, b := room.players[0], room.players[1]
	yearsA, yearsB := Resolve(room.choices[a], room.choices[b])

	room.resolved = true

	return &RoundResult{
		A: Outcome{Participant: a, Years: yearsA, Message: MessageFor(yearsA)},
		B: Outcome{Participant: b, Years: yearsB, Message: MessageFor(yearsB)},
	}, nil
}
