package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		a, b         Choice
		wantA, wantB int
	}{
		{ChoiceSilent, ChoiceSilent, 1, 1},
		{ChoiceTattle, ChoiceTattle, 2, 2},
		{ChoiceTattle, ChoiceSilent, 0, 3},
		{ChoiceSilent, ChoiceTattle, 3, 0},
		{Choice("shrug"), ChoiceSilent, 0, 0},
		{ChoiceTattle, Choice(""), 0, 0},
	}

	for _, tt := range tests {
		gotA, gotB := Resolve(tt.a, tt.b)
		assert.Equal(t, tt.wantA, gotA, "Resolve(%q, %q) years for A", tt.a, tt.b)
		assert.Equal(t, tt.wantB, gotB, "Resolve(%q, %q) years for B", tt.a, tt.b)

		// Same input, same answer.
		againA, againB := Resolve(tt.a, tt.b)
		assert.Equal(t, [2]int{gotA, gotB}, [2]int{againA, againB})
	}
}

func TestMessageFor(t *testing.T) {
	prefixes := map[int]string{
		0: "You're free!",
		1: "One year",
		2: "Two years",
		3: "Three years",
	}

	assert.Equal(t, "You're free! Congratulations—but at what moral cost?", MessageFor(0))
	assert.Equal(t, "Three years — sorry! Maybe you relied on your partner too much...", MessageFor(3))

	for years, prefix := range prefixes {
		got := MessageFor(years)
		assert.Truef(t, strings.HasPrefix(got, prefix), "MessageFor(%d): want prefix %q, got %q", years, prefix, got)
	}

	for _, years := range []int{-1, 4, 100} {
		assert.Empty(t, MessageFor(years), "MessageFor(%d)", years)
	}
}

func newFullRoom(t *testing.T, ids ...string) *Registry {
	t.Helper()

	reg := NewRegistry(3)
	require.NoError(t, reg.CreateRoom("abc"))
	for _, id := range ids {
		require.NoError(t, reg.JoinRoom("abc", id), "join %s", id)
	}

	return reg
}

func TestEvaluateRound_Scenario(t *testing.T) {
	reg := newFullRoom(t, "A", "B")

	res, err := EvaluateRound(reg, "abc", "A", ChoiceSilent)
	require.NoError(t, err)
	assert.Nil(t, res, "no outcome after one choice")

	res, err = EvaluateRound(reg, "abc", "B", ChoiceTattle)
	require.NoError(t, err)
	require.NotNil(t, res, "outcome after both choices")

	assert.Equal(t, Outcome{Participant: "A", Years: 3, Message: MessageFor(3)}, res.A)
	assert.Equal(t, Outcome{Participant: "B", Years: 0, Message: MessageFor(0)}, res.B)
	assert.Contains(t, res.A.Message, "Three years")
	assert.Contains(t, res.B.Message, "You're free!")
}

func TestEvaluateRound_RolesFollowJoinOrder(t *testing.T) {
	reg := newFullRoom(t, "first", "second")

	// The second player to join chooses first.
	_, err := EvaluateRound(reg, "abc", "second", ChoiceTattle)
	require.NoError(t, err)

	res, err := EvaluateRound(reg, "abc", "first", ChoiceSilent)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "first", res.A.Participant)
	assert.Equal(t, 3, res.A.Years)
	assert.Equal(t, "second", res.B.Participant)
	assert.Equal(t, 0, res.B.Years)
}

func TestEvaluateRound_ResubmissionOverwrites(t *testing.T) {
	reg := newFullRoom(t, "A", "B")

	for _, c := range []Choice{ChoiceTattle, ChoiceSilent} {
		res, err := EvaluateRound(reg, "abc", "A", c)
		require.NoError(t, err)
		assert.Nil(t, res, "resubmission must not resolve")
	}

	res, err := EvaluateRound(reg, "abc", "B", ChoiceSilent)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, 1, res.A.Years, "latest choice counts")
	assert.Equal(t, 1, res.B.Years)
}

func TestEvaluateRound_ResolvesOnce(t *testing.T) {
	reg := newFullRoom(t, "A", "B")

	_, err := EvaluateRound(reg, "abc", "A", ChoiceSilent)
	require.NoError(t, err)
	res, err := EvaluateRound(reg, "abc", "B", ChoiceSilent)
	require.NoError(t, err)
	require.NotNil(t, res)

	for _, id := range []string{"A", "B"} {
		res, err := EvaluateRound(reg, "abc", id, ChoiceTattle)
		assert.ErrorIs(t, err, ErrRoundAlreadyResolved, id)
		assert.Nil(t, res, id)
	}

	assert.Len(t, reg.rooms["abc"].choices, 2)

	require.NoError(t, reg.ResetRound("abc"))

	res, err = EvaluateRound(reg, "abc", "A", ChoiceTattle)
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestEvaluateRound_WaitsForBothMembers(t *testing.T) {
	reg := newFullRoom(t, "A", "B")

	// A choice recorded for someone outside the room does not count.
	_, err := reg.RecordChoice("abc", "X", ChoiceSilent)
	require.NoError(t, err)

	res, err := EvaluateRound(reg, "abc", "A", ChoiceSilent)
	require.NoError(t, err)
	assert.Nil(t, res, "B has not chosen yet")
	assert.False(t, reg.rooms["abc"].resolved)

	res, err = EvaluateRound(reg, "abc", "B", ChoiceTattle)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, Outcome{Participant: "A", Years: 3, Message: MessageFor(3)}, res.A)
	assert.Equal(t, Outcome{Participant: "B", Years: 0, Message: MessageFor(0)}, res.B)
	assert.NotContains(t, reg.rooms["abc"].choices, "X")
}

func TestEvaluateRound_HalfFullRoomNeverResolves(t *testing.T) {
	reg := newFullRoom(t, "A")

	_, err := reg.RecordChoice("abc", "X", ChoiceTattle)
	require.NoError(t, err)

	res, err := EvaluateRound(reg, "abc", "A", ChoiceSilent)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.False(t, reg.rooms["abc"].resolved)
}

func TestEvaluateRound_Errors(t *testing.T) {
	reg := newFullRoom(t, "A")

	_, err := EvaluateRound(reg, "missing", "A", ChoiceSilent)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, err = EvaluateRound(reg, "abc", "stranger", ChoiceSilent)
	assert.ErrorIs(t, err, ErrNotInRoom)
	assert.Empty(t, reg.rooms["abc"].choices, "non-member choice was recorded")
}
