/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"sort"
	"time"
)

const (
	defaultMaxRooms = 3
	roomCapacity    = 2

	anonymousName = "Anonymous"
)

// Choice is the move a player submits for a round.
type Choice string

const (
	ChoiceSilent Choice = "silent"
	ChoiceTattle Choice = "tattle"
)

// ParseChoice converts client input into a Choice, rejecting anything
// other than the two known moves.
func ParseChoice(s string) (Choice, error) {
	switch Choice(s) {
	case ChoiceSilent, ChoiceTattle:
		return Choice(s), nil
	default:
		return "", ErrInvalidChoice
	}
}

// Room is a two-player session. players holds participant IDs in join order.
type Room struct {
	ID         string
	players    []string
	choices    map[string]Choice
	resolved   bool
	lastActive time.Time
}

func newRoom(id string, now time.Time) *Room {
	return &Room{
		ID:         id,
		players:    make([]string, 0, roomCapacity),
		choices:    make(map[string]Choice, roomCapacity),
		lastActive: now,
	}
}

// allChosen reports whether both seated players have a choice recorded.
func (r *Room) allChosen() bool {
	if len(r.players) < roomCapacity {
		return false
	}

	for _, p := range r.players {
		if _, ok := r.choices[p]; !ok {
			return false
		}
	}

	return true
}

// pruneChoices drops entries recorded for participants who are not seated.
func (r *Room) pruneChoices() {
	for id := range r.choices {
		if !r.hasPlayer(id) {
			delete(r.choices, id)
		}
	}
}

func (r *Room) hasPlayer(participantID string) bool {
	for _, p := range r.players {
		if p == participantID {
			return true
		}
	}
	return false
}

// PlayerView is the only form of room membership sent to more than one client.
type PlayerView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoomView is a sanitized room listing entry.
type RoomView struct {
	RoomID  string       `json:"roomId"`
	Players []PlayerView `json:"players"`
}

// Registry holds every room and every participant's display name. It is
// not safe for concurrent use; the lobby event loop owns it.
type Registry struct {
	maxRooms int
	rooms    map[string]*Room
	names    map[string]string

	now func() time.Time
}

func NewRegistry(maxRooms int) *Registry {
	if maxRooms < 1 {
		maxRooms = defaultMaxRooms
	}

	return &Registry{
		maxRooms: maxRooms,
		rooms:    make(map[string]*Room),
		names:    make(map[string]string),
		now:      time.Now,
	}
}

// Len returns the number of active rooms.
func (reg *Registry) Len() int {
	return len(reg.rooms)
}

func (reg *Registry) CreateRoom(roomID string) error {
	if roomID == "" {
		return ErrMissingRoomID
	}
	if len(reg.rooms) >= reg.maxRooms {
		return ErrCapacityExceeded
	}
	if _, ok := reg.rooms[roomID]; ok {
		return ErrDuplicateRoom
	}

	reg.rooms[roomID] = newRoom(roomID, reg.now())

	return nil
}

func (reg *Registry) JoinRoom(roomID, participantID string) error {
	room, ok := reg.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	if room.hasPlayer(participantID) {
		return ErrAlreadyInRoom
	}
	if len(room.players) >= roomCapacity {
		return ErrRoomFull
	}

	room.players = append(room.players, participantID)
	room.lastActive = reg.now()

	return nil
}

// RecordChoice sets or overwrites a participant's choice for the current
// round and reports whether two distinct participants have now chosen.
// Membership is checked by EvaluateRound, not here, but a third distinct
// participant is refused so the map never holds more than two entries.
func (reg *Registry) RecordChoice(roomID, participantID string, choice Choice) (bool, error) {
	room, ok := reg.rooms[roomID]
	if !ok {
		return false, ErrRoomNotFound
	}
	if room.resolved {
		return false, ErrRoundAlreadyResolved
	}

	if _, seen := room.choices[participantID]; !seen && len(room.choices) >= roomCapacity {
		return false, ErrRoundAlreadyResolved
	}

	room.choices[participantID] = choice
	room.lastActive = reg.now()

	return len(room.choices) == roomCapacity, nil
}

// ResetRound clears recorded choices so the same pair can play again.
func (reg *Registry) ResetRound(roomID string) error {
	room, ok := reg.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}

	clear(room.choices)
	room.resolved = false
	room.lastActive = reg.now()

	return nil
}

// DestroyRoom removes a room if present and reports whether it existed.
func (reg *Registry) DestroyRoom(roomID string) bool {
	if _, ok := reg.rooms[roomID]; !ok {
		return false
	}

	delete(reg.rooms, roomID)

	return true
}

// Members returns the room's participant IDs in join order.
func (reg *Registry) Members(roomID string) ([]string, error) {
	room, ok := reg.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}

	return append([]string(nil), room.players...), nil
}

// Sanitize returns the room's players and their names, without choices.
func (reg *Registry) Sanitize(roomID string) ([]PlayerView, error) {
	room, ok := reg.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}

	players := make([]PlayerView, 0, len(room.players))
	for _, pid := range room.players {
		players = append(players, PlayerView{
			ID:   pid,
			Name: reg.DisplayName(pid),
		})
	}

	return players, nil
}

// Rooms returns a sanitized view of every room, ordered by room ID.
func (reg *Registry) Rooms() []RoomView {
	ids := make([]string, 0, len(reg.rooms))
	for id := range reg.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	views := make([]RoomView, 0, len(ids))
	for _, id := range ids {
		players, _ := reg.Sanitize(id)
		views = append(views, RoomView{
			RoomID:  id,
			Players: players,
		})
	}

	return views
}

// RoomsOf returns the IDs of every room the participant has joined.
func (reg *Registry) RoomsOf(participantID string) []string {
	var ids []string
	for id, room := range reg.rooms {
		if room.hasPlayer(participantID) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	return ids
}

// Idle returns the IDs of rooms with no activity since cutoff.
func (reg *Registry) Idle(cutoff time.Time) []string {
	var ids []string
	for id, room := range reg.rooms {
		if room.lastActive.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	return ids
}

func (reg *Registry) SetDisplayName(participantID, name string) {
	reg.names[participantID] = name
}

// DisplayName returns the participant's name, or a placeholder if unset.
func (reg *Registry) DisplayName(participantID string) string {
	return reg.nameOr(participantID, anonymousName)
}

func (reg *Registry) nameOr(participantID, fallback string) string {
	if name := reg.names[participantID]; name != "" {
		return name
	}
	return fallback
}

// Forget drops the participant's name binding.
func (reg *Registry) Forget(participantID string) {
	delete(reg.names, participantID)
}
