// Dilemma
//
// Two players share a room and each decides, without seeing the other's move,
// whether to stay silent or to tattle. Once both have chosen, each player is
// told privately how many years they got.
//
// Features:
// - One WebSocket endpoint: /path/ws
// - Rooms are named by the players, up to --max-rooms at once
// - Every connection gets a random participant ID for its lifetime
// - Room state broadcasts never carry choices
// - Outcomes go only to the player they belong to
// - A room closes on exit, when a member disconnects, or after
//   --session-timeout without activity
// - In-browser QR button to share a room, backed by go-qrcode

package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"golang.org/x/time/rate"
)

const (
	maxMessageSize = 4096
	sendBuffer     = 16
	outcomeName    = "You"

	pongWait   = time.Minute
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second

	// Sustained messages per second, and how many may arrive at once.
	messageRate  = 5
	messageBurst = 10
)

// Messages coming from clients
type ClientMessage struct {
	Type   string `json:"type"`             // "setName", "createRoom", "joinRoom", "playerChoice", "exitRoom", "newRound"
	Name   string `json:"name,omitempty"`   // setName
	RoomID string `json:"roomId,omitempty"` // everything else
	Choice string `json:"choice,omitempty"` // playerChoice
}

// SessionInfoMessage is sent immediately on connect so the client knows its ID.
type SessionInfoMessage struct {
	Type     string `json:"type"` // "sessionInfo"
	PlayerID string `json:"playerId"`
}

type RoomCreatedMessage struct {
	Type   string `json:"type"` // "roomCreated"
	RoomID string `json:"roomId"`
}

type JoinedRoomMessage struct {
	Type     string `json:"type"` // "joinedRoom"
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

// RoomDataMessage goes to every member of a room. It never includes choices.
type RoomDataMessage struct {
	Type    string       `json:"type"` // "roomData"
	RoomID  string       `json:"roomId"`
	Players []PlayerView `json:"players"`
}

type AnnouncementMessage struct {
	Type    string `json:"type"` // "choiceAnnouncement"
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// OutcomeMessage is delivered to exactly one player.
type OutcomeMessage struct {
	Type  string `json:"type"` // "showOutcome"
	Name  string `json:"name"`
	Years int    `json:"years"`
	Msg   string `json:"msg"`
}

type RoomListMessage struct {
	Type  string     `json:"type"` // "roomListUpdate"
	Rooms []RoomView `json:"rooms"`
}

// RoomStateMessage tells members their room was reset or closed.
type RoomStateMessage struct {
	Type   string `json:"type"` // "newRound" or "roomClosed"
	RoomID string `json:"roomId"`
}

// ErrorMessage is sent only to the client whose request failed.
type ErrorMessage struct {
	Type    string `json:"type"` // "errorMessage"
	Message string `json:"message"`
}

type Client struct {
	conn    *websocket.Conn
	send    chan any
	id      string
	limiter *rate.Limiter
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn:    conn,
		send:    make(chan any, sendBuffer),
		id:      uuid.NewString(),
		limiter: rate.NewLimiter(messageRate, messageBurst),
	}
}

type clientEvent struct {
	client *Client
	msg    ClientMessage
	err    error
}

// Lobby serializes every client event through a single goroutine, which
// is the only code that touches the registry.
type Lobby struct {
	cfg      *Config
	registry *Registry
	clients  map[string]*Client

	register chan *Client
	unreg    chan *Client
	events   chan clientEvent
	done     chan struct{}
}

func newLobby(cfg *Config, registry *Registry) *Lobby {
	return &Lobby{
		cfg:      cfg,
		registry: registry,
		clients:  make(map[string]*Client),
		register: make(chan *Client),
		unreg:    make(chan *Client),
		events:   make(chan clientEvent, 64),
		done:     make(chan struct{}),
	}
}

func enqueue[T any](done <-chan struct{}, ch chan T, v T) bool {
	select {
	case <-done:
		return false
	default:
	}

	select {
	case ch <- v:
		return true
	case <-done:
		return false
	}
}

func (l *Lobby) connect(c *Client) bool {
	return enqueue(l.done, l.register, c)
}

func (l *Lobby) disconnect(c *Client) bool {
	return enqueue(l.done, l.unreg, c)
}

func (l *Lobby) dispatch(c *Client, msg ClientMessage, err error) bool {
	return enqueue(l.done, l.events, clientEvent{client: c, msg: msg, err: err})
}

func (l *Lobby) run(ctx context.Context) {
	defer close(l.done)

	var reap <-chan time.Time
	if l.cfg.sessionTimeout > 0 {
		ticker := time.NewTicker(l.cfg.sessionTimeout / 2)
		defer ticker.Stop()
		reap = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			l.closeAll()
			return

		case c := <-l.register:
			l.clients[c.id] = c
			l.deliver(c, SessionInfoMessage{
				Type:     "sessionInfo",
				PlayerID: c.id,
			})
			l.deliver(c, RoomListMessage{
				Type:  "roomListUpdate",
				Rooms: l.registry.Rooms(),
			})

		case c := <-l.unreg:
			l.handleDisconnect(c)

		case ev := <-l.events:
			l.handleEvent(ev)

		case now := <-reap:
			l.reapIdle(now)
		}
	}
}

func (l *Lobby) handleEvent(ev clientEvent) {
	c := ev.client

	if _, ok := l.clients[c.id]; !ok {
		return
	}

	switch {
	case errors.Is(ev.err, ErrTooManyMessages):
		l.fail(c, ErrTooManyMessages)
		return
	case ev.err != nil:
		l.fail(c, ErrMalformedMessage)
		return
	}

	msg := ev.msg
	roomID := strings.TrimSpace(msg.RoomID)

	switch msg.Type {
	case "setName":
		l.handleSetName(c, msg.Name)
	case "createRoom":
		l.handleCreate(c, roomID)
	case "joinRoom":
		l.handleJoin(c, roomID)
	case "playerChoice":
		l.handleChoice(c, roomID, msg.Choice)
	case "newRound":
		l.handleNewRound(c, roomID)
	case "exitRoom":
		l.handleExit(c, roomID)
	default:
		l.fail(c, ErrUnknownEvent)
	}
}

func (l *Lobby) handleSetName(c *Client, name string) {
	l.registry.SetDisplayName(c.id, name)
	logf(l.cfg, "GAMES: Player %s set name to %q", c.id, name)

	for _, roomID := range l.registry.RoomsOf(c.id) {
		l.broadcastRoomData(roomID)
	}
}

func (l *Lobby) handleCreate(c *Client, roomID string) {
	if err := l.registry.CreateRoom(roomID); err != nil {
		l.fail(c, err)
		return
	}

	logf(l.cfg, "GAMES: Room %q created by %s", roomID, c.id)

	l.deliver(c, RoomCreatedMessage{
		Type:   "roomCreated",
		RoomID: roomID,
	})
	l.broadcastRoomList()
}

func (l *Lobby) handleJoin(c *Client, roomID string) {
	if err := l.registry.JoinRoom(roomID, c.id); err != nil {
		l.fail(c, err)
		return
	}

	logf(l.cfg, "GAMES: Player %s joined %q", c.id, roomID)

	l.deliver(c, JoinedRoomMessage{
		Type:     "joinedRoom",
		RoomID:   roomID,
		PlayerID: c.id,
	})
	l.broadcastRoomData(roomID)
	l.broadcastRoomList()
}

func (l *Lobby) handleChoice(c *Client, roomID, raw string) {
	choice, err := ParseChoice(raw)
	if err != nil {
		l.fail(c, err)
		return
	}

	result, err := EvaluateRound(l.registry, roomID, c.id, choice)
	if err != nil {
		l.fail(c, err)
		return
	}

	l.broadcastToRoom(roomID, AnnouncementMessage{
		Type:    "choiceAnnouncement",
		RoomID:  roomID,
		Message: l.registry.DisplayName(c.id) + " has made their choice.",
	})

	if result == nil {
		return
	}

	logf(l.cfg, "GAMES: Round resolved in %q (%d, %d years)", roomID, result.A.Years, result.B.Years)

	for _, o := range []Outcome{result.A, result.B} {
		target, ok := l.clients[o.Participant]
		if !ok {
			continue
		}

		l.deliver(target, OutcomeMessage{
			Type:  "showOutcome",
			Name:  l.registry.nameOr(o.Participant, outcomeName),
			Years: o.Years,
			Msg:   o.Message,
		})
	}
}

func (l *Lobby) handleNewRound(c *Client, roomID string) {
	members, err := l.registry.Members(roomID)
	if err != nil {
		l.fail(c, err)
		return
	}

	member := false
	for _, pid := range members {
		if pid == c.id {
			member = true
			break
		}
	}
	if !member {
		l.fail(c, ErrNotInRoom)
		return
	}

	if err := l.registry.ResetRound(roomID); err != nil {
		l.fail(c, err)
		return
	}

	logf(l.cfg, "GAMES: New round started in %q", roomID)

	l.broadcastToRoom(roomID, RoomStateMessage{
		Type:   "newRound",
		RoomID: roomID,
	})
}

// handleExit closes the room for everyone, whoever asks.
func (l *Lobby) handleExit(c *Client, roomID string) {
	if l.closeRoom(roomID) {
		logf(l.cfg, "GAMES: Room %q closed by %s", roomID, c.id)
	}

	l.broadcastRoomList()
}

// handleDisconnect closes every room the client was in and forgets its name.
func (l *Lobby) handleDisconnect(c *Client) {
	l.drop(c)

	rooms := l.registry.RoomsOf(c.id)
	for _, roomID := range rooms {
		l.closeRoom(roomID)
		logf(l.cfg, "GAMES: Room %q closed after %s disconnected", roomID, c.id)
	}
	l.registry.Forget(c.id)

	logf(l.cfg, "GAMES: Player %s disconnected", c.id)

	if len(rooms) > 0 {
		l.broadcastRoomList()
	}
}

func (l *Lobby) reapIdle(now time.Time) {
	ids := l.registry.Idle(now.Add(-l.cfg.sessionTimeout))
	for _, roomID := range ids {
		l.closeRoom(roomID)
		logf(l.cfg, "GAMES: Room %q closed after %s idle", roomID, l.cfg.sessionTimeout)
	}

	if len(ids) > 0 {
		l.broadcastRoomList()
	}
}

// closeRoom destroys the room and tells its former members.
func (l *Lobby) closeRoom(roomID string) bool {
	members, err := l.registry.Members(roomID)
	if err != nil {
		return false
	}

	l.registry.DestroyRoom(roomID)

	for _, pid := range members {
		if c, ok := l.clients[pid]; ok {
			l.deliver(c, RoomStateMessage{
				Type:   "roomClosed",
				RoomID: roomID,
			})
		}
	}

	return true
}

func (l *Lobby) broadcastRoomData(roomID string) {
	players, err := l.registry.Sanitize(roomID)
	if err != nil {
		return
	}

	l.broadcastToRoom(roomID, RoomDataMessage{
		Type:    "roomData",
		RoomID:  roomID,
		Players: players,
	})
}

func (l *Lobby) broadcastRoomList() {
	msg := RoomListMessage{
		Type:  "roomListUpdate",
		Rooms: l.registry.Rooms(),
	}

	for _, c := range l.clients {
		l.deliver(c, msg)
	}
}

func (l *Lobby) broadcastToRoom(roomID string, msg any) {
	members, err := l.registry.Members(roomID)
	if err != nil {
		return
	}

	for _, pid := range members {
		if c, ok := l.clients[pid]; ok {
			l.deliver(c, msg)
		}
	}
}

func (l *Lobby) fail(c *Client, err error) {
	l.deliver(c, ErrorMessage{
		Type:    "errorMessage",
		Message: err.Error(),
	})
}

// deliver queues msg for c, dropping the client if its buffer is full.
func (l *Lobby) deliver(c *Client, msg any) {
	if l.clients[c.id] != c {
		return
	}

	select {
	case c.send <- msg:
	default:
		logf(l.cfg, "GAMES: Dropping slow player %s", c.id)
		l.drop(c)
	}
}

func (l *Lobby) drop(c *Client) {
	if existing, ok := l.clients[c.id]; !ok || existing != c {
		return
	}

	delete(l.clients, c.id)
	close(c.send)
}

// closeAll disconnects every client (used on shutdown).
func (l *Lobby) closeAll() {
	for _, c := range l.clients {
		l.drop(c)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func serveLobby(cfg *Config, l *Lobby) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: Websocket upgrade from %s failed: %v", realIP(r), err)
			return
		}

		client := newClient(conn)

		if !l.connect(client) {
			_ = conn.Close()
			return
		}

		logf(cfg, "GAMES: Player %s connected from %s", client.id, realIP(r))

		go client.writePump()
		client.readPump(l)
	}
}

func (c *Client) readPump(l *Lobby) {
	defer func() {
		l.disconnect(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if c.limiter.Allow() {
			err = json.Unmarshal(data, &msg)
		} else {
			err = ErrTooManyMessages
		}

		if !l.dispatch(c, msg, err) {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// roomURL returns the address that opens the game with roomID prefilled.
func roomURL(r *http.Request, gamePath, roomID string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	return scheme + "://" + r.Host + gamePath + "?room=" + url.QueryEscape(roomID)
}

// QR handler: generates a PNG QR code linking to a room using go-qrcode.
func qrHandler(cfg *Config, gamePath string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		roomID := ps.ByName("roomid")
		if roomID == "" {
			http.Error(w, "missing room id", http.StatusBadRequest)
			return
		}

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(roomURL(r, gamePath, roomID), qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)

		written, err := w.Write(png)
		if err != nil {
			logf(cfg, "ERROR: QR code for %q to %s: %v", roomID, realIP(r), err)

			return
		}

		logf(cfg, "SERVE: QR code for %q (%s) to %s in %s",
			roomID,
			byteCount(written),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

//go:embed assets/dilemma/index.html
var indexHTML []byte

func getIndexHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(indexHTML)
	}
}

// registerDilemmaGame sets up routes so that:
//   - $path              → HTML client
//   - $path/ws           → WebSocket shared by every room
//   - $path/qr/:roomid   → PNG QR code linking to a room
func registerDilemmaGame(ctx context.Context, cfg *Config, path string, mux *httprouter.Router) *Lobby {
	lobby := newLobby(cfg, NewRegistry(cfg.maxRooms))
	go lobby.run(ctx)

	gamePath := cfg.prefix + path

	mux.GET(gamePath, getIndexHandler(cfg))

	mux.GET(gamePath+"/ws", serveLobby(cfg, lobby))

	mux.GET(gamePath+"/qr/:roomid", qrHandler(cfg, gamePath))

	return lobby
}
