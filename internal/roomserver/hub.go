package roomserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"collabnotes/internal/config"
	"collabnotes/internal/wire"
)

// ErrNotInRoom is returned for note and typing intents naming a room the
// connection has not joined.
var ErrNotInRoom = errors.New("roomserver: not in room")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub tracks connections and room membership, applies intents to the store
// and routes broadcasts. The roster of a room is the set of its members
// connected to this instance.
//
// Every change to a room and the broadcast announcing it happen under that
// room's lock, so members see changes in the order the store applied them.
type Hub struct {
	store   Store
	broker  Broker
	metrics *Metrics
	tracer  trace.Tracer
	cfg     config.Transport
	logger  *slog.Logger

	mu     sync.RWMutex
	conns  map[*conn]bool
	rooms  map[string][]*conn // members in join order
	locks  map[string]*roomLock
	closed bool
	wg     sync.WaitGroup
}

type roomLock struct {
	sync.Mutex
	refs int
}

// NewHub returns a hub using store for notes and broker for broadcasts.
// Zero fields of cfg take the default timings.
func NewHub(store Store, broker Broker, metrics *Metrics, cfg config.Transport, logger *slog.Logger) *Hub {
	def := config.DefaultTransport()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	return &Hub{
		store:   store,
		broker:  broker,
		metrics: metrics,
		tracer:  otel.Tracer("collabnotes/roomserver"),
		cfg:     cfg,
		logger:  logger,
		conns:   make(map[*conn]bool),
		rooms:   make(map[string][]*conn),
		locks:   make(map[string]*roomLock),
	}
}

// Run delivers broker broadcasts to local connections until ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	return h.broker.Subscribe(ctx, h.deliver)
}

// ServeWS upgrades the request and serves the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "err", err)
		return
	}
	c := newConn(ws, h.cfg, h.logger)
	if !h.register(c) {
		c.close()
		return
	}
	defer h.wg.Done()
	go c.writePump()
	c.readPump(h)
}

// Close disconnects every connection and waits for their handlers to
// return. Connections upgraded afterwards are closed straight away.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	h.wg.Wait()
	h.logger.Info("hub closed", "clients", len(conns))
}

func (h *Hub) register(c *conn) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.conns[c] = true
	h.wg.Add(1)
	n := len(h.conns)
	h.mu.Unlock()
	h.metrics.connections.Inc()
	c.logger.Info("client registered", "clients", n)
	return true
}

// lockRoom takes the lock of roomID and returns its release.
func (h *Hub) lockRoom(roomID string) (unlock func()) {
	h.mu.Lock()
	l := h.locks[roomID]
	if l == nil {
		l = &roomLock{}
		h.locks[roomID] = l
	}
	l.refs++
	h.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		h.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(h.locks, roomID)
		}
		h.mu.Unlock()
	}
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	if !h.conns[c] {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c)
	n := len(h.conns)
	h.mu.Unlock()
	h.metrics.connections.Dec()
	c.logger.Info("client unregistered", "clients", n)

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.WriteTimeout)
	defer cancel()
	if err := h.leave(ctx, c); err != nil && !errors.Is(err, ErrNotInRoom) {
		c.logger.Warn("leave on disconnect failed", "err", err)
	}
}

// handle applies one intent from c.
func (h *Hub) handle(ctx context.Context, c *conn, intent wire.Intent) (err error) {
	event := intent.Event()
	ctx, span := h.tracer.Start(ctx, "collabnotes."+string(event),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("collabnotes.conn", c.id)))
	defer func() {
		h.metrics.events.WithLabelValues(string(event)).Inc()
		if err != nil {
			h.metrics.errors.WithLabelValues(string(event)).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	switch m := intent.(type) {
	case wire.JoinRoom:
		span.SetAttributes(attribute.String("collabnotes.room", m.RoomID))
		return h.join(ctx, c, m)
	case wire.LeaveRoom:
		span.SetAttributes(attribute.String("collabnotes.room", m.RoomID))
		if !h.member(c, m.RoomID) {
			return nil
		}
		return h.leave(ctx, c)
	case wire.CreateNote:
		span.SetAttributes(attribute.String("collabnotes.room", m.RoomID))
		return h.createNote(ctx, c, m)
	case wire.UpdateNote:
		span.SetAttributes(attribute.String("collabnotes.room", m.RoomID), attribute.String("collabnotes.note", m.Note.ID))
		return h.updateNote(ctx, c, m)
	case wire.Typing:
		span.SetAttributes(attribute.String("collabnotes.room", m.RoomID))
		return h.typing(ctx, c, m)
	}
	return fmt.Errorf("%w: %q", wire.ErrUnknownEvent, event)
}

func (h *Hub) join(ctx context.Context, c *conn, m wire.JoinRoom) error {
	if m.RoomID == "" || m.Username == "" {
		return fmt.Errorf("roomserver: join needs room and username")
	}
	if err := h.leave(ctx, c); err != nil && !errors.Is(err, ErrNotInRoom) {
		return err
	}

	unlock := h.lockRoom(m.RoomID)
	defer unlock()
	notes, err := h.store.List(ctx, m.RoomID)
	if err != nil {
		return err
	}

	h.mu.Lock()
	c.roomID, c.username, c.typing = m.RoomID, m.Username, false
	h.rooms[m.RoomID] = append(h.rooms[m.RoomID], c)
	size := len(h.rooms[m.RoomID])
	h.mu.Unlock()
	h.metrics.members.Inc()
	c.logger.Info("joined room", "room", m.RoomID, "username", m.Username, "size", size)

	if err := h.sendTo(c, wire.NotesList{Notes: notes}); err != nil {
		return err
	}
	if err := h.publishRoster(ctx, m.RoomID); err != nil {
		return err
	}
	return h.publish(ctx, m.RoomID, c.id, wire.UserJoined{UserID: c.id, Username: m.Username})
}

// leave removes c from its room and tells the remaining members.
func (h *Hub) leave(ctx context.Context, c *conn) error {
	h.mu.RLock()
	roomID := c.roomID
	h.mu.RUnlock()
	if roomID == "" {
		return ErrNotInRoom
	}
	unlock := h.lockRoom(roomID)
	defer unlock()

	h.mu.Lock()
	if c.roomID != roomID {
		h.mu.Unlock()
		return ErrNotInRoom
	}
	username := c.username
	members := h.rooms[roomID]
	for i, x := range members {
		if x == c {
			members = append(members[:i:i], members[i+1:]...)
			break
		}
	}
	if len(members) == 0 {
		delete(h.rooms, roomID)
	} else {
		h.rooms[roomID] = members
	}
	c.roomID, c.username, c.typing = "", "", false
	h.mu.Unlock()
	h.metrics.members.Dec()
	c.logger.Info("left room", "room", roomID, "size", len(members))

	if err := h.publishRoster(ctx, roomID); err != nil {
		return err
	}
	return h.publish(ctx, roomID, "", wire.UserLeft{UserID: c.id, Username: username})
}

func (h *Hub) createNote(ctx context.Context, c *conn, m wire.CreateNote) error {
	unlock := h.lockRoom(m.RoomID)
	defer unlock()
	if !h.member(c, m.RoomID) {
		return ErrNotInRoom
	}
	n, err := h.store.Create(ctx, m.RoomID, m.Title)
	if err != nil {
		return err
	}
	if err := h.sendTo(c, wire.NoteCreated{Note: n}); err != nil {
		return err
	}
	notes, err := h.store.List(ctx, m.RoomID)
	if err != nil {
		return err
	}
	return h.publish(ctx, m.RoomID, c.id, wire.NotesList{Notes: notes})
}

func (h *Hub) updateNote(ctx context.Context, c *conn, m wire.UpdateNote) error {
	unlock := h.lockRoom(m.RoomID)
	defer unlock()
	if !h.member(c, m.RoomID) {
		return ErrNotInRoom
	}
	n, err := h.store.Update(ctx, m.RoomID, m.Note)
	if err != nil {
		return err
	}
	return h.publish(ctx, m.RoomID, "", wire.NoteUpdated{Note: n})
}

func (h *Hub) typing(ctx context.Context, c *conn, m wire.Typing) error {
	unlock := h.lockRoom(m.RoomID)
	defer unlock()
	h.mu.Lock()
	in := c.roomID == m.RoomID && c.roomID != ""
	if in {
		c.typing = m.IsTyping
	}
	h.mu.Unlock()
	if !in {
		return ErrNotInRoom
	}
	return h.publish(ctx, m.RoomID, "", wire.UserTyping{UserID: c.id, IsTyping: m.IsTyping})
}

func (h *Hub) member(c *conn, roomID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return roomID != "" && c.roomID == roomID
}

// Roster returns the users of roomID connected to this instance.
func (h *Hub) Roster(roomID string) []wire.User {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := h.rooms[roomID]
	users := make([]wire.User, 0, len(members))
	for _, c := range members {
		users = append(users, c.user())
	}
	return users
}

func (h *Hub) publishRoster(ctx context.Context, roomID string) error {
	return h.publish(ctx, roomID, "", wire.OnlineUsers{Users: h.Roster(roomID)})
}

func (h *Hub) publish(ctx context.Context, roomID, except string, m wire.Inbound) error {
	frame, err := wire.EncodeMessage(m)
	if err != nil {
		return err
	}
	return h.broker.Publish(ctx, Broadcast{RoomID: roomID, Except: except, Frame: frame})
}

func (h *Hub) sendTo(c *conn, m wire.Inbound) error {
	frame, err := wire.EncodeMessage(m)
	if err != nil {
		return err
	}
	if !c.enqueue(frame) {
		h.metrics.dropped.Inc()
	}
	return nil
}

// deliver writes a broadcast to the local members of its room.
func (h *Hub) deliver(bc Broadcast) {
	h.mu.RLock()
	targets := make([]*conn, 0, len(h.rooms[bc.RoomID]))
	for _, c := range h.rooms[bc.RoomID] {
		if c.id != bc.Except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	h.metrics.broadcasts.Inc()
	for _, c := range targets {
		if !c.enqueue(bc.Frame) {
			h.metrics.dropped.Inc()
		}
	}
}
