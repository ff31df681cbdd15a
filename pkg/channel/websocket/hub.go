package websocket

import (
	"context"
	"strings"
	"sync"

	"drivel/pkg/channel"
	"drivel/pkg/stanza"
)

const roomSubdomain = "conference."

// hub tracks connected clients and room membership and turns client frames
// into stanza events.
type hub struct {
	domain string
	self   stanza.Address

	mu       sync.RWMutex
	clients  map[*client]bool
	rooms    map[string]map[*client]bool
	deliver  channel.Deliver
	runCtx   context.Context
}

func newHub(domain string, self stanza.Address) *hub {
	return &hub{
		domain:  domain,
		self:    self,
		clients: make(map[*client]bool),
		rooms:   make(map[string]map[*client]bool),
	}
}

func (h *hub) bind(ctx context.Context, deliver channel.Deliver) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deliver = deliver
	h.runCtx = ctx
}

func (h *hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.done)

	for room, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// closeAll drops every client, used on shutdown.
func (h *hub) closeAll() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
}

func (h *hub) roomAddress(room string) stanza.Address {
	return stanza.NewAddress(room, roomSubdomain+h.domain, "")
}

func (h *hub) isRoom(address stanza.Address) bool {
	return address.Domain() == roomSubdomain+h.domain
}

func (h *hub) handleFrame(c *client, frame Frame) {
	if frame.Type != FrameHello && c.Address().IsZero() {
		c.sendFrame(errorFrame(frame.ID, "send hello first"))
		return
	}

	switch frame.Type {
	case FrameHello:
		user := strings.TrimSpace(frame.User)
		if user == "" || strings.ContainsAny(user, "@/ ") {
			c.sendFrame(errorFrame(frame.ID, "hello needs a user without '@', '/' or spaces"))
			return
		}
		resource := strings.TrimSpace(frame.Resource)
		if resource == "" {
			resource = "web"
		}
		c.setAddress(stanza.NewAddress(user, h.domain, resource))
		c.sendFrame(Frame{Type: FrameWelcome, ID: frame.ID, To: c.Address(), From: h.self})

	case FrameJoin:
		room, nick := strings.TrimSpace(frame.Room), strings.TrimSpace(frame.Nick)
		if room == "" {
			c.sendFrame(errorFrame(frame.ID, "join needs a room"))
			return
		}
		if nick == "" {
			nick = c.Address().Node()
		}
		h.join(room, c)
		c.setNick(room, nick)
		c.sendFrame(Frame{Type: FrameJoined, ID: frame.ID, Room: room, Nick: nick, From: h.roomAddress(room)})

	case FrameLeave:
		h.leave(strings.TrimSpace(frame.Room), c)
		c.setNick(strings.TrimSpace(frame.Room), "")

	case FrameSubscribe:
		event := stanza.Event{
			ID:   frame.ID,
			Type: stanza.EventSubscriptionRequest,
			From: c.Address(),
			To:   h.self,
		}
		h.dispatch(event)

	case FrameMessage:
		h.handleMessage(c, frame)

	default:
		c.sendFrame(errorFrame(frame.ID, "unknown frame type "+frame.Type))
	}
}

func (h *hub) handleMessage(c *client, frame Frame) {
	body := strings.TrimSpace(frame.Body)
	if body == "" {
		return
	}

	room := strings.TrimSpace(frame.Room)
	if room == "" {
		kind := frame.Kind
		if kind == "" {
			kind = stanza.KindChat
		}
		event := stanza.NewMessage(kind, c.Address(), h.self, body)
		event.ID = frame.ID
		event.Delayed = frame.Delayed
		h.dispatch(event)
		return
	}

	nick, ok := c.nick(room)
	if !ok {
		c.sendFrame(errorFrame(frame.ID, "join "+room+" first"))
		return
	}

	from := stanza.NewAddress(room, roomSubdomain+h.domain, nick)
	h.broadcast(room, Frame{Type: FrameMessage, ID: frame.ID, Kind: stanza.KindGroupchat, From: from, To: h.roomAddress(room), Body: body}, c)

	event := stanza.NewMessage(stanza.KindGroupchat, from, h.self, body)
	event.ID = frame.ID
	event.Delayed = frame.Delayed
	h.dispatch(event)
}

func (h *hub) dispatch(event stanza.Event) {
	h.mu.RLock()
	deliver, ctx := h.deliver, h.runCtx
	h.mu.RUnlock()

	if deliver == nil {
		return
	}
	event.Channel = channelName
	deliver(ctx, event)
}

func (h *hub) join(room string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*client]bool)
	}
	h.rooms[room][c] = true
}

func (h *hub) leave(room string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *hub) broadcast(room string, frame Frame, exclude *client) int {
	h.mu.RLock()
	members := make([]*client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		if c != exclude {
			members = append(members, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range members {
		c.sendFrame(frame)
	}

	return len(members)
}

// deliverTo sends a frame to every client whose address matches to. A bare
// address reaches all of the user's connections.
func (h *hub) deliverTo(to stanza.Address, frame Frame) int {
	h.mu.RLock()
	targets := make([]*client, 0, 1)
	for c := range h.clients {
		address := c.Address()
		if address == to || (to.Resource() == "" && address.Stripped() == to) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.sendFrame(frame)
	}

	return len(targets)
}
