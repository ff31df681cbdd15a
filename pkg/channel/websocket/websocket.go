// Package websocket serves a small JSON chat protocol so that browsers and
// scripts can talk to the bot one-to-one or in shared rooms.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	gws "github.com/gorilla/websocket"

	"drivel/pkg/channel"
	"drivel/pkg/config"
	"drivel/pkg/stanza"
)

const channelName = "websocket"
const shutdownTimeout = 5 * time.Second

// Adapter is the websocket chat channel.
type Adapter struct {
	cfg      config.WebsocketConfig
	hub      *hub
	upgrader gws.Upgrader
	log      *slog.Logger
	running  atomic.Bool
}

// NewAdapter builds a websocket adapter. nickname becomes the bot's node in
// the configured domain.
func NewAdapter(cfg config.WebsocketConfig, nickname string, log *slog.Logger) (*Adapter, error) {
	domain := strings.TrimSpace(cfg.Domain)
	if domain == "" {
		return nil, errors.New("channels.websocket.domain is required")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("channels.websocket.port %d out of range", cfg.Port)
	}
	if log == nil {
		log = slog.Default()
	}

	node := strings.ToLower(strings.TrimSpace(nickname))
	if node == "" {
		node = "bot"
	}

	a := &Adapter{
		cfg: cfg,
		hub: newHub(domain, stanza.NewAddress(node, domain, "")),
		log: log.With("component", "channel.websocket"),
	}
	a.upgrader = gws.Upgrader{CheckOrigin: a.checkOrigin}

	return a, nil
}

// Name returns the channel identifier used in stanzas and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Self returns the bot's address on this channel.
func (a *Adapter) Self() stanza.Address {
	return a.hub.self
}

// Run serves the websocket endpoint until ctx is canceled.
func (a *Adapter) Run(ctx context.Context, deliver channel.Deliver) error {
	if deliver == nil {
		return errors.New("deliver is required")
	}

	a.hub.bind(ctx, deliver)
	defer a.hub.bind(nil, nil)

	mux := http.NewServeMux()
	mux.Handle(a.path(), a)

	addr := net.JoinHostPort(a.cfg.Host, strconv.Itoa(a.cfg.Port))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen websocket %s: %w", addr, err)
	}

	a.running.Store(true)
	defer a.running.Store(false)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	a.log.Info("Websocket channel started", "addr", listener.Addr().String(), "path", a.path(), "bot", a.hub.self)
	deliver(ctx, stanza.NewLifecycle(stanza.EventReady, channelName, a.hub.self))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.hub.closeAll()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown websocket server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve websocket: %w", err)
	}
}

// ServeHTTP upgrades one connection and starts its pumps.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	c := newClient(a.hub, conn, a.log)
	a.hub.register(c)
	go c.writePump()
	go c.readPump()
}

// Send routes a reply to a room or to the connections of one user.
func (a *Adapter) Send(_ context.Context, reply stanza.Reply) error {
	if reply.To.IsZero() {
		return errors.New("websocket reply has no recipient")
	}

	frame := replyFrame(reply)
	if a.hub.isRoom(reply.To) {
		a.hub.broadcast(reply.To.Node(), frame, nil)
		return nil
	}

	if a.hub.deliverTo(reply.To, frame) == 0 {
		return fmt.Errorf("websocket recipient %s is not connected", reply.To)
	}

	return nil
}

func (a *Adapter) path() string {
	path := strings.TrimSpace(a.cfg.Path)
	if path == "" {
		return config.DefaultWebsocketPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return path
}

// checkOrigin allows same-host requests and any configured origin. An empty
// allow list accepts every origin.
func (a *Adapter) checkOrigin(r *http.Request) bool {
	if len(a.cfg.AllowedOrigins) == 0 {
		return true
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range a.cfg.AllowedOrigins {
		if strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}

	return false
}
