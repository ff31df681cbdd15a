package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"drivel/pkg/bus"
	"drivel/pkg/channel"
	"drivel/pkg/config"
	"drivel/pkg/dispatch"
	"drivel/pkg/stanza"
)

const (
	defaultHealthHost = "0.0.0.0"
	defaultHealthPort = 18790
)

// Service wires channel adapters, the message bus and the dispatch engine
// together and serves the health endpoints.
type Service struct {
	cfg      *config.Config
	log      *slog.Logger
	engine   *dispatch.Engine
	bus      *bus.MessageBus
	channels []channel.Adapter

	dispatched atomic.Int64
	failed     atomic.Int64

	mu            sync.RWMutex
	startedAt     time.Time
	channelStates map[string]channelState
}

type channelState struct {
	Running  bool   `json:"running"`
	Restarts int    `json:"restarts,omitempty"`
	Error    string `json:"error,omitempty"`
}

type statusResponse struct {
	Status        string                  `json:"status"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	Commands      int                     `json:"commands"`
	Dispatched    int64                   `json:"dispatched"`
	Failed        int64                   `json:"failed"`
	Dropped       int64                   `json:"dropped"`
	Channels      map[string]channelState `json:"channels"`
}

// NewService validates the wiring. The engine's sender must publish to
// messageBus so that replies reach the outbound loop.
func NewService(cfg *config.Config, engine *dispatch.Engine, messageBus *bus.MessageBus, adapters []channel.Adapter, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if engine == nil {
		return nil, errors.New("dispatch engine is required")
	}
	if messageBus == nil {
		return nil, errors.New("message bus is required")
	}
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if log == nil {
		log = slog.Default()
	}

	channelStates := make(map[string]channelState, len(adapters))
	for _, adapter := range adapters {
		name := adapter.Name()
		if _, exists := channelStates[name]; exists {
			return nil, fmt.Errorf("duplicate channel %q", name)
		}
		channelStates[name] = channelState{}
	}

	return &Service{
		cfg:           cfg,
		log:           log.With("component", "gateway.service"),
		engine:        engine,
		bus:           messageBus,
		channels:      adapters,
		channelStates: channelStates,
	}, nil
}

// Run blocks until ctx is canceled, the status server fails or every
// channel has stopped.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	s.engine.Start()

	for _, adapter := range s.channels {
		s.bus.RegisterRoute(adapter.Name(), adapter.Send)
	}

	var wg sync.WaitGroup
	serverErrors := make(chan error, 1)
	wg.Add(3)
	go func() {
		defer wg.Done()
		s.runHealthServer(ctx, serverErrors)
	}()
	go func() {
		defer wg.Done()
		s.dispatchLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.outboundLoop(ctx)
	}()

	errCh := make(chan error, len(s.channels))
	var channels sync.WaitGroup
	for _, adapter := range s.channels {
		sup := newSupervisor(adapter, s.bus, s.cfg.Gateway.Restart, s.log, func(state channelState) {
			s.setChannelState(adapter.Name(), state)
		})

		channels.Add(1)
		go func() {
			defer channels.Done()
			if err := sup.run(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	allStopped := make(chan struct{})
	go func() {
		channels.Wait()
		close(allStopped)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serverErrors:
	case err = <-errCh:
	case <-allStopped:
		s.log.Info("All channels stopped")
	}

	cancel()
	channels.Wait()
	wg.Wait()

	if err == nil {
		select {
		case err = <-errCh:
		default:
		}
	}

	return err
}

func (s *Service) dispatchLoop(ctx context.Context) {
	for {
		event, ok := s.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}

		dropped := s.bus.Dropped()
		outcome := s.engine.Dispatch(ctx, event)
		s.dispatched.Add(1)
		if n := s.bus.Dropped() - dropped; n > 0 {
			s.log.Warn("Outbound queue full, replies dropped", "event_id", event.ID, "handler", outcome.Handler, "dropped", n)
		}

		record := bus.InboundEvent(event)
		record.Payload["handler"] = outcome.Handler
		record.Payload["halted"] = strconv.FormatBool(outcome.Halted)
		record.Payload["handled"] = strconv.FormatBool(outcome.Handled)
		s.bus.PublishEvent(ctx, record)

		if outcome.Err != nil {
			s.failed.Add(1)
			failure := bus.InboundEvent(event)
			failure.Type = bus.EventDispatchFailed
			failure.Payload["handler"] = outcome.Handler
			failure.Error = outcome.Err.Error()
			s.bus.PublishEvent(ctx, failure)
		}
	}
}

func (s *Service) outboundLoop(ctx context.Context) {
	for {
		reply, ok := s.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}

		if err := s.deliver(ctx, reply); err != nil {
			s.failed.Add(1)
			s.log.Error("Failed to deliver reply", "channel", reply.Channel, "to", reply.To, "error", err)

			failure := bus.OutboundEvent(reply)
			failure.Type = bus.EventDispatchFailed
			failure.Error = err.Error()
			s.bus.PublishEvent(ctx, failure)
			continue
		}

		s.bus.PublishEvent(ctx, bus.OutboundEvent(reply))
	}
}

func (s *Service) deliver(ctx context.Context, reply stanza.Reply) error {
	if reply.Channel == "" {
		return errors.New("reply has no channel")
	}

	route, ok := s.bus.GetRoute(reply.Channel)
	if !ok {
		return fmt.Errorf("no route for channel %q", reply.Channel)
	}

	return route(ctx, reply)
}

func (s *Service) runHealthServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHealthHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultHealthPort
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
	<-stopped
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		Commands:      len(s.engine.Commands()),
		Dispatched:    s.dispatched.Load(),
		Failed:        s.failed.Load(),
		Dropped:       s.bus.Dropped(),
		Channels:      channels,
	}
}

// isReady reports whether the engine is sealed and at least one channel
// is running.
func (s *Service) isReady() bool {
	if !s.engine.Sealed() {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, state := range s.channelStates {
		if state.Running {
			return true
		}
	}

	return false
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
