// Package server coordinates client registration, the connection registry,
// and event broadcast for the chat via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Hub owns every live connection and the registry of connected usernames.
// Connect, disconnect and chat events are serialized through Run, so each
// broadcast carries a consistent registry snapshot and every client sees
// events in the same order.
type Hub struct {
	clients    map[*Client]bool
	registry   *Registry
	broadcast  chan BroadcastMessage
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	log        hclog.Logger
	metrics    *Metrics
}

// NewHub creates a Hub. A nil logger discards output and nil metrics
// disables instrumentation.
func NewHub(logger hclog.Logger, metrics *Metrics) *Hub {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		registry:   NewRegistry(),
		broadcast:  make(chan BroadcastMessage),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        logger,
		metrics:    metrics,
	}
}

// GetRegisterChan returns the channel used for registering new clients to the hub.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients from the hub.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// GetBroadcastChan returns the channel clients submit chat lines on.
func (h *Hub) GetBroadcastChan() chan<- BroadcastMessage {
	return h.broadcast
}

// Done is closed once the hub has been asked to stop.
func (h *Hub) Done() <-chan struct{} {
	return h.ctx.Done()
}

// ConnectedUsers returns the current registry contents in arrival order.
func (h *Hub) ConnectedUsers() []string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.registry.Snapshot()
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Register hands a client to the hub. It reports false if the hub has
// already stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("recovered from panic in safeSend", "panic", r)
		}
	}()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// Run starts the hub's main event loop. It should be called in its own
// goroutine and returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("received nil client registration; skipping")
				continue
			}
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case msg := <-h.broadcast:
			if msg.Sender == nil {
				continue
			}
			h.emit(ChatEvent{Msg: chatLine(msg.Sender.username, msg.Text)})
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client] = true
	h.registry.Add(client.username)
	users := h.registry.Snapshot()
	clientCount := len(h.clients)
	h.mutex.Unlock()

	h.metrics.setConnected(clientCount)
	h.log.Info("client registered", "id", client.id, "username", client.username, "addr", client.addr, "clients", clientCount)

	if client.conn != nil {
		h.wg.Add(2)
		go func() {
			defer h.wg.Done()
			client.writePump()
		}()
		go func() {
			defer h.wg.Done()
			client.readPump()
		}()
	}

	h.emit(JoinedEvent{Users: users, ServerMsg: joinedMessage(client.username)})
}

func (h *Hub) handleUnregister(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	client.closed = true
	h.registry.RemoveFirst(client.username)
	users := h.registry.Snapshot()
	clientCount := len(h.clients)
	h.mutex.Unlock()

	close(client.send)
	h.metrics.setConnected(clientCount)
	h.log.Info("client unregistered", "id", client.id, "username", client.username, "clients", clientCount)

	h.emit(LeftEvent{Users: users, ServerMsg: leftMessage(client.username)})
}

// emit broadcasts ev to every client, sender included. Clients whose send
// buffer is full are dropped, which in turn produces a userLeft event.
func (h *Hub) emit(ev Event) {
	pending := []Event{ev}
	for len(pending) > 0 {
		next := pending[0]
		pending = pending[1:]

		payload, err := EncodeEvent(next)
		if err != nil {
			h.log.Error("error encoding event", "event", next.EventName(), "error", err)
			continue
		}

		clients := h.getClientSnapshot()
		h.log.Debug("broadcasting event", "event", next.EventName(), "clients", len(clients))
		h.metrics.broadcast(next.EventName())

		failed := h.broadcastToClients(clients, payload)
		for _, left := range h.removeFailedClients(failed) {
			pending = append(pending, left)
		}
	}
}

// getClientSnapshot returns a thread-safe snapshot of all current clients
func (h *Hub) getClientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// broadcastToClients sends the payload to all clients and returns the ones that failed
func (h *Hub) broadcastToClients(clients []*Client, payload []byte) []*Client {
	var failed []*Client
	for _, client := range clients {
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}
	return failed
}

// removeFailedClients drops clients that could not take a message and
// returns the userLeft events their removal produces.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) []Event {
	if len(clientsToRemove) == 0 {
		return nil
	}

	var (
		events          []Event
		channelsToClose []chan []byte
	)

	h.mutex.Lock()
	for _, client := range clientsToRemove {
		if _, exists := h.clients[client]; !exists {
			continue
		}
		delete(h.clients, client)
		client.closed = true
		channelsToClose = append(channelsToClose, client.send)
		h.registry.RemoveFirst(client.username)
		events = append(events, LeftEvent{Users: h.registry.Snapshot(), ServerMsg: leftMessage(client.username)})
		h.log.Warn("client removed due to full send buffer", "id", client.id, "username", client.username)
	}
	clientCount := len(h.clients)
	h.mutex.Unlock()

	for _, ch := range channelsToClose {
		close(ch)
	}
	h.metrics.setConnected(clientCount)
	return events
}

// shutdownClients closes every active connection.
func (h *Hub) shutdownClients() {
	h.log.Info("shutting down all client connections")

	clients := h.getClientSnapshot()
	for _, client := range clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Warn("error closing client connection", "id", client.id, "error", err)
		}
	}

	h.log.Info("closed client connections", "count", len(clients))
}

// Shutdown stops the hub and waits for all client goroutines to finish,
// or returns context.DeadlineExceeded once timeout passes.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
