package gateway

import (
	"encoding/json"
	"sync"

	"github.com/apex/log"
	"github.com/vulcanapp/vulcan/common"
)

// EventFrame one server-to-client realtime frame
type EventFrame struct {
	// Event the event name, forwarded verbatim from the fan-out topic key
	Event string `json:"event"`
	// Payload the value published alongside the event
	Payload json.RawMessage `json:"payload"`
}

// connection the slice of a realtime client the hub depends on
type connection interface {
	// ID the ephemeral connection identity
	ID() string
	// Send hand a frame to the connection without blocking.
	//
	// A connection whose send buffer is full drops the frame; delivery to
	// other connections must never stall on one slow client.
	Send(frame []byte) bool
}

// Hub tracks connected realtime clients and broadcasts events to them.
//
// No per-connection authorization exists: every connected client receives
// every broadcast event. Kept as-is pending a product decision.
type Hub interface {
	// OnConnect register a new connection
	OnConnect(conn connection)
	// OnClientMessage handle an inbound client frame; log-only, no routing
	OnClientMessage(connID string, data []byte)
	// OnDisconnect deregister a connection
	OnDisconnect(connID string)
	// Broadcast send an event to all connected clients.
	//
	// Broadcasting with zero connected clients is a silent no-op. There is
	// no acknowledgment and no delivery guarantee.
	Broadcast(event string, payload []byte)
	// ConnectionCount number of currently registered connections
	ConnectionCount() int
}

// hubImpl implements Hub
type hubImpl struct {
	common.Component
	connections map[string]connection
	lock        *sync.RWMutex
}

// GetHub define a new connection hub
func GetHub(instance string) (Hub, error) {
	logTags := log.Fields{
		"module":    "gateway",
		"component": "hub",
		"instance":  instance,
	}
	return &hubImpl{
		Component:   common.Component{LogTags: logTags},
		connections: make(map[string]connection),
		lock:        &sync.RWMutex{},
	}, nil
}

// OnConnect register a new connection
func (h *hubImpl) OnConnect(conn connection) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.connections[conn.ID()] = conn
	log.WithFields(h.LogTags).Infof("New client connected: %s", conn.ID())
}

// OnClientMessage handle an inbound client frame
func (h *hubImpl) OnClientMessage(connID string, data []byte) {
	log.WithFields(h.LogTags).Infof("Received message from client %s: %s", connID, data)
}

// OnDisconnect deregister a connection
func (h *hubImpl) OnDisconnect(connID string) {
	h.lock.Lock()
	defer h.lock.Unlock()
	delete(h.connections, connID)
	log.WithFields(h.LogTags).Infof("Client disconnected: %s", connID)
}

// Broadcast send an event to all connected clients
func (h *hubImpl) Broadcast(event string, payload []byte) {
	frame, err := json.Marshal(EventFrame{Event: event, Payload: payload})
	if err != nil {
		log.WithError(err).WithFields(h.LogTags).Errorf("Unable to frame event %s", event)
		return
	}
	h.lock.RLock()
	defer h.lock.RUnlock()
	for id, conn := range h.connections {
		if !conn.Send(frame) {
			log.WithFields(h.LogTags).Warnf(
				"Client %s send buffer full. Dropped event %s", id, event,
			)
		}
	}
}

// ConnectionCount number of currently registered connections
func (h *hubImpl) ConnectionCount() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.connections)
}
