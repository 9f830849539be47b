package gateway

import (
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vulcanapp/vulcan/common"
)

const (
	writeWait      = time.Second * 10
	pongWait       = time.Second * 60
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// wsClient one websocket-backed realtime connection
type wsClient struct {
	common.Component
	id   string
	hub  Hub
	conn *websocket.Conn
	send chan []byte
}

// newWSClient wrap an upgraded websocket connection for the hub
func newWSClient(hub Hub, conn *websocket.Conn) *wsClient {
	id := uuid.New().String()
	logTags := log.Fields{
		"module":    "gateway",
		"component": "ws-client",
		"instance":  id,
	}
	return &wsClient{
		Component: common.Component{LogTags: logTags},
		id:        id,
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 256),
	}
}

// ID the ephemeral connection identity
func (c *wsClient) ID() string {
	return c.id
}

// Send hand a frame to the connection without blocking
func (c *wsClient) Send(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// readPump drain inbound frames from the websocket into the hub
func (c *wsClient) readPump() {
	defer func() {
		c.hub.OnDisconnect(c.id)
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
			if websocket.IsUnexpectedCloseError(
				err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			) {
				log.WithError(err).WithFields(c.LogTags).Error("Websocket read failure")
			}
			return
		}
		c.hub.OnClientMessage(c.id, data)
	}
}

// writePump push queued frames and keepalive pings out on the websocket
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.WithError(err).WithFields(c.LogTags).Error("Websocket write failure")
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

// ServeConnection attach an upgraded websocket connection to the hub and
// start its read/write pumps
func ServeConnection(hub Hub, conn *websocket.Conn) {
	client := newWSClient(hub, conn)
	hub.OnConnect(client)
	go client.writePump()
	go client.readPump()
}
