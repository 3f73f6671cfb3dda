package infra

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// WebsocketOption heartbeat timings, zero values use the defaults
type WebsocketOption struct {
	WriteWait        time.Duration
	PongWait         time.Duration
	HandshakeTimeout time.Duration
	CheckOrigin      func(r *http.Request) bool
}

// Websocket upgrades echo requests and keeps the connections alive with pings
type Websocket struct {
	upgrader     websocket.Upgrader
	writeWait    time.Duration
	pongWait     time.Duration
	pingInterval time.Duration
}

// NewWebsocket create a Websocket
func NewWebsocket(options ...*WebsocketOption) *Websocket {
	opt := &WebsocketOption{
		WriteWait:        10 * time.Second,
		PongWait:         30 * time.Second,
		HandshakeTimeout: 3 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	if len(options) > 0 {
		custom := options[0]
		if custom.WriteWait > 0 {
			opt.WriteWait = custom.WriteWait
		}
		if custom.PongWait > 0 {
			opt.PongWait = custom.PongWait
		}
		if custom.HandshakeTimeout > 0 {
			opt.HandshakeTimeout = custom.HandshakeTimeout
		}
		if custom.CheckOrigin != nil {
			opt.CheckOrigin = custom.CheckOrigin
		}
	}
	return &Websocket{
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			CheckOrigin:      opt.CheckOrigin,
			HandshakeTimeout: opt.HandshakeTimeout,
		},
		writeWait:    opt.WriteWait,
		pongWait:     opt.PongWait,
		pingInterval: opt.PongWait * 9 / 10,
	}
}

// Conn server side connection. Writes are serialized, inbound messages are discarded.
type Conn struct {
	ws        *websocket.Conn
	writeWait time.Duration
	mu        sync.Mutex
	done      chan struct{}
	once      sync.Once
}

// WriteJSON send v as a text frame
func (c *Conn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.ws.WriteJSON(v)
}

// Done closed once the peer went away or the connection was closed
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close close the underlying connection, safe to call more than once
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
}

// WithHeartbeat wrap handler function with heartbeat probe, handler owns the connection
// until it returns and should return once conn.Done() is closed
func (w *Websocket) WithHeartbeat(handler func(echo.Context, *Conn) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		ws, err := w.upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			// upgrader already replied with an error status
			return nil
		}

		conn := &Conn{ws: ws, writeWait: w.writeWait, done: make(chan struct{})}
		defer conn.Close()

		go w.readRoutine(conn)
		go w.heartbeatRoutine(conn)
		return handler(c, conn)
	}
}

func (w *Websocket) readRoutine(conn *Conn) {
	defer conn.Close()
	ws := conn.ws
	ws.SetReadLimit(512)
	ws.SetReadDeadline(time.Now().Add(w.pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(w.pongWait))
	})
	for {
		if _, _, err := ws.NextReader(); err != nil {
			return
		}
	}
}

func (w *Websocket) heartbeatRoutine(conn *Conn) {
	ticker := time.NewTicker(w.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				conn.Close()
				return
			}
		case <-conn.Done():
			return
		}
	}
}
