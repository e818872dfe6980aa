package inspector

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talaub/lowzero/internal/core/handle"
	"github.com/talaub/lowzero/internal/core/observability/log"
	"github.com/talaub/lowzero/internal/core/observer"
)

type client struct {
	server *Server
	conn   *websocket.Conn
	logger log.Log
	send   chan any

	mu   sync.Mutex
	subs map[string]observer.Subscription

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(s *Server, conn *websocket.Conn) *client {
	return &client{
		server: s,
		conn:   conn,
		logger: s.logger.With(log.String("remote_addr", conn.RemoteAddr().String())),
		send:   make(chan any, sendBuffer),
		subs:   make(map[string]observer.Subscription),
		done:   make(chan struct{}),
	}
}

func (c *client) readLoop() {
	defer c.close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				c.logger.Debug("Read failed", log.Error(err))
			}
			return
		}
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.push(Response{Error: fmt.Sprintf("malformed request: %v", err)})
			continue
		}
		c.push(c.server.handle(c, req))
	}
}

// writeLoop is the only writer of the connection.
func (c *client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(frame); err != nil {
				c.logger.Debug("Write failed", log.Error(err))
				c.close()
				return
			}
		}
	}
}

// push queues a frame without blocking; frames for a saturated client are dropped.
func (c *client) push(frame any) {
	select {
	case <-c.done:
	case c.send <- frame:
	default:
		c.logger.Warn("Client send buffer full, dropping frame")
	}
}

func (c *client) observe(h handle.Handle, observable string) observer.Subscription {
	// The id is only known once Observe returns; early broadcasts carry it empty.
	var id atomic.Value
	sub := c.server.world.Bus().Observe(h, observable, func(observed handle.Handle, name string) error {
		subID, _ := id.Load().(string)
		c.push(Notification{Op: OpNotify, Subscription: subID, Handle: observed.ID(), Observable: name})
		return nil
	})
	id.Store(sub.ID())
	c.mu.Lock()
	c.subs[sub.ID()] = sub
	c.mu.Unlock()
	return sub
}

func (c *client) unobserve(id string) bool {
	c.mu.Lock()
	sub, ok := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()
	if ok {
		sub.Cancel()
	}
	return ok
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		for id, sub := range c.subs {
			sub.Cancel()
			delete(c.subs, id)
		}
		c.mu.Unlock()
		_ = c.conn.Close()
	})
}
