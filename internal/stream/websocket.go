package stream

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"sync"
	"time"

	"stock-sync/internal/util"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"
)

const maxClientFrame = 4 * 1024

// Frame types sent to streaming clients
const (
	FrameSnapshot = "snapshot"
	FrameStock    = "stock"
)

// Frame is the JSON envelope written to WebSocket clients
type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// WebSocketClient streams one subscription over an upgraded connection.
// Clients only listen: pings are answered, close ends the stream and data
// frames are discarded.
type WebSocketClient struct {
	conn        net.Conn
	broadcaster *Broadcaster
	sub         *Subscription
	logger      *zap.Logger

	// serializes frames written by Serve and pongs written by readPump
	writeMu sync.Mutex

	writeWait  time.Duration
	pingPeriod time.Duration
}

// NewWebSocketClient wraps a connection returned by ws.UpgradeHTTP
func NewWebSocketClient(conn net.Conn, broadcaster *Broadcaster, sub *Subscription, pingPeriod time.Duration) *WebSocketClient {
	if pingPeriod <= 0 {
		pingPeriod = 30 * time.Second
	}
	return &WebSocketClient{
		conn:        conn,
		broadcaster: broadcaster,
		sub:         sub,
		logger:      util.GetLogger().With(zap.Uint64("subscriber", sub.ID)),
		writeWait:   5 * time.Second,
		pingPeriod:  pingPeriod,
	}
}

// Serve writes the snapshot frames and then every matching event until the
// client goes away, the subscription is dropped, or ctx ends
func (c *WebSocketClient) Serve(ctx context.Context, snapshot []Frame) {
	defer func() {
		c.broadcaster.Unregister(c.sub)
		c.conn.Close()
	}()

	gone := make(chan struct{})
	go c.readPump(gone)

	for _, frame := range snapshot {
		if err := c.writeFrame(frame); err != nil {
			return
		}
	}

	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.writeClose()
			return
		case <-gone:
			return
		case evt, ok := <-c.sub.Events():
			if !ok {
				c.logger.Info("Closing WebSocket stream", zap.String("reason", c.sub.Reason()))
				c.writeClose()
				return
			}
			if err := c.writeFrame(Frame{Type: FrameStock, Data: evt}); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.writeMessage(ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}

func (c *WebSocketClient) writeFrame(frame Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("Failed to encode frame", zap.Error(err))
		return err
	}
	if err := c.writeMessage(ws.OpText, payload); err != nil {
		c.logger.Debug("WebSocket write failed", zap.Error(err))
		return err
	}
	return nil
}

func (c *WebSocketClient) writeMessage(op ws.OpCode, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	return wsutil.WriteServerMessage(c.conn, op, payload)
}

func (c *WebSocketClient) writeClose() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	_, _ = c.conn.Write(ws.CompiledClose)
}

func (c *WebSocketClient) readPump(gone chan<- struct{}) {
	defer close(gone)

	for {
		header, err := ws.ReadHeader(c.conn)
		if err != nil {
			return
		}
		if header.Length > maxClientFrame {
			c.logger.Warn("Client frame too large", zap.Int64("size", header.Length))
			return
		}

		switch header.OpCode {
		case ws.OpPing:
			payload := make([]byte, header.Length)
			if _, err := io.ReadFull(c.conn, payload); err != nil {
				return
			}
			if header.Masked {
				ws.Cipher(payload, header.Mask, 0)
			}
			if err := c.writeMessage(ws.OpPong, payload); err != nil {
				return
			}
		case ws.OpClose:
			return
		default:
			if _, err := io.CopyN(io.Discard, c.conn, header.Length); err != nil {
				return
			}
		}
	}
}
