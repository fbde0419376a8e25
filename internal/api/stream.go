package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"stock-sync/internal/models"
	"stock-sync/internal/stream"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/gobwas/ws"
	"go.uber.org/zap"
)

// snapshot returns the committed stock the client starts from. It is read
// after registering so no change can fall between snapshot and stream.
func (h *Handler) snapshot(ctx context.Context, interest int64) ([]models.StockLevel, error) {
	if interest != models.AllProducts {
		lvl, err := h.inventory.GetStock(ctx, interest)
		if err != nil {
			return nil, err
		}
		return []models.StockLevel{*lvl}, nil
	}

	products, err := h.inventory.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	levels := make([]models.StockLevel, 0, len(products))
	for _, p := range products {
		levels = append(levels, models.StockLevel{ProductID: p.ID, Stock: p.Stock, Version: p.Version})
	}
	return levels, nil
}

// streamEvents serves stock changes as server-sent events. The first event is
// a snapshot carrying the reconnect delay; "stock" events follow, with comment
// lines as keep-alives.
func (h *Handler) streamEvents(c *gin.Context) {
	interest, ok := interestParam(c)
	if !ok {
		return
	}

	sub := h.broadcaster.Register(interest)
	defer h.broadcaster.Unregister(sub)

	levels, err := h.snapshot(c.Request.Context(), interest)
	if err != nil {
		writeError(c, "Failed to open stream", err)
		return
	}

	c.Header("Content-Type", sse.ContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	if err := sse.Encode(c.Writer, sse.Event{
		Event: stream.FrameSnapshot,
		Retry: uint(h.streamOpts.RetryMs),
		Data:  levels,
	}); err != nil {
		return
	}
	c.Writer.Flush()

	keepAlive := time.NewTicker(h.keepAlive())
	defer keepAlive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case evt, ok := <-sub.Events():
			if !ok {
				h.logger.Info("Closing event stream",
					zap.Uint64("subscriber", sub.ID),
					zap.String("reason", sub.Reason()))
				return false
			}
			c.SSEvent(stream.FrameStock, evt)
			return true
		case <-keepAlive.C:
			_, err := io.WriteString(w, ": keep-alive\n\n")
			return err == nil
		}
	})
}

// streamWebSocket serves the same feed over a WebSocket connection
func (h *Handler) streamWebSocket(c *gin.Context) {
	interest, ok := interestParam(c)
	if !ok {
		return
	}

	sub := h.broadcaster.Register(interest)

	levels, err := h.snapshot(c.Request.Context(), interest)
	if err != nil {
		h.broadcaster.Unregister(sub)
		writeError(c, "Failed to open stream", err)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(c.Request, c.Writer)
	if err != nil {
		h.broadcaster.Unregister(sub)
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	frames := make([]stream.Frame, 0, len(levels))
	for _, lvl := range levels {
		frames = append(frames, stream.Frame{Type: stream.FrameSnapshot, Data: lvl})
	}

	client := stream.NewWebSocketClient(conn, h.broadcaster, sub, h.keepAlive())
	client.Serve(context.Background(), frames)
}

func (h *Handler) keepAlive() time.Duration {
	if h.streamOpts.KeepAlive <= 0 {
		return 15 * time.Second
	}
	return h.streamOpts.KeepAlive
}
