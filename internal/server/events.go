package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/loykin/svcwatch/internal/events"
)

const (
	defaultEventLimit = 100
	streamBuffer      = 256
	writeWait         = 10 * time.Second
)

// A nil CheckOrigin rejects handshakes whose Origin host differs from the
// request host.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (r *Router) handleEvents(c *gin.Context) {
	limit := defaultEventLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}
	recent := r.bus.Recent(limit)
	lines := make([]string, len(recent))
	for i, e := range recent {
		lines[i] = e.String()
	}
	writeJSON(c, http.StatusOK, lines)
}

// handleEventStream upgrades to a websocket and writes one text message per
// event line. With ?recent=N the last N lines are sent first.
func (r *Router) handleEventStream(c *gin.Context) {
	backlog := 0
	if s := c.Query("recent"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			backlog = n
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		r.log.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	r.log.Debug("event stream connected", "remote", c.Request.RemoteAddr)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Subscribe before reading the backlog. A line published in between may
	// be sent twice.
	ch, unsubscribe := r.bus.Subscribe(streamBuffer)
	defer unsubscribe()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	write := func(e events.Event) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(e.String())); err != nil {
			r.log.Debug("event stream write failed", "error", err)
			return false
		}
		return true
	}

	if backlog > 0 {
		for _, e := range r.bus.Recent(backlog) {
			if !write(e) {
				return
			}
		}
	}
	for {
		select {
		case <-ctx.Done():
			r.log.Debug("event stream closed", "remote", c.Request.RemoteAddr)
			return
		case e, open := <-ch:
			if !open || !write(e) {
				return
			}
		}
	}
}
