package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MimeLyc/live-caption-history/pkg/log"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	// Caption clients connect from the meeting page origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.c.WriteJSON(v)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

// handleCaptionSocket ingests one caption per text message and answers each
// with the ingestion result, in order.
func (s *Server) handleCaptionSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the response.
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx := r.Context()

	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := wc.ping(); err != nil {
					return
				}
			}
		}
	}()

	log.Info("Caption socket connected from %s", r.RemoteAddr)
	defer log.Info("Caption socket from %s closed", r.RemoteAddr)

	for seq := 1; ; seq++ {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("Caption socket read failed: %v", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		var req captionRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if err := wc.writeJSON(map[string]any{"type": "error", "seq": seq, "error": "invalid json"}); err != nil {
				return
			}
			continue
		}

		res := s.session.Ingest(ctx, req.caption())
		if err := wc.writeJSON(map[string]any{
			"type":       "ack",
			"seq":        seq,
			"accepted":   res.Accepted,
			"reason":     res.Reason,
			"translated": res.Translated,
		}); err != nil {
			return
		}
	}
}
