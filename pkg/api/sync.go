package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/astromechza/decaying-canvas/pkg/canvas"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the front-end is served from a different origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// syncStore pushes a fresh snapshot to the connection every time the store version
// changes. It is an alternative to polling /latest.
func (s *Server) syncStore(writer http.ResponseWriter, request *http.Request) {
	conn, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		slog.Error("failed to upgrade", "err", err)
		return
	}
	defer conn.Close()

	if err := s.push(request.Context(), conn); err != nil {
		slog.Error("failed to sync", "err", err)
	}
}

func (s *Server) push(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg := new(sync.WaitGroup)
	defer wg.Wait()

	// clients never send anything useful, but reading is how we notice them leave
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var sent uint64
	first := true
	sendIfChanged := func() error {
		if !first && s.Store.Version() == sent {
			return nil
		}
		raw, version, err := s.Store.Snapshot(ctx)
		if err != nil {
			// keep the connection, the next tick may succeed
			slog.Error("failed to snapshot canvas for push", "err", err)
			return nil
		}
		if err := conn.WriteJSON(Payload{Image: canvas.EncodeDataURL(raw), Version: version}); err != nil {
			return fmt.Errorf("failed to write message: %w", err)
		}
		first, sent = false, version
		return nil
	}

	if err := sendIfChanged(); err != nil {
		_ = conn.Close()
		return err
	}

	t := time.NewTicker(s.PushInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := sendIfChanged(); err != nil {
				_ = conn.Close()
				return err
			}
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
			return nil
		}
	}
}
