package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/pantheon/internal/broadcast"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
	streamBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleStream upgrades to a WebSocket and relays world updates. The client
// first receives a full snapshot, then diffs; a gap in the update sequence
// triggers a fresh snapshot.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.Bus == nil {
		http.Error(w, "streaming disabled", http.StatusServiceUnavailable)
		return
	}
	if s.streamConns.Add(1) > maxStreamConns {
		s.streamConns.Add(-1)
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	defer s.streamConns.Add(-1)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates, err := s.Bus.Subscribe(ctx, broadcast.Topic(s.Sim.Shard()), streamBuffer)
	if err != nil {
		slog.Error("stream subscribe failed", "error", err)
		return
	}

	// Reader: only pongs and close frames are expected.
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	slog.Info("stream client connected", "remote", r.RemoteAddr)
	defer slog.Info("stream client disconnected", "remote", r.RemoteAddr)

	send := func(u broadcast.Update) bool {
		conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(u); err != nil {
			slog.Debug("stream write failed", "error", err)
			return false
		}
		return true
	}
	snapshot := func() (uint64, bool) {
		st := s.Sim.Snapshot()
		return st.Tick, send(broadcast.Update{Kind: broadcast.KindSnapshot, Shard: st.Shard, Tick: st.Tick, State: st})
	}

	synced, ok := snapshot()
	if !ok {
		return
	}
	var lastSeq uint64
	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case u, open := <-updates:
			if !open {
				return
			}
			gap := lastSeq != 0 && u.Seq != lastSeq+1
			lastSeq = u.Seq
			switch {
			case gap:
				if synced, ok = snapshot(); !ok {
					return
				}
			case u.Tick <= synced && u.Kind == broadcast.KindDiff:
				// Already contained in the snapshot sent on connect.
			default:
				if !send(u) {
					return
				}
				synced = u.Tick
			}
		}
	}
}
