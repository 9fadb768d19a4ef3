// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/quizboard/internal/middleware"
	"github.com/jason-s-yu/quizboard/internal/room"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
)

// Frame types the server emits besides command acks.
const (
	FrameAck      = "ack"
	FramePong     = "pong"
	FrameSnapshot = "room:snapshot"
)

// inbound is a client frame: a command name, its payload and an opaque
// correlation id echoed back in the ack.
type inbound struct {
	ID   json.RawMessage `json:"id,omitempty"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// RoomWSHandler upgrades to the quizboard protocol. One connection carries one
// session, bound to at most one room at a time.
func (s *Server) RoomWSHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: s.opts.AllowedOrigins,
	})
	if err != nil {
		s.Logger.Warnf("websocket accept error: %v", err)
		return
	}
	defer c.Close(websocket.StatusNormalClosure, "session ended")

	if c.Subprotocol() != Subprotocol {
		c.Close(BadSubprotocolError, "client must speak the quizboard subprotocol")
		return
	}
	c.SetReadLimit(s.opts.ReadLimit)
	middleware.LogWebSocketConnect(s.Logger, r.RemoteAddr, r.URL.Path)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := room.NewConnection(s.opts.SendBuffer)
	sess := newSession(s, conn, s.Logger.WithFields(logrus.Fields{
		"conn":   conn.ID,
		"remote": r.RemoteAddr,
	}))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		s.writePump(ctx, c, conn, sess.log)
	}()

	readErr := s.readPump(ctx, c, sess)

	cancel()
	<-writerDone
	sess.leave()
	middleware.LogWebSocketDisconnect(s.Logger, r.RemoteAddr, r.URL.Path, readErr)
}

// readPump decodes client frames and dispatches them in order until the socket
// closes. It returns nil on a normal closure.
func (s *Server) readPump(ctx context.Context, c *websocket.Conn, sess *session) error {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway, RoomClosedError:
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if typ != websocket.MessageText {
			sess.log.Warnf("received non-text message type %d, ignoring", typ)
			continue
		}

		var in inbound
		if err := json.Unmarshal(msg, &in); err != nil {
			sess.log.WithError(err).Debug("invalid json frame")
			if err := sess.ack(ctx, nil, nil, ErrBadJSON); err != nil {
				return nil
			}
			continue
		}

		if in.Type == "ping" {
			sess.conn.Write(room.Message{Type: FramePong, ID: in.ID})
			continue
		}

		data, herr := sess.handle(in)
		if err := sess.ack(ctx, in.ID, data, herr); err != nil {
			return nil
		}
	}
}

// writePump serializes acks and coalesced snapshots onto the socket and keeps
// it alive with pings.
func (s *Server) writePump(ctx context.Context, c *websocket.Conn, conn *room.Connection, log *logrus.Entry) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			log.Info("room closed, ending session")
			_ = c.Close(RoomClosedError, "room closed")
			return
		case msg := <-conn.OutChan:
			if err := s.writeFrame(ctx, c, msg); err != nil {
				log.WithError(err).Warn("failed to write to websocket")
				return
			}
		case <-conn.SnapshotReady():
			snap := conn.TakeSnapshot()
			if snap == nil {
				continue
			}
			if err := s.writeFrame(ctx, c, room.Message{Type: FrameSnapshot, Data: snap}); err != nil {
				log.WithError(err).Warn("failed to write snapshot to websocket")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				log.WithError(err).Warn("failed to send ping, assuming disconnect")
				return
			}
		}
	}
}

func (s *Server) writeFrame(ctx context.Context, c *websocket.Conn, msg room.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
	defer cancel()
	return c.Write(writeCtx, websocket.MessageText, data)
}
