package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/louisbranch/n1x/internal/platform/id"
	"github.com/louisbranch/n1x/internal/services/n1x/progression"
	"github.com/louisbranch/n1x/internal/services/n1x/trust"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/websocket"
)

const (
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3
	maxMessageBodyRunes    = 2000
	maxHandleRunes         = 32
	maxRoomIDRunes         = 64
	writeTimeout           = 5 * time.Second
)

type wsPeer struct {
	mu   sync.Mutex
	conn *websocket.Conn
	enc  *json.Encoder
}

func newWSPeer(conn *websocket.Conn) *wsPeer {
	return &wsPeer{conn: conn, enc: json.NewEncoder(conn)}
}

func (p *wsPeer) writeFrame(frame Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	}
	return p.enc.Encode(frame)
}

// wsSession is one connection's view: its id, its peer, and the room it is in.
type wsSession struct {
	mu     sync.Mutex
	connID string
	peer   *wsPeer
	room   *roomActor
}

func (s *wsSession) setRoom(next *roomActor) *roomActor {
	s.mu.Lock()
	previous := s.room
	s.room = next
	s.mu.Unlock()
	return previous
}

func (s *wsSession) currentRoom() *roomActor {
	s.mu.Lock()
	r := s.room
	s.mu.Unlock()
	return r
}

func (h *hub) handleWSConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	ctx := conn.Request().Context()
	session := &wsSession{connID: id.MustNewID(), peer: newWSPeer(conn)}
	defer func() {
		if r := session.setRoom(nil); r != nil {
			r.leave(ctx, session.connID)
		}
	}()

	decoder := json.NewDecoder(conn)
	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame inFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || ctx.Err() != nil {
				return
			}
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if !errors.As(err, &syntaxErr) && !errors.As(err, &typeErr) {
				return
			}
			decodeErrors++
			log.Printf("n1x: dropped malformed frame conn=%s: %v", session.connID, err)
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			decoder = json.NewDecoder(conn)
			continue
		}
		decodeErrors = 0

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			log.Printf("n1x: rate limit exceeded conn=%s", session.connID)
			return
		}

		spanCtx, span := h.tracer.Start(ctx, "n1x.intent."+safeIntent(frame.Type), trace.WithAttributes(
			attribute.String("n1x.conn_id", session.connID),
		))
		switch frame.Type {
		case intentJoin:
			h.handleJoin(spanCtx, session, frame)
		case intentChat:
			h.handleChat(spanCtx, session, frame)
		case intentFragment:
			if r := session.currentRoom(); r != nil {
				r.contribute(spanCtx, session.connID, frame.Fragment)
			}
		case intentLeave:
			if r := session.setRoom(nil); r != nil {
				r.leave(spanCtx, session.connID)
			}
		default:
			log.Printf("n1x: dropped unsupported frame type=%q conn=%s", frame.Type, session.connID)
		}
		span.End()
	}
}

func (h *hub) handleJoin(ctx context.Context, session *wsSession, frame inFrame) {
	roomID := strings.TrimSpace(frame.Room)
	if roomID == "" {
		roomID = DefaultRoom
	}
	handle := strings.TrimSpace(frame.Handle)
	if handle == "" || utf8.RuneCountInString(handle) > maxHandleRunes || utf8.RuneCountInString(roomID) > maxRoomIDRunes {
		log.Printf("n1x: dropped join with invalid handle or room conn=%s", session.connID)
		return
	}

	next := h.room(roomID)
	if previous := session.setRoom(next); previous != nil && previous != next {
		previous.leave(ctx, session.connID)
	}
	next.join(ctx, session.connID, session.peer, handle, progression.Snapshot{
		Trust:     trust.ClampLevel(frame.Trust),
		Fragments: frame.Fragments,
	})
}

func (h *hub) handleChat(ctx context.Context, session *wsSession, frame inFrame) {
	r := session.currentRoom()
	if r == nil {
		log.Printf("n1x: dropped chat before join conn=%s", session.connID)
		return
	}
	text := frame.Text
	if utf8.RuneCountInString(text) > maxMessageBodyRunes {
		log.Printf("n1x: dropped oversized chat conn=%s", session.connID)
		return
	}
	r.chat(ctx, session.connID, text)
}

func safeIntent(kind string) string {
	switch kind {
	case intentJoin, intentChat, intentFragment, intentLeave:
		return kind
	default:
		return "unknown"
	}
}
