package terminal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	server "github.com/louisbranch/n1x/internal/services/n1x/app"
	"github.com/louisbranch/n1x/internal/services/n1x/progression"
	"golang.org/x/net/websocket"
)

// ErrLinkClosed is returned when sending on a closed room link.
var ErrLinkClosed = errors.New("room link closed")

// intent is the client side of an inbound room frame.
type intent struct {
	Type      string   `json:"type"`
	Room      string   `json:"room,omitempty"`
	Handle    string   `json:"handle,omitempty"`
	Trust     float64  `json:"trust,omitempty"`
	Fragments []string `json:"fragments,omitempty"`
	Text      string   `json:"text,omitempty"`
	Fragment  string   `json:"fragment,omitempty"`
}

// Link is one WebSocket connection to a room.
type Link struct {
	Room string

	conn   *websocket.Conn
	frames chan server.Frame
	done   chan struct{}

	sendMu sync.Mutex
	closed bool

	errMu sync.Mutex
	err   error
}

// Dial connects to the room server and sends the join intent carrying the
// local progression.
func Dial(ctx context.Context, serverURL, roomID, handle string, p progression.Progression) (*Link, error) {
	wsURL, origin, err := socketURL(serverURL)
	if err != nil {
		return nil, err
	}
	cfg, err := websocket.NewConfig(wsURL, origin)
	if err != nil {
		return nil, fmt.Errorf("websocket config: %w", err)
	}
	conn, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial room: %w", err)
	}
	l := &Link{Room: roomID, conn: conn, frames: make(chan server.Frame, 64), done: make(chan struct{})}
	go l.readLoop()
	if err := l.send(intent{
		Type:      "join",
		Room:      roomID,
		Handle:    handle,
		Trust:     float64(p.Trust),
		Fragments: p.Fragments,
	}); err != nil {
		_ = l.Close()
		return nil, err
	}
	return l, nil
}

// Frames delivers server frames in arrival order. The channel closes when the
// connection ends.
func (l *Link) Frames() <-chan server.Frame {
	return l.frames
}

// Err reports why the read loop stopped, if it did.
func (l *Link) Err() error {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	return l.err
}

// Chat sends a chat line.
func (l *Link) Chat(text string) error {
	return l.send(intent{Type: "chat", Text: text})
}

// Contribute shares a collected fragment with the room.
func (l *Link) Contribute(fragmentID string) error {
	return l.send(intent{Type: "fragment", Fragment: fragmentID})
}

// Leave asks the room for a final sync. The connection stays open until Close.
func (l *Link) Leave() error {
	return l.send(intent{Type: "leave"})
}

// Close drops the connection without a sync.
func (l *Link) Close() error {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.done)
	return l.conn.Close()
}

func (l *Link) send(in intent) error {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()
	if l.closed {
		return ErrLinkClosed
	}
	if err := websocket.JSON.Send(l.conn, in); err != nil {
		return fmt.Errorf("send %s: %w", in.Type, err)
	}
	return nil
}

func (l *Link) readLoop() {
	defer close(l.frames)
	for {
		var frame server.Frame
		if err := websocket.JSON.Receive(l.conn, &frame); err != nil {
			l.errMu.Lock()
			l.err = err
			l.errMu.Unlock()
			return
		}
		select {
		case l.frames <- frame:
		case <-l.done:
			return
		}
	}
}

// socketURL maps an http(s) server URL to the room socket URL and origin.
func socketURL(serverURL string) (string, string, error) {
	u, err := url.Parse(strings.TrimSpace(serverURL))
	if err != nil {
		return "", "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("server url host is required")
	}
	origin := *u
	origin.Scheme = strings.Replace(u.Scheme, "ws", "http", 1)
	origin.Path = ""
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), origin.String(), nil
}
