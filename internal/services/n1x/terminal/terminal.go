// Package terminal is the player-side client: it owns the local progression,
// runs solo sessions against the narrator, decrypts fragments and keeps the
// local record reconciled with any room it joins.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	server "github.com/louisbranch/n1x/internal/services/n1x/app"
	"github.com/louisbranch/n1x/internal/services/n1x/decrypt"
	"github.com/louisbranch/n1x/internal/services/n1x/fragment"
	"github.com/louisbranch/n1x/internal/services/n1x/narrative"
	"github.com/louisbranch/n1x/internal/services/n1x/progression"
	"github.com/louisbranch/n1x/internal/services/n1x/room"
	"github.com/louisbranch/n1x/internal/services/n1x/trust"
)

// syncWait bounds how long Leave waits for the room's final sync.
const syncWait = 3 * time.Second

// Dialer opens a room link. Tests swap it out.
type Dialer func(ctx context.Context, serverURL, roomID, handle string, p progression.Progression) (*Link, error)

// Options configures a Terminal.
type Options struct {
	Store     progression.Store
	Narrator  narrative.Generator
	Decrypt   decrypt.Surface
	ServerURL string
	Handle    string
	Out       io.Writer
	Dial      Dialer
	Now       func() time.Time
}

// Terminal is one player's client session.
type Terminal struct {
	store     progression.Store
	narrator  narrative.Generator
	surface   decrypt.Surface
	serverURL string
	handle    string
	out       io.Writer
	dial      Dialer
	now       func() time.Time

	mu      sync.Mutex
	state   progression.Progression
	session trust.Session
	link    *Link
	synced  chan struct{}
	pumps   sync.WaitGroup
}

// New builds a terminal. Start must be called before use.
func New(opts Options) (*Terminal, error) {
	if opts.Store == nil {
		return nil, errors.New("progression store is required")
	}
	t := &Terminal{
		store:     opts.Store,
		narrator:  opts.Narrator,
		surface:   opts.Decrypt,
		serverURL: strings.TrimSpace(opts.ServerURL),
		handle:    strings.TrimSpace(opts.Handle),
		out:       opts.Out,
		dial:      opts.Dial,
		now:       opts.Now,
	}
	if t.narrator == nil {
		t.narrator = narrative.Disabled{}
	}
	if t.out == nil {
		t.out = io.Discard
	}
	if t.dial == nil {
		t.dial = Dial
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.handle == "" {
		t.handle = "anon"
	}
	return t, nil
}

// Start loads the local progression and begins a session.
func (t *Terminal) Start() error {
	p, err := t.store.Get()
	if err != nil {
		return fmt.Errorf("load progression: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = p
	t.reportLocked(t.session.Begin(&t.state, t.now()))
	return t.saveLocked()
}

// Progression returns a copy of the local record.
func (t *Terminal) Progression() progression.Progression {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.state
	p.Fragments = append([]string{}, t.state.Fragments...)
	return p
}

// Linked reports whether a room link is open.
func (t *Terminal) Linked() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.link != nil
}

// Say handles one line of player text. In a room it becomes a chat intent;
// alone it is a solo turn with the narrator.
func (t *Terminal) Say(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	t.mu.Lock()
	if link := t.link; link != nil {
		t.mu.Unlock()
		return link.Chat(text)
	}
	now := t.now()
	t.reportLocked(t.session.ObserveInput(&t.state, text, now))
	req := narrative.Request{
		Policy:   t.session.Policy(t.state),
		Handle:   t.handle,
		UserText: text,
	}
	if err := t.saveLocked(); err != nil {
		t.mu.Unlock()
		return err
	}
	t.mu.Unlock()

	reply, err := t.narrator.Generate(ctx, req)
	if err != nil {
		log.Printf("terminal: narrative failed: %v", err)
		t.printf("[signal lost]\n")
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	clean, adv := t.session.ObserveOutput(&t.state, reply, t.now())
	if clean != "" {
		t.printf("N1X> %s\n", clean)
	}
	t.reportLocked(adv)
	return t.saveLocked()
}

// Decrypt resolves input against the fragment table and, when a key is
// entered, the server. A new fragment is recorded locally and shared with
// the linked room.
func (t *Terminal) Decrypt(ctx context.Context, input string) (decrypt.Result, error) {
	t.mu.Lock()
	roomID := ""
	if t.link != nil {
		roomID = t.link.Room
	}
	t.mu.Unlock()

	res := t.surface.Decrypt(ctx, roomID, input)
	if !res.OK {
		t.printf("decrypt: no match\n")
		return res, nil
	}
	t.printf("%s\n", res.Payload)

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.state.AddFragment(res.FragmentID) {
		return res, nil
	}
	t.state.Touch(t.now())
	if err := t.saveLocked(); err != nil {
		return res, err
	}
	if t.link != nil && res.FragmentID != fragment.Multiplayer {
		if err := t.link.Contribute(res.FragmentID); err != nil {
			log.Printf("terminal: contribute %s failed: %v", res.FragmentID, err)
		}
	}
	return res, nil
}

// Join links the terminal to a room. Frames are merged into the local record
// as they arrive.
func (t *Terminal) Join(ctx context.Context, roomID string) error {
	if t.serverURL == "" {
		return errors.New("server url is not configured")
	}
	t.mu.Lock()
	if t.link != nil {
		t.mu.Unlock()
		return fmt.Errorf("already linked to room %q", t.link.Room)
	}
	snapshot := t.state
	t.mu.Unlock()

	link, err := t.dial(ctx, t.serverURL, roomID, t.handle, snapshot)
	if err != nil {
		return err
	}
	synced := make(chan struct{})
	t.mu.Lock()
	t.link = link
	t.synced = synced
	t.mu.Unlock()

	t.pumps.Add(1)
	go func() {
		defer t.pumps.Done()
		t.pump(link, synced)
	}()
	return nil
}

// Leave asks the room for its final sync, merges it and closes the link.
func (t *Terminal) Leave(ctx context.Context) error {
	t.mu.Lock()
	link, synced := t.link, t.synced
	t.mu.Unlock()
	if link == nil {
		return nil
	}
	if err := link.Leave(); err != nil {
		log.Printf("terminal: leave failed: %v", err)
	}
	timer := time.NewTimer(syncWait)
	defer timer.Stop()
	select {
	case <-synced:
	case <-timer.C:
		log.Printf("terminal: no sync from room=%s", link.Room)
	case <-ctx.Done():
	}
	err := link.Close()
	t.pumps.Wait()
	return err
}

// pump applies frames until the link ends. synced closes once a sync frame
// is merged or the connection is gone.
func (t *Terminal) pump(link *Link, synced chan struct{}) {
	var once sync.Once
	markSynced := func() { once.Do(func() { close(synced) }) }
	defer markSynced()
	for frame := range link.Frames() {
		t.Apply(frame)
		if frame.Type == string(room.EventSync) {
			markSynced()
		}
	}
	if err := link.Err(); err != nil && !errors.Is(err, io.EOF) {
		log.Printf("terminal: room link ended: %v", err)
	}
	t.mu.Lock()
	if t.link == link {
		t.link = nil
		t.synced = nil
	}
	t.mu.Unlock()
}

// Apply merges one room frame into the local record and prints it.
func (t *Terminal) Apply(frame server.Frame) {
	t.render(frame)
	snap, ok := SnapshotFromFrame(frame)
	if !ok {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	merged := progression.MergeSnapshot(t.state, snap)
	if merged.Trust > t.state.Trust {
		t.printf("[trust %d -> %d :: room]\n", t.state.Trust, merged.Trust)
	}
	t.state = merged
	if err := t.saveLocked(); err != nil {
		log.Printf("terminal: save merged progression: %v", err)
	}
}

// SnapshotFromFrame extracts the merge-ready part of a room frame. init and
// sync carry the occupant's effective trust and merged fragments;
// state_update carries the room projection, which the effective trust never
// falls below.
func SnapshotFromFrame(frame server.Frame) (progression.Snapshot, bool) {
	switch frame.Type {
	case string(room.EventInit), string(room.EventSync):
		if frame.Effective == nil {
			return progression.Snapshot{}, false
		}
		return progression.Snapshot{Trust: *frame.Effective, Fragments: frame.Fragments}, true
	case string(room.EventStateUpdate):
		if frame.Snapshot == nil {
			return progression.Snapshot{}, false
		}
		return progression.Snapshot{Trust: frame.Snapshot.Trust, Fragments: frame.Snapshot.Fragments}, true
	default:
		return progression.Snapshot{}, false
	}
}

func (t *Terminal) render(frame server.Frame) {
	switch frame.Type {
	case string(room.EventInit):
		t.printf("[linked to %s as %s]\n", frame.Room, frame.Handle)
		for _, msg := range frame.History {
			t.printf("%s> %s\n", msg.Handle, msg.Text)
		}
	case string(room.EventJoin):
		t.printf("[%s joined]\n", frame.Handle)
	case string(room.EventChat):
		t.printf("%s> %s\n", frame.Handle, frame.Text)
	case string(room.EventNarrative):
		t.printf("N1X> %s\n", frame.Text)
		if frame.Key != "" {
			t.printf("[f010 key %s :: witnesses %s]\n", frame.Key, strings.Join(frame.Witnesses, ", "))
		}
	case string(room.EventSystem):
		t.printf("[%s]\n", frame.Text)
	case string(room.EventSync):
		t.printf("[sync :: trust %d, %d fragments]\n", derefInt(frame.Effective), len(frame.Fragments))
	}
}

func (t *Terminal) reportLocked(adv *trust.Advance) {
	if adv == nil {
		return
	}
	t.printf("[trust %d -> %d :: %s]\n", adv.From, adv.To, adv.Reason)
}

func (t *Terminal) saveLocked() error {
	if err := t.store.Set(t.state); err != nil {
		return fmt.Errorf("save progression: %w", err)
	}
	return nil
}

func (t *Terminal) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(t.out, format, args...); err != nil {
		log.Printf("terminal: write output: %v", err)
	}
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
