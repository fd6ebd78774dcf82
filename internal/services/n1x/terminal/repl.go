package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Run reads commands from in until EOF, /quit or ctx ends. Lines that are
// not commands are spoken to the narrator or the linked room.
func (t *Terminal) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	defer func() {
		_ = t.Leave(context.WithoutCancel(ctx))
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			quit, err := t.Exec(ctx, line)
			if err != nil {
				t.printf("error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// Exec runs one input line. It reports whether the terminal should exit.
func (t *Terminal) Exec(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	command, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch strings.ToLower(command) {
	case "":
		return false, nil
	case "/quit", "/exit":
		return true, nil
	case "/status":
		t.status()
		return false, nil
	case "/join":
		if rest == "" {
			return false, fmt.Errorf("usage: /join <room>")
		}
		return false, t.Join(ctx, rest)
	case "/leave":
		return false, t.Leave(ctx)
	case "decrypt", "./decrypt":
		if rest == "" {
			return false, fmt.Errorf("usage: decrypt <text>")
		}
		_, err := t.Decrypt(ctx, rest)
		return false, err
	default:
		return false, t.Say(ctx, line)
	}
}

func (t *Terminal) status() {
	p := t.Progression()
	t.printf("trust %d :: fragments %d [%s] :: sessions %d", p.Trust, len(p.Fragments), strings.Join(p.Fragments, " "), p.SessionCount)
	if p.ManifestComplete {
		t.printf(" :: manifest complete")
	}
	if p.GhostUnlocked {
		t.printf(" :: ghost")
	}
	t.printf("\n")
}
