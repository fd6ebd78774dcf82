// Package narrative is the boundary to the external text generator that
// voices N1X. Generators are slow and fallible; callers treat every error as
// "no reply this turn".
package narrative

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/n1x/internal/services/n1x/trust"
)

// ErrUnavailable is returned when no generator is configured.
var ErrUnavailable = errors.New("narrative generator unavailable")

// RoomContext describes the room a reply is generated for.
type RoomContext struct {
	ID        string
	Daemon    string
	Trust     int
	Occupants []string
	// Recent holds "handle: text" lines, oldest first.
	Recent []string
}

// Request is one generation call.
type Request struct {
	Policy   trust.Policy
	Room     *RoomContext
	Handle   string
	UserText string
}

// Generator produces narrator text for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Func adapts a function to Generator.
type Func func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Disabled never generates.
type Disabled struct{}

// Generate returns ErrUnavailable.
func (Disabled) Generate(context.Context, Request) (string, error) {
	return "", ErrUnavailable
}

type timeoutGenerator struct {
	next    Generator
	timeout time.Duration
}

// WithTimeout bounds every call to next. Non-positive timeouts return next.
func WithTimeout(next Generator, timeout time.Duration) Generator {
	if next == nil {
		return Disabled{}
	}
	if timeout <= 0 {
		return next
	}
	return timeoutGenerator{next: next, timeout: timeout}
}

func (g timeoutGenerator) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := g.next.Generate(ctx, req)
		done <- result{text: text, err: err}
	}()
	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("generate: %w", ctx.Err())
	}
}
