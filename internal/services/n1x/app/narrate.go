package server

import (
	"context"
	"log"
	"sync"

	"github.com/louisbranch/n1x/internal/services/n1x/narrative"
	"github.com/louisbranch/n1x/internal/services/n1x/trust"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// recentLines is how much history a narrative request carries.
const recentLines = 12

// narrator runs generator calls off the room's critical path. Room state is
// already committed when a call starts; a failed call only loses the reply.
type narrator struct {
	generator narrative.Generator
	tracer    trace.Tracer
	base      context.Context
	wg        sync.WaitGroup
}

func newNarrator(base context.Context, generator narrative.Generator, tracer trace.Tracer) *narrator {
	if generator == nil {
		return nil
	}
	return &narrator{generator: generator, tracer: tracer, base: base}
}

func (n *narrator) dispatch(ctx context.Context, r *roomActor, req narrative.Request) {
	link := trace.LinkFromContext(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		callCtx, span := n.tracer.Start(n.base, "n1x.narrative.generate",
			trace.WithLinks(link),
			trace.WithAttributes(attribute.String("n1x.room_id", r.id), attribute.Int("n1x.trust", req.Policy.Level)),
		)
		defer span.End()

		output, err := n.generator.Generate(callCtx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "generate failed")
			log.Printf("n1x: narrative room=%s failed: %v", r.id, err)
			return
		}
		text, signals := trust.ParseSignals(output)
		if len(signals) > 0 {
			span.SetAttributes(attribute.Int("n1x.signals", len(signals)))
		}
		r.recordNarrative(callCtx, text)
	}()
}

// wait blocks until in-flight calls finish.
func (n *narrator) wait() {
	if n != nil {
		n.wg.Wait()
	}
}

func (r *roomActor) narrativeRequestLocked(handle, text string) narrative.Request {
	state := r.state
	occupants := state.Occupants()
	names := make([]string, len(occupants))
	for i, o := range occupants {
		names[i] = o.Handle
	}
	messages := state.Messages
	if len(messages) > recentLines {
		messages = messages[len(messages)-recentLines:]
	}
	recent := make([]string, len(messages))
	for i, m := range messages {
		recent[i] = m.Handle + ": " + m.Text
	}
	return narrative.Request{
		Policy: trust.Build(state.EffectiveTrust(handle), state.Fragments),
		Room: &narrative.RoomContext{
			ID:        state.ID,
			Daemon:    state.Daemon.String(),
			Trust:     state.Trust,
			Occupants: names,
			Recent:    recent,
		},
		Handle:   handle,
		UserText: text,
	}
}
