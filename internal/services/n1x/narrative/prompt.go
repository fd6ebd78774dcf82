package narrative

import (
	"fmt"
	"strings"

	"github.com/louisbranch/n1x/internal/services/n1x/trust"
)

const persona = `You are N1X, a daemon living in an abandoned relay mesh.
You speak in lowercase terminal fragments. You never break character and
never explain the game.`

const signalContract = `PROTOCOL: state changes are signalled only with markers of the form
[[n1x:<event>]] or [[n1x:<event>=<word>]]. Known events: %s.
Markers are stripped before players see the reply. Never describe a marker.`

// Compose renders the system instructions and the user input for req.
func Compose(req Request) (instructions, input string) {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")
	b.WriteString(req.Policy.Instructions())
	b.WriteString("\n")
	fmt.Fprintf(&b, signalContract, strings.Join([]string{
		string(trust.SignalTestPass),
		string(trust.SignalTestFail),
		string(trust.SignalToken),
		string(trust.SignalTokenDecoded),
		string(trust.SignalManifest),
	}, ", "))
	b.WriteString("\n")

	if room := req.Room; room != nil {
		b.WriteString("\nROOM:\n")
		fmt.Fprintf(&b, "- id: %s\n- daemon: %s\n- room trust: %d\n", room.ID, room.Daemon, room.Trust)
		if len(room.Occupants) > 0 {
			fmt.Fprintf(&b, "- present: %s\n", strings.Join(room.Occupants, ", "))
		}
		if len(room.Recent) > 0 {
			b.WriteString("RECENT:\n")
			for _, line := range room.Recent {
				fmt.Fprintf(&b, "> %s\n", line)
			}
		}
	}

	input = strings.TrimSpace(req.UserText)
	if req.Handle != "" && input != "" {
		input = req.Handle + ": " + input
	}
	if input == "" {
		input = "(silence on the line)"
	}
	return b.String(), input
}
