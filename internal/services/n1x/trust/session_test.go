package trust

import (
	"testing"
	"time"

	"github.com/louisbranch/n1x/internal/services/n1x/progression"
)

var start = time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)

func TestContainsLore(t *testing.T) {
	hits := []string{"who is N1X?", "the daemon sleeps", "is there a ghost in the wire", "RELAY!"}
	for _, text := range hits {
		if !ContainsLore(text) {
			t.Fatalf("expected lore in %q", text)
		}
	}
	misses := []string{"", "hello there", "relaying messages", "ghost wire", "meshes"}
	for _, text := range misses {
		if ContainsLore(text) {
			t.Fatalf("unexpected lore in %q", text)
		}
	}
}

func TestParseSignals(t *testing.T) {
	clean, signals := ParseSignals("correct. [[n1x:test-pass]] the relay remembers [[n1x:bogus=1]]")
	if clean != "correct. the relay remembers" {
		t.Fatalf("unexpected clean text %q", clean)
	}
	if len(signals) != 1 || signals[0].Kind != SignalTestPass {
		t.Fatalf("unexpected signals %+v", signals)
	}

	clean, signals = ParseSignals("take this: [[n1x:token=Orbit]]")
	if clean != "take this: "+EncodeToken("orbit") {
		t.Fatalf("token not encoded: %q", clean)
	}
	if len(signals) != 1 || signals[0].Arg != "orbit" {
		t.Fatalf("unexpected token signal %+v", signals)
	}

	if _, signals := ParseSignals("the player passed the test"); len(signals) != 0 {
		t.Fatal("prose must never be treated as a signal")
	}
}

func TestSoloTrustAdvanceOnLore(t *testing.T) {
	var s Session
	p := progression.Defaults(start)
	s.Begin(&p, start)

	adv := s.ObserveInput(&p, "tell me about the daemon", start)
	if adv == nil || adv.From != 0 || adv.To != 1 {
		t.Fatalf("expected 0 -> 1, got %+v", adv)
	}
	if adv := s.ObserveInput(&p, "what's for dinner", start.Add(time.Minute)); adv != nil {
		t.Fatalf("unexpected advance %+v", adv)
	}
	if p.Trust != 1 {
		t.Fatalf("trust reverted to %d", p.Trust)
	}
}

func TestFailedTestDegradesSessionOnly(t *testing.T) {
	var s Session
	p := progression.Progression{Trust: 1}
	s.Begin(&p, start)

	clean, adv := s.ObserveOutput(&p, "wrong. [[n1x:test-fail]]", start)
	if adv != nil || clean != "wrong." {
		t.Fatalf("unexpected result %q %+v", clean, adv)
	}
	if !s.Degraded() || s.EffectiveLevel(p) != 0 || s.Policy(p).Level != 0 {
		t.Fatal("expected level 0 behaviour for the rest of the session")
	}
	if p.Trust != 1 {
		t.Fatalf("stored trust changed to %d", p.Trust)
	}
	if _, adv := s.ObserveOutput(&p, "[[n1x:test-pass]]", start); adv != nil {
		t.Fatal("degraded session must not advance")
	}

	s.Begin(&p, start.Add(time.Hour))
	if s.Degraded() || s.EffectiveLevel(p) != 1 {
		t.Fatal("next session must restore stored level")
	}
	if _, adv := s.ObserveOutput(&p, "yes. [[n1x:test-pass]]", start.Add(time.Hour)); adv == nil || adv.To != 2 {
		t.Fatalf("expected 1 -> 2, got %+v", adv)
	}
}

func TestDecodedTokenAdvancesToThree(t *testing.T) {
	var s Session
	p := progression.Progression{Trust: 2}
	s.Begin(&p, start)

	clean, _ := s.ObserveOutput(&p, "decode this: [[n1x:token=lumen]]", start)
	if p.PendingToken != "lumen" || clean != "decode this: "+EncodeToken("lumen") {
		t.Fatalf("token not recorded: %q %q", p.PendingToken, clean)
	}
	if adv := s.ObserveInput(&p, EncodeToken("lumen"), start); adv != nil {
		t.Fatal("echoing the encoded form must not pass")
	}
	adv := s.ObserveInput(&p, "it says LUMEN", start.Add(time.Minute))
	if adv == nil || adv.To != 3 {
		t.Fatalf("expected 2 -> 3, got %+v", adv)
	}
	if p.PendingToken != "" {
		t.Fatal("pending token must be consumed")
	}
}

func TestReturnGateNeedsLaterSessionOrTime(t *testing.T) {
	var s Session
	p := progression.Progression{Trust: 2}
	s.Begin(&p, start)
	s.ObserveOutput(&p, "[[n1x:token-decoded]]", start)
	if p.Trust != 3 {
		t.Fatalf("expected trust 3, got %d", p.Trust)
	}

	if adv := s.ObserveInput(&p, "still here", start.Add(time.Hour)); adv != nil {
		t.Fatal("same session must not pass the return gate")
	}
	if adv := s.ObserveInput(&p, "still here", start.Add(ReturnWindow)); adv == nil || adv.To != 4 {
		t.Fatalf("expected 24h gate to open, got %+v", adv)
	}

	q := progression.Progression{Trust: 2}
	var s2 Session
	s2.Begin(&q, start)
	s2.ObserveOutput(&q, "[[n1x:token-decoded]]", start)
	if adv := s2.Begin(&q, start.Add(time.Hour)); adv == nil || adv.To != 4 {
		t.Fatalf("expected return visit to open the gate, got %+v", adv)
	}
}

func TestManifestSignalOnlyAtLevelFour(t *testing.T) {
	var s Session
	p := progression.Progression{Trust: 3, Level3ReachedAt: start, Level3Session: 1, SessionCount: 1}
	if _, adv := s.ObserveOutput(&p, "[[n1x:manifest]]", start); adv != nil {
		t.Fatal("manifest must not skip levels")
	}
	p.Trust = 4
	_, adv := s.ObserveOutput(&p, "[[n1x:manifest]] [[n1x:manifest]]", start)
	if adv == nil || adv.To != 5 || !p.GhostUnlocked {
		t.Fatalf("expected 4 -> 5 with ghost unlocked, got %+v %+v", adv, p)
	}
}
