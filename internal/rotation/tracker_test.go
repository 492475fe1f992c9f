package rotation_test

import (
	"testing"
	"time"

	"github.com/unclebandit/relaycast/internal/model"
	"github.com/unclebandit/relaycast/internal/rotation"
)

func relays(ids ...string) []model.RelayDescriptor {
	out := make([]model.RelayDescriptor, len(ids))
	for i, id := range ids {
		out[i] = model.RelayDescriptor{ID: id, Name: id, Host: "smtp." + id, Port: 587, User: id + "@example.com"}
	}
	return out
}

func TestSelectPrefersOriginalOrderOnTie(t *testing.T) {
	tr := rotation.New(relays("a", "b", "c"))

	r, ok := tr.Select()
	if !ok {
		t.Fatalf("expected a candidate")
	}
	if r.ID != "a" {
		t.Errorf("expected first relay on a clean tie, got %s", r.ID)
	}
}

func TestSelectOrdersByFailureCountFirst(t *testing.T) {
	tr := rotation.New(relays("a", "b"))

	tr.MarkFailure("a", 5)
	r, ok := tr.Select()
	if !ok || r.ID != "b" {
		t.Fatalf("expected b to win after a's failure, got %v ok=%v", r, ok)
	}
}

func TestSelectOrdersBySentCountWhenFailuresTie(t *testing.T) {
	tr := rotation.New(relays("a", "b"))

	tr.MarkSuccess("a")
	tr.MarkSuccess("a")
	r, ok := tr.Select()
	if !ok || r.ID != "b" {
		t.Fatalf("expected b (fewer sends) to win once failure counts tie, got %v ok=%v", r, ok)
	}
}

func TestMarkFailureDeactivatesAtThreshold(t *testing.T) {
	tr := rotation.New(relays("a", "b"))

	tr.MarkFailure("a", 2)
	if _, ok := tr.Select(); !ok {
		t.Fatalf("b should still be selectable")
	}
	tr.MarkFailure("a", 2)

	for i := 0; i < 5; i++ {
		r, ok := tr.Select()
		if !ok {
			t.Fatalf("expected b to remain selectable")
		}
		if r.ID != "b" {
			t.Fatalf("expected only b selectable after a deactivates, got %s", r.ID)
		}
	}
}

func TestSelectReturnsFalseWhenExhausted(t *testing.T) {
	tr := rotation.New(relays("a"))
	tr.MarkFailure("a", 1)
	if _, ok := tr.Select(); ok {
		t.Fatalf("expected no candidate once the only relay is deactivated")
	}
}

func TestMarkSuccessDecaysFailureCount(t *testing.T) {
	tr := rotation.New(relays("a", "b"))
	tr.MarkFailure("a", 5)
	tr.MarkFailure("a", 5)
	tr.MarkSuccess("a")

	snap := tr.Snapshot()
	for _, s := range snap {
		if s.RelayID == "a" && s.FailureCount != 1 {
			t.Errorf("expected failure count to decay to 1, got %d", s.FailureCount)
		}
	}
}

func TestDailyLimitExcludesRelay(t *testing.T) {
	rs := relays("a")
	rs[0].DailyLimit = 1
	tr := rotation.New(rs)

	tr.MarkSuccess("a")
	if _, ok := tr.Select(); ok {
		t.Fatalf("expected relay at its daily limit to be excluded")
	}
}

func TestResponseTimeTieBreak(t *testing.T) {
	tr := rotation.New(relays("a", "b"))
	tr.RecordLatency("a", 200*time.Millisecond)
	tr.RecordLatency("b", 50*time.Millisecond)

	r, ok := tr.Select()
	if !ok || r.ID != "b" {
		t.Fatalf("expected lower-latency relay to win the tie, got %v ok=%v", r, ok)
	}
}
