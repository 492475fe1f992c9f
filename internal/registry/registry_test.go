package registry_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/relaycast/internal/model"
	"github.com/unclebandit/relaycast/internal/registry"
)

func intPtr(i int) *int { return &i }

func submission() registry.Submission {
	return registry.Submission{
		Recipients:      []string{"a@example.com"},
		SubjectTemplate: "Hi {{name}}",
		BodyTemplate:    "Body",
		DelaySeconds:    intPtr(0),
		Relays: []model.RelayDescriptor{
			{ID: "r1", Name: "r1", Host: "smtp.invalid", Port: 587, User: "sender@example.com"},
		},
	}
}

func TestSubmitAssignsIDAndTracksActiveCount(t *testing.T) {
	reg := registry.New(3, zerolog.Nop())

	id, err := reg.Submit(submission())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatalf("expected a non-empty campaign id")
	}

	if _, ok := reg.Get(id); !ok {
		t.Fatalf("expected the submitted campaign to be retrievable")
	}
}

func TestSubmitRejectsBeyondCapacity(t *testing.T) {
	reg := registry.New(1, zerolog.Nop())

	if _, err := reg.Submit(submission()); err != nil {
		t.Fatalf("unexpected error on first submit: %v", err)
	}
	if _, err := reg.Submit(submission()); err == nil {
		t.Fatalf("expected capacity error on second submit")
	}
}

func TestStopUnknownCampaignReturnsFalse(t *testing.T) {
	reg := registry.New(3, zerolog.Nop())
	if reg.Stop("does-not-exist") {
		t.Errorf("expected Stop on an unknown campaign to return false")
	}
}

func TestRotationSnapshotUnknownCampaignReturnsFalse(t *testing.T) {
	reg := registry.New(3, zerolog.Nop())
	if _, ok := reg.RotationSnapshot("does-not-exist"); ok {
		t.Errorf("expected RotationSnapshot on an unknown campaign to return false")
	}
}

func TestShutdownDrainsWithinDeadline(t *testing.T) {
	reg := registry.New(3, zerolog.Nop())
	if _, err := reg.Submit(submission()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reg.Shutdown(ctx)
}
