package executor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/relaycast/internal/executor"
	"github.com/unclebandit/relaycast/internal/model"
	"github.com/unclebandit/relaycast/internal/smtptransport"
)

type fakeHandle struct {
	fail bool
}

func (f *fakeHandle) Send(ctx context.Context, msg smtptransport.Message) (smtptransport.SendInfo, error) {
	if f.fail {
		return smtptransport.SendInfo{}, errors.New("send failed")
	}
	return smtptransport.SendInfo{Duration: time.Millisecond}, nil
}

func (f *fakeHandle) Close() error { return nil }

type fakeTransport struct {
	mu        sync.Mutex
	failFor   map[string]bool
	acquireErr error
}

func (f *fakeTransport) Acquire(ctx context.Context, relay model.RelayDescriptor) (smtptransport.Handle, error) {
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return &fakeHandle{fail: f.failFor[relay.ID]}, nil
}

func intPtr(i int) *int { return &i }

func testCampaign(recipients []string, relays []model.RelayDescriptor) *model.Campaign {
	return model.NewCampaign("campaign_test", recipients, "Hi {{name}}", "Body", false,
		intPtr(0), false, 0, nil, nil, "", 0, relays)
}

func TestRunDeliversToEveryRecipient(t *testing.T) {
	c := testCampaign(
		[]string{"a@example.com", "b@example.com"},
		[]model.RelayDescriptor{{ID: "r1", Name: "r1", Host: "smtp.example.com", Port: 587, User: "sender@example.com"}},
	)
	transport := &fakeTransport{failFor: map[string]bool{}}

	done := make(chan struct{})
	exec := executor.New(c, transport, zerolog.Nop(), func() { close(done) })
	exec.Run(context.Background())
	<-done

	snap := c.Snapshot()
	if snap.Status != model.StatusCompleted {
		t.Fatalf("expected completed status, got %s", snap.Status)
	}
	if snap.Success != 2 {
		t.Errorf("expected 2 successes, got %d", snap.Success)
	}
}

func TestRunMarksErrorWhenNoRelayAvailable(t *testing.T) {
	c := testCampaign([]string{"a@example.com"}, nil)
	transport := &fakeTransport{}

	done := make(chan struct{})
	exec := executor.New(c, transport, zerolog.Nop(), func() { close(done) })
	exec.Run(context.Background())
	<-done

	if c.StatusValue() != model.StatusError {
		t.Fatalf("expected error status with no relays, got %s", c.StatusValue())
	}
}

func TestRunEnqueuesRetryableFailureAndDrainsIt(t *testing.T) {
	c := testCampaign(
		[]string{"a@example.com"},
		[]model.RelayDescriptor{{ID: "r1", Name: "r1", Host: "smtp.example.com", Port: 587, User: "sender@example.com"}},
	)
	transport := &fakeTransport{failFor: map[string]bool{"r1": true}}

	done := make(chan struct{})
	exec := executor.New(c, transport, zerolog.Nop(), func() { close(done) })
	exec.Run(context.Background())
	<-done

	snap := c.Snapshot()
	if snap.Failed == 0 {
		t.Fatalf("expected at least one failure recorded")
	}
	if len(snap.Errors) == 0 {
		t.Fatalf("expected error records surfaced in snapshot")
	}
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	c := testCampaign(
		[]string{"a@example.com", "b@example.com", "c@example.com"},
		[]model.RelayDescriptor{{ID: "r1", Name: "r1", Host: "smtp.example.com", Port: 587, User: "sender@example.com"}},
	)
	transport := &fakeTransport{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	exec := executor.New(c, transport, zerolog.Nop(), func() { close(done) })
	exec.Run(ctx)
	<-done

	if c.StatusValue() != model.StatusStopped {
		t.Fatalf("expected stopped status on a pre-cancelled context, got %s", c.StatusValue())
	}
}
