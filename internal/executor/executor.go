// Package executor drives one campaign from pending to a terminal state
// (spec §4.E): pacing loop over recipients, relay selection, transport
// acquisition, personalization, send, retry bookkeeping.
package executor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/relaycast/internal/model"
	"github.com/unclebandit/relaycast/internal/personalize"
	"github.com/unclebandit/relaycast/internal/retry"
	"github.com/unclebandit/relaycast/internal/rotation"
	"github.com/unclebandit/relaycast/internal/smtptransport"
)

// MaxRetryDrain is the deliberate ceiling on the post-main retry pass
// (spec §4.E, §9): thundering-herd protection against a flaky relay.
const MaxRetryDrain = 5

// RetryPassDelay is the fixed inter-send delay during the retry pass.
const RetryPassDelay = 2 * time.Second

// Transport is the capability the executor needs from the shared cache.
type Transport interface {
	Acquire(ctx context.Context, relay model.RelayDescriptor) (smtptransport.Handle, error)
}

// Executor drives a single campaign's send loop.
type Executor struct {
	Campaign  *model.Campaign
	Tracker   *rotation.Tracker
	Transport Transport
	Log       zerolog.Logger

	// OnDone is invoked once when the campaign reaches a terminal state
	// (the registry uses it to decrement the active-campaign counter).
	OnDone func()

	rng *rand.Rand
}

// New builds an executor for campaign c with a fresh rotation tracker
// seeded from the campaign's relay list.
func New(c *model.Campaign, transport Transport, logger zerolog.Logger, onDone func()) *Executor {
	return &Executor{
		Campaign:  c,
		Tracker:   rotation.New(c.Relays),
		Transport: transport,
		Log:       logger,
		OnDone:    onDone,
		rng:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}
}

// Run executes the campaign to completion (spec §4.E state machine).
// ctx cancellation is cooperative, same as an external Stop(): the
// executor exits at its next loop-head or post-delay check, never
// interrupting an in-flight send.
func (e *Executor) Run(ctx context.Context) {
	c := e.Campaign

	c.WithLock(func() {
		c.Status = model.StatusRunning
	})

	defer func() {
		if e.OnDone != nil {
			e.OnDone()
		}
	}()

	for i, recipient := range c.Recipients {
		if e.shouldStop(ctx) {
			break
		}
		e.sendOne(ctx, i, recipient, false)
		if e.shouldStop(ctx) {
			break
		}
		if i < len(c.Recipients)-1 {
			if !e.sleep(ctx, time.Duration(c.DelaySeconds)*time.Second) {
				break
			}
		}
	}

	if c.StatusValue() == model.StatusRunning {
		e.runRetryPass(ctx)
	}

	c.WithLock(func() {
		if c.Status == model.StatusRunning {
			c.Status = model.StatusCompleted
		}
		c.AppendLog(fmt.Sprintf("campaign %s terminated with status=%s sent=%d success=%d failed=%d",
			c.ID, c.Status, c.Sent, c.Success, c.Failed))
		c.CurrentRecipient = "<terminated>"
	})
	e.Log.Info().Str("campaign_id", c.ID).Str("status", string(c.Status)).Msg("campaign terminated")
}

func (e *Executor) shouldStop(ctx context.Context) bool {
	if ctx.Err() != nil {
		e.Campaign.RequestStop()
		return true
	}
	return e.Campaign.StatusValue() != model.StatusRunning
}

// sleep waits for d, returning false early if the campaign is stopped or
// the context is cancelled mid-sleep.
func (e *Executor) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return e.Campaign.StatusValue() == model.StatusRunning
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return e.Campaign.StatusValue() == model.StatusRunning
	case <-ctx.Done():
		e.Campaign.RequestStop()
		return false
	}
}

// sendOne performs one attempt at delivering to recipient (spec §4.E
// steps 2-7), either from the main loop (isRetry=false) or the retry
// pass (isRetry=true, which never re-enqueues on repeated failure).
func (e *Executor) sendOne(ctx context.Context, index int, recipient string, isRetry bool) {
	c := e.Campaign

	c.WithLock(func() {
		c.CurrentRecipient = recipient
	})

	relay, ok := e.Tracker.Select()
	if !ok {
		c.WithLock(func() {
			c.Status = model.StatusError
			c.AppendLog(fmt.Sprintf("fatal: no active relay available for recipient %s", recipient))
		})
		e.Log.Error().Str("campaign_id", c.ID).Msg("no active relay available")
		return
	}

	handle, err := e.Transport.Acquire(ctx, relay)
	if err != nil {
		e.Tracker.MarkFailure(relay.ID, c.MaxFailuresPerRelay)
		e.recordFailure(recipient, relay, err, isRetry)
		return
	}

	msg := personalize.Personalize(c, recipient, relay, e.rng)
	replyTo := c.CustomReplyTo
	if replyTo == "" {
		replyTo = relay.ReplyTo
	}
	if replyTo == "" {
		replyTo = relay.User
	}

	envelope := smtptransport.Message{
		From:    fmt.Sprintf("%s <%s>", msg.FromName, relay.User),
		ReplyTo: replyTo,
		To:      recipient,
		Subject: msg.Subject,
		Body:    msg.Body,
		IsHTML:  c.IsHTML,
		Headers: map[string]string{
			"X-Campaign-ID":     c.ID,
			"X-Mailer":          "relaycast",
			"List-Unsubscribe":  fmt.Sprintf("<%s>", unsubscribeHeaderURL(recipient)),
		},
	}

	info, sendErr := handle.Send(ctx, envelope)
	if sendErr != nil {
		e.Tracker.MarkFailure(relay.ID, c.MaxFailuresPerRelay)
		e.recordFailure(recipient, relay, sendErr, isRetry)
		return
	}

	e.Tracker.RecordLatency(relay.ID, info.Duration)
	e.Tracker.MarkSuccess(relay.ID)

	c.WithLock(func() {
		c.Success++
		c.Sent++
		c.AppendLog(fmt.Sprintf("sent to %s via relay %s", recipient, relay.Name))
	})
}

func (e *Executor) recordFailure(recipient string, relay model.RelayDescriptor, err error, isRetry bool) {
	c := e.Campaign
	verdict := retry.Classify(err)

	c.WithLock(func() {
		c.Failed++
		c.Sent++
		c.AppendError(model.ErrorRecord{
			Recipient: recipient,
			Message:   err.Error(),
			RelayName: relay.Name,
			Timestamp: time.Now(),
		})
		c.AppendLog(fmt.Sprintf("failed to send to %s via relay %s: %v", recipient, relay.Name, err))
		if !isRetry && verdict.Retryable {
			c.RetryQueue = append(c.RetryQueue, recipient)
		}
	})
}

// runRetryPass drains up to MaxRetryDrain entries from the retry queue,
// each reattempted once with a fixed inter-send delay (spec §4.E).
func (e *Executor) runRetryPass(ctx context.Context) {
	c := e.Campaign

	var batch []string
	c.WithLock(func() {
		n := MaxRetryDrain
		if len(c.RetryQueue) < n {
			n = len(c.RetryQueue)
		}
		batch = append(batch, c.RetryQueue[:n]...)
		c.RetryQueue = c.RetryQueue[n:]
	})

	for i, recipient := range batch {
		if e.shouldStop(ctx) {
			return
		}
		e.sendOne(ctx, i, recipient, true)
		if i < len(batch)-1 {
			if !e.sleep(ctx, RetryPassDelay) {
				return
			}
		}
	}
}

func unsubscribeHeaderURL(recipient string) string {
	q := url.Values{}
	q.Set("email", recipient)
	return fmt.Sprintf("%s?%s", personalize.UnsubscribeBaseURL, q.Encode())
}
