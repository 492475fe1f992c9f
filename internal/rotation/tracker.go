// Package rotation implements the per-campaign Rotation Tracker (spec
// §4.D): relay health bookkeeping and next-relay selection. A tracker is
// private to a single campaign/executor — spec §5 notes no external
// mutation — so it needs no internal locking of its own.
package rotation

import (
	"sort"
	"time"

	"github.com/unclebandit/relaycast/internal/model"
)

// CooldownWindow is how long a deactivated relay sits out before being
// reconsidered (spec §4.D step 1).
const CooldownWindow = 30 * time.Minute

// Tracker holds the ordered relay fleet for one campaign.
type Tracker struct {
	states       []*model.RelayState
	currentIndex int
	now          func() time.Time
}

// New builds a tracker from a campaign's relay descriptors, all starting
// active with zero counters (spec §3 Relay Runtime State invariants).
func New(relays []model.RelayDescriptor) *Tracker {
	states := make([]*model.RelayState, len(relays))
	for i, r := range relays {
		states[i] = &model.RelayState{Relay: r, Active: true}
	}
	return &Tracker{states: states, now: time.Now}
}

// Select picks the next relay per spec §4.D: expire cooldowns, filter to
// active-and-under-daily-limit, then sort by (failure_count asc,
// sent_count asc, response_time asc) with ties broken by original list
// order. Returns false if no candidate remains.
func (t *Tracker) Select() (model.RelayDescriptor, bool) {
	now := t.now()

	for _, s := range t.states {
		if !s.Active && s.LastFailure != nil && now.Sub(*s.LastFailure) >= CooldownWindow {
			s.Active = true
			s.FailureCount = 0
		}
	}

	type candidate struct {
		state *model.RelayState
		order int
	}
	var candidates []candidate
	for i, s := range t.states {
		if s.Active && s.SentCount < s.Relay.EffectiveDailyLimit() {
			candidates = append(candidates, candidate{state: s, order: i})
		}
	}
	if len(candidates) == 0 {
		return model.RelayDescriptor{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].state, candidates[j].state
		if a.FailureCount != b.FailureCount {
			return a.FailureCount < b.FailureCount
		}
		if a.SentCount != b.SentCount {
			return a.SentCount < b.SentCount
		}
		if a.ResponseTime != b.ResponseTime {
			return a.ResponseTime < b.ResponseTime
		}
		return candidates[i].order < candidates[j].order
	})

	best := candidates[0]
	t.currentIndex = best.order
	return best.state.Relay, true
}

// MarkSuccess records a successful send: sent_count increments, failure
// count decays by one (bounded at zero), last_used is stamped.
func (t *Tracker) MarkSuccess(relayID string) {
	s := t.find(relayID)
	if s == nil {
		return
	}
	now := t.now()
	s.SentCount++
	s.LastUsed = &now
	if s.FailureCount > 0 {
		s.FailureCount--
	}
}

// MarkFailure records a failed send attempt: failure_count increments,
// last_failure is stamped, and the relay is deactivated once
// failure_count reaches maxFailures.
func (t *Tracker) MarkFailure(relayID string, maxFailures int) {
	s := t.find(relayID)
	if s == nil {
		return
	}
	now := t.now()
	s.FailureCount++
	s.LastFailure = &now
	if s.FailureCount >= maxFailures {
		s.Active = false
	}
}

// RecordLatency feeds the optional response-time tiebreak (spec §9 open
// question, resolved in SPEC_FULL.md: the executor measures per-send
// latency and reports it here).
func (t *Tracker) RecordLatency(relayID string, d time.Duration) {
	if s := t.find(relayID); s != nil {
		s.ResponseTime = d
	}
}

// Snapshot returns a point-in-time, immutable view of every relay's
// runtime state for status reporting (spec §4.D).
func (t *Tracker) Snapshot() []model.RelayStateSnapshot {
	out := make([]model.RelayStateSnapshot, len(t.states))
	for i, s := range t.states {
		out[i] = model.RelayStateSnapshot{
			RelayID:      s.Relay.ID,
			RelayName:    s.Relay.Name,
			Active:       s.Active,
			FailureCount: s.FailureCount,
			SentCount:    s.SentCount,
			DailyLimit:   s.Relay.EffectiveDailyLimit(),
			LastUsed:     s.LastUsed,
			LastFailure:  s.LastFailure,
			ResponseTime: s.ResponseTime,
		}
	}
	return out
}

func (t *Tracker) find(relayID string) *model.RelayState {
	for _, s := range t.states {
		if s.Relay.ID == relayID {
			return s
		}
	}
	return nil
}
