// Package registry implements the process-wide Campaign Registry (spec
// §4.F): admission with a concurrency cap, ID assignment, lookup/stop/
// stats, and retention GC. It is the explicit dependency handlers hold
// (spec §9 "expose it as an explicit dependency... rather than ambient
// state"), not a package-level singleton.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/unclebandit/relaycast/internal/apperrors"
	"github.com/unclebandit/relaycast/internal/executor"
	"github.com/unclebandit/relaycast/internal/model"
	"github.com/unclebandit/relaycast/internal/rotation"
	"github.com/unclebandit/relaycast/internal/smtptransport"
)

const MaxConcurrentDefault = 3

// Aggregate is the cross-campaign summary returned by Stats.
type Aggregate struct {
	TotalCampaigns   int `json:"total_campaigns"`
	ActiveCampaigns  int `json:"active_campaigns"`
	TotalSent        int `json:"total_sent"`
	TotalSuccess     int `json:"total_success"`
	TotalFailed      int `json:"total_failed"`
}

// Registry owns every live Campaign record for the process lifetime.
type Registry struct {
	mu             sync.RWMutex
	campaigns      map[string]*model.Campaign
	trackers       map[string]*rotation.Tracker
	activeCount    int
	maxConcurrent  int

	transport *smtptransport.Cache
	log       zerolog.Logger
	retention time.Duration

	wg       sync.WaitGroup
	cancels  map[string]context.CancelFunc
	gcTicker *time.Ticker
	gcDone   chan struct{}
}

// New builds a registry with its own transport cache, ready to accept
// submissions. Call StartGC to begin the hourly retention sweep and
// Shutdown to drain at process exit.
func New(maxConcurrent int, logger zerolog.Logger) *Registry {
	if maxConcurrent <= 0 {
		maxConcurrent = MaxConcurrentDefault
	}
	return &Registry{
		campaigns:     make(map[string]*model.Campaign),
		trackers:      make(map[string]*rotation.Tracker),
		maxConcurrent: maxConcurrent,
		transport:     smtptransport.New(),
		log:           logger,
		retention:     2 * time.Hour,
		cancels:       make(map[string]context.CancelFunc),
	}
}

// Submission is the validated input to Submit.
type Submission struct {
	Recipients          []string
	SubjectTemplate     string
	BodyTemplate        string
	IsHTML              bool
	DelaySeconds        *int
	UseRotation         bool
	RotationFrequency   int
	CustomSubjects      []string
	CustomSenders       []string
	CustomReplyTo       string
	MaxFailuresPerRelay int
	Relays              []model.RelayDescriptor
}

// Submit admits a new campaign if the concurrency cap allows it, assigns
// an ID, starts its executor, and returns the ID (spec §4.F).
func (r *Registry) Submit(s Submission) (string, error) {
	r.mu.Lock()
	if r.activeCount >= r.maxConcurrent {
		r.mu.Unlock()
		return "", apperrors.Capacity()
	}

	id := newCampaignID()
	c := model.NewCampaign(id, s.Recipients, s.SubjectTemplate, s.BodyTemplate, s.IsHTML,
		s.DelaySeconds, s.UseRotation, s.RotationFrequency, s.CustomSubjects, s.CustomSenders,
		s.CustomReplyTo, s.MaxFailuresPerRelay, s.Relays)

	r.campaigns[id] = c
	r.activeCount++
	ctx, cancel := context.WithCancel(context.Background())
	r.cancels[id] = cancel
	r.mu.Unlock()

	exec := executor.New(c, r.transport, r.log, func() { r.onCampaignDone(id) })

	r.mu.Lock()
	r.trackers[id] = exec.Tracker
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		exec.Run(ctx)
	}()

	r.log.Info().Str("campaign_id", id).Int("recipients", len(s.Recipients)).Msg("campaign submitted")
	return id, nil
}

func (r *Registry) onCampaignDone(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeCount > 0 {
		r.activeCount--
	}
	if cancel, ok := r.cancels[id]; ok {
		cancel()
		delete(r.cancels, id)
	}
}

// Get returns the live campaign record, or false if unknown.
func (r *Registry) Get(id string) (*model.Campaign, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.campaigns[id]
	return c, ok
}

// RotationSnapshot returns the per-relay runtime state for campaign id
// (spec §6 GET /api/campaign/:id/smtp-rotation).
func (r *Registry) RotationSnapshot(id string) ([]model.RelayStateSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.trackers[id]
	if !ok {
		return nil, false
	}
	return t.Snapshot(), true
}

// Stop requests a stop on campaign id; returns whether a transition
// occurred (false if unknown or already terminal).
func (r *Registry) Stop(id string) bool {
	c, ok := r.Get(id)
	if !ok {
		return false
	}
	return c.RequestStop()
}

// Stats aggregates totals across every live record (spec §4.F).
func (r *Registry) Stats() Aggregate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agg := Aggregate{TotalCampaigns: len(r.campaigns)}
	for _, c := range r.campaigns {
		snap := c.Snapshot()
		agg.TotalSent += snap.Sent
		agg.TotalSuccess += snap.Success
		agg.TotalFailed += snap.Failed
		if snap.Status == model.StatusRunning {
			agg.ActiveCampaigns++
		}
	}
	return agg
}

// StartGC launches the hourly retention sweep (spec §4.F). Call Shutdown
// to stop it.
func (r *Registry) StartGC(interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	r.gcTicker = time.NewTicker(interval)
	r.gcDone = make(chan struct{})
	go func() {
		for {
			select {
			case <-r.gcTicker.C:
				r.gc()
			case <-r.gcDone:
				return
			}
		}
	}()
}

// gc deletes terminal records older than the retention window.
func (r *Registry) gc() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for id, c := range r.campaigns {
		snap := c.Snapshot()
		if snap.Status.IsTerminal() && now.Sub(snap.StartTime) > r.retention {
			delete(r.campaigns, id)
			delete(r.trackers, id)
		}
	}
}

// Shutdown stops every live campaign, waits (bounded by ctx) for
// executors to drain, stops GC, and closes the transport cache (spec §5:
// "signals all Executors to stop, waits up to 30 seconds ... then
// force-exits").
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	for _, c := range r.campaigns {
		c.RequestStop()
	}
	for _, cancel := range r.cancels {
		cancel()
	}
	r.mu.Unlock()

	if r.gcTicker != nil {
		r.gcTicker.Stop()
		close(r.gcDone)
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		r.log.Warn().Msg("shutdown deadline exceeded, forcing exit")
	}

	r.transport.Shutdown()
}

// Transport exposes the shared transport cache for the /api/smtp/test
// handler, which needs to acquire a handle outside any campaign.
func (r *Registry) Transport() *smtptransport.Cache {
	return r.transport
}

func newCampaignID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	if len(suffix) > 9 {
		suffix = suffix[:9]
	}
	return fmt.Sprintf("campaign_%d_%s", time.Now().UnixMilli(), suffix)
}
