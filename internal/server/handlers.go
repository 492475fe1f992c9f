package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/unclebandit/relaycast/internal/apperrors"
	"github.com/unclebandit/relaycast/internal/config"
	"github.com/unclebandit/relaycast/internal/httpx"
	"github.com/unclebandit/relaycast/internal/model"
	"github.com/unclebandit/relaycast/internal/registry"
	"github.com/unclebandit/relaycast/internal/smtptransport"
	"github.com/unclebandit/relaycast/internal/validate"
)

// Handlers holds the dependencies every endpoint needs: the registry
// (spec §9 wants this as an explicit dependency, not ambient state),
// config for dev-mode error detail, a logger, and process start time
// for uptime reporting.
type Handlers struct {
	Registry *registry.Registry
	Config   config.Config
	Log      zerolog.Logger
	started  time.Time
}

// Root serves a minimal service descriptor at GET /.
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"service": "relaycast",
		"version": "1.0.0",
	})
}

// Health answers GET /api/health with liveness, uptime, Go runtime
// memory stats, and campaign counts (spec §6, SPEC_FULL.md §4.L).
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	agg := h.Registry.Stats()

	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": time.Since(h.started).Seconds(),
		"memory": map[string]interface{}{
			"alloc_bytes":       mem.Alloc,
			"total_alloc_bytes": mem.TotalAlloc,
			"sys_bytes":         mem.Sys,
			"num_gc":            mem.NumGC,
			"goroutines":        runtime.NumGoroutine(),
		},
		"campaigns": map[string]interface{}{
			"total":  agg.TotalCampaigns,
			"active": agg.ActiveCampaigns,
		},
	})
}

// Stats answers GET /api/stats with cross-campaign totals (spec §4.F).
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	agg := h.Registry.Stats()
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"total_campaigns":  agg.TotalCampaigns,
		"active_campaigns": agg.ActiveCampaigns,
		"total_sent":       agg.TotalSent,
		"total_success":    agg.TotalSuccess,
		"total_failed":     agg.TotalFailed,
	})
}

// smtpTestBody mirrors validate.SMTPTestRequest for JSON decoding.
type smtpTestBody struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	User        string `json:"user"`
	Secret      string `json:"secret"`
	SendTest    bool   `json:"sendTest"`
	TestAddress string `json:"testAddress"`
}

// SMTPTest answers POST /api/smtp/test: dial and authenticate a relay
// outside any campaign, optionally sending a probe message (spec §4.A,
// §6).
func (h *Handlers) SMTPTest(w http.ResponseWriter, r *http.Request) {
	var body smtpTestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "malformed JSON body", h.Config.IsDevelopment())
		return
	}

	req := validate.SMTPTestRequest{
		Host: body.Host, Port: body.Port, User: body.User, Secret: body.Secret,
		SendTest: body.SendTest, TestAddress: body.TestAddress,
	}
	if errs := validate.ValidateSMTPTestRequest(req); len(errs) > 0 {
		httpx.WriteValidationErrors(w, errs)
		return
	}

	relay := model.RelayDescriptor{
		ID: "smtp-test", Name: "smtp-test", Host: body.Host, Port: body.Port,
		User: body.User, Secret: body.Secret,
	}

	handle, err := h.Registry.Transport().Acquire(r.Context(), relay)
	if err != nil {
		h.writeTransportError(w, err)
		return
	}

	if !body.SendTest {
		httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"verified": true})
		return
	}

	to := body.TestAddress
	if to == "" {
		to = body.User
	}
	msg := smtptransport.Message{
		From: body.User, To: to,
		Subject: "relaycast SMTP test",
		Body:    "This is a connectivity test message from relaycast.",
	}
	info, err := handle.Send(r.Context(), msg)
	if err != nil {
		h.writeTransportError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"verified":    true,
		"sent":        true,
		"duration_ms": info.Duration.Milliseconds(),
	})
}

func (h *Handlers) writeTransportError(w http.ResponseWriter, err error) {
	if appErr, ok := err.(*apperrors.AppError); ok {
		httpx.WriteError(w, http.StatusBadGateway, appErr.Message, h.Config.IsDevelopment())
		return
	}
	httpx.WriteError(w, http.StatusInternalServerError, err.Error(), h.Config.IsDevelopment())
}

// relayBody mirrors validate.RelaySubmission for JSON decoding.
type relayBody struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	User       string `json:"user"`
	Secret     string `json:"secret"`
	ReplyTo    string `json:"replyTo"`
	DailyLimit int    `json:"dailyLimit"`
}

// campaignStartBody mirrors validate.CampaignSubmission for JSON decoding.
type campaignStartBody struct {
	SMTPServer          *relayBody  `json:"smtpServer"`
	SMTPServers         []relayBody `json:"smtpServers"`
	UseSMTPRotation     bool        `json:"useSmtpRotation"`
	RotationFrequency   int         `json:"rotationFrequency"`
	Recipients          []string    `json:"recipients"`
	Subject             string      `json:"subject"`
	Content             string      `json:"content"`
	IsHTML              bool        `json:"isHtml"`
	DelaySeconds        *int        `json:"delaySeconds"`
	CustomSubjects      []string    `json:"customSubjects"`
	CustomSenders       []string    `json:"customSenders"`
	CustomReplyTo       string      `json:"customReplyTo"`
	MaxFailuresPerRelay int         `json:"maxFailuresPerRelay"`
}

func toRelaySubmission(b relayBody) validate.RelaySubmission {
	return validate.RelaySubmission{
		ID: b.ID, Name: b.Name, Host: b.Host, Port: b.Port,
		User: b.User, Secret: b.Secret, ReplyTo: b.ReplyTo,
	}
}

func toRelayDescriptor(b relayBody) model.RelayDescriptor {
	return model.RelayDescriptor{
		ID: b.ID, Name: b.Name, Host: b.Host, Port: b.Port,
		User: b.User, Secret: b.Secret, ReplyTo: b.ReplyTo, DailyLimit: b.DailyLimit,
	}
}

// CampaignStart answers POST /api/campaign/start: validates the
// submission, builds relay descriptors, and hands off to the registry
// (spec §4.F, §6).
func (h *Handlers) CampaignStart(w http.ResponseWriter, r *http.Request) {
	var body campaignStartBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "malformed JSON body", h.Config.IsDevelopment())
		return
	}

	sub := validate.CampaignSubmission{
		UseSMTPRotation:     body.UseSMTPRotation,
		RotationFrequency:   body.RotationFrequency,
		Recipients:          body.Recipients,
		Subject:             body.Subject,
		Content:             body.Content,
		IsHTML:              body.IsHTML,
		DelaySeconds:        body.DelaySeconds,
		CustomSubjects:      body.CustomSubjects,
		CustomSenders:       body.CustomSenders,
		CustomReplyTo:       body.CustomReplyTo,
		MaxFailuresPerRelay: body.MaxFailuresPerRelay,
	}
	if body.SMTPServer != nil {
		rs := toRelaySubmission(*body.SMTPServer)
		sub.SMTPServer = &rs
	}
	for _, s := range body.SMTPServers {
		sub.SMTPServers = append(sub.SMTPServers, toRelaySubmission(s))
	}

	if errs := validate.ValidateCampaignSubmission(sub); len(errs) > 0 {
		httpx.WriteValidationErrors(w, errs)
		return
	}

	var relays []model.RelayDescriptor
	if body.SMTPServer != nil {
		relays = append(relays, toRelayDescriptor(*body.SMTPServer))
	}
	for _, s := range body.SMTPServers {
		relays = append(relays, toRelayDescriptor(s))
	}

	id, err := h.Registry.Submit(registry.Submission{
		Recipients:          body.Recipients,
		SubjectTemplate:     body.Subject,
		BodyTemplate:        body.Content,
		IsHTML:              body.IsHTML,
		DelaySeconds:        body.DelaySeconds,
		UseRotation:         body.UseSMTPRotation,
		RotationFrequency:   body.RotationFrequency,
		CustomSubjects:      body.CustomSubjects,
		CustomSenders:       body.CustomSenders,
		CustomReplyTo:       body.CustomReplyTo,
		MaxFailuresPerRelay: body.MaxFailuresPerRelay,
		Relays:              relays,
	})
	if err != nil {
		httpx.WriteError(w, httpx.StatusForError(err), err.Error(), h.Config.IsDevelopment())
		return
	}

	httpx.WriteJSON(w, http.StatusAccepted, map[string]interface{}{"campaign_id": id})
}

// CampaignStatus answers GET /api/campaign/:id/status (spec §4.F).
func (h *Handlers) CampaignStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, ok := h.Registry.Get(id)
	if !ok {
		err := apperrors.CampaignNotFound(id)
		httpx.WriteError(w, httpx.StatusForError(err), err.Message, h.Config.IsDevelopment())
		return
	}
	snap := c.Snapshot()
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"campaign": snap})
}

// CampaignRotation answers GET /api/campaign/:id/smtp-rotation (spec §6).
func (h *Handlers) CampaignRotation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snaps, ok := h.Registry.RotationSnapshot(id)
	if !ok {
		err := apperrors.CampaignNotFound(id)
		httpx.WriteError(w, httpx.StatusForError(err), err.Message, h.Config.IsDevelopment())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"relays": snaps})
}

// CampaignStop answers POST /api/campaign/:id/stop (spec §4.E).
func (h *Handlers) CampaignStop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.Registry.Get(id); !ok {
		err := apperrors.CampaignNotFound(id)
		httpx.WriteError(w, httpx.StatusForError(err), err.Message, h.Config.IsDevelopment())
		return
	}
	stopped := h.Registry.Stop(id)
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"stopped": stopped})
}

// NotFound answers any unmatched route with a 404 JSON envelope.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(w, http.StatusNotFound, "not found", h.Config.IsDevelopment())
}
