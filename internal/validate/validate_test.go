package validate_test

import (
	"testing"

	"github.com/unclebandit/relaycast/internal/validate"
)

func TestValidateCampaignSubmissionAccumulatesAllErrors(t *testing.T) {
	sub := validate.CampaignSubmission{
		Recipients: []string{"not-an-email"},
		Subject:    "",
		Content:    "",
	}

	errs := validate.ValidateCampaignSubmission(sub)
	if len(errs) < 3 {
		t.Fatalf("expected at least 3 accumulated errors (relay, subject, content, recipient), got %d: %v", len(errs), errs)
	}
}

func TestValidateCampaignSubmissionAcceptsValidInput(t *testing.T) {
	sub := validate.CampaignSubmission{
		SMTPServer: &validate.RelaySubmission{
			ID: "r1", Host: "smtp.example.com", Port: 587, User: "a@example.com", Secret: "s3cret",
		},
		Recipients: []string{"jane@example.com"},
		Subject:    "Hello",
		Content:    "Body",
	}

	if errs := validate.ValidateCampaignSubmission(sub); len(errs) != 0 {
		t.Errorf("expected no errors for a valid submission, got %v", errs)
	}
}

func TestValidateCampaignSubmissionRejectsDuplicateRelayIDs(t *testing.T) {
	sub := validate.CampaignSubmission{
		SMTPServers: []validate.RelaySubmission{
			{ID: "r1", Host: "a.example.com", Port: 587, User: "a@example.com", Secret: "s"},
			{ID: "r1", Host: "b.example.com", Port: 587, User: "b@example.com", Secret: "s"},
		},
		Recipients: []string{"jane@example.com"},
		Subject:    "Hello",
		Content:    "Body",
	}

	errs := validate.ValidateCampaignSubmission(sub)
	found := false
	for _, e := range errs {
		if e != "" && containsDuplicateNote(e) {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a duplicate relay id error, got %v", errs)
	}
}

func containsDuplicateNote(s string) bool {
	for i := 0; i+len("duplicate") <= len(s); i++ {
		if s[i:i+len("duplicate")] == "duplicate" {
			return true
		}
	}
	return false
}

func TestValidateSMTPTestRequestRequiresFields(t *testing.T) {
	errs := validate.ValidateSMTPTestRequest(validate.SMTPTestRequest{})
	if len(errs) == 0 {
		t.Errorf("expected validation errors for an empty request")
	}
}
