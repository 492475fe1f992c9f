// Package validate implements structural validation of campaign
// submissions and SMTP test requests (spec §4.G), grounded on
// github.com/go-playground/validator/v10 the way
// shuliakovsky-email-checker validates its request structs, extended
// with the custom recipient-regex and cross-field rules the teacher's
// hand-rolled checks never had.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var recipientRE = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("recipient", func(fl validator.FieldLevel) bool {
		return recipientRE.MatchString(fl.Field().String())
	})
	return v
}

// RelaySubmission is one relay entry inside a campaign submission.
type RelaySubmission struct {
	ID      string `validate:"required"`
	Name    string
	Host    string `validate:"required"`
	Port    int    `validate:"required"`
	User    string `validate:"required"`
	Secret  string `validate:"required"`
	ReplyTo string
}

// CampaignSubmission is the raw input to POST /api/campaign/start.
type CampaignSubmission struct {
	SMTPServer        *RelaySubmission
	SMTPServers       []RelaySubmission
	UseSMTPRotation   bool
	RotationFrequency int
	Recipients        []string `validate:"required,min=1,dive,recipient"`
	Subject           string
	Content           string
	IsHTML            bool
	DelaySeconds      *int
	CustomSubjects    []string
	CustomSenders     []string
	CustomReplyTo     string
	MaxFailuresPerRelay int
}

// SMTPTestRequest is the raw input to POST /api/smtp/test.
type SMTPTestRequest struct {
	Host        string `validate:"required"`
	Port        int    `validate:"required"`
	User        string `validate:"required"`
	Secret      string `validate:"required"`
	SendTest    bool
	TestAddress string
}

// ValidateCampaignSubmission returns every accumulated validation error
// (not just the first) per spec §4.G.
func ValidateCampaignSubmission(s CampaignSubmission) []string {
	var errs []string

	if s.SMTPServer == nil && len(s.SMTPServers) == 0 {
		errs = append(errs, "smtpServer or smtpServers is required")
	}
	relays := s.SMTPServers
	if s.SMTPServer != nil {
		relays = append([]RelaySubmission{*s.SMTPServer}, relays...)
	}
	seen := map[string]bool{}
	for i, r := range relays {
		if err := validate.Struct(r); err != nil {
			errs = append(errs, fieldErrors(fmt.Sprintf("smtpServers[%d]", i), err)...)
		}
		if r.ID != "" {
			if seen[r.ID] {
				errs = append(errs, fmt.Sprintf("smtpServers[%d]: duplicate relay id %q", i, r.ID))
			}
			seen[r.ID] = true
		}
	}

	if len(s.Recipients) == 0 {
		errs = append(errs, "recipients must be a non-empty list")
	} else {
		for i, r := range s.Recipients {
			if !recipientRE.MatchString(r) {
				errs = append(errs, fmt.Sprintf("recipients[%d]: invalid email address %q", i, r))
			}
		}
	}

	if strings.TrimSpace(s.Subject) == "" {
		errs = append(errs, "subject must not be empty")
	}
	if strings.TrimSpace(s.Content) == "" {
		errs = append(errs, "content must not be empty")
	}

	return errs
}

// ValidateSMTPTestRequest returns every accumulated validation error.
func ValidateSMTPTestRequest(r SMTPTestRequest) []string {
	if err := validate.Struct(r); err == nil {
		return nil
	} else {
		return fieldErrors("", err)
	}
}

func fieldErrors(prefix string, err error) []string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		if prefix != "" {
			name = prefix + "." + name
		}
		out = append(out, fmt.Sprintf("%s: %s", name, fe.Tag()))
	}
	return out
}
