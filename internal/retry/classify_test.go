package retry_test

import (
	"errors"
	"testing"

	smtpwire "github.com/alexisbouchez/smtp.go"
	"github.com/unclebandit/relaycast/internal/apperrors"
	"github.com/unclebandit/relaycast/internal/retry"
)

func TestClassifyConnectionTimeoutIsRetryable(t *testing.T) {
	v := retry.Classify(apperrors.New(apperrors.CodeConnTimeout, "", nil))
	if !v.Retryable || v.Permanent {
		t.Errorf("expected connection timeout to be retryable, got %+v", v)
	}
}

func TestClassifyAuthFailureIsAlwaysPermanent(t *testing.T) {
	v := retry.Classify(apperrors.New(apperrors.CodeAuthFailed, "", nil))
	if v.Retryable || !v.Permanent {
		t.Errorf("expected auth failure to be permanent, got %+v", v)
	}
}

func TestClassifySMTP4xxIsRetryable(t *testing.T) {
	err := &smtpwire.SMTPError{Code: 450, Message: "mailbox busy"}
	v := retry.Classify(err)
	if !v.Retryable {
		t.Errorf("expected SMTP 4xx to be retryable, got %+v", v)
	}
}

func TestClassifySMTP5xxIsPermanent(t *testing.T) {
	err := &smtpwire.SMTPError{Code: 550, Message: "mailbox unavailable"}
	v := retry.Classify(err)
	if v.Retryable || !v.Permanent {
		t.Errorf("expected SMTP 5xx to be permanent, got %+v", v)
	}
}

func TestClassifyUnknownErrorDefaultsPermanent(t *testing.T) {
	v := retry.Classify(errors.New("boom"))
	if v.Retryable || !v.Permanent {
		t.Errorf("expected unclassified error to default to permanent, got %+v", v)
	}
}
