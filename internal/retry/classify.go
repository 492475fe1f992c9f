// Package retry implements the Retry Classifier (spec §4.C): deciding
// whether a send failure is transient (the recipient should be
// reattempted) or permanent (drop it).
package retry

import (
	"errors"
	"net"

	"github.com/unclebandit/relaycast/internal/apperrors"
	smtpwire "github.com/alexisbouchez/smtp.go"
)

// Verdict is the result of classifying one send failure.
type Verdict struct {
	Retryable bool
	Permanent bool
}

// retryableCodes are the apperrors.Code buckets spec §4.C calls transient.
var retryableCodes = map[apperrors.Code]bool{
	apperrors.CodeConnTimeout:  true,
	apperrors.CodeConnReset:    true,
	apperrors.CodeNameNotFound: true,
}

// Classify inspects err and returns whether the recipient should be
// retried. Authentication failures are always permanent regardless of
// code range; SMTP 4xx is retryable, 5xx is permanent.
func Classify(err error) Verdict {
	if err == nil {
		return Verdict{}
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Code == apperrors.CodeAuthFailed {
			return Verdict{Permanent: true}
		}
		if retryableCodes[appErr.Code] {
			return Verdict{Retryable: true}
		}
	}

	var smtpErr *smtpwire.SMTPError
	if errors.As(err, &smtpErr) {
		if smtpErr.Code == smtpwire.ReplyAuthFailed {
			return Verdict{Permanent: true}
		}
		if smtpErr.Code.IsTransient() {
			return Verdict{Retryable: true}
		}
		return Verdict{Permanent: true}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Verdict{Retryable: true}
	}

	return Verdict{Permanent: true}
}
