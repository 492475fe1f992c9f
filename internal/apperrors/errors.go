// Package apperrors is the typed error taxonomy shared by every core
// component: validation, transport, authentication, protocol, exhaustion
// and capacity errors, each carrying a machine-readable code alongside a
// human-readable message (see spec §7).
package apperrors

import "fmt"

// Code is the machine-readable error classification surfaced to callers
// alongside the human-readable message.
type Code string

const (
	CodeValidation      Code = "validation"
	CodeConnRefused     Code = "connection_refused"
	CodeConnTimeout     Code = "connection_timeout"
	CodeConnReset       Code = "connection_reset"
	CodeNameNotFound    Code = "name_not_found"
	CodeSocketError     Code = "socket_error"
	CodeTLSHandshake    Code = "tls_handshake"
	CodeAuthFailed      Code = "authentication_failed"
	CodeProtocol        Code = "protocol_error"
	CodeExhaustion      Code = "no_active_relay"
	CodeCapacity        Code = "concurrent_campaign_limit"
	CodeCampaignNotFound Code = "campaign_not_found"
)

// humanMessage maps a machine code to the operator-facing string spec §7
// requires ("connection refused", "server not found", ...).
var humanMessage = map[Code]string{
	CodeConnRefused:  "connection refused",
	CodeConnTimeout:  "timeout",
	CodeConnReset:    "connection reset",
	CodeNameNotFound: "server not found",
	CodeSocketError:  "socket error",
	CodeTLSHandshake: "TLS handshake failed",
	CodeAuthFailed:   "authentication failed",
}

// AppError is the concrete error type used throughout the engine. It
// always carries a Code for programmatic dispatch (retry classification,
// HTTP status mapping) and a human message safe to surface to operators.
type AppError struct {
	Code    Code
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// New builds an AppError, filling Message from the taxonomy's
// human-readable text when msg is empty.
func New(code Code, msg string, cause error) *AppError {
	if msg == "" {
		msg = humanMessage[code]
	}
	return &AppError{Code: code, Message: msg, Err: cause}
}

// CampaignNotFound mirrors the teacher's ErrCampaignNotFound sentinel,
// folded into the shared taxonomy.
func CampaignNotFound(id string) *AppError {
	return New(CodeCampaignNotFound, fmt.Sprintf("campaign %q not found", id), nil)
}

// Validation wraps a list of accumulated validation failures into one
// error whose Message joins them; handlers read Details for the full
// per-field list.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d error(s)", len(e.Details))
}

func NewValidationError(details []string) *ValidationError {
	return &ValidationError{Details: details}
}

// Capacity is returned by Registry.Submit when max_concurrent is reached.
func Capacity() *AppError {
	return New(CodeCapacity, "maximum concurrent campaigns reached", nil)
}

// Exhaustion is returned by the Executor when rotation has no candidate
// relay left (fatal to the campaign).
func Exhaustion() *AppError {
	return New(CodeExhaustion, "no active relay available", nil)
}
