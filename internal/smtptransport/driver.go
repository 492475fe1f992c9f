// Package smtptransport is the concrete driver behind the Transport Cache
// (spec §4.A). It speaks the actual SMTP wire protocol through
// github.com/alexisbouchez/smtp.go's smtpclient package so the core
// packages (rotation, executor) never import an SMTP library directly.
package smtptransport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	smtpwire "github.com/alexisbouchez/smtp.go"
	"github.com/alexisbouchez/smtp.go/smtpclient"
	"github.com/unclebandit/relaycast/internal/apperrors"
	"github.com/unclebandit/relaycast/internal/model"
)

// Timeout triple from spec §4.A.
const (
	ConnectTimeout  = 30 * time.Second
	GreetingTimeout = 15 * time.Second
	SocketTimeout   = 30 * time.Second
)

// Message is the envelope+content the Transport Cache sends on behalf of
// the executor.
type Message struct {
	From      string
	ReplyTo   string
	To        string
	Subject   string
	Body      string
	IsHTML    bool
	Headers   map[string]string
}

// SendInfo is returned on a successful send.
type SendInfo struct {
	Duration time.Duration
}

// Handle is the narrow capability the core depends on (spec §3 Transport
// Handle). It never exposes the underlying SMTP client type.
type Handle interface {
	Send(ctx context.Context, msg Message) (SendInfo, error)
	Close() error
}

type clientHandle struct {
	mu     sync.Mutex // serializes sends: SMTP is single-threaded per connection
	client *smtpclient.Client
	relay  model.RelayDescriptor
}

// dial opens and verifies a connection to relay: TLS mode from port,
// connect/greeting/socket timeouts, and an AUTH handshake that fails
// fast on rejection (spec §4.A's "handshake-level verification step").
func dial(ctx context.Context, relay model.RelayDescriptor) (*smtpclient.Client, error) {
	addr := net.JoinHostPort(relay.Host, strconv.Itoa(relay.Port))
	tlsConfig := &tls.Config{InsecureSkipVerify: true, ServerName: relay.Host}

	dialCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	var client *smtpclient.Client
	var err error

	switch {
	case relay.ImplicitTLS():
		dialer := &net.Dialer{Timeout: ConnectTimeout}
		var nc net.Conn
		nc, err = tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
		if err != nil {
			return nil, classifyDialError(err)
		}
		_ = nc.SetDeadline(time.Now().Add(GreetingTimeout))
		client, err = smtpclient.NewClient(nc, "localhost")
		if err != nil {
			nc.Close()
			return nil, classifyDialError(err)
		}
	default:
		client, err = smtpclient.Dial(dialCtx, addr,
			smtpclient.WithTimeout(ConnectTimeout),
			smtpclient.WithLocalName("localhost"),
		)
		if err != nil {
			return nil, classifyDialError(err)
		}
		if relay.RequiresSTARTTLS() || client.Extensions().Has(smtpwire.ExtSTARTTLS) {
			stCtx, stCancel := context.WithTimeout(ctx, GreetingTimeout)
			sterr := client.StartTLS(stCtx, tlsConfig)
			stCancel()
			if sterr != nil {
				client.Close()
				return nil, apperrors.New(apperrors.CodeTLSHandshake, "", sterr)
			}
		}
	}

	authCtx, authCancel := context.WithTimeout(ctx, SocketTimeout)
	defer authCancel()
	mech := smtpwire.PlainAuth("", relay.User, relay.Secret)
	if err := client.Auth(authCtx, mech); err != nil {
		client.Close()
		return nil, apperrors.New(apperrors.CodeAuthFailed, "", err)
	}

	return client, nil
}

// dialHandle wraps dial's concrete *smtpclient.Client into the narrow
// Handle interface. It is the Cache's default dial func; tests swap in
// a stub here instead of touching the SMTP client directly.
func dialHandle(ctx context.Context, relay model.RelayDescriptor) (Handle, error) {
	client, err := dial(ctx, relay)
	if err != nil {
		return nil, err
	}
	return &clientHandle{client: client, relay: relay}, nil
}

// classifyDialError maps low-level dial failures onto the apperrors
// taxonomy so the Retry Classifier can key off Code alone.
func classifyDialError(err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return apperrors.New(apperrors.CodeConnTimeout, "", err)
	}
	if opErr, ok := err.(*net.OpError); ok {
		if dnsErr, ok := opErr.Err.(*net.DNSError); ok && dnsErr.IsNotFound {
			return apperrors.New(apperrors.CodeNameNotFound, "", err)
		}
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return apperrors.New(apperrors.CodeConnRefused, "", err)
		}
		if errors.Is(opErr.Err, syscall.ECONNRESET) {
			return apperrors.New(apperrors.CodeConnReset, "", err)
		}
		// Any other OS-level socket failure (EHOSTUNREACH, ENETUNREACH, ...)
		// that isn't one of the above named cases.
		return apperrors.New(apperrors.CodeSocketError, "", err)
	}
	return apperrors.New(apperrors.CodeConnRefused, "", err)
}

// Send performs MAIL FROM / RCPT TO / DATA for one recipient, serialized
// against any other concurrent sender of this handle.
func (h *clientHandle) Send(ctx context.Context, msg Message) (SendInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	start := time.Now()
	sendCtx, cancel := context.WithTimeout(ctx, SocketTimeout)
	defer cancel()

	raw := buildRawMessage(msg)
	if err := h.client.SendMail(sendCtx, msg.From, []string{msg.To}, raw); err != nil {
		return SendInfo{}, translateSendError(err)
	}
	return SendInfo{Duration: time.Since(start)}, nil
}

func (h *clientHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.client.Close()
}

func translateSendError(err error) error {
	if smtpErr, ok := err.(*smtpwire.SMTPError); ok {
		if smtpErr.Code == smtpwire.ReplyAuthFailed {
			return apperrors.New(apperrors.CodeAuthFailed, "", smtpErr)
		}
		return apperrors.New(apperrors.CodeProtocol, "", smtpErr)
	}
	return classifyDialError(err)
}

func buildRawMessage(msg Message) io.Reader {
	contentType := "text/plain; charset=UTF-8"
	if msg.IsHTML {
		contentType = "text/html; charset=UTF-8"
	}

	headers := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: %s\r\n",
		msg.From, msg.To, msg.Subject, contentType,
	)
	if msg.ReplyTo != "" {
		headers += fmt.Sprintf("Reply-To: %s\r\n", msg.ReplyTo)
	}
	for k, v := range msg.Headers {
		headers += fmt.Sprintf("%s: %s\r\n", k, v)
	}
	headers += "\r\n"

	return strings.NewReader(headers + msg.Body)
}
