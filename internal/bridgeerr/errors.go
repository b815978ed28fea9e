// Package bridgeerr classifies the error kinds spec.md §7 names, so HTTP
// handlers can map a wrapped error to the right status code without
// string-matching.
package bridgeerr

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories from spec.md §7.
type Kind string

const (
	KindInputInvalid          Kind = "input_invalid"
	KindAuthFailed            Kind = "auth_failed"
	KindCredentialMintFailed  Kind = "credential_mint_failed"
	KindModelHandshakeFailed  Kind = "model_handshake_failed"
	KindModelMidCallError     Kind = "model_mid_call_error"
	KindCarrierMessageMalformed Kind = "carrier_message_malformed"
	KindBufferOverflow        Kind = "buffer_overflow"
	KindExternalStoreUnavailable Kind = "external_store_unavailable"
	KindUnexpected            Kind = "unexpected"
)

// Error wraps an underlying error with a Kind and optional upstream
// payload (e.g. a credential-mint failure's upstream JSON body).
type Error struct {
	Kind     Kind
	Upstream []byte
	Status   int
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// WithUpstream attaches the upstream response body and status code, for
// errors that should forward the provider's payload to the caller.
func (e *Error) WithUpstream(status int, body []byte) *Error {
	e.Status = status
	e.Upstream = body
	return e
}

// As extracts a *Error from err, if any wraps one.
func As(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
