package core

import (
	"fmt"
	"strings"
)

type ErrorKind string

const (
	ErrorNoCredential ErrorKind = "no_credential"
	ErrorNetwork      ErrorKind = "network"
	ErrorHTTP         ErrorKind = "http"
	ErrorDecoding     ErrorKind = "decoding"
	ErrorInvalidData  ErrorKind = "invalid_data"
)

// UsageError is the one error type a refresh cycle can surface. It marshals
// into State.LastError, so the cause chain stays local to the process while
// kind, status and message travel to every consumer.
type UsageError struct {
	Kind    ErrorKind `json:"kind"`
	Status  int       `json:"status,omitempty"` // HTTP status, only for ErrorHTTP
	Message string    `json:"message"`
	cause   error
}

func (e *UsageError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *UsageError) Unwrap() error { return e.cause }

func NoCredentialError(source TokenSource, cause error) *UsageError {
	return &UsageError{
		Kind:    ErrorNoCredential,
		Message: fmt.Sprintf("no %s credential available", source),
		cause:   cause,
	}
}

func NetworkError(cause error) *UsageError {
	return &UsageError{Kind: ErrorNetwork, Message: cause.Error(), cause: cause}
}

func HTTPError(status int, body string) *UsageError {
	return &UsageError{Kind: ErrorHTTP, Status: status, Message: truncateBody(body)}
}

func DecodingError(cause error) *UsageError {
	return &UsageError{Kind: ErrorDecoding, Message: cause.Error(), cause: cause}
}

func InvalidDataError(message string) *UsageError {
	return &UsageError{Kind: ErrorInvalidData, Message: message}
}

func truncateBody(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > 512 {
		return body[:512] + "…"
	}
	return body
}
