// Package classify implements the closed error taxonomy that routes tool
// failures to the correct recovery path: surface-to-user, retry, repair, or
// report-as-bug.
package classify

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is one of the closed set of classified error kinds.
type Kind string

const (
	KindAuth           Kind = "auth"
	KindPermission     Kind = "permission"
	KindNetwork        Kind = "network"
	KindLogic          Kind = "logic"
	KindInternal       Kind = "internal"
	KindWorkflowPaused Kind = "workflow_paused"
)

// Error is the closed sum type described in spec section 3.4. It implements
// the standard error interface and Unwrap so callers can use errors.As/Is.
type Error struct {
	Kind       Kind
	Message    string
	Cause      error
	Source     string // "Namespace.Name" of the tool that raised it
	StatusCode int    // set only for network
	ServiceID  string // set only for auth, optionally
	AccountID  string // set only for auth, optionally
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Record is the plain, serialisable form of a classified error.
type Record struct {
	Type       string `json:"type"`
	Name       string `json:"name"`
	Message    string `json:"message"`
	Source     string `json:"source,omitempty"`
	Stack      string `json:"stack,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	ServiceID  string `json:"service_id,omitempty"`
	AccountID  string `json:"account_id,omitempty"`
}

// ToRecord serialises a classified error for transport to the host caller.
func (e *Error) ToRecord(stack string) Record {
	return Record{
		Type:       "ClassifiedError",
		Name:       string(e.Kind),
		Message:    e.Message,
		Source:     e.Source,
		Stack:      stack,
		StatusCode: e.StatusCode,
		ServiceID:  e.ServiceID,
		AccountID:  e.AccountID,
	}
}

// New builds a classified error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a classified error that remembers its cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithSource re-wraps an error, preserving its kind, prefixing the message,
// and setting source when not already set. This implements the propagation
// rule in spec section 7: a classified error thrown inside a tool is
// re-wrapped preserving its kind.
func WithSource(err *Error, source string) *Error {
	out := *err
	if out.Source == "" {
		out.Source = source
	}
	if !strings.HasPrefix(out.Message, "Failed at ") {
		out.Message = fmt.Sprintf("Failed at %s: %s", source, out.Message)
	}
	return &out
}

// As attempts to recover a *Error from a generic error chain.
func As(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// FSCode is the subset of POSIX errno-like codes classify_fs recognises.
type FSCode string

const (
	FSEACCES       FSCode = "EACCES"
	FSEPERM        FSCode = "EPERM"
	FSENOENT       FSCode = "ENOENT"
	FSENOTDIR      FSCode = "ENOTDIR"
	FSEISDIR       FSCode = "EISDIR"
	FSECONNREFUSED FSCode = "ECONNREFUSED"
	FSETIMEDOUT    FSCode = "ETIMEDOUT"
	FSECONNRESET   FSCode = "ECONNRESET"
)

// ClassifyHTTP implements classify_http from spec section 4.5: a total,
// deterministic function from an HTTP status code to a classified error.
func ClassifyHTTP(status int, message string, source string) *Error {
	switch {
	case status == 401:
		return &Error{Kind: KindAuth, Message: message, Source: source}
	case status == 403:
		return &Error{Kind: KindPermission, Message: message, Source: source}
	case status >= 500 || status == 408 || status == 429:
		return &Error{Kind: KindNetwork, Message: message, Source: source, StatusCode: status}
	default:
		return &Error{Kind: KindLogic, Message: message, Source: source}
	}
}

// ClassifyFS implements classify_fs from spec section 4.5.
func ClassifyFS(code FSCode, message string, source string) *Error {
	switch code {
	case FSEACCES, FSEPERM:
		return &Error{Kind: KindPermission, Message: message, Source: source}
	case FSENOENT, FSENOTDIR, FSEISDIR:
		return &Error{Kind: KindLogic, Message: message, Source: source}
	case FSECONNREFUSED, FSETIMEDOUT, FSECONNRESET:
		return &Error{Kind: KindNetwork, Message: message, Source: source}
	default:
		return &Error{Kind: KindLogic, Message: message, Source: source}
	}
}

var (
	authKeywords = []string{"unauthorized", "oauth", "token expired", "invalid credentials"}
	permKeywords = []string{"forbidden", "access denied", "permission denied"}
	netKeywords  = []string{"timeout", "connection", "service unavailable", "gateway timeout",
		"econnrefused", "etimedout", "econnreset"}
)

// ClassifyGeneric implements classify_generic from spec section 4.5: a
// lowercased-keyword heuristic over a free-text error message.
func ClassifyGeneric(err error, source string) *Error {
	msg := err.Error()
	lower := strings.ToLower(msg)

	for _, kw := range authKeywords {
		if strings.Contains(lower, kw) {
			return &Error{Kind: KindAuth, Message: msg, Source: source, Cause: err}
		}
	}
	for _, kw := range permKeywords {
		if strings.Contains(lower, kw) {
			return &Error{Kind: KindPermission, Message: msg, Source: source, Cause: err}
		}
	}
	for _, kw := range netKeywords {
		if strings.Contains(lower, kw) {
			return &Error{Kind: KindNetwork, Message: msg, Source: source, Cause: err}
		}
	}
	return &Error{Kind: KindLogic, Message: msg, Source: source, Cause: err}
}

// NotionErrorCode is the closed enum of Notion API error codes recognised by
// classify_provider.
type NotionErrorCode string

const (
	NotionUnauthorized            NotionErrorCode = "unauthorized"
	NotionInvalidToken            NotionErrorCode = "invalid_token"
	NotionRestrictedResource      NotionErrorCode = "restricted_resource"
	NotionObjectNotFound          NotionErrorCode = "object_not_found"
	NotionValidationError         NotionErrorCode = "validation_error"
	NotionRateLimited             NotionErrorCode = "rate_limited"
	NotionInternalServerError     NotionErrorCode = "internal_server_error"
	NotionServiceUnavailable      NotionErrorCode = "service_unavailable"
	NotionDatabaseConnUnavailable NotionErrorCode = "database_connection_unavailable"
)

// ProviderShape carries the caller-supplied facts classify_provider needs to
// dispatch. At most one of GoogleOAuthShaped or NotionShaped should be set
// (neither, for a generic provider); NotionCode is read only when
// NotionShaped is set.
type ProviderShape struct {
	HTTPStatus        int
	Message           string
	GoogleOAuthShaped bool
	NotionCode        NotionErrorCode
	NotionShaped      bool
}

// ClassifyProvider implements classify_provider from spec section 4.5.
func ClassifyProvider(shape ProviderShape, source, serviceID, accountID string) *Error {
	lower := strings.ToLower(shape.Message)

	if shape.GoogleOAuthShaped {
		if strings.Contains(lower, "invalid_grant") || strings.Contains(lower, "token has been expired or revoked") {
			return &Error{Kind: KindAuth, Message: shape.Message, Source: source, ServiceID: serviceID, AccountID: accountID}
		}
		return httpFallback(shape, source)
	}

	if shape.NotionShaped {
		switch shape.NotionCode {
		case NotionUnauthorized, NotionInvalidToken:
			return &Error{Kind: KindAuth, Message: shape.Message, Source: source, ServiceID: serviceID, AccountID: accountID}
		case NotionRestrictedResource:
			return &Error{Kind: KindPermission, Message: shape.Message, Source: source}
		case NotionObjectNotFound, NotionValidationError:
			return &Error{Kind: KindLogic, Message: shape.Message, Source: source}
		case NotionRateLimited:
			return &Error{Kind: KindNetwork, Message: shape.Message, Source: source, StatusCode: 429}
		case NotionInternalServerError, NotionServiceUnavailable, NotionDatabaseConnUnavailable:
			return &Error{Kind: KindNetwork, Message: shape.Message, Source: source, StatusCode: 500}
		default:
			return httpFallback(shape, source)
		}
	}

	return &Error{Kind: KindInternal, Message: shape.Message, Source: source}
}

func httpFallback(shape ProviderShape, source string) *Error {
	if shape.HTTPStatus != 0 {
		return ClassifyHTTP(shape.HTTPStatus, shape.Message, source)
	}
	return &Error{Kind: KindInternal, Message: shape.Message, Source: source}
}

// ErrnoLike is implemented by errors that carry a filesystem-style code,
// e.g. wrapped *fs.PathError or a driver-specific errno wrapper.
type ErrnoLike interface {
	error
	ErrnoCode() string
}

// EnsureClassified implements ensure_classified from spec section 4.5: a
// pass-through for already-classified errors, routing raw errors through
// ClassifyFS when they carry an errno-shaped code, else ClassifyGeneric.
func EnsureClassified(err error, source string) *Error {
	if err == nil {
		return nil
	}
	if ce, ok := As(err); ok {
		return ce
	}
	if el, ok := err.(ErrnoLike); ok {
		return ClassifyFS(FSCode(el.ErrnoCode()), err.Error(), source)
	}
	return ClassifyGeneric(err, source)
}
