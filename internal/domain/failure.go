package domain

import (
	"errors"
	"fmt"
)

// FailureCategory groups failure kinds by where they originate.
type FailureCategory string

const (
	CategoryNetwork     FailureCategory = "network"
	CategoryParse       FailureCategory = "parse"
	CategoryConfig      FailureCategory = "config"
	CategoryPersistence FailureCategory = "persistence"
)

// FailureKind is the concrete failure classification.
type FailureKind string

const (
	KindTimeout             FailureKind = "timeout"
	KindConnectionError     FailureKind = "connection_error"
	KindHTTPStatus          FailureKind = "http_status"
	KindInvalidURL          FailureKind = "invalid_url"
	KindBodyTooLarge        FailureKind = "body_too_large"
	KindMalformedXML        FailureKind = "malformed_xml"
	KindMalformedHTML       FailureKind = "malformed_html"
	KindMissingSelectors    FailureKind = "missing_selectors"
	KindInvalidSourceConfig FailureKind = "invalid_source_config"
	KindConnectionLost      FailureKind = "connection_lost"
	KindWriteRejected       FailureKind = "write_rejected"
)

// Category derives the failure category from the kind.
func (k FailureKind) Category() FailureCategory {
	switch k {
	case KindTimeout, KindConnectionError, KindHTTPStatus, KindInvalidURL, KindBodyTooLarge:
		return CategoryNetwork
	case KindMalformedXML, KindMalformedHTML:
		return CategoryParse
	case KindMissingSelectors, KindInvalidSourceConfig:
		return CategoryConfig
	default:
		return CategoryPersistence
	}
}

// Failure is a classified, task-local error.
type Failure struct {
	Kind       FailureKind
	URL        string
	StatusCode int
	Retryable  bool
	// Exhausted is set when a retryable failure ran out of attempts.
	Exhausted bool
	Attempts  int
	Err       error
}

func (f *Failure) Error() string {
	msg := string(f.Kind)
	if f.Kind == KindHTTPStatus && f.StatusCode != 0 {
		msg = fmt.Sprintf("%s %d", msg, f.StatusCode)
	}
	if f.URL != "" {
		msg = fmt.Sprintf("%s: %s", msg, f.URL)
	}
	if f.Attempts > 1 {
		msg = fmt.Sprintf("%s (after %d attempts)", msg, f.Attempts)
	}
	if f.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, f.Err)
	}
	return msg
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Category of the failure.
func (f *Failure) Category() FailureCategory {
	return f.Kind.Category()
}

// NewConfigFailure wraps a source setup error.
func NewConfigFailure(kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

// NewParseFailure wraps an extraction error for url.
func NewParseFailure(kind FailureKind, url string, err error) *Failure {
	return &Failure{Kind: kind, URL: url, Err: err}
}

// AsFailure extracts a *Failure from err, if any.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsRetryable reports whether err is a failure that may succeed when repeated.
func IsRetryable(err error) bool {
	f, ok := AsFailure(err)
	return ok && f.Retryable
}
