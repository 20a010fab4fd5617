package feed

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// ErrorClass tags a provider failure so the pager can decide between retry,
// graceful stop, and abort without inspecting message strings.
type ErrorClass int

const (
	// ClassFatal aborts the run immediately (bad request, bad credentials).
	ClassFatal ErrorClass = iota
	// ClassTransient is retried with backoff (rate limits, server errors).
	ClassTransient
	// ClassSoftLimit marks a provider-reported history boundary. Adapters are
	// expected to convert it into a terminal-success page; it never surfaces
	// from FetchPage as an error.
	ClassSoftLimit
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassSoftLimit:
		return "soft_limit"
	default:
		return "fatal"
	}
}

// ProviderError reports a non-2xx provider response.
type ProviderError struct {
	Provider string
	Status   int
	Body     string
	Class    ErrorClass
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: http status %d (%s): %s", e.Provider, e.Status, e.Class, e.Body)
}

// ClassifyStatus maps an HTTP status onto the default error class. Adapters
// layer provider-specific rules (such as soft-limit statuses) on top.
func ClassifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return ClassTransient
	case status >= 500:
		return ClassTransient
	default:
		return ClassFatal
	}
}

// MalformedRecordError rejects a single candle without aborting the run.
type MalformedRecordError struct {
	Provider string
	Reason   string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("%s: malformed candle: %s", e.Provider, e.Reason)
}

// StoreWriteError wraps a failed batch flush. Prior flushes remain valid.
type StoreWriteError struct {
	Collection string
	Writes     int
	Err        error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("store write: %d docs to %s: %v", e.Writes, e.Collection, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// ErrNoQuoteAvailable means every candidate across every fallback endpoint was
// rejected by the quote selector.
var ErrNoQuoteAvailable = errors.New("feed: no canonical quote available")

// classify decides how the pager treats an adapter error.
func classify(err error) ErrorClass {
	if err == nil {
		return ClassFatal
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Class
	}
	// Transport failures, including per-request timeouts, are retryable. A
	// canceled run context also surfaces here wrapped in url.Error; the retry
	// loop's own context check turns that into a prompt stop instead of a
	// backoff cycle.
	var ue *url.Error
	if errors.As(err, &ue) {
		return ClassTransient
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ClassTransient
	}
	return ClassFatal
}
