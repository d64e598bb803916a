package trawl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// FailureKind classifies why a unit failed.
type FailureKind int

const (
	// FailureNone marks a successful outcome
	FailureNone FailureKind = iota
	// FailureNetwork covers connection, name resolution, read and decode errors:
	// anything that prevented a usable response
	FailureNetwork
	// FailureProtocol covers responses with a status outside the 2xx range
	FailureProtocol
	// FailureTimeout covers deadlines exceeded while fetching
	FailureTimeout
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureNetwork:
		return "network"
	case FailureProtocol:
		return "protocol"
	case FailureTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

// StatusError is reported when a response arrives with a status outside the
// 2xx range and status checking is enabled
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// Outcome is the result of fetching a single target. Every submitted target
// produces exactly one Outcome, whether the fetch succeeded or not.
//
// Status holds the HTTP status code (0 when no response was received) and
// Bytes the decoded payload size. ExecutionID is a ULID assigned to the unit
// for log and report correlation. Err is nil on success.
type Outcome struct {
	Target      string
	ExecutionID string
	Status      int
	Bytes       int64
	Duration    time.Duration
	Err         error
}

// Failed reports whether the fetch failed
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Kind classifies the outcome's error
func (o Outcome) Kind() FailureKind {
	return classify(o.Err)
}

// String renders the outcome as a single report line, one of two shapes:
//
//	<target> page is <N> bytes
//	<target> generated an exception: <description>
func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s generated an exception: %s", o.Target, o.Err)
	}
	return fmt.Sprintf("%s page is %d bytes", o.Target, o.Bytes)
}

func classify(err error) FailureKind {
	if err == nil {
		return FailureNone
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return FailureProtocol
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}

	// Connection, resolution, read and decode errors all land here,
	// as does batch cancellation.
	return FailureNetwork
}
