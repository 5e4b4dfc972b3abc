// Package runtimeapi implements the wire protocol against the Lambda
// Runtime API: polling for the next invocation, posting results and
// errors, and the streamed-response variant of the response endpoint.
package runtimeapi

import (
	"net/http"
	"strconv"
)

// Header names the Runtime API sets on the response to GET .../invocation/next.
const (
	HeaderAWSRequestID         = "Lambda-Runtime-Aws-Request-Id"
	HeaderDeadlineMS           = "Lambda-Runtime-Deadline-Ms"
	HeaderInvokedFunctionARN   = "Lambda-Runtime-Invoked-Function-Arn"
	HeaderTraceID              = "Lambda-Runtime-Trace-Id"
	HeaderCognitoIdentity      = "Lambda-Runtime-Cognito-Identity"
	HeaderClientContext        = "Lambda-Runtime-Client-Context"
	HeaderFunctionResponseMode = "Lambda-Runtime-Function-Response-Mode"

	HeaderFunctionErrorType = "Lambda-Runtime-Function-Error-Type"
	TrailerFunctionErrorBody = "Lambda-Runtime-Function-Error-Body" //nolint:misspell
)

// Invocation is the immutable per-request metadata delivered by the
// Runtime API (spec.md §3). CognitoIdentity and ClientContext are optional
// and empty when absent; TraceID is carried verbatim, unparsed.
type Invocation struct {
	RequestID           string
	DeadlineEpochMillis  int64
	InvokedFunctionARN  string
	TraceID             string
	CognitoIdentity     string
	ClientContext       string
}

// invocationFromHeaders extracts an Invocation from the headers of a
// successful GET .../invocation/next response. The three required headers
// (request id, deadline, function arn) must be present; their absence is a
// protocol violation the caller surfaces as such.
func invocationFromHeaders(h http.Header) (Invocation, []string) {
	var missing []string
	inv := Invocation{
		RequestID:          h.Get(HeaderAWSRequestID),
		InvokedFunctionARN: h.Get(HeaderInvokedFunctionARN),
		TraceID:            h.Get(HeaderTraceID),
		CognitoIdentity:    h.Get(HeaderCognitoIdentity),
		ClientContext:      h.Get(HeaderClientContext),
	}
	if inv.RequestID == "" {
		missing = append(missing, HeaderAWSRequestID)
	}
	if inv.InvokedFunctionARN == "" {
		missing = append(missing, HeaderInvokedFunctionARN)
	}

	deadlineStr := h.Get(HeaderDeadlineMS)
	if deadlineStr == "" {
		missing = append(missing, HeaderDeadlineMS)
	} else if ms, err := strconv.ParseInt(deadlineStr, 10, 64); err == nil {
		inv.DeadlineEpochMillis = ms
	} else {
		missing = append(missing, HeaderDeadlineMS)
	}

	return inv, missing
}
