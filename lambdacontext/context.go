// Package lambdacontext bundles per-invocation request metadata, a
// request-scoped logger, and deadline arithmetic behind the context.Context
// handlers already thread through, plus a scoped collector for background
// work a handler kicks off but does not wait on (spec.md §5).
package lambdacontext

import (
	"context"
	"time"

	"github.com/mackee/lambdacore/lambdalog"
	"github.com/mackee/lambdacore/xray"
)

// ClientApplication is the optional mobile-SDK client metadata carried on
// the lambda-runtime-client-context header.
type ClientApplication struct {
	InstallationID string
	AppTitle       string
	AppVersionCode string
	AppPackageName string
}

// ClientContext is the decoded lambda-runtime-client-context header,
// present only for mobile SDK invocations.
type ClientContext struct {
	Client      ClientApplication
	Environment map[string]string
	Custom      map[string]string
}

// CognitoIdentity is the decoded lambda-runtime-cognito-identity header,
// present only for requests authenticated through Amazon Cognito.
type CognitoIdentity struct {
	IdentityID     string
	IdentityPoolID string
}

// LambdaContext is the per-invocation metadata a handler can read off
// context.Context via FromContext. Deadline is also set on the
// context.Context itself, so context.WithTimeout-style cancellation works
// without consulting this struct.
type LambdaContext struct {
	RequestID          string
	InvokedFunctionARN string
	Deadline           time.Time
	TraceID            xray.TraceID
	RawTraceID         string
	ClientContext      ClientContext
	Identity           CognitoIdentity

	Logger lambdalog.Logger
	Tasks  *TaskCollector
}

// AddBackgroundTask schedules fn as fire-and-forget work on the
// LambdaContext attached to ctx, tracked by its TaskCollector so the driver
// can drain it before the next invocation begins. A no-op if ctx carries no
// LambdaContext or no TaskCollector.
func AddBackgroundTask(ctx context.Context, fn func(context.Context)) {
	lc, ok := FromContext(ctx)
	if !ok || lc.Tasks == nil {
		return
	}
	lc.Tasks.Go(fn)
}

// RemainingTime is how long the invocation has left before the Runtime API
// considers it timed out. Never negative; callers budgeting work against it
// should still leave headroom for reporting the result.
func (lc *LambdaContext) RemainingTime(now time.Time) time.Duration {
	d := lc.Deadline.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// NewSegmentID generates a fresh X-Ray segment id for a handler emitting its
// own subsegments under this invocation's trace.
func (lc *LambdaContext) NewSegmentID() (xray.SegmentID, error) {
	return xray.GenerateSegmentID()
}

type contextKey struct{}

// NewContext attaches lc to parent, also applying lc.Deadline via
// context.WithDeadline so ctx.Done() fires at the same instant
// RemainingTime reaches zero.
func NewContext(parent context.Context, lc *LambdaContext) (context.Context, context.CancelFunc) {
	ctx := context.WithValue(parent, contextKey{}, lc)
	return context.WithDeadline(ctx, lc.Deadline)
}

// FromContext retrieves the LambdaContext attached by NewContext, if any.
func FromContext(ctx context.Context) (*LambdaContext, bool) {
	lc, ok := ctx.Value(contextKey{}).(*LambdaContext)
	return lc, ok
}

// Logger returns the request-scoped logger attached to ctx, or
// lambdalog.Discard if ctx carries no LambdaContext.
func Logger(ctx context.Context) lambdalog.Logger {
	lc, ok := FromContext(ctx)
	if !ok || lc.Logger == nil {
		return lambdalog.Discard
	}
	return lc.Logger
}
