// Package lambdacore wires the runtime API client (package runtimeapi), the
// lifecycle state machine (package lifecycle), the invocation context
// (package lambdacontext), and the handler/codec pipeline below into the
// top-level driver a deployed function embeds.
package lambdacore

import (
	"context"

	"github.com/mackee/lambdacore/lambdacontext"
)

// Handler is the minimal handler contract (spec.md §4.3): given the raw
// invocation payload and its context, produce a LambdaResponse or fail.
// Typed handlers are obtained by wrapping one in a codec via NewTypedHandler.
type Handler interface {
	Handle(ctx context.Context, payload []byte, lc *lambdacontext.LambdaContext) (LambdaResponse, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, payload []byte, lc *lambdacontext.LambdaContext) (LambdaResponse, error)

func (f HandlerFunc) Handle(ctx context.Context, payload []byte, lc *lambdacontext.LambdaContext) (LambdaResponse, error) {
	return f(ctx, payload, lc)
}

// HandlerInitFunc constructs a Handler once, at cold start. A non-nil error
// is reported as a fatal HandlerInitFailure (spec.md §4.4's Starting phase).
type HandlerInitFunc func(ctx context.Context) (Handler, error)
