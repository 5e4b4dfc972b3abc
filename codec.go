package lambdacore

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"github.com/mackee/lambdacore/lambdacontext"
	"github.com/mackee/lambdacore/lambdaerr"
)

// Decoder converts raw invocation bytes into a typed Event. Decode failures
// are reported to the platform as a RequestDecoding invocation error.
type Decoder[Event any] interface {
	Decode(payload []byte) (Event, error)
}

// Encoder serializes a typed Output into buf, which is reset by the caller
// before every invocation and reused across invocations to avoid
// reallocating on the hot path. Encode failures are reported as a
// ResponseEncoding invocation error.
type Encoder[Output any] interface {
	Encode(buf *bytes.Buffer, value Output) error
	ContentType() string
}

// TypedHandlerFunc is the closure-handler adapter of spec.md §4.3(3): a thin
// wrapper around an (Event, Context) -> Output function, given the typed
// handler contract.
type TypedHandlerFunc[Event, Output any] func(ctx context.Context, event Event, lc *lambdacontext.LambdaContext) (Output, error)

// jsonCodec is the default Encoder/Decoder pair, backing NewTypedHandler
// when no codec is supplied explicitly.
type jsonCodec[T any] struct{}

func (jsonCodec[T]) Decode(payload []byte) (T, error) {
	var v T
	err := json.Unmarshal(payload, &v)
	return v, err
}

func (jsonCodec[T]) Encode(buf *bytes.Buffer, value T) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return err
	}
	// json.Encoder.Encode always appends a trailing newline; the Runtime
	// API response body should be exactly the serialized value.
	if n := buf.Len(); n > 0 && buf.Bytes()[n-1] == '\n' {
		buf.Truncate(n - 1)
	}
	return nil
}

func (jsonCodec[T]) ContentType() string { return "application/json" }

// outputBufferInitialCapacity is the default size of the reusable output
// buffer backing a typed adapter (spec.md §4.3).
const outputBufferInitialCapacity = 1 << 20 // 1 MiB

// TypedHandler wraps a typed handler function in the byte-buffer Handler
// contract: decode -> invoke -> encode. Its output buffer is owned by the
// adapter and reused across invocations via a sync.Pool-backed allocation,
// matching the buffer-reuse discipline the HTTP response buffering in this
// codebase's ancestry already follows.
type TypedHandler[Event, Output any] struct {
	decoder Decoder[Event]
	encoder Encoder[Output]
	fn      TypedHandlerFunc[Event, Output]
	bufPool *sync.Pool
}

// NewTypedHandler builds a TypedHandler using dec/enc for the wire codec.
// Pass nil for either to use the default encoding/json codec.
func NewTypedHandler[Event, Output any](fn TypedHandlerFunc[Event, Output], dec Decoder[Event], enc Encoder[Output]) *TypedHandler[Event, Output] {
	if dec == nil {
		dec = jsonCodec[Event]{}
	}
	if enc == nil {
		enc = jsonCodec[Output]{}
	}
	return &TypedHandler[Event, Output]{
		decoder: dec,
		encoder: enc,
		fn:      fn,
		bufPool: &sync.Pool{
			New: func() any {
				buf := new(bytes.Buffer)
				buf.Grow(outputBufferInitialCapacity)
				return buf
			},
		},
	}
}

// isUnit reports whether Output is the empty struct, in which case the
// adapter returns LambdaResponse.none and skips encoding entirely, per
// spec.md §4.3.
func isUnit[Output any]() bool {
	var zero Output
	_, ok := any(zero).(struct{})
	return ok
}

// Handle implements Handler.
func (h *TypedHandler[Event, Output]) Handle(ctx context.Context, payload []byte, lc *lambdacontext.LambdaContext) (LambdaResponse, error) {
	event, err := h.decoder.Decode(payload)
	if err != nil {
		return LambdaResponse{}, lambdaerr.New(lambdaerr.KindRequestDecoding, err)
	}

	out, err := h.fn(ctx, event, lc)
	if err != nil {
		return LambdaResponse{}, lambdaerr.New(lambdaerr.KindHandlerFailure, err)
	}

	if isUnit[Output]() {
		return NoResponse(), nil
	}

	buf, _ := h.bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer h.bufPool.Put(buf)

	if err := h.encoder.Encode(buf, out); err != nil {
		return LambdaResponse{}, lambdaerr.New(lambdaerr.KindResponseEncoding, err)
	}

	body := make([]byte, buf.Len())
	copy(body, buf.Bytes())
	return BufferedResponse(body, h.encoder.ContentType()), nil
}
