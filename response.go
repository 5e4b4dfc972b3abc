package lambdacore

import "context"

// StreamWriter is the write handle a streaming producer receives. Write may
// be called any number of times; the stream is finalized automatically once
// the producer function returns.
type StreamWriter interface {
	Write(chunk []byte) error
}

// StreamProducer emits zero or more chunks to w and returns when done. A
// non-nil error after at least one successful Write is reported to the
// platform via the response's trailer, per spec.md §9's resolved open
// question on streamed-response ack failures.
type StreamProducer func(ctx context.Context, w StreamWriter) error

// responseKind tags which of LambdaResponse's three variants is populated.
type responseKind int

const (
	responseNone responseKind = iota
	responseBuffered
	responseStreamed
)

// LambdaResponse is the tagged union a handler returns: no body, a single
// buffered payload, or a streamed producer. Construct one with
// NoResponse, BufferedResponse, or StreamedResponse — never the zero value
// directly, since its kind defaults to "none" only by coincidence of
// responseKind's iota ordering.
type LambdaResponse struct {
	kind        responseKind
	body        []byte
	contentType string
	producer    StreamProducer
}

// NoResponse reports a successful invocation with an empty body.
func NoResponse() LambdaResponse {
	return LambdaResponse{kind: responseNone}
}

// BufferedResponse reports a successful invocation with a single payload.
// contentType is sent with the response only when body is non-empty.
func BufferedResponse(body []byte, contentType string) LambdaResponse {
	return LambdaResponse{kind: responseBuffered, body: body, contentType: contentType}
}

// StreamedResponse reports a successful invocation whose body is produced
// incrementally by producer, sent using chunked transfer encoding.
func StreamedResponse(producer StreamProducer) LambdaResponse {
	return LambdaResponse{kind: responseStreamed, producer: producer}
}

// IsStreamed reports whether r was built with StreamedResponse.
func (r LambdaResponse) IsStreamed() bool { return r.kind == responseStreamed }

// Buffered returns r's body and content type. Only meaningful when r was
// built with NoResponse or BufferedResponse.
func (r LambdaResponse) Buffered() (body []byte, contentType string) {
	return r.body, r.contentType
}

// Producer returns r's stream producer. Only meaningful when IsStreamed is true.
func (r LambdaResponse) Producer() StreamProducer { return r.producer }
