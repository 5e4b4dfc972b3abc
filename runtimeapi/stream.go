package runtimeapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/mackee/lambdacore/lambdaerr"
)

// PostStreamingResult posts a chunked-transfer response body produced by a
// streaming handler. body is read until EOF (success) or a non-EOF error
// from the producer, which is reported via trailers on this same response
// since the status line and headers are already committed by the time any
// byte has been flushed (spec.md §9, third open question).
func (c *Client) PostStreamingResult(ctx context.Context, requestID string, body io.ReadCloser) error {
	url := c.baseURL + "invocation/" + requestID + "/response"
	tr := newTrailerCapturingReader(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, tr)
	if err != nil {
		return errors.Wrapf(err, "runtimeapi: building streaming POST %s", url)
	}
	req.Trailer = tr.trailer
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Content-Type", "application/vnd.awslambda.http-integration-response")
	req.Header.Set(HeaderFunctionResponseMode, "streaming")
	req.TransferEncoding = []string{"chunked"}

	resp, err := c.postClient.Do(req)
	if err != nil {
		return lambdaerr.New(lambdaerr.KindTransport, errors.Wrapf(err, "runtimeapi: streaming POST %s", url))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return lambdaerr.New(lambdaerr.KindProtocolViolation,
			errors.Newf("runtimeapi: streaming POST %s: unexpected status %d", url, resp.StatusCode))
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return errors.Wrapf(err, "runtimeapi: draining streaming POST %s response", url)
	}
	return tr.producerErr
}

// trailerCapturingReader wraps a streamed response body so that, if the
// producer fails after at least one byte has already been written to the
// wire, the failure is surfaced as HTTP trailers instead of a fresh POST
// (which is no longer possible once the response has started).
type trailerCapturingReader struct {
	src         io.ReadCloser
	trailer     http.Header
	producerErr error
}

func newTrailerCapturingReader(r io.ReadCloser) *trailerCapturingReader {
	return &trailerCapturingReader{src: r, trailer: http.Header{}}
}

func (r *trailerCapturingReader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if err != nil && err != io.EOF {
		r.producerErr = lambdaerr.New(lambdaerr.KindHandlerFailure, err)
		re := r.producerErr.(*lambdaerr.RuntimeError)
		body, marshalErr := json.Marshal(ErrorBody{
			ErrorMessage: re.ErrorMessage(),
			ErrorType:    re.ErrorType(),
		})
		if marshalErr == nil {
			r.trailer.Set(HeaderFunctionErrorType, "Unhandled")
			r.trailer.Set(TrailerFunctionErrorBody, base64.StdEncoding.EncodeToString(body))
		}
		return n, io.EOF
	}
	return n, err
}

func (r *trailerCapturingReader) Close() error { return r.src.Close() }
