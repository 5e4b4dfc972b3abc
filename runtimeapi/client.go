package runtimeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/mackee/lambdacore/lambdaerr"
)

const apiVersion = "2018-06-01"

// ErrorBody is the JSON shape POSTed to both invocation/{id}/error and
// init/error (spec.md §4.2).
type ErrorBody struct {
	ErrorMessage string                  `json:"errorMessage"`
	ErrorType    string                  `json:"errorType"`
	StackTrace   []*lambdaerr.StackFrame `json:"stackTrace,omitempty"`
}

// Client implements the four Runtime API operations over a single
// persistent HTTP/1.1 connection. It is not safe for concurrent Next calls
// racing with each other (the lifecycle machine never issues more than one
// at a time, per spec.md §5), but it is otherwise stateless beyond the
// underlying *http.Client's connection pool.
type Client struct {
	baseURL    string
	userAgent  string
	nextClient *http.Client // Timeout: 0 — GET next blocks until the platform has work.
	postClient *http.Client // requestTimeout, if configured; 0 means no timeout.
}

// NewClient builds a Client targeting http://<hostPort>/2018-06-01/runtime/.
// requestTimeout bounds only the reporting calls (response/error/init-error);
// next never times out client-side, per spec.md §4.2's connection policy.
func NewClient(hostPort string, requestTimeout time.Duration) *Client {
	return &Client{
		baseURL:    "http://" + hostPort + "/" + apiVersion + "/runtime/",
		userAgent:  "lambdacore-go/" + runtime.Version(),
		nextClient: &http.Client{Timeout: 0},
		postClient: &http.Client{Timeout: requestTimeout},
	}
}

// Next blocks until an invocation is available or ctx is canceled, and
// returns its metadata plus the raw request payload.
func (c *Client) Next(ctx context.Context) (Invocation, []byte, error) {
	url := c.baseURL + "invocation/next"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Invocation{}, nil, errors.Wrapf(err, "runtimeapi: building GET %s", url)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.nextClient.Do(req)
	if err != nil {
		return Invocation{}, nil, lambdaerr.New(lambdaerr.KindTransport, errors.Wrapf(err, "runtimeapi: GET %s", url))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Invocation{}, nil, lambdaerr.New(lambdaerr.KindProtocolViolation,
			errors.Newf("runtimeapi: GET %s: unexpected status %d", url, resp.StatusCode))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Invocation{}, nil, lambdaerr.New(lambdaerr.KindTransport, errors.Wrap(err, "runtimeapi: reading invocation payload"))
	}

	inv, missing := invocationFromHeaders(resp.Header)
	if len(missing) > 0 {
		return Invocation{}, nil, lambdaerr.New(lambdaerr.KindProtocolViolation,
			errors.Newf("runtimeapi: GET %s: missing required header(s) %v", url, missing))
	}
	return inv, payload, nil
}

// PostResult reports a successful invocation outcome. An empty body sends
// content-length: 0 and no content-type beyond that, per spec.md §8.
func (c *Client) PostResult(ctx context.Context, requestID string, body []byte, contentType string) error {
	url := c.baseURL + "invocation/" + requestID + "/response"
	headers := map[string]string{}
	if len(body) > 0 {
		headers["Content-Type"] = contentType
	}
	return c.post(ctx, url, bytes.NewReader(body), int64(len(body)), headers)
}

// PostInvocationError reports a failed invocation. The state machine
// returns to WaitingForNext afterward regardless of whether this call
// itself fails transport-wise — reporting is not retried (spec.md §4.2).
func (c *Client) PostInvocationError(ctx context.Context, requestID string, re *lambdaerr.RuntimeError) error {
	url := c.baseURL + "invocation/" + requestID + "/error"
	return c.postError(ctx, url, re)
}

// PostInitError reports a fatal initialization failure. The process must
// exit non-zero after this call succeeds or fails.
func (c *Client) PostInitError(ctx context.Context, re *lambdaerr.RuntimeError) error {
	url := c.baseURL + "init/error"
	return c.postError(ctx, url, re)
}

func (c *Client) postError(ctx context.Context, url string, re *lambdaerr.RuntimeError) error {
	body, err := json.Marshal(ErrorBody{
		ErrorMessage: re.ErrorMessage(),
		ErrorType:    re.ErrorType(),
		StackTrace:   re.StackTrace(),
	})
	if err != nil {
		return errors.Wrap(err, "runtimeapi: marshaling error body")
	}
	headers := map[string]string{
		"Content-Type":          "application/json",
		HeaderFunctionErrorType: "Unhandled",
	}
	return c.post(ctx, url, bytes.NewReader(body), int64(len(body)), headers)
}

func (c *Client) post(ctx context.Context, url string, body io.Reader, contentLength int64, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return errors.Wrapf(err, "runtimeapi: building POST %s", url)
	}
	req.ContentLength = contentLength
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.postClient.Do(req)
	if err != nil {
		return lambdaerr.New(lambdaerr.KindTransport, errors.Wrapf(err, "runtimeapi: POST %s", url))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return lambdaerr.New(lambdaerr.KindProtocolViolation,
			errors.Newf("runtimeapi: POST %s: unexpected status %d", url, resp.StatusCode))
	}
	_, err = io.Copy(io.Discard, resp.Body)
	if err != nil {
		return errors.Wrapf(err, "runtimeapi: draining POST %s response", url)
	}
	return nil
}
