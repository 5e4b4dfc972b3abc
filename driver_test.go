package lambdacore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mackee/lambdacore/lambdacontext"
	"github.com/mackee/lambdacore/runtimeapi"
)

func addr(ts *httptest.Server) string {
	return strings.TrimPrefix(ts.URL, "http://")
}

// TestDriver_BoundedExecution drives two invocations end to end (scenario 4
// of spec.md §8): the fake Runtime API serves exactly two "next" responses
// and fails the test on a third GET, which the driver must never issue
// because it stops polling after maxTimes invocations.
func TestDriver_BoundedExecution(t *testing.T) {
	var nextCount int32
	var responseCount int32

	mux := http.NewServeMux()
	mux.HandleFunc("/2018-06-01/runtime/invocation/next", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&nextCount, 1)
		if n > 2 {
			t.Errorf("unexpected third GET next call")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		reqID := "req-" + strconv.Itoa(int(n))
		w.Header().Set(runtimeapi.HeaderAWSRequestID, reqID)
		w.Header().Set(runtimeapi.HeaderDeadlineMS, strconv.FormatInt(time.Now().Add(time.Second).UnixMilli(), 10))
		w.Header().Set(runtimeapi.HeaderInvokedFunctionARN, "arn:aws:lambda:us-east-1:1:function:fn")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"n":` + strconv.Itoa(int(n)) + `}`))
	})
	mux.HandleFunc("/2018-06-01/runtime/invocation/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/response") {
			atomic.AddInt32(&responseCount, 1)
			w.WriteHeader(http.StatusAccepted)
		}
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	cfg := Config{RuntimeAPI: addr(ts), MaxTimes: 2}
	d := NewDriver(cfg, func(ctx context.Context) (Handler, error) {
		return NewTypedHandler(func(ctx context.Context, in squareInput, lc *lambdacontext.LambdaContext) (squareOutput, error) {
			return squareOutput{Result: in.N * in.N}, nil
		}, nil, nil), nil
	}, nil)

	err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&nextCount))
	assert.Equal(t, int32(2), atomic.LoadInt32(&responseCount))
}

// TestDriver_InitFailure covers scenario 3: a failing handler constructor
// posts to init/error and GET next is never called.
func TestDriver_InitFailure(t *testing.T) {
	var nextCalled, initErrorCalled int32
	mux := http.NewServeMux()
	mux.HandleFunc("/2018-06-01/runtime/invocation/next", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&nextCalled, 1)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/2018-06-01/runtime/init/error", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&initErrorCalled, 1)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"errorType":"HandlerInitFailure"`)
		assert.Contains(t, string(body), "DBUnreachable")
		w.WriteHeader(http.StatusAccepted)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	cfg := Config{RuntimeAPI: addr(ts)}
	d := NewDriver(cfg, func(ctx context.Context) (Handler, error) {
		return nil, assertErr("DBUnreachable")
	}, nil)

	err := d.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&nextCalled))
	assert.Equal(t, int32(1), atomic.LoadInt32(&initErrorCalled))
}

// TestDriver_StreamingResponse covers scenario 5: a streamed handler's
// chunks arrive concatenated at the Runtime API.
func TestDriver_StreamingResponse(t *testing.T) {
	served := make(chan struct{})
	mux := http.NewServeMux()
	var calls int32
	mux.HandleFunc("/2018-06-01/runtime/invocation/next", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) > 1 {
			<-served // not reached with MaxTimes 1; waits until the response was served
			return
		}
		w.Header().Set(runtimeapi.HeaderAWSRequestID, "xyz")
		w.Header().Set(runtimeapi.HeaderDeadlineMS, strconv.FormatInt(time.Now().Add(time.Second).UnixMilli(), 10))
		w.Header().Set(runtimeapi.HeaderInvokedFunctionARN, "arn:aws:lambda:us-east-1:1:function:fn")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/2018-06-01/runtime/invocation/xyz/response", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "streaming", r.Header.Get(runtimeapi.HeaderFunctionResponseMode))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(body))
		w.WriteHeader(http.StatusAccepted)
		close(served)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	cfg := Config{RuntimeAPI: addr(ts), MaxTimes: 1}
	d := NewDriver(cfg, func(ctx context.Context) (Handler, error) {
		return HandlerFunc(func(ctx context.Context, payload []byte, lc *lambdacontext.LambdaContext) (LambdaResponse, error) {
			return StreamedResponse(func(ctx context.Context, w StreamWriter) error {
				if err := w.Write([]byte("hel")); err != nil {
					return err
				}
				return w.Write([]byte("lo"))
			}), nil
		}), nil
	}, nil)

	require.NoError(t, d.Run(context.Background()))
}
