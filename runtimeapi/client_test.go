package runtimeapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mackee/lambdacore/lambdaerr"
)

func address(ts *httptest.Server) string {
	return strings.TrimPrefix(ts.URL, "http://")
}

func TestClient_Next(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2018-06-01/runtime/invocation/next", r.URL.Path)
		w.Header().Set(HeaderAWSRequestID, "request-id")
		w.Header().Set(HeaderDeadlineMS, strconv.FormatInt(time.Now().Add(time.Second).UnixMilli(), 10))
		w.Header().Set(HeaderInvokedFunctionARN, "arn:aws:lambda:us-east-1:123:function:fn")
		w.Header().Set(HeaderTraceID, "1-5759e988-bd862e3fe1be46a994272793")
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte(`{"key":"value"}`))
		require.NoError(t, err)
	}))
	defer ts.Close()

	c := NewClient(address(ts), 0)
	inv, payload, err := c.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "request-id", inv.RequestID)
	assert.Equal(t, "arn:aws:lambda:us-east-1:123:function:fn", inv.InvokedFunctionARN)
	assert.Equal(t, "1-5759e988-bd862e3fe1be46a994272793", inv.TraceID)
	assert.Equal(t, `{"key":"value"}`, string(payload))
}

func TestClient_Next_MissingRequiredHeaderIsProtocolViolation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// no headers at all
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := NewClient(address(ts), 0)
	_, _, err := c.Next(context.Background())
	require.Error(t, err)
	var re *lambdaerr.RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, lambdaerr.KindProtocolViolation, re.Kind())
}

func TestClient_PostResult(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2018-06-01/runtime/invocation/abc-1/response", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, int64(12), r.ContentLength)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, `{"result":9}`, string(body))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	c := NewClient(address(ts), 0)
	err := c.PostResult(context.Background(), "abc-1", []byte(`{"result":9}`), "application/json")
	require.NoError(t, err)
}

func TestClient_PostResult_EmptyBodyHasNoContentType(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, int64(0), r.ContentLength)
		assert.Equal(t, "", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	c := NewClient(address(ts), 0)
	err := c.PostResult(context.Background(), "abc-1", nil, "application/json")
	require.NoError(t, err)
}

func TestClient_PostInvocationError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2018-06-01/runtime/invocation/abc-2/error", r.URL.Path)
		assert.Equal(t, "Unhandled", r.Header.Get(HeaderFunctionErrorType))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"errorType":"RequestDecoding"`)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	c := NewClient(address(ts), 0)
	re := lambdaerr.New(lambdaerr.KindRequestDecoding, assertErr{"bad json"})
	err := c.PostInvocationError(context.Background(), "abc-2", re)
	require.NoError(t, err)
}

func TestClient_PostInitError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2018-06-01/runtime/init/error", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"errorType":"HandlerInitFailure"`)
		assert.Contains(t, string(body), "DBUnreachable")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	c := NewClient(address(ts), 0)
	re := lambdaerr.New(lambdaerr.KindHandlerInitFailure, assertErr{"DBUnreachable"})
	err := c.PostInitError(context.Background(), re)
	require.NoError(t, err)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
