package runtimeapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chunkProducer struct {
	chunks [][]byte
	failAfter error
	i      int
}

func (p *chunkProducer) Read(b []byte) (int, error) {
	if p.i >= len(p.chunks) {
		if p.failAfter != nil {
			return 0, p.failAfter
		}
		return 0, io.EOF
	}
	n := copy(b, p.chunks[p.i])
	p.i++
	return n, nil
}

func (p *chunkProducer) Close() error { return nil }

func TestClient_PostStreamingResult_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2018-06-01/runtime/invocation/xyz/response", r.URL.Path)
		assert.Equal(t, "streaming", r.Header.Get(HeaderFunctionResponseMode))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(body))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	c := NewClient(address(ts), 0)
	producer := &chunkProducer{chunks: [][]byte{[]byte("hel"), []byte("lo")}}
	err := c.PostStreamingResult(context.Background(), "xyz", producer)
	require.NoError(t, err)
}

func TestClient_PostStreamingResult_ProducerErrorAfterFirstByte(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		assert.NotEmpty(t, r.Trailer.Get(HeaderFunctionErrorType))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	c := NewClient(address(ts), 0)
	producer := &chunkProducer{chunks: [][]byte{[]byte("hel")}, failAfter: errors.New("boom")}
	err := c.PostStreamingResult(context.Background(), "xyz", producer)
	require.Error(t, err)
}
