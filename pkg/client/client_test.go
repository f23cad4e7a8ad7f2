package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"cloudrive/pkg/fault"
	"cloudrive/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBlobServer(t *testing.T) (*httptest.Server, *sync.Map) {
	t.Helper()
	var blobs sync.Map

	mux := http.NewServeMux()
	mux.HandleFunc("/chunks/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/chunks/"):]
		switch r.Method {
		case http.MethodPut:
			data, err := io.ReadAll(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			blobs.Store(id, data)
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			data, ok := blobs.Load(id)
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(data.([]byte))
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &blobs
}

func TestPutGetRoundTrip(t *testing.T) {
	server, _ := newBlobServer(t)
	c := New()
	ctx := context.Background()

	payload := []byte("chunk payload bytes")
	require.NoError(t, c.PutChunk(ctx, server.URL, types.ChunkID("abc"), payload))

	body, err := c.GetChunk(ctx, server.URL, types.ChunkID("abc"))
	require.NoError(t, err)
	defer body.Close()

	got, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestGetChunkNotFound(t *testing.T) {
	server, _ := newBlobServer(t)
	c := New()

	_, err := c.GetChunk(context.Background(), server.URL, types.ChunkID("missing"))
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.NotFound))
}

func TestPutChunkErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "disk full", http.StatusInsufficientStorage)
	}))
	t.Cleanup(server.Close)

	c := New()
	err := c.PutChunk(context.Background(), server.URL, types.ChunkID("abc"), []byte("x"))
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.Upstream))
	assert.Contains(t, err.Error(), "507")
}

func TestUnreachableNode(t *testing.T) {
	c := New()

	err := c.PutChunk(context.Background(), "http://127.0.0.1:1", types.ChunkID("abc"), []byte("x"))
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.Upstream))

	_, err = c.GetChunk(context.Background(), "http://127.0.0.1:1", types.ChunkID("abc"))
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.Upstream))
}

func TestTrailingSlashBaseURL(t *testing.T) {
	server, blobs := newBlobServer(t)
	c := New()

	require.NoError(t, c.PutChunk(context.Background(), server.URL+"/", types.ChunkID("abc"), []byte("x")))
	_, ok := blobs.Load("abc")
	assert.True(t, ok)
}
