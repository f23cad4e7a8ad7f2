// Package client is the HTTP chunk client the coordinator uses to push
// and pull raw chunk bytes against storage daemons.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloudrive/pkg/fault"
	"cloudrive/pkg/types"
)

const (
	putTimeout = 10 * time.Second
	getTimeout = 30 * time.Second
)

type ChunkClient struct {
	http *http.Client
}

func New() *ChunkClient {
	// Per-request deadlines are set via context; the client itself has
	// no global timeout so streamed GET bodies are not cut off.
	return &ChunkClient{http: &http.Client{}}
}

func chunkURL(baseURL string, chunkID types.ChunkID) string {
	return fmt.Sprintf("%s/chunks/%s", strings.TrimRight(baseURL, "/"), chunkID)
}

// PutChunk stores data under the chunk id on the daemon at baseURL.
// Anything but a 200 or 201 counts as an upstream failure.
func (c *ChunkClient) PutChunk(ctx context.Context, baseURL string, chunkID types.ChunkID, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, putTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, chunkURL(baseURL, chunkID), bytes.NewReader(data))
	if err != nil {
		return fault.Wrap(fault.Internal, err, "failed to build chunk request")
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fault.Wrap(fault.Upstream, err, "failed to reach storage node at %s", baseURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fault.New(fault.Upstream, "storage node at %s returned %d: %s", baseURL, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// GetChunk streams the blob stored under the chunk id. The caller owns
// the returned body; a transport error mid-read surfaces from Read.
func (c *ChunkClient) GetChunk(ctx context.Context, baseURL string, chunkID types.ChunkID) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, getTimeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, chunkURL(baseURL, chunkID), nil)
	if err != nil {
		cancel()
		return nil, fault.Wrap(fault.Internal, err, "failed to build chunk request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, fault.Wrap(fault.Upstream, err, "failed to reach storage node at %s", baseURL)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return &cancelReadCloser{body: resp.Body, cancel: cancel}, nil
	case http.StatusNotFound:
		resp.Body.Close()
		cancel()
		return nil, fault.New(fault.NotFound, "chunk %s not found on node at %s", chunkID, baseURL)
	default:
		resp.Body.Close()
		cancel()
		return nil, fault.New(fault.Upstream, "storage node at %s returned %d", baseURL, resp.StatusCode)
	}
}

// cancelReadCloser releases the request context when the body is closed.
type cancelReadCloser struct {
	body   io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Read(p []byte) (int, error) { return c.body.Read(p) }

func (c *cancelReadCloser) Close() error {
	err := c.body.Close()
	c.cancel()
	return err
}
