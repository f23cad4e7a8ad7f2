// Package node is the storage daemon: a passive key to blob store over
// HTTP. It knows nothing about files, versions or replication; the
// coordinator PUTs chunk bytes at it and GETs them back by chunk id.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloudrive/pkg/config"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Node struct {
	address string
	dataDir string
	logger  *zap.Logger
	server  *http.Server
}

func New(cfg *config.NodeConfig, logger *zap.Logger) *Node {
	return &Node{
		address: cfg.Address,
		dataDir: cfg.DataDir,
		logger:  logger,
	}
}

func (n *Node) Start() error {
	if err := os.MkdirAll(n.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	n.server = &http.Server{Addr: n.address, Handler: n.Handler()}

	n.logger.Info("Storage daemon starting",
		zap.String("address", n.address),
		zap.String("data_dir", n.dataDir))

	if err := n.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (n *Node) Stop() {
	if n.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := n.server.Shutdown(ctx); err != nil {
		n.logger.Warn("Storage daemon shutdown failed", zap.Error(err))
	}
}

// Handler exposes the daemon's routes for tests.
func (n *Node) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", n.handleHealth)
	r.Put("/chunks/{chunkID}", n.handlePutChunk)
	r.Get("/chunks/{chunkID}", n.handleGetChunk)
	return r
}

func (n *Node) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// chunkPath rejects ids that would escape the data directory.
func (n *Node) chunkPath(chunkID string) (string, error) {
	if chunkID == "" || strings.ContainsAny(chunkID, "/\\") || strings.Contains(chunkID, "..") {
		return "", fmt.Errorf("invalid chunk id %q", chunkID)
	}
	return filepath.Join(n.dataDir, chunkID), nil
}

func (n *Node) handlePutChunk(w http.ResponseWriter, r *http.Request) {
	chunkID := chi.URLParam(r, "chunkID")
	path, err := n.chunkPath(chunkID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Write to a temp file first so a dropped upload never leaves a
	// half-written blob under the final name.
	tmp, err := os.CreateTemp(n.dataDir, ".upload-*")
	if err != nil {
		n.logger.Error("Failed to create temp file", zap.Error(err))
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}

	written, err := io.Copy(tmp, r.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		os.Remove(tmp.Name())
		n.logger.Error("Failed to store chunk",
			zap.String("chunk_id", chunkID),
			zap.Error(err))
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}

	n.logger.Debug("Chunk stored",
		zap.String("chunk_id", chunkID),
		zap.Int64("size", written))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	fmt.Fprintf(w, `{"chunk_id":%q}`, chunkID)
}

func (n *Node) handleGetChunk(w http.ResponseWriter, r *http.Request) {
	chunkID := chi.URLParam(r, "chunkID")
	path, err := n.chunkPath(chunkID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "chunk not found", http.StatusNotFound)
			return
		}
		n.logger.Error("Failed to open chunk",
			zap.String("chunk_id", chunkID),
			zap.Error(err))
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, f); err != nil {
		// The client went away or the disk failed mid-stream; nothing
		// sensible left to send.
		n.logger.Warn("Chunk stream interrupted",
			zap.String("chunk_id", chunkID),
			zap.Error(err))
	}
}
