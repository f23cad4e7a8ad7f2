// Package coordinator turns uploaded byte streams into replicated chunk
// sets and reassembles them on download. It owns no state of its own:
// node membership, metadata and chunk bytes live behind the NodeRegistry,
// MetadataStore and ChunkClient collaborators.
package coordinator

import (
	"context"
	"io"

	"cloudrive/pkg/config"
	"cloudrive/pkg/fault"
	"cloudrive/pkg/types"

	"go.uber.org/zap"
)

// NodeRegistry supplies the set of storage nodes currently flagged online.
// Liveness is a stored flag mutated only by the admin surface; a node can
// be marked online while unreachable, which the write and read paths
// discover only via a failed call.
type NodeRegistry interface {
	ListOnlineNodes(ctx context.Context) ([]types.StorageNode, error)
}

// MetadataStore is the durable record of versions, chunks and placements.
// CommitChunk must make the chunk row and its location rows visible
// together; no observer may see a chunk with zero locations while its
// replicas exist.
type MetadataStore interface {
	NextVersionNumber(ctx context.Context, fileID types.FileID) (int, error)
	CreateVersion(ctx context.Context, fileID types.FileID, number int) (types.FileVersion, error)
	GetVersion(ctx context.Context, fileID types.FileID, number int) (types.FileVersion, error)
	LatestVersion(ctx context.Context, fileID types.FileID) (types.FileVersion, error)
	ListVersions(ctx context.Context, fileID types.FileID) ([]types.FileVersion, error)
	SetVersionSize(ctx context.Context, versionID types.VersionID, sizeBytes int64) error

	CommitChunk(ctx context.Context, chunk types.Chunk, nodeIDs []types.NodeID) error
	ListChunksForVersion(ctx context.Context, versionID types.VersionID) ([]types.Chunk, error)
	ListOnlineLocationsForChunk(ctx context.Context, chunkID types.ChunkID) ([]types.Replica, error)
}

// ChunkClient pushes and pulls raw chunk bytes against a storage daemon's
// base URL. The daemon is a passive key to blob store.
type ChunkClient interface {
	PutChunk(ctx context.Context, baseURL string, chunkID types.ChunkID, data []byte) error
	GetChunk(ctx context.Context, baseURL string, chunkID types.ChunkID) (io.ReadCloser, error)
}

type Coordinator struct {
	registry NodeRegistry
	store    MetadataStore
	chunks   ChunkClient
	writer   *Writer
	reader   *Reader
	logger   *zap.Logger
}

func New(cfg *config.ServerConfig, registry NodeRegistry, store MetadataStore, chunks ChunkClient, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		registry: registry,
		store:    store,
		chunks:   chunks,
		writer:   NewWriter(registry, store, chunks, cfg.ChunkSizeBytes, cfg.ReplicationFactor, logger),
		reader:   NewReader(store, chunks, logger),
		logger:   logger,
	}
}

// UploadVersion appends a new version to the file from the given stream.
// The version number is one past the highest ever assigned for the file,
// even if that version has since been deleted. An empty stream is
// rejected; the version row it already created is left behind with zero
// chunks, matching the no-repair write path.
func (c *Coordinator) UploadVersion(ctx context.Context, fileID types.FileID, r io.Reader) (types.FileVersion, error) {
	number, err := c.store.NextVersionNumber(ctx, fileID)
	if err != nil {
		return types.FileVersion{}, err
	}

	version, err := c.store.CreateVersion(ctx, fileID, number)
	if err != nil {
		return types.FileVersion{}, err
	}

	c.logger.Info("Uploading file version",
		zap.Int64("file_id", int64(fileID)),
		zap.Int("version", number))

	total, chunkCount, err := c.writer.Write(ctx, version.ID, r)
	if err != nil {
		// A failed upload leaves the version partially written; the
		// caller re-uploads into a fresh version rather than repairing.
		c.logger.Warn("Upload failed mid-write",
			zap.Int64("file_id", int64(fileID)),
			zap.Int("version", number),
			zap.Error(err))
		return types.FileVersion{}, err
	}

	if chunkCount == 0 {
		return types.FileVersion{}, fault.New(fault.Invalid, "uploaded file is empty")
	}

	version.SizeBytes = total

	c.logger.Info("File version stored",
		zap.Int64("file_id", int64(fileID)),
		zap.Int("version", number),
		zap.Int64("size_bytes", total),
		zap.Int("chunks", chunkCount))

	return version, nil
}

// DownloadVersion resolves the requested version (number 0 means latest)
// and opens a chunk stream over it. Bytes are produced lazily as the
// stream is pulled.
func (c *Coordinator) DownloadVersion(ctx context.Context, fileID types.FileID, number int) (types.FileVersion, *ChunkStream, error) {
	var version types.FileVersion
	var err error
	if number == 0 {
		version, err = c.store.LatestVersion(ctx, fileID)
	} else {
		version, err = c.store.GetVersion(ctx, fileID, number)
	}
	if err != nil {
		return types.FileVersion{}, nil, err
	}

	stream, err := c.reader.Open(ctx, version.ID)
	if err != nil {
		return types.FileVersion{}, nil, err
	}

	c.logger.Info("Streaming file version",
		zap.Int64("file_id", int64(fileID)),
		zap.Int("version", version.Number),
		zap.Int64("size_bytes", version.SizeBytes))

	return version, stream, nil
}

// ListVersions returns the file's versions newest first.
func (c *Coordinator) ListVersions(ctx context.Context, fileID types.FileID) ([]types.FileVersion, error) {
	return c.store.ListVersions(ctx, fileID)
}
