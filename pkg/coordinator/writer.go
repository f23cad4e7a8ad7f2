package coordinator

import (
	"context"
	"errors"
	"io"

	"cloudrive/pkg/fault"
	"cloudrive/pkg/ring"
	"cloudrive/pkg/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Writer splits an input stream into fixed-size chunks and replicates
// each chunk onto ring-selected nodes before recording it in metadata.
type Writer struct {
	registry          NodeRegistry
	store             MetadataStore
	chunks            ChunkClient
	chunkSize         int
	replicationFactor int
	logger            *zap.Logger
}

func NewWriter(registry NodeRegistry, store MetadataStore, chunks ChunkClient, chunkSize, replicationFactor int, logger *zap.Logger) *Writer {
	return &Writer{
		registry:          registry,
		store:             store,
		chunks:            chunks,
		chunkSize:         chunkSize,
		replicationFactor: replicationFactor,
		logger:            logger,
	}
}

// Write consumes r in windows of the configured chunk size (the last
// window may be shorter) and, for each window in index order: generates a
// fresh chunk id, selects replica nodes on the hash ring, pushes the
// bytes to every selected node, then commits the chunk row together with
// its location rows. A failed push aborts the whole write immediately;
// chunks already committed stay committed, and replicas already pushed
// for the failing chunk are left as orphan blobs on their nodes.
//
// Returns the total byte count and the number of chunks written. Zero
// chunks means the input was empty; classifying that is the caller's job.
func (w *Writer) Write(ctx context.Context, versionID types.VersionID, r io.Reader) (int64, int, error) {
	buf := make([]byte, w.chunkSize)
	var total int64
	index := 0

	for {
		n, readErr := io.ReadFull(r, buf)
		if readErr == io.EOF {
			break
		}
		if readErr != nil && !errors.Is(readErr, io.ErrUnexpectedEOF) {
			return total, index, fault.Wrap(fault.Internal, readErr, "failed to read upload stream")
		}

		if err := w.writeChunk(ctx, versionID, index, buf[:n]); err != nil {
			return total, index, err
		}

		total += int64(n)
		index++

		if errors.Is(readErr, io.ErrUnexpectedEOF) {
			// Short window: the stream is exhausted.
			break
		}
	}

	if index > 0 {
		if err := w.store.SetVersionSize(ctx, versionID, total); err != nil {
			return total, index, err
		}
	}

	return total, index, nil
}

func (w *Writer) writeChunk(ctx context.Context, versionID types.VersionID, index int, data []byte) error {
	chunkID := types.ChunkID(uuid.NewString())

	nodes, err := w.registry.ListOnlineNodes(ctx)
	if err != nil {
		return err
	}

	targets, err := ring.Select(nodes, string(chunkID), w.replicationFactor)
	if err != nil {
		return err
	}

	for _, node := range targets {
		if err := w.chunks.PutChunk(ctx, node.BaseURL, chunkID, data); err != nil {
			return fault.Wrap(fault.Upstream, err, "failed to store chunk %d on node %s", index, node.Name)
		}

		w.logger.Debug("Chunk replica stored",
			zap.String("chunk_id", string(chunkID)),
			zap.Int("index", index),
			zap.String("node", node.Name))
	}

	nodeIDs := make([]types.NodeID, 0, len(targets))
	for _, node := range targets {
		nodeIDs = append(nodeIDs, node.ID)
	}

	chunk := types.Chunk{
		ID:        chunkID,
		VersionID: versionID,
		Index:     index,
		SizeBytes: int64(len(data)),
	}
	if err := w.store.CommitChunk(ctx, chunk, nodeIDs); err != nil {
		return err
	}

	w.logger.Debug("Chunk committed",
		zap.String("chunk_id", string(chunkID)),
		zap.Int("index", index),
		zap.Int("replicas", len(nodeIDs)))

	return nil
}
