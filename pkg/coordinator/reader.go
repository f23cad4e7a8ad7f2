package coordinator

import (
	"context"
	"io"

	"cloudrive/pkg/fault"
	"cloudrive/pkg/types"

	"go.uber.org/zap"
)

// Reader reconstructs a version's byte stream from possibly degraded
// replica sets.
type Reader struct {
	store  MetadataStore
	chunks ChunkClient
	logger *zap.Logger
}

func NewReader(store MetadataStore, chunks ChunkClient, logger *zap.Logger) *Reader {
	return &Reader{store: store, chunks: chunks, logger: logger}
}

// Open resolves the version's ordered chunk list and returns a stream
// over it. An empty chunk list means the metadata is corrupt or the
// write never completed, not that the file is empty.
func (r *Reader) Open(ctx context.Context, versionID types.VersionID) (*ChunkStream, error) {
	chunks, err := r.store.ListChunksForVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fault.New(fault.Internal, "no chunks found for version %d", versionID)
	}

	return &ChunkStream{reader: r, chunks: chunks}, nil
}

// ChunkStream is a lazy, finite, forward-only sequence of chunk payloads
// in index order. It is not restartable: a caller that needs the bytes
// again opens a new stream. Abandoning the stream mid-way needs no
// cleanup beyond cancelling the context of in-flight calls.
type ChunkStream struct {
	reader *Reader
	chunks []types.Chunk
	pos    int
}

// Next produces the next chunk's bytes, or io.EOF after the last chunk.
// For each chunk the candidate replicas are tried strictly one at a
// time in store order; an attempt only counts once its bytes arrived in
// full, so a mid-transfer failure never leaks partial or duplicate bytes
// into the output. If every replica of a chunk fails the stream is dead
// and the error names the chunk index.
func (s *ChunkStream) Next(ctx context.Context) ([]byte, error) {
	if s.pos >= len(s.chunks) {
		return nil, io.EOF
	}
	chunk := s.chunks[s.pos]

	locations, err := s.reader.store.ListOnlineLocationsForChunk(ctx, chunk.ID)
	if err != nil {
		return nil, err
	}
	if len(locations) == 0 {
		return nil, fault.New(fault.Unavailable, "no online replicas available for chunk %d", chunk.Index)
	}

	for _, loc := range locations {
		data, err := s.fetch(ctx, loc, chunk)
		if err != nil {
			s.reader.logger.Warn("Replica read failed, trying next",
				zap.String("chunk_id", string(chunk.ID)),
				zap.Int("index", chunk.Index),
				zap.String("node", loc.NodeName),
				zap.Error(err))
			continue
		}

		s.pos++
		return data, nil
	}

	return nil, fault.New(fault.Upstream, "all replicas failed for chunk %d", chunk.Index)
}

// fetch buffers one full replica read so a failed attempt can be
// discarded without having relayed anything.
func (s *ChunkStream) fetch(ctx context.Context, loc types.Replica, chunk types.Chunk) ([]byte, error) {
	body, err := s.reader.chunks.GetChunk(ctx, loc.BaseURL, chunk.ID)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// WriteTo drains the stream into w, chunk by chunk. Bytes already
// written stay written when a later chunk fails; the caller sees a
// truncated stream plus the error.
func (s *ChunkStream) WriteTo(ctx context.Context, w io.Writer) (int64, error) {
	var written int64
	for {
		data, err := s.Next(ctx)
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}

		n, err := w.Write(data)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
}
