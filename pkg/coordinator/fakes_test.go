package coordinator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"cloudrive/pkg/fault"
	"cloudrive/pkg/types"
)

// fakeRegistry serves a fixed node list.
type fakeRegistry struct {
	nodes []types.StorageNode
}

func (f *fakeRegistry) ListOnlineNodes(ctx context.Context) ([]types.StorageNode, error) {
	return f.nodes, nil
}

// fakeStore is an in-memory MetadataStore. Version numbers follow the
// high-water mark per file so deleted numbers are never reused.
type fakeStore struct {
	mu        sync.Mutex
	nextID    int64
	highest   map[types.FileID]int
	versions  map[types.VersionID]types.FileVersion
	chunks    map[types.VersionID][]types.Chunk
	locations map[types.ChunkID][]types.Replica
	nodes     map[types.NodeID]types.StorageNode
}

func newFakeStore(nodes []types.StorageNode) *fakeStore {
	s := &fakeStore{
		highest:   make(map[types.FileID]int),
		versions:  make(map[types.VersionID]types.FileVersion),
		chunks:    make(map[types.VersionID][]types.Chunk),
		locations: make(map[types.ChunkID][]types.Replica),
		nodes:     make(map[types.NodeID]types.StorageNode),
	}
	for _, n := range nodes {
		s.nodes[n.ID] = n
	}
	return s
}

func (s *fakeStore) NextVersionNumber(ctx context.Context, fileID types.FileID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.highest[fileID] + 1, nil
}

func (s *fakeStore) CreateVersion(ctx context.Context, fileID types.FileID, number int) (types.FileVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	v := types.FileVersion{ID: types.VersionID(s.nextID), FileID: fileID, Number: number}
	s.versions[v.ID] = v
	if number > s.highest[fileID] {
		s.highest[fileID] = number
	}
	return v, nil
}

func (s *fakeStore) GetVersion(ctx context.Context, fileID types.FileID, number int) (types.FileVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.versions {
		if v.FileID == fileID && v.Number == number {
			return v, nil
		}
	}
	return types.FileVersion{}, fault.New(fault.NotFound, "version %d not found", number)
}

func (s *fakeStore) LatestVersion(ctx context.Context, fileID types.FileID) (types.FileVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest types.FileVersion
	found := false
	for _, v := range s.versions {
		if v.FileID == fileID && (!found || v.Number > latest.Number) {
			latest = v
			found = true
		}
	}
	if !found {
		return types.FileVersion{}, fault.New(fault.NotFound, "file has no versions")
	}
	return latest, nil
}

func (s *fakeStore) ListVersions(ctx context.Context, fileID types.FileID) ([]types.FileVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.FileVersion
	for _, v := range s.versions {
		if v.FileID == fileID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	return out, nil
}

func (s *fakeStore) SetVersionSize(ctx context.Context, versionID types.VersionID, sizeBytes int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[versionID]
	if !ok {
		return fault.New(fault.NotFound, "version %d not found", versionID)
	}
	v.SizeBytes = sizeBytes
	s.versions[versionID] = v
	return nil
}

func (s *fakeStore) deleteVersion(versionID types.VersionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.chunks[versionID] {
		delete(s.locations, c.ID)
	}
	delete(s.chunks, versionID)
	delete(s.versions, versionID)
}

func (s *fakeStore) CommitChunk(ctx context.Context, chunk types.Chunk, nodeIDs []types.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[chunk.VersionID] = append(s.chunks[chunk.VersionID], chunk)
	for _, id := range nodeIDs {
		node := s.nodes[id]
		s.locations[chunk.ID] = append(s.locations[chunk.ID], types.Replica{
			ChunkID:  chunk.ID,
			NodeID:   id,
			NodeName: node.Name,
			BaseURL:  node.BaseURL,
		})
	}
	return nil
}

func (s *fakeStore) ListChunksForVersion(ctx context.Context, versionID types.VersionID) ([]types.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]types.Chunk(nil), s.chunks[versionID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *fakeStore) ListOnlineLocationsForChunk(ctx context.Context, chunkID types.ChunkID) ([]types.Replica, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Replica
	for _, r := range s.locations[chunkID] {
		if node, ok := s.nodes[r.NodeID]; ok && node.Online {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) setNodeOnline(id types.NodeID, online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.nodes[id]
	n.Online = online
	s.nodes[n.ID] = n
}

// fakeChunkClient keeps blobs in memory per base URL and can be told to
// fail puts or gets for particular daemons.
type fakeChunkClient struct {
	mu       sync.Mutex
	blobs    map[string]map[types.ChunkID][]byte
	failPut  map[string]bool
	failGet  map[string]bool
	truncGet map[string]bool // serve half the blob, then a transport error
	putCalls int
	getCalls int
}

func newFakeChunkClient() *fakeChunkClient {
	return &fakeChunkClient{
		blobs:    make(map[string]map[types.ChunkID][]byte),
		failPut:  make(map[string]bool),
		failGet:  make(map[string]bool),
		truncGet: make(map[string]bool),
	}
}

func (f *fakeChunkClient) PutChunk(ctx context.Context, baseURL string, chunkID types.ChunkID, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls++
	if f.failPut[baseURL] {
		return fmt.Errorf("connection refused: %s", baseURL)
	}
	if f.blobs[baseURL] == nil {
		f.blobs[baseURL] = make(map[types.ChunkID][]byte)
	}
	f.blobs[baseURL][chunkID] = append([]byte(nil), data...)
	return nil
}

func (f *fakeChunkClient) GetChunk(ctx context.Context, baseURL string, chunkID types.ChunkID) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.failGet[baseURL] {
		return nil, fmt.Errorf("connection refused: %s", baseURL)
	}
	data, ok := f.blobs[baseURL][chunkID]
	if !ok {
		return nil, fault.New(fault.NotFound, "chunk not found")
	}
	if f.truncGet[baseURL] {
		return &truncatedReader{data: data[:len(data)/2]}, nil
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// truncatedReader yields a prefix of the blob, then fails as if the
// transport dropped mid-stream.
type truncatedReader struct {
	data []byte
	off  int
}

func (r *truncatedReader) Read(p []byte) (int, error) {
	if r.off >= len(r.data) {
		return 0, errors.New("unexpected EOF: connection reset")
	}
	n := copy(p, r.data[r.off:])
	r.off += n
	return n, nil
}

func (r *truncatedReader) Close() error { return nil }

func testNodes(n int) []types.StorageNode {
	nodes := make([]types.StorageNode, 0, n)
	for i := 1; i <= n; i++ {
		nodes = append(nodes, types.StorageNode{
			ID:      types.NodeID(i),
			Name:    fmt.Sprintf("node%d", i),
			BaseURL: fmt.Sprintf("http://node%d:9000", i),
			Online:  true,
		})
	}
	return nodes
}
