package metadata

import (
	"context"
	"fmt"
	"testing"

	"cloudrive/pkg/fault"
	"cloudrive/pkg/types"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	store, err := New(db, zap.NewNop())
	require.NoError(t, err)
	return store
}

func seedUser(t *testing.T, s *Store, email string) types.User {
	t.Helper()
	user, err := s.CreateUser(context.Background(), email, "hashed")
	require.NoError(t, err)
	return user
}

func seedFile(t *testing.T, s *Store, owner types.UserID) types.File {
	t.Helper()
	file, err := s.CreateFile(context.Background(), "report.pdf", "application/pdf", owner, nil)
	require.NoError(t, err)
	return file
}

func seedNode(t *testing.T, s *Store, name string, online bool) types.StorageNode {
	t.Helper()
	node, err := s.RegisterNode(context.Background(), name, "http://"+name+":9000", online, 0)
	require.NoError(t, err)
	return node
}

func TestUserLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := seedUser(t, s, "alice@example.com")

	got, hash, err := s.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "hashed", hash)

	_, err = s.CreateUser(ctx, "alice@example.com", "other")
	assert.True(t, fault.Is(err, fault.Conflict))

	_, _, err = s.GetUserByEmail(ctx, "nobody@example.com")
	assert.True(t, fault.Is(err, fault.NotFound))
}

func TestVersionNumberingSurvivesDeletion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner := seedUser(t, s, "alice@example.com")
	file := seedFile(t, s, owner.ID)

	n, err := s.NextVersionNumber(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	v1, err := s.CreateVersion(ctx, file.ID, 1)
	require.NoError(t, err)

	require.NoError(t, s.DeleteVersion(ctx, v1.ID))

	n, err = s.NextVersionNumber(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "version numbers are never reused downward")
}

func TestVersionListingAndLatest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner := seedUser(t, s, "alice@example.com")
	file := seedFile(t, s, owner.ID)

	for i := 1; i <= 3; i++ {
		v, err := s.CreateVersion(ctx, file.ID, i)
		require.NoError(t, err)
		require.NoError(t, s.SetVersionSize(ctx, v.ID, int64(i*100)))
	}

	latest, err := s.LatestVersion(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Number)

	versions, err := s.ListVersions(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, 3, versions[0].Number, "newest first")
	assert.Equal(t, int64(300), versions[0].SizeBytes)
}

func TestCommitChunkAndLocations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner := seedUser(t, s, "alice@example.com")
	file := seedFile(t, s, owner.ID)
	version, err := s.CreateVersion(ctx, file.ID, 1)
	require.NoError(t, err)

	online := seedNode(t, s, "node1", true)
	offline := seedNode(t, s, "node2", false)

	chunk := types.Chunk{ID: "chunk-a", VersionID: version.ID, Index: 0, SizeBytes: 42}
	require.NoError(t, s.CommitChunk(ctx, chunk, []types.NodeID{online.ID, offline.ID}))

	chunks, err := s.ListChunksForVersion(ctx, version.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, chunk.ID, chunks[0].ID)

	// Only the online node's replica is served to the reader.
	locations, err := s.ListOnlineLocationsForChunk(ctx, chunk.ID)
	require.NoError(t, err)
	require.Len(t, locations, 1)
	assert.Equal(t, online.ID, locations[0].NodeID)
	assert.Equal(t, online.BaseURL, locations[0].BaseURL)

	// Flipping the second node online restores its replica, in
	// insertion order.
	require.NoError(t, s.SetNodeOnline(ctx, offline.ID, true))
	locations, err = s.ListOnlineLocationsForChunk(ctx, chunk.ID)
	require.NoError(t, err)
	require.Len(t, locations, 2)
	assert.Equal(t, online.ID, locations[0].NodeID)
	assert.Equal(t, offline.ID, locations[1].NodeID)
}

func TestCommitChunkRejectsDuplicateLocation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner := seedUser(t, s, "alice@example.com")
	file := seedFile(t, s, owner.ID)
	version, err := s.CreateVersion(ctx, file.ID, 1)
	require.NoError(t, err)
	node := seedNode(t, s, "node1", true)

	chunk := types.Chunk{ID: "chunk-a", VersionID: version.ID, Index: 0, SizeBytes: 1}
	err = s.CommitChunk(ctx, chunk, []types.NodeID{node.ID, node.ID})
	assert.Error(t, err, "at most one location per chunk and node")
}

func TestChunkOrderingByIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner := seedUser(t, s, "alice@example.com")
	file := seedFile(t, s, owner.ID)
	version, err := s.CreateVersion(ctx, file.ID, 1)
	require.NoError(t, err)
	node := seedNode(t, s, "node1", true)

	// Commit out of order; listing must come back by index.
	for _, idx := range []int{2, 0, 1} {
		chunk := types.Chunk{
			ID:        types.ChunkID(fmt.Sprintf("chunk-%d", idx)),
			VersionID: version.ID,
			Index:     idx,
			SizeBytes: 10,
		}
		require.NoError(t, s.CommitChunk(ctx, chunk, []types.NodeID{node.ID}))
	}

	chunks, err := s.ListChunksForVersion(ctx, version.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
	}
}

func TestDeleteVersionCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner := seedUser(t, s, "alice@example.com")
	file := seedFile(t, s, owner.ID)
	version, err := s.CreateVersion(ctx, file.ID, 1)
	require.NoError(t, err)
	node := seedNode(t, s, "node1", true)

	chunk := types.Chunk{ID: "chunk-a", VersionID: version.ID, Index: 0, SizeBytes: 5}
	require.NoError(t, s.CommitChunk(ctx, chunk, []types.NodeID{node.ID}))

	require.NoError(t, s.DeleteVersion(ctx, version.ID))

	chunks, err := s.ListChunksForVersion(ctx, version.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	locations, err := s.ListOnlineLocationsForChunk(ctx, chunk.ID)
	require.NoError(t, err)
	assert.Empty(t, locations)

	err = s.DeleteVersion(ctx, version.ID)
	assert.True(t, fault.Is(err, fault.NotFound))
}

func TestPermissionHierarchy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner := seedUser(t, s, "alice@example.com")
	viewer := seedUser(t, s, "bob@example.com")
	stranger := seedUser(t, s, "eve@example.com")
	file := seedFile(t, s, owner.ID)

	require.NoError(t, s.GrantPermission(ctx, file.ID, viewer.ID, types.RoleRead))

	tests := []struct {
		name     string
		user     types.UserID
		required types.Role
		allowed  bool
	}{
		{"owner can read", owner.ID, types.RoleRead, true},
		{"owner can write", owner.ID, types.RoleWrite, true},
		{"owner is owner", owner.ID, types.RoleOwner, true},
		{"reader can read", viewer.ID, types.RoleRead, true},
		{"reader cannot write", viewer.ID, types.RoleWrite, false},
		{"stranger has nothing", stranger.ID, types.RoleRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.GetFileForUser(ctx, file.ID, tt.user, tt.required)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.True(t, fault.Is(err, fault.Forbidden))
			}
		})
	}
}

func TestGrantPermissionUpgradesRole(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner := seedUser(t, s, "alice@example.com")
	bob := seedUser(t, s, "bob@example.com")
	file := seedFile(t, s, owner.ID)

	require.NoError(t, s.GrantPermission(ctx, file.ID, bob.ID, types.RoleRead))
	_, err := s.GetFileForUser(ctx, file.ID, bob.ID, types.RoleWrite)
	assert.True(t, fault.Is(err, fault.Forbidden))

	require.NoError(t, s.GrantPermission(ctx, file.ID, bob.ID, types.RoleWrite))
	_, err = s.GetFileForUser(ctx, file.ID, bob.ID, types.RoleWrite)
	assert.NoError(t, err)

	err = s.GrantPermission(ctx, file.ID, bob.ID, types.Role("admin"))
	assert.True(t, fault.Is(err, fault.Invalid))
}

func TestFolderConstraints(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner := seedUser(t, s, "alice@example.com")

	folder, err := s.CreateFolder(ctx, "docs", owner.ID, nil)
	require.NoError(t, err)

	_, err = s.CreateFolder(ctx, "docs", owner.ID, nil)
	assert.True(t, fault.Is(err, fault.Conflict), "duplicate name at same level")

	// Same name under a different parent is fine.
	sub, err := s.CreateFolder(ctx, "docs", owner.ID, &folder.ID)
	require.NoError(t, err)

	err = s.DeleteFolder(ctx, folder.ID, owner.ID)
	assert.True(t, fault.Is(err, fault.Conflict), "folder has a subfolder")

	require.NoError(t, s.DeleteFolder(ctx, sub.ID, owner.ID))
	require.NoError(t, s.DeleteFolder(ctx, folder.ID, owner.ID))

	err = s.DeleteFolder(ctx, folder.ID, owner.ID)
	assert.True(t, fault.Is(err, fault.NotFound))
}

func TestDeleteFolderWithFilesRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner := seedUser(t, s, "alice@example.com")
	folder, err := s.CreateFolder(ctx, "docs", owner.ID, nil)
	require.NoError(t, err)

	_, err = s.CreateFile(ctx, "a.txt", "text/plain", owner.ID, &folder.ID)
	require.NoError(t, err)

	err = s.DeleteFolder(ctx, folder.ID, owner.ID)
	assert.True(t, fault.Is(err, fault.Conflict))
}

func TestListOnlineNodesStableOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedNode(t, s, "node3", true)
	seedNode(t, s, "node1", true)
	seedNode(t, s, "node2", false)

	nodes, err := s.ListOnlineNodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.True(t, nodes[0].ID < nodes[1].ID, "ordered by id for deterministic ring input")
	for _, n := range nodes {
		assert.True(t, n.Online)
	}
}

func TestDeleteFileCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner := seedUser(t, s, "alice@example.com")
	file := seedFile(t, s, owner.ID)
	version, err := s.CreateVersion(ctx, file.ID, 1)
	require.NoError(t, err)
	node := seedNode(t, s, "node1", true)

	chunk := types.Chunk{ID: "chunk-a", VersionID: version.ID, Index: 0, SizeBytes: 5}
	require.NoError(t, s.CommitChunk(ctx, chunk, []types.NodeID{node.ID}))

	require.NoError(t, s.DeleteFile(ctx, file.ID))

	_, err = s.GetFileForUser(ctx, file.ID, owner.ID, types.RoleRead)
	assert.Error(t, err)

	_, err = s.LatestVersion(ctx, file.ID)
	assert.True(t, fault.Is(err, fault.NotFound))

	locations, err := s.ListOnlineLocationsForChunk(ctx, chunk.ID)
	require.NoError(t, err)
	assert.Empty(t, locations)
}
