package types

import (
	"fmt"
	"time"
)

type UserID int64
type FileID int64
type VersionID int64
type FolderID int64
type NodeID int64
type ChunkID string

// StorageNode is a registered storage daemon. Online is the only liveness
// signal; it is flipped by the admin API, never by the core.
type StorageNode struct {
	ID            NodeID
	Name          string
	BaseURL       string
	Online        bool
	CapacityBytes int64
	CreatedAt     time.Time
}

// RingKey is the stable key that positions this node on the hash ring.
func (n StorageNode) RingKey() string {
	return fmt.Sprintf("node-%d", n.ID)
}

type User struct {
	ID        UserID
	Email     string
	CreatedAt time.Time
}

type Folder struct {
	ID        FolderID
	Name      string
	OwnerID   UserID
	ParentID  *FolderID
	CreatedAt time.Time
}

// File identity is stable across versions.
type File struct {
	ID          FileID
	Name        string
	ContentType string
	OwnerID     UserID
	FolderID    *FolderID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FileVersion is an immutable, fully-chunked snapshot of a file's content.
// SizeBytes is set only after every chunk of the version has been written.
type FileVersion struct {
	ID        VersionID
	FileID    FileID
	Number    int
	SizeBytes int64
	CreatedAt time.Time
}

// Chunk is one contiguous byte range of a version. Index is zero-based and
// contiguous within a version; ID is the storage key on every replica.
type Chunk struct {
	ID        ChunkID
	VersionID VersionID
	Index     int
	SizeBytes int64
}

// Replica records that a copy of a chunk lives on a node.
type Replica struct {
	ChunkID  ChunkID
	NodeID   NodeID
	NodeName string
	BaseURL  string
}

// Role is a per-file permission level. Roles form a hierarchy:
// owner implies write, write implies read.
type Role string

const (
	RoleRead  Role = "read"
	RoleWrite Role = "write"
	RoleOwner Role = "owner"
)

var roleRank = map[Role]int{
	RoleRead:  1,
	RoleWrite: 2,
	RoleOwner: 3,
}

// Allows reports whether a holder of role r may perform an action that
// requires the given role.
func (r Role) Allows(required Role) bool {
	return roleRank[r] >= roleRank[required] && roleRank[r] != 0
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}
