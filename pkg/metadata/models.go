package metadata

import (
	"time"

	"cloudrive/pkg/types"
)

// Relational models. Table and column names follow GORM defaults:
// users, folders, nodes, files, file_versions, chunks, chunk_locations,
// file_permissions.

type User struct {
	ID             int64  `gorm:"primaryKey"`
	Email          string `gorm:"uniqueIndex;not null"`
	HashedPassword string `gorm:"not null"`
	CreatedAt      time.Time
}

func (u User) toType() types.User {
	return types.User{ID: types.UserID(u.ID), Email: u.Email, CreatedAt: u.CreatedAt}
}

type Folder struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	OwnerID   int64  `gorm:"index;not null"`
	ParentID  *int64 `gorm:"index"`
	CreatedAt time.Time
}

func (f Folder) toType() types.Folder {
	folder := types.Folder{
		ID:        types.FolderID(f.ID),
		Name:      f.Name,
		OwnerID:   types.UserID(f.OwnerID),
		CreatedAt: f.CreatedAt,
	}
	if f.ParentID != nil {
		parent := types.FolderID(*f.ParentID)
		folder.ParentID = &parent
	}
	return folder
}

type Node struct {
	ID            int64  `gorm:"primaryKey"`
	Name          string `gorm:"uniqueIndex;not null"`
	BaseURL       string `gorm:"not null"`
	IsOnline      bool   `gorm:"not null;default:true"`
	CapacityBytes int64
	CreatedAt     time.Time
}

func (n Node) toType() types.StorageNode {
	return types.StorageNode{
		ID:            types.NodeID(n.ID),
		Name:          n.Name,
		BaseURL:       n.BaseURL,
		Online:        n.IsOnline,
		CapacityBytes: n.CapacityBytes,
		CreatedAt:     n.CreatedAt,
	}
}

type File struct {
	ID          int64  `gorm:"primaryKey"`
	Name        string `gorm:"not null"`
	ContentType string
	OwnerID     int64  `gorm:"index;not null"`
	FolderID    *int64 `gorm:"index"`
	// LastVersionNumber is the highest version number ever assigned to
	// this file. It only grows, so numbers of deleted versions are never
	// handed out again.
	LastVersionNumber int `gorm:"not null;default:0"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (f File) toType() types.File {
	file := types.File{
		ID:          types.FileID(f.ID),
		Name:        f.Name,
		ContentType: f.ContentType,
		OwnerID:     types.UserID(f.OwnerID),
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
	if f.FolderID != nil {
		folder := types.FolderID(*f.FolderID)
		file.FolderID = &folder
	}
	return file
}

type FileVersion struct {
	ID            int64 `gorm:"primaryKey"`
	FileID        int64 `gorm:"index;not null"`
	VersionNumber int   `gorm:"not null"`
	SizeBytes     int64 `gorm:"not null"`
	CreatedAt     time.Time
}

func (v FileVersion) toType() types.FileVersion {
	return types.FileVersion{
		ID:        types.VersionID(v.ID),
		FileID:    types.FileID(v.FileID),
		Number:    v.VersionNumber,
		SizeBytes: v.SizeBytes,
		CreatedAt: v.CreatedAt,
	}
}

type Chunk struct {
	// The storage key (UUID) doubles as the primary key.
	ID            string `gorm:"primaryKey"`
	FileVersionID int64  `gorm:"index;not null"`
	Index         int    `gorm:"not null"`
	SizeBytes     int64  `gorm:"not null"`
	CreatedAt     time.Time
}

func (c Chunk) toType() types.Chunk {
	return types.Chunk{
		ID:        types.ChunkID(c.ID),
		VersionID: types.VersionID(c.FileVersionID),
		Index:     c.Index,
		SizeBytes: c.SizeBytes,
	}
}

type ChunkLocation struct {
	ID        int64  `gorm:"primaryKey"`
	ChunkID   string `gorm:"uniqueIndex:uq_chunk_node;not null"`
	NodeID    int64  `gorm:"uniqueIndex:uq_chunk_node;not null"`
	CreatedAt time.Time
}

type FilePermission struct {
	ID        int64  `gorm:"primaryKey"`
	FileID    int64  `gorm:"uniqueIndex:uq_file_user;not null"`
	UserID    int64  `gorm:"uniqueIndex:uq_file_user;not null"`
	Role      string `gorm:"not null"`
	CreatedAt time.Time
}
