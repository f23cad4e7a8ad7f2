// Package metadata is the durable record of users, folders, files,
// versions, chunks and chunk placements, backed by a relational database
// through GORM. It implements the coordinator's MetadataStore and
// NodeRegistry contracts plus the CRUD surface of the API.
package metadata

import (
	"context"
	"errors"

	"cloudrive/pkg/fault"
	"cloudrive/pkg/types"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to the given Postgres DSN and migrates the schema.
func Open(databaseURL string, logger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fault.Wrap(fault.Unavailable, err, "failed to connect to metadata database")
	}
	return New(db, logger)
}

// New wraps an existing GORM connection (tests use an in-memory SQLite
// database here) and migrates the schema.
func New(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if err := db.AutoMigrate(
		&User{}, &Folder{}, &Node{}, &File{},
		&FileVersion{}, &Chunk{}, &ChunkLocation{}, &FilePermission{},
	); err != nil {
		return nil, fault.Wrap(fault.Unavailable, err, "failed to migrate metadata schema")
	}
	return &Store{db: db, logger: logger}, nil
}

// storeErr maps database failures onto the fault taxonomy: a missing row
// is NotFound, anything else counts as the store being unavailable.
func storeErr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fault.New(fault.NotFound, "%s", msg)
	}
	return fault.Wrap(fault.Unavailable, err, "metadata store failure")
}

// --- coordinator.NodeRegistry ---

// ListOnlineNodes returns nodes flagged online ordered by id, so ring
// construction sees a stable input for an unchanged node set.
func (s *Store) ListOnlineNodes(ctx context.Context) ([]types.StorageNode, error) {
	var rows []Node
	if err := s.db.WithContext(ctx).Where("is_online = ?", true).Order("id asc").Find(&rows).Error; err != nil {
		return nil, storeErr(err, "")
	}

	nodes := make([]types.StorageNode, 0, len(rows))
	for _, row := range rows {
		nodes = append(nodes, row.toType())
	}
	return nodes, nil
}

// --- coordinator.MetadataStore ---

func (s *Store) NextVersionNumber(ctx context.Context, fileID types.FileID) (int, error) {
	var file File
	if err := s.db.WithContext(ctx).First(&file, int64(fileID)).Error; err != nil {
		return 0, storeErr(err, "file not found")
	}
	return file.LastVersionNumber + 1, nil
}

// CreateVersion inserts the version row and advances the file's
// high-water version number in one transaction.
func (s *Store) CreateVersion(ctx context.Context, fileID types.FileID, number int) (types.FileVersion, error) {
	version := FileVersion{FileID: int64(fileID), VersionNumber: number}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&version).Error; err != nil {
			return err
		}
		return tx.Model(&File{}).
			Where("id = ? AND last_version_number < ?", int64(fileID), number).
			Update("last_version_number", number).Error
	})
	if err != nil {
		return types.FileVersion{}, storeErr(err, "")
	}
	return version.toType(), nil
}

func (s *Store) GetVersion(ctx context.Context, fileID types.FileID, number int) (types.FileVersion, error) {
	var version FileVersion
	err := s.db.WithContext(ctx).
		Where("file_id = ? AND version_number = ?", int64(fileID), number).
		First(&version).Error
	if err != nil {
		return types.FileVersion{}, storeErr(err, "file version not found")
	}
	return version.toType(), nil
}

func (s *Store) LatestVersion(ctx context.Context, fileID types.FileID) (types.FileVersion, error) {
	var version FileVersion
	err := s.db.WithContext(ctx).
		Where("file_id = ?", int64(fileID)).
		Order("version_number desc").
		First(&version).Error
	if err != nil {
		return types.FileVersion{}, storeErr(err, "file has no versions")
	}
	return version.toType(), nil
}

func (s *Store) ListVersions(ctx context.Context, fileID types.FileID) ([]types.FileVersion, error) {
	var rows []FileVersion
	err := s.db.WithContext(ctx).
		Where("file_id = ?", int64(fileID)).
		Order("version_number desc").
		Find(&rows).Error
	if err != nil {
		return nil, storeErr(err, "")
	}

	versions := make([]types.FileVersion, 0, len(rows))
	for _, row := range rows {
		versions = append(versions, row.toType())
	}
	return versions, nil
}

func (s *Store) SetVersionSize(ctx context.Context, versionID types.VersionID, sizeBytes int64) error {
	result := s.db.WithContext(ctx).Model(&FileVersion{}).
		Where("id = ?", int64(versionID)).
		Update("size_bytes", sizeBytes)
	if result.Error != nil {
		return storeErr(result.Error, "")
	}
	if result.RowsAffected == 0 {
		return fault.New(fault.NotFound, "file version not found")
	}
	return nil
}

// DeleteVersion removes the version with its chunks and locations. The
// replica blobs on the storage daemons are left behind on purpose; no
// cleanup protocol exists for them.
func (s *Store) DeleteVersion(ctx context.Context, versionID types.VersionID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var version FileVersion
		if err := tx.First(&version, int64(versionID)).Error; err != nil {
			return err
		}
		if err := tx.Where("chunk_id IN (?)",
			tx.Model(&Chunk{}).Select("id").Where("file_version_id = ?", int64(versionID)),
		).Delete(&ChunkLocation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("file_version_id = ?", int64(versionID)).Delete(&Chunk{}).Error; err != nil {
			return err
		}
		return tx.Delete(&FileVersion{}, int64(versionID)).Error
	})
	if err != nil {
		return storeErr(err, "file version not found")
	}
	return nil
}

// CommitChunk writes the chunk row and one location row per node in a
// single transaction, so no reader can observe the chunk without its
// placements.
func (s *Store) CommitChunk(ctx context.Context, chunk types.Chunk, nodeIDs []types.NodeID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := Chunk{
			ID:            string(chunk.ID),
			FileVersionID: int64(chunk.VersionID),
			Index:         chunk.Index,
			SizeBytes:     chunk.SizeBytes,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		for _, nodeID := range nodeIDs {
			loc := ChunkLocation{ChunkID: string(chunk.ID), NodeID: int64(nodeID)}
			if err := tx.Create(&loc).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storeErr(err, "")
	}
	return nil
}

func (s *Store) ListChunksForVersion(ctx context.Context, versionID types.VersionID) ([]types.Chunk, error) {
	var rows []Chunk
	err := s.db.WithContext(ctx).
		Where("file_version_id = ?", int64(versionID)).
		Order(`"index" asc`).
		Find(&rows).Error
	if err != nil {
		return nil, storeErr(err, "")
	}

	chunks := make([]types.Chunk, 0, len(rows))
	for _, row := range rows {
		chunks = append(chunks, row.toType())
	}
	return chunks, nil
}

// ListOnlineLocationsForChunk returns the chunk's replicas whose node is
// currently flagged online, in insertion order. The reader tries them in
// exactly this order.
func (s *Store) ListOnlineLocationsForChunk(ctx context.Context, chunkID types.ChunkID) ([]types.Replica, error) {
	var rows []struct {
		ChunkID  string
		NodeID   int64
		NodeName string
		BaseURL  string
	}
	err := s.db.WithContext(ctx).
		Table("chunk_locations").
		Select("chunk_locations.chunk_id, chunk_locations.node_id, nodes.name as node_name, nodes.base_url").
		Joins("JOIN nodes ON nodes.id = chunk_locations.node_id").
		Where("chunk_locations.chunk_id = ? AND nodes.is_online = ?", string(chunkID), true).
		Order("chunk_locations.id asc").
		Scan(&rows).Error
	if err != nil {
		return nil, storeErr(err, "")
	}

	replicas := make([]types.Replica, 0, len(rows))
	for _, row := range rows {
		replicas = append(replicas, types.Replica{
			ChunkID:  types.ChunkID(row.ChunkID),
			NodeID:   types.NodeID(row.NodeID),
			NodeName: row.NodeName,
			BaseURL:  row.BaseURL,
		})
	}
	return replicas, nil
}
