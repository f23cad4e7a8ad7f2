package metadata

import (
	"context"
	"errors"

	"cloudrive/pkg/fault"
	"cloudrive/pkg/types"

	"gorm.io/gorm"
)

// CreateFile inserts the file row together with the owner's permission
// row.
func (s *Store) CreateFile(ctx context.Context, name, contentType string, ownerID types.UserID, folderID *types.FolderID) (types.File, error) {
	file := File{Name: name, ContentType: contentType, OwnerID: int64(ownerID)}
	if folderID != nil {
		folder := int64(*folderID)
		file.FolderID = &folder
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&file).Error; err != nil {
			return err
		}
		perm := FilePermission{FileID: file.ID, UserID: int64(ownerID), Role: string(types.RoleOwner)}
		return tx.Create(&perm).Error
	})
	if err != nil {
		return types.File{}, storeErr(err, "")
	}
	return file.toType(), nil
}

// GetFileForUser resolves the file only if the user holds a role that
// satisfies the required one. Missing permission rows read as Forbidden,
// not NotFound, matching the permission-first check order.
func (s *Store) GetFileForUser(ctx context.Context, fileID types.FileID, userID types.UserID, required types.Role) (types.File, error) {
	var perm FilePermission
	err := s.db.WithContext(ctx).
		Where("file_id = ? AND user_id = ?", int64(fileID), int64(userID)).
		First(&perm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.File{}, fault.New(fault.Forbidden, "you do not have access to this file")
		}
		return types.File{}, storeErr(err, "")
	}

	if !types.Role(perm.Role).Allows(required) {
		return types.File{}, fault.New(fault.Forbidden, "requires %s permission", required)
	}

	var file File
	if err := s.db.WithContext(ctx).First(&file, int64(fileID)).Error; err != nil {
		return types.File{}, storeErr(err, "file not found")
	}
	return file.toType(), nil
}

// GrantPermission creates or updates the user's role on a file.
func (s *Store) GrantPermission(ctx context.Context, fileID types.FileID, userID types.UserID, role types.Role) error {
	if !role.Valid() {
		return fault.New(fault.Invalid, "unknown role %q", role)
	}

	var perm FilePermission
	err := s.db.WithContext(ctx).
		Where("file_id = ? AND user_id = ?", int64(fileID), int64(userID)).
		First(&perm).Error
	switch {
	case err == nil:
		perm.Role = string(role)
		if err := s.db.WithContext(ctx).Save(&perm).Error; err != nil {
			return storeErr(err, "")
		}
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		perm = FilePermission{FileID: int64(fileID), UserID: int64(userID), Role: string(role)}
		if err := s.db.WithContext(ctx).Create(&perm).Error; err != nil {
			return storeErr(err, "")
		}
		return nil
	default:
		return storeErr(err, "")
	}
}

// DeleteFile removes the file with all versions, chunks, locations and
// permissions. Replica blobs on the daemons are orphaned, as with
// version deletion.
func (s *Store) DeleteFile(ctx context.Context, fileID types.FileID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var file File
		if err := tx.First(&file, int64(fileID)).Error; err != nil {
			return err
		}

		versionIDs := tx.Model(&FileVersion{}).Select("id").Where("file_id = ?", int64(fileID))
		chunkIDs := tx.Model(&Chunk{}).Select("id").Where("file_version_id IN (?)", versionIDs)

		if err := tx.Where("chunk_id IN (?)", chunkIDs).Delete(&ChunkLocation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("file_version_id IN (?)", versionIDs).Delete(&Chunk{}).Error; err != nil {
			return err
		}
		if err := tx.Where("file_id = ?", int64(fileID)).Delete(&FileVersion{}).Error; err != nil {
			return err
		}
		if err := tx.Where("file_id = ?", int64(fileID)).Delete(&FilePermission{}).Error; err != nil {
			return err
		}
		return tx.Delete(&File{}, int64(fileID)).Error
	})
	if err != nil {
		return storeErr(err, "file not found")
	}
	return nil
}
