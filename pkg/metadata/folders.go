package metadata

import (
	"context"
	"errors"

	"cloudrive/pkg/fault"
	"cloudrive/pkg/types"

	"gorm.io/gorm"
)

const folderPageSize = 10

func (s *Store) CreateFolder(ctx context.Context, name string, ownerID types.UserID, parentID *types.FolderID) (types.Folder, error) {
	query := s.db.WithContext(ctx).Where("owner_id = ? AND name = ?", int64(ownerID), name)
	if parentID != nil {
		query = query.Where("parent_id = ?", int64(*parentID))
	} else {
		query = query.Where("parent_id IS NULL")
	}

	var existing Folder
	err := query.First(&existing).Error
	if err == nil {
		return types.Folder{}, fault.New(fault.Conflict, "folder with that name already exists here")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Folder{}, storeErr(err, "")
	}

	folder := Folder{Name: name, OwnerID: int64(ownerID)}
	if parentID != nil {
		parent := int64(*parentID)
		folder.ParentID = &parent
	}
	if err := s.db.WithContext(ctx).Create(&folder).Error; err != nil {
		return types.Folder{}, storeErr(err, "")
	}
	return folder.toType(), nil
}

// ListFolders returns the user's folders newest first, paginated from
// page 1.
func (s *Store) ListFolders(ctx context.Context, ownerID types.UserID, page int) ([]types.Folder, error) {
	if page < 1 {
		page = 1
	}

	var rows []Folder
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", int64(ownerID)).
		Order("created_at desc").
		Offset((page - 1) * folderPageSize).
		Limit(folderPageSize).
		Find(&rows).Error
	if err != nil {
		return nil, storeErr(err, "")
	}

	folders := make([]types.Folder, 0, len(rows))
	for _, row := range rows {
		folders = append(folders, row.toType())
	}
	return folders, nil
}

// DeleteFolder refuses to delete a folder that still holds files or
// subfolders.
func (s *Store) DeleteFolder(ctx context.Context, folderID types.FolderID, ownerID types.UserID) error {
	var folder Folder
	err := s.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", int64(folderID), int64(ownerID)).
		First(&folder).Error
	if err != nil {
		return storeErr(err, "folder not found")
	}

	var fileCount int64
	if err := s.db.WithContext(ctx).Model(&File{}).Where("folder_id = ?", int64(folderID)).Count(&fileCount).Error; err != nil {
		return storeErr(err, "")
	}
	if fileCount > 0 {
		return fault.New(fault.Conflict, "folder is not empty: move or delete files first")
	}

	var subCount int64
	if err := s.db.WithContext(ctx).Model(&Folder{}).Where("parent_id = ?", int64(folderID)).Count(&subCount).Error; err != nil {
		return storeErr(err, "")
	}
	if subCount > 0 {
		return fault.New(fault.Conflict, "folder contains subfolders: delete or move them first")
	}

	if err := s.db.WithContext(ctx).Delete(&Folder{}, int64(folderID)).Error; err != nil {
		return storeErr(err, "")
	}
	return nil
}
