package metadata

import (
	"context"
	"errors"

	"cloudrive/pkg/fault"
	"cloudrive/pkg/types"

	"gorm.io/gorm"
)

const nodePageSize = 10

func (s *Store) RegisterNode(ctx context.Context, name, baseURL string, online bool, capacityBytes int64) (types.StorageNode, error) {
	var existing Node
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&existing).Error
	if err == nil {
		return types.StorageNode{}, fault.New(fault.Conflict, "node with that name already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return types.StorageNode{}, storeErr(err, "")
	}

	node := Node{Name: name, BaseURL: baseURL, IsOnline: online, CapacityBytes: capacityBytes}
	if err := s.db.WithContext(ctx).Create(&node).Error; err != nil {
		return types.StorageNode{}, storeErr(err, "")
	}
	return node.toType(), nil
}

func (s *Store) ListNodes(ctx context.Context, page int) ([]types.StorageNode, error) {
	if page < 1 {
		page = 1
	}

	var rows []Node
	err := s.db.WithContext(ctx).
		Order("id asc").
		Offset((page - 1) * nodePageSize).
		Limit(nodePageSize).
		Find(&rows).Error
	if err != nil {
		return nil, storeErr(err, "")
	}

	nodes := make([]types.StorageNode, 0, len(rows))
	for _, row := range rows {
		nodes = append(nodes, row.toType())
	}
	return nodes, nil
}

func (s *Store) GetNode(ctx context.Context, id types.NodeID) (types.StorageNode, error) {
	var node Node
	if err := s.db.WithContext(ctx).First(&node, int64(id)).Error; err != nil {
		return types.StorageNode{}, storeErr(err, "node not found")
	}
	return node.toType(), nil
}

// SetNodeOnline flips the stored liveness flag. This is the only way a
// node's liveness ever changes.
func (s *Store) SetNodeOnline(ctx context.Context, id types.NodeID, online bool) error {
	result := s.db.WithContext(ctx).Model(&Node{}).
		Where("id = ?", int64(id)).
		Update("is_online", online)
	if result.Error != nil {
		return storeErr(result.Error, "")
	}
	if result.RowsAffected == 0 {
		return fault.New(fault.NotFound, "node not found")
	}
	return nil
}

func (s *Store) DeleteNode(ctx context.Context, id types.NodeID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var node Node
		if err := tx.First(&node, int64(id)).Error; err != nil {
			return err
		}
		if err := tx.Where("node_id = ?", int64(id)).Delete(&ChunkLocation{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Node{}, int64(id)).Error
	})
	if err != nil {
		return storeErr(err, "node not found")
	}
	return nil
}
