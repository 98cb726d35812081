package store

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// OperationLogStore：操作日志的读取端。
// 写入端在 MySQLSyncStore.CommitOperation 里，和版本推进同一个事务。
type OperationLogStore struct {
	db *gorm.DB
}

func NewOperationLogStore(db *gorm.DB) *OperationLogStore {
	return &OperationLogStore{db: db}
}

// ListByDocument：按 sequence_number 升序枚举一个文档的全部操作（审计/历史用）
func (s *OperationLogStore) ListByDocument(ctx context.Context, docID uint64) ([]DocumentOperation, error) {
	var ops []DocumentOperation
	err := s.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("sequence_number ASC").
		Find(&ops).Error
	return ops, err
}

type Editor struct {
	UserID       uint64    `json:"user_id"`
	Username     string    `json:"username"`
	Color        string    `json:"color"`
	LastEditTime time.Time `json:"last_edit_time"`
}

// RecentEditors：从操作日志聚合出编辑过该文档的用户，按最近编辑时间倒序
func (s *OperationLogStore) RecentEditors(ctx context.Context, docID uint64) ([]Editor, error) {
	var editors []Editor
	err := s.db.WithContext(ctx).
		Model(&DocumentOperation{}).
		Select("document_operations.user_id, users.username, users.color, MAX(document_operations.timestamp) AS last_edit_time").
		Joins("JOIN users ON users.id = document_operations.user_id").
		Where("document_operations.document_id = ?", docID).
		Group("document_operations.user_id, users.username, users.color").
		Order("last_edit_time DESC").
		Scan(&editors).Error
	if err != nil {
		return nil, err
	}
	return editors, nil
}
