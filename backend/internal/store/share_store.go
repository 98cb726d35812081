package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrShareNotFound = errors.New("share not found")

type ShareStore struct {
	db *gorm.DB
}

func NewShareStore(db *gorm.DB) *ShareStore {
	return &ShareStore{db: db}
}

// SharedPermission 给权限解析用：没有分享记录返回 ("", false, nil)
func (s *ShareStore) SharedPermission(ctx context.Context, docID, userID uint64) (string, bool, error) {
	var share DocumentShare
	err := s.db.WithContext(ctx).
		Where("document_id = ? AND user_id = ?", docID, userID).
		First(&share).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return share.Permission, true, nil
}

// Upsert：同一 (document_id, user_id) 已存在则更新权限和分享人
func (s *ShareStore) Upsert(ctx context.Context, docID, userID uint64, permission string, sharedBy uint64) (*DocumentShare, error) {
	share := &DocumentShare{
		DocumentID: docID,
		UserID:     userID,
		Permission: permission,
		SharedBy:   sharedBy,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"permission", "shared_by"}),
		}).
		Create(share).Error
	if err != nil {
		return nil, err
	}
	// upsert 走了 update 分支时 gorm 不回填主键，重新读一次
	var out DocumentShare
	if err := s.db.WithContext(ctx).
		Where("document_id = ? AND user_id = ?", docID, userID).
		First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

type ShareWithUser struct {
	DocumentShare
	Username string `json:"username"`
}

func (s *ShareStore) ListByDocument(ctx context.Context, docID uint64) ([]ShareWithUser, error) {
	var shares []ShareWithUser
	err := s.db.WithContext(ctx).
		Model(&DocumentShare{}).
		Select("document_shares.*, users.username").
		Joins("JOIN users ON users.id = document_shares.user_id").
		Where("document_shares.document_id = ?", docID).
		Scan(&shares).Error
	return shares, err
}

func (s *ShareStore) DeleteByID(ctx context.Context, docID, shareID uint64) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND document_id = ?", shareID, docID).
		Delete(&DocumentShare{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrShareNotFound
	}
	return nil
}
