package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var ErrDocumentNotFound = errors.New("document not found")

type DocumentStore struct {
	db *gorm.DB
}

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) CreateDocument(ctx context.Context, ownerID uint64, title string, contentPath string) (*Document, error) {
	doc := &Document{
		Title:          title,
		OwnerID:        ownerID,
		ContentPath:    contentPath,
		CurrentVersion: 0,
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *DocumentStore) UpdateContentPath(ctx context.Context, docID uint64, contentPath string) error {
	return s.db.WithContext(ctx).Model(&Document{}).
		Where("id = ?", docID).
		Update("content_path", contentPath).Error
}

func (s *DocumentStore) GetDocument(ctx context.Context, docID uint64) (*Document, error) {
	var doc Document
	err := s.db.WithContext(ctx).Where("id = ?", docID).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return &doc, nil
}

// OwnerOf 给权限解析用的窄查询
func (s *DocumentStore) OwnerOf(ctx context.Context, docID uint64) (uint64, error) {
	doc, err := s.GetDocument(ctx, docID)
	if err != nil {
		return 0, err
	}
	return doc.OwnerID, nil
}

// ListForUser：本人拥有的 + 被分享的文档，按更新时间倒序，支持标题搜索和分页。
// 返回 (文档列表, 总数)。
func (s *DocumentStore) ListForUser(ctx context.Context, userID uint64, search string, page, pageSize int) ([]Document, int64, error) {
	shared := s.db.Model(&DocumentShare{}).Select("document_id").Where("user_id = ?", userID)
	query := s.db.WithContext(ctx).Model(&Document{}).
		Where("owner_id = ? OR id IN (?)", userID, shared)
	if search != "" {
		query = query.Where("title LIKE ?", "%"+search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var docs []Document
	err := query.Order("updated_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&docs).Error
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

func (s *DocumentStore) UpdateTitle(ctx context.Context, docID uint64, title string) error {
	return s.db.WithContext(ctx).Model(&Document{}).
		Where("id = ?", docID).
		Update("title", title).Error
}

// DeleteDocument：删除文档并级联清理分享记录和操作日志
// （操作日志只在这条级联路径上会被删除）
func (s *DocumentStore) DeleteDocument(ctx context.Context, docID uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", docID).Delete(&DocumentShare{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", docID).Delete(&DocumentOperation{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", docID).Delete(&Document{}).Error
	})
}
