package store

import "time"

// gorm 实体，AutoMigrate 用；热路径上的条件更新走 database/sql（见 sync_store.go）

type Document struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	Title          string `gorm:"type:varchar(255);not null"`
	OwnerID        uint64 `gorm:"index;not null"`
	ContentPath    string `gorm:"type:varchar(500);not null"`
	CurrentVersion uint64 `gorm:"not null;default:0"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DocumentOperation：只追加的操作日志，sequence_number 恒等于 version_after
type DocumentOperation struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	DocumentID     uint64 `gorm:"index;not null"`
	UserID         uint64 `gorm:"index;not null"`
	OperationType  string `gorm:"type:varchar(20);not null"`
	OperationData  string `gorm:"type:json;not null"`
	SequenceNumber uint64 `gorm:"index;not null"`
	VersionBefore  uint64 `gorm:"not null"`
	VersionAfter   uint64 `gorm:"not null"`
	Timestamp      time.Time `gorm:"autoCreateTime"`
}

type DocumentShare struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	DocumentID uint64 `gorm:"not null;uniqueIndex:uniq_doc_user"`
	UserID     uint64 `gorm:"index;not null;uniqueIndex:uniq_doc_user"`
	Permission string `gorm:"type:varchar(10);not null;default:edit"`
	SharedBy   uint64 `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type User struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"type:varchar(64);uniqueIndex;not null"`
	PasswordHash []byte `gorm:"type:varbinary(72);not null"`
	Color        string `gorm:"type:varchar(16)"` // 编辑者光标颜色
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
