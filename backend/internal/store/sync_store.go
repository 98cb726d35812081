package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/apshuang/ShareDocs/backend/internal/collab"
)

// MySQLSyncStore：同步引擎的版本/日志存储实现。
// 条件更新 + 日志追加 + 内容暂存在同一个事务窗口内完成，
// 实现 collab.SyncStore 要求的原子语义。
type MySQLSyncStore struct {
	db *sql.DB
}

func NewMySQLSyncStore(db *sql.DB) *MySQLSyncStore {
	return &MySQLSyncStore{db: db}
}

func (s *MySQLSyncStore) CurrentVersion(ctx context.Context, docID uint64) (uint64, error) {
	var version uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT current_version FROM documents WHERE id = ?`,
		docID,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, collab.ErrDocumentNotFound
	}
	return version, err
}

// CommitOperation 的执行顺序：
//  1. 条件更新版本号：UPDATE ... WHERE id = ? AND current_version = ?，
//     affected rows == 0 说明版本已被别人推进，回滚并报冲突
//  2. 追加操作日志
//  3. 执行 stageContent（新内容写到暂存文件），失败则回滚，版本不会推进
//  4. 提交事务；正式内容文件随后由调用方 Promote 原子替换
//
// 调用方（SyncService）还持有文档级互斥锁，这里的条件更新是第二道防线，
// 防住绕过协调器的写入者。
func (s *MySQLSyncStore) CommitOperation(ctx context.Context, entry collab.LogEntry, stageContent func() error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	// 提交成功后 Rollback 是 no-op
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE documents SET current_version = ? WHERE id = ? AND current_version = ?`,
		entry.VersionAfter, entry.DocumentID, entry.VersionBefore,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// 区分“文档不存在”和“版本被别人推进”
		var current uint64
		scanErr := tx.QueryRowContext(ctx,
			`SELECT current_version FROM documents WHERE id = ?`, entry.DocumentID,
		).Scan(&current)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return collab.ErrDocumentNotFound
		}
		if scanErr != nil {
			return scanErr
		}
		return &collab.ConflictError{Expected: current, Got: entry.VersionBefore}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO document_operations
		(document_id, user_id, operation_type, operation_data, sequence_number, version_before, version_after, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, NOW())`,
		entry.DocumentID, entry.UserID, entry.Kind, string(entry.Payload),
		entry.SequenceNumber, entry.VersionBefore, entry.VersionAfter,
	)
	if err != nil {
		return err
	}

	if err := stageContent(); err != nil {
		return err
	}

	return tx.Commit()
}
