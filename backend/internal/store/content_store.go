package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/apshuang/ShareDocs/backend/internal/collab"
)

// FileContentStore：一个文档一个文件，文件名 {docID}.md。
// 内容整篇读写，版本信息不在这里，由 documents 表管理。
type FileContentStore struct {
	dir string
}

func NewFileContentStore(dir string) *FileContentStore {
	return &FileContentStore{dir: dir}
}

func (s *FileContentStore) Path(docID uint64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d.md", docID))
}

// Read：文件不存在视为空文档（新建文档还没写过内容）
func (s *FileContentStore) Read(docID uint64) (string, error) {
	b, err := os.ReadFile(s.Path(docID))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(b), nil
}

func (s *FileContentStore) Write(docID uint64, content string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.Path(docID), []byte(content), 0o644)
}

type stagedContent struct {
	tmp   string
	final string
}

func (c *stagedContent) Promote() error { return os.Rename(c.tmp, c.final) }
func (c *stagedContent) Discard()       { _ = os.Remove(c.tmp) }

// Stage：新内容先落到同目录的临时文件，Promote 时原子 rename 到正式路径。
// 调用方在版本提交成功后才 Promote，提交失败则 Discard，
// 避免“内容已替换、版本没提交”的中间态。
func (s *FileContentStore) Stage(docID uint64, content string) (collab.ContentStage, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, err
	}
	tmp := s.Path(docID) + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return nil, err
	}
	return &stagedContent{tmp: tmp, final: s.Path(docID)}, nil
}

// Remove：文档删除时级联清理内容文件，文件不存在不算错
func (s *FileContentStore) Remove(docID uint64) error {
	err := os.Remove(s.Path(docID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
