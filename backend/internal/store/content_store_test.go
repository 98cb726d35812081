package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileContentStore_ReadMissingIsEmpty(t *testing.T) {
	s := NewFileContentStore(t.TempDir())
	got, err := s.Read(42)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got != "" {
		t.Fatalf("Read() = %q, want empty", got)
	}
}

func TestFileContentStore_WriteReadRoundTrip(t *testing.T) {
	s := NewFileContentStore(t.TempDir())
	want := "# 标题\n\nHello **world**"
	if err := s.Write(1, want); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, err := s.Read(1)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got != want {
		t.Fatalf("Read() = %q, want %q", got, want)
	}
}

func TestFileContentStore_PathLayout(t *testing.T) {
	dir := t.TempDir()
	s := NewFileContentStore(dir)
	if err := s.Write(7, "x"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	// 固定的 {docID}.md 布局
	want := filepath.Join(dir, "7.md")
	if s.Path(7) != want {
		t.Fatalf("Path() = %q, want %q", s.Path(7), want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("content file missing: %v", err)
	}
}

func TestFileContentStore_Overwrite(t *testing.T) {
	s := NewFileContentStore(t.TempDir())
	if err := s.Write(1, "first"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := s.Write(1, "second"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, _ := s.Read(1)
	if got != "second" {
		t.Fatalf("Read() = %q, want %q", got, "second")
	}
}

func TestFileContentStore_StagePromote(t *testing.T) {
	s := NewFileContentStore(t.TempDir())
	if err := s.Write(1, "old"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	stage, err := s.Stage(1, "new")
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	// Promote 之前正式内容不变
	got, _ := s.Read(1)
	if got != "old" {
		t.Fatalf("Read() before Promote = %q, want %q", got, "old")
	}

	if err := stage.Promote(); err != nil {
		t.Fatalf("Promote() error = %v", err)
	}
	got, _ = s.Read(1)
	if got != "new" {
		t.Fatalf("Read() after Promote = %q, want %q", got, "new")
	}
	// 临时文件不残留
	if _, err := os.Stat(s.Path(1) + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestFileContentStore_StageDiscard(t *testing.T) {
	s := NewFileContentStore(t.TempDir())
	if err := s.Write(1, "keep"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	stage, err := s.Stage(1, "dropped")
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	stage.Discard()

	got, _ := s.Read(1)
	if got != "keep" {
		t.Fatalf("Read() after Discard = %q, want %q", got, "keep")
	}
	if _, err := os.Stat(s.Path(1) + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestFileContentStore_RemoveIdempotent(t *testing.T) {
	s := NewFileContentStore(t.TempDir())
	if err := s.Write(1, "x"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := s.Remove(1); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	// 再删一次不算错
	if err := s.Remove(1); err != nil {
		t.Fatalf("second Remove() error = %v", err)
	}
	got, _ := s.Read(1)
	if got != "" {
		t.Fatalf("Read() after remove = %q", got)
	}
}
