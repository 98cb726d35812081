package permission

import (
	"context"
	"testing"

	"github.com/apshuang/ShareDocs/backend/internal/store"
)

type fakeDocs struct {
	owners map[uint64]uint64
}

func (f *fakeDocs) OwnerOf(ctx context.Context, docID uint64) (uint64, error) {
	owner, ok := f.owners[docID]
	if !ok {
		return 0, store.ErrDocumentNotFound
	}
	return owner, nil
}

type fakeShares struct {
	perms map[[2]uint64]string // (docID, userID) -> level
}

func (f *fakeShares) SharedPermission(ctx context.Context, docID, userID uint64) (string, bool, error) {
	p, ok := f.perms[[2]uint64{docID, userID}]
	return p, ok, nil
}

func TestLevelOrdering(t *testing.T) {
	if !(None < Read && Read < Edit && Edit < Admin) {
		t.Fatalf("level ordering broken")
	}
	if !Edit.AtLeast(Read) || !Edit.AtLeast(Edit) || Edit.AtLeast(Admin) {
		t.Fatalf("AtLeast broken")
	}
	if Read.AtLeast(Edit) {
		t.Fatalf("read must not satisfy edit")
	}
}

func TestParseLevelRoundTrip(t *testing.T) {
	for _, l := range []Level{None, Read, Edit, Admin} {
		got, err := ParseLevel(l.String())
		if err != nil {
			t.Fatalf("ParseLevel(%q) error = %v", l.String(), err)
		}
		if got != l {
			t.Fatalf("ParseLevel(%q) = %v, want %v", l.String(), got, l)
		}
	}
	if _, err := ParseLevel("owner"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestResolver_OwnerIsAdmin(t *testing.T) {
	r := NewResolver(&fakeDocs{owners: map[uint64]uint64{1: 10}}, &fakeShares{})
	level, err := r.LevelFor(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("LevelFor() error = %v", err)
	}
	if level != Admin {
		t.Fatalf("owner level = %v, want Admin", level)
	}
}

func TestResolver_SharedUser(t *testing.T) {
	shares := &fakeShares{perms: map[[2]uint64]string{{1, 20}: "edit", {1, 21}: "read"}}
	r := NewResolver(&fakeDocs{owners: map[uint64]uint64{1: 10}}, shares)

	level, err := r.LevelFor(context.Background(), 1, 20)
	if err != nil {
		t.Fatalf("LevelFor() error = %v", err)
	}
	if level != Edit {
		t.Fatalf("level = %v, want Edit", level)
	}

	level, _ = r.LevelFor(context.Background(), 1, 21)
	if level != Read {
		t.Fatalf("level = %v, want Read", level)
	}
}

func TestResolver_NoShareIsNone(t *testing.T) {
	r := NewResolver(&fakeDocs{owners: map[uint64]uint64{1: 10}}, &fakeShares{})
	level, err := r.LevelFor(context.Background(), 1, 99)
	if err != nil {
		t.Fatalf("LevelFor() error = %v", err)
	}
	if level != None {
		t.Fatalf("level = %v, want None", level)
	}
}

func TestResolver_MissingDocument(t *testing.T) {
	r := NewResolver(&fakeDocs{owners: map[uint64]uint64{}}, &fakeShares{})
	if _, err := r.LevelFor(context.Background(), 5, 1); err == nil {
		t.Fatalf("expected error for missing document")
	}
}
