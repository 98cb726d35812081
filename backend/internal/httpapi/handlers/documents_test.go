package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/apshuang/ShareDocs/backend/internal/collab"
	"github.com/apshuang/ShareDocs/backend/internal/operation"
	"github.com/apshuang/ShareDocs/backend/internal/permission"
	"github.com/apshuang/ShareDocs/backend/internal/store"
)

// 同步引擎的假实现，按预置的返回值应答 Submit
type fakeSyncService struct {
	applied collab.AppliedOp
	err     error

	gotDocID  uint64
	gotUserID uint64
	gotOp     operation.Operation
	called    bool
}

func (f *fakeSyncService) Submit(_ context.Context, docID, userID uint64, op operation.Operation) (collab.AppliedOp, error) {
	f.called = true
	f.gotDocID = docID
	f.gotUserID = userID
	f.gotOp = op
	return f.applied, f.err
}

func (f *fakeSyncService) CurrentVersion(context.Context, uint64) (uint64, error) {
	return f.applied.Version, f.err
}

func (f *fakeSyncService) LoadDocument(context.Context, uint64) (string, uint64, error) {
	return "", f.applied.Version, f.err
}

// 权限源的假实现：ownerID 是文档所有者，missing 时文档不存在
type fakeDocSource struct {
	ownerID uint64
	missing bool
}

func (f *fakeDocSource) OwnerOf(context.Context, uint64) (uint64, error) {
	if f.missing {
		return 0, store.ErrDocumentNotFound
	}
	return f.ownerID, nil
}

type fakeShareSource struct {
	perm string
}

func (f *fakeShareSource) SharedPermission(context.Context, uint64, uint64) (string, bool, error) {
	if f.perm == "" {
		return "", false, nil
	}
	return f.perm, true, nil
}

func newOpRouter(t *testing.T, svc collab.Service, docs permission.DocumentSource, shares permission.ShareSource, userID uint64) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewDocumentHandler(nil, nil, nil, nil, nil,
		permission.NewResolver(docs, shares), svc, nil, nil)
	r := gin.New()
	r.POST("/api/documents/:documentID/operations", func(c *gin.Context) {
		c.Set("userId", userID)
		c.Set("username", "tester")
		h.ApplyOperation(c)
	})
	return r
}

func postOperation(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const insertBody = `{"type":"insert","from_pos":0,"to_pos":0,"content":"hi","base_version":0}`

func TestApplyOperationSuccess(t *testing.T) {
	svc := &fakeSyncService{applied: collab.AppliedOp{DocID: 7, UserID: 1, Version: 1}}
	r := newOpRouter(t, svc, &fakeDocSource{ownerID: 1}, &fakeShareSource{}, 1)

	w := postOperation(r, "/api/documents/7/operations", insertBody)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	if !svc.called {
		t.Fatal("Submit was not called")
	}
	if svc.gotDocID != 7 || svc.gotUserID != 1 {
		t.Fatalf("Submit got doc=%d user=%d", svc.gotDocID, svc.gotUserID)
	}
	if svc.gotOp.Kind != operation.KindInsert {
		t.Fatalf("Submit got kind %q", svc.gotOp.Kind)
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Version uint64 `json:"version"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Success || resp.Data.Version != 1 {
		t.Fatalf("response = %s", w.Body.String())
	}
}

func TestApplyOperationVersionConflictMapsTo409(t *testing.T) {
	svc := &fakeSyncService{err: &collab.ConflictError{Expected: 5, Got: 3}}
	r := newOpRouter(t, svc, &fakeDocSource{ownerID: 1}, &fakeShareSource{}, 1)

	w := postOperation(r, "/api/documents/7/operations", insertBody)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "expected_version") {
		t.Fatalf("conflict body missing expected_version: %s", w.Body.String())
	}
}

func TestApplyOperationInvalidOpMapsTo400(t *testing.T) {
	svc := &fakeSyncService{err: operation.ErrInvalidRange}
	r := newOpRouter(t, svc, &fakeDocSource{ownerID: 1}, &fakeShareSource{}, 1)

	w := postOperation(r, "/api/documents/7/operations", insertBody)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", w.Code, w.Body.String())
	}
}

func TestApplyOperationReadOnlyUserGets403(t *testing.T) {
	svc := &fakeSyncService{}
	// 用户 2 只有 read 权限
	r := newOpRouter(t, svc, &fakeDocSource{ownerID: 1}, &fakeShareSource{perm: "read"}, 2)

	w := postOperation(r, "/api/documents/7/operations", insertBody)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403, body=%s", w.Code, w.Body.String())
	}
	if svc.called {
		t.Fatal("Submit should not run without edit permission")
	}
}

func TestApplyOperationMissingDocumentGets404(t *testing.T) {
	svc := &fakeSyncService{}
	r := newOpRouter(t, svc, &fakeDocSource{missing: true}, &fakeShareSource{}, 1)

	w := postOperation(r, "/api/documents/7/operations", insertBody)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body=%s", w.Code, w.Body.String())
	}
	if svc.called {
		t.Fatal("Submit should not run for a missing document")
	}
}

func TestApplyOperationBadDocumentID(t *testing.T) {
	svc := &fakeSyncService{}
	r := newOpRouter(t, svc, &fakeDocSource{ownerID: 1}, &fakeShareSource{}, 1)

	w := postOperation(r, "/api/documents/not-a-number/operations", insertBody)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", w.Code, w.Body.String())
	}
}

func TestApplyOperationMalformedJSON(t *testing.T) {
	svc := &fakeSyncService{}
	r := newOpRouter(t, svc, &fakeDocSource{ownerID: 1}, &fakeShareSource{}, 1)

	w := postOperation(r, "/api/documents/7/operations", `{"type":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", w.Code, w.Body.String())
	}
	if svc.called {
		t.Fatal("Submit should not run on malformed JSON")
	}
}
