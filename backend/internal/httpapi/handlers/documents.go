package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/apshuang/ShareDocs/backend/internal/cache"
	"github.com/apshuang/ShareDocs/backend/internal/collab"
	"github.com/apshuang/ShareDocs/backend/internal/operation"
	"github.com/apshuang/ShareDocs/backend/internal/permission"
	"github.com/apshuang/ShareDocs/backend/internal/store"
)

type DocumentHandler struct {
	docs     *store.DocumentStore
	shares   *store.ShareStore
	users    *store.UserStore
	oplog    *store.OperationLogStore
	contents *store.FileContentStore
	perms    *permission.Resolver
	svc      collab.Service
	sem      *collab.SemaphoreControl
	presence cache.PresenceCache
}

func NewDocumentHandler(
	docs *store.DocumentStore,
	shares *store.ShareStore,
	users *store.UserStore,
	oplog *store.OperationLogStore,
	contents *store.FileContentStore,
	perms *permission.Resolver,
	svc collab.Service,
	sem *collab.SemaphoreControl,
	presence cache.PresenceCache,
) *DocumentHandler {
	return &DocumentHandler{
		docs:     docs,
		shares:   shares,
		users:    users,
		oplog:    oplog,
		contents: contents,
		perms:    perms,
		svc:      svc,
		sem:      sem,
		presence: presence,
	}
}

type createDocumentReq struct {
	Title   string `json:"title" binding:"required,max=255"`
	Content string `json:"content"`
}

type updateDocumentReq struct {
	Title *string `json:"title"`
}

type shareReq struct {
	UserID     uint64 `json:"user_id" binding:"required"`
	Permission string `json:"permission" binding:"required,oneof=read edit admin"`
}

// 从 gin.Context 获取用户信息；鉴权中间件保证一定存在
func currentUser(c *gin.Context) uint64 {
	return c.GetUint64("userId")
}

func docIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("documentID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "非法的文档ID"})
		return 0, false
	}
	return id, true
}

// POST /api/documents
func (h *DocumentHandler) CreateDocument(c *gin.Context) {
	var req createDocumentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "JSON格式错误", "details": err.Error()})
		return
	}
	userID := currentUser(c)

	doc, err := h.docs.CreateDocument(c.Request.Context(), userID, req.Title, "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "文档创建失败"})
		return
	}
	// 拿到自增 ID 之后才能确定内容文件路径
	if err := h.docs.UpdateContentPath(c.Request.Context(), doc.ID, h.contents.Path(doc.ID)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "文档创建失败"})
		return
	}
	if err := h.contents.Write(doc.ID, req.Content); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "文档创建失败"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"id":              doc.ID,
			"title":           doc.Title,
			"owner_id":        doc.OwnerID,
			"current_version": doc.CurrentVersion,
			"created_at":      doc.CreatedAt.Format(time.RFC3339),
			"updated_at":      doc.UpdatedAt.Format(time.RFC3339),
		},
		"message": "文档创建成功",
	})
}

// GET /api/documents?page=&page_size=&search=
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	userID := currentUser(c)

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if err != nil || pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	search := c.Query("search")

	docs, total, err := h.docs.ListForUser(c.Request.Context(), userID, search, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "获取文档列表失败"})
		return
	}

	items := make([]gin.H, 0, len(docs))
	for _, doc := range docs {
		level, err := h.perms.LevelFor(c.Request.Context(), doc.ID, userID)
		if err != nil {
			level = permission.None
		}
		items = append(items, gin.H{
			"id":              doc.ID,
			"title":           doc.Title,
			"owner_id":        doc.OwnerID,
			"is_owner":        doc.OwnerID == userID,
			"permission":      level.String(),
			"current_version": doc.CurrentVersion,
			"created_at":      doc.CreatedAt.Format(time.RFC3339),
			"updated_at":      doc.UpdatedAt.Format(time.RFC3339),
		})
	}

	totalPages := (total + int64(pageSize) - 1) / int64(pageSize)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"items":       items,
			"total":       total,
			"page":        page,
			"page_size":   pageSize,
			"total_pages": totalPages,
		},
		"message": "获取成功",
	})
}

// GET /api/documents/:documentID
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	docID, ok := docIDParam(c)
	if !ok {
		return
	}
	userID := currentUser(c)

	level, err := h.perms.LevelFor(c.Request.Context(), docID, userID)
	if err != nil || !level.AtLeast(permission.Read) {
		// 无权访问和不存在统一回 404，避免泄露文档是否存在
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "文档不存在或无权访问"})
		return
	}

	doc, err := h.docs.GetDocument(c.Request.Context(), docID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "文档不存在"})
		return
	}
	content, version, err := h.svc.LoadDocument(c.Request.Context(), docID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "读取文档内容失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"id":              doc.ID,
			"title":           doc.Title,
			"owner_id":        doc.OwnerID,
			"content":         content,
			"current_version": version,
			"permission":      level.String(),
			"created_at":      doc.CreatedAt.Format(time.RFC3339),
			"updated_at":      doc.UpdatedAt.Format(time.RFC3339),
		},
		"message": "获取成功",
	})
}

// PATCH /api/documents/:documentID
func (h *DocumentHandler) UpdateDocument(c *gin.Context) {
	docID, ok := docIDParam(c)
	if !ok {
		return
	}
	var req updateDocumentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "JSON格式错误"})
		return
	}

	doc, err := h.docs.GetDocument(c.Request.Context(), docID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "文档不存在"})
		return
	}
	if doc.OwnerID != currentUser(c) {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "只有文档所有者可以修改标题"})
		return
	}

	if req.Title != nil {
		if err := h.docs.UpdateTitle(c.Request.Context(), docID, *req.Title); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "更新失败"})
			return
		}
		doc.Title = *req.Title
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"id":    doc.ID,
			"title": doc.Title,
		},
		"message": "更新成功",
	})
}

// DELETE /api/documents/:documentID
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	docID, ok := docIDParam(c)
	if !ok {
		return
	}

	doc, err := h.docs.GetDocument(c.Request.Context(), docID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "文档不存在"})
		return
	}
	if doc.OwnerID != currentUser(c) {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "只有文档所有者可以删除文档"})
		return
	}

	if err := h.contents.Remove(docID); err != nil {
		log.Printf("remove content file failed doc=%d: %v", docID, err)
	}
	if err := h.docs.DeleteDocument(c.Request.Context(), docID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "文档删除失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "文档删除成功"})
}

// GET /api/documents/:documentID/editors
func (h *DocumentHandler) GetDocumentEditors(c *gin.Context) {
	docID, ok := docIDParam(c)
	if !ok {
		return
	}
	userID := currentUser(c)

	level, err := h.perms.LevelFor(c.Request.Context(), docID, userID)
	if err != nil || !level.AtLeast(permission.Read) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "文档不存在或无权访问"})
		return
	}

	editors, err := h.oplog.RecentEditors(c.Request.Context(), docID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "获取编辑者失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"editors": editors},
		"message": "获取成功",
	})
}

// GET /api/documents/:documentID/presence —— 此刻在线（presence 心跳未过期）的成员
func (h *DocumentHandler) GetActiveMembers(c *gin.Context) {
	docID, ok := docIDParam(c)
	if !ok {
		return
	}
	userID := currentUser(c)

	level, err := h.perms.LevelFor(c.Request.Context(), docID, userID)
	if err != nil || !level.AtLeast(permission.Read) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "文档不存在或无权访问"})
		return
	}

	members, err := h.presence.GetAliveMembersWithNames(c.Request.Context(), docID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "获取在线成员失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"members": members},
		"message": "获取成功",
	})
}

// GET /api/documents/:documentID/operations —— 审计/历史：按序号升序枚举
func (h *DocumentHandler) ListOperations(c *gin.Context) {
	docID, ok := docIDParam(c)
	if !ok {
		return
	}
	userID := currentUser(c)

	level, err := h.perms.LevelFor(c.Request.Context(), docID, userID)
	if err != nil || !level.AtLeast(permission.Read) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "文档不存在或无权访问"})
		return
	}

	ops, err := h.oplog.ListByDocument(c.Request.Context(), docID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "获取操作记录失败"})
		return
	}
	items := make([]gin.H, 0, len(ops))
	for _, op := range ops {
		items = append(items, gin.H{
			"document_id":     op.DocumentID,
			"user_id":         op.UserID,
			"operation_type":  op.OperationType,
			"sequence_number": op.SequenceNumber,
			"version_before":  op.VersionBefore,
			"version_after":   op.VersionAfter,
			"timestamp":       op.Timestamp.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"operations": items},
		"message": "获取成功",
	})
}

// POST /api/documents/:documentID/operations —— 提交编辑操作
func (h *DocumentHandler) ApplyOperation(c *gin.Context) {
	docID, ok := docIDParam(c)
	if !ok {
		return
	}
	userID := currentUser(c)

	var op operation.Operation
	if err := c.ShouldBindJSON(&op); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "JSON格式错误", "details": err.Error()})
		return
	}

	// 权限检查在版本门控之前：提交操作至少需要 edit
	level, err := h.perms.LevelFor(c.Request.Context(), docID, userID)
	if err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "文档不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "内部错误"})
		return
	}
	if !level.AtLeast(permission.Edit) {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "无权编辑此文档"})
		return
	}

	// 提交入口限流：排队超过 200ms 直接让客户端稍后再试
	if h.sem != nil {
		semCtx, cancel := context.WithTimeout(c.Request.Context(), 200*time.Millisecond)
		err := h.sem.Acquire(semCtx)
		cancel()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "服务繁忙，请稍后再试"})
			return
		}
		defer h.sem.Release()
	}

	applied, err := h.svc.Submit(c.Request.Context(), docID, userID, op)
	if err != nil {
		var conflict *collab.ConflictError
		switch {
		case errors.As(err, &conflict):
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"message": fmt.Sprintf("版本冲突：操作基于版本 %d，但当前版本是 %d", conflict.Got, conflict.Expected),
				"data": gin.H{
					"expected_version": conflict.Expected,
					"base_version":     conflict.Got,
				},
			})
		case errors.Is(err, operation.ErrInvalidRange),
			errors.Is(err, operation.ErrMissingField),
			errors.Is(err, operation.ErrUnknownKind):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": fmt.Sprintf("操作应用失败: %v", err)})
		case errors.Is(err, collab.ErrDocumentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "文档不存在"})
		default:
			// 存储故障不向客户端暴露细节
			log.Printf("submit operation failed doc=%d user=%d: %v", docID, userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "内部错误"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"version":   applied.Version,
			"operation": applied.Op,
		},
		"message": "操作应用成功",
	})
}

// POST /api/documents/:documentID/shares
func (h *DocumentHandler) ShareDocument(c *gin.Context) {
	docID, ok := docIDParam(c)
	if !ok {
		return
	}
	userID := currentUser(c)

	var req shareReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "JSON格式错误", "details": err.Error()})
		return
	}

	doc, err := h.docs.GetDocument(c.Request.Context(), docID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "文档不存在"})
		return
	}
	if doc.OwnerID != userID {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "只有文档所有者可以分享文档"})
		return
	}
	if req.UserID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "不能分享给自己"})
		return
	}
	target, err := h.users.GetUserByID(c.Request.Context(), req.UserID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "目标用户不存在"})
		return
	}

	share, err := h.shares.Upsert(c.Request.Context(), docID, req.UserID, req.Permission, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "文档分享失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"id":          share.ID,
			"document_id": share.DocumentID,
			"user_id":     share.UserID,
			"username":    target.Username,
			"permission":  share.Permission,
			"shared_by":   share.SharedBy,
			"created_at":  share.CreatedAt.Format(time.RFC3339),
			"updated_at":  share.UpdatedAt.Format(time.RFC3339),
		},
		"message": "文档分享成功",
	})
}

// GET /api/documents/:documentID/shares
func (h *DocumentHandler) ListShares(c *gin.Context) {
	docID, ok := docIDParam(c)
	if !ok {
		return
	}

	doc, err := h.docs.GetDocument(c.Request.Context(), docID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "文档不存在"})
		return
	}
	if doc.OwnerID != currentUser(c) {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "只有文档所有者可以查看分享列表"})
		return
	}

	shares, err := h.shares.ListByDocument(c.Request.Context(), docID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "获取分享列表失败"})
		return
	}
	items := make([]gin.H, 0, len(shares))
	for _, s := range shares {
		items = append(items, gin.H{
			"id":          s.ID,
			"document_id": s.DocumentID,
			"user_id":     s.UserID,
			"username":    s.Username,
			"permission":  s.Permission,
			"shared_by":   s.SharedBy,
			"created_at":  s.CreatedAt.Format(time.RFC3339),
			"updated_at":  s.UpdatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"shares": items},
		"message": "获取成功",
	})
}

// DELETE /api/documents/:documentID/shares/:shareID
func (h *DocumentHandler) Unshare(c *gin.Context) {
	docID, ok := docIDParam(c)
	if !ok {
		return
	}
	shareID, err := strconv.ParseUint(c.Param("shareID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "非法的分享ID"})
		return
	}

	doc, err := h.docs.GetDocument(c.Request.Context(), docID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "文档不存在"})
		return
	}
	if doc.OwnerID != currentUser(c) {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "只有文档所有者可以取消分享"})
		return
	}

	if err := h.shares.DeleteByID(c.Request.Context(), docID, shareID); err != nil {
		if errors.Is(err, store.ErrShareNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "分享记录不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "取消分享失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "取消分享成功"})
}
