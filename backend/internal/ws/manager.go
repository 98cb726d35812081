package ws

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/apshuang/ShareDocs/backend/internal/cache"
	"github.com/apshuang/ShareDocs/backend/internal/collab"
	"github.com/apshuang/ShareDocs/backend/internal/permission"
)

// 全局的 WebSocket upgrader（允许本地开发环境的来源）
var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return true
	}
	allowedPrefixes := []string{
		"http://localhost",
		"http://127.0.0.1",
		"https://localhost",
		"https://127.0.0.1",
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}}

type Manager struct {
	registry *Registry
	svc      collab.Service
	perms    *permission.Resolver
	presence cache.PresenceCache
}

func NewManager(registry *Registry, svc collab.Service, perms *permission.Resolver, presence cache.PresenceCache) *Manager {
	return &Manager{registry: registry, svc: svc, perms: perms, presence: presence}
}

// WebSocketConnect：实时连接握手。
// 鉴权由路由上的中间件完成（从 Authorization 或 ?token= 提取），
// 这里只做权限检查（至少 read）和文档存在性检查，然后升级连接、
// 注册会话并下发初始快照。
func (m *Manager) WebSocketConnect(c *gin.Context) {
	userID := c.GetUint64("userId")
	username := c.GetString("username")

	docID, err := strconv.ParseUint(c.Query("document_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "缺少或非法的 document_id"})
		return
	}

	level, err := m.perms.LevelFor(c.Request.Context(), docID, userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "文档不存在或无权访问"})
		return
	}
	if !level.AtLeast(permission.Read) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "文档不存在或无权访问"})
		return
	}

	version, err := m.svc.CurrentVersion(c.Request.Context(), docID)
	if err != nil {
		if errors.Is(err, collab.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "文档不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "内部错误"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}

	conn := NewConn(ws, m.registry, docID, userID, username, m.svc, m.presence)

	// 同一 (文档, 用户) 的旧连接会被顶掉
	m.registry.Connect(docID, userID, conn)
	if m.presence != nil {
		if err := m.presence.AddMember(c.Request.Context(), docID, userID, username, presenceTTL); err != nil {
			log.Printf("add presence member error: %v", err)
		}
	}

	// 先启动写循环，确保快照和后续广播可以被及时发送
	go conn.writeLoop()

	_ = conn.Send(ConnectedMessage{
		Type: "connected",
		Data: ConnectedData{UserID: userID, DocumentID: docID, CurrentVersion: version},
	})

	// 最后进入读循环（阻塞至连接关闭）
	conn.readLoop(c.Request.Context())
}
