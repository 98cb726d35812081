package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/apshuang/ShareDocs/backend/internal/cache"
	"github.com/apshuang/ShareDocs/backend/internal/collab"
)

const (
	// 单条消息的写超时：慢接收端不会无限期拖住广播，超时即被踢
	writeWait = 5 * time.Second
	// 出站队列容量，打满说明接收端已经跟不上了
	sendBuffer = 64

	presenceTTL = 600 * time.Second
)

var ErrSendBufferFull = errors.New("send buffer full")
var ErrConnClosed = errors.New("connection closed")

// Conn：一个 (文档, 用户) 会话的 websocket 连接，实现 Transport。
// Send 只入队，真正的网络写在 writeLoop 里串行执行。
type Conn struct {
	ws       *websocket.Conn
	registry *Registry
	docID    uint64
	userID   uint64
	username string

	svc      collab.Service
	presence cache.PresenceCache

	send      chan OutboundMessage
	closed    chan struct{}
	closeOnce sync.Once
}

func NewConn(ws *websocket.Conn, registry *Registry, docID, userID uint64, username string, svc collab.Service, presence cache.PresenceCache) *Conn {
	return &Conn{
		ws:       ws,
		registry: registry,
		docID:    docID,
		userID:   userID,
		username: username,
		svc:      svc,
		presence: presence,
		send:     make(chan OutboundMessage, sendBuffer),
		closed:   make(chan struct{}),
	}
}

// Send：非阻塞入队。队列满视为对端已死，返回错误让注册表把会话踢掉
// （这里不像丢消息那样静默降级：漏掉一条 operation_applied 的会话
// 版本就脱节了，重连拉快照比悄悄落后更安全）。
func (c *Conn) Send(msg OutboundMessage) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
	return nil
}

func (c *Conn) writeLoop() {
	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				log.Printf("write error (user=%d, doc=%d): %v", c.userID, c.docID, err)
				_ = c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// readLoop：阻塞至连接关闭。协议：
// - ping        -> pong
// - subscribe   -> 当前版本刷新
// - 其他类型     -> error 回复，连接不断开
// JSON 解析失败同样只回 error，不断开；只有底层读错误才退出循环。
func (c *Conn) readLoop(ctx context.Context) {
	defer func() {
		c.registry.Disconnect(c.docID, c.userID, c)
		if c.presence != nil {
			if err := c.presence.RemoveMember(ctx, c.docID, c.userID); err != nil {
				log.Printf("remove presence member error: %v", err)
			}
		}
		_ = c.Close()
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("read error (user=%d, doc=%d): %v", c.userID, c.docID, err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = c.Send(ErrorMessage{Type: "error", Data: ErrorData{Message: "无效的 JSON 格式"}})
			continue
		}

		switch msg.Type {
		case "ping":
			// 心跳顺带续 presence 的 TTL
			if c.presence != nil {
				if err := c.presence.AddMember(ctx, c.docID, c.userID, c.username, presenceTTL); err != nil {
					log.Printf("add presence member error: %v", err)
				}
			}
			_ = c.Send(PongMessage{Type: "pong"})

		case "subscribe":
			version, err := c.svc.CurrentVersion(ctx, c.docID)
			if err != nil {
				_ = c.Send(ErrorMessage{Type: "error", Data: ErrorData{Message: "获取文档版本失败"}})
				continue
			}
			_ = c.Send(SubscribedMessage{
				Type: "subscribed",
				Data: SubscribedData{DocumentID: c.docID, CurrentVersion: version},
			})

		default:
			_ = c.Send(ErrorMessage{
				Type: "error",
				Data: ErrorData{Message: fmt.Sprintf("未知的消息类型: %s", msg.Type)},
			})
		}
	}
}
