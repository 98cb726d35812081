package ws

import (
	"log"
	"sync"

	"github.com/apshuang/ShareDocs/backend/internal/collab"
)

// Transport：一个会话的传输句柄。
// Send 必须快速返回（入队即可），失败意味着会话已死，注册表会把它踢掉。
type Transport interface {
	Send(msg OutboundMessage) error
	Close() error
}

// Registry：进程内会话注册表，docID -> userID -> 传输句柄。
// 同一 (docID, userID) 最多一个活跃句柄，新连接会顶掉旧的。
// 显式对象而不是包级全局，方便测试时注入假 Transport。
//
// 锁顺序约定：协调器先拿文档锁再调这里（内部自己加锁），
// 注册表方法里绝不能反过来去碰文档锁。
type Registry struct {
	mu    sync.RWMutex
	rooms map[uint64]map[uint64]Transport
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[uint64]map[uint64]Transport)}
}

// Connect：注册句柄，返回被顶掉的旧句柄（没有则为 nil）。
// 旧句柄的 Close 在锁外做，避免传输层的关闭逻辑反过来拿注册表锁。
func (r *Registry) Connect(docID, userID uint64, t Transport) {
	r.mu.Lock()
	if r.rooms[docID] == nil {
		r.rooms[docID] = make(map[uint64]Transport)
	}
	old := r.rooms[docID][userID]
	r.rooms[docID][userID] = t
	r.mu.Unlock()

	if old != nil {
		log.Printf("evict previous session doc=%d user=%d", docID, userID)
		_ = old.Close()
	}
}

// Disconnect：移除会话。t 不为 nil 时只在句柄仍是它的情况下移除，
// 防止被顶掉的旧连接退出时误删新连接；t 为 nil 时无条件移除。
// 对不存在的会话是 no-op。房间空了就把容器删掉，不留空 map。
func (r *Registry) Disconnect(docID, userID uint64, t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.rooms[docID]
	if !ok {
		return
	}
	current, ok := conns[userID]
	if !ok {
		return
	}
	if t != nil && current != t {
		return
	}
	delete(conns, userID)
	if len(conns) == 0 {
		delete(r.rooms, docID)
	}
}

// BroadcastOperation：collab.Broadcaster 实现
func (r *Registry) BroadcastOperation(docID uint64, applied collab.AppliedOp, excludeUserID uint64) {
	msg := OpAppliedMessage{
		Type: "operation_applied",
		Data: OpAppliedData{
			DocumentID: docID,
			Operation:  applied.Op,
			Version:    applied.Version,
		},
	}
	r.Broadcast(docID, msg, excludeUserID)
}

// Broadcast：把消息发给文档下除 excludeUserID 外的所有会话。
// 每个会话独立尝试，单个失败不影响其他会话；
// 发送失败的会话视为已死，顺手断开并关闭（不重试）。
func (r *Registry) Broadcast(docID uint64, msg OutboundMessage, excludeUserID uint64) {
	r.mu.RLock()
	snapshot := make(map[uint64]Transport, len(r.rooms[docID]))
	for uid, t := range r.rooms[docID] {
		snapshot[uid] = t
	}
	r.mu.RUnlock()

	type deadSession struct {
		userID uint64
		t      Transport
	}
	var dead []deadSession
	for uid, t := range snapshot {
		if uid == excludeUserID {
			continue
		}
		if err := t.Send(msg); err != nil {
			log.Printf("broadcast send failed doc=%d user=%d: %v", docID, uid, err)
			dead = append(dead, deadSession{userID: uid, t: t})
		}
	}
	for _, d := range dead {
		r.Disconnect(docID, d.userID, d.t)
		_ = d.t.Close()
	}
}

// SessionsOf：某一时刻文档下的在线用户快照（presence/“谁在编辑”用）
func (r *Registry) SessionsOf(docID uint64) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]uint64, 0, len(r.rooms[docID]))
	for uid := range r.rooms[docID] {
		users = append(users, uid)
	}
	return users
}
