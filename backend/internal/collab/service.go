package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/apshuang/ShareDocs/backend/internal/operation"
)

// 同步引擎接口
type Service interface {
	// Submit 提交一个编辑操作：权限检查由调用方完成，这里负责
	// 版本门控、应用操作、持久化、记录操作日志和广播。
	Submit(ctx context.Context, docID uint64, userID uint64, op operation.Operation) (AppliedOp, error)

	CurrentVersion(ctx context.Context, docID uint64) (uint64, error)

	// LoadDocument 返回文档当前内容和版本（用于握手快照等场景）
	LoadDocument(ctx context.Context, docID uint64) (string, uint64, error)
}

// 暂存的新内容：Promote 原子地替换正式内容，Discard 丢弃
type ContentStage interface {
	Promote() error
	Discard()
}

// 内容存储接口：整篇读写，一个文档一个文件。
// 新内容先 Stage 到暂存位置，版本提交成功后才 Promote，
// 提交失败 Discard，正式内容自始至终不被触碰。
type ContentStore interface {
	Read(docID uint64) (string, error)
	Stage(docID uint64, content string) (ContentStage, error)
}

// 版本与操作日志存储接口。
// CommitOperation 必须是一个原子单元：条件更新版本号（affected rows == 0
// 视为冲突，返回 ErrVersionConflict）、追加操作日志、执行 stageContent
// （把新内容写到暂存位置），任何一步失败都不得推进版本。
type SyncStore interface {
	CurrentVersion(ctx context.Context, docID uint64) (uint64, error)
	CommitOperation(ctx context.Context, entry LogEntry, stageContent func() error) error
}

// 广播接口：把已应用的操作推送给同文档的其他会话
type Broadcaster interface {
	BroadcastOperation(docID uint64, applied AppliedOp, excludeUserID uint64)
}

// 事件下游接口（Kafka dispatcher 实现），尽力而为，不阻塞主链路
type EventSink interface {
	Enqueue(ctx context.Context, evt DocOpEvent) error
}

// 操作日志条目：只追加、不修改
type LogEntry struct {
	DocumentID     uint64
	UserID         uint64
	Kind           string
	Payload        []byte // 操作的 JSON 序列化
	SequenceNumber uint64 // 恒等于 VersionAfter
	VersionBefore  uint64
	VersionAfter   uint64
}

type AppliedOp struct {
	DocID     uint64
	UserID    uint64
	Op        operation.Operation
	Version   uint64 // 应用后的版本
	AppliedAt time.Time
}

var (
	ErrVersionConflict  = errors.New("VERSION_CONFLICT")
	ErrDocumentNotFound = errors.New("DOCUMENT_NOT_FOUND")
)

// ConflictError 带上期望/实际版本，便于客户端拉取最新版本后重试
type ConflictError struct {
	Expected uint64
	Got      uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("VERSION_CONFLICT: expected %d, got %d", e.Expected, e.Got)
}

// errors.Is(err, ErrVersionConflict) 对 ConflictError 同样成立
func (e *ConflictError) Is(target error) bool { return target == ErrVersionConflict }

// SyncService：每个文档一把互斥锁，保证同一文档上
// “读版本 -> 校验 -> 应用 -> 提交 -> 广播”整段串行执行；
// 不同文档之间完全并行。
type SyncService struct {
	mu    sync.Mutex
	locks map[uint64]*sync.Mutex

	store    SyncStore
	contents ContentStore
	hub      Broadcaster
	events   EventSink
}

func NewSyncService(store SyncStore, contents ContentStore, hub Broadcaster, events EventSink) *SyncService {
	return &SyncService{
		locks:    make(map[uint64]*sync.Mutex),
		store:    store,
		contents: contents,
		hub:      hub,
		events:   events,
	}
}

// 获取或创建指定文档的锁（double-checked 写法避免每次都拿写锁）
func (s *SyncService) docLock(docID uint64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu := s.locks[docID]
	if mu == nil {
		mu = &sync.Mutex{}
		s.locks[docID] = mu
	}
	return mu
}

func (s *SyncService) Submit(ctx context.Context, docID uint64, userID uint64, op operation.Operation) (AppliedOp, error) {
	mu := s.docLock(docID)
	mu.Lock()
	defer mu.Unlock()

	// step 1-2: 读权威版本并做版本门控。基线版本不匹配的提交直接拒绝，
	// 不产生任何写入也不广播，由客户端拉取最新内容后重试。
	version, err := s.store.CurrentVersion(ctx, docID)
	if err != nil {
		return AppliedOp{}, err
	}
	if op.BaseVersion != version {
		return AppliedOp{}, &ConflictError{Expected: version, Got: op.BaseVersion}
	}

	// step 3-4: 读内容并应用操作（纯函数，失败时无任何副作用）
	content, err := s.contents.Read(docID)
	if err != nil {
		return AppliedOp{}, err
	}
	newContent, err := operation.Apply(content, op)
	if err != nil {
		return AppliedOp{}, err
	}

	// step 5-7: 单个原子单元。条件更新版本 + 追加操作日志 + 内容暂存
	// 都在同一个事务窗口内，任何一步失败版本都不会推进；
	// 正式内容在事务提交成功后才由 Promote 原子替换。
	payload, err := json.Marshal(op)
	if err != nil {
		return AppliedOp{}, err
	}
	entry := LogEntry{
		DocumentID:     docID,
		UserID:         userID,
		Kind:           string(op.Kind),
		Payload:        payload,
		SequenceNumber: version + 1,
		VersionBefore:  version,
		VersionAfter:   version + 1,
	}
	var stage ContentStage
	if err := s.store.CommitOperation(ctx, entry, func() error {
		st, err := s.contents.Stage(docID, newContent)
		if err != nil {
			return err
		}
		stage = st
		return nil
	}); err != nil {
		if stage != nil {
			stage.Discard()
		}
		return AppliedOp{}, err
	}
	if err := stage.Promote(); err != nil {
		// 版本已提交而替换失败（同目录 rename，概率极小）：
		// 按存储故障上报，不广播
		log.Printf("promote content failed doc=%d version=%d err=%v", docID, entry.VersionAfter, err)
		return AppliedOp{}, err
	}

	applied := AppliedOp{
		DocID:     docID,
		UserID:    userID,
		Op:        op,
		Version:   version + 1,
		AppliedAt: time.Now(),
	}

	// step 8: 提交成功后立刻广播（仍持有文档锁，保证广播顺序 == 版本顺序；
	// 广播只做入队不做网络写，持锁时间可以忽略）。
	// 锁顺序约定：文档锁 -> 注册表锁，绝不反向。
	if s.hub != nil {
		s.hub.BroadcastOperation(docID, applied, userID)
	}

	// 下游事件尽力投递，失败只记日志，不影响本次提交。
	// 队列打满（Kafka 长时间不可用）时最多等 200ms 就放弃，
	// 这里还持着文档锁，绝不能让下游拖住提交主链路。
	if s.events != nil {
		evt := DocOpEvent{
			EventType:      "OP_APPLIED",
			DocID:          docID,
			UserID:         userID,
			Operation:      op,
			SequenceNumber: entry.SequenceNumber,
			VersionBefore:  entry.VersionBefore,
			VersionAfter:   entry.VersionAfter,
			AppliedAt:      applied.AppliedAt,
		}
		enqCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		if err := s.events.Enqueue(enqCtx, evt); err != nil {
			log.Printf("enqueue doc op event failed doc=%d rev=%d err=%v", docID, applied.Version, err)
		}
		cancel()
	}

	return applied, nil
}

func (s *SyncService) CurrentVersion(ctx context.Context, docID uint64) (uint64, error) {
	return s.store.CurrentVersion(ctx, docID)
}

func (s *SyncService) LoadDocument(ctx context.Context, docID uint64) (string, uint64, error) {
	// 加锁读，避免读到“内容已写、版本未提交”的中间态
	mu := s.docLock(docID)
	mu.Lock()
	defer mu.Unlock()

	version, err := s.store.CurrentVersion(ctx, docID)
	if err != nil {
		return "", 0, err
	}
	content, err := s.contents.Read(docID)
	if err != nil {
		return "", 0, err
	}
	return content, version, nil
}
