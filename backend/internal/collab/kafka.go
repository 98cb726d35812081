package collab

import (
	"time"

	"github.com/apshuang/ShareDocs/backend/internal/operation"
)

// DocOpEvent：写入 Kafka 的“操作已应用”事件，
// 以 docId 做 key，同一文档的事件落在同一分区保证有序。
type DocOpEvent struct {
	EventType      string              `json:"eventType"` // 固定 "OP_APPLIED"
	DocID          uint64              `json:"docId"`
	UserID         uint64              `json:"userId"`
	Operation      operation.Operation `json:"operation"`
	SequenceNumber uint64              `json:"sequenceNumber"`
	VersionBefore  uint64              `json:"versionBefore"`
	VersionAfter   uint64              `json:"versionAfter"`
	AppliedAt      time.Time           `json:"appliedAt"`
}
