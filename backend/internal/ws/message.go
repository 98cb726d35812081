package ws

import (
	"github.com/apshuang/ShareDocs/backend/internal/operation"
)

// 出站消息接口
type OutboundMessage interface {
	MessageType() string
}

// 客户端入站消息：只有 type 字段是必须的
type ClientMessage struct {
	Type string `json:"type"`
}

// 握手成功后的快照
type ConnectedData struct {
	UserID         uint64 `json:"user_id"`
	DocumentID     uint64 `json:"document_id"`
	CurrentVersion uint64 `json:"current_version"`
}

type ConnectedMessage struct {
	Type string        `json:"type"` // 固定 "connected"
	Data ConnectedData `json:"data"`
}

type PongMessage struct {
	Type string `json:"type"` // 固定 "pong"
}

type SubscribedData struct {
	DocumentID     uint64 `json:"document_id"`
	CurrentVersion uint64 `json:"current_version"`
}

type SubscribedMessage struct {
	Type string         `json:"type"` // 固定 "subscribed"
	Data SubscribedData `json:"data"`
}

type ErrorData struct {
	Message string `json:"message"`
}

type ErrorMessage struct {
	Type string    `json:"type"` // 固定 "error"
	Data ErrorData `json:"data"`
}

// 广播给同文档其他会话的“操作已应用”事件
type OpAppliedData struct {
	DocumentID uint64              `json:"document_id"`
	Operation  operation.Operation `json:"operation"`
	Version    uint64              `json:"version"`
}

type OpAppliedMessage struct {
	Type string        `json:"type"` // 固定 "operation_applied"
	Data OpAppliedData `json:"data"`
}

func (m ConnectedMessage) MessageType() string  { return m.Type }
func (m PongMessage) MessageType() string       { return m.Type }
func (m SubscribedMessage) MessageType() string { return m.Type }
func (m ErrorMessage) MessageType() string      { return m.Type }
func (m OpAppliedMessage) MessageType() string  { return m.Type }
