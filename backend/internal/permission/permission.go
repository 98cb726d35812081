package permission

import (
	"context"
	"fmt"
)

// Level：封闭的权限枚举，none < read < edit < admin。
// 用整数承载顺序，字符串只出现在存储和 JSON 边界上。
type Level int

const (
	None Level = iota
	Read
	Edit
	Admin
)

func (l Level) String() string {
	switch l {
	case None:
		return "none"
	case Read:
		return "read"
	case Edit:
		return "edit"
	case Admin:
		return "admin"
	}
	return "none"
}

func ParseLevel(s string) (Level, error) {
	switch s {
	case "none":
		return None, nil
	case "read":
		return Read, nil
	case "edit":
		return Edit, nil
	case "admin":
		return Admin, nil
	}
	return None, fmt.Errorf("unknown permission level %q", s)
}

// AtLeast：提交操作要求 Edit，建立实时连接要求 Read
func (l Level) AtLeast(required Level) bool { return l >= required }

type DocumentSource interface {
	OwnerOf(ctx context.Context, docID uint64) (uint64, error)
}

type ShareSource interface {
	// 没有分享记录返回 ("", false, nil)
	SharedPermission(ctx context.Context, docID, userID uint64) (string, bool, error)
}

// Resolver：权限解析。规则：文档所有者恒为 admin，
// 其他人取分享记录里的等级，没有分享记录就是 none。
type Resolver struct {
	docs   DocumentSource
	shares ShareSource
}

func NewResolver(docs DocumentSource, shares ShareSource) *Resolver {
	return &Resolver{docs: docs, shares: shares}
}

func (r *Resolver) LevelFor(ctx context.Context, docID, userID uint64) (Level, error) {
	ownerID, err := r.docs.OwnerOf(ctx, docID)
	if err != nil {
		return None, err
	}
	if ownerID == userID {
		return Admin, nil
	}
	perm, ok, err := r.shares.SharedPermission(ctx, docID, userID)
	if err != nil {
		return None, err
	}
	if !ok {
		return None, nil
	}
	level, err := ParseLevel(perm)
	if err != nil {
		// 存储里出现未知等级按无权限处理
		return None, nil
	}
	return level, nil
}
