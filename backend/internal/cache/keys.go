package cache

import "fmt"

// 键语义：
// - roomKey(docID):  房间在线成员（ZSet<userId, expireAtUnix>，score=expireAt）
// - namesKey(docID): 房间内 userId→username 映射（Hash）

const (
	keyRoomFmt  = "presence:room:{docID:%d}"       // ZSet<userId, expireAtUnix>
	keyNamesFmt = "presence:room:names:{docID:%d}" // Hash<userId -> username>
)

func roomKey(docID uint64) string  { return fmt.Sprintf(keyRoomFmt, docID) }
func namesKey(docID uint64) string { return fmt.Sprintf(keyNamesFmt, docID) }
