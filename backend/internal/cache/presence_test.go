package cache

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
)

func newTestPresence(t *testing.T) (PresenceCache, *redis.Client) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	// 若 Redis 未启动则跳过
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("skip: redis not available: %v", err)
	}
	return NewRedisPresence(rdb), rdb
}

func TestPresence_AddAndGetAlive(t *testing.T) {
	p, rdb := newTestPresence(t)
	ctx := context.Background()
	const docID = uint64(90001)
	defer rdb.Del(ctx, roomKey(docID), namesKey(docID))

	if err := p.AddMember(ctx, docID, 1, "alice", 60*time.Second); err != nil {
		t.Fatalf("AddMember error: %v", err)
	}
	if err := p.AddMember(ctx, docID, 2, "bob", 60*time.Second); err != nil {
		t.Fatalf("AddMember error: %v", err)
	}

	members, err := p.GetAliveMembersWithNames(ctx, docID)
	if err != nil {
		t.Fatalf("GetAliveMembersWithNames error: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("members = %v, want 2", members)
	}
	byID := map[uint64]string{}
	for _, m := range members {
		byID[m.UserID] = m.Username
	}
	if byID[1] != "alice" || byID[2] != "bob" {
		t.Fatalf("members = %v", members)
	}
}

func TestPresence_ExpiredMemberSweptOut(t *testing.T) {
	p, rdb := newTestPresence(t)
	ctx := context.Background()
	const docID = uint64(90002)
	defer rdb.Del(ctx, roomKey(docID), namesKey(docID))

	// 逻辑 TTL 已过期的成员在查询时被 Lua 脚本清掉
	if err := p.AddMember(ctx, docID, 1, "ghost", -1*time.Second); err != nil {
		t.Fatalf("AddMember error: %v", err)
	}
	if err := p.AddMember(ctx, docID, 2, "alive", 60*time.Second); err != nil {
		t.Fatalf("AddMember error: %v", err)
	}

	members, err := p.GetAliveMembersWithNames(ctx, docID)
	if err != nil {
		t.Fatalf("GetAliveMembersWithNames error: %v", err)
	}
	if len(members) != 1 || members[0].UserID != 2 {
		t.Fatalf("members = %v, want only user 2", members)
	}
}

func TestPresence_RemoveMember(t *testing.T) {
	p, rdb := newTestPresence(t)
	ctx := context.Background()
	const docID = uint64(90003)
	defer rdb.Del(ctx, roomKey(docID), namesKey(docID))

	if err := p.AddMember(ctx, docID, 1, "alice", 60*time.Second); err != nil {
		t.Fatalf("AddMember error: %v", err)
	}
	if err := p.RemoveMember(ctx, docID, 1); err != nil {
		t.Fatalf("RemoveMember error: %v", err)
	}
	members, err := p.GetAliveMembersWithNames(ctx, docID)
	if err != nil {
		t.Fatalf("GetAliveMembersWithNames error: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("members = %v, want empty", members)
	}
	// 幂等：再删一次不报错
	if err := p.RemoveMember(ctx, docID, 1); err != nil {
		t.Fatalf("second RemoveMember error: %v", err)
	}
}
