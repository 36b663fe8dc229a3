package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/Callhub/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PresenceMirror publishes this node's online/offline transitions so that
// other services can see them: a set of online ids plus a pub/sub event.
type PresenceMirror struct {
	rdb       *redis.Client
	onlineKey string
	channel   string
	now       func() time.Time
}

func NewPresenceMirror(rdb *redis.Client, onlineKey, channel string) *PresenceMirror {
	return &PresenceMirror{
		rdb:       rdb,
		onlineKey: onlineKey,
		channel:   channel,
		now:       time.Now,
	}
}

type presenceEvent struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
	At     int64  `json:"at"`
}

func (p *PresenceMirror) SetOnline(ctx context.Context, user domain.UserID) error {
	return p.set(ctx, user, true)
}

func (p *PresenceMirror) SetOffline(ctx context.Context, user domain.UserID) error {
	return p.set(ctx, user, false)
}

func (p *PresenceMirror) set(ctx context.Context, user domain.UserID, online bool) error {
	msg, err := json.Marshal(presenceEvent{UserID: string(user), Online: online, At: p.now().UnixMilli()})
	if err != nil {
		return err
	}
	_, err = p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if online {
			pipe.SAdd(ctx, p.onlineKey, string(user))
		} else {
			pipe.SRem(ctx, p.onlineKey, string(user))
		}
		pipe.Publish(ctx, p.channel, msg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("presence mirror %s: %w", user, err)
	}
	return nil
}

// Online lists the ids currently in the mirrored set.
func (p *PresenceMirror) Online(ctx context.Context) ([]string, error) {
	return p.rdb.SMembers(ctx, p.onlineKey).Result()
}
