package socket

import (
	"context"
	"encoding/json"
	"strings"

	"satukanvas/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// ChannelPrefix namespaces the pub/sub channels of every session.
const ChannelPrefix = "satukanvas:session:"

// RelayFrame is a frame travelling between nodes. Origin is the node that
// accepted it from a client, so that node can ignore its own copy.
type RelayFrame struct {
	Origin    string          `json:"origin"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

// Relay carries frames between hubs running on different nodes.
type Relay interface {
	Publish(ctx context.Context, f RelayFrame) error
	// Subscribe blocks, calling fn for every frame, until ctx is done.
	Subscribe(ctx context.Context, fn func(RelayFrame)) error
}

// RedisRelay is a Relay over Redis pub/sub, one channel per session.
type RedisRelay struct {
	rdb *redis.Client
}

func NewRedisRelay(rdb *redis.Client) *RedisRelay {
	return &RedisRelay{rdb: rdb}
}

func (r *RedisRelay) Publish(ctx context.Context, f RelayFrame) error {
	body, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, ChannelPrefix+f.SessionID, body).Err()
}

func (r *RedisRelay) Subscribe(ctx context.Context, fn func(RelayFrame)) error {
	pubsub := r.rdb.PSubscribe(ctx, ChannelPrefix+"*")
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reading.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var f RelayFrame
			if err := json.Unmarshal([]byte(msg.Payload), &f); err != nil {
				logger.Sugar.Warnf("Ignoring malformed relay frame on %s: %v", msg.Channel, err)
				continue
			}
			if f.SessionID == "" {
				f.SessionID = strings.TrimPrefix(msg.Channel, ChannelPrefix)
			}
			fn(f)
		}
	}
}
