package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"powchain/core"
	"powchain/logger"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "powchain:blocks"

const publishTimeout = 2 * time.Second

// Publisher is the subset of a redis client the notifier uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// BlockMessage is the payload published for every block.
type BlockMessage struct {
	RunID string      `json:"runId,omitempty"`
	Block *core.Block `json:"block"`
}

// RedisNotifier publishes mined blocks on a redis pub/sub channel.
type RedisNotifier struct {
	client  Publisher
	channel string
	runID   string
	closer  func() error
}

// NewRedisNotifier connects to addr and checks the connection with PING.
func NewRedisNotifier(ctx context.Context, addr, channel, runID string) (*RedisNotifier, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	logger.Infof("Publishing mined blocks to redis %s channel %q", addr, channel)
	n := NewNotifier(rdb, channel, runID)
	n.closer = rdb.Close
	return n, nil
}

// NewNotifier wraps an existing client.
func NewNotifier(client Publisher, channel, runID string) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{client: client, channel: channel, runID: runID}
}

func (n *RedisNotifier) Channel() string { return n.channel }

// BlockMined implements core.BlockSink.
func (n *RedisNotifier) BlockMined(ctx context.Context, block *core.Block) error {
	data, err := json.Marshal(BlockMessage{RunID: n.runID, Block: block})
	if err != nil {
		return err
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := n.client.Publish(pubCtx, n.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish block %d on %s: %w", block.Number, n.channel, err)
	}
	return nil
}

func (n *RedisNotifier) Close() error {
	if n.closer != nil {
		return n.closer()
	}
	return nil
}
