package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/marketplace-ledger/internal/model"
	"github.com/fairyhunter13/marketplace-ledger/internal/obs"
)

// RedisSink publishes events as JSON on a Redis pub/sub channel.
type RedisSink struct {
	rdb     *goredis.Client
	channel string
}

// DialRedis connects to addr, verifies the connection and returns a sink
// publishing on channel.
func DialRedis(ctx context.Context, addr, channel string) (*RedisSink, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "redis ping")
	}
	obs.Logger.Info("redis_connected", "addr", addr, "channel", channel)
	return &RedisSink{rdb: rdb, channel: channel}, nil
}

func (s *RedisSink) Publish(ctx context.Context, ev model.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	if err := s.rdb.Publish(ctx, s.channel, b).Err(); err != nil {
		return errors.Wrapf(err, "redis publish seq=%d", ev.Sequence)
	}
	return nil
}

// Close releases the client.
func (s *RedisSink) Close() error { return s.rdb.Close() }
