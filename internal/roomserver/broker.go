package roomserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Broadcast is one frame addressed to every connection in a room, except
// the connection named by Except.
type Broadcast struct {
	RoomID string          `json:"roomId"`
	Except string          `json:"except,omitempty"`
	Frame  json.RawMessage `json:"frame"`
}

// Broker fans broadcasts out to every server instance. Subscribe blocks,
// calling deliver for each broadcast, until ctx ends.
type Broker interface {
	Publish(ctx context.Context, b Broadcast) error
	Subscribe(ctx context.Context, deliver func(Broadcast)) error
	Close() error
}

var errBrokerClosed = errors.New("roomserver: broker closed")

// LocalBroker delivers broadcasts inside one process.
type LocalBroker struct {
	ch        chan Broadcast
	closeOnce sync.Once
	closed    chan struct{}
}

// NewLocalBroker returns a broker with a small delivery buffer.
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{ch: make(chan Broadcast, 256), closed: make(chan struct{})}
}

func (b *LocalBroker) Publish(ctx context.Context, bc Broadcast) error {
	select {
	case <-b.closed:
		return errBrokerClosed
	default:
	}
	select {
	case b.ch <- bc:
		return nil
	case <-b.closed:
		return errBrokerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *LocalBroker) Subscribe(ctx context.Context, deliver func(Broadcast)) error {
	for {
		select {
		case bc := <-b.ch:
			deliver(bc)
		case <-b.closed:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *LocalBroker) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}

// RedisBroker relays broadcasts over redis pub/sub, one channel per room.
type RedisBroker struct {
	rdb    *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisBroker connects to addr and checks the connection.
func NewRedisBroker(ctx context.Context, addr string, logger *slog.Logger) (*RedisBroker, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("roomserver: connect redis %s: %w", addr, err)
	}
	logger.Info("connected to redis", "addr", addr)
	return &RedisBroker{rdb: rdb, prefix: "collabnotes:room:", logger: logger}, nil
}

func (b *RedisBroker) channel(roomID string) string { return b.prefix + roomID }

func (b *RedisBroker) Publish(ctx context.Context, bc Broadcast) error {
	payload, err := json.Marshal(bc)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.channel(bc.RoomID), payload).Err(); err != nil {
		return fmt.Errorf("roomserver: publish to %s: %w", bc.RoomID, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, deliver func(Broadcast)) error {
	pubsub := b.rdb.PSubscribe(ctx, b.prefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			bc, err := decodeBroadcast(b.prefix, msg.Channel, msg.Payload)
			if err != nil {
				b.logger.Warn("dropping redis message", "channel", msg.Channel, "err", err)
				continue
			}
			deliver(bc)
		}
	}
}

func (b *RedisBroker) Close() error { return b.rdb.Close() }

// decodeBroadcast parses a pub/sub payload and checks it was published on
// its room's channel.
func decodeBroadcast(prefix, channel, payload string) (Broadcast, error) {
	var bc Broadcast
	if err := json.Unmarshal([]byte(payload), &bc); err != nil {
		return Broadcast{}, err
	}
	if room := strings.TrimPrefix(channel, prefix); room != bc.RoomID {
		return Broadcast{}, fmt.Errorf("room %q published on channel for %q", bc.RoomID, room)
	}
	return bc, nil
}
