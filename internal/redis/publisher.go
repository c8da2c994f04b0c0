package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChannelPrefix prefixes the pub/sub channel of every transaction.
const ChannelPrefix = "adminlog:tx:"

type publishClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Publisher mirrors admin pushes onto Redis pub/sub, one channel per
// transaction. It implements admin.Sink.
type Publisher struct {
	client  publishClient
	timeout time.Duration
	// conn is set when the Publisher owns its client.
	conn *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return newPublisher(client)
}

func newPublisher(client publishClient) *Publisher {
	return &Publisher{client: client, timeout: 2 * time.Second}
}

// Channel returns the pub/sub channel carrying txid's pushes.
func Channel(txid string) string {
	return ChannelPrefix + txid
}

// Deliver publishes payload on txid's channel. Having no Redis subscribers
// is not an error.
func (p *Publisher) Deliver(txid string, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.client.Publish(ctx, Channel(txid), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", Channel(txid), err)
	}
	return nil
}

// Close closes the connection if the Publisher owns it.
func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// Subscribe returns a pub/sub handle receiving txid's pushes.
func Subscribe(ctx context.Context, client *redis.Client, txid string) *redis.PubSub {
	return client.Subscribe(ctx, Channel(txid))
}
