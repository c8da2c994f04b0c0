package redis

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

const clientName = "cjdns-admin"

type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr joins host and port, bracketing IPv6 hosts.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c Config) options() *redis.Options {
	return &redis.Options{
		Addr:        c.Addr(),
		Password:    c.Password,
		DB:          c.DB,
		ClientName:  clientName,
		DialTimeout: 5 * time.Second,
		// Pushes are best effort; a stalled server must not hold up delivery.
		WriteTimeout: 2 * time.Second,
	}
}

// New connects to Redis and checks the connection.
func New(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(cfg.options())

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}

	return client, nil
}

// Dial connects to Redis and returns a Publisher that owns the connection.
func Dial(ctx context.Context, cfg Config) (*Publisher, error) {
	client, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	p := NewPublisher(client)
	p.conn = client
	return p, nil
}
