package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Session tokens live under session:{token} with the party id as value. The
// auth service owns creation and TTL; we only read.
const sessionKeyPrefix = "session:"

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func (c *Client) PartyForToken(ctx context.Context, token string) (string, error) {
	val, err := c.cli.Get(ctx, sessionKeyPrefix+token).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get session: %w", err)
	}
	return val, nil
}
