package cache

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

var parseRedisURL = redis.ParseURL

// NewClient builds a redis client from either a bare host:port address or a
// redis:// / rediss:// URL. Password and db apply only to the bare form; the
// URL form carries its own.
func NewClient(url, password string, db int) (*redis.Client, error) {
	if strings.HasPrefix(url, "redis://") || strings.HasPrefix(url, "rediss://") {
		opts, err := parseRedisURL(url)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: url, Password: password, DB: db}), nil
}
