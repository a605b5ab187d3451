package redis

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNil    = redis.Nil
	ErrClosed = errors.New("redis: client is closed")
)

// IsNil reports whether err means the key does not exist.
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

// IsClosed reports whether err comes from a closed client.
func IsClosed(err error) bool {
	return errors.Is(err, redis.ErrClosed) || errors.Is(err, ErrClosed)
}
